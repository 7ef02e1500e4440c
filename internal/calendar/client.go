package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var ErrNotConfigured = errors.New("calendar gateway not configured")

type Event struct {
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

type EventRef struct {
	ID   string `json:"id"`
	Link string `json:"link"`
}

// Client creates and removes events on a user's external calendar. The access
// token belongs to the calendar owner, not the service.
type Client interface {
	CreateEvent(ctx context.Context, accessToken string, ev Event) (EventRef, error)
	DeleteEvent(ctx context.Context, accessToken string, eventID string) error
}

// HTTPClient talks to a calendar API bridge that accepts the user's OAuth
// bearer token and a JSON event payload.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (c *HTTPClient) CreateEvent(ctx context.Context, accessToken string, ev Event) (EventRef, error) {
	if c.baseURL == "" {
		return EventRef{}, ErrNotConfigured
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return EventRef{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/events", bytes.NewReader(raw))
	if err != nil {
		return EventRef{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return EventRef{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return EventRef{}, fmt.Errorf("calendar api returned %d", resp.StatusCode)
	}

	var ref EventRef
	if err := json.NewDecoder(resp.Body).Decode(&ref); err != nil {
		return EventRef{}, err
	}
	if ref.ID == "" {
		return EventRef{}, errors.New("calendar api returned no event id")
	}
	return ref, nil
}

func (c *HTTPClient) DeleteEvent(ctx context.Context, accessToken string, eventID string) error {
	if c.baseURL == "" {
		return ErrNotConfigured
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/events/"+eventID, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	// A missing event is treated as deleted.
	if resp.StatusCode != http.StatusNotFound && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
		return fmt.Errorf("calendar api returned %d", resp.StatusCode)
	}
	return nil
}

// NoopClient rejects every call; workflows treat that like any other gateway
// failure and continue.
type NoopClient struct{}

func (NoopClient) CreateEvent(context.Context, string, Event) (EventRef, error) {
	return EventRef{}, ErrNotConfigured
}

func (NoopClient) DeleteEvent(context.Context, string, string) error {
	return ErrNotConfigured
}
