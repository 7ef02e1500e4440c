package files

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

var ErrNotConfigured = errors.New("file store not configured")

type Object struct {
	PublicID string `json:"public_id"`
	URL      string `json:"url"`
}

// Store persists binary assets (quotation PDFs, task attachments) and returns
// a stable identifier plus a public URL.
type Store interface {
	Upload(ctx context.Context, name string, contentType string, data []byte) (Object, error)
	Delete(ctx context.Context, publicID string) error
}

// HTTPStore uploads to an asset service over multipart HTTP.
type HTTPStore struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewHTTPStore(baseURL string, token string) *HTTPStore {
	return &HTTPStore{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   strings.TrimSpace(token),
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (s *HTTPStore) Upload(ctx context.Context, name string, contentType string, data []byte) (Object, error) {
	if s.baseURL == "" {
		return Object{}, ErrNotConfigured
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return Object{}, err
	}
	if _, err := io.Copy(part, bytes.NewReader(data)); err != nil {
		return Object{}, err
	}
	if contentType != "" {
		_ = mw.WriteField("content_type", contentType)
	}
	if err := mw.Close(); err != nil {
		return Object{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/upload", &buf)
	if err != nil {
		return Object{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return Object{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Object{}, fmt.Errorf("file store returned %d", resp.StatusCode)
	}

	var obj Object
	if err := json.NewDecoder(resp.Body).Decode(&obj); err != nil {
		return Object{}, err
	}
	if obj.PublicID == "" || obj.URL == "" {
		return Object{}, errors.New("file store returned incomplete object")
	}
	return obj, nil
}

func (s *HTTPStore) Delete(ctx context.Context, publicID string) error {
	if s.baseURL == "" {
		return ErrNotConfigured
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.baseURL+"/assets/"+publicID, nil)
	if err != nil {
		return err
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
		return fmt.Errorf("file store returned %d", resp.StatusCode)
	}
	return nil
}

// NoopStore rejects uploads. Quotation file upload needs a real store; task
// attachment cleanup treats the error as best-effort.
type NoopStore struct{}

func (NoopStore) Upload(context.Context, string, string, []byte) (Object, error) {
	return Object{}, ErrNotConfigured
}

func (NoopStore) Delete(context.Context, string) error {
	return ErrNotConfigured
}
