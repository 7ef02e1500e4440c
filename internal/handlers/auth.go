package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/buildrite/siteops/internal/model"
	"github.com/buildrite/siteops/internal/workflow"
	"github.com/buildrite/siteops/libs/auth"
)

type callerKey struct{}

func callerFrom(r *http.Request) workflow.Caller {
	c, _ := r.Context().Value(callerKey{}).(workflow.Caller)
	return c
}

// CalendarTokenStore persists the caller's calendar OAuth credentials.
type CalendarTokenStore interface {
	SetCalendarTokens(ctx context.Context, id, accessToken, refreshToken string, expiry *time.Time) error
}

type AuthHandler struct {
	users     workflow.UserStore
	calendars CalendarTokenStore
	secret    string
	tokenTTL  time.Duration
}

func NewAuthHandler(users workflow.UserStore, calendars CalendarTokenStore, secret string, tokenTTL time.Duration) *AuthHandler {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &AuthHandler{users: users, calendars: calendars, secret: secret, tokenTTL: tokenTTL}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string            `json:"token"`
	User  model.UserSummary `json:"user"`
	Admin bool              `json:"admin"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeMessage(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := h.users.GetByEmail(r.Context(), req.Email)
	if err != nil {
		// Same response for unknown email and bad password.
		writeMessage(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		writeMessage(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	now := time.Now()
	token, err := auth.SignHS256(auth.Claims{
		Sub:   user.ID,
		Email: user.Email,
		Name:  user.Name,
		Admin: user.IsAdmin,
		Iat:   now.Unix(),
		Exp:   now.Add(h.tokenTTL).Unix(),
	}, h.secret)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{Token: token, User: user.Summary(), Admin: user.IsAdmin})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	user, err := h.users.GetByID(r.Context(), caller.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":  user.Summary(),
		"admin": user.IsAdmin,
	})
}

type calendarTokensRequest struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	Expiry       *time.Time `json:"expiry,omitempty"`
}

// SaveCalendarTokens stores the caller's calendar OAuth tokens so confirmed
// appointments can be synced to their calendar.
func (h *AuthHandler) SaveCalendarTokens(w http.ResponseWriter, r *http.Request) {
	var req calendarTokensRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.AccessToken) == "" {
		writeMessage(w, http.StatusBadRequest, "access_token is required")
		return
	}

	caller := callerFrom(r)
	if err := h.calendars.SetCalendarTokens(r.Context(), caller.ID, req.AccessToken, req.RefreshToken, req.Expiry); err != nil {
		writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "calendar tokens saved")
}

// RequireAuth rejects requests without a valid bearer token and stores the
// caller identity for downstream handlers.
func RequireAuth(secret string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeMessage(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := auth.ParseAndVerifyHS256(token, secret)
		if err != nil {
			writeMessage(w, http.StatusUnauthorized, "invalid token")
			return
		}
		caller := workflow.Caller{ID: claims.Sub, Email: claims.Email, Admin: claims.Admin}
		next(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, caller)))
	}
}

// RequireAdmin additionally rejects non-admin callers.
func RequireAdmin(secret string, next http.HandlerFunc) http.HandlerFunc {
	return RequireAuth(secret, func(w http.ResponseWriter, r *http.Request) {
		if !callerFrom(r).Admin {
			writeMessage(w, http.StatusForbidden, "admin access required")
			return
		}
		next(w, r)
	})
}
