package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/buildrite/siteops/internal/calendar"
	"github.com/buildrite/siteops/internal/files"
	"github.com/buildrite/siteops/internal/model"
	"github.com/buildrite/siteops/internal/notify"
	"github.com/buildrite/siteops/internal/workflow"
	"github.com/buildrite/siteops/libs/auth"
)

type stubTaskStore struct {
	byID map[string]model.Task
}

func (s *stubTaskStore) Create(_ context.Context, t *model.Task) error {
	s.byID[t.ID] = *t
	return nil
}

func (s *stubTaskStore) Get(_ context.Context, id string) (model.Task, error) {
	t, ok := s.byID[id]
	if !ok {
		return model.Task{}, workflow.ErrNotFound
	}
	return t, nil
}

func (s *stubTaskStore) Update(_ context.Context, t *model.Task) error {
	s.byID[t.ID] = *t
	return nil
}

func (s *stubTaskStore) Delete(_ context.Context, id string) error {
	delete(s.byID, id)
	return nil
}

func (s *stubTaskStore) List(context.Context) ([]model.Task, error) { return nil, nil }

func (s *stubTaskStore) ListByEmployee(context.Context, string) ([]model.Task, error) {
	return nil, nil
}

func (s *stubTaskStore) ListByClient(context.Context, string) ([]model.Task, error) {
	return nil, nil
}

func (s *stubTaskStore) ListByStatus(context.Context, string) ([]model.Task, error) {
	return nil, nil
}

func (s *stubTaskStore) ListByDateRange(context.Context, time.Time, time.Time) ([]model.Task, error) {
	return nil, nil
}

func (s *stubTaskStore) CountByStatus(context.Context) (map[string]int, error) { return nil, nil }

func (s *stubTaskStore) CountByPriority(context.Context) (map[string]int, error) { return nil, nil }

func (s *stubTaskStore) CountCompletedSince(context.Context, time.Time) (int, error) { return 0, nil }

type noopEvents struct{}

func (noopEvents) Record(context.Context, string, string, string, map[string]any) {}

func signedToken(t *testing.T, sub string, admin bool) string {
	t.Helper()
	now := time.Now()
	tok, err := auth.SignHS256(auth.Claims{
		Sub:   sub,
		Email: sub + "@buildrite.test",
		Admin: admin,
		Iat:   now.Unix(),
		Exp:   now.Add(time.Hour).Unix(),
	}, testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

// Completion is a client-visible route: any valid token may close a task,
// not just admins.
func TestCompleteTaskAllowsNonAdminCaller(t *testing.T) {
	store := &stubTaskStore{byID: map[string]model.Task{
		"t1": {ID: "t1", Title: "Pour footings", Status: model.TaskInProgress, StartDate: time.Now()},
	}}
	gw := workflow.Gateways{
		Email:    notify.NoopEmailSender{},
		SMS:      notify.NoopSMSSender{},
		Calendar: calendar.NoopClient{},
		Files:    files.NoopStore{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := workflow.NewTasks(store, &stubEmployees{}, gw, noopEvents{}, logger)

	mux := http.NewServeMux()
	Routes{
		Tasks:     NewTaskHandler(svc),
		JWTSecret: testSecret,
	}.Register(mux)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks/t1/complete", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "emp-7", false))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body = %s", rec.Code, rec.Body.String())
	}
	got := store.byID["t1"]
	if got.Status != model.TaskCompleted {
		t.Errorf("status = %q, want completed", got.Status)
	}
	if got.CompletedBy != "emp-7" {
		t.Errorf("completed_by = %q, want token subject", got.CompletedBy)
	}
	if got.CompletedAt == nil {
		t.Error("completed_at not stamped")
	}
}

func TestCompleteTaskRejectsMissingToken(t *testing.T) {
	store := &stubTaskStore{byID: map[string]model.Task{"t1": {ID: "t1", Title: "Pour footings"}}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := workflow.NewTasks(store, &stubEmployees{}, workflow.Gateways{}, noopEvents{}, logger)

	mux := http.NewServeMux()
	Routes{Tasks: NewTaskHandler(svc), JWTSecret: testSecret}.Register(mux)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks/t1/complete", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
