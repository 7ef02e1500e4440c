package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/buildrite/siteops/internal/model"
	"github.com/buildrite/siteops/internal/workflow"
)

type stubEmployees struct {
	byID        map[string]model.Employee
	createErr   error
	updateErr   error
	assignments map[string]int
	deleted     []string
}

func (s *stubEmployees) Get(ctx context.Context, id string) (model.Employee, error) {
	e, ok := s.byID[id]
	if !ok {
		return model.Employee{}, workflow.ErrNotFound
	}
	return e, nil
}

func (s *stubEmployees) ListByIDs(ctx context.Context, ids []string) ([]model.Employee, error) {
	var out []model.Employee
	for _, id := range ids {
		if e, ok := s.byID[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *stubEmployees) Create(ctx context.Context, e *model.Employee) error {
	if s.createErr != nil {
		return s.createErr
	}
	if s.byID == nil {
		s.byID = map[string]model.Employee{}
	}
	s.byID[e.ID] = *e
	return nil
}

func (s *stubEmployees) Update(ctx context.Context, e *model.Employee) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.byID[e.ID] = *e
	return nil
}

func (s *stubEmployees) Delete(ctx context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	delete(s.byID, id)
	return nil
}

func (s *stubEmployees) List(ctx context.Context) ([]model.Employee, error) {
	var out []model.Employee
	for _, e := range s.byID {
		out = append(out, e)
	}
	return out, nil
}

func (s *stubEmployees) AssignmentCount(ctx context.Context, id string) (int, error) {
	return s.assignments[id], nil
}

type stubTaskLister struct{ tasks []model.Task }

func (s stubTaskLister) ListByEmployee(ctx context.Context, employeeID string) ([]model.Task, error) {
	return s.tasks, nil
}

func TestCreateEmployeeDuplicatePhoneIsBadRequest(t *testing.T) {
	store := &stubEmployees{createErr: workflow.Validationf("phone number already in use")}
	h := NewEmployeeHandler(store, stubTaskLister{})

	body := strings.NewReader(`{"name":"Rui","role":"Constructor","phone":"+15550000001"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/employees", body)
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "phone number already in use") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestUpdateEmployeeDuplicatePhoneIsBadRequest(t *testing.T) {
	store := &stubEmployees{
		byID:      map[string]model.Employee{"e1": {ID: "e1", Name: "Rui", Role: model.RoleConstructor, Status: model.EmployeeActive}},
		updateErr: workflow.Validationf("phone number already in use"),
	}
	h := NewEmployeeHandler(store, stubTaskLister{})

	body := strings.NewReader(`{"name":"Rui","role":"Constructor","phone":"+15550000002"}`)
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/employees/e1", body)
	req.SetPathValue("id", "e1")
	rec := httptest.NewRecorder()
	h.Update(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestDeleteEmployeeWithAssignmentsIsConflict(t *testing.T) {
	store := &stubEmployees{
		byID:        map[string]model.Employee{"e1": {ID: "e1"}},
		assignments: map[string]int{"e1": 2},
	}
	h := NewEmployeeHandler(store, stubTaskLister{})

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/employees/e1", nil)
	req.SetPathValue("id", "e1")
	rec := httptest.NewRecorder()
	h.Delete(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if len(store.deleted) != 0 {
		t.Errorf("deleted = %v, want none", store.deleted)
	}
}
