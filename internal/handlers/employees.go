package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/buildrite/siteops/internal/model"
	"github.com/buildrite/siteops/internal/workflow"
)

// EmployeeStore is the full directory surface; the workflow layer only sees
// the read side.
type EmployeeStore interface {
	workflow.EmployeeDirectory
	Create(ctx context.Context, e *model.Employee) error
	Update(ctx context.Context, e *model.Employee) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]model.Employee, error)
	AssignmentCount(ctx context.Context, id string) (int, error)
}

type TaskLister interface {
	ListByEmployee(ctx context.Context, employeeID string) ([]model.Task, error)
}

type EmployeeHandler struct {
	store EmployeeStore
	tasks TaskLister
}

func NewEmployeeHandler(store EmployeeStore, tasks TaskLister) *EmployeeHandler {
	return &EmployeeHandler{store: store, tasks: tasks}
}

type employeeRequest struct {
	Name      string `json:"name"`
	Role      string `json:"role"`
	Phone     string `json:"phone,omitempty"`
	Status    string `json:"status,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

func (req *employeeRequest) validate() (string, bool) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return "name is required", false
	}
	if !model.ValidEmployeeRole(req.Role) {
		return "invalid role", false
	}
	if req.Status == "" {
		req.Status = model.EmployeeActive
	}
	if !model.ValidEmployeeStatus(req.Status) {
		return "invalid status", false
	}
	return "", true
}

func (h *EmployeeHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req employeeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if msg, ok := req.validate(); !ok {
		writeMessage(w, http.StatusBadRequest, msg)
		return
	}

	now := time.Now().UTC()
	e := model.Employee{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Role:      req.Role,
		Phone:     req.Phone,
		Status:    req.Status,
		AvatarURL: req.AvatarURL,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.store.Create(r.Context(), &e); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"employee": e})
}

func (h *EmployeeHandler) Get(w http.ResponseWriter, r *http.Request) {
	e, err := h.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	tasks, err := h.tasks.ListByEmployee(r.Context(), e.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"employee": e,
		"tasks":    tasks,
	})
}

func (h *EmployeeHandler) Update(w http.ResponseWriter, r *http.Request) {
	e, err := h.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	var req employeeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if msg, ok := req.validate(); !ok {
		writeMessage(w, http.StatusBadRequest, msg)
		return
	}

	e.Name = req.Name
	e.Role = req.Role
	e.Phone = req.Phone
	e.Status = req.Status
	e.AvatarURL = req.AvatarURL
	e.UpdatedAt = time.Now().UTC()
	if err := h.store.Update(r.Context(), &e); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"employee": e})
}

// Delete refuses to remove an employee who still has tasks assigned.
func (h *EmployeeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	n, err := h.store.AssignmentCount(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if n > 0 {
		writeMessage(w, http.StatusConflict, "employee still has assigned tasks")
		return
	}
	if err := h.store.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "employee deleted")
}

func (h *EmployeeHandler) List(w http.ResponseWriter, r *http.Request) {
	employees, err := h.store.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"employees": employees})
}
