package handlers

import (
	"net/http"
	"time"

	"github.com/buildrite/siteops/internal/workflow"
)

type TaskHandler struct {
	svc *workflow.Tasks
}

func NewTaskHandler(svc *workflow.Tasks) *TaskHandler {
	return &TaskHandler{svc: svc}
}

type createTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	SiteName    string `json:"site_name,omitempty"`
	SiteAddress string `json:"site_address,omitempty"`

	StartDate time.Time  `json:"start_date"`
	StartTime string     `json:"start_time,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
	EndTime   string     `json:"end_time,omitempty"`

	Priority string `json:"priority,omitempty"`
	Notes    string `json:"notes,omitempty"`

	AssignedEmployees []string `json:"assigned_employees,omitempty"`
	ClientID          string   `json:"client_id,omitempty"`
	AppointmentID     string   `json:"appointment_id,omitempty"`
	QuotationID       string   `json:"quotation_id,omitempty"`

	SendSMS bool `json:"send_sms,omitempty"`
}

func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	task, err := h.svc.Create(r.Context(), workflow.CreateTaskInput{
		Title:             req.Title,
		Description:       req.Description,
		SiteName:          req.SiteName,
		SiteAddress:       req.SiteAddress,
		StartDate:         req.StartDate,
		StartTime:         req.StartTime,
		EndDate:           req.EndDate,
		EndTime:           req.EndTime,
		Priority:          req.Priority,
		Notes:             req.Notes,
		AssignedEmployees: req.AssignedEmployees,
		ClientID:          req.ClientID,
		AppointmentID:     req.AppointmentID,
		QuotationID:       req.QuotationID,
		SendSMS:           req.SendSMS,
	}, callerFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"task": task})
}

type updateTaskRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	SiteName    *string `json:"site_name,omitempty"`
	SiteAddress *string `json:"site_address,omitempty"`

	StartDate *time.Time `json:"start_date,omitempty"`
	StartTime *string    `json:"start_time,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
	EndTime   *string    `json:"end_time,omitempty"`

	Status   *string `json:"status,omitempty"`
	Priority *string `json:"priority,omitempty"`
	Notes    *string `json:"notes,omitempty"`

	AssignedEmployees *[]string `json:"assigned_employees,omitempty"`
	SendSMS           bool      `json:"send_sms,omitempty"`
}

func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	task, err := h.svc.Update(r.Context(), r.PathValue("id"), workflow.UpdateTaskInput{
		Title:             req.Title,
		Description:       req.Description,
		SiteName:          req.SiteName,
		SiteAddress:       req.SiteAddress,
		StartDate:         req.StartDate,
		StartTime:         req.StartTime,
		EndDate:           req.EndDate,
		EndTime:           req.EndTime,
		Status:            req.Status,
		Priority:          req.Priority,
		Notes:             req.Notes,
		AssignedEmployees: req.AssignedEmployees,
		SendSMS:           req.SendSMS,
	}, callerFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task": task})
}

type assignTaskRequest struct {
	EmployeeIDs []string `json:"employee_ids"`
	SendSMS     bool     `json:"send_sms,omitempty"`
}

func (h *TaskHandler) Assign(w http.ResponseWriter, r *http.Request) {
	var req assignTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	task, err := h.svc.Assign(r.Context(), r.PathValue("id"), req.EmployeeIDs, req.SendSMS, callerFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task": task})
}

func (h *TaskHandler) SendReminder(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.SendReminder(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sent":       res.Sent,
		"failed":     res.Failed,
		"sms_status": res.SMSStatus,
	})
}

func (h *TaskHandler) Complete(w http.ResponseWriter, r *http.Request) {
	task, err := h.svc.Complete(r.Context(), r.PathValue("id"), callerFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task": task})
}

func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	task, err := h.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task": task})
}

func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "task deleted")
}

func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.svc.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (h *TaskHandler) ListByEmployee(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.svc.ListByEmployee(r.Context(), r.PathValue("employeeID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (h *TaskHandler) ListByClient(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.svc.ListByClient(r.Context(), r.PathValue("clientID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (h *TaskHandler) ListByStatus(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.svc.ListByStatus(r.Context(), r.PathValue("status"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

// Schedule lists tasks starting inside a date window. Dates are in
// YYYY-MM-DD form; an absent end defaults to a week after start.
func (h *TaskHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	startRaw := r.URL.Query().Get("start")
	start, err := time.Parse("2006-01-02", startRaw)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "start must be a YYYY-MM-DD date")
		return
	}

	var end *time.Time
	if endRaw := r.URL.Query().Get("end"); endRaw != "" {
		parsed, err := time.Parse("2006-01-02", endRaw)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "end must be a YYYY-MM-DD date")
			return
		}
		end = &parsed
	}

	tasks, err := h.svc.ListByDateRange(r.Context(), start, end)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (h *TaskHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Statistics(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":                stats.Total,
		"by_status":            stats.ByStatus,
		"by_priority":          stats.ByPriority,
		"completed_this_month": stats.CompletedThisMonth,
		"completion_rate":      stats.CompletionRate,
	})
}
