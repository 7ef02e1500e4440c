package handlers

import (
	"net/http"
	"time"

	"github.com/buildrite/siteops/internal/workflow"
)

type AppointmentHandler struct {
	svc *workflow.Appointments
}

func NewAppointmentHandler(svc *workflow.Appointments) *AppointmentHandler {
	return &AppointmentHandler{svc: svc}
}

type submitAppointmentRequest struct {
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Phone       string     `json:"phone"`
	SiteAddress string     `json:"site_address"`
	PreferredAt time.Time  `json:"preferred_at"`
	AlternateAt *time.Time `json:"alternate_at,omitempty"`
	Notes       string     `json:"notes,omitempty"`
}

func (h *AppointmentHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitAppointmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.svc.Submit(r.Context(), workflow.SubmitAppointmentInput{
		Name:        req.Name,
		Email:       req.Email,
		Phone:       req.Phone,
		SiteAddress: req.SiteAddress,
		PreferredAt: req.PreferredAt,
		AlternateAt: req.AlternateAt,
		Notes:       req.Notes,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message":     res.Message,
		"appointment": res.Appointment,
	})
}

func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	details, err := h.svc.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": details})
}

func (h *AppointmentHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	appts, err := h.svc.ListMine(r.Context(), callerFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": appts})
}

func (h *AppointmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	appt, err := h.svc.Get(r.Context(), r.PathValue("id"), callerFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointment": appt})
}

type updateAppointmentStatusRequest struct {
	Status              string  `json:"status"`
	Notes               *string `json:"notes,omitempty"`
	CalendarAccessToken string  `json:"calendar_access_token,omitempty"`
}

func (h *AppointmentHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateAppointmentStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	appt, err := h.svc.UpdateStatus(r.Context(), r.PathValue("id"), workflow.UpdateAppointmentStatusInput{
		Status:              req.Status,
		Notes:               req.Notes,
		CalendarAccessToken: req.CalendarAccessToken,
	}, callerFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointment": appt})
}

func (h *AppointmentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "appointment deleted")
}
