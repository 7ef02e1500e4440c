package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/buildrite/siteops/internal/calendar"
	"github.com/buildrite/siteops/internal/model"
)

// Appointments moves site-visit requests through
// pending -> confirmed -> completed/cancelled and triggers the confirmation
// side effects (calendar sync, emails). The persisted status change always
// succeeds or fails on its own; gateway outcomes never decide it.
type Appointments struct {
	store      AppointmentStore
	users      UserStore
	quotations QuotationSource
	calendar   calendar.Client
	notify     *notifier
	events     Events
	logger     *slog.Logger
	opsInbox   string
	now        func() time.Time
}

func NewAppointments(store AppointmentStore, users UserStore, quotations QuotationSource, gw Gateways, events Events, logger *slog.Logger, opsInbox string) *Appointments {
	now := func() time.Time { return time.Now().UTC() }
	return &Appointments{
		store:      store,
		users:      users,
		quotations: quotations,
		calendar:   gw.Calendar,
		notify:     newNotifier(gw, logger, now),
		events:     events,
		logger:     logger,
		opsInbox:   opsInbox,
		now:        now,
	}
}

type SubmitAppointmentInput struct {
	Name        string
	Email       string
	Phone       string
	SiteAddress string
	PreferredAt time.Time
	AlternateAt *time.Time
	Notes       string
}

type SubmitAppointmentResult struct {
	Appointment model.Appointment
	Message     string
}

// Submit records a public booking request. When the contact email belongs to a
// registered user the appointment is linked to that account.
func (s *Appointments) Submit(ctx context.Context, in SubmitAppointmentInput) (SubmitAppointmentResult, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Phone = strings.TrimSpace(in.Phone)
	in.SiteAddress = strings.TrimSpace(in.SiteAddress)

	if in.Name == "" || in.Email == "" || in.Phone == "" || in.SiteAddress == "" {
		return SubmitAppointmentResult{}, Validationf("name, email, phone and site_address are required")
	}
	if in.PreferredAt.IsZero() {
		return SubmitAppointmentResult{}, Validationf("preferred_at is required")
	}

	now := s.now()
	appt := &model.Appointment{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Email:       in.Email,
		Phone:       in.Phone,
		SiteAddress: in.SiteAddress,
		PreferredAt: in.PreferredAt.UTC(),
		Status:      model.AppointmentPending,
		Notes:       in.Notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.AlternateAt != nil {
		alt := in.AlternateAt.UTC()
		appt.AlternateAt = &alt
	}

	if user, err := s.users.GetByEmail(ctx, in.Email); err == nil {
		appt.UserID = user.ID
	} else if !IsNotFound(err) {
		return SubmitAppointmentResult{}, fmt.Errorf("lookup user by email: %w", err)
	}

	if err := s.store.Create(ctx, appt); err != nil {
		return SubmitAppointmentResult{}, fmt.Errorf("create appointment: %w", err)
	}

	requesterNotified := s.notify.sendEmail(ctx, appt.Email,
		"We received your appointment request",
		fmt.Sprintf("Hi %s,\n\nThanks for your request. We will confirm a site visit at %s as soon as possible.\nRequested time: %s\n",
			appt.Name, appt.SiteAddress, appt.PreferredAt.Format(time.RFC1123)),
		"appointment", appt.ID)
	s.notify.sendEmail(ctx, s.opsInbox,
		"New appointment request",
		fmt.Sprintf("New request from %s (%s, %s) for %s at %s.",
			appt.Name, appt.Email, appt.Phone, appt.PreferredAt.Format(time.RFC1123), appt.SiteAddress),
		"appointment", appt.ID)

	s.events.Record(ctx, "appointment", appt.ID, "appointment.submitted.v1", map[string]any{
		"appointment_id": appt.ID,
		"email":          appt.Email,
		"preferred_at":   appt.PreferredAt.Format(time.RFC3339),
	})

	msg := "Appointment request received. A confirmation email has been sent."
	if !requesterNotified {
		msg = "Appointment request received, but the confirmation email could not be sent."
	}
	return SubmitAppointmentResult{Appointment: *appt, Message: msg}, nil
}

// QuotationSummary is the reduced quotation embedded in appointment listings.
type QuotationSummary struct {
	ID     string  `json:"id"`
	Number string  `json:"number"`
	Status string  `json:"status"`
	Total  float64 `json:"total"`
}

type AppointmentDetail struct {
	Appointment model.Appointment
	User        *model.UserSummary
	ConfirmedBy *model.UserSummary
	Quotation   *QuotationSummary
}

// List returns all appointments newest-first with owning user, confirming
// admin and quotation populated.
func (s *Appointments) List(ctx context.Context) ([]AppointmentDetail, error) {
	appts, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}

	out := make([]AppointmentDetail, 0, len(appts))
	for _, appt := range appts {
		out = append(out, s.detail(ctx, appt))
	}
	return out, nil
}

func (s *Appointments) detail(ctx context.Context, appt model.Appointment) AppointmentDetail {
	d := AppointmentDetail{Appointment: appt}
	if appt.UserID != "" {
		if u, err := s.users.GetByID(ctx, appt.UserID); err == nil {
			sum := u.Summary()
			d.User = &sum
		}
	}
	if appt.ConfirmedBy != "" {
		if u, err := s.users.GetByID(ctx, appt.ConfirmedBy); err == nil {
			sum := u.Summary()
			d.ConfirmedBy = &sum
		}
	}
	if appt.QuotationID != "" {
		if q, err := s.quotations.Get(ctx, appt.QuotationID); err == nil {
			d.Quotation = &QuotationSummary{ID: q.ID, Number: q.Number, Status: q.Status, Total: q.Total}
		}
	}
	return d
}

// Get authorizes admins, the owning user, and callers whose email matches the
// appointment contact email.
func (s *Appointments) Get(ctx context.Context, id string, caller Caller) (model.Appointment, error) {
	appt, err := s.store.Get(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if !caller.Admin &&
		(appt.UserID == "" || appt.UserID != caller.ID) &&
		!strings.EqualFold(appt.Email, caller.Email) {
		return model.Appointment{}, ErrForbidden
	}
	return appt, nil
}

// ListMine returns appointments linked to the caller's account or submitted
// under the caller's email.
func (s *Appointments) ListMine(ctx context.Context, caller Caller) ([]model.Appointment, error) {
	return s.store.ListForClient(ctx, caller.ID, caller.Email)
}

type UpdateAppointmentStatusInput struct {
	Status string
	Notes  *string
	// CalendarAccessToken overrides the owner's stored token for the
	// confirmation calendar sync.
	CalendarAccessToken string
}

// UpdateStatus applies a status change. Only the first transition into
// confirmed stamps the confirming admin, syncs the calendar and emails the
// requester; re-sending "confirmed" is a plain field write.
func (s *Appointments) UpdateStatus(ctx context.Context, id string, in UpdateAppointmentStatusInput, caller Caller) (model.Appointment, error) {
	if !model.ValidAppointmentStatus(in.Status) {
		return model.Appointment{}, Validationf("invalid status %q", in.Status)
	}

	appt, err := s.store.Get(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}

	newlyConfirmed := in.Status == model.AppointmentConfirmed && appt.Status != model.AppointmentConfirmed

	appt.Status = in.Status
	if in.Notes != nil {
		appt.Notes = *in.Notes
	}

	if newlyConfirmed {
		now := s.now()
		appt.ConfirmedBy = caller.ID
		appt.ConfirmedAt = &now
		s.syncCalendar(ctx, &appt, in.CalendarAccessToken)
	}

	appt.UpdatedAt = s.now()
	if err := s.store.Update(ctx, &appt); err != nil {
		return model.Appointment{}, fmt.Errorf("update appointment: %w", err)
	}

	if newlyConfirmed {
		s.notify.sendEmail(ctx, appt.Email,
			"Your appointment is confirmed",
			fmt.Sprintf("Hi %s,\n\nYour site visit at %s is confirmed for %s.\n",
				appt.Name, appt.SiteAddress, appt.PreferredAt.Format(time.RFC1123)),
			"appointment", appt.ID)
		s.events.Record(ctx, "appointment", appt.ID, "appointment.confirmed.v1", map[string]any{
			"appointment_id": appt.ID,
			"confirmed_by":   appt.ConfirmedBy,
			"preferred_at":   appt.PreferredAt.Format(time.RFC3339),
		})
	} else {
		s.events.Record(ctx, "appointment", appt.ID, "appointment.updated.v1", map[string]any{
			"appointment_id": appt.ID,
			"status":         appt.Status,
		})
	}

	return appt, nil
}

func (s *Appointments) syncCalendar(ctx context.Context, appt *model.Appointment, tokenOverride string) {
	token := strings.TrimSpace(tokenOverride)
	if token == "" && appt.UserID != "" {
		if owner, err := s.users.GetByID(ctx, appt.UserID); err == nil {
			token = owner.CalendarAccessToken
		}
	}
	if token == "" {
		return
	}

	calCtx, cancel := context.WithTimeout(ctx, outboundTimeout)
	defer cancel()

	ref, err := s.calendar.CreateEvent(calCtx, token, calendar.Event{
		Summary:     "Site visit: " + appt.Name,
		Description: appt.Notes,
		Location:    appt.SiteAddress,
		Start:       appt.PreferredAt,
		End:         appt.PreferredAt.Add(time.Hour),
	})
	if err != nil {
		s.logger.Warn("calendar sync failed", "appointment_id", appt.ID, "err", err)
		return
	}
	appt.CalendarEventID = ref.ID
	appt.CalendarEventLink = ref.Link
}

// Delete removes the appointment record. A linked quotation keeps its
// appointment reference; only quotation deletion clears the reverse pointer.
func (s *Appointments) Delete(ctx context.Context, id string) error {
	if _, err := s.store.Get(ctx, id); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	s.events.Record(ctx, "appointment", id, "appointment.deleted.v1", map[string]any{
		"appointment_id": id,
	})
	return nil
}
