package workflow

import (
	"context"
	"time"

	"github.com/buildrite/siteops/internal/calendar"
	"github.com/buildrite/siteops/internal/files"
	"github.com/buildrite/siteops/internal/model"
	"github.com/buildrite/siteops/internal/notify"
)

// Caller identifies the authenticated principal behind an operation.
// A zero Caller is an anonymous (public) request.
type Caller struct {
	ID    string
	Email string
	Admin bool
}

// Store contracts. The pgx repositories in internal/storage implement them;
// tests supply in-memory fakes. Stores return ErrNotFound for missing ids and
// must apply multi-row writes (task assignment rows, back-reference updates)
// atomically.

type AppointmentStore interface {
	Create(ctx context.Context, appt *model.Appointment) error
	Get(ctx context.Context, id string) (model.Appointment, error)
	Update(ctx context.Context, appt *model.Appointment) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]model.Appointment, error)
	ListForClient(ctx context.Context, userID, email string) ([]model.Appointment, error)
	// SetQuotationRef points the appointment at a quotation; an empty
	// quotationID clears the reference. A missing appointment is not an error.
	SetQuotationRef(ctx context.Context, appointmentID, quotationID string) error
}

type QuotationStore interface {
	Create(ctx context.Context, q *model.Quotation) error
	Get(ctx context.Context, id string) (model.Quotation, error)
	Update(ctx context.Context, q *model.Quotation) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]model.Quotation, error)
	ListByClient(ctx context.Context, clientID string) ([]model.Quotation, error)
	// NextSequence atomically increments and returns the per-month counter
	// behind human-readable quotation numbers.
	NextSequence(ctx context.Context, year int, month time.Month) (int, error)
}

type TaskStore interface {
	Create(ctx context.Context, t *model.Task) error
	Get(ctx context.Context, id string) (model.Task, error)
	Update(ctx context.Context, t *model.Task) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]model.Task, error)
	ListByEmployee(ctx context.Context, employeeID string) ([]model.Task, error)
	ListByClient(ctx context.Context, clientID string) ([]model.Task, error)
	ListByStatus(ctx context.Context, status string) ([]model.Task, error)
	ListByDateRange(ctx context.Context, start, end time.Time) ([]model.Task, error)
	CountByStatus(ctx context.Context) (map[string]int, error)
	CountByPriority(ctx context.Context) (map[string]int, error)
	CountCompletedSince(ctx context.Context, since time.Time) (int, error)
}

type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id string) (model.User, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
}

type EmployeeDirectory interface {
	Get(ctx context.Context, id string) (model.Employee, error)
	ListByIDs(ctx context.Context, ids []string) ([]model.Employee, error)
}

// Narrow views used across workflows.

type QuotationSource interface {
	Get(ctx context.Context, id string) (model.Quotation, error)
}

type AppointmentRef interface {
	Get(ctx context.Context, id string) (model.Appointment, error)
	SetQuotationRef(ctx context.Context, appointmentID, quotationID string) error
}

// NotificationLog records every outbound send attempt. Implementations must
// not fail the caller's operation; errors are logged by the workflow.
type NotificationLog interface {
	Record(ctx context.Context, rec notify.Record) error
}

// Events stages domain events for downstream consumers after the primary
// write. Implementations absorb their own failures.
type Events interface {
	Record(ctx context.Context, aggregateType, aggregateID, eventType string, payload map[string]any)
}

// Gateways bundles the external collaborators shared by the workflows.
type Gateways struct {
	Email    notify.EmailSender
	SMS      notify.SMSSender
	Calendar calendar.Client
	Files    files.Store
	Log      NotificationLog
}
