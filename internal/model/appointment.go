package model

import "time"

const (
	AppointmentPending   = "pending"
	AppointmentConfirmed = "confirmed"
	AppointmentCompleted = "completed"
	AppointmentCancelled = "cancelled"
)

// Appointment is a site-visit request submitted by a prospective client.
// UserID is set when the contact email matches a registered user at submit
// time. QuotationID is a back-reference maintained by the quotation workflow.
type Appointment struct {
	ID          string
	UserID      string
	Name        string
	Email       string
	Phone       string
	SiteAddress string

	PreferredAt time.Time
	AlternateAt *time.Time

	Status string
	Notes  string

	ConfirmedBy string
	ConfirmedAt *time.Time

	CalendarEventID   string
	CalendarEventLink string

	QuotationID string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func ValidAppointmentStatus(s string) bool {
	switch s {
	case AppointmentPending, AppointmentConfirmed, AppointmentCompleted, AppointmentCancelled:
		return true
	}
	return false
}
