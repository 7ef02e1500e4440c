package model

import "time"

const (
	TaskPending    = "pending"
	TaskInProgress = "in-progress"
	TaskCompleted  = "completed"
	TaskCancelled  = "cancelled"
)

const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

const (
	SMSStatusSent    = "sent"
	SMSStatusPartial = "partial"
)

type Attachment struct {
	URL      string `json:"url"`
	PublicID string `json:"public_id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
}

// Task is a unit of site work assigned to employees. AssignedEmployees is the
// authoritative assignment set; the per-employee task lists exposed by the API
// are derived from it at read time, never stored.
type Task struct {
	ID          string
	Title       string
	Description string
	SiteName    string
	SiteAddress string

	StartDate time.Time
	StartTime string
	EndDate   *time.Time
	EndTime   string

	Status   string
	Priority string
	Notes    string

	AssignedEmployees []string
	ClientID          string
	AppointmentID     string
	QuotationID       string
	CreatedBy         string

	Attachments []Attachment

	SMSSent   bool
	SMSSentAt *time.Time
	SMSStatus string

	CompletedAt *time.Time
	CompletedBy string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func ValidTaskStatus(s string) bool {
	switch s {
	case TaskPending, TaskInProgress, TaskCompleted, TaskCancelled:
		return true
	}
	return false
}

func ValidTaskPriority(s string) bool {
	switch s {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}
