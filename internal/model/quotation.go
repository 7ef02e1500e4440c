package model

import "time"

const (
	QuotationDraft    = "draft"
	QuotationSent     = "sent"
	QuotationAccepted = "accepted"
	QuotationRejected = "rejected"
	QuotationExpired  = "expired"
)

type QuotationItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Amount      float64 `json:"amount"`
}

// Quotation is priced against exactly one appointment. Number is a
// human-readable monthly sequence code (Q2608-004). ClientID always resolves
// to a user account; one is provisioned from the appointment contact details
// when none exists.
type Quotation struct {
	ID            string
	Number        string
	AppointmentID string
	ClientID      string

	ValidUntil time.Time
	Items      []QuotationItem

	Subtotal       float64
	TaxRate        float64
	TaxAmount      float64
	DiscountRate   float64
	DiscountAmount float64
	Total          float64

	Notes string
	Terms string

	Status       string
	FileURL      string
	FilePublicID string

	ClientViewed   bool
	ClientViewedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func ValidQuotationStatus(s string) bool {
	switch s {
	case QuotationDraft, QuotationSent, QuotationAccepted, QuotationRejected, QuotationExpired:
		return true
	}
	return false
}
