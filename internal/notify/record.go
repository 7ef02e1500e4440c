package notify

import "time"

const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// Record is one outbound notification attempt, persisted for operators to
// audit best-effort sends that never surface as request errors.
type Record struct {
	Channel   string
	Recipient string
	Subject   string
	Body      string
	Status    string
	Error     string
	RefType   string // appointment | quotation | task | user
	RefID     string
	CreatedAt time.Time
}
