package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/buildrite/siteops/internal/notify"
)

// Outbound gateway calls are bounded so a slow provider cannot hold a request
// open; the caller-visible outcome is unaffected either way.
const outboundTimeout = 5 * time.Second

// notifier wraps the email/SMS gateways with the best-effort contract: every
// attempt is logged and recorded, failures never propagate to the operation
// that triggered the send.
type notifier struct {
	email  notify.EmailSender
	sms    notify.SMSSender
	log    NotificationLog
	logger *slog.Logger
	now    func() time.Time
}

func newNotifier(gw Gateways, logger *slog.Logger, now func() time.Time) *notifier {
	return &notifier{
		email:  gw.Email,
		sms:    gw.SMS,
		log:    gw.Log,
		logger: logger,
		now:    now,
	}
}

// sendEmail reports whether the message was accepted by the gateway.
func (n *notifier) sendEmail(ctx context.Context, to, subject, body, refType, refID string) bool {
	if to == "" || n.email == nil {
		return false
	}
	err := n.email.Send(to, subject, body)
	if err != nil {
		n.logger.Warn("email send failed", "to", to, "subject", subject, "err", err)
	}
	n.record(ctx, notify.Record{
		Channel:   notify.ChannelEmail,
		Recipient: to,
		Subject:   subject,
		Body:      body,
		RefType:   refType,
		RefID:     refID,
	}, err)
	return err == nil
}

// sendSMS returns the gateway error so callers can aggregate per-recipient
// outcomes; it still never bubbles past the workflow layer.
func (n *notifier) sendSMS(ctx context.Context, to, body, refType, refID string) error {
	smsCtx, cancel := context.WithTimeout(ctx, outboundTimeout)
	defer cancel()

	err := n.sms.Send(smsCtx, to, body)
	if err != nil {
		n.logger.Warn("sms send failed", "to", to, "err", err)
	}
	n.record(ctx, notify.Record{
		Channel:   notify.ChannelSMS,
		Recipient: to,
		Body:      body,
		RefType:   refType,
		RefID:     refID,
	}, err)
	return err
}

func (n *notifier) record(ctx context.Context, rec notify.Record, sendErr error) {
	if n.log == nil {
		return
	}
	rec.Status = notify.StatusSent
	if sendErr != nil {
		rec.Status = notify.StatusFailed
		rec.Error = sendErr.Error()
	}
	rec.CreatedAt = n.now()
	if err := n.log.Record(ctx, rec); err != nil {
		n.logger.Warn("notification log write failed", "err", err)
	}
}
