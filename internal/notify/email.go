package notify

import (
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"
)

type EmailSender interface {
	Send(to string, subject string, body string) error
}

// sendTimeout bounds the whole SMTP exchange, dial included. A stuck relay
// must not hold a workflow open.
const sendTimeout = 10 * time.Second

// SMTPSender sends email via unauthenticated SMTP (Mailpit-compatible in dev,
// a local relay in production).
type SMTPSender struct {
	addr string
	from string
}

func NewSMTPSender(host string, port string, from string) *SMTPSender {
	host = strings.TrimSpace(host)
	port = strings.TrimSpace(port)
	from = strings.TrimSpace(from)
	if from == "" {
		from = "no-reply@siteops.local"
	}
	return &SMTPSender{
		addr: fmt.Sprintf("%s:%s", host, port),
		from: from,
	}
}

func (s *SMTPSender) Send(to string, subject string, body string) error {
	conn, err := net.DialTimeout("tcp", s.addr, sendTimeout)
	if err != nil {
		return fmt.Errorf("smtp dial %s: %w", s.addr, err)
	}
	defer conn.Close()
	if err := conn.SetDeadline(time.Now().Add(sendTimeout)); err != nil {
		return fmt.Errorf("smtp deadline: %w", err)
	}

	host, _, err := net.SplitHostPort(s.addr)
	if err != nil {
		host = s.addr
	}
	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return fmt.Errorf("smtp handshake %s: %w", s.addr, err)
	}
	defer client.Close()

	if err := client.Mail(s.from); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write([]byte(buildMessage(s.from, to, subject, body))); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close data: %w", err)
	}
	return client.Quit()
}

func buildMessage(from, to, subject, body string) string {
	// Minimal RFC 5322 message; enough for Mailpit and most SMTP relays.
	return fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		from,
		to,
		subject,
		body,
	)
}

// NoopEmailSender accepts every message without delivering it. Used in tests
// and local setups without an SMTP relay.
type NoopEmailSender struct{}

func (NoopEmailSender) Send(string, string, string) error { return nil }
