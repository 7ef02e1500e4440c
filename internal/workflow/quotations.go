package workflow

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/buildrite/siteops/internal/files"
	"github.com/buildrite/siteops/internal/model"
)

// Quotations prices work against an appointment and walks the document
// through draft -> sent -> accepted/rejected. Creating one provisions a
// client account from the appointment contact details when none exists.
type Quotations struct {
	store        QuotationStore
	appointments AppointmentRef
	users        UserStore
	files        files.Store
	notify       *notifier
	events       Events
	logger       *slog.Logger
	opsInbox     string
	now          func() time.Time
}

func NewQuotations(store QuotationStore, appointments AppointmentRef, users UserStore, gw Gateways, events Events, logger *slog.Logger, opsInbox string) *Quotations {
	now := func() time.Time { return time.Now().UTC() }
	return &Quotations{
		store:        store,
		appointments: appointments,
		users:        users,
		files:        gw.Files,
		notify:       newNotifier(gw, logger, now),
		events:       events,
		logger:       logger,
		opsInbox:     opsInbox,
		now:          now,
	}
}

type CreateQuotationInput struct {
	AppointmentID string
	ClientID      string
	ValidUntil    time.Time
	Items         []model.QuotationItem
	Subtotal      float64
	TaxRate       float64
	TaxAmount     float64
	DiscountRate  float64
	DiscountAmount float64
	Total         float64
	Notes         string
	Terms         string
}

// Create builds a draft quotation against an existing appointment and points
// the appointment back at it.
func (s *Quotations) Create(ctx context.Context, in CreateQuotationInput, caller Caller) (model.Quotation, error) {
	in.AppointmentID = strings.TrimSpace(in.AppointmentID)
	if in.AppointmentID == "" {
		return model.Quotation{}, Validationf("appointment_id is required")
	}
	if len(in.Items) == 0 {
		return model.Quotation{}, Validationf("at least one item is required")
	}

	appt, err := s.appointments.Get(ctx, in.AppointmentID)
	if err != nil {
		return model.Quotation{}, err
	}

	clientID, err := s.resolveClient(ctx, in.ClientID, appt)
	if err != nil {
		return model.Quotation{}, err
	}

	now := s.now()
	seq, err := s.store.NextSequence(ctx, now.Year(), now.Month())
	if err != nil {
		return model.Quotation{}, fmt.Errorf("next quotation sequence: %w", err)
	}

	q := &model.Quotation{
		ID:             uuid.NewString(),
		Number:         fmt.Sprintf("Q%02d%02d-%03d", now.Year()%100, int(now.Month()), seq),
		AppointmentID:  appt.ID,
		ClientID:       clientID,
		ValidUntil:     in.ValidUntil,
		Items:          in.Items,
		Subtotal:       in.Subtotal,
		TaxRate:        in.TaxRate,
		TaxAmount:      in.TaxAmount,
		DiscountRate:   in.DiscountRate,
		DiscountAmount: in.DiscountAmount,
		Total:          in.Total,
		Notes:          in.Notes,
		Terms:          in.Terms,
		Status:         model.QuotationDraft,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Create(ctx, q); err != nil {
		return model.Quotation{}, fmt.Errorf("create quotation: %w", err)
	}

	if err := s.appointments.SetQuotationRef(ctx, appt.ID, q.ID); err != nil {
		return model.Quotation{}, fmt.Errorf("link quotation to appointment: %w", err)
	}

	s.events.Record(ctx, "quotation", q.ID, "quotation.created.v1", map[string]any{
		"quotation_id":   q.ID,
		"number":         q.Number,
		"appointment_id": appt.ID,
		"client_id":      clientID,
		"total":          q.Total,
	})
	return *q, nil
}

// resolveClient returns the id of the quotation's client account, creating
// one from the appointment contact details when no match exists.
func (s *Quotations) resolveClient(ctx context.Context, clientID string, appt model.Appointment) (string, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID != "" {
		if _, err := s.users.GetByID(ctx, clientID); err != nil {
			if IsNotFound(err) {
				return "", Validationf("client %s does not exist", clientID)
			}
			return "", fmt.Errorf("lookup client: %w", err)
		}
		return clientID, nil
	}

	if user, err := s.users.GetByEmail(ctx, appt.Email); err == nil {
		return user.ID, nil
	} else if !IsNotFound(err) {
		return "", fmt.Errorf("lookup client by email: %w", err)
	}

	tempPassword, err := generatePassword()
	if err != nil {
		return "", fmt.Errorf("generate temporary password: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(tempPassword), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash temporary password: %w", err)
	}

	now := s.now()
	user := &model.User{
		ID:           uuid.NewString(),
		Name:         appt.Name,
		Email:        appt.Email,
		Phone:        appt.Phone,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return "", fmt.Errorf("create client account: %w", err)
	}

	s.notify.sendEmail(ctx, user.Email,
		"Your account is ready",
		fmt.Sprintf("Hi %s,\n\nAn account was created so you can review your quotation online.\nEmail: %s\nTemporary password: %s\n\nPlease change it after signing in.\n",
			user.Name, user.Email, tempPassword),
		"user", user.ID)

	return user.ID, nil
}

func generatePassword() (string, error) {
	var b [12]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b[:]), nil
}

type FileUpload struct {
	Name        string
	ContentType string
	Data        []byte
}

// UploadFile replaces any previously stored document. A draft quotation
// advances to sent on its first successful upload, and the client is told
// their quotation is ready.
func (s *Quotations) UploadFile(ctx context.Context, id string, in FileUpload) (model.Quotation, error) {
	if len(in.Data) == 0 {
		return model.Quotation{}, Validationf("file is required")
	}

	q, err := s.store.Get(ctx, id)
	if err != nil {
		return model.Quotation{}, err
	}

	if q.FilePublicID != "" {
		delCtx, cancel := context.WithTimeout(ctx, outboundTimeout)
		if err := s.files.Delete(delCtx, q.FilePublicID); err != nil {
			s.logger.Warn("previous quotation file delete failed", "quotation_id", q.ID, "public_id", q.FilePublicID, "err", err)
		}
		cancel()
	}

	upCtx, cancel := context.WithTimeout(ctx, 3*outboundTimeout)
	obj, err := s.files.Upload(upCtx, in.Name, in.ContentType, in.Data)
	cancel()
	if err != nil {
		return model.Quotation{}, fmt.Errorf("upload quotation file: %w", err)
	}

	q.FileURL = obj.URL
	q.FilePublicID = obj.PublicID
	transitioned := q.Status == model.QuotationDraft
	if transitioned {
		q.Status = model.QuotationSent
	}
	q.UpdatedAt = s.now()
	if err := s.store.Update(ctx, &q); err != nil {
		return model.Quotation{}, fmt.Errorf("update quotation: %w", err)
	}

	if client, err := s.users.GetByID(ctx, q.ClientID); err == nil {
		s.notify.sendEmail(ctx, client.Email,
			"Your quotation is ready",
			fmt.Sprintf("Hi %s,\n\nQuotation %s is ready for review: %s\n", client.Name, q.Number, q.FileURL),
			"quotation", q.ID)
	}

	eventType := "quotation.file.uploaded.v1"
	if transitioned {
		eventType = "quotation.sent.v1"
	}
	s.events.Record(ctx, "quotation", q.ID, eventType, map[string]any{
		"quotation_id": q.ID,
		"number":       q.Number,
		"status":       q.Status,
		"file_url":     q.FileURL,
	})
	return q, nil
}

type QuotationDetail struct {
	Quotation model.Quotation
	Client    *model.UserSummary
}

// Get authorizes admins and the linked client. The first client view stamps
// clientViewed once; later views leave the timestamp alone.
func (s *Quotations) Get(ctx context.Context, id string, caller Caller) (QuotationDetail, error) {
	q, err := s.store.Get(ctx, id)
	if err != nil {
		return QuotationDetail{}, err
	}
	if !caller.Admin && q.ClientID != caller.ID {
		return QuotationDetail{}, ErrForbidden
	}

	if !caller.Admin && !q.ClientViewed {
		now := s.now()
		q.ClientViewed = true
		q.ClientViewedAt = &now
		q.UpdatedAt = now
		if err := s.store.Update(ctx, &q); err != nil {
			s.logger.Warn("client view stamp failed", "quotation_id", q.ID, "err", err)
		}
	}

	d := QuotationDetail{Quotation: q}
	if client, err := s.users.GetByID(ctx, q.ClientID); err == nil {
		sum := client.Summary()
		d.Client = &sum
	}
	return d, nil
}

type UpdateQuotationFieldsInput struct {
	ValidUntil     *time.Time
	Items          *[]model.QuotationItem
	Subtotal       *float64
	TaxRate        *float64
	TaxAmount      *float64
	DiscountRate   *float64
	DiscountAmount *float64
	Total          *float64
	Notes          *string
	Terms          *string
}

// UpdateFields overwrites the supplied fields as-is. Totals are taken on
// trust; the admin UI computes them before submitting.
func (s *Quotations) UpdateFields(ctx context.Context, id string, in UpdateQuotationFieldsInput) (model.Quotation, error) {
	q, err := s.store.Get(ctx, id)
	if err != nil {
		return model.Quotation{}, err
	}

	if in.ValidUntil != nil {
		q.ValidUntil = *in.ValidUntil
	}
	if in.Items != nil {
		if len(*in.Items) == 0 {
			return model.Quotation{}, Validationf("at least one item is required")
		}
		q.Items = *in.Items
	}
	if in.Subtotal != nil {
		q.Subtotal = *in.Subtotal
	}
	if in.TaxRate != nil {
		q.TaxRate = *in.TaxRate
	}
	if in.TaxAmount != nil {
		q.TaxAmount = *in.TaxAmount
	}
	if in.DiscountRate != nil {
		q.DiscountRate = *in.DiscountRate
	}
	if in.DiscountAmount != nil {
		q.DiscountAmount = *in.DiscountAmount
	}
	if in.Total != nil {
		q.Total = *in.Total
	}
	if in.Notes != nil {
		q.Notes = *in.Notes
	}
	if in.Terms != nil {
		q.Terms = *in.Terms
	}

	q.UpdatedAt = s.now()
	if err := s.store.Update(ctx, &q); err != nil {
		return model.Quotation{}, fmt.Errorf("update quotation: %w", err)
	}
	return q, nil
}

// UpdateStatus lets admins set any valid status. A client may only decide a
// quotation that was sent to them, and only to accepted or rejected.
func (s *Quotations) UpdateStatus(ctx context.Context, id string, target string, caller Caller) (model.Quotation, error) {
	if !model.ValidQuotationStatus(target) {
		return model.Quotation{}, Validationf("invalid status %q", target)
	}

	q, err := s.store.Get(ctx, id)
	if err != nil {
		return model.Quotation{}, err
	}

	clientDecision := false
	if !caller.Admin {
		if target != model.QuotationAccepted && target != model.QuotationRejected {
			return model.Quotation{}, Validationf("clients may only accept or reject a quotation")
		}
		if q.ClientID != caller.ID {
			return model.Quotation{}, ErrForbidden
		}
		if q.Status != model.QuotationSent {
			return model.Quotation{}, Validationf("quotation is not awaiting a decision")
		}
		clientDecision = true
	}

	q.Status = target
	q.UpdatedAt = s.now()
	if err := s.store.Update(ctx, &q); err != nil {
		return model.Quotation{}, fmt.Errorf("update quotation: %w", err)
	}

	if clientDecision {
		s.notify.sendEmail(ctx, s.opsInbox,
			fmt.Sprintf("Quotation %s %s", q.Number, target),
			fmt.Sprintf("The client has %s quotation %s (total %.2f).", target, q.Number, q.Total),
			"quotation", q.ID)
		s.events.Record(ctx, "quotation", q.ID, "quotation.decided.v1", map[string]any{
			"quotation_id": q.ID,
			"number":       q.Number,
			"status":       q.Status,
		})
	} else {
		s.events.Record(ctx, "quotation", q.ID, "quotation.status.updated.v1", map[string]any{
			"quotation_id": q.ID,
			"status":       q.Status,
		})
	}
	return q, nil
}

// Delete removes the stored file, clears the appointment's back-reference and
// deletes the record.
func (s *Quotations) Delete(ctx context.Context, id string) error {
	q, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}

	if q.FilePublicID != "" {
		delCtx, cancel := context.WithTimeout(ctx, outboundTimeout)
		if err := s.files.Delete(delCtx, q.FilePublicID); err != nil {
			s.logger.Warn("quotation file delete failed", "quotation_id", q.ID, "public_id", q.FilePublicID, "err", err)
		}
		cancel()
	}

	if q.AppointmentID != "" {
		if err := s.appointments.SetQuotationRef(ctx, q.AppointmentID, ""); err != nil {
			return fmt.Errorf("clear appointment quotation reference: %w", err)
		}
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete quotation: %w", err)
	}
	s.events.Record(ctx, "quotation", id, "quotation.deleted.v1", map[string]any{
		"quotation_id": id,
	})
	return nil
}

func (s *Quotations) List(ctx context.Context) ([]QuotationDetail, error) {
	quotes, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list quotations: %w", err)
	}
	out := make([]QuotationDetail, 0, len(quotes))
	for _, q := range quotes {
		d := QuotationDetail{Quotation: q}
		if client, err := s.users.GetByID(ctx, q.ClientID); err == nil {
			sum := client.Summary()
			d.Client = &sum
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *Quotations) ListMine(ctx context.Context, caller Caller) ([]model.Quotation, error) {
	return s.store.ListByClient(ctx, caller.ID)
}
