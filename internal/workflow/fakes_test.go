package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/buildrite/siteops/internal/calendar"
	"github.com/buildrite/siteops/internal/files"
	"github.com/buildrite/siteops/internal/model"
	"github.com/buildrite/siteops/internal/notify"
)

// In-memory store and gateway fakes shared by the workflow tests.

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var fixedNow = time.Date(2026, time.August, 15, 10, 0, 0, 0, time.UTC)

type memAppointments struct {
	byID map[string]model.Appointment
}

func newMemAppointments() *memAppointments {
	return &memAppointments{byID: make(map[string]model.Appointment)}
}

func (m *memAppointments) Create(_ context.Context, appt *model.Appointment) error {
	m.byID[appt.ID] = *appt
	return nil
}

func (m *memAppointments) Get(_ context.Context, id string) (model.Appointment, error) {
	appt, ok := m.byID[id]
	if !ok {
		return model.Appointment{}, ErrNotFound
	}
	return appt, nil
}

func (m *memAppointments) Update(_ context.Context, appt *model.Appointment) error {
	if _, ok := m.byID[appt.ID]; !ok {
		return ErrNotFound
	}
	m.byID[appt.ID] = *appt
	return nil
}

func (m *memAppointments) Delete(_ context.Context, id string) error {
	if _, ok := m.byID[id]; !ok {
		return ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

func (m *memAppointments) List(_ context.Context) ([]model.Appointment, error) {
	out := make([]model.Appointment, 0, len(m.byID))
	for _, appt := range m.byID {
		out = append(out, appt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memAppointments) ListForClient(_ context.Context, userID, email string) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, appt := range m.byID {
		if (userID != "" && appt.UserID == userID) || strings.EqualFold(appt.Email, email) {
			out = append(out, appt)
		}
	}
	return out, nil
}

func (m *memAppointments) SetQuotationRef(_ context.Context, appointmentID, quotationID string) error {
	appt, ok := m.byID[appointmentID]
	if !ok {
		return nil
	}
	appt.QuotationID = quotationID
	m.byID[appointmentID] = appt
	return nil
}

type memQuotations struct {
	byID     map[string]model.Quotation
	counters map[string]int
}

func newMemQuotations() *memQuotations {
	return &memQuotations{
		byID:     make(map[string]model.Quotation),
		counters: make(map[string]int),
	}
}

func (m *memQuotations) Create(_ context.Context, q *model.Quotation) error {
	m.byID[q.ID] = *q
	return nil
}

func (m *memQuotations) Get(_ context.Context, id string) (model.Quotation, error) {
	q, ok := m.byID[id]
	if !ok {
		return model.Quotation{}, ErrNotFound
	}
	return q, nil
}

func (m *memQuotations) Update(_ context.Context, q *model.Quotation) error {
	if _, ok := m.byID[q.ID]; !ok {
		return ErrNotFound
	}
	m.byID[q.ID] = *q
	return nil
}

func (m *memQuotations) Delete(_ context.Context, id string) error {
	if _, ok := m.byID[id]; !ok {
		return ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

func (m *memQuotations) List(_ context.Context) ([]model.Quotation, error) {
	out := make([]model.Quotation, 0, len(m.byID))
	for _, q := range m.byID {
		out = append(out, q)
	}
	return out, nil
}

func (m *memQuotations) ListByClient(_ context.Context, clientID string) ([]model.Quotation, error) {
	var out []model.Quotation
	for _, q := range m.byID {
		if q.ClientID == clientID {
			out = append(out, q)
		}
	}
	return out, nil
}

func (m *memQuotations) NextSequence(_ context.Context, year int, month time.Month) (int, error) {
	key := fmt.Sprintf("%04d-%02d", year, month)
	m.counters[key]++
	return m.counters[key], nil
}

type memTasks struct {
	byID map[string]model.Task
}

func newMemTasks() *memTasks {
	return &memTasks{byID: make(map[string]model.Task)}
}

func (m *memTasks) Create(_ context.Context, t *model.Task) error {
	m.byID[t.ID] = *t
	return nil
}

func (m *memTasks) Get(_ context.Context, id string) (model.Task, error) {
	t, ok := m.byID[id]
	if !ok {
		return model.Task{}, ErrNotFound
	}
	return t, nil
}

func (m *memTasks) Update(_ context.Context, t *model.Task) error {
	if _, ok := m.byID[t.ID]; !ok {
		return ErrNotFound
	}
	m.byID[t.ID] = *t
	return nil
}

func (m *memTasks) Delete(_ context.Context, id string) error {
	if _, ok := m.byID[id]; !ok {
		return ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

func (m *memTasks) List(_ context.Context) ([]model.Task, error) {
	out := make([]model.Task, 0, len(m.byID))
	for _, t := range m.byID {
		out = append(out, t)
	}
	return out, nil
}

func (m *memTasks) ListByEmployee(_ context.Context, employeeID string) ([]model.Task, error) {
	var out []model.Task
	for _, t := range m.byID {
		for _, id := range t.AssignedEmployees {
			if id == employeeID {
				out = append(out, t)
				break
			}
		}
	}
	return out, nil
}

func (m *memTasks) ListByClient(_ context.Context, clientID string) ([]model.Task, error) {
	var out []model.Task
	for _, t := range m.byID {
		if t.ClientID == clientID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memTasks) ListByStatus(_ context.Context, status string) ([]model.Task, error) {
	var out []model.Task
	for _, t := range m.byID {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memTasks) ListByDateRange(_ context.Context, start, end time.Time) ([]model.Task, error) {
	var out []model.Task
	for _, t := range m.byID {
		if !t.StartDate.Before(start) && !t.StartDate.After(end) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memTasks) CountByStatus(_ context.Context) (map[string]int, error) {
	out := make(map[string]int)
	for _, t := range m.byID {
		out[t.Status]++
	}
	return out, nil
}

func (m *memTasks) CountByPriority(_ context.Context) (map[string]int, error) {
	out := make(map[string]int)
	for _, t := range m.byID {
		out[t.Priority]++
	}
	return out, nil
}

func (m *memTasks) CountCompletedSince(_ context.Context, since time.Time) (int, error) {
	n := 0
	for _, t := range m.byID {
		if t.Status == model.TaskCompleted && t.CompletedAt != nil && !t.CompletedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

type memUsers struct {
	byID map[string]model.User
}

func newMemUsers(users ...model.User) *memUsers {
	m := &memUsers{byID: make(map[string]model.User)}
	for _, u := range users {
		m.byID[u.ID] = u
	}
	return m
}

func (m *memUsers) Create(_ context.Context, u *model.User) error {
	m.byID[u.ID] = *u
	return nil
}

func (m *memUsers) GetByID(_ context.Context, id string) (model.User, error) {
	u, ok := m.byID[id]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return u, nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (model.User, error) {
	for _, u := range m.byID {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return model.User{}, ErrNotFound
}

type memEmployees struct {
	byID map[string]model.Employee
}

func newMemEmployees(employees ...model.Employee) *memEmployees {
	m := &memEmployees{byID: make(map[string]model.Employee)}
	for _, e := range employees {
		m.byID[e.ID] = e
	}
	return m
}

func (m *memEmployees) Get(_ context.Context, id string) (model.Employee, error) {
	e, ok := m.byID[id]
	if !ok {
		return model.Employee{}, ErrNotFound
	}
	return e, nil
}

func (m *memEmployees) ListByIDs(_ context.Context, ids []string) ([]model.Employee, error) {
	var out []model.Employee
	for _, id := range ids {
		if e, ok := m.byID[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

type sentEmail struct {
	To      string
	Subject string
}

type fakeEmail struct {
	sent []sentEmail
	fail bool
}

func (f *fakeEmail) Send(to, subject, _ string) error {
	if f.fail {
		return errors.New("smtp unavailable")
	}
	f.sent = append(f.sent, sentEmail{To: to, Subject: subject})
	return nil
}

type fakeSMS struct {
	sent    []string
	failFor map[string]bool
}

func (f *fakeSMS) Send(_ context.Context, to, _ string) error {
	if f.failFor[to] {
		return errors.New("carrier rejected")
	}
	f.sent = append(f.sent, to)
	return nil
}

func (f *fakeSMS) ProviderID() string { return "fake" }

type fakeCalendar struct {
	created []calendar.Event
	tokens  []string
	fail    bool
}

func (f *fakeCalendar) CreateEvent(_ context.Context, accessToken string, ev calendar.Event) (calendar.EventRef, error) {
	if f.fail {
		return calendar.EventRef{}, errors.New("calendar unavailable")
	}
	f.created = append(f.created, ev)
	f.tokens = append(f.tokens, accessToken)
	return calendar.EventRef{ID: "cal-1", Link: "https://cal.example/cal-1"}, nil
}

func (f *fakeCalendar) DeleteEvent(_ context.Context, _, _ string) error { return nil }

type fakeFiles struct {
	uploads int
	deleted []string
	fail    bool
}

func (f *fakeFiles) Upload(_ context.Context, name, _ string, _ []byte) (files.Object, error) {
	if f.fail {
		return files.Object{}, errors.New("storage unavailable")
	}
	f.uploads++
	id := fmt.Sprintf("obj-%d", f.uploads)
	return files.Object{PublicID: id, URL: "https://files.example/" + id + "/" + name}, nil
}

func (f *fakeFiles) Delete(_ context.Context, publicID string) error {
	f.deleted = append(f.deleted, publicID)
	return nil
}

type memNotifLog struct {
	records []notify.Record
}

func (m *memNotifLog) Record(_ context.Context, rec notify.Record) error {
	m.records = append(m.records, rec)
	return nil
}

type recordedEvent struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       map[string]any
}

type fakeEvents struct {
	events []recordedEvent
}

func (f *fakeEvents) Record(_ context.Context, aggregateType, aggregateID, eventType string, payload map[string]any) {
	f.events = append(f.events, recordedEvent{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
	})
}

func (f *fakeEvents) has(eventType string) bool {
	for _, e := range f.events {
		if e.EventType == eventType {
			return true
		}
	}
	return false
}

type gatewayFakes struct {
	email    *fakeEmail
	sms      *fakeSMS
	calendar *fakeCalendar
	files    *fakeFiles
	log      *memNotifLog
}

func newGatewayFakes() *gatewayFakes {
	return &gatewayFakes{
		email:    &fakeEmail{},
		sms:      &fakeSMS{failFor: make(map[string]bool)},
		calendar: &fakeCalendar{},
		files:    &fakeFiles{},
		log:      &memNotifLog{},
	}
}

func (g *gatewayFakes) gateways() Gateways {
	return Gateways{
		Email:    g.email,
		SMS:      g.sms,
		Calendar: g.calendar,
		Files:    g.files,
		Log:      g.log,
	}
}
