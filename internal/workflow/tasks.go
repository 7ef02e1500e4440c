package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/buildrite/siteops/internal/files"
	"github.com/buildrite/siteops/internal/model"
)

// Tasks schedules site work against employees. Assignment is a full-replace
// operation; newly added assignees can be texted about the job, and every
// send outcome is folded into the task's SMS bookkeeping fields.
type Tasks struct {
	store     TaskStore
	employees EmployeeDirectory
	files     files.Store
	notify    *notifier
	events    Events
	logger    *slog.Logger
	now       func() time.Time
}

func NewTasks(store TaskStore, employees EmployeeDirectory, gw Gateways, events Events, logger *slog.Logger) *Tasks {
	now := func() time.Time { return time.Now().UTC() }
	return &Tasks{
		store:     store,
		employees: employees,
		files:     gw.Files,
		notify:    newNotifier(gw, logger, now),
		events:    events,
		logger:    logger,
		now:       now,
	}
}

type CreateTaskInput struct {
	Title       string
	Description string
	SiteName    string
	SiteAddress string

	StartDate time.Time
	StartTime string
	EndDate   *time.Time
	EndTime   string

	Priority string
	Notes    string

	AssignedEmployees []string
	ClientID          string
	AppointmentID     string
	QuotationID       string

	SendSMS bool
}

// Create validates the schedule and assignee set, persists the task together
// with its assignment rows and optionally texts the assignees.
func (s *Tasks) Create(ctx context.Context, in CreateTaskInput, caller Caller) (model.Task, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return model.Task{}, Validationf("title is required")
	}
	if in.StartDate.IsZero() {
		return model.Task{}, Validationf("start_date is required")
	}
	if in.Priority == "" {
		in.Priority = model.PriorityMedium
	}
	if !model.ValidTaskPriority(in.Priority) {
		return model.Task{}, Validationf("invalid priority %q", in.Priority)
	}

	assignees, err := s.resolveAssignees(ctx, in.AssignedEmployees)
	if err != nil {
		return model.Task{}, err
	}

	now := s.now()
	t := &model.Task{
		ID:                uuid.NewString(),
		Title:             in.Title,
		Description:       in.Description,
		SiteName:          in.SiteName,
		SiteAddress:       in.SiteAddress,
		StartDate:         in.StartDate,
		StartTime:         in.StartTime,
		EndDate:           in.EndDate,
		EndTime:           in.EndTime,
		Status:            model.TaskPending,
		Priority:          in.Priority,
		Notes:             in.Notes,
		AssignedEmployees: assigneeIDs(assignees),
		ClientID:          in.ClientID,
		AppointmentID:     in.AppointmentID,
		QuotationID:       in.QuotationID,
		CreatedBy:         caller.ID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.store.Create(ctx, t); err != nil {
		return model.Task{}, fmt.Errorf("create task: %w", err)
	}

	if in.SendSMS && len(assignees) > 0 {
		s.textAssignees(ctx, t, assignees)
		if err := s.store.Update(ctx, t); err != nil {
			s.logger.Warn("task sms bookkeeping write failed", "task_id", t.ID, "err", err)
		}
	}

	s.events.Record(ctx, "task", t.ID, "task.created.v1", map[string]any{
		"task_id":   t.ID,
		"title":     t.Title,
		"priority":  t.Priority,
		"assignees": t.AssignedEmployees,
	})
	return *t, nil
}

// resolveAssignees deduplicates the requested ids and confirms each one names
// a real employee.
func (s *Tasks) resolveAssignees(ctx context.Context, ids []string) ([]model.Employee, error) {
	seen := make(map[string]bool, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		unique = append(unique, id)
	}
	if len(unique) == 0 {
		return nil, nil
	}

	employees, err := s.employees.ListByIDs(ctx, unique)
	if err != nil {
		return nil, fmt.Errorf("lookup employees: %w", err)
	}
	if len(employees) != len(unique) {
		found := make(map[string]bool, len(employees))
		for _, e := range employees {
			found[e.ID] = true
		}
		for _, id := range unique {
			if !found[id] {
				return nil, Validationf("employee %s does not exist", id)
			}
		}
	}
	return employees, nil
}

func assigneeIDs(employees []model.Employee) []string {
	ids := make([]string, 0, len(employees))
	for _, e := range employees {
		ids = append(ids, e.ID)
	}
	return ids
}

// textAssignees sends the job notice to every employee with a phone number
// and stamps the task's SMS fields with the aggregate outcome: sent when all
// attempts landed, partial when some did, and the last error otherwise.
func (s *Tasks) textAssignees(ctx context.Context, t *model.Task, assignees []model.Employee) {
	body := fmt.Sprintf("New job: %s at %s on %s %s. Check the app for details.",
		t.Title, t.SiteName, t.StartDate.Format("2006-01-02"), t.StartTime)

	var sent, attempted int
	var lastErr error
	for _, e := range assignees {
		if e.Phone == "" {
			continue
		}
		attempted++
		if err := s.notify.sendSMS(ctx, e.Phone, body, "task", t.ID); err != nil {
			lastErr = err
		} else {
			sent++
		}
	}
	if attempted == 0 {
		return
	}

	now := s.now()
	t.SMSSentAt = &now
	t.UpdatedAt = now
	switch {
	case sent == attempted:
		t.SMSSent = true
		t.SMSStatus = model.SMSStatusSent
	case sent > 0:
		t.SMSSent = true
		t.SMSStatus = model.SMSStatusPartial
	default:
		t.SMSSent = false
		t.SMSStatus = lastErr.Error()
	}
}

type UpdateTaskInput struct {
	Title       *string
	Description *string
	SiteName    *string
	SiteAddress *string

	StartDate *time.Time
	StartTime *string
	EndDate   *time.Time
	EndTime   *string

	Status   *string
	Priority *string
	Notes    *string

	AssignedEmployees *[]string
	SendSMS           bool
}

// Update applies the supplied fields. A status change to completed stamps the
// completion fields; replacing the assignee set texts only the newly added
// employees, and only when SendSMS is set.
func (s *Tasks) Update(ctx context.Context, id string, in UpdateTaskInput, caller Caller) (model.Task, error) {
	t, err := s.store.Get(ctx, id)
	if err != nil {
		return model.Task{}, err
	}

	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return model.Task{}, Validationf("title is required")
		}
		t.Title = title
	}
	if in.Description != nil {
		t.Description = *in.Description
	}
	if in.SiteName != nil {
		t.SiteName = *in.SiteName
	}
	if in.SiteAddress != nil {
		t.SiteAddress = *in.SiteAddress
	}
	if in.StartDate != nil {
		if in.StartDate.IsZero() {
			return model.Task{}, Validationf("start_date is required")
		}
		t.StartDate = *in.StartDate
	}
	if in.StartTime != nil {
		t.StartTime = *in.StartTime
	}
	if in.EndDate != nil {
		t.EndDate = in.EndDate
	}
	if in.EndTime != nil {
		t.EndTime = *in.EndTime
	}
	if in.Priority != nil {
		if !model.ValidTaskPriority(*in.Priority) {
			return model.Task{}, Validationf("invalid priority %q", *in.Priority)
		}
		t.Priority = *in.Priority
	}
	if in.Notes != nil {
		t.Notes = *in.Notes
	}

	if in.Status != nil && *in.Status != t.Status {
		if !model.ValidTaskStatus(*in.Status) {
			return model.Task{}, Validationf("invalid status %q", *in.Status)
		}
		t.Status = *in.Status
		if t.Status == model.TaskCompleted {
			now := s.now()
			t.CompletedAt = &now
			t.CompletedBy = caller.ID
		}
	}

	var added []model.Employee
	if in.AssignedEmployees != nil {
		assignees, err := s.resolveAssignees(ctx, *in.AssignedEmployees)
		if err != nil {
			return model.Task{}, err
		}
		current := make(map[string]bool, len(t.AssignedEmployees))
		for _, id := range t.AssignedEmployees {
			current[id] = true
		}
		for _, e := range assignees {
			if !current[e.ID] {
				added = append(added, e)
			}
		}
		t.AssignedEmployees = assigneeIDs(assignees)
	}

	if in.SendSMS && len(added) > 0 {
		s.textAssignees(ctx, &t, added)
	}

	t.UpdatedAt = s.now()
	if err := s.store.Update(ctx, &t); err != nil {
		return model.Task{}, fmt.Errorf("update task: %w", err)
	}

	s.events.Record(ctx, "task", t.ID, "task.updated.v1", map[string]any{
		"task_id":   t.ID,
		"status":    t.Status,
		"assignees": t.AssignedEmployees,
	})
	return t, nil
}

// Assign replaces the assignee set. It is equivalent to an Update that only
// carries AssignedEmployees.
func (s *Tasks) Assign(ctx context.Context, id string, employeeIDs []string, sendSMS bool, caller Caller) (model.Task, error) {
	return s.Update(ctx, id, UpdateTaskInput{
		AssignedEmployees: &employeeIDs,
		SendSMS:           sendSMS,
	}, caller)
}

// SendReminder texts every current assignee with a phone number, regardless
// of whether they were texted before.
type ReminderResult struct {
	Sent      []string
	Failed    []string
	SMSStatus string
}

func (s *Tasks) SendReminder(ctx context.Context, id string) (ReminderResult, error) {
	t, err := s.store.Get(ctx, id)
	if err != nil {
		return ReminderResult{}, err
	}
	if len(t.AssignedEmployees) == 0 {
		return ReminderResult{}, Validationf("task has no assigned employees")
	}

	assignees, err := s.employees.ListByIDs(ctx, t.AssignedEmployees)
	if err != nil {
		return ReminderResult{}, fmt.Errorf("lookup employees: %w", err)
	}

	body := fmt.Sprintf("Reminder: %s at %s on %s %s.",
		t.Title, t.SiteName, t.StartDate.Format("2006-01-02"), t.StartTime)

	var res ReminderResult
	var lastErr error
	for _, e := range assignees {
		if e.Phone == "" {
			continue
		}
		if err := s.notify.sendSMS(ctx, e.Phone, body, "task", t.ID); err != nil {
			res.Failed = append(res.Failed, e.ID)
			lastErr = err
		} else {
			res.Sent = append(res.Sent, e.ID)
		}
	}
	if len(res.Sent) == 0 && len(res.Failed) == 0 {
		return ReminderResult{}, Validationf("no assigned employee has a phone number")
	}

	now := s.now()
	t.SMSSentAt = &now
	t.UpdatedAt = now
	switch {
	case len(res.Failed) == 0:
		t.SMSSent = true
		t.SMSStatus = model.SMSStatusSent
	case len(res.Sent) > 0:
		t.SMSSent = true
		t.SMSStatus = model.SMSStatusPartial
	default:
		t.SMSSent = false
		t.SMSStatus = lastErr.Error()
	}
	res.SMSStatus = t.SMSStatus

	if err := s.store.Update(ctx, &t); err != nil {
		s.logger.Warn("task sms bookkeeping write failed", "task_id", t.ID, "err", err)
	}
	return res, nil
}

// Complete marks the task completed and stamps who closed it. Completing an
// already completed task refreshes the stamp.
func (s *Tasks) Complete(ctx context.Context, id string, caller Caller) (model.Task, error) {
	t, err := s.store.Get(ctx, id)
	if err != nil {
		return model.Task{}, err
	}

	now := s.now()
	t.Status = model.TaskCompleted
	t.CompletedAt = &now
	t.CompletedBy = caller.ID
	t.UpdatedAt = now
	if err := s.store.Update(ctx, &t); err != nil {
		return model.Task{}, fmt.Errorf("complete task: %w", err)
	}

	s.events.Record(ctx, "task", t.ID, "task.completed.v1", map[string]any{
		"task_id":      t.ID,
		"completed_by": caller.ID,
	})
	return t, nil
}

// Delete removes the task, its assignment rows and any uploaded attachments.
func (s *Tasks) Delete(ctx context.Context, id string) error {
	t, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}

	for _, a := range t.Attachments {
		if a.PublicID == "" {
			continue
		}
		delCtx, cancel := context.WithTimeout(ctx, outboundTimeout)
		if err := s.files.Delete(delCtx, a.PublicID); err != nil {
			s.logger.Warn("task attachment delete failed", "task_id", t.ID, "public_id", a.PublicID, "err", err)
		}
		cancel()
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	s.events.Record(ctx, "task", id, "task.deleted.v1", map[string]any{
		"task_id": id,
	})
	return nil
}

func (s *Tasks) Get(ctx context.Context, id string) (model.Task, error) {
	return s.store.Get(ctx, id)
}

func (s *Tasks) List(ctx context.Context) ([]model.Task, error) {
	return s.store.List(ctx)
}

func (s *Tasks) ListByEmployee(ctx context.Context, employeeID string) ([]model.Task, error) {
	return s.store.ListByEmployee(ctx, employeeID)
}

func (s *Tasks) ListByClient(ctx context.Context, clientID string) ([]model.Task, error) {
	return s.store.ListByClient(ctx, clientID)
}

func (s *Tasks) ListByStatus(ctx context.Context, status string) ([]model.Task, error) {
	if !model.ValidTaskStatus(status) {
		return nil, Validationf("invalid status %q", status)
	}
	return s.store.ListByStatus(ctx, status)
}

// ListByDateRange returns tasks starting within [start, end] inclusive. An
// absent end defaults to one week after start.
func (s *Tasks) ListByDateRange(ctx context.Context, start time.Time, end *time.Time) ([]model.Task, error) {
	if start.IsZero() {
		return nil, Validationf("start date is required")
	}
	rangeEnd := start.AddDate(0, 0, 7)
	if end != nil {
		rangeEnd = *end
	}
	if rangeEnd.Before(start) {
		return nil, Validationf("end date is before start date")
	}
	tasks, err := s.store.ListByDateRange(ctx, start, rangeEnd)
	if err != nil {
		return nil, fmt.Errorf("list tasks by date range: %w", err)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].StartDate.Before(tasks[j].StartDate) })
	return tasks, nil
}

type TaskStatistics struct {
	Total              int
	ByStatus           map[string]int
	ByPriority         map[string]int
	CompletedThisMonth int
	CompletionRate     float64
}

// Statistics aggregates the task board. CompletionRate is the share of all
// tasks that are completed, as a percentage.
func (s *Tasks) Statistics(ctx context.Context) (TaskStatistics, error) {
	byStatus, err := s.store.CountByStatus(ctx)
	if err != nil {
		return TaskStatistics{}, fmt.Errorf("count tasks by status: %w", err)
	}
	byPriority, err := s.store.CountByPriority(ctx)
	if err != nil {
		return TaskStatistics{}, fmt.Errorf("count tasks by priority: %w", err)
	}

	now := s.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	completedThisMonth, err := s.store.CountCompletedSince(ctx, monthStart)
	if err != nil {
		return TaskStatistics{}, fmt.Errorf("count completed tasks: %w", err)
	}

	stats := TaskStatistics{
		ByStatus:           byStatus,
		ByPriority:         byPriority,
		CompletedThisMonth: completedThisMonth,
	}
	for _, n := range byStatus {
		stats.Total += n
	}
	if stats.Total > 0 {
		stats.CompletionRate = float64(byStatus[model.TaskCompleted]) / float64(stats.Total) * 100
	}
	return stats, nil
}
