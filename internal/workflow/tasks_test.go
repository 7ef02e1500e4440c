package workflow

import (
	"context"
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/buildrite/siteops/internal/model"
)

func crew() []model.Employee {
	return []model.Employee{
		{ID: "e1", Name: "Rui", Role: model.RoleSupervisor, Phone: "+15550000001", Status: model.EmployeeActive},
		{ID: "e2", Name: "Mia", Role: model.RoleConstructor, Phone: "+15550000002", Status: model.EmployeeActive},
		{ID: "e3", Name: "Kofi", Role: model.RoleDriver, Status: model.EmployeeActive}, // no phone
	}
}

func newTasksHarness(employees ...model.Employee) (*Tasks, *memTasks, *gatewayFakes, *fakeEvents) {
	store := newMemTasks()
	gw := newGatewayFakes()
	events := &fakeEvents{}
	svc := NewTasks(store, newMemEmployees(employees...), gw.gateways(), events, testLogger())
	svc.now = func() time.Time { return fixedNow }
	return svc, store, gw, events
}

func TestCreateTaskValidation(t *testing.T) {
	svc, _, _, _ := newTasksHarness(crew()...)
	ctx := context.Background()
	admin := Caller{ID: "admin1", Admin: true}

	cases := []struct {
		name string
		in   CreateTaskInput
	}{
		{"missing title", CreateTaskInput{StartDate: fixedNow}},
		{"missing start date", CreateTaskInput{Title: "Pour slab"}},
		{"bad priority", CreateTaskInput{Title: "Pour slab", StartDate: fixedNow, Priority: "asap"}},
		{"unknown employee", CreateTaskInput{Title: "Pour slab", StartDate: fixedNow, AssignedEmployees: []string{"ghost"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Create(ctx, tc.in, admin); !IsValidation(err) {
				t.Errorf("err = %v, want validation error", err)
			}
		})
	}
}

func TestCreateTaskTextsAssignees(t *testing.T) {
	svc, store, gw, events := newTasksHarness(crew()...)

	task, err := svc.Create(context.Background(), CreateTaskInput{
		Title:             "Pour slab",
		SiteName:          "Harbor Rd",
		StartDate:         fixedNow.AddDate(0, 0, 1),
		StartTime:         "08:00",
		AssignedEmployees: []string{"e1", "e2", "e2"}, // duplicate collapses
		SendSMS:           true,
	}, Caller{ID: "admin1", Admin: true})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if task.Status != model.TaskPending || task.Priority != model.PriorityMedium {
		t.Errorf("defaults = %q %q, want pending/medium", task.Status, task.Priority)
	}
	if !reflect.DeepEqual(task.AssignedEmployees, []string{"e1", "e2"}) {
		t.Errorf("assignees = %v", task.AssignedEmployees)
	}
	if len(gw.sms.sent) != 2 {
		t.Fatalf("sms sent to %v, want both assignees", gw.sms.sent)
	}
	if !task.SMSSent || task.SMSStatus != model.SMSStatusSent || task.SMSSentAt == nil {
		t.Errorf("sms bookkeeping = %v %q %v", task.SMSSent, task.SMSStatus, task.SMSSentAt)
	}
	if stored, _ := store.Get(context.Background(), task.ID); stored.SMSStatus != model.SMSStatusSent {
		t.Errorf("sms bookkeeping not persisted: %q", stored.SMSStatus)
	}
	if !events.has("task.created.v1") {
		t.Error("task.created.v1 not recorded")
	}
}

func TestCreateTaskPartialSMS(t *testing.T) {
	svc, _, gw, _ := newTasksHarness(crew()...)
	gw.sms.failFor["+15550000002"] = true

	task, err := svc.Create(context.Background(), CreateTaskInput{
		Title:             "Pour slab",
		StartDate:         fixedNow,
		AssignedEmployees: []string{"e1", "e2"},
		SendSMS:           true,
	}, Caller{Admin: true})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !task.SMSSent || task.SMSStatus != model.SMSStatusPartial {
		t.Errorf("sms bookkeeping = %v %q, want partial", task.SMSSent, task.SMSStatus)
	}
}

func TestCreateTaskAllSMSFail(t *testing.T) {
	svc, _, gw, _ := newTasksHarness(crew()...)
	gw.sms.failFor["+15550000001"] = true
	gw.sms.failFor["+15550000002"] = true

	task, err := svc.Create(context.Background(), CreateTaskInput{
		Title:             "Pour slab",
		StartDate:         fixedNow,
		AssignedEmployees: []string{"e1", "e2"},
		SendSMS:           true,
	}, Caller{Admin: true})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if task.SMSSent {
		t.Error("SMSSent = true with every send failed")
	}
	if task.SMSStatus != "carrier rejected" {
		t.Errorf("SMSStatus = %q, want the gateway error", task.SMSStatus)
	}
}

func TestUpdateTextsOnlyNewAssignees(t *testing.T) {
	svc, store, gw, _ := newTasksHarness(crew()...)

	task, err := svc.Create(context.Background(), CreateTaskInput{
		Title:             "Frame walls",
		StartDate:         fixedNow,
		AssignedEmployees: []string{"e1"},
	}, Caller{Admin: true})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(gw.sms.sent) != 0 {
		t.Fatalf("create without SendSMS texted %v", gw.sms.sent)
	}

	assignees := []string{"e1", "e2"}
	updated, err := svc.Update(context.Background(), task.ID, UpdateTaskInput{
		AssignedEmployees: &assignees,
		SendSMS:           true,
	}, Caller{Admin: true})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !reflect.DeepEqual(updated.AssignedEmployees, []string{"e1", "e2"}) {
		t.Errorf("assignees = %v", updated.AssignedEmployees)
	}
	if !reflect.DeepEqual(gw.sms.sent, []string{"+15550000002"}) {
		t.Errorf("sms sent to %v, want only the new assignee", gw.sms.sent)
	}

	// The per-employee views follow the assignment set.
	forE2, _ := store.ListByEmployee(context.Background(), "e2")
	if len(forE2) != 1 || forE2[0].ID != task.ID {
		t.Errorf("tasks for e2 = %v", forE2)
	}

	drop := []string{"e2"}
	if _, err := svc.Update(context.Background(), task.ID, UpdateTaskInput{AssignedEmployees: &drop}, Caller{Admin: true}); err != nil {
		t.Fatalf("second Update: %v", err)
	}
	forE1, _ := store.ListByEmployee(context.Background(), "e1")
	if len(forE1) != 0 {
		t.Errorf("tasks for e1 after removal = %v", forE1)
	}
}

func TestAssignMatchesUpdate(t *testing.T) {
	svc, store, gw, _ := newTasksHarness(crew()...)

	task, err := svc.Create(context.Background(), CreateTaskInput{
		Title:     "Dig footings",
		StartDate: fixedNow,
	}, Caller{Admin: true})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := svc.Assign(context.Background(), task.ID, []string{"e2", "e3"}, true, Caller{Admin: true})
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if !reflect.DeepEqual(got.AssignedEmployees, []string{"e2", "e3"}) {
		t.Errorf("assignees = %v", got.AssignedEmployees)
	}
	// e3 has no phone, so only e2 is texted and the aggregate is still sent.
	if !reflect.DeepEqual(gw.sms.sent, []string{"+15550000002"}) {
		t.Errorf("sms sent to %v", gw.sms.sent)
	}
	if got.SMSStatus != model.SMSStatusSent {
		t.Errorf("SMSStatus = %q, want sent", got.SMSStatus)
	}

	if _, err := svc.Assign(context.Background(), task.ID, []string{"ghost"}, false, Caller{Admin: true}); !IsValidation(err) {
		t.Errorf("unknown employee: err = %v, want validation error", err)
	}
	if stored, _ := store.Get(context.Background(), task.ID); !reflect.DeepEqual(stored.AssignedEmployees, []string{"e2", "e3"}) {
		t.Errorf("failed assign mutated the stored set: %v", stored.AssignedEmployees)
	}
}

func TestCompleteStampsCloser(t *testing.T) {
	svc, _, _, events := newTasksHarness(crew()...)

	task, err := svc.Create(context.Background(), CreateTaskInput{Title: "Cleanup", StartDate: fixedNow}, Caller{Admin: true})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	done, err := svc.Complete(context.Background(), task.ID, Caller{ID: "admin2", Admin: true})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if done.Status != model.TaskCompleted || done.CompletedBy != "admin2" || done.CompletedAt == nil {
		t.Errorf("completion = %+v", done)
	}
	if !events.has("task.completed.v1") {
		t.Error("task.completed.v1 not recorded")
	}
}

func TestUpdateStatusToCompletedStamps(t *testing.T) {
	svc, _, _, _ := newTasksHarness(crew()...)

	task, err := svc.Create(context.Background(), CreateTaskInput{Title: "Cleanup", StartDate: fixedNow}, Caller{Admin: true})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	status := model.TaskCompleted
	got, err := svc.Update(context.Background(), task.ID, UpdateTaskInput{Status: &status}, Caller{ID: "admin3", Admin: true})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.CompletedBy != "admin3" || got.CompletedAt == nil || !got.CompletedAt.Equal(fixedNow) {
		t.Errorf("completion stamp = %q %v", got.CompletedBy, got.CompletedAt)
	}

	// Writing the same status again is a no-op for the stamp.
	later := fixedNow.Add(time.Hour)
	svc.now = func() time.Time { return later }
	got, err = svc.Update(context.Background(), task.ID, UpdateTaskInput{Status: &status}, Caller{ID: "admin4", Admin: true})
	if err != nil {
		t.Fatalf("second Update: %v", err)
	}
	if got.CompletedBy != "admin3" || !got.CompletedAt.Equal(fixedNow) {
		t.Errorf("repeated status write moved the stamp: %q %v", got.CompletedBy, got.CompletedAt)
	}
}

func TestSendReminder(t *testing.T) {
	svc, store, gw, _ := newTasksHarness(crew()...)

	task, err := svc.Create(context.Background(), CreateTaskInput{
		Title:             "Pour slab",
		StartDate:         fixedNow,
		AssignedEmployees: []string{"e1", "e2", "e3"},
	}, Caller{Admin: true})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	res, err := svc.SendReminder(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("SendReminder: %v", err)
	}
	sort.Strings(res.Sent)
	if !reflect.DeepEqual(res.Sent, []string{"e1", "e2"}) || len(res.Failed) != 0 {
		t.Errorf("result = %+v", res)
	}
	if res.SMSStatus != model.SMSStatusSent {
		t.Errorf("SMSStatus = %q", res.SMSStatus)
	}
	if stored, _ := store.Get(context.Background(), task.ID); !stored.SMSSent {
		t.Error("reminder outcome not persisted")
	}
	if len(gw.sms.sent) != 2 {
		t.Errorf("sms sent to %v", gw.sms.sent)
	}

	bare, err := svc.Create(context.Background(), CreateTaskInput{Title: "Unassigned", StartDate: fixedNow}, Caller{Admin: true})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.SendReminder(context.Background(), bare.ID); !IsValidation(err) {
		t.Errorf("no assignees: err = %v, want validation error", err)
	}

	phoneless, err := svc.Create(context.Background(), CreateTaskInput{
		Title:             "Driverless",
		StartDate:         fixedNow,
		AssignedEmployees: []string{"e3"},
	}, Caller{Admin: true})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.SendReminder(context.Background(), phoneless.ID); !IsValidation(err) {
		t.Errorf("no phones: err = %v, want validation error", err)
	}
}

func TestDeleteTaskRemovesAttachments(t *testing.T) {
	svc, store, gw, _ := newTasksHarness(crew()...)
	store.byID["t1"] = model.Task{
		ID: "t1",
		Attachments: []model.Attachment{
			{PublicID: "obj-1", Name: "plan.pdf"},
			{Name: "inline-note"}, // no stored object
		},
	}

	if err := svc.Delete(context.Background(), "t1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !reflect.DeepEqual(gw.files.deleted, []string{"obj-1"}) {
		t.Errorf("deleted files = %v", gw.files.deleted)
	}
	if _, err := store.Get(context.Background(), "t1"); !IsNotFound(err) {
		t.Errorf("task still present: %v", err)
	}
}

func TestListByDateRangeDefaultsToOneWeek(t *testing.T) {
	svc, store, _, _ := newTasksHarness(crew()...)
	day := func(offset int) time.Time { return fixedNow.AddDate(0, 0, offset) }
	store.byID["t0"] = model.Task{ID: "t0", StartDate: day(0)}
	store.byID["t7"] = model.Task{ID: "t7", StartDate: day(7)}
	store.byID["t8"] = model.Task{ID: "t8", StartDate: day(8)}

	got, err := svc.ListByDateRange(context.Background(), day(0), nil)
	if err != nil {
		t.Fatalf("ListByDateRange: %v", err)
	}
	ids := make([]string, 0, len(got))
	for _, task := range got {
		ids = append(ids, task.ID)
	}
	if !reflect.DeepEqual(ids, []string{"t0", "t7"}) {
		t.Errorf("ids = %v, want the inclusive one-week window", ids)
	}

	end := day(8)
	got, err = svc.ListByDateRange(context.Background(), day(0), &end)
	if err != nil {
		t.Fatalf("ListByDateRange with end: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("explicit range returned %d tasks, want 3", len(got))
	}

	before := day(-1)
	if _, err := svc.ListByDateRange(context.Background(), day(0), &before); !IsValidation(err) {
		t.Errorf("inverted range: err = %v, want validation error", err)
	}
}

func TestStatistics(t *testing.T) {
	svc, store, _, _ := newTasksHarness(crew()...)
	monthStart := time.Date(fixedNow.Year(), fixedNow.Month(), 1, 0, 0, 0, 0, time.UTC)
	inMonth := monthStart.AddDate(0, 0, 2)
	lastMonth := monthStart.AddDate(0, 0, -2)

	add := func(id, status, priority string, completedAt *time.Time) {
		store.byID[id] = model.Task{ID: id, Status: status, Priority: priority, CompletedAt: completedAt}
	}
	add("t1", model.TaskCompleted, model.PriorityHigh, &inMonth)
	add("t2", model.TaskCompleted, model.PriorityLow, &inMonth)
	add("t3", model.TaskCompleted, model.PriorityLow, &lastMonth)
	add("t4", model.TaskPending, model.PriorityUrgent, nil)
	add("t5", model.TaskInProgress, model.PriorityHigh, nil)

	stats, err := svc.Statistics(context.Background())
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if stats.Total != 5 {
		t.Errorf("Total = %d", stats.Total)
	}
	if stats.ByStatus[model.TaskCompleted] != 3 || stats.ByPriority[model.PriorityHigh] != 2 {
		t.Errorf("counts = %v / %v", stats.ByStatus, stats.ByPriority)
	}
	if stats.CompletedThisMonth != 2 {
		t.Errorf("CompletedThisMonth = %d, want 2", stats.CompletedThisMonth)
	}
	if stats.CompletionRate != 60.0 {
		t.Errorf("CompletionRate = %v, want 60.0", stats.CompletionRate)
	}
}
