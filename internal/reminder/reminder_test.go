package reminder

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/dukerupert/homestead/internal/database"
	"github.com/dukerupert/homestead/internal/model"
	"github.com/dukerupert/homestead/internal/store"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// recordingNotifier records every delivery and fails for the given users.
type recordingNotifier struct {
	mu      sync.Mutex
	calls   []delivery
	failFor map[int64]bool
}

type delivery struct {
	RecipientID int64
	TaskID      int64
}

func (n *recordingNotifier) Notify(_ context.Context, recipient *model.User, task *model.Task) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, delivery{RecipientID: recipient.ID, TaskID: task.ID})
	if n.failFor[recipient.ID] {
		return errors.New("delivery refused")
	}
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

type fixture struct {
	db        *sql.DB
	reminders *store.ScheduledReminderStore
	prefs     *store.ReminderPreferenceStore
	tasks     *store.TaskStore
	household *model.Household
	alice     *model.User
	bob       *model.User
}

func setup(t *testing.T) fixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	users := store.NewUserStore(db)
	households := store.NewHouseholdStore(db)
	alice, err := users.Create(ctx, "alice@example.com", "Alice", "hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	bob, err := users.Create(ctx, "bob@example.com", "Bob", "hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	h, err := households.Create(ctx, "Home")
	if err != nil {
		t.Fatalf("create household: %v", err)
	}
	households.AddMember(ctx, h.ID, alice.ID, model.RoleAdmin)
	households.AddMember(ctx, h.ID, bob.ID, model.RoleMember)

	return fixture{
		db:        db,
		reminders: store.NewScheduledReminderStore(db),
		prefs:     store.NewReminderPreferenceStore(db),
		tasks:     store.NewTaskStore(db),
		household: h,
		alice:     alice,
		bob:       bob,
	}
}

func (f fixture) createTask(t *testing.T, deadline *time.Time) *model.Task {
	t.Helper()
	task, err := f.tasks.Create(context.Background(), f.household.ID, f.alice.ID, store.TaskParams{Title: "Bins", Deadline: deadline})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

// input loads the assignees' stored preferences into a scheduling input.
func (f fixture) input(t *testing.T, task *model.Task, userIDs ...int64) Task {
	t.Helper()
	byUser, err := f.prefs.ListByUsers(context.Background(), userIDs)
	if err != nil {
		t.Fatalf("list preferences: %v", err)
	}
	in := Task{ID: task.ID, Deadline: task.Deadline}
	for _, id := range userIDs {
		in.Assignees = append(in.Assignees, Assignee{UserID: id, Preferences: byUser[id]})
	}
	return in
}

func ptr(t time.Time) *time.Time { return &t }

func TestPlan(t *testing.T) {
	deadline := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	task := Task{
		ID:       9,
		Deadline: &deadline,
		Assignees: []Assignee{
			{UserID: 1, Preferences: []model.ReminderPreference{
				{ID: 10, LeadTime: 7200, Enabled: true},
				{ID: 11, LeadTime: 86400, Enabled: false},
			}},
			{UserID: 2, Preferences: []model.ReminderPreference{
				{ID: 20, LeadTime: 60, Enabled: true},
			}},
		},
	}

	got := Plan(task)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	want := []struct {
		pref, recipient int64
		fireAt          time.Time
	}{
		{10, 1, deadline.Add(-2 * time.Hour)},
		{20, 2, deadline.Add(-time.Minute)},
	}
	for i, w := range want {
		if *got[i].PreferenceID != w.pref || got[i].RecipientID != w.recipient || !got[i].FireAt.Equal(w.fireAt) {
			t.Errorf("got[%d] = pref %d recipient %d fire %v, want %d %d %v",
				i, *got[i].PreferenceID, got[i].RecipientID, got[i].FireAt, w.pref, w.recipient, w.fireAt)
		}
		if got[i].TaskID != 9 || got[i].SentAt != nil {
			t.Errorf("got[%d] = %+v", i, got[i])
		}
	}

	if Plan(Task{ID: 9, Assignees: task.Assignees}) != nil {
		t.Error("expected nil plan without deadline")
	}
}

func TestScheduleDerivesFireTimes(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	deadline := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	task := f.createTask(t, &deadline)

	n, err := NewScheduler(testLogger, nil).Schedule(ctx, f.reminders, f.input(t, task, f.alice.ID, f.bob.ID))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if n != 4 {
		t.Errorf("scheduled = %d, want 4", n)
	}

	got, _ := f.reminders.ListByTask(ctx, task.ID)
	if len(got) != 4 {
		t.Fatalf("len = %d, want 4", len(got))
	}
	for _, r := range got {
		var lead int64
		if r.FireAt.Equal(deadline.Add(-24 * time.Hour)) {
			lead = 86400
		} else if r.FireAt.Equal(deadline.Add(-2 * time.Hour)) {
			lead = 7200
		} else {
			t.Errorf("unexpected fire_at %v", r.FireAt)
			continue
		}
		if deadline.Unix()-r.FireAt.Unix() != lead {
			t.Errorf("fire_at %v does not match lead %d", r.FireAt, lead)
		}
	}
}

func TestScheduleIdempotent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	task := f.createTask(t, ptr(time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)))
	s := NewScheduler(testLogger, nil)
	in := f.input(t, task, f.alice.ID)

	s.Schedule(ctx, f.reminders, in)
	first, _ := f.reminders.ListByTask(ctx, task.ID)
	s.Schedule(ctx, f.reminders, in)
	second, _ := f.reminders.ListByTask(ctx, task.ID)

	if len(first) != len(second) {
		t.Fatalf("len %d then %d", len(first), len(second))
	}
	for i := range first {
		if !first[i].FireAt.Equal(second[i].FireAt) || first[i].RecipientID != second[i].RecipientID ||
			*first[i].PreferenceID != *second[i].PreferenceID {
			t.Errorf("row %d differs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestScheduleSkipsDisabled(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	task := f.createTask(t, ptr(time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)))

	prefs, _ := f.prefs.ListByUser(ctx, f.alice.ID)
	f.prefs.Toggle(ctx, prefs[1].ID, f.alice.ID)

	n, err := NewScheduler(testLogger, nil).Schedule(ctx, f.reminders, f.input(t, task, f.alice.ID))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if n != 1 {
		t.Fatalf("scheduled = %d, want 1", n)
	}
	got, _ := f.reminders.ListByTask(ctx, task.ID)
	if len(got) != 1 || *got[0].PreferenceID != prefs[0].ID {
		t.Errorf("got %+v, want only the enabled preference", got)
	}
}

func TestScheduleNullDeadlineNoop(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	task := f.createTask(t, ptr(time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)))
	s := NewScheduler(testLogger, nil)
	s.Schedule(ctx, f.reminders, f.input(t, task, f.alice.ID))

	in := f.input(t, task, f.alice.ID)
	in.Deadline = nil
	n, err := s.Schedule(ctx, f.reminders, in)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if n != 0 {
		t.Errorf("scheduled = %d, want 0", n)
	}
	got, _ := f.reminders.ListByTask(ctx, task.ID)
	if len(got) != 2 {
		t.Errorf("len = %d, want existing 2 untouched", len(got))
	}
}

func TestScheduleReassignment(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	task := f.createTask(t, ptr(time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)))
	s := NewScheduler(testLogger, nil)

	s.Schedule(ctx, f.reminders, f.input(t, task, f.alice.ID))
	s.Schedule(ctx, f.reminders, f.input(t, task, f.bob.ID))

	got, _ := f.reminders.ListByTask(ctx, task.ID)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	for _, r := range got {
		if r.RecipientID != f.bob.ID {
			t.Errorf("recipient = %d, want only bob (%d)", r.RecipientID, f.bob.ID)
		}
	}
}

type failingReplacer struct{}

func (failingReplacer) ReplaceForTask(context.Context, int64, []model.ScheduledReminder) error {
	return errors.New("disk full")
}

func TestScheduleStorageError(t *testing.T) {
	deadline := time.Now()
	_, err := NewScheduler(testLogger, nil).Schedule(context.Background(), failingReplacer{}, Task{ID: 1, Deadline: &deadline})
	if err == nil {
		t.Fatal("expected storage error")
	}
}

func TestSweepDeliversOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 20, 0, time.UTC)

	// Deadline two hours out: the 2h reminder fires now, the 24h one fired
	// 22 hours ago and is caught up.
	task := f.createTask(t, ptr(now.Add(2*time.Hour)))
	NewScheduler(testLogger, nil).Schedule(ctx, f.reminders, f.input(t, task, f.alice.ID))

	notifier := &recordingNotifier{}
	metrics := NewMetrics(prometheus.NewRegistry())
	sweeper := NewSweeper(f.reminders, notifier, testLogger, metrics)

	n, err := sweeper.Sweep(ctx, now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 2 || notifier.count() != 2 {
		t.Fatalf("processed = %d, notified = %d, want 2 and 2", n, notifier.count())
	}
	for _, c := range notifier.calls {
		if c.RecipientID != f.alice.ID || c.TaskID != task.ID {
			t.Errorf("delivery = %+v", c)
		}
	}

	got, _ := f.reminders.ListByTask(ctx, task.ID)
	for _, r := range got {
		if r.SentAt == nil || !r.SentAt.Equal(now.Truncate(time.Second)) {
			t.Errorf("sent_at = %v, want %v", r.SentAt, now)
		}
	}

	n, err = sweeper.Sweep(ctx, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if n != 0 || notifier.count() != 2 {
		t.Errorf("second sweep processed %d, notified %d total, want 0 and 2", n, notifier.count())
	}

	if got := counterValue(t, metrics.SweepsTotal); got != 2 {
		t.Errorf("sweeps_total = %v, want 2", got)
	}
	if got := counterValue(t, metrics.RemindersSentTotal.WithLabelValues(statusDelivered)); got != 2 {
		t.Errorf("delivered = %v, want 2", got)
	}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("read counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestSweepFutureReminderNotDelivered(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Deadline 30 hours out: the 24h reminder fires in 6 hours.
	task := f.createTask(t, ptr(now.Add(30*time.Hour)))
	NewScheduler(testLogger, nil).Schedule(ctx, f.reminders, f.input(t, task, f.alice.ID))

	notifier := &recordingNotifier{}
	n, err := NewSweeper(f.reminders, notifier, testLogger, nil).Sweep(ctx, now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 0 || notifier.count() != 0 {
		t.Errorf("processed = %d, notified = %d, want 0", n, notifier.count())
	}

	got, _ := f.reminders.ListByTask(ctx, task.ID)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if !got[0].FireAt.Equal(now.Add(6 * time.Hour)) {
		t.Errorf("24h reminder fires at %v, want %v", got[0].FireAt, now.Add(6*time.Hour))
	}
	for _, r := range got {
		if r.SentAt != nil {
			t.Errorf("reminder %d marked sent early", r.ID)
		}
	}
}

func TestSweepWindowIncludesRestOfMinute(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC)

	// The 2h reminder fires at 12:00:50, inside the current minute.
	task := f.createTask(t, ptr(time.Date(2026, 3, 1, 14, 0, 50, 0, time.UTC)))
	NewScheduler(testLogger, nil).Schedule(ctx, f.reminders, f.input(t, task, f.bob.ID))

	notifier := &recordingNotifier{}
	n, err := NewSweeper(f.reminders, notifier, testLogger, nil).Sweep(ctx, now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 2 {
		t.Errorf("processed = %d, want 2", n)
	}
}

func TestSweepFailedDeliveryStillMarked(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	task := f.createTask(t, ptr(now.Add(2*time.Hour)))
	NewScheduler(testLogger, nil).Schedule(ctx, f.reminders, f.input(t, task, f.alice.ID, f.bob.ID))

	notifier := &recordingNotifier{failFor: map[int64]bool{f.bob.ID: true}}
	metrics := NewMetrics(prometheus.NewRegistry())
	n, err := NewSweeper(f.reminders, notifier, testLogger, metrics).Sweep(ctx, now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 4 || notifier.count() != 4 {
		t.Fatalf("processed = %d, notified = %d, want 4 and 4", n, notifier.count())
	}

	due, _ := f.reminders.ListDue(ctx, now.Add(time.Hour))
	if len(due) != 0 {
		t.Errorf("due after sweep = %d, want 0", len(due))
	}
	if got := counterValue(t, metrics.RemindersSentTotal.WithLabelValues(statusFailed)); got != 2 {
		t.Errorf("failed = %v, want 2", got)
	}
	if got := counterValue(t, metrics.RemindersSentTotal.WithLabelValues(statusDelivered)); got != 2 {
		t.Errorf("delivered = %v, want 2", got)
	}
}

func TestPrune(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	now := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)

	task := f.createTask(t, ptr(now.AddDate(0, -4, 0)))
	NewScheduler(testLogger, nil).Schedule(ctx, f.reminders, f.input(t, task, f.alice.ID))
	NewSweeper(f.reminders, &recordingNotifier{}, testLogger, nil).Sweep(ctx, now.AddDate(0, -4, 0))

	metrics := NewMetrics(prometheus.NewRegistry())
	n, err := Prune(ctx, f.reminders, now, testLogger, metrics)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 2 {
		t.Errorf("pruned = %d, want 2", n)
	}
	if got := counterValue(t, metrics.RemindersPruned); got != 2 {
		t.Errorf("pruned metric = %v, want 2", got)
	}
}

func TestRunnerSweepsAndStops(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	now := time.Now().UTC()

	task := f.createTask(t, ptr(now.Add(2*time.Hour)))
	NewScheduler(testLogger, nil).Schedule(ctx, f.reminders, f.input(t, task, f.alice.ID))

	notifier := &recordingNotifier{}
	sweeper := NewSweeper(f.reminders, notifier, testLogger, nil)
	r := NewRunner(sweeper, f.reminders, testLogger, nil, 10*time.Millisecond, time.Hour)
	r.Start(ctx)

	deadline := time.After(2 * time.Second)
	for notifier.count() < 2 {
		select {
		case <-deadline:
			r.Stop()
			t.Fatalf("notified = %d, want 2", notifier.count())
		case <-time.After(5 * time.Millisecond):
		}
	}
	r.Stop()

	if notifier.count() != 2 {
		t.Errorf("notified = %d, want exactly 2 across ticks", notifier.count())
	}
}

func TestValidatePreference(t *testing.T) {
	long := make([]byte, 256)
	for i := range long {
		long[i] = 'a'
	}
	tests := []struct {
		name     string
		prefName string
		leadTime int64
		want     error
	}{
		{"valid", "Hour before", 3600, nil},
		{"minimum", "x", 60, nil},
		{"maximum", "x", 604800, nil},
		{"too short", "x", 59, ErrInvalidLeadTime},
		{"too long", "x", 604801, ErrInvalidLeadTime},
		{"empty name", "  ", 3600, ErrInvalidName},
		{"name 255", string(long[:255]), 3600, nil},
		{"name 256", string(long), 3600, ErrInvalidName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidatePreference(tt.prefName, tt.leadTime); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}
