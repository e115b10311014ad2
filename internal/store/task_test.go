package store

import (
	"context"
	"testing"
	"time"

	"github.com/dukerupert/homestead/internal/model"
)

func TestTaskCreate(t *testing.T) {
	db := setupTestDB(t)
	ts := NewTaskStore(db)
	h, u := seedHousehold(t, db, "alice@example.com")
	deadline := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

	task, err := ts.Create(context.Background(), h.ID, u.ID, TaskParams{
		Title:       "Take out bins",
		Description: "Recycling too",
		Deadline:    &deadline,
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.Title != "Take out bins" {
		t.Errorf("title = %q", task.Title)
	}
	if task.Status != model.TaskStatusTodo {
		t.Errorf("status = %q, want default %q", task.Status, model.TaskStatusTodo)
	}
	if task.Deadline == nil || !task.Deadline.Equal(deadline) {
		t.Errorf("deadline = %v, want %v", task.Deadline, deadline)
	}
	if task.OwnerID != u.ID || task.HouseholdID != h.ID {
		t.Errorf("got %+v", task)
	}
	if len(task.Assigned) != 0 {
		t.Errorf("assigned = %v, want empty", task.Assigned)
	}
}

func TestTaskInvalidStatus(t *testing.T) {
	db := setupTestDB(t)
	h, u := seedHousehold(t, db, "alice@example.com")

	_, err := NewTaskStore(db).Create(context.Background(), h.ID, u.ID, TaskParams{Title: "x", Status: "blocked"})
	if err == nil {
		t.Fatal("expected error for unknown status, got nil")
	}
}

func TestTaskUpdateClearsDeadline(t *testing.T) {
	db := setupTestDB(t)
	ts := NewTaskStore(db)
	ctx := context.Background()
	h, u := seedHousehold(t, db, "alice@example.com")
	deadline := time.Now().Add(time.Hour)

	task, _ := ts.Create(ctx, h.ID, u.ID, TaskParams{Title: "Mow", Deadline: &deadline})
	updated, err := ts.Update(ctx, task.ID, h.ID, TaskParams{Title: "Mow lawn", Status: model.TaskStatusCompleted})
	if err != nil {
		t.Fatalf("update task: %v", err)
	}
	if updated.Deadline != nil {
		t.Errorf("deadline = %v, want nil", updated.Deadline)
	}
	if updated.Status != model.TaskStatusCompleted || updated.Title != "Mow lawn" {
		t.Errorf("got %+v", updated)
	}
}

func TestTaskHouseholdScoped(t *testing.T) {
	db := setupTestDB(t)
	ts := NewTaskStore(db)
	ctx := context.Background()
	h, u := seedHousehold(t, db, "alice@example.com")
	other, _ := seedHousehold(t, db, "bob@example.com")

	task, _ := ts.Create(ctx, h.ID, u.ID, TaskParams{Title: "Private"})

	got, err := ts.GetByID(ctx, task.ID, other.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil across households, got %+v", got)
	}

	if err := ts.Delete(ctx, task.ID, other.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got, _ := ts.GetByID(ctx, task.ID, h.ID); got == nil {
		t.Error("task deleted from another household")
	}
}

func TestTaskAssignees(t *testing.T) {
	db := setupTestDB(t)
	ts := NewTaskStore(db)
	ctx := context.Background()
	h, u := seedHousehold(t, db, "alice@example.com")
	m := seedMember(t, db, h.ID, "bob@example.com")

	task, _ := ts.Create(ctx, h.ID, u.ID, TaskParams{Title: "Dishes"})
	if err := ts.SetAssignees(ctx, task.ID, []int64{m.ID, u.ID, m.ID}); err != nil {
		t.Fatalf("set assignees: %v", err)
	}
	got, _ := ts.GetByID(ctx, task.ID, h.ID)
	if len(got.Assigned) != 2 || got.Assigned[0] != u.ID || got.Assigned[1] != m.ID {
		t.Errorf("assigned = %v, want [%d %d]", got.Assigned, u.ID, m.ID)
	}

	if err := ts.SetAssignees(ctx, task.ID, []int64{m.ID}); err != nil {
		t.Fatalf("set assignees: %v", err)
	}
	ids, err := ts.ListAssignees(ctx, task.ID)
	if err != nil {
		t.Fatalf("list assignees: %v", err)
	}
	if len(ids) != 1 || ids[0] != m.ID {
		t.Errorf("assigned = %v, want [%d]", ids, m.ID)
	}
}

func TestTaskList(t *testing.T) {
	db := setupTestDB(t)
	ts := NewTaskStore(db)
	gs := NewGroupStore(db)
	ctx := context.Background()
	h, u := seedHousehold(t, db, "alice@example.com")
	m := seedMember(t, db, h.ID, "bob@example.com")

	g, _ := gs.Create(ctx, h.ID, "Garden", "")
	d1 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	d2 := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)

	early, _ := ts.Create(ctx, h.ID, u.ID, TaskParams{Title: "Early", Deadline: &d1, GroupID: &g.ID})
	late, _ := ts.Create(ctx, h.ID, u.ID, TaskParams{Title: "Late", Deadline: &d2, Status: model.TaskStatusInProgress})
	undated, _ := ts.Create(ctx, h.ID, u.ID, TaskParams{Title: "Someday"})
	ts.SetAssignees(ctx, late.ID, []int64{m.ID})

	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		filter model.TaskFilter
		want   []int64
	}{
		{"all ordered by deadline", model.TaskFilter{}, []int64{early.ID, late.ID, undated.ID}},
		{"status", model.TaskFilter{Status: model.TaskStatusInProgress}, []int64{late.ID}},
		{"deadline start", model.TaskFilter{DeadlineStart: &start}, []int64{late.ID}},
		{"deadline end", model.TaskFilter{DeadlineEnd: &start}, []int64{early.ID}},
		{"group", model.TaskFilter{GroupID: &g.ID}, []int64{early.ID}},
		{"assigned", model.TaskFilter{Assigned: []int64{m.ID}}, []int64{late.ID}},
		{"assigned any", model.TaskFilter{Assigned: []int64{u.ID, m.ID}}, []int64{late.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tasks, err := ts.List(ctx, h.ID, tt.filter)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(tasks) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(tasks), len(tt.want))
			}
			for i, id := range tt.want {
				if tasks[i].ID != id {
					t.Errorf("tasks[%d].ID = %d, want %d", i, tasks[i].ID, id)
				}
			}
		})
	}

	all, _ := ts.List(ctx, h.ID, model.TaskFilter{})
	if len(all[1].Assigned) != 1 || all[1].Assigned[0] != m.ID {
		t.Errorf("list did not load assignees: %v", all[1].Assigned)
	}
}

func TestTaskRemoveAssignee(t *testing.T) {
	db := setupTestDB(t)
	ts := NewTaskStore(db)
	ctx := context.Background()
	h, u := seedHousehold(t, db, "alice@example.com")
	m := seedMember(t, db, h.ID, "bob@example.com")
	other, otherAdmin := seedHousehold(t, db, "carol@example.com")
	NewHouseholdStore(db).AddMember(ctx, other.ID, m.ID, model.RoleMember)

	shared, _ := ts.Create(ctx, h.ID, u.ID, TaskParams{Title: "Dishes"})
	ts.SetAssignees(ctx, shared.ID, []int64{u.ID, m.ID})
	mine, _ := ts.Create(ctx, h.ID, u.ID, TaskParams{Title: "Laundry"})
	ts.SetAssignees(ctx, mine.ID, []int64{u.ID})
	elsewhere, _ := ts.Create(ctx, other.ID, otherAdmin.ID, TaskParams{Title: "Garden"})
	ts.SetAssignees(ctx, elsewhere.ID, []int64{m.ID})

	ids, err := ts.RemoveAssignee(ctx, h.ID, m.ID)
	if err != nil {
		t.Fatalf("remove assignee: %v", err)
	}
	if len(ids) != 1 || ids[0] != shared.ID {
		t.Errorf("affected = %v, want [%d]", ids, shared.ID)
	}
	if got, _ := ts.ListAssignees(ctx, shared.ID); len(got) != 1 || got[0] != u.ID {
		t.Errorf("shared assignees = %v, want [%d]", got, u.ID)
	}
	if got, _ := ts.ListAssignees(ctx, elsewhere.ID); len(got) != 1 || got[0] != m.ID {
		t.Errorf("other household assignees = %v, want [%d]", got, m.ID)
	}
}
