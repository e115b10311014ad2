package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/homestead/internal/database"
	"github.com/dukerupert/homestead/internal/model"
)

type TaskStore struct {
	db database.DBTX
}

func NewTaskStore(db database.DBTX) *TaskStore {
	return &TaskStore{db: db}
}

// WithTx returns a TaskStore bound to tx.
func (s *TaskStore) WithTx(tx *sql.Tx) *TaskStore {
	return &TaskStore{db: tx}
}

// TaskParams holds the writable task columns.
type TaskParams struct {
	Title       string
	Description string
	Status      string
	Deadline    *time.Time
	GroupID     *int64
}

func scanTask(scanner interface{ Scan(...any) error }) (*model.Task, error) {
	var t model.Task
	var groupID, deadline sql.NullInt64
	err := scanner.Scan(
		&t.ID, &t.HouseholdID, &t.OwnerID, &groupID, &t.Title, &t.Description,
		&t.Status, &deadline, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.GroupID = fromNullInt64(groupID)
	t.Deadline = fromNullUnix(deadline)
	return &t, nil
}

const taskCols = `id, household_id, owner_id, group_id, title, description, status, deadline, created_at, updated_at`

func (s *TaskStore) Create(ctx context.Context, householdID, ownerID int64, p TaskParams) (*model.Task, error) {
	status := p.Status
	if status == "" {
		status = model.TaskStatusTodo
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (household_id, owner_id, group_id, title, description, status, deadline)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		householdID, ownerID, nullInt64(p.GroupID), p.Title, p.Description, status, nullUnix(p.Deadline),
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id, householdID)
}

func (s *TaskStore) GetByID(ctx context.Context, id, householdID int64) (*model.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskCols+` FROM tasks WHERE id = ? AND household_id = ?`,
		id, householdID,
	)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	assigned, err := s.ListAssignees(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	t.Assigned = assigned
	return t, nil
}

func (s *TaskStore) Update(ctx context.Context, id, householdID int64, p TaskParams) (*model.Task, error) {
	status := p.Status
	if status == "" {
		status = model.TaskStatusTodo
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET group_id = ?, title = ?, description = ?, status = ?, deadline = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND household_id = ?`,
		nullInt64(p.GroupID), p.Title, p.Description, status, nullUnix(p.Deadline), id, householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	return s.GetByID(ctx, id, householdID)
}

func (s *TaskStore) Delete(ctx context.Context, id, householdID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND household_id = ?`, id, householdID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// List returns the household's tasks matching filter, ordered by deadline
// with undated tasks last.
func (s *TaskStore) List(ctx context.Context, householdID int64, f model.TaskFilter) ([]model.Task, error) {
	where := []string{"household_id = ?"}
	args := []any{householdID}

	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.DeadlineStart != nil {
		where = append(where, "deadline >= ?")
		args = append(args, f.DeadlineStart.Unix())
	}
	if f.DeadlineEnd != nil {
		where = append(where, "deadline <= ?")
		args = append(args, f.DeadlineEnd.Unix())
	}
	if f.GroupID != nil {
		where = append(where, "group_id = ?")
		args = append(args, *f.GroupID)
	}
	if len(f.Assigned) > 0 {
		where = append(where, `id IN (SELECT task_id FROM task_assignees WHERE user_id IN (`+placeholders(len(f.Assigned))+`))`)
		args = append(args, int64Args(f.Assigned)...)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskCols+` FROM tasks WHERE `+strings.Join(where, " AND ")+
			` ORDER BY deadline IS NULL, deadline ASC, id ASC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, err
	}

	// Assignees are loaded after the cursor is closed; a single connection
	// cannot hold two open result sets inside a transaction.
	for i := range tasks {
		assigned, err := s.ListAssignees(ctx, tasks[i].ID)
		if err != nil {
			return nil, err
		}
		tasks[i].Assigned = assigned
	}
	return tasks, nil
}

// SetAssignees replaces the task's assignee set.
func (s *TaskStore) SetAssignees(ctx context.Context, taskID int64, userIDs []int64) error {
	return database.InTx(ctx, s.db, func(q database.DBTX) error {
		if _, err := q.ExecContext(ctx, `DELETE FROM task_assignees WHERE task_id = ?`, taskID); err != nil {
			return fmt.Errorf("clear assignees: %w", err)
		}
		for _, uid := range userIDs {
			if _, err := q.ExecContext(ctx,
				`INSERT OR IGNORE INTO task_assignees (task_id, user_id) VALUES (?, ?)`,
				taskID, uid,
			); err != nil {
				return fmt.Errorf("insert assignee: %w", err)
			}
		}
		return nil
	})
}

// ListAssignees returns the ids of users assigned to the task.
func (s *TaskStore) ListAssignees(ctx context.Context, taskID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM task_assignees WHERE task_id = ? ORDER BY user_id ASC`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("list assignees: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan assignee: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RemoveAssignee unassigns the user from every task in the household and
// returns the ids of the tasks that lost an assignee.
func (s *TaskStore) RemoveAssignee(ctx context.Context, householdID, userID int64) ([]int64, error) {
	var ids []int64
	err := database.InTx(ctx, s.db, func(q database.DBTX) error {
		rows, err := q.QueryContext(ctx,
			`SELECT ta.task_id FROM task_assignees ta
			 JOIN tasks t ON t.id = ta.task_id
			 WHERE t.household_id = ? AND ta.user_id = ?
			 ORDER BY ta.task_id ASC`,
			householdID, userID,
		)
		if err != nil {
			return fmt.Errorf("list assigned tasks: %w", err)
		}
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("scan task id: %w", err)
			}
			ids = append(ids, id)
		}
		if err := rows.Close(); err != nil {
			return err
		}
		if err := rows.Err(); err != nil {
			return err
		}

		_, err = q.ExecContext(ctx,
			`DELETE FROM task_assignees
			 WHERE user_id = ? AND task_id IN (SELECT id FROM tasks WHERE household_id = ?)`,
			userID, householdID,
		)
		if err != nil {
			return fmt.Errorf("remove assignee: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
