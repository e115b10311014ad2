package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/homestead/internal/database"
	"github.com/dukerupert/homestead/internal/model"
)

type GroupStore struct {
	db database.DBTX
}

func NewGroupStore(db database.DBTX) *GroupStore {
	return &GroupStore{db: db}
}

func scanGroup(scanner interface{ Scan(...any) error }) (*model.Group, error) {
	var g model.Group
	err := scanner.Scan(&g.ID, &g.HouseholdID, &g.Name, &g.Description, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

const groupCols = `id, household_id, name, description, created_at, updated_at`

func (s *GroupStore) Create(ctx context.Context, householdID int64, name, description string) (*model.Group, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO task_groups (household_id, name, description) VALUES (?, ?, ?)`,
		householdID, name, description,
	)
	if err != nil {
		return nil, fmt.Errorf("insert group: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id, householdID)
}

func (s *GroupStore) GetByID(ctx context.Context, id, householdID int64) (*model.Group, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+groupCols+` FROM task_groups WHERE id = ? AND household_id = ?`,
		id, householdID,
	)
	g, err := scanGroup(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	return g, nil
}

func (s *GroupStore) List(ctx context.Context, householdID int64) ([]model.Group, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+groupCols+` FROM task_groups WHERE household_id = ? ORDER BY name ASC, id ASC`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var groups []model.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, *g)
	}
	return groups, rows.Err()
}

func (s *GroupStore) Update(ctx context.Context, id, householdID int64, name, description string) (*model.Group, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE task_groups SET name = ?, description = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND household_id = ?`,
		name, description, id, householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("update group: %w", err)
	}
	return s.GetByID(ctx, id, householdID)
}

func (s *GroupStore) Delete(ctx context.Context, id, householdID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM task_groups WHERE id = ? AND household_id = ?`, id, householdID)
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	return nil
}
