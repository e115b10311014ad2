package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/dukerupert/homestead/internal/database"
	"github.com/dukerupert/homestead/internal/model"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// seedHousehold creates a household with an admin and returns both.
func seedHousehold(t *testing.T, db *sql.DB, email string) (*model.Household, *model.User) {
	t.Helper()
	ctx := context.Background()
	u, err := NewUserStore(db).Create(ctx, email, "Admin", "hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	hs := NewHouseholdStore(db)
	h, err := hs.Create(ctx, "Home")
	if err != nil {
		t.Fatalf("create household: %v", err)
	}
	if _, err := hs.AddMember(ctx, h.ID, u.ID, model.RoleAdmin); err != nil {
		t.Fatalf("add member: %v", err)
	}
	return h, u
}

func seedMember(t *testing.T, db *sql.DB, householdID int64, email string) *model.User {
	t.Helper()
	ctx := context.Background()
	u, err := NewUserStore(db).Create(ctx, email, "Member", "hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := NewHouseholdStore(db).AddMember(ctx, householdID, u.ID, model.RoleMember); err != nil {
		t.Fatalf("add member: %v", err)
	}
	return u
}
