package testutil

import (
	"context"
	"testing"

	"cultivate/internal/database"
	"cultivate/internal/schema"
)

// NewTestDatabase creates an in-memory database with the system migrations
// applied and the forum schema synced. Timestamps come from FixedClock.
// The database is closed when the test completes.
func NewTestDatabase(t *testing.T) *database.SQLiteDatabase {
	t.Helper()

	db := NewMigratedDatabase(t)

	desc, err := schema.ForumDescriptor(schema.DefaultTimestamps())
	if err != nil {
		t.Fatalf("failed to build forum schema: %v", err)
	}
	if _, err := db.Sync(context.Background(), desc, database.SyncPolicy{}); err != nil {
		t.Fatalf("failed to sync forum schema: %v", err)
	}
	return db
}

// NewMigratedDatabase creates an in-memory database with only the system
// tables.
func NewMigratedDatabase(t *testing.T) *database.SQLiteDatabase {
	t.Helper()

	db, err := database.NewSQLiteDatabase(":memory:", FixedClock())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})

	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to apply migrations: %v", err)
	}
	return db
}

// MustCount returns the row count of entity or fails the test.
func MustCount(t *testing.T, db *database.SQLiteDatabase, entity string) int64 {
	t.Helper()

	n, err := db.Count(context.Background(), entity, nil)
	if err != nil {
		t.Fatalf("counting %s: %v", entity, err)
	}
	return n
}
