package database

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"cultivate/internal/forum"
	"cultivate/internal/schema"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

var testNow = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// newTestDB creates an in-memory database with migrations applied and the
// forum schema synced.
func newTestDB(t *testing.T) *SQLiteDatabase {
	t.Helper()

	db := newMigratedDB(t)
	if _, err := db.Sync(context.Background(), forumDescriptor(t), SyncPolicy{}); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	return db
}

// newMigratedDB creates an in-memory database with only the system tables.
func newMigratedDB(t *testing.T) *SQLiteDatabase {
	t.Helper()

	db, err := NewSQLiteDatabase(":memory:", fixedClock{now: testNow})
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

func forumDescriptor(t *testing.T) *schema.Descriptor {
	t.Helper()

	d, err := schema.ForumDescriptor(schema.DefaultTimestamps())
	if err != nil {
		t.Fatalf("ForumDescriptor() error = %v", err)
	}
	return d
}

func TestSQLiteDatabase_Operations(t *testing.T) {
	ctx := context.Background()

	t.Run("create and list operations", func(t *testing.T) {
		db := newMigratedDB(t)

		op1, err := db.CreateOperation(ctx, "Sync", "force=true")
		if err != nil {
			t.Fatalf("CreateOperation() error = %v", err)
		}
		if op1.ID == 0 {
			t.Error("operation ID should be non-zero")
		}
		if op1.Operation != "Sync" || op1.Status != "running" {
			t.Errorf("operation = %+v, want running Sync", op1)
		}

		op2, err := db.CreateOperation(ctx, "Seed", "")
		if err != nil {
			t.Fatalf("CreateOperation() error = %v", err)
		}

		ops, err := db.ListOperations(ctx, 10)
		if err != nil {
			t.Fatalf("ListOperations() error = %v", err)
		}
		if len(ops) != 2 {
			t.Fatalf("got %d operations, want 2", len(ops))
		}
		if ops[0].ID != op2.ID {
			t.Errorf("expected newest first: got ID %d, want %d", ops[0].ID, op2.ID)
		}
		if ops[1].Parameters != "force=true" {
			t.Errorf("Parameters = %q, want force=true", ops[1].Parameters)
		}
		if !ops[1].StartedAt.Equal(testNow) {
			t.Errorf("StartedAt = %v, want %v", ops[1].StartedAt, testNow)
		}
	})

	t.Run("finish operation sets status and time", func(t *testing.T) {
		db := newMigratedDB(t)

		op, _ := db.CreateOperation(ctx, "Seed", "")
		if err := db.FinishOperation(ctx, op.ID, "success"); err != nil {
			t.Fatalf("FinishOperation() error = %v", err)
		}

		ops, _ := db.ListOperations(ctx, 1)
		if ops[0].Status != "success" {
			t.Errorf("Status = %q, want %q", ops[0].Status, "success")
		}
		if ops[0].FinishedAt == nil {
			t.Error("FinishedAt should be set")
		}
	})

	t.Run("finish unknown operation fails", func(t *testing.T) {
		db := newMigratedDB(t)

		if err := db.FinishOperation(ctx, 42, "success"); err == nil {
			t.Error("FinishOperation() expected error for unknown id")
		}
	})
}

func TestSQLiteDatabase_Count(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	m, err := db.Mutator(schema.Groups)
	if err != nil {
		t.Fatalf("Mutator() error = %v", err)
	}
	for _, vis := range []string{"public", "public", "private"} {
		if _, err := m.InsertOne(ctx, forum.Record{"name": "g", "visibility": vis}); err != nil {
			t.Fatalf("InsertOne() error = %v", err)
		}
	}

	tests := []struct {
		name  string
		where forum.Record
		want  int64
	}{
		{"all rows", nil, 3},
		{"filtered", forum.Record{"visibility": "public"}, 2},
		{"no match", forum.Record{"visibility": "public", "name": "other"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.Count(ctx, schema.Groups, tt.where)
			if err != nil {
				t.Fatalf("Count() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Count() = %d, want %d", got, tt.want)
			}
		})
	}

	t.Run("unknown entity", func(t *testing.T) {
		_, err := db.Count(ctx, "widgets", nil)
		if !errors.Is(err, ErrUnknownEntity) {
			t.Errorf("Count() error = %v, want ErrUnknownEntity", err)
		}
	})
}

func TestSQLiteDatabase_BackupTo(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	m, _ := db.Mutator(schema.Profiles)
	if _, err := m.InsertOne(ctx, forum.Record{"name": "Backed Up", "user_id": "u-1"}); err != nil {
		t.Fatalf("InsertOne() error = %v", err)
	}

	destPath := filepath.Join(t.TempDir(), "backup.db")
	if err := db.BackupTo(destPath); err != nil {
		t.Fatalf("BackupTo() error = %v", err)
	}

	backup, err := NewSQLiteDatabase(destPath, nil)
	if err != nil {
		t.Fatalf("opening backup: %v", err)
	}
	defer backup.Close()

	n, err := backup.Count(ctx, schema.Profiles, forum.Record{"name": "Backed Up"})
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 1 {
		t.Errorf("backup has %d matching profiles, want 1", n)
	}
	if err := backup.CheckMigrations(); err != nil {
		t.Errorf("backup CheckMigrations() error = %v", err)
	}
}

func TestSQLiteDatabase_CheckMigrations(t *testing.T) {
	t.Run("fails on DB without migrations applied", func(t *testing.T) {
		db, err := NewSQLiteDatabase(":memory:", nil)
		if err != nil {
			t.Fatalf("NewSQLiteDatabase() error = %v", err)
		}
		defer db.Close()

		if err := db.CheckMigrations(); err == nil {
			t.Error("CheckMigrations() expected error for missing schema")
		}
	})

	t.Run("passes after Migrate", func(t *testing.T) {
		db := newMigratedDB(t)

		if err := db.CheckMigrations(); err != nil {
			t.Errorf("CheckMigrations() error = %v", err)
		}
		st, err := db.MigrationStatus()
		if err != nil {
			t.Fatalf("MigrationStatus() error = %v", err)
		}
		if st.Version != st.Latest {
			t.Errorf("MigrationStatus() = %+v, want version at latest", st)
		}
	})
}

func TestOpenConnection_ForeignKeysEnabled(t *testing.T) {
	db, err := OpenConnection(":memory:")
	if err != nil {
		t.Fatalf("OpenConnection() error = %v", err)
	}
	defer db.Close()

	var on int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&on); err != nil {
		t.Fatalf("reading pragma: %v", err)
	}
	if on != 1 {
		t.Errorf("foreign_keys = %d, want 1", on)
	}
}

func TestSQLiteDatabase_Tables(t *testing.T) {
	ctx := context.Background()

	got, err := newMigratedDB(t).Tables(ctx)
	if err != nil {
		t.Fatalf("Tables() error = %v", err)
	}
	want := []string{"operations", "schema_migrations", "users"}
	if !slices.Equal(got, want) {
		t.Errorf("Tables() = %v, want %v", got, want)
	}

	synced, err := newTestDB(t).Tables(ctx)
	if err != nil {
		t.Fatalf("Tables() error = %v", err)
	}
	for _, entity := range schema.ForumEntities {
		if !slices.Contains(synced, entity) {
			t.Errorf("Tables() after sync missing %q", entity)
		}
	}
}
