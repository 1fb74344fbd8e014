package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"cultivate/internal/database/migrations"
	"cultivate/internal/forum"
	"cultivate/internal/schema"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

var (
	ErrNoSchema          = errors.New("no schema loaded")
	ErrUnknownEntity     = errors.New("unknown entity")
	ErrUnknownColumn     = errors.New("unknown column")
	ErrRequiredField     = errors.New("required field missing")
	ErrInvalidValue      = errors.New("invalid value")
	ErrInvalidEnum       = schema.ErrInvalidEnumValue
	ErrSyncRequiresForce = errors.New("schema change requires force")
	ErrSyncRequiresDrop  = errors.New("schema change requires drop")
)

// SQLiteDatabase stores entity rows and the system tables in SQLite.
type SQLiteDatabase struct {
	db     *sql.DB
	path   string
	clock  forum.Clock
	schema *schema.Descriptor
}

// NewSQLiteDatabase creates a new SQLite database connection.
// path can be a file path or ":memory:" for in-memory database.
// A nil clock uses the wall clock.
func NewSQLiteDatabase(path string, clock forum.Clock) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if clock == nil {
		clock = forum.RealClock{}
	}

	return &SQLiteDatabase{
		db:    db,
		path:  path,
		clock: clock,
	}, nil
}

// OpenConnection opens a SQLite database with foreign key enforcement on every
// connection. It is exported for tools and tests.
// path can be a file path or ":memory:" for in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	dsn := path
	if strings.Contains(dsn, "?") {
		dsn += "&_foreign_keys=on"
	} else {
		dsn += "?_foreign_keys=on"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every pooled connection to :memory: is a separate database, and sync
	// toggles pragmas that must apply to the connection doing the work.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// Migrate applies pending system table migrations.
func (s *SQLiteDatabase) Migrate() error {
	return migrations.MigrateUp(s.db)
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// MigrationStatus reports the applied and latest migration versions.
func (s *SQLiteDatabase) MigrationStatus() (*migrations.Status, error) {
	return migrations.GetStatus(s.db)
}

// UseSchema sets the descriptor mutators validate against, without touching
// the tables. Sync sets it too.
func (s *SQLiteDatabase) UseSchema(d *schema.Descriptor) {
	s.schema = d
}

// Schema returns the descriptor in use, or nil.
func (s *SQLiteDatabase) Schema() *schema.Descriptor {
	return s.schema
}

// Conn exposes the underlying handle for tools and tests.
func (s *SQLiteDatabase) Conn() *sql.DB {
	return s.db
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// Count returns the number of rows of entity matching every column in where.
func (s *SQLiteDatabase) Count(ctx context.Context, entity string, where forum.Record) (int64, error) {
	if s.schema != nil {
		if _, ok := s.schema.Entity(entity); !ok {
			return 0, fmt.Errorf("%w: %s", ErrUnknownEntity, entity)
		}
	}

	query := "SELECT COUNT(*) FROM " + quoteIdent(entity)
	var args []any
	if len(where) > 0 {
		var conds []string
		for _, col := range sortedKeys(where) {
			conds = append(conds, quoteIdent(col)+" = ?")
			args = append(args, where[col])
		}
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting %s: %w", entity, err)
	}
	return n, nil
}

// Operation is a row of the operations log.
type Operation struct {
	ID         int64
	Operation  string
	Parameters string
	Status     string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// CreateOperation records the start of a CLI operation.
func (s *SQLiteDatabase) CreateOperation(ctx context.Context, operation, parameters string) (*Operation, error) {
	op := &Operation{
		Operation:  operation,
		Parameters: parameters,
		Status:     "running",
		StartedAt:  s.clock.Now().UTC(),
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO operations (operation, parameters, status, started_at) VALUES (?, ?, ?, ?)",
		op.Operation, op.Parameters, op.Status, op.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("creating operation: %w", err)
	}
	op.ID, err = res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("creating operation: %w", err)
	}
	return op, nil
}

// FinishOperation stamps the operation with its final status.
func (s *SQLiteDatabase) FinishOperation(ctx context.Context, id int64, status string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE operations SET status = ?, finished_at = ? WHERE id = ?",
		status, s.clock.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finishing operation: no operation with id %d", id)
	}
	return nil
}

// ListOperations returns the most recent operations, newest first.
func (s *SQLiteDatabase) ListOperations(ctx context.Context, limit int) ([]*Operation, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, operation, parameters, status, started_at, finished_at FROM operations ORDER BY id DESC LIMIT ?",
		limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	defer rows.Close()

	var ops []*Operation
	for rows.Next() {
		op := &Operation{}
		var finished sql.NullTime
		if err := rows.Scan(&op.ID, &op.Operation, &op.Parameters, &op.Status, &op.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("listing operations: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			op.FinishedAt = &t
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	return ops, nil
}

// Tables returns the names of all tables in the database, sorted.
func (s *SQLiteDatabase) Tables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("listing tables: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
func (s *SQLiteDatabase) BackupTo(destPath string) error {
	_, err := s.db.Exec("VACUUM INTO ?", destPath)
	if err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

var _ forum.DataContext = (*SQLiteDatabase)(nil)
