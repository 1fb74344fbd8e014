package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/mattn/go-sqlite3"

	"cultivate/internal/forum"
	"cultivate/internal/schema"
)

var (
	ErrUniqueViolation     = errors.New("unique constraint violated")
	ErrForeignKeyViolation = errors.New("foreign key constraint violated")
)

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// entityMutator validates records against one entity and inserts them.
type entityMutator struct {
	db        *SQLiteDatabase
	entity    *schema.EntityDescriptor
	relations map[string]bool
}

// Mutator returns the writer for entity, validating against the current descriptor.
func (s *SQLiteDatabase) Mutator(entity string) (forum.Mutator, error) {
	if s.schema == nil {
		return nil, ErrNoSchema
	}
	e, ok := s.schema.Entity(entity)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, entity)
	}

	relations := make(map[string]bool)
	for _, r := range s.schema.RelationsFrom(entity) {
		relations[r.Column] = true
	}
	return &entityMutator{db: s, entity: e, relations: relations}, nil
}

// InsertOne validates rec, fills defaults and timestamps, and inserts it.
func (m *entityMutator) InsertOne(ctx context.Context, rec forum.Record) (*forum.Result, error) {
	row, err := m.prepare(rec)
	if err != nil {
		return nil, err
	}
	if err := m.insert(ctx, m.db.db, row); err != nil {
		return nil, err
	}
	return &forum.Result{Data: row}, nil
}

// InsertMany inserts recs in one transaction. Either all rows are written or none.
func (m *entityMutator) InsertMany(ctx context.Context, recs []forum.Record) (*forum.ManyResult, error) {
	rows := make([]forum.Record, 0, len(recs))
	for i, rec := range recs {
		row, err := m.prepare(rec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return &forum.ManyResult{}, nil
	}

	tx, err := m.db.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("inserting into %s: %w", m.entity.Name, err)
	}
	defer tx.Rollback()

	for i, row := range rows {
		if err := m.insert(ctx, tx, row); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("inserting into %s: %w", m.entity.Name, err)
	}
	return &forum.ManyResult{Data: rows}, nil
}

// prepare returns the row to store: validated caller values plus defaults
// and timestamps.
func (m *entityMutator) prepare(rec forum.Record) (forum.Record, error) {
	name := m.entity.Name
	row := make(forum.Record, len(rec)+2)

	for col, v := range rec {
		if f, ok := m.entity.Field(col); ok {
			if err := schema.CheckValue(*f, v); err != nil {
				return nil, fmt.Errorf("%w: %s.%s: %w", ErrInvalidValue, name, col, err)
			}
			row[col] = v
			continue
		}
		if m.relations[col] {
			id, err := toInt64(v)
			if err != nil {
				return nil, fmt.Errorf("%w: %s.%s: %w", ErrInvalidValue, name, col, err)
			}
			if id != nil {
				row[col] = *id
			}
			continue
		}
		if m.entity.Timestamps != nil && (col == schema.ColumnCreatedAt || col == schema.ColumnUpdatedAt) {
			row[col] = v
			continue
		}
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, name, col)
	}

	for _, f := range m.entity.Fields {
		if row[f.Name] != nil {
			continue
		}
		if f.HasDefault() {
			row[f.Name] = f.Default
			continue
		}
		if f.Required {
			return nil, fmt.Errorf("%w: %s.%s", ErrRequiredField, name, f.Name)
		}
		delete(row, f.Name)
	}

	if ts := m.entity.Timestamps; ts != nil {
		now := m.db.clock.Now().UTC()
		if row[schema.ColumnCreatedAt] == nil {
			row[schema.ColumnCreatedAt] = now
		}
		if row[schema.ColumnUpdatedAt] == nil && ts.SetUpdatedOnCreate {
			row[schema.ColumnUpdatedAt] = now
		}
	}
	return row, nil
}

func (m *entityMutator) insert(ctx context.Context, ex execer, row forum.Record) error {
	cols := sortedKeys(row)
	var stmt string
	args := make([]any, len(cols))
	if len(cols) == 0 {
		stmt = "INSERT INTO " + quoteIdent(m.entity.Name) + " DEFAULT VALUES"
	} else {
		quoted := make([]string, len(cols))
		marks := make([]string, len(cols))
		for i, c := range cols {
			quoted[i] = quoteIdent(c)
			marks[i] = "?"
			args[i] = row[c]
		}
		stmt = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			quoteIdent(m.entity.Name), strings.Join(quoted, ", "), strings.Join(marks, ", "))
	}

	res, err := ex.ExecContext(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("inserting into %s: %w", m.entity.Name, classify(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("inserting into %s: %w", m.entity.Name, err)
	}
	row[schema.ColumnID] = id
	return nil
}

// classify tags SQLite constraint failures with a package sentinel.
func classify(err error) error {
	var serr sqlite3.Error
	if !errors.As(err, &serr) {
		return err
	}
	switch serr.ExtendedCode {
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	case sqlite3.ErrConstraintForeignKey:
		return fmt.Errorf("%w: %w", ErrForeignKeyViolation, err)
	}
	return err
}

// toInt64 accepts any integer kind for relation columns. nil yields nil.
func toInt64(v any) (*int64, error) {
	if v == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(v)
	var id int64
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		id = rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		id = int64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f != float64(int64(f)) {
			return nil, fmt.Errorf("expected integer id, got %v", f)
		}
		id = int64(f)
	default:
		return nil, fmt.Errorf("expected integer id, got %T", v)
	}
	return &id, nil
}
