package database

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"

	"cultivate/internal/database/migrations"
	"cultivate/internal/schema"
)

// SyncPolicy controls which destructive changes Sync may make.
type SyncPolicy struct {
	// Force permits rebuilding tables whose columns or indices changed.
	Force bool
	// Drop permits dropping tables, columns and indices absent from the descriptor.
	Drop bool
}

// SyncReport lists what Sync changed.
type SyncReport struct {
	Created        []string
	Altered        []string // "table.column" added in place
	Rebuilt        []string
	Dropped        []string
	IndicesCreated []string
	IndicesDropped []string
	// Unmanaged are tables absent from the descriptor that were left alone.
	Unmanaged []string
}

// Changed reports whether Sync modified the database.
func (r *SyncReport) Changed() bool {
	return len(r.Created)+len(r.Altered)+len(r.Rebuilt)+len(r.Dropped)+
		len(r.IndicesCreated)+len(r.IndicesDropped) > 0
}

type existingColumn struct {
	name    string
	typ     string
	notNull bool
}

type existingIndex struct {
	unique bool
	cols   []string
}

// Sync brings the entity tables in line with d and makes d the descriptor
// mutators validate against. All changes run in one transaction; on error
// nothing is applied.
func (s *SQLiteDatabase) Sync(ctx context.Context, d *schema.Descriptor, policy SyncPolicy) (*SyncReport, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("sync: acquiring connection: %w", err)
	}
	defer conn.Close()

	// Table rebuilds drop tables other tables reference; the pragma is a
	// no-op inside a transaction so it is set around it.
	if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
		return nil, fmt.Errorf("sync: disabling foreign keys: %w", err)
	}
	defer conn.ExecContext(context.Background(), "PRAGMA foreign_keys = ON")

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sync: begin: %w", err)
	}
	defer tx.Rollback()

	report, err := syncTx(ctx, tx, d, policy)
	if err != nil {
		return nil, fmt.Errorf("sync: %w", err)
	}

	if err := checkForeignKeys(ctx, tx); err != nil {
		return nil, fmt.Errorf("sync: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sync: commit: %w", err)
	}

	s.schema = d
	return report, nil
}

func syncTx(ctx context.Context, tx *sql.Tx, d *schema.Descriptor, policy SyncPolicy) (*SyncReport, error) {
	report := &SyncReport{}

	tables, err := loadTables(ctx, tx)
	if err != nil {
		return nil, err
	}

	for i := range d.Entities {
		e := &d.Entities[i]
		cols := entityColumns(d, e)

		tableSQL, exists := tables[e.Name]
		if !exists {
			if _, err := tx.ExecContext(ctx, createTableSQL(e.Name, cols)); err != nil {
				return nil, fmt.Errorf("creating table %s: %w", e.Name, err)
			}
			report.Created = append(report.Created, e.Name)
		} else {
			rebuilt, err := syncColumns(ctx, tx, e.Name, cols, tableSQL, policy, report)
			if err != nil {
				return nil, err
			}
			if rebuilt {
				report.Rebuilt = append(report.Rebuilt, e.Name)
			}
		}

		if err := syncIndices(ctx, tx, e.Name, d.IndicesOn(e.Name), policy, report); err != nil {
			return nil, err
		}
	}

	for _, name := range sortedKeys(tables) {
		if _, ok := d.Entity(name); ok || slices.Contains(migrations.SystemTables, name) {
			continue
		}
		if !policy.Drop {
			report.Unmanaged = append(report.Unmanaged, name)
			continue
		}
		if _, err := tx.ExecContext(ctx, "DROP TABLE "+quoteIdent(name)); err != nil {
			return nil, fmt.Errorf("dropping table %s: %w", name, err)
		}
		report.Dropped = append(report.Dropped, name)
	}

	return report, nil
}

// syncColumns adds addable columns in place and rebuilds the table for any
// other difference the policy permits.
func syncColumns(ctx context.Context, tx *sql.Tx, table string, cols []column, tableSQL string, policy SyncPolicy, report *SyncReport) (bool, error) {
	existing, err := loadColumns(ctx, tx, table)
	if err != nil {
		return false, err
	}
	current := make(map[string]existingColumn, len(existing))
	for _, c := range existing {
		current[c.name] = c
	}

	var add []column
	var changed, removed []string
	wanted := make(map[string]bool, len(cols))
	for _, c := range cols {
		wanted[c.name] = true
		cur, ok := current[c.name]
		switch {
		case !ok && c.addable():
			add = append(add, c)
		case !ok:
			changed = append(changed, c.name)
		case !strings.EqualFold(cur.typ, c.sqlType) || cur.notNull != c.notNull ||
			!strings.Contains(tableSQL, c.definition()):
			changed = append(changed, c.name)
		}
	}
	for _, c := range existing {
		if !wanted[c.name] {
			removed = append(removed, c.name)
		}
	}

	if len(removed) > 0 && !policy.Drop {
		return false, fmt.Errorf("%w: %s has columns %v", ErrSyncRequiresDrop, table, removed)
	}
	if len(changed) > 0 && !policy.Force {
		return false, fmt.Errorf("%w: %s columns %v changed", ErrSyncRequiresForce, table, changed)
	}

	if len(removed) > 0 || len(changed) > 0 {
		var keep []string
		for _, c := range cols {
			if _, ok := current[c.name]; ok {
				keep = append(keep, c.name)
			}
		}
		if err := rebuildTable(ctx, tx, table, cols, keep); err != nil {
			return false, err
		}
		return true, nil
	}

	for _, c := range add {
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", quoteIdent(table), c.definition())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return false, fmt.Errorf("adding column %s.%s: %w", table, c.name, err)
		}
		report.Altered = append(report.Altered, table+"."+c.name)
	}
	return false, nil
}

// rebuildTable recreates table with cols, copying the keep columns across.
func rebuildTable(ctx context.Context, tx *sql.Tx, table string, cols []column, keep []string) error {
	tmp := table + "__new"
	quoted := make([]string, len(keep))
	for i, k := range keep {
		quoted[i] = quoteIdent(k)
	}
	list := strings.Join(quoted, ", ")

	stmts := []string{
		createTableSQL(tmp, cols),
		fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", quoteIdent(tmp), list, list, quoteIdent(table)),
		"DROP TABLE " + quoteIdent(table),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", quoteIdent(tmp), quoteIdent(table)),
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("rebuilding table %s: %w", table, err)
		}
	}
	return nil
}

func syncIndices(ctx context.Context, tx *sql.Tx, table string, want []schema.IndexDescriptor, policy SyncPolicy, report *SyncReport) error {
	existing, err := loadIndices(ctx, tx, table)
	if err != nil {
		return err
	}

	wanted := make(map[string]bool, len(want))
	for _, idx := range want {
		wanted[idx.Name] = true
		if cur, ok := existing[idx.Name]; ok {
			if cur.unique == idx.Unique && slices.Equal(cur.cols, idx.Fields) {
				continue
			}
			if !policy.Force {
				return fmt.Errorf("%w: index %s changed", ErrSyncRequiresForce, idx.Name)
			}
			if _, err := tx.ExecContext(ctx, "DROP INDEX "+quoteIdent(idx.Name)); err != nil {
				return fmt.Errorf("dropping index %s: %w", idx.Name, err)
			}
		}
		if _, err := tx.ExecContext(ctx, createIndexSQL(idx)); err != nil {
			return fmt.Errorf("creating index %s: %w", idx.Name, err)
		}
		report.IndicesCreated = append(report.IndicesCreated, idx.Name)
	}

	if !policy.Drop {
		return nil
	}
	for _, name := range sortedKeys(existing) {
		if wanted[name] {
			continue
		}
		if _, err := tx.ExecContext(ctx, "DROP INDEX "+quoteIdent(name)); err != nil {
			return fmt.Errorf("dropping index %s: %w", name, err)
		}
		report.IndicesDropped = append(report.IndicesDropped, name)
	}
	return nil
}

// loadTables maps table name to its CREATE statement.
func loadTables(ctx context.Context, tx *sql.Tx) (map[string]string, error) {
	rows, err := tx.QueryContext(ctx,
		"SELECT name, sql FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'")
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	defer rows.Close()

	tables := make(map[string]string)
	for rows.Next() {
		var name, stmt string
		if err := rows.Scan(&name, &stmt); err != nil {
			return nil, fmt.Errorf("listing tables: %w", err)
		}
		tables[name] = stmt
	}
	return tables, rows.Err()
}

func loadColumns(ctx context.Context, tx *sql.Tx, table string) ([]existingColumn, error) {
	rows, err := tx.QueryContext(ctx, "PRAGMA table_info("+quoteIdent(table)+")")
	if err != nil {
		return nil, fmt.Errorf("reading columns of %s: %w", table, err)
	}
	defer rows.Close()

	var cols []existingColumn
	for rows.Next() {
		var (
			cid     int
			c       existingColumn
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &c.name, &c.typ, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("reading columns of %s: %w", table, err)
		}
		c.notNull = notNull == 1
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// loadIndices returns the explicitly created indices of table.
func loadIndices(ctx context.Context, tx *sql.Tx, table string) (map[string]existingIndex, error) {
	rows, err := tx.QueryContext(ctx, "PRAGMA index_list("+quoteIdent(table)+")")
	if err != nil {
		return nil, fmt.Errorf("reading indices of %s: %w", table, err)
	}

	indices := make(map[string]existingIndex)
	for rows.Next() {
		var (
			seq     int
			name    string
			unique  int
			origin  string
			partial int
		)
		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			rows.Close()
			return nil, fmt.Errorf("reading indices of %s: %w", table, err)
		}
		// "u" and "pk" indices back constraints in the table definition.
		if origin == "c" {
			indices[name] = existingIndex{unique: unique == 1}
		}
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("reading indices of %s: %w", table, err)
	}

	for name, idx := range indices {
		cols, err := loadIndexColumns(ctx, tx, name)
		if err != nil {
			return nil, err
		}
		idx.cols = cols
		indices[name] = idx
	}
	return indices, nil
}

func loadIndexColumns(ctx context.Context, tx *sql.Tx, index string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, "PRAGMA index_info("+quoteIdent(index)+")")
	if err != nil {
		return nil, fmt.Errorf("reading index %s: %w", index, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var seqno, cid int
		var name string
		if err := rows.Scan(&seqno, &cid, &name); err != nil {
			return nil, fmt.Errorf("reading index %s: %w", index, err)
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

func checkForeignKeys(ctx context.Context, tx *sql.Tx) error {
	rows, err := tx.QueryContext(ctx, "PRAGMA foreign_key_check")
	if err != nil {
		return fmt.Errorf("checking foreign keys: %w", err)
	}
	defer rows.Close()

	if rows.Next() {
		var table string
		var rowid sql.NullInt64
		var parent string
		var fkid int
		if err := rows.Scan(&table, &rowid, &parent, &fkid); err != nil {
			return fmt.Errorf("checking foreign keys: %w", err)
		}
		return fmt.Errorf("foreign key violation: %s row %d references missing %s", table, rowid.Int64, parent)
	}
	return rows.Err()
}
