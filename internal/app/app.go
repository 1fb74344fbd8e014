package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"cultivate/internal/auth"
	"cultivate/internal/config"
	"cultivate/internal/database"
	"cultivate/internal/database/migrations"
	"cultivate/internal/encryption"
	"cultivate/internal/forum"
	"cultivate/internal/media"
	"cultivate/internal/schema"
)

var ErrUnknownFormat = errors.New("unknown schema format")

// Options carries the process-level dependencies of an App. Zero values fall
// back to the real clock, random UUIDs, os.Getenv and stderr.
type Options struct {
	Clock   forum.Clock
	IDs     forum.IDGenerator
	Getenv  func(string) string
	Console io.Writer
	Verbose bool
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = forum.RealClock{}
	}
	if o.IDs == nil {
		o.IDs = forum.UUIDGenerator{}
	}
	if o.Getenv == nil {
		o.Getenv = os.Getenv
	}
	if o.Console == nil {
		o.Console = os.Stderr
	}
	return o
}

// App is the application layer between the CLI and the forum backend.
// It constructs all dependencies from config, exposes the high-level
// operations, and manages the DB lifecycle on Close.
type App struct {
	cfg     *config.Config
	db      *database.SQLiteDatabase
	desc    *schema.Descriptor
	users   *auth.Store
	guard   *auth.Guard
	media   forum.MediaAdapter
	seeder  *forum.Seeder
	admin   *forum.AdminCredentials
	sealer  encryption.Encryptor
	logger  *slog.Logger
	op      *Operation
	opID    string
	logFile *os.File
	closed  bool
}

// NewApp creates a fully wired App from the given config.
// operation identifies the CLI command being run (e.g. "Sync", "Seed").
// The caller must call Close when done.
func NewApp(ctx context.Context, cfg *config.Config, operation string, opts Options) (*App, error) {
	opts = opts.withDefaults()
	ApplyEnv(cfg, opts.Getenv)

	desc, err := schema.ForumDescriptor(schema.TimestampsOptions{
		Entities:           cfg.Timestamps.Entities,
		SetUpdatedOnCreate: cfg.Timestamps.SetUpdatedOnCreate,
	})
	if err != nil {
		return nil, fmt.Errorf("building schema: %w", err)
	}

	policy, err := auth.NewPolicy(cfg.Auth.Roles)
	if err != nil {
		return nil, fmt.Errorf("building auth policy: %w", err)
	}

	if cfg.BaseDir != "" {
		if err := os.MkdirAll(cfg.BaseDir, 0755); err != nil {
			return nil, fmt.Errorf("creating base directory: %w", err)
		}
	}

	db, err := database.NewDatabaseFromConfig(cfg.Connection, cfg.BaseDir, opts.Clock)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating system tables: %w", err)
	}
	db.UseSchema(desc)

	sealer, err := encryption.NewEncryptorFromConfig(cfg.Backup)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating snapshot encryptor: %w", err)
	}

	adapter, err := media.NewAdapterFromConfig(ctx, cfg.Media, cfg.BaseDir, opts.IDs)
	if err != nil && !errors.Is(err, media.ErrDisabled) {
		db.Close()
		return nil, fmt.Errorf("creating media adapter: %w", err)
	}

	logDir := cfg.LogDir
	if logDir == "" {
		logDir = filepath.Join(cfg.BaseDir, "log")
	}
	consoleLevel := slog.LevelInfo
	if opts.Verbose {
		consoleLevel = slog.LevelDebug
	}
	opID := opts.Clock.Now().UTC().Format("20060102T150405Z")
	logger, logFile, err := newLogger(logDir, opID, opts.Console, consoleLevel)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	users := auth.NewStore(db.Conn(), policy, opts.Clock)
	admin := forum.ResolveAdminCredentials(opts.Getenv)

	// Admin bootstrap goes through the auth subsystem only when it is enabled.
	var creator forum.UserCreator
	if cfg.Auth.Enabled {
		creator = users
	}

	return &App{
		cfg:     cfg,
		db:      db,
		desc:    desc,
		users:   users,
		guard:   auth.NewGuard(policy, admin != nil),
		media:   adapter,
		seeder:  forum.NewSeeder(db, creator, &slogAdapter{l: logger}),
		admin:   admin,
		sealer:  sealer,
		logger:  logger,
		op:      NewOperation(operation, ""),
		opID:    opID,
		logFile: logFile,
	}, nil
}

// persistOperation saves the operation to the database, giving it an auto-increment ID.
// This should only be called for DB-mutating commands.
func (a *App) persistOperation(ctx context.Context, parameters string) error {
	if a.op.Persisted() {
		return nil
	}
	a.op.Parameters = parameters
	dbOp, err := a.db.CreateOperation(ctx, a.op.Operation, a.op.Parameters)
	if err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	a.op.ID = dbOp.ID
	return nil
}

// Descriptor returns the finalized forum schema.
func (a *App) Descriptor() *schema.Descriptor {
	return a.desc
}

// Guard returns the permission guard. It is enabled only when admin
// bootstrap credentials are present in the environment.
func (a *App) Guard() *auth.Guard {
	return a.guard
}

// WriteSchema encodes the descriptor to w as "json" or "yaml".
func (a *App) WriteSchema(w io.Writer, format string) error {
	switch strings.ToLower(format) {
	case "json":
		return a.desc.WriteJSON(w)
	case "yaml", "yml":
		return a.desc.WriteYAML(w)
	case "sql":
		_, err := io.WriteString(w, database.SchemaSQL(a.desc))
		return err
	default:
		return fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
}

// WriteTypes generates Go types for every entity into path, defaulting to
// the configured types_file_path. It returns the path written.
func (a *App) WriteTypes(path, pkg string) (string, error) {
	if path == "" {
		path = a.cfg.TypesFilePath
	}
	if path == "" {
		return "", fmt.Errorf("no types file path configured")
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating types file: %w", err)
	}
	if err := schema.WriteTypes(f, a.desc, pkg); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing types file: %w", err)
	}
	a.logger.Info("types written", "path", path, "package", pkg)
	return path, nil
}

// Sync brings the entity tables in line with the forum schema.
func (a *App) Sync(ctx context.Context, policy database.SyncPolicy) (*database.SyncReport, error) {
	if err := a.persistOperation(ctx, fmt.Sprintf("force=%t drop=%t", policy.Force, policy.Drop)); err != nil {
		return nil, err
	}
	report, err := a.sync(ctx, policy)
	if err != nil {
		return nil, a.op.Fail(err)
	}
	return report, nil
}

func (a *App) sync(ctx context.Context, policy database.SyncPolicy) (*database.SyncReport, error) {
	if a.cfg.IsProduction && (policy.Force || policy.Drop) {
		if _, err := a.snapshot(); err != nil {
			return nil, fmt.Errorf("snapshot before destructive sync: %w", err)
		}
	}

	report, err := a.db.Sync(ctx, a.desc, policy)
	if err != nil {
		return nil, fmt.Errorf("syncing schema: %w", err)
	}

	if !report.Changed() {
		a.logger.Info("schema up to date")
	} else {
		a.logger.Info("schema synced",
			"created", len(report.Created),
			"altered", len(report.Altered),
			"rebuilt", len(report.Rebuilt),
			"dropped", len(report.Dropped),
			"indices_created", len(report.IndicesCreated),
			"indices_dropped", len(report.IndicesDropped),
		)
	}
	for _, t := range report.Unmanaged {
		a.logger.Warn("table not in schema left in place", "table", t)
	}
	return report, nil
}

// Seed syncs the schema using the configured sync policy and then inserts the
// baseline forum data. The admin account is created only when bootstrap
// credentials were present in the environment.
func (a *App) Seed(ctx context.Context) (*forum.SeedResult, error) {
	if err := a.persistOperation(ctx, fmt.Sprintf("admin=%t", a.admin != nil)); err != nil {
		return nil, err
	}

	policy := database.SyncPolicy{Force: a.cfg.SyncSchema.Force, Drop: a.cfg.SyncSchema.Drop}
	if _, err := a.sync(ctx, policy); err != nil {
		return nil, a.op.Fail(err)
	}

	res, err := a.seeder.Seed(ctx, a.admin)
	if err != nil {
		a.logger.Error("seed failed", "error", err)
		return nil, a.op.Fail(err)
	}
	return res, nil
}

// CreateUser registers an account. An empty role selects the default role.
func (a *App) CreateUser(ctx context.Context, email, password, role string) (*forum.User, error) {
	if !a.cfg.Auth.Enabled {
		return nil, fmt.Errorf("auth is disabled")
	}
	if err := a.persistOperation(ctx, "email="+email); err != nil {
		return nil, err
	}

	u, err := a.users.CreateUser(ctx, forum.NewUser{Email: email, Password: password, Role: role})
	if err != nil {
		return nil, a.op.Fail(err)
	}
	a.logger.Info("user created", "email", u.Email, "role", u.Role)
	return u, nil
}

// CheckPermission reports whether the account with email may perform permission.
// It returns nil when allowed and an error wrapping auth.ErrForbidden otherwise.
func (a *App) CheckPermission(ctx context.Context, email, permission string) error {
	u, err := a.users.FindUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	return a.guard.Check(u.Role, permission)
}

// AttachmentLinks names the rows an uploaded attachment belongs to.
// Zero IDs are left unset.
type AttachmentLinks struct {
	ProfileID    int64
	DiscussionID int64
	ReplyID      int64
}

// UploadAttachment stores the file at path through the media adapter and
// records it in the attachments table. The stored object is removed again if
// the row cannot be written.
func (a *App) UploadAttachment(ctx context.Context, path string, links AttachmentLinks) (forum.Record, error) {
	if a.media == nil {
		return nil, media.ErrDisabled
	}
	if err := a.persistOperation(ctx, "file="+filepath.Base(path)); err != nil {
		return nil, err
	}

	rec, err := a.uploadAttachment(ctx, path, links)
	if err != nil {
		return nil, a.op.Fail(err)
	}
	return rec, nil
}

func (a *App) uploadAttachment(ctx context.Context, path string, links AttachmentLinks) (forum.Record, error) {
	m, err := a.db.Mutator(schema.Attachments)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening upload: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat upload: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	obj, err := a.media.Put(ctx, filepath.Base(path), f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("storing upload: %w", err)
	}

	rec := forum.Record{
		"url":       obj.URL,
		"filename":  obj.Name,
		"size":      obj.Size,
		"mime_type": obj.MimeType,
	}
	for col, id := range map[string]int64{
		schema.RelationColumn(schema.Profiles):    links.ProfileID,
		schema.RelationColumn(schema.Discussions): links.DiscussionID,
		schema.RelationColumn(schema.Replies):     links.ReplyID,
	} {
		if id != 0 {
			rec[col] = id
		}
	}

	res, err := m.InsertOne(ctx, rec)
	if err != nil {
		if derr := a.media.Delete(ctx, obj.Key); derr != nil {
			a.logger.Warn("failed to remove orphaned upload", "key", obj.Key, "error", derr)
		}
		return nil, err
	}
	a.logger.Info("attachment stored", "key", obj.Key, "size", obj.Size, "mime_type", obj.MimeType)
	return res.Data, nil
}

// EntityStatus describes one schema entity in the database.
type EntityStatus struct {
	Name   string
	Synced bool
	Rows   int64
}

// Status summarizes the database and the subsystems wired from config.
type Status struct {
	Migrations *migrations.Status
	Entities   []EntityStatus
	Unmanaged  []string
	Users      int64
	Media      string
	AuthGuard  bool
	Production bool
}

// Status reports migration state, per-entity row counts and wiring.
func (a *App) Status(ctx context.Context) (*Status, error) {
	ms, err := a.db.MigrationStatus()
	if err != nil {
		return nil, fmt.Errorf("reading migration status: %w", err)
	}

	tables, err := a.db.Tables(ctx)
	if err != nil {
		return nil, err
	}
	present := make(map[string]bool, len(tables))
	for _, t := range tables {
		present[t] = true
	}

	st := &Status{
		Migrations: ms,
		Media:      "disabled",
		AuthGuard:  a.guard.Enabled(),
		Production: a.cfg.IsProduction,
	}
	if a.media != nil {
		st.Media = a.cfg.Media.Type
	}

	for _, e := range a.desc.Entities {
		es := EntityStatus{Name: e.Name, Synced: present[e.Name]}
		if es.Synced {
			if es.Rows, err = a.db.Count(ctx, e.Name, nil); err != nil {
				return nil, err
			}
		}
		st.Entities = append(st.Entities, es)
		delete(present, e.Name)
	}
	for _, t := range migrations.SystemTables {
		delete(present, t)
	}
	for _, t := range tables {
		if present[t] {
			st.Unmanaged = append(st.Unmanaged, t)
		}
	}

	if st.Users, err = a.users.CountUsers(ctx); err != nil {
		return nil, err
	}
	return st, nil
}

// History returns the most recent operations, newest first.
func (a *App) History(ctx context.Context, limit int) ([]*database.Operation, error) {
	return a.db.ListOperations(ctx, limit)
}

// Close finalizes the operation and closes all resources.
// Calling Close more than once is a no-op.
func (a *App) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true

	var firstErr error

	if a.op.Persisted() {
		if err := a.db.FinishOperation(context.Background(), a.op.ID, a.op.Status); err != nil {
			firstErr = fmt.Errorf("finishing operation: %w", err)
		}
	}

	if err := a.db.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}
