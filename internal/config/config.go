package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for cultivate.
// It is read once at startup and passed to whatever consumes it.
type Config struct {
	InstanceID    string           `toml:"instance_id"`
	BaseDir       string           `toml:"base_dir"`
	LogDir        string           `toml:"log_dir"`
	TypesFilePath string           `toml:"types_file_path"`
	IsProduction  bool             `toml:"is_production"`
	Connection    DatabaseConfig   `toml:"connection"`
	Media         MediaConfig      `toml:"media"`
	Auth          AuthConfig       `toml:"auth"`
	Timestamps    TimestampsConfig `toml:"timestamps"`
	SyncSchema    SyncConfig       `toml:"sync_schema"`
	Backup        BackupConfig     `toml:"backup"`
	Admin         AdminUIConfig    `toml:"admin"`
}

// DatabaseConfig represents configuration for the application database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type string `toml:"type"`          // "sqlite" or "memory"
	URL  string `toml:"url,omitempty"` // only used for type=sqlite, e.g. "file:data.db"
}

// MediaConfig represents configuration for the media adapter.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type MediaConfig struct {
	Enabled bool   `toml:"enabled"`
	Type    string `toml:"type"` // "local", "memory" or "s3"

	// Local-specific fields (only used when Type == "local")
	Path string `toml:"path,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty"`
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`
}

// AuthConfig configures the auth subsystem. Cookie and JWT settings are passed
// through to the HTTP layer unchanged.
type AuthConfig struct {
	Enabled       bool                  `toml:"enabled"`
	AllowRegister bool                  `toml:"allow_register"`
	Cookie        CookieConfig          `toml:"cookie"`
	JWT           JWTConfig             `toml:"jwt"`
	Roles         map[string]RoleConfig `toml:"roles"`
}

// CookieConfig holds the session cookie redirect settings.
type CookieConfig struct {
	PathSuccess string `toml:"path_success"`
}

// JWTConfig holds token issuing settings.
type JWTConfig struct {
	Issuer string `toml:"issuer"`
	Secret string `toml:"secret"`
}

// RoleConfig describes what a role may do.
type RoleConfig struct {
	ImplicitAllow bool     `toml:"implicit_allow,omitempty"`
	Permissions   []string `toml:"permissions,omitempty"`
	IsDefault     bool     `toml:"is_default,omitempty"`
}

// TimestampsConfig lists entities that carry created_at/updated_at columns.
type TimestampsConfig struct {
	Entities           []string `toml:"entities"`
	SetUpdatedOnCreate bool     `toml:"set_updated_on_create"`
}

// SyncConfig controls destructive re-sync of entity tables.
type SyncConfig struct {
	Force bool `toml:"force"`
	Drop  bool `toml:"drop"`
}

// BackupConfig controls database snapshots taken before destructive syncs in
// production. Encrypted snapshots are sealed with the age key pair at the
// configured paths.
type BackupConfig struct {
	Encrypt        bool   `toml:"encrypt"`
	EncryptionType string `toml:"encryption_type,omitempty"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// AdminUIConfig holds admin UI paths passed through to the host.
type AdminUIConfig struct {
	BasePath       string `toml:"base_path"`
	LogoReturnPath string `toml:"logo_return_path"`
}

// Default permissions granted to the default role.
var DefaultPermissions = []string{
	"system.access.api",
	"data.database.sync",
	"data.entity.read",
	"media.file.read",
	"media.file.list",
}

// NewConfig creates a new Config with the provided values and defaults for
// everything else.
func NewConfig(instanceID, baseDir, jwtSecret string) *Config {
	return &Config{
		InstanceID:    instanceID,
		BaseDir:       baseDir,
		LogDir:        filepath.Join(baseDir, "log"),
		TypesFilePath: "cultivate_types.go",
		Connection: DatabaseConfig{
			Type: "sqlite",
			URL:  "file:data.db",
		},
		Media: MediaConfig{
			Enabled: true,
			Type:    "local",
			Path:    "./public/uploads",
		},
		Auth: AuthConfig{
			Enabled:       true,
			AllowRegister: true,
			Cookie:        CookieConfig{PathSuccess: "/admin"},
			JWT:           JWTConfig{Issuer: "cultivate", Secret: jwtSecret},
			Roles: map[string]RoleConfig{
				"admin": {ImplicitAllow: true},
				"default": {
					Permissions: append([]string(nil), DefaultPermissions...),
					IsDefault:   true,
				},
			},
		},
		Timestamps: TimestampsConfig{
			Entities: []string{
				"profiles", "groups", "memberships", "discussions",
				"replies", "attachments", "invites", "reports",
			},
			SetUpdatedOnCreate: true,
		},
		SyncSchema: SyncConfig{Force: true, Drop: true},
		Backup: BackupConfig{
			PublicKeyPath:  filepath.Join(baseDir, "keys", "cultivate.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "cultivate.key"),
		},
		Admin: AdminUIConfig{
			BasePath:       "/admin",
			LogoReturnPath: "/../",
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// The file carries the JWT secret.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
