package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := NewConfig("instance-abc", "/home/user/.local/share/cultivate", "s3cret")
	original.Connection = DatabaseConfig{Type: "sqlite", URL: "file:forum.db"}
	original.Media = MediaConfig{
		Enabled:  true,
		Type:     "s3",
		S3Bucket: "uploads",
		S3Prefix: "forum/",
		S3Region: "eu-west-1",
	}
	original.SyncSchema = SyncConfig{Force: false, Drop: true}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.InstanceID != original.InstanceID {
		t.Errorf("InstanceID = %q, want %q", got.InstanceID, original.InstanceID)
	}
	if got.LogDir != original.LogDir {
		t.Errorf("LogDir = %q, want %q", got.LogDir, original.LogDir)
	}
	if got.Connection.URL != "file:forum.db" {
		t.Errorf("Connection.URL = %q, want %q", got.Connection.URL, "file:forum.db")
	}
	if got.Media.Type != "s3" || got.Media.S3Bucket != "uploads" || got.Media.S3Region != "eu-west-1" {
		t.Errorf("Media = %+v", got.Media)
	}
	if got.SyncSchema.Force || !got.SyncSchema.Drop {
		t.Errorf("SyncSchema = %+v, want {Force:false Drop:true}", got.SyncSchema)
	}
	if got.Auth.JWT.Secret != "s3cret" {
		t.Errorf("Auth.JWT.Secret = %q, want %q", got.Auth.JWT.Secret, "s3cret")
	}
	admin, ok := got.Auth.Roles["admin"]
	if !ok || !admin.ImplicitAllow {
		t.Errorf("Auth.Roles[admin] = %+v, want implicit allow", admin)
	}
	def, ok := got.Auth.Roles["default"]
	if !ok || !def.IsDefault || len(def.Permissions) != len(DefaultPermissions) {
		t.Errorf("Auth.Roles[default] = %+v", def)
	}
	if len(got.Timestamps.Entities) != 8 || !got.Timestamps.SetUpdatedOnCreate {
		t.Errorf("Timestamps = %+v", got.Timestamps)
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("i-1", "/data/cultivate", "secret")

	if cfg.LogDir != "/data/cultivate/log" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, "/data/cultivate/log")
	}
	if cfg.Connection.Type != "sqlite" || cfg.Connection.URL != "file:data.db" {
		t.Errorf("Connection = %+v", cfg.Connection)
	}
	if cfg.Media.Type != "local" || cfg.Media.Path != "./public/uploads" || !cfg.Media.Enabled {
		t.Errorf("Media = %+v", cfg.Media)
	}
	if cfg.Auth.Cookie.PathSuccess != "/admin" {
		t.Errorf("Auth.Cookie.PathSuccess = %q, want /admin", cfg.Auth.Cookie.PathSuccess)
	}
	if cfg.Auth.JWT.Issuer != "cultivate" {
		t.Errorf("Auth.JWT.Issuer = %q, want cultivate", cfg.Auth.JWT.Issuer)
	}
	if !cfg.SyncSchema.Force || !cfg.SyncSchema.Drop {
		t.Errorf("SyncSchema = %+v, want force and drop", cfg.SyncSchema)
	}
	if cfg.Admin.BasePath != "/admin" || cfg.Admin.LogoReturnPath != "/../" {
		t.Errorf("Admin = %+v", cfg.Admin)
	}
	if cfg.IsProduction {
		t.Error("IsProduction = true, want false")
	}
	if cfg.Backup.Encrypt || cfg.Backup.PublicKeyPath != "/data/cultivate/keys/cultivate.pub" {
		t.Errorf("Backup = %+v", cfg.Backup)
	}

	// Permissions must not alias the package-level default.
	cfg.Auth.Roles["default"].Permissions[0] = "changed"
	if DefaultPermissions[0] != "system.access.api" {
		t.Error("NewConfig shares DefaultPermissions backing array")
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "cultivate.toml")
		cfg := NewConfig("i1", dir, "secret")

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("config file not created: %v", err)
		}
		if perm := info.Mode().Perm(); perm != 0600 {
			t.Errorf("config file mode = %o, want 600", perm)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "cultivate.toml")
		cfg := NewConfig("i1", dir, "secret")

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}

		err := Init(path, cfg)
		if err == nil {
			t.Fatal("second Init() expected error")
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "cultivate.toml")
		cfg := NewConfig("read-test", dir, "secret")
		cfg.Connection = DatabaseConfig{Type: "memory"}

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.InstanceID != "read-test" {
			t.Errorf("InstanceID = %q, want %q", got.InstanceID, "read-test")
		}
		if got.Connection.Type != "memory" {
			t.Errorf("Connection.Type = %q, want memory", got.Connection.Type)
		}
	})

	t.Run("reads hand-written config", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "cultivate.toml")
		content := strings.Join([]string{
			`instance_id = "hand"`,
			`is_production = true`,
			`[connection]`,
			`type = "memory"`,
			`[auth.roles.moderator]`,
			`permissions = ["data.entity.read"]`,
		}, "\n")
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if !got.IsProduction {
			t.Error("IsProduction = false, want true")
		}
		if perms := got.Auth.Roles["moderator"].Permissions; len(perms) != 1 || perms[0] != "data.entity.read" {
			t.Errorf("moderator permissions = %v", perms)
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		_, err := ReadFromFile("/nonexistent/path/cultivate.toml")
		if err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})
}
