package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// SetupSnapshotKeys generates the key pair used to seal snapshots.
func (a *App) SetupSnapshotKeys(passphrase string) error {
	if err := a.sealer.Setup(passphrase); err != nil {
		return fmt.Errorf("setting up snapshot keys: %w", err)
	}
	a.logger.Info("snapshot keys created", "public_key", a.cfg.Backup.PublicKeyPath)
	return nil
}

// Snapshot copies the database into <base_dir>/backups and returns the file
// written. The copy is sealed when backup encryption is enabled.
func (a *App) Snapshot(ctx context.Context) (string, error) {
	if err := a.persistOperation(ctx, fmt.Sprintf("encrypt=%t", a.cfg.Backup.Encrypt)); err != nil {
		return "", err
	}
	path, err := a.snapshot()
	if err != nil {
		return "", a.op.Fail(err)
	}
	return path, nil
}

func (a *App) snapshot() (string, error) {
	dir := filepath.Join(a.cfg.BaseDir, "backups")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating backup directory: %w", err)
	}
	path := filepath.Join(dir, "cultivate-"+a.opID+".db")

	if !a.cfg.Backup.Encrypt {
		if err := a.db.BackupTo(path); err != nil {
			return "", err
		}
		a.logger.Info("snapshot written", "path", path)
		return path, nil
	}

	tmp, err := os.CreateTemp(dir, ".snapshot-*.db")
	if err != nil {
		return "", fmt.Errorf("creating temp file for snapshot: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := a.db.BackupTo(tmpPath); err != nil {
		return "", err
	}

	sealed := path + ".age"
	if err := a.sealFile(tmpPath, sealed); err != nil {
		os.Remove(sealed)
		return "", err
	}
	a.logger.Info("sealed snapshot written", "path", sealed)
	return sealed, nil
}

func (a *App) sealFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening snapshot: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("creating sealed snapshot: %w", err)
	}
	if err := a.sealer.Encrypt(in, out); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// OpenSnapshot decrypts the sealed snapshot at src into a new file at dst.
func (a *App) OpenSnapshot(src, dst, passphrase string) error {
	d, err := a.sealer.Unlock(passphrase)
	if err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening sealed snapshot: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("creating snapshot copy: %w", err)
	}
	if err := d.Decrypt(in, out); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing snapshot copy: %w", err)
	}
	a.logger.Info("snapshot opened", "source", src, "path", dst)
	return nil
}
