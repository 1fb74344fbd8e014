package encryption

import (
	"fmt"

	"cultivate/internal/config"
)

// NewEncryptorFromConfig creates an Encryptor based on the backup encryption type.
func NewEncryptorFromConfig(cfg config.BackupConfig) (Encryptor, error) {
	switch cfg.EncryptionType {
	case "age", "":
		return NewAgeEncryptor(cfg), nil
	case "test":
		return NewTestEncryptor(), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.EncryptionType)
	}
}
