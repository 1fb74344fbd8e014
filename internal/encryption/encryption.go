// Package encryption seals database snapshots so backups can leave the host.
package encryption

import (
	"errors"
	"io"
)

var (
	ErrNotConfigured = errors.New("snapshot encryption keys not found")
	ErrKeysExist     = errors.New("snapshot encryption keys already exist")
)

// Encryptor seals snapshots with a public key. Opening a sealed snapshot
// requires unlocking the private key with a passphrase.
type Encryptor interface {
	// Setup generates the key pair. The private key is stored encrypted with
	// passphrase. Existing keys are never overwritten.
	Setup(passphrase string) error

	// Encrypt reads plaintext from r and writes ciphertext to w.
	Encrypt(r io.Reader, w io.Writer) error

	// Unlock decrypts the private key and returns a Decrypter holding it in memory.
	Unlock(passphrase string) (Decrypter, error)

	// IsConfigured reports whether both key files exist.
	IsConfigured() bool
}

// Decrypter opens ciphertext produced by the matching Encryptor.
type Decrypter interface {
	Decrypt(r io.Reader, w io.Writer) error
}
