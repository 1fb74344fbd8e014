package encryption

import (
	"bytes"
	"fmt"
	"io"
)

var testHeader = []byte("CVTSNAP\x00")

// TestEncryptor prepends a fixed header instead of encrypting. Output differs
// from the plaintext and needs no keys.
type TestEncryptor struct{}

var _ Encryptor = (*TestEncryptor)(nil)

func NewTestEncryptor() *TestEncryptor {
	return &TestEncryptor{}
}

func (*TestEncryptor) Setup(string) error { return nil }

func (*TestEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := w.Write(testHeader); err != nil {
		return fmt.Errorf("writing test header: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying snapshot: %w", err)
	}
	return nil
}

func (*TestEncryptor) Unlock(string) (Decrypter, error) {
	return testDecrypter{}, nil
}

func (*TestEncryptor) IsConfigured() bool { return true }

type testDecrypter struct{}

func (testDecrypter) Decrypt(r io.Reader, w io.Writer) error {
	header := make([]byte, len(testHeader))
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("reading test header: %w", err)
	}
	if !bytes.Equal(header, testHeader) {
		return fmt.Errorf("invalid test snapshot header")
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying snapshot: %w", err)
	}
	return nil
}
