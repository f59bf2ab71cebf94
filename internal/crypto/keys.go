// Package crypto implements the credential vault used to keep account secrets encrypted at rest.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

// Argon2id parameters for passphrase-derived vault keys.
const (
	argonTime    uint32 = 3         // iterations
	argonMemory  uint32 = 64 * 1024 // 64 MB
	argonThreads uint8  = 1

	KeyLen = 32

	// minRawKeyLen is the shortest master key treated as key material rather than a passphrase.
	minRawKeyLen = 32
)

var vaultInfo = []byte("storefront-sync/vault/v1")

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// DeriveKey turns the operator master key into a 32-byte vault key.
// Long keys are expanded with HKDF-SHA256; short ones are treated as passphrases and stretched
// with Argon2id using a fixed, key-scoped salt so the result is stable across restarts.
func DeriveKey(master []byte) ([]byte, error) {
	if len(master) == 0 {
		return nil, errors.New("empty master key")
	}
	if len(master) >= minRawKeyLen {
		key := make([]byte, KeyLen)
		if _, err := io.ReadFull(hkdf.New(sha256.New, master, nil, vaultInfo), key); err != nil {
			return nil, err
		}
		return key, nil
	}
	salt := sha256.Sum256(append(append([]byte(nil), vaultInfo...), master...))
	return argon2.IDKey(master, salt[:16], argonTime, argonMemory, argonThreads, KeyLen), nil
}
