package crypto

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/and161185/storefront-sync/internal/model"
)

// SaltLen is the number of random bytes prepended to every plaintext before sealing.
const SaltLen = 16

// CryptoError reports malformed or unauthenticated vault input.
type CryptoError struct{ Msg string }

func (e *CryptoError) Error() string { return "vault: " + e.Msg }

// Vault seals secrets with XChaCha20-Poly1305.
type Vault struct {
	key []byte
}

// NewVault builds a vault from the operator master key.
func NewVault(master []byte) (*Vault, error) {
	key, err := DeriveKey(master)
	if err != nil {
		return nil, err
	}
	if _, err := chacha20poly1305.NewX(key); err != nil {
		return nil, err
	}
	return &Vault{key: key}, nil
}

// Encrypt prepends a fresh salt to secret, seals it and returns base64(nonce||ciphertext).
func (v *Vault) Encrypt(secret string) (string, error) {
	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return "", err
	}
	salt, err := RandBytes(SaltLen)
	if err != nil {
		return "", err
	}
	nonce, err := RandBytes(chacha20poly1305.NonceSizeX)
	if err != nil {
		return "", err
	}
	pt := make([]byte, 0, SaltLen+len(secret))
	pt = append(pt, salt...)
	pt = append(pt, secret...)

	out := make([]byte, 0, len(nonce)+len(pt)+aead.Overhead())
	out = append(out, nonce...)
	out = append(out, aead.Seal(nil, nonce, pt, nil)...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Open reverses Encrypt and strips the salt.
func (v *Vault) Open(blob string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", &CryptoError{Msg: "bad encoding"}
	}
	if len(raw) < chacha20poly1305.NonceSizeX {
		return "", &CryptoError{Msg: "blob too short"}
	}
	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return "", err
	}
	pt, err := aead.Open(nil, raw[:chacha20poly1305.NonceSizeX], raw[chacha20poly1305.NonceSizeX:], nil)
	if err != nil {
		return "", &CryptoError{Msg: "authentication failed"}
	}
	if len(pt) < SaltLen {
		return "", &CryptoError{Msg: "missing salt"}
	}
	return string(pt[SaltLen:]), nil
}

// Decrypt is Open that swallows failures: an empty result means the secret is unavailable.
func (v *Vault) Decrypt(blob string) string {
	s, err := v.Open(blob)
	if err != nil {
		return ""
	}
	return s
}

// SealCredentials encrypts the JSON form of the bundle.
func (v *Vault) SealCredentials(c model.Credentials) ([]byte, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	blob, err := v.Encrypt(string(raw))
	if err != nil {
		return nil, err
	}
	return []byte(blob), nil
}

// OpenCredentials decrypts a sealed bundle. An undecryptable bundle yields an empty one.
func (v *Vault) OpenCredentials(sealed []byte) (model.Credentials, error) {
	var c model.Credentials
	plain := v.Decrypt(string(sealed))
	if plain == "" {
		return c, nil
	}
	if err := json.Unmarshal([]byte(plain), &c); err != nil {
		return model.Credentials{}, fmt.Errorf("credentials bundle: %w", err)
	}
	return c, nil
}
