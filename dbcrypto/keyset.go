// Package dbcrypto generates and persists the encryption key set used by
// the optional encryption stage of a resource's byte-handler pipeline. The
// keyset encryption path assumes a streaming-AEAD key template. The cipher
// is golang.org/x/crypto/chacha20poly1305, a streaming-AEAD-shaped
// construction and a teacher dependency
// (golang.org/x/crypto); the random-key-generation-then-seal/open shape
// mirrors the teacher's AES-256-GCM file encryption in
// security/enc_dec_env.go, generalized from a password-derived key to a
// randomly generated per-resource key set.
package dbcrypto

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"golang.org/x/crypto/chacha20poly1305"
)

// KeySet is the cleartext key material generated for one resource when its
// byte-handler pipeline includes encryption. It is persisted verbatim as
// JSON at respaths.EncryptionKeyPath — protecting that file at rest is a
// deployment concern outside this module's scope (cryptographic primitive
// design is not).
type KeySet struct {
	// ID uniquely identifies this key set, for audit/log correlation —
	// never logged in full; see MaskedID.
	ID string `json:"id"`
	// Key is the raw chacha20poly1305 key, chacha20poly1305.KeySize bytes.
	Key []byte `json:"key"`
}

// Generate creates a fresh, randomly generated KeySet.
func Generate() (*KeySet, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("dbcrypto: generate key: %w", err)
	}
	return &KeySet{ID: uuid.NewString(), Key: key}, nil
}

// WriteFile persists the key set as JSON at path with owner-only
// permissions.
func (k *KeySet) WriteFile(path string) error {
	data, err := json.MarshalIndent(k, "", "  ")
	if err != nil {
		return fmt.Errorf("dbcrypto: marshal key set: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("dbcrypto: write key set %s: %w", path, err)
	}
	return nil
}

// ReadKeySetFile loads a previously persisted KeySet from path.
func ReadKeySetFile(path string) (*KeySet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("dbcrypto: read key set %s: %w", path, err)
	}
	var k KeySet
	if err := json.Unmarshal(data, &k); err != nil {
		return nil, fmt.Errorf("dbcrypto: parse key set %s: %w", path, err)
	}
	return &k, nil
}

// MaskedID returns k.ID with its middle characters elided, safe to include
// in log output — the same first-4/last-4 masking shape as the teacher's
// common.MaskSecret.
func (k *KeySet) MaskedID() string {
	if len(k.ID) <= 8 {
		return "***"
	}
	return k.ID[:4] + "..." + k.ID[len(k.ID)-4:]
}

// Seal encrypts plaintext with the key set, returning nonce||ciphertext.
// Associated data may be nil.
func (k *KeySet) Seal(plaintext, associatedData []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(k.Key)
	if err != nil {
		return nil, fmt.Errorf("dbcrypto: build aead: %w", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("dbcrypto: generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, associatedData), nil
}

// Open decrypts a value previously produced by Seal.
func (k *KeySet) Open(sealed, associatedData []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(k.Key)
	if err != nil {
		return nil, fmt.Errorf("dbcrypto: build aead: %w", err)
	}
	if len(sealed) < chacha20poly1305.NonceSize {
		return nil, fmt.Errorf("dbcrypto: sealed value too short")
	}
	nonce, ciphertext := sealed[:chacha20poly1305.NonceSize], sealed[chacha20poly1305.NonceSize:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, associatedData)
	if err != nil {
		return nil, fmt.Errorf("dbcrypto: open: %w", err)
	}
	return plaintext, nil
}
