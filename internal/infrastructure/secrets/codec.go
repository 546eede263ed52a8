package secrets

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/dropcraft/backend/internal/domain/platform"
)

var (
	// ErrInvalidKey indicates a key that is not 32 bytes of hex.
	ErrInvalidKey = errors.New("secrets: encryption key must be 64 hex characters (32 bytes)")

	// ErrDecryptFailed indicates a ciphertext that could not be opened,
	// either tampered with or sealed under a different key.
	ErrDecryptFailed = errors.New("secrets: failed to decrypt credentials")
)

const nonceSize = 24

// Codec seals store credentials at rest with NaCl secretbox. The nonce is
// prepended to the ciphertext, so each sealed blob is self-contained.
type Codec struct {
	key [32]byte
}

// NewCodec builds a codec from a hex-encoded 32-byte key.
func NewCodec(hexKey string) (*Codec, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil || len(raw) != 32 {
		return nil, ErrInvalidKey
	}

	c := &Codec{}
	copy(c.key[:], raw)
	return c, nil
}

// Seal encrypts a credential set for storage.
func (c *Codec) Seal(creds platform.Credentials) ([]byte, error) {
	plaintext, err := json.Marshal(creds)
	if err != nil {
		return nil, fmt.Errorf("failed to encode credentials: %w", err)
	}

	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return secretbox.Seal(nonce[:], plaintext, &nonce, &c.key), nil
}

// Decode decrypts a sealed credential blob.
func (c *Codec) Decode(ciphertext []byte) (platform.Credentials, error) {
	if len(ciphertext) < nonceSize+secretbox.Overhead {
		return platform.Credentials{}, ErrDecryptFailed
	}

	var nonce [nonceSize]byte
	copy(nonce[:], ciphertext[:nonceSize])

	plaintext, ok := secretbox.Open(nil, ciphertext[nonceSize:], &nonce, &c.key)
	if !ok {
		return platform.Credentials{}, ErrDecryptFailed
	}

	var creds platform.Credentials
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		return platform.Credentials{}, fmt.Errorf("failed to decode credentials: %w", err)
	}
	return creds, nil
}
