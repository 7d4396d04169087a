package tokenstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// sealedPrefix marks an encrypted token and its envelope version.
const sealedPrefix = "enc:v1:"

var (
	// ErrSealedToken is returned when an encrypted token is read without a key.
	ErrSealedToken = errors.New("stored token is encrypted but no key is configured")
	// ErrPlainToken is returned when a plaintext token is read with a key set.
	ErrPlainToken = errors.New("stored token is not encrypted")
)

// Cipher seals tokens at rest with AES-256-GCM. The scope passed to Seal
// and Open (the file path or Redis key) is bound as additional data, so a
// sealed token only opens where it was written. A nil *Cipher stores
// tokens as plain text.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher creates a Cipher from a hex-encoded 32-byte key. An empty key
// returns a nil Cipher.
func NewCipher(hexKey string) (*Cipher, error) {
	if hexKey == "" {
		return nil, nil
	}

	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decoding hex key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Seal returns "enc:v1:" followed by base64(nonce || ciphertext).
func (c *Cipher) Seal(token, scope string) (string, error) {
	if c == nil {
		return token, nil
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	out := c.aead.Seal(nonce, nonce, []byte(token), []byte(scope))
	return sealedPrefix + base64.StdEncoding.EncodeToString(out), nil
}

// Open reverses Seal for the same scope. A mismatch between the stored
// format and the configured key is reported as ErrSealedToken or
// ErrPlainToken.
func (c *Cipher) Open(stored, scope string) (string, error) {
	encoded, sealed := strings.CutPrefix(stored, sealedPrefix)
	if c == nil {
		if sealed {
			return "", ErrSealedToken
		}
		return stored, nil
	}
	if !sealed {
		return "", ErrPlainToken
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decoding base64: %w", err)
	}
	n := c.aead.NonceSize()
	if len(data) < n {
		return "", errors.New("sealed token too short")
	}
	plain, err := c.aead.Open(nil, data[:n], data[n:], []byte(scope))
	if err != nil {
		return "", fmt.Errorf("decrypting: %w", err)
	}
	return string(plain), nil
}
