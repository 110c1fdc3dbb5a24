// Package vault encrypts long-lived OAuth secrets at rest.
//
// Envelopes have the form base64(nonce):base64(ciphertext||tag) using
// AES-256-GCM with a random 96-bit nonce per call. Keys are 32 bytes,
// hex-encoded (64 characters).
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/alphauslabs/buckshot/internal/apperr"
)

const (
	keySize   = 32
	nonceSize = 12
)

// Encrypt seals plaintext with the hex-encoded key.
func Encrypt(plaintext, hexKey string) (string, error) {
	gcm, err := newGCM(hexKey)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(nonce) + ":" + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens an envelope produced by Encrypt. Any malformed envelope,
// tampered ciphertext or key mismatch yields a CodeDecryption error.
func Decrypt(envelope, hexKey string) (string, error) {
	gcm, err := newGCM(hexKey)
	if err != nil {
		return "", err
	}

	parts := strings.Split(envelope, ":")
	if len(parts) != 2 {
		return "", apperr.New(apperr.CodeDecryption, "invalid encrypted format")
	}
	nonce, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil || len(nonce) != nonceSize {
		return "", apperr.New(apperr.CodeDecryption, "invalid nonce")
	}
	sealed, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", apperr.New(apperr.CodeDecryption, "invalid ciphertext encoding")
	}

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", apperr.New(apperr.CodeDecryption, "authentication failed")
	}
	return string(plaintext), nil
}

// ValidateKey checks that hexKey decodes to a 32-byte key.
func ValidateKey(hexKey string) error {
	_, err := decodeKey(hexKey)
	return err
}

func decodeKey(hexKey string) ([]byte, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil || len(key) != keySize {
		return nil, apperr.New(apperr.CodeDecryption, "encryption key must be %d hex characters", keySize*2)
	}
	return key, nil
}

func newGCM(hexKey string) (cipher.AEAD, error) {
	key, err := decodeKey(hexKey)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return cipher.NewGCMWithNonceSize(block, nonceSize)
}

// Cipher binds a key so callers never handle it directly.
type Cipher struct {
	key string
}

// New validates hexKey and returns a Cipher bound to it.
func New(hexKey string) (*Cipher, error) {
	if err := ValidateKey(hexKey); err != nil {
		return nil, err
	}
	return &Cipher{key: hexKey}, nil
}

func (c *Cipher) Encrypt(plaintext string) (string, error) { return Encrypt(plaintext, c.key) }

func (c *Cipher) Decrypt(envelope string) (string, error) { return Decrypt(envelope, c.key) }
