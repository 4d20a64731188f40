package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// SaltSize is the size of the salt in bytes
	SaltSize = 32
	// NonceSize is the size of the nonce in bytes for AES-GCM
	NonceSize = 12
	// KeySize is the size of the AES key in bytes (AES-256)
	KeySize = 32
	// IterationCount for PBKDF2
	IterationCount = 100000
)

// ErrTruncated is returned when sealed data is shorter than its header.
var ErrTruncated = errors.New("sealed data is truncated")

// Sealer encrypts small payloads such as a stored session
type Sealer struct {
	passphrase string
}

// NewSealer creates a sealer that derives its keys from passphrase
func NewSealer(passphrase string) *Sealer {
	return &Sealer{
		passphrase: passphrase,
	}
}

// Seal encrypts plaintext. The output is salt || nonce || ciphertext.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	gcm, err := s.gcm(salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, SaltSize+NonceSize+len(plaintext)+gcm.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, nil), nil
}

// Open decrypts data produced by Seal with the same passphrase
func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < SaltSize+NonceSize {
		return nil, ErrTruncated
	}

	salt := sealed[:SaltSize]
	nonce := sealed[SaltSize : SaltSize+NonceSize]

	gcm, err := s.gcm(salt)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, nonce, sealed[SaltSize+NonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

func (s *Sealer) gcm(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(s.passphrase), salt, IterationCount, KeySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
