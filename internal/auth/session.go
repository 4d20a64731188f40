package auth

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/roombook/roombook-cli/pkg/encryption"
)

// sealedMagic prefixes session files written with a passphrase.
var sealedMagic = []byte("RBS1")

var (
	ErrSessionExpired   = errors.New("session expired; run 'roombook auth callback' again")
	ErrSessionEncrypted = errors.New("stored session is encrypted; set session.passphrase")
)

type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Email        string    `json:"email,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the session has an expiry that is not after now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// SessionStore persists the session in a single file
type SessionStore struct {
	path   string
	sealer *encryption.Sealer
}

// NewSessionStore creates a store at path. An empty passphrase stores plain JSON.
func NewSessionStore(path, passphrase string) *SessionStore {
	store := &SessionStore{path: path}
	if passphrase != "" {
		store.sealer = encryption.NewSealer(passphrase)
	}
	return store
}

func (s *SessionStore) Path() string {
	return s.path
}

func (s *SessionStore) Save(session *Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if s.sealer != nil {
		sealed, err := s.sealer.Seal(data)
		if err != nil {
			return fmt.Errorf("failed to encrypt session: %w", err)
		}
		data = append(append([]byte{}, sealedMagic...), sealed...)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, sessionFileMode); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	return nil
}

// Load returns the stored session, or nil if none has been saved.
func (s *SessionStore) Load() (*Session, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	if bytes.HasPrefix(data, sealedMagic) {
		if s.sealer == nil {
			return nil, ErrSessionEncrypted
		}
		data, err = s.sealer.Open(data[len(sealedMagic):])
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt session: %w", err)
		}
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to parse session: %w", err)
	}
	return &session, nil
}

func (s *SessionStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	return nil
}

// ResolveToken returns the bearer token to use: EnvAuthToken if set, otherwise the
// stored session's access token. It returns "" when there is no session.
func ResolveToken(store *SessionStore, now time.Time) (string, error) {
	if token := os.Getenv(EnvAuthToken); token != "" {
		return token, nil
	}

	session, err := store.Load()
	if err != nil {
		return "", err
	}
	if session == nil {
		return "", nil
	}
	if session.Expired(now) {
		return "", ErrSessionExpired
	}
	return session.AccessToken, nil
}
