// Package auth stores and verifies the short numeric PINs players use to
// claim a username across reconnects.
package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

var (
	// ErrUnknownUser indicates no credential has been registered for the username.
	ErrUnknownUser = errors.New("auth: unknown username")
	// ErrUserExists indicates a REGISTER attempt collided with an existing username.
	ErrUserExists = errors.New("auth: username already registered")
	// ErrBadPIN indicates the PIN failed validation or verification.
	ErrBadPIN = errors.New("auth: invalid pin")
)

var pinPattern = regexp.MustCompile(`^[0-9]{4,6}$`)

// record holds the salted digest for one username. The PIN itself is never retained.
type record struct {
	salt   []byte
	digest []byte
}

// Store is an in-memory username -> hashed-PIN credential map. It is safe
// for concurrent use by many connection goroutines.
type Store struct {
	mu      sync.RWMutex
	records map[string]record
}

// NewStore constructs an empty credential store.
func NewStore() *Store {
	return &Store{records: make(map[string]record)}
}

// Register binds a new username to a PIN. It fails if the username is
// already taken or the PIN does not match the expected 4-6 digit shape.
func (s *Store) Register(username, pin string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("%w: empty username", ErrBadPIN)
	}
	if !pinPattern.MatchString(pin) {
		return fmt.Errorf("%w: pin must be 4-6 digits", ErrBadPIN)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[username]; exists {
		return ErrUserExists
	}
	rec, err := newRecord(pin)
	if err != nil {
		return err
	}
	s.records[username] = rec
	return nil
}

// SetPIN replaces the PIN for an already-registered username.
func (s *Store) SetPIN(username, pin string) error {
	username = strings.TrimSpace(username)
	if !pinPattern.MatchString(pin) {
		return fmt.Errorf("%w: pin must be 4-6 digits", ErrBadPIN)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[username]; !exists {
		return ErrUnknownUser
	}
	rec, err := newRecord(pin)
	if err != nil {
		return err
	}
	s.records[username] = rec
	return nil
}

// Verify checks a LOGIN attempt's PIN against the stored digest in constant time.
func (s *Store) Verify(username, pin string) error {
	username = strings.TrimSpace(username)
	s.mu.RLock()
	rec, exists := s.records[username]
	s.mu.RUnlock()
	if !exists {
		return ErrUnknownUser
	}
	if subtle.ConstantTimeCompare(digest(rec.salt, pin), rec.digest) != 1 {
		return ErrBadPIN
	}
	return nil
}

// Exists reports whether a username has already been registered.
func (s *Store) Exists(username string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.records[strings.TrimSpace(username)]
	return exists
}

func newRecord(pin string) (record, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return record{}, fmt.Errorf("auth: generate salt: %w", err)
	}
	return record{salt: salt, digest: digest(salt, pin)}, nil
}

func digest(salt []byte, pin string) []byte {
	mac := hmac.New(sha256.New, salt)
	_, _ = mac.Write([]byte(pin))
	return mac.Sum(nil)
}
