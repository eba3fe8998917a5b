// Package code generates and checks one-time verification codes. Only a
// salted hash is stored on the session; checks use constant-time comparison so
// response timing leaks nothing about the stored code.
package code

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"enroll/internal/registration/models"
)

const (
	saltLength = 16
	hashLength = 32
	// pbkdf2 rounds are modest: codes expire in minutes and checks are
	// already throttled by the code-check gate.
	hashIterations = 4096
)

// Manager generates fixed-length numeric codes and manages their lifecycle on
// a session.
type Manager struct {
	length int
	expiry time.Duration
}

// NewManager validates the configured code shape.
func NewManager(length int, expiry time.Duration) (*Manager, error) {
	if length < 4 || length > 10 {
		return nil, errors.New("code length must be between 4 and 10 digits")
	}
	if expiry <= 0 {
		return nil, errors.New("code expiry must be positive")
	}
	return &Manager{length: length, expiry: expiry}, nil
}

// Length returns the configured code length.
func (m *Manager) Length() int { return m.length }

// Expiry returns the configured code validity window.
func (m *Manager) Expiry() time.Duration { return m.expiry }

// Generate produces a uniformly random numeric code from a cryptographically
// secure source.
func (m *Manager) Generate() (string, error) {
	digits := make([]byte, m.length)
	buf := make([]byte, 1)
	for i := 0; i < m.length; {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		// Rejection sampling keeps the digit distribution uniform.
		if buf[0] >= 250 {
			continue
		}
		digits[i] = '0' + buf[0]%10
		i++
	}
	return string(digits), nil
}

// Assign stores the salted hash of plaintext on the session and stamps the
// expiry. The plaintext itself is never persisted.
func (m *Manager) Assign(s *models.Session, plaintext string, now time.Time) error {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return err
	}
	s.CodeSalt = salt
	s.CodeHash = hash(plaintext, salt)
	s.CodeExpiry = now.Add(m.expiry)
	return nil
}

// Check compares a submitted code against the session's stored hash in
// constant time. Expiry is the caller's concern; Check only answers whether
// the code matches.
func (m *Manager) Check(s *models.Session, submitted string) bool {
	if len(s.CodeHash) == 0 || len(s.CodeSalt) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(s.CodeHash, hash(submitted, s.CodeSalt)) == 1
}

func hash(plaintext string, salt []byte) []byte {
	return pbkdf2.Key([]byte(plaintext), salt, hashIterations, hashLength, sha256.New)
}
