// Package models defines the registration session aggregate: the state
// machine, delivery history, and verification bookkeeping for one phone-number
// registration attempt.
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	dErrors "enroll/pkg/domain-errors"
)

// Channel selects how a verification code is delivered.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelVoice Channel = "voice"
)

// ParseChannel validates a wire-level channel string.
func ParseChannel(s string) (Channel, error) {
	c := Channel(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case ChannelSMS, ChannelVoice:
		return c, nil
	}
	return "", dErrors.Newf(dErrors.CodeInvalidInput, "invalid channel %q: must be 'sms' or 'voice'", s)
}

// State is a session's position in the registration state machine.
type State string

const (
	StateCreated   State = "created"
	StateCodeSent  State = "code_sent"
	StateVerified  State = "verified"
	StateCompleted State = "completed"
	StateExpired   State = "expired"
	StateFailed    State = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateExpired, StateFailed:
		return true
	}
	return false
}

// rank orders the forward path; transitions never reverse progress.
var rank = map[State]int{
	StateCreated:   0,
	StateCodeSent:  1,
	StateVerified:  2,
	StateCompleted: 3,
}

// CanTransitionTo reports whether the state machine permits moving from s to
// next. Forward progress only, except into the terminal failure states, which
// are reachable from any non-terminal state. CodeSent may re-enter itself for
// code resends on a reused session.
func (s State) CanTransitionTo(next State) bool {
	if s.Terminal() {
		return false
	}
	if next == StateExpired || next == StateFailed {
		return true
	}
	from, okFrom := rank[s]
	to, okTo := rank[next]
	if !okFrom || !okTo {
		return false
	}
	if s == StateCodeSent && next == StateCodeSent {
		return true
	}
	return to == from+1
}

// SendAttempt records one delivery attempt.
type SendAttempt struct {
	Channel Channel   `json:"channel"`
	At      time.Time `json:"at"`
}

// Session is one in-flight or completed registration attempt, keyed by the
// normalized phone number. Version supports the store's conditional writes and
// is owned by the store.
type Session struct {
	Key               string        `json:"key"`
	SessionID         string        `json:"session_id"`
	Username          string        `json:"username"`
	Channel           Channel       `json:"channel"`
	State             State         `json:"state"`
	CodeHash          []byte        `json:"code_hash,omitempty"`
	CodeSalt          []byte        `json:"code_salt,omitempty"`
	CodeExpiry        time.Time     `json:"code_expiry"`
	AttemptsRemaining int           `json:"attempts_remaining"`
	SendAttempts      []SendAttempt `json:"send_attempts,omitempty"`
	FirstSMSAt        time.Time     `json:"first_sms_at"`
	CreatedAt         time.Time     `json:"created_at"`
	LastActionAt      time.Time     `json:"last_action_at"`
	RegistrationID    string        `json:"registration_id,omitempty"`
	DeviceID          string        `json:"device_id,omitempty"`
	IdentityKey       string        `json:"identity_key,omitempty"`
	Version           int64         `json:"version"`
}

// NewSession creates a Session in the transient pre-dispatch state with domain
// invariant validation.
func NewSession(key, username string, channel Channel, verifyAttempts int, now time.Time) (*Session, error) {
	if key == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "session key cannot be empty")
	}
	if username == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "username cannot be empty")
	}
	if channel != ChannelSMS && channel != ChannelVoice {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid channel")
	}
	if verifyAttempts <= 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "verify attempts must be positive")
	}

	return &Session{
		Key:               key,
		SessionID:         uuid.NewString(),
		Username:          username,
		Channel:           channel,
		State:             StateCreated,
		AttemptsRemaining: verifyAttempts,
		CreatedAt:         now,
		LastActionAt:      now,
	}, nil
}

// Active reports whether the session still accepts transitions.
func (s *Session) Active() bool {
	return !s.State.Terminal()
}

// TransitionTo advances the state machine, refusing regressions.
func (s *Session) TransitionTo(next State, now time.Time) error {
	if !s.State.CanTransitionTo(next) {
		return dErrors.Newf(dErrors.CodeInvalidState, "cannot transition session from %s to %s", s.State, next)
	}
	s.State = next
	s.LastActionAt = now
	return nil
}

// RecordSend appends a delivery attempt and tracks the first SMS timestamp
// for the voice escalation policy.
func (s *Session) RecordSend(channel Channel, now time.Time) {
	s.SendAttempts = append(s.SendAttempts, SendAttempt{Channel: channel, At: now})
	if channel == ChannelSMS && s.FirstSMSAt.IsZero() {
		s.FirstSMSAt = now
	}
	s.LastActionAt = now
}

// VoiceAttempts counts lifetime voice delivery attempts for this key.
func (s *Session) VoiceAttempts() int {
	n := 0
	for _, a := range s.SendAttempts {
		if a.Channel == ChannelVoice {
			n++
		}
	}
	return n
}

// ConsumeAttempt decrements the remaining verification attempts, failing the
// session when the budget reaches zero. The count never goes negative.
func (s *Session) ConsumeAttempt(now time.Time) error {
	if s.AttemptsRemaining <= 0 {
		return dErrors.New(dErrors.CodeAttemptsExhausted, "verification attempts exhausted")
	}
	s.AttemptsRemaining--
	s.LastActionAt = now
	if s.AttemptsRemaining == 0 {
		return s.TransitionTo(StateFailed, now)
	}
	return nil
}

// Clone returns a deep copy so stores never hand out aliased state.
func (s *Session) Clone() *Session {
	clone := *s
	if s.CodeHash != nil {
		clone.CodeHash = append([]byte(nil), s.CodeHash...)
	}
	if s.CodeSalt != nil {
		clone.CodeSalt = append([]byte(nil), s.CodeSalt...)
	}
	if s.SendAttempts != nil {
		clone.SendAttempts = append([]SendAttempt(nil), s.SendAttempts...)
	}
	return &clone
}

// MaskedPhone returns the session key with the middle digits obscured,
// keeping the prefix and the last two digits.
func (s *Session) MaskedPhone() string {
	return MaskPhone(s.Key)
}

// NormalizeKey canonicalizes a phone number into the session key form:
// leading + followed by 7-15 digits, separators stripped.
func NormalizeKey(phone string) (string, error) {
	var b strings.Builder
	for _, r := range phone {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+', r == ' ', r == '-', r == '(', r == ')', r == '.':
			// separators and the plus sign are dropped; plus is re-added below
		default:
			return "", dErrors.Newf(dErrors.CodeInvalidInput, "invalid phone number character %q", r)
		}
	}
	digits := b.String()
	if len(digits) < 7 || len(digits) > 15 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "phone number must have 7-15 digits")
	}
	return "+" + digits, nil
}

// MaskPhone obscures all but the prefix and last two digits of a normalized
// phone number.
func MaskPhone(key string) string {
	if len(key) <= 5 {
		return key
	}
	masked := []byte(key)
	for i := 3; i < len(masked)-2; i++ {
		masked[i] = '*'
	}
	return string(masked)
}
