// Package ports declares the capability interfaces the orchestrator composes:
// credential validation, code delivery, and session persistence. Production
// and test implementations are interchangeable, so tests inject scripted
// behavior (including induced failures and races) without network access.
package ports

import (
	"context"
	"time"

	"enroll/internal/registration/models"
	dErrors "enroll/pkg/domain-errors"
)

var (
	// ErrSessionNotFound keeps storage 404s consistent across implementations.
	ErrSessionNotFound = dErrors.New(dErrors.CodeNotFound, "session not found")
	// ErrConcurrentModification signals a conditional write lost a race; the
	// caller reloads and retries or surfaces the conflict.
	ErrConcurrentModification = dErrors.New(dErrors.CodeConcurrentModification, "session modified concurrently")
)

// CredentialValidator authenticates a directory identity and yields the phone
// number bound to it. Failures carry codes: unauthorized (bad credentials),
// not_found (unknown user or missing phone attribute), unavailable/timeout
// (directory unreachable).
type CredentialValidator interface {
	Validate(ctx context.Context, username, password string) (phoneNumber string, err error)
}

// Receipt acknowledges a delivery attempt accepted by the provider.
type Receipt struct {
	ProviderID string
	Channel    models.Channel
	AcceptedAt time.Time
}

// NotificationDispatcher delivers a one-time code over the chosen channel.
// Failures carry codes: delivery_failed (provider error, invalid number),
// rate_limited (provider throttled), unavailable/timeout.
type NotificationDispatcher interface {
	Send(ctx context.Context, phoneNumber string, channel models.Channel, code string) (*Receipt, error)
}

// SessionStore persists sessions keyed by normalized phone number with
// optimistic concurrency. Get and GetByID return ErrSessionNotFound when
// absent. PutIf writes only when the stored version equals expectedVersion
// (zero for create); on success the session's Version is advanced, on a lost
// race ErrConcurrentModification is returned.
type SessionStore interface {
	Get(ctx context.Context, key string) (*models.Session, error)
	GetByID(ctx context.Context, sessionID string) (*models.Session, error)
	PutIf(ctx context.Context, session *models.Session, expectedVersion int64) error
	Delete(ctx context.Context, key string) error
}
