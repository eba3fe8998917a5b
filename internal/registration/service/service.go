// Package service implements the registration orchestrator: it validates
// directory credentials, manages the per-phone-number session lifecycle,
// enforces rate limit policies before every externally triggered action, and
// drives code generation, delivery, and verification.
//
// All session mutations go through versioned conditional writes. When a write
// loses a race the orchestrator reloads and re-evaluates rather than
// clobbering concurrent progress; rate limit permits are consumed at most once
// per client request regardless of retries.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"enroll/internal/platform/config"
	ratelimit "enroll/internal/ratelimit/service"
	"enroll/internal/registration/code"
	"enroll/internal/registration/metrics"
	"enroll/internal/registration/models"
	"enroll/internal/registration/ports"
	dErrors "enroll/pkg/domain-errors"
	"enroll/pkg/requestcontext"
)

// maxConflictRetries bounds reload-and-retry loops on lost conditional
// writes before the conflict is surfaced to the caller.
const maxConflictRetries = 3

// errUnchanged aborts an update loop without persisting; used for idempotent
// repeats that must not bump the session version.
var errUnchanged = errors.New("session unchanged")

// Config carries the orchestration policy knobs.
type Config struct {
	VerifyAttempts  int
	CreationScope   config.BucketScope
	UpstreamTimeout time.Duration
}

// Service coordinates the full registration flow across the credential
// directory, the delivery provider, the session store, and the rate limiter.
type Service struct {
	config     Config
	validator  ports.CredentialValidator
	dispatcher ports.NotificationDispatcher
	sessions   ports.SessionStore
	limits     *ratelimit.Service
	codes      *code.Manager
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(
	cfg Config,
	validator ports.CredentialValidator,
	dispatcher ports.NotificationDispatcher,
	sessions ports.SessionStore,
	limits *ratelimit.Service,
	codes *code.Manager,
	opts ...Option,
) (*Service, error) {
	if cfg.VerifyAttempts <= 0 {
		return nil, errors.New("verify attempts must be positive")
	}
	if cfg.UpstreamTimeout <= 0 {
		return nil, errors.New("upstream timeout must be positive")
	}
	if validator == nil || dispatcher == nil || sessions == nil || limits == nil || codes == nil {
		return nil, errors.New("all orchestrator dependencies are required")
	}

	svc := &Service{
		config:     cfg,
		validator:  validator,
		dispatcher: dispatcher,
		sessions:   sessions,
		limits:     limits,
		codes:      codes,
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

// ValidateCredentials authenticates a username/password pair against the
// directory and returns the phone number bound to the account. No session is
// created.
func (s *Service) ValidateCredentials(ctx context.Context, username, password string) (string, error) {
	if username == "" || password == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "username and password are required")
	}
	phone, err := s.validateUpstream(ctx, username, password)
	if err != nil {
		return "", err
	}
	return phone, nil
}

// StartRegistration authenticates the caller, creates or reuses the session
// for the bound phone number, generates a fresh code, and dispatches it over
// the requested channel. The session is persisted before dispatch so a
// delivery failure never loses the attempt history.
func (s *Service) StartRegistration(ctx context.Context, username, password string, channel models.Channel) (*models.StartResult, error) {
	if username == "" || password == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "username and password are required")
	}
	if channel != models.ChannelSMS && channel != models.ChannelVoice {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "channel must be 'sms' or 'voice'")
	}

	bucketKey := username
	if s.config.CreationScope == config.ScopeGlobal {
		bucketKey = "global"
	}
	if err := s.limits.AcquireSessionCreation(ctx, bucketKey); err != nil {
		return nil, err
	}

	phone, err := s.validateUpstream(ctx, username, password)
	if err != nil {
		return nil, err
	}
	key, err := models.NormalizeKey(phone)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)

	var (
		sess      *models.Session
		plaintext string
		reused    bool
	)
	for attempt := 0; ; attempt++ {
		if attempt > maxConflictRetries {
			return nil, ports.ErrConcurrentModification
		}

		expectedVersion := int64(0)
		reused = false
		existing, err := s.sessions.Get(ctx, key)
		switch {
		case err == nil && existing.Active():
			if existing.Username != username {
				return nil, dErrors.New(dErrors.CodeConflict, "an active registration session exists for this phone number")
			}
			if existing.State == models.StateVerified {
				// verified but never completed: restarting the flow supersedes
				// the old session rather than rewinding its state machine
				sess, err = models.NewSession(key, username, channel, s.config.VerifyAttempts, now)
				if err != nil {
					return nil, err
				}
				expectedVersion = existing.Version
				break
			}
			sess = existing
			expectedVersion = existing.Version
			reused = true
		case err == nil:
			// terminal leftover from an earlier attempt: replace it
			sess, err = models.NewSession(key, username, channel, s.config.VerifyAttempts, now)
			if err != nil {
				return nil, err
			}
			expectedVersion = existing.Version
		case errors.Is(err, ports.ErrSessionNotFound):
			sess, err = models.NewSession(key, username, channel, s.config.VerifyAttempts, now)
			if err != nil {
				return nil, err
			}
		default:
			return nil, err
		}

		// Delivery permits are consumed once per request, not per retry.
		if attempt == 0 {
			switch channel {
			case models.ChannelSMS:
				err = s.limits.AcquireSendSMS(ctx, key)
			case models.ChannelVoice:
				err = s.limits.AcquireSendVoice(ctx, key, sess.FirstSMSAt, sess.VoiceAttempts())
			}
			if err != nil {
				return nil, err
			}
		}

		plaintext, err = s.codes.Generate()
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "code generation failed")
		}
		if err := s.codes.Assign(sess, plaintext, now); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "code generation failed")
		}
		sess.Channel = channel
		sess.RecordSend(channel, now)
		if err := sess.TransitionTo(models.StateCodeSent, now); err != nil {
			return nil, err
		}

		err = s.sessions.PutIf(ctx, sess, expectedVersion)
		if errors.Is(err, ports.ErrConcurrentModification) {
			if s.metrics != nil {
				s.metrics.WriteConflicts.Inc()
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		break
	}

	if s.metrics != nil {
		s.metrics.SessionsStarted.WithLabelValues(string(channel), boolLabel(reused)).Inc()
	}

	if _, err := s.dispatchUpstream(ctx, sess.Key, channel, plaintext); err != nil {
		if s.metrics != nil {
			s.metrics.CodesDispatched.WithLabelValues(string(channel), "failure").Inc()
		}
		s.logger.ErrorContext(ctx, "code delivery failed",
			"session_id", sess.SessionID,
			"channel", channel,
			"error", err,
		)
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.CodesDispatched.WithLabelValues(string(channel), "success").Inc()
	}
	s.logger.InfoContext(ctx, "verification code dispatched",
		"session_id", sess.SessionID,
		"phone", sess.MaskedPhone(),
		"channel", channel,
		"reused", reused,
	)

	return &models.StartResult{
		SessionID:           sess.SessionID,
		PhoneNumber:         sess.MaskedPhone(),
		CodeLength:          s.codes.Length(),
		VerificationTimeout: s.codes.Expiry(),
		Reused:              reused,
	}, nil
}

// VerifyCode checks a submitted code against the session. A correct code
// moves the session to verified; an incorrect one consumes an attempt and
// fails the session when the budget runs out. Checking an expired code
// expires the session without consuming an attempt.
func (s *Service) VerifyCode(ctx context.Context, sessionID, submitted string) (*models.VerifyResult, error) {
	if sessionID == "" || submitted == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "session ID and code are required")
	}

	// Terminal states answer before a rate limit permit is spent.
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := terminalStateError(sess.State); err != nil {
		return nil, err
	}

	if err := s.limits.AcquireCodeCheck(ctx, sessionID); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)

	var (
		result  *models.VerifyResult
		expired bool
	)
	_, err = s.updateByID(ctx, sessionID, func(cur *models.Session) error {
		result, expired = nil, false

		if err := terminalStateError(cur.State); err != nil {
			return err
		}
		if now.After(cur.CodeExpiry) {
			// expiry consumes no attempt
			expired = true
			return cur.TransitionTo(models.StateExpired, now)
		}
		if !s.codes.Check(cur, submitted) {
			if err := cur.ConsumeAttempt(now); err != nil {
				return err
			}
			result = &models.VerifyResult{
				Success:           false,
				Message:           "incorrect verification code",
				RemainingAttempts: cur.AttemptsRemaining,
			}
			return nil
		}
		if err := cur.TransitionTo(models.StateVerified, now); err != nil {
			return err
		}
		result = &models.VerifyResult{
			Success:           true,
			Message:           "phone number verified",
			RemainingAttempts: cur.AttemptsRemaining,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if expired {
		s.recordCheck(ctx, sessionID, "expired")
		return nil, dErrors.New(dErrors.CodeExpired, "verification code expired")
	}

	if result.Success {
		s.recordCheck(ctx, sessionID, "success")
	} else {
		s.recordCheck(ctx, sessionID, "mismatch")
	}
	return result, nil
}

// CompleteRegistration binds the caller's registration payload to a verified
// session and closes it. Repeating the call with an identical payload is
// idempotent; a differing payload on a completed session is refused.
func (s *Service) CompleteRegistration(ctx context.Context, sessionID, registrationID, deviceID, identityKey string) (*models.CompleteResult, error) {
	if sessionID == "" || registrationID == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "session ID and registration ID are required")
	}

	var result *models.CompleteResult
	sess, err := s.updateByID(ctx, sessionID, func(cur *models.Session) error {
		result = nil

		if cur.State == models.StateCompleted {
			if cur.RegistrationID == registrationID && cur.DeviceID == deviceID && cur.IdentityKey == identityKey {
				result = &models.CompleteResult{Success: true, Message: "registration already completed"}
				return errUnchanged
			}
			return dErrors.New(dErrors.CodeAlreadyCompleted, "session completed with a different registration")
		}
		if cur.State != models.StateVerified {
			return dErrors.Newf(dErrors.CodeInvalidState, "session must be verified before completion, not %s", cur.State)
		}

		cur.RegistrationID = registrationID
		cur.DeviceID = deviceID
		cur.IdentityKey = identityKey
		if err := cur.TransitionTo(models.StateCompleted, requestcontext.Now(ctx)); err != nil {
			return err
		}
		result = &models.CompleteResult{Success: true, Message: "registration completed"}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.SessionsCompleted.Inc()
	}
	s.logger.InfoContext(ctx, "registration completed",
		"session_id", sess.SessionID,
		"phone", sess.MaskedPhone(),
	)
	return result, nil
}

// GetSessionMetadata reports the session's state and the caller-visible rate
// limit timing: which actions may be attempted now and how long until the
// next permit. Nothing is consumed.
func (s *Service) GetSessionMetadata(ctx context.Context, sessionID string) (*models.SessionMetadata, error) {
	if sessionID == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "session ID is required")
	}

	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	active := sess.Active()

	smsState := s.limits.PeekSendSMS(ctx, sess.Key)
	voiceState := s.limits.PeekSendVoice(ctx, sess.Key, sess.FirstSMSAt, sess.VoiceAttempts())
	checkState := s.limits.PeekCodeCheck(ctx, sessionID)

	codeOutstanding := active &&
		sess.State == models.StateCodeSent &&
		sess.AttemptsRemaining > 0 &&
		now.Before(sess.CodeExpiry)

	md := &models.SessionMetadata{
		SessionID:            sess.SessionID,
		PhoneNumber:          sess.MaskedPhone(),
		State:                sess.State,
		Verified:             sess.State == models.StateVerified || sess.State == models.StateCompleted,
		MayRequestSMS:        active && smsState.Allowed,
		NextSMSSeconds:       ceilSeconds(smsState.RetryAfter),
		MayRequestVoice:      active && voiceState.Allowed,
		NextVoiceSeconds:     ceilSeconds(voiceState.RetryAfter),
		MayCheckCode:         codeOutstanding && checkState.Allowed,
		NextCodeCheckSeconds: ceilSeconds(checkState.RetryAfter),
	}
	if !sess.CodeExpiry.IsZero() && sess.CodeExpiry.After(now) {
		md.ExpiresInSeconds = ceilSeconds(sess.CodeExpiry.Sub(now))
	}
	return md, nil
}

// updateByID loads the session, applies mutate, and persists with a
// conditional write, retrying on lost races. mutate runs against a fresh copy
// on every retry; returning errUnchanged skips the write and reports success.
func (s *Service) updateByID(ctx context.Context, sessionID string, mutate func(*models.Session) error) (*models.Session, error) {
	for attempt := 0; attempt <= maxConflictRetries; attempt++ {
		sess, err := s.sessions.GetByID(ctx, sessionID)
		if err != nil {
			return nil, err
		}

		if err := mutate(sess); err != nil {
			if errors.Is(err, errUnchanged) {
				return sess, nil
			}
			return nil, err
		}

		err = s.sessions.PutIf(ctx, sess, sess.Version)
		if errors.Is(err, ports.ErrConcurrentModification) {
			if s.metrics != nil {
				s.metrics.WriteConflicts.Inc()
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		return sess, nil
	}
	return nil, ports.ErrConcurrentModification
}

// validateUpstream calls the credential directory under the upstream timeout.
func (s *Service) validateUpstream(ctx context.Context, username, password string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.UpstreamTimeout)
	defer cancel()

	phone, err := s.validator.Validate(ctx, username, password)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", dErrors.Wrap(err, dErrors.CodeTimeout, "credential validation timed out")
		}
		var domainErr *dErrors.Error
		if errors.As(err, &domainErr) {
			return "", err
		}
		return "", dErrors.Wrap(err, dErrors.CodeUnavailable, "credential validation failed")
	}
	return phone, nil
}

// dispatchUpstream calls the delivery provider under the upstream timeout.
func (s *Service) dispatchUpstream(ctx context.Context, phone string, channel models.Channel, plaintext string) (*ports.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.UpstreamTimeout)
	defer cancel()

	receipt, err := s.dispatcher.Send(ctx, phone, channel, plaintext)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "code delivery timed out")
		}
		var domainErr *dErrors.Error
		if errors.As(err, &domainErr) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeDeliveryFailed, "code delivery failed")
	}
	return receipt, nil
}

func (s *Service) recordCheck(ctx context.Context, sessionID, outcome string) {
	if s.metrics != nil {
		s.metrics.VerificationChecks.WithLabelValues(outcome).Inc()
	}
	s.logger.InfoContext(ctx, "verification code checked",
		"session_id", sessionID,
		"outcome", outcome,
	)
}

// terminalStateError maps terminal session states to the error the caller
// should see when attempting further verification.
func terminalStateError(state models.State) error {
	switch state {
	case models.StateCompleted:
		return dErrors.New(dErrors.CodeAlreadyCompleted, "session already completed")
	case models.StateFailed:
		return dErrors.New(dErrors.CodeAttemptsExhausted, "verification attempts exhausted")
	case models.StateExpired:
		return dErrors.New(dErrors.CodeExpired, "session expired")
	}
	return nil
}

func ceilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	secs := int64(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
