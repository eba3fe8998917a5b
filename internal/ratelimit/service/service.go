// Package service exposes the per-action rate limit policy table behind a
// small facade. The orchestrator asks for permits by action; this service maps
// actions to their primitive (leaky bucket or cooldown gate), namespaces the
// keys, and turns denials into typed rate-limit errors carrying retry hints.
//
// The voice escalation rules (delay after first SMS, lifetime attempt cap) and
// the generic voice cooldown are enforced independently: a voice send must
// pass both, and neither resets the other.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"enroll/internal/ratelimit/metrics"
	"enroll/internal/ratelimit/models"
	"enroll/internal/ratelimit/store/bucket"
	"enroll/internal/ratelimit/store/cooldown"
	dErrors "enroll/pkg/domain-errors"
	"enroll/pkg/requestcontext"
)

// Service owns all bucket and gate state. Nothing outside it reads or writes
// token counts or last-fired timestamps.
type Service struct {
	config  models.Config
	buckets *bucket.InMemoryStore
	gates   *cooldown.InMemoryStore
	logger  *slog.Logger
	metrics *metrics.Metrics
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

func New(config models.Config, opts ...Option) (*Service, error) {
	if config.SessionCreation.MaxCapacity <= 0 {
		return nil, errors.New("session creation bucket capacity must be positive")
	}

	svc := &Service{
		config:  config,
		buckets: bucket.NewInMemoryStore(),
		gates:   cooldown.NewInMemoryStore(),
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

// AcquireSessionCreation consumes a leaky-bucket permit for key.
func (s *Service) AcquireSessionCreation(ctx context.Context, key string) error {
	result := s.buckets.Acquire(ctx, scopedKey(models.PolicySessionCreation, key), s.config.SessionCreation)
	s.record(ctx, models.PolicySessionCreation, result)
	if !result.Allowed {
		return rateLimited("session creation rate limited", result.RetryAfter)
	}
	return nil
}

// AcquireSendSMS consumes the SMS send cooldown gate for key.
func (s *Service) AcquireSendSMS(ctx context.Context, key string) error {
	result := s.gates.Acquire(ctx, scopedKey(models.PolicySendSMS, key), s.config.SendSMS)
	s.record(ctx, models.PolicySendSMS, result)
	if !result.Allowed {
		return rateLimited("SMS delivery rate limited", result.RetryAfter)
	}
	return nil
}

// AcquireSendVoice consumes the voice send cooldown gate for key after
// checking the escalation rules. firstSMSAt and voiceAttempts describe the
// delivery history for the key; the caller owns that state, this service only
// judges it.
func (s *Service) AcquireSendVoice(ctx context.Context, key string, firstSMSAt time.Time, voiceAttempts int) error {
	now := requestcontext.Now(ctx)

	if voiceAttempts >= s.config.SendVoice.MaxAttempts {
		s.recordDenied(ctx, models.PolicySendVoice)
		return dErrors.New(dErrors.CodeAttemptsExhausted, "voice delivery attempts exhausted")
	}
	if firstSMSAt.IsZero() {
		s.recordDenied(ctx, models.PolicySendVoice)
		return rateLimited("voice delivery requires a prior SMS attempt", s.config.SendVoice.DelayAfterFirstSMS)
	}
	if elapsed := now.Sub(firstSMSAt); elapsed < s.config.SendVoice.DelayAfterFirstSMS {
		s.recordDenied(ctx, models.PolicySendVoice)
		return rateLimited("voice delivery not yet available", s.config.SendVoice.DelayAfterFirstSMS-elapsed)
	}

	result := s.gates.Acquire(ctx, scopedKey(models.PolicySendVoice, key), models.CooldownConfig{Delay: s.config.SendVoice.Delay})
	s.record(ctx, models.PolicySendVoice, result)
	if !result.Allowed {
		return rateLimited("voice delivery rate limited", result.RetryAfter)
	}
	return nil
}

// AcquireCodeCheck consumes the code-check cooldown gate, keyed by session ID
// so guesses are throttled independently of attempt counting.
func (s *Service) AcquireCodeCheck(ctx context.Context, sessionID string) error {
	result := s.gates.Acquire(ctx, scopedKey(models.PolicyCheckCode, sessionID), s.config.CheckCode)
	s.record(ctx, models.PolicyCheckCode, result)
	if !result.Allowed {
		return rateLimited("code checks rate limited", result.RetryAfter)
	}
	return nil
}

// PeekSendSMS reports SMS send availability without firing the gate.
func (s *Service) PeekSendSMS(ctx context.Context, key string) models.Result {
	return s.gates.Peek(ctx, scopedKey(models.PolicySendSMS, key), s.config.SendSMS)
}

// PeekSendVoice reports voice send availability without firing the gate,
// folding in the escalation rules.
func (s *Service) PeekSendVoice(ctx context.Context, key string, firstSMSAt time.Time, voiceAttempts int) models.Result {
	now := requestcontext.Now(ctx)

	if voiceAttempts >= s.config.SendVoice.MaxAttempts {
		return models.Result{Allowed: false}
	}
	if firstSMSAt.IsZero() {
		return models.Result{Allowed: false, RetryAfter: s.config.SendVoice.DelayAfterFirstSMS}
	}
	if elapsed := now.Sub(firstSMSAt); elapsed < s.config.SendVoice.DelayAfterFirstSMS {
		remaining := s.config.SendVoice.DelayAfterFirstSMS - elapsed
		return models.Result{Allowed: false, RetryAfter: remaining, ResetAt: now.Add(remaining)}
	}
	return s.gates.Peek(ctx, scopedKey(models.PolicySendVoice, key), models.CooldownConfig{Delay: s.config.SendVoice.Delay})
}

// PeekCodeCheck reports code-check availability without firing the gate.
func (s *Service) PeekCodeCheck(ctx context.Context, sessionID string) models.Result {
	return s.gates.Peek(ctx, scopedKey(models.PolicyCheckCode, sessionID), s.config.CheckCode)
}

func (s *Service) record(ctx context.Context, policy models.Policy, result models.Result) {
	if s.metrics != nil {
		s.metrics.RecordDecision(string(policy), result.Allowed)
	}
	if !result.Allowed && s.logger != nil {
		s.logger.InfoContext(ctx, "rate limit denied",
			"policy", policy,
			"retry_after", result.RetryAfter.String(),
		)
	}
}

func (s *Service) recordDenied(ctx context.Context, policy models.Policy) {
	s.record(ctx, policy, models.Result{Allowed: false})
}

func rateLimited(message string, retryAfter time.Duration) error {
	return dErrors.New(dErrors.CodeRateLimited, message).WithRetryAfter(retryAfter)
}

func scopedKey(policy models.Policy, key string) string {
	return string(policy) + ":" + key
}
