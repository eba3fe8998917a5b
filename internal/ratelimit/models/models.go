// Package models defines the rate limiter's vocabulary: policy names, per-policy
// parameters, and the decision result. The limiter knows nothing about sessions;
// it throttles opaque string keys.
package models

import "time"

// Policy names an action-specific rate limit. Keys are namespaced per policy so
// distinct actions never share buckets or gates.
type Policy string

const (
	PolicySessionCreation Policy = "session_creation"
	PolicyCheckCode       Policy = "check_verification_code"
	PolicySendSMS         Policy = "send_sms_verification_code"
	PolicySendVoice       Policy = "send_voice_verification_code"
)

// Result represents the outcome of a permit acquisition or peek.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
}

// BucketConfig parameterizes a leaky bucket: a pool of MaxCapacity permits that
// regenerates LeakRate tokens every RegenerationPeriod, with at least MinDelay
// between consecutive grants for the same key.
type BucketConfig struct {
	MaxCapacity        int
	LeakRate           float64
	RegenerationPeriod time.Duration
	MinDelay           time.Duration
	InitialTokens      float64
}

// CooldownConfig parameterizes a fixed-interval gate.
type CooldownConfig struct {
	Delay time.Duration
}

// VoiceConfig extends the cooldown with the voice escalation rules: voice
// requires DelayAfterFirstSMS to have elapsed since the first SMS for the key
// and is capped at MaxAttempts lifetime grants.
type VoiceConfig struct {
	Delay              time.Duration
	DelayAfterFirstSMS time.Duration
	MaxAttempts        int
}

// Config is the full policy table consumed by the rate limit service.
type Config struct {
	SessionCreation BucketConfig
	CheckCode       CooldownConfig
	SendSMS         CooldownConfig
	SendVoice       VoiceConfig
}
