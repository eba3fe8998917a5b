package models

import "time"

// StartResult is returned from a successful StartRegistration. The phone
// number is masked per policy; the plaintext code never appears here.
type StartResult struct {
	SessionID           string
	PhoneNumber         string
	CodeLength          int
	VerificationTimeout time.Duration
	Reused              bool
}

// VerifyResult reports a code check outcome.
type VerifyResult struct {
	Success           bool
	Message           string
	RemainingAttempts int
}

// CompleteResult reports a completion outcome.
type CompleteResult struct {
	Success bool
	Message string
}

// SessionMetadata mirrors the session's client-visible timing state: which
// actions may currently be attempted and how long until the next permit.
type SessionMetadata struct {
	SessionID            string
	PhoneNumber          string
	State                State
	Verified             bool
	MayRequestSMS        bool
	NextSMSSeconds       int64
	MayRequestVoice      bool
	NextVoiceSeconds     int64
	MayCheckCode         bool
	NextCodeCheckSeconds int64
	ExpiresInSeconds     int64
}
