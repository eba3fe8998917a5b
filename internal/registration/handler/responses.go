package handler

import (
	"enroll/internal/registration/models"
)

// ValidateCredentialsResponse is the body for POST /v1/credentials/validate.
type ValidateCredentialsResponse struct {
	PhoneNumber string `json:"phone_number"`
}

// StartSessionResponse is the body for POST /v1/registration/sessions.
type StartSessionResponse struct {
	SessionID                  string `json:"session_id"`
	PhoneNumber                string `json:"phone_number"`
	CodeLength                 int    `json:"code_length"`
	VerificationTimeoutSeconds int64  `json:"verification_timeout_seconds"`
	Reused                     bool   `json:"reused"`
}

func fromStartResult(r *models.StartResult) StartSessionResponse {
	return StartSessionResponse{
		SessionID:                  r.SessionID,
		PhoneNumber:                r.PhoneNumber,
		CodeLength:                 r.CodeLength,
		VerificationTimeoutSeconds: int64(r.VerificationTimeout.Seconds()),
		Reused:                     r.Reused,
	}
}

// VerifyCodeResponse is the body for POST .../{sessionID}/verify.
type VerifyCodeResponse struct {
	Success           bool   `json:"success"`
	Message           string `json:"message"`
	RemainingAttempts int    `json:"remaining_attempts"`
}

func fromVerifyResult(r *models.VerifyResult) VerifyCodeResponse {
	return VerifyCodeResponse{
		Success:           r.Success,
		Message:           r.Message,
		RemainingAttempts: r.RemainingAttempts,
	}
}

// CompleteSessionResponse is the body for POST .../{sessionID}/complete.
type CompleteSessionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// SessionMetadataResponse is the body for GET /v1/registration/sessions/{sessionID}.
type SessionMetadataResponse struct {
	SessionID            string `json:"session_id"`
	PhoneNumber          string `json:"phone_number"`
	State                string `json:"state"`
	Verified             bool   `json:"verified"`
	MayRequestSMS        bool   `json:"may_request_sms"`
	NextSMSSeconds       int64  `json:"next_sms_seconds,omitempty"`
	MayRequestVoice      bool   `json:"may_request_voice"`
	NextVoiceSeconds     int64  `json:"next_voice_seconds,omitempty"`
	MayCheckCode         bool   `json:"may_check_code"`
	NextCodeCheckSeconds int64  `json:"next_code_check_seconds,omitempty"`
	ExpiresInSeconds     int64  `json:"expires_in_seconds,omitempty"`
}

func fromSessionMetadata(m *models.SessionMetadata) SessionMetadataResponse {
	return SessionMetadataResponse{
		SessionID:            m.SessionID,
		PhoneNumber:          m.PhoneNumber,
		State:                string(m.State),
		Verified:             m.Verified,
		MayRequestSMS:        m.MayRequestSMS,
		NextSMSSeconds:       m.NextSMSSeconds,
		MayRequestVoice:      m.MayRequestVoice,
		NextVoiceSeconds:     m.NextVoiceSeconds,
		MayCheckCode:         m.MayCheckCode,
		NextCodeCheckSeconds: m.NextCodeCheckSeconds,
		ExpiresInSeconds:     m.ExpiresInSeconds,
	}
}
