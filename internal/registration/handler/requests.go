package handler

import (
	"strings"

	"github.com/asaskevich/govalidator"

	"enroll/internal/registration/models"
	dErrors "enroll/pkg/domain-errors"
)

// ValidateCredentialsRequest is the HTTP request body for
// POST /v1/credentials/validate.
type ValidateCredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r *ValidateCredentialsRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "request body is required")
	}
	r.Username = strings.TrimSpace(r.Username)
	if r.Username == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "username is required")
	}
	if len(r.Username) > 256 {
		return dErrors.New(dErrors.CodeInvalidInput, "username must be at most 256 characters")
	}
	if r.Password == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "password is required")
	}
	return nil
}

// StartSessionRequest is the HTTP request body for
// POST /v1/registration/sessions.
type StartSessionRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Channel  string `json:"channel"`

	parsedChannel models.Channel
}

func (r *StartSessionRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "request body is required")
	}
	r.Username = strings.TrimSpace(r.Username)
	if r.Username == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "username is required")
	}
	if len(r.Username) > 256 {
		return dErrors.New(dErrors.CodeInvalidInput, "username must be at most 256 characters")
	}
	if r.Password == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "password is required")
	}

	if r.Channel == "" {
		r.Channel = string(models.ChannelSMS)
	}
	channel, err := models.ParseChannel(r.Channel)
	if err != nil {
		return err
	}
	r.parsedChannel = channel
	return nil
}

// ParsedChannel returns the validated delivery channel.
func (r *StartSessionRequest) ParsedChannel() models.Channel {
	return r.parsedChannel
}

// VerifyCodeRequest is the HTTP request body for
// POST /v1/registration/sessions/{sessionID}/verify.
type VerifyCodeRequest struct {
	Code string `json:"code"`
}

func (r *VerifyCodeRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "request body is required")
	}
	r.Code = strings.TrimSpace(r.Code)
	if r.Code == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "code is required")
	}
	if !govalidator.IsNumeric(r.Code) || len(r.Code) < 4 || len(r.Code) > 10 {
		return dErrors.New(dErrors.CodeInvalidInput, "code must be 4-10 digits")
	}
	return nil
}

// CompleteSessionRequest is the HTTP request body for
// POST /v1/registration/sessions/{sessionID}/complete.
type CompleteSessionRequest struct {
	RegistrationID string `json:"registration_id"`
	DeviceID       string `json:"device_id"`
	IdentityKey    string `json:"identity_key"`
}

func (r *CompleteSessionRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "request body is required")
	}
	r.RegistrationID = strings.TrimSpace(r.RegistrationID)
	if r.RegistrationID == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "registration_id is required")
	}
	if len(r.RegistrationID) > 512 {
		return dErrors.New(dErrors.CodeInvalidInput, "registration_id must be at most 512 characters")
	}
	if len(r.DeviceID) > 512 {
		return dErrors.New(dErrors.CodeInvalidInput, "device_id must be at most 512 characters")
	}
	if r.IdentityKey != "" && !govalidator.IsBase64(r.IdentityKey) {
		return dErrors.New(dErrors.CodeInvalidInput, "identity_key must be base64 encoded")
	}
	return nil
}

func validSessionID(sessionID string) error {
	if sessionID == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "session ID is required")
	}
	if !govalidator.IsUUID(sessionID) {
		return dErrors.New(dErrors.CodeInvalidInput, "session ID must be a UUID")
	}
	return nil
}
