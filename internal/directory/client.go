// Package directory implements the credential validation facade over the
// account directory's HTTP API. It authenticates a username/password pair and
// returns the phone number attribute bound to the account.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"enroll/internal/platform/config"
	dErrors "enroll/pkg/domain-errors"
)

// Client talks to the directory service. The service binds with its own
// credentials; the end user's credentials travel in the request body and are
// never logged.
type Client struct {
	baseURL      string
	bindUser     string
	bindPassword string
	httpClient   *http.Client
}

func NewClient(cfg config.Directory) *Client {
	return &Client{
		baseURL:      cfg.BaseURL,
		bindUser:     cfg.BindUser,
		bindPassword: cfg.BindPassword,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
	}
}

type validateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type validateResponse struct {
	PhoneNumber string `json:"phone_number"`
}

// Validate checks the credentials and returns the account's phone number.
func (c *Client) Validate(ctx context.Context, username, password string) (string, error) {
	body, err := json.Marshal(validateRequest{Username: username, Password: password})
	if err != nil {
		return "", fmt.Errorf("encode validate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/validate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build validate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.bindUser != "" {
		req.SetBasicAuth(c.bindUser, c.bindPassword)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", dErrors.Wrap(err, dErrors.CodeTimeout, "directory request timed out")
		}
		return "", dErrors.Wrap(err, dErrors.CodeUnavailable, "directory unreachable")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
	case resp.StatusCode == http.StatusNotFound:
		return "", dErrors.New(dErrors.CodeNotFound, "account has no phone number on record")
	case resp.StatusCode >= 500:
		return "", dErrors.Newf(dErrors.CodeUnavailable, "directory returned status %d", resp.StatusCode)
	default:
		return "", dErrors.Newf(dErrors.CodeInternal, "unexpected directory status %d", resp.StatusCode)
	}

	var decoded validateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "decode directory response")
	}
	if decoded.PhoneNumber == "" {
		return "", dErrors.New(dErrors.CodeNotFound, "account has no phone number on record")
	}
	return decoded.PhoneNumber, nil
}
