// Package notify implements the code delivery facade over a Twilio-style
// messaging provider. It sends the already-generated code over SMS or voice;
// provider throttling and rejection are translated into domain errors the
// orchestrator can surface with retry hints.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"enroll/internal/platform/config"
	"enroll/internal/registration/models"
	"enroll/internal/registration/ports"
	dErrors "enroll/pkg/domain-errors"
	"enroll/pkg/requestcontext"
)

// Client posts delivery requests to the provider's verification endpoint.
type Client struct {
	baseURL    string
	accountSID string
	authToken  string
	serviceSID string
	httpClient *http.Client
}

func NewClient(cfg config.Delivery) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		serviceSID: cfg.ServiceSID,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type sendResponse struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

// Send delivers the code to the phone number over the given channel.
func (c *Client) Send(ctx context.Context, phoneNumber string, channel models.Channel, code string) (*ports.Receipt, error) {
	form := url.Values{}
	form.Set("To", phoneNumber)
	form.Set("Channel", string(channel))
	form.Set("CustomCode", code)

	endpoint := fmt.Sprintf("%s/v2/Services/%s/Verifications", c.baseURL, c.serviceSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build delivery request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "delivery provider timed out")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "delivery provider unreachable")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		// accepted
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, dErrors.New(dErrors.CodeRateLimited, "delivery provider throttled the request").
			WithRetryAfter(retryAfterHeader(resp))
	case resp.StatusCode == http.StatusBadRequest:
		return nil, dErrors.New(dErrors.CodeDeliveryFailed, "delivery provider rejected the phone number")
	case resp.StatusCode >= 500:
		return nil, dErrors.Newf(dErrors.CodeUnavailable, "delivery provider returned status %d", resp.StatusCode)
	default:
		return nil, dErrors.Newf(dErrors.CodeDeliveryFailed, "unexpected delivery provider status %d", resp.StatusCode)
	}

	var decoded sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "decode delivery response")
	}

	return &ports.Receipt{
		ProviderID: decoded.SID,
		Channel:    channel,
		AcceptedAt: requestcontext.Now(ctx),
	}, nil
}

func retryAfterHeader(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return time.Minute
}
