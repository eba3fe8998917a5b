package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enroll/internal/platform/config"
	"enroll/internal/registration/models"
	dErrors "enroll/pkg/domain-errors"
)

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)
	client := NewClient(config.Delivery{
		BaseURL:    server.URL,
		AccountSID: "AC123",
		AuthToken:  "token",
		ServiceSID: "VA456",
		Timeout:    time.Second,
	})
	return client, server
}

func TestSend_OK(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/Services/VA456/Verifications", r.URL.Path)

		user, _, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "AC123", user)

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "+15551234567", r.PostForm.Get("To"))
		assert.Equal(t, "sms", r.PostForm.Get("Channel"))
		assert.Equal(t, "123456", r.PostForm.Get("CustomCode"))

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"sid": "VE789", "status": "pending"})
	})
	defer server.Close()

	receipt, err := client.Send(context.Background(), "+15551234567", models.ChannelSMS, "123456")
	require.NoError(t, err)
	assert.Equal(t, "VE789", receipt.ProviderID)
	assert.Equal(t, models.ChannelSMS, receipt.Channel)
}

func TestSend_ProviderThrottled(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	})
	defer server.Close()

	_, err := client.Send(context.Background(), "+15551234567", models.ChannelSMS, "123456")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeRateLimited))

	retryAfter, ok := dErrors.RetryAfterOf(err)
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, retryAfter)
}

func TestSend_InvalidNumberRejected(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	defer server.Close()

	_, err := client.Send(context.Background(), "+15551234567", models.ChannelSMS, "123456")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeDeliveryFailed))
}

func TestSend_ProviderDown(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	defer server.Close()

	_, err := client.Send(context.Background(), "+15551234567", models.ChannelVoice, "123456")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
}
