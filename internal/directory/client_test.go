package directory

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
	dErrors "enroll/pkg/domain-errors"
)

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)
	client := NewClient(config.Directory{
		BaseURL:      server.URL,
		BindUser:     "svc",
		BindPassword: "svc-secret",
		Timeout:      time.Second,
	})
	return client, server
}

func TestValidate_OK(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/validate", r.URL.Path)

		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "svc", user)
		assert.Equal(t, "svc-secret", pass)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "alice", body["username"])

		_ = json.NewEncoder(w).Encode(map[string]string{"phone_number": "+15551234567"})
	})
	defer server.Close()

	phone, err := client.Validate(context.Background(), "alice", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "+15551234567", phone)
}

func TestValidate_BadCredentials(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	defer server.Close()

	_, err := client.Validate(context.Background(), "alice", "wrong")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestValidate_NoPhoneOnRecord(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	defer server.Close()

	_, err := client.Validate(context.Background(), "alice", "hunter2")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestValidate_EmptyPhoneTreatedAsMissing(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"phone_number": ""})
	})
	defer server.Close()

	_, err := client.Validate(context.Background(), "alice", "hunter2")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestValidate_ServerError(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	defer server.Close()

	_, err := client.Validate(context.Background(), "alice", "hunter2")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
}

func TestValidate_Unreachable(t *testing.T) {
	client, server := newTestClient(func(http.ResponseWriter, *http.Request) {})
	server.Close()

	_, err := client.Validate(context.Background(), "alice", "hunter2")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
}
