package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	apperrors "gatekeeper/pkg/errors"
)

func TestGetUserByID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/123456", r.URL.Path)
		assert.Equal(t, "Bot test-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"123456","username":"miner42","global_name":"Miner"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-token", 0, 0, zaptest.NewLogger(t).Sugar())

	profile, err := client.GetUserByID(context.Background(), "123456")
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, "123456", profile.ExternalID)
	assert.Equal(t, "miner42", profile.Username)
	assert.Equal(t, "Miner", profile.DisplayName)
	assert.Equal(t, "Miner", profile.Name())
}

func TestGetUserByIDNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-token", 0, 0, zaptest.NewLogger(t).Sugar())

	profile, err := client.GetUserByID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, profile)
}

func TestGetUserByIDServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"message":"boom"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-token", 0, 0, zaptest.NewLogger(t).Sugar())

	_, err := client.GetUserByID(context.Background(), "123456")
	require.Error(t, err)

	remoteErr, ok := apperrors.IsRemoteAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusInternalServerError, remoteErr.Status)
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-token", 0, 0, zaptest.NewLogger(t).Sugar())

	for i := 0; i < 5; i++ {
		_, err := client.GetUserByID(context.Background(), "123456")
		require.Error(t, err)
	}

	// The breaker is open now, so the next call fails without a request.
	_, err := client.GetUserByID(context.Background(), "123456")
	require.Error(t, err)
	_, isRemote := apperrors.IsRemoteAPIError(err)
	assert.False(t, isRemote)
}

func TestRateLimiterRespectsContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"1","username":"a","global_name":""}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "", 0.001, 1, zaptest.NewLogger(t).Sugar())

	// First call consumes the only burst token.
	_, err := client.GetUserByID(context.Background(), "1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = client.GetUserByID(ctx, "1")
	require.Error(t, err)
}
