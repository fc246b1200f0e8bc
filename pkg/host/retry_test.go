package host

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() RetryConfig {
	return RetryConfig{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, Multiplier: 2}
}

func TestWithRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), fastRetry(), func() error {
		calls++
		return ErrRejected
	})
	assert.ErrorIs(t, err, ErrRejected)
	assert.Equal(t, 1, calls)
}

func TestWithRetryGivesUp(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), fastRetry(), func() error {
		calls++
		return errTransient
	})
	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 4, calls)
}

func TestWithRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := withRetry(ctx, RetryConfig{MaxRetries: 5, InitialBackoff: time.Hour, MaxBackoff: time.Hour, Multiplier: 1}, func() error {
		return errTransient
	})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestClientRetriesGatewayErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"cpu","name":"cpu","kind":"CPU","enabled":true}]`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	client.SetRetry(fastRetry())

	devices, err := client.Devices()
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.True(t, devices[0].Enabled)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestClientDoesNotRetryRejection(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	client.SetRetry(fastRetry())

	err := client.UseGPU()
	assert.ErrorIs(t, err, ErrRejected)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}
