package httpclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostJSONRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var in map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		_ = json.NewEncoder(w).Encode(map[string]string{"echo": in["q"]})
	}))
	defer srv.Close()

	c := New(Options{MaxRetries: 2, Headers: map[string]string{"Authorization": "Bearer secret"}})
	c.baseDelay = time.Millisecond

	var out map[string]string
	require.NoError(t, c.PostJSON(context.Background(), srv.URL, map[string]string{"q": "net sales"}, &out))
	assert.Equal(t, "net sales", out["echo"])
	assert.EqualValues(t, 2, calls.Load())
}

func TestPostJSONDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad model", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(Options{MaxRetries: 3})
	c.baseDelay = time.Millisecond

	err := c.PostJSON(context.Background(), srv.URL, map[string]string{}, nil)
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusBadRequest))
	assert.Contains(t, err.Error(), "bad model")
	assert.EqualValues(t, 1, calls.Load())
}

func TestPostJSONGivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(Options{MaxRetries: 2})
	c.baseDelay = time.Millisecond

	err := c.PostJSON(context.Background(), srv.URL, map[string]string{}, nil)
	assert.True(t, IsStatus(err, http.StatusTooManyRequests))
	assert.EqualValues(t, 3, calls.Load())
}

func TestContextCancelStopsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := New(Options{MaxRetries: 5}).GetJSON(ctx, srv.URL, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRetryDelayIsCapped(t *testing.T) {
	c := New(Options{})
	assert.Equal(t, 200*time.Millisecond, c.retryDelay(0))
	assert.Equal(t, 800*time.Millisecond, c.retryDelay(2))
	assert.Equal(t, 5*time.Second, c.retryDelay(10))
	assert.Equal(t, 3*time.Second, retryAfter("3"))
	assert.Zero(t, retryAfter("soon"))
}
