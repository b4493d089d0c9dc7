package httpfs

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noSleep records backoff durations without waiting.
func noSleep(sleeps *[]time.Duration) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		if sleeps != nil {
			*sleeps = append(*sleeps, d)
		}
		return ctx.Err()
	}
}

func TestNewClient_Defaults(t *testing.T) {
	t.Parallel()

	c := NewClient(Config{InsecureSkipVerify: true})

	assert.Equal(t, 0, c.maxRetries)
	assert.Equal(t, 200*time.Millisecond, c.initialBackoff)
	assert.Equal(t, 5*time.Second, c.maxBackoff)

	transport, ok := c.httpClient.Transport.(*http.Transport)
	require.True(t, ok, "expected *http.Transport, got %T", c.httpClient.Transport)
	require.NotNil(t, transport.TLSClientConfig)
	assert.True(t, transport.TLSClientConfig.InsecureSkipVerify)
	assert.Equal(t, 30*time.Second, transport.ResponseHeaderTimeout)
	// Bodies are streamed, so the client itself carries no overall timeout.
	assert.Zero(t, c.httpClient.Timeout)
}

func TestDo_SuccessNoRetry(t *testing.T) {
	t.Parallel()

	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(Config{MaxRetries: 3})
	c.sleep = noSleep(nil)

	resp, err := c.Get(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
}

func TestDo_RetryOn5xxThenSuccess(t *testing.T) {
	t.Parallel()

	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(Config{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	})
	var sleeps []time.Duration
	c.sleep = noSleep(&sleeps)

	resp, err := c.Get(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 3, atomic.LoadInt32(&hits))
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, sleeps)
}

func TestDo_StopsAfterMaxRetries(t *testing.T) {
	t.Parallel()

	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(Config{MaxRetries: 2})
	c.sleep = noSleep(nil)

	resp, err := c.Get(context.Background(), srv.URL, nil)
	if resp != nil {
		resp.Body.Close()
	}
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.EqualValues(t, 3, atomic.LoadInt32(&hits))
}

func TestDo_NonRetryableStatus(t *testing.T) {
	t.Parallel()

	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(Config{MaxRetries: 5})
	c.sleep = noSleep(nil)

	resp, err := c.Get(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
}

func TestDo_HeadersOverrideBase(t *testing.T) {
	t.Parallel()

	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.Header.Get("X-Source"))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseHeaders: http.Header{"X-Source": {"base"}}})
	resp, err := c.Get(context.Background(), srv.URL, http.Header{"X-Source": {"request"}})
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "request", got.Load())
}

func TestDo_RejectsEmptyArguments(t *testing.T) {
	t.Parallel()

	c := NewClient(Config{})
	_, err := c.Do(context.Background(), "", "http://example.invalid", nil)
	assert.Error(t, err)
	_, err = c.Do(context.Background(), http.MethodGet, "", nil)
	assert.Error(t, err)
}

func TestBackoffDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		initial time.Duration
		attempt int
		max     time.Duration
		want    time.Duration
	}{
		{100 * time.Millisecond, 0, time.Second, 100 * time.Millisecond},
		{100 * time.Millisecond, 1, time.Second, 200 * time.Millisecond},
		{100 * time.Millisecond, 2, time.Second, 400 * time.Millisecond},
		{600 * time.Millisecond, 1, time.Second, time.Second},
		{2 * time.Second, 0, time.Second, time.Second},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(fmt.Sprintf("%v/attempt=%d", tt.initial, tt.attempt), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, backoffDuration(tt.initial, tt.attempt, tt.max))
		})
	}
}

func TestIsRetryableStatus(t *testing.T) {
	t.Parallel()

	for _, code := range []int{429, 500, 503} {
		assert.True(t, isRetryableStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 400, 404} {
		assert.False(t, isRetryableStatus(code), "status %d", code)
	}
}

// A caller-supplied transport is used as-is; TLS settings from Config are not
// layered on top of it.
func TestCustomTransport(t *testing.T) {
	t.Parallel()

	custom := &http.Transport{TLSClientConfig: &tls.Config{}}
	c := NewClient(Config{Transport: custom, InsecureSkipVerify: true})

	assert.Same(t, custom, c.httpClient.Transport)
	assert.False(t, custom.TLSClientConfig.InsecureSkipVerify)
}

func TestSleepWithContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := sleepWithContext(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}
