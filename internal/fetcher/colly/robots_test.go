package collyfetcher

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/crawlstore/internal/crawl"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (fn roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return fn(req) }

func newTestGuard(backoff []time.Duration, next roundTripFunc) *robotsGuard {
	f := New(Config{RespectRobots: true})
	f.robotsBackoff = backoff
	return f.newRobotsGuard(next)
}

func TestRobotsGuardFallsBackAfterTimeouts(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	guard := newTestGuard([]time.Duration{0, 0, 0}, func(*http.Request) (*http.Response, error) {
		calls.Add(1)
		return nil, context.DeadlineExceeded
	})

	req := httptest.NewRequest(http.MethodGet, "https://example.com/robots.txt", nil)
	resp, err := guard.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, allowAllRobots, string(body))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 4, calls.Load())

	rec := &crawl.Record{}
	guard.annotate(rec)
	require.Equal(t, []string{"robots:indeterminate timeout after 4 attempts"}, rec.Annotations())
}

func TestRobotsGuardStopsRetryingOnSuccess(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	guard := newTestGuard([]time.Duration{0, 0, 0}, func(*http.Request) (*http.Response, error) {
		if calls.Add(1) == 1 {
			return nil, context.DeadlineExceeded
		}
		return httptest.NewRecorder().Result(), nil
	})

	resp, err := guard.RoundTrip(httptest.NewRequest(http.MethodGet, "https://example.com/robots.txt", nil))
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.EqualValues(t, 2, calls.Load())

	rec := &crawl.Record{}
	guard.annotate(rec)
	require.Empty(t, rec.Annotations())
}

func TestRobotsGuardPassesOtherFailuresThrough(t *testing.T) {
	t.Parallel()

	refused := errors.New("connection refused")
	var calls atomic.Int32
	guard := newTestGuard([]time.Duration{0}, func(*http.Request) (*http.Response, error) {
		calls.Add(1)
		return nil, refused
	})

	_, err := guard.RoundTrip(httptest.NewRequest(http.MethodGet, "https://example.com/robots.txt", nil))
	require.ErrorIs(t, err, refused)
	require.EqualValues(t, 1, calls.Load())

	_, err = guard.RoundTrip(httptest.NewRequest(http.MethodGet, "https://example.com/page", nil))
	require.ErrorIs(t, err, refused)
	require.EqualValues(t, 2, calls.Load())
}

func TestRobotsGuardHonorsCanceledBackoff(t *testing.T) {
	t.Parallel()

	guard := newTestGuard([]time.Duration{time.Hour}, func(*http.Request) (*http.Response, error) {
		return nil, context.DeadlineExceeded
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "https://example.com/robots.txt", nil).WithContext(ctx)
	_, err := guard.RoundTrip(req)
	require.ErrorIs(t, err, context.Canceled)
}

func TestFetchAnnotatesRobotsFallback(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, "<html>ok</html>")
	}))
	t.Cleanup(server.Close)

	f := New(Config{RespectRobots: true, Timeout: 5 * time.Second})
	f.robotsBackoff = []time.Duration{0}
	f.resolve = func(context.Context, string) ([]string, error) { return []string{"127.0.0.1"}, nil }
	f.transport = roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == "/robots.txt" {
			return nil, context.DeadlineExceeded
		}
		return http.DefaultTransport.RoundTrip(req)
	})

	rec, err := f.Fetch(context.Background(), Request{URL: server.URL + "/page"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, rec.FetchStatus)
	require.Equal(t, "<html>ok</html>", string(rec.Content))
	require.Contains(t, rec.Annotations(), "robots:indeterminate timeout after 2 attempts")
}
