package collyfetcher

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/crawlstore/internal/crawl"
)

// annotationRobotsFallback marks a record fetched under an assumed allow-all
// robots.txt.
const annotationRobotsFallback = "robots:indeterminate"

const allowAllRobots = "User-agent: *\nAllow: /"

var defaultRobotsBackoff = []time.Duration{
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

// robotsGuard wraps the fetch transport for one Fetch call. robots.txt
// requests that time out are retried on the backoff schedule; once the
// schedule is spent the guard answers with an allow-all file and remembers
// why.
type robotsGuard struct {
	next    http.RoundTripper
	backoff []time.Duration

	mu       sync.Mutex
	fallback string
}

func (f *Fetcher) newRobotsGuard(next http.RoundTripper) *robotsGuard {
	return &robotsGuard{next: next, backoff: f.robotsBackoff}
}

func (g *robotsGuard) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL == nil || !strings.EqualFold(req.URL.Path, "/robots.txt") {
		return g.next.RoundTrip(req)
	}
	for attempt := 0; ; attempt++ {
		resp, err := g.next.RoundTrip(req.Clone(req.Context()))
		if err == nil {
			return resp, nil
		}
		if !timedOut(err) {
			return nil, fmt.Errorf("robots.txt %s: %w", req.URL.Host, err)
		}
		if attempt == len(g.backoff) {
			g.fallBack(fmt.Sprintf("timeout after %d attempts", attempt+1))
			return allowAllResponse(req), nil
		}
		timer := time.NewTimer(g.backoff[attempt])
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, fmt.Errorf("robots.txt %s: %w", req.URL.Host, req.Context().Err())
		case <-timer.C:
		}
	}
}

func (g *robotsGuard) fallBack(reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fallback == "" {
		g.fallback = reason
	}
}

// annotate notes the fallback on rec, if one happened.
func (g *robotsGuard) annotate(rec *crawl.Record) {
	if g == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fallback != "" {
		rec.Annotate(annotationRobotsFallback + " " + g.fallback)
	}
}

func allowAllResponse(req *http.Request) *http.Response {
	return &http.Response{
		StatusCode:    http.StatusOK,
		Status:        "200 OK",
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"Content-Type": {"text/plain"}},
		Body:          io.NopCloser(strings.NewReader(allowAllRobots)),
		ContentLength: int64(len(allowAllRobots)),
		Request:       req,
	}
}

func timedOut(err error) bool {
	// Covers dial and TLS handshake timeouts as well as context.DeadlineExceeded.
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
