// Package collyfetcher fetches single URLs with gocolly and turns the exchange
// into a crawl.Record ready for persistence.
package collyfetcher

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/crawlstore/internal/crawl"
)

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	// MaxBodySize caps the bytes read from a response body. Zero keeps colly's default.
	MaxBodySize int
	// SourceTag is stamped on every fetched record.
	SourceTag string
}

// Request describes one fetch.
type Request struct {
	URL          string
	Headers      http.Header
	Via          string
	PathFromSeed string
}

type resolveFunc func(ctx context.Context, host string) ([]string, error)

// Fetcher implements single-page fetches using the Colly collector.
type Fetcher struct {
	cfg           Config
	transport     http.RoundTripper
	baseCollector *colly.Collector
	resolve       resolveFunc
	robotsBackoff []time.Duration
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.ParseHTTPErrorResponse = true
	if cfg.MaxBodySize > 0 {
		c.MaxBodySize = cfg.MaxBodySize
	}

	transport := newHTTPTransport()
	c.WithTransport(transport)

	return &Fetcher{
		cfg:           cfg,
		transport:     transport,
		baseCollector: c,
		resolve:       net.DefaultResolver.LookupHost,
		robotsBackoff: defaultRobotsBackoff,
	}
}

// Fetch executes a single HTTP GET and returns the resulting record. Non-2xx
// responses still produce a record carrying their status.
func (f *Fetcher) Fetch(ctx context.Context, request Request) (*crawl.Record, error) {
	rec := &crawl.Record{
		URL:          request.URL,
		Via:          request.Via,
		PathFromSeed: request.PathFromSeed,
		SourceTag:    f.cfg.SourceTag,
	}
	var fetchErr error
	collector, robots := f.buildCollector(request, rec, &fetchErr)

	if err := f.runCollector(ctx, collector, request.URL, &fetchErr); err != nil {
		return nil, err
	}
	robots.annotate(rec)
	rec.IP = f.lookupIP(ctx, rec)
	return rec, nil
}

func (f *Fetcher) buildCollector(
	request Request,
	rec *crawl.Record,
	fetchErr *error,
) (*colly.Collector, *robotsGuard) {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)

	transport := f.transport
	if transport == nil {
		transport = newHTTPTransport()
	}
	var robots *robotsGuard
	if f.cfg.RespectRobots {
		robots = f.newRobotsGuard(transport)
		collector.WithTransport(robots)
	} else {
		collector.WithTransport(transport)
	}

	f.configureCollectorHooks(collector, request, rec, fetchErr)
	return collector, robots
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	request Request,
	rec *crawl.Record,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		copyHeaders(request.Headers, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		rec.URL = r.Request.URL.String()
		rec.FetchStatus = r.StatusCode
		rec.Content = append([]byte(nil), r.Body...)
		rec.ContentSize = int64(len(r.Body))
		rec.Request = encodeRequest(r.Request)
		if r.Headers != nil {
			rec.ContentType = r.Headers.Get("Content-Type")
			rec.ResponseHeader = encodeResponseHeader(r.StatusCode, *r.Headers)
		}
		rec.RecordedSize = int64(len(rec.Request) + len(rec.ResponseHeader) + len(rec.Content))
	})

	hooks.OnError(func(r *colly.Response, err error) {
		// With ParseHTTPErrorResponse set, OnError only fires for transport
		// failures; those are fetch failures with no status.
		if r != nil && r.StatusCode > 0 {
			return
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

// lookupIP resolves the host of the final URL. Resolution failures leave the
// IP blank and are noted on the record.
func (f *Fetcher) lookupIP(ctx context.Context, rec *crawl.Record) string {
	u, err := url.Parse(rec.URL)
	if err != nil || u.Hostname() == "" || f.resolve == nil {
		return ""
	}
	addrs, err := f.resolve(ctx, u.Hostname())
	if err != nil {
		rec.AddFailure(fmt.Errorf("resolve %s: %w", u.Hostname(), err))
		return ""
	}
	if len(addrs) == 0 {
		return ""
	}
	return addrs[0]
}

func copyHeaders(headers http.Header, r *colly.Request) {
	for key, values := range headers {
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func encodeRequest(r *colly.Request) []byte {
	if r == nil || r.URL == nil {
		return nil
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s %s HTTP/1.1\r\nHost: %s\r\n", r.Method, r.URL.RequestURI(), r.URL.Host)
	if r.Headers != nil {
		_ = r.Headers.Write(&buf)
	}
	buf.WriteString("\r\n")
	return buf.Bytes()
}

func encodeResponseHeader(status int, headers http.Header) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "HTTP/1.1 %d %s\r\n", status, http.StatusText(status))
	_ = headers.Write(&buf)
	buf.WriteString("\r\n")
	return buf.Bytes()
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
