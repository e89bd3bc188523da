package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/crawlstore/internal/crawl"
)

func TestFetcherBuildCollector(t *testing.T) {
	t.Parallel()

	f := New(Config{UserAgent: "coverage-agent", RespectRobots: false, Timeout: time.Second})
	collector, robots := f.buildCollector(Request{URL: "https://example.com"}, &crawl.Record{}, new(error))
	if collector.UserAgent != "coverage-agent" {
		t.Fatalf("expected user agent override, got %q", collector.UserAgent)
	}
	if !collector.IgnoreRobotsTxt {
		t.Fatal("expected robots txt to be ignored")
	}
	if robots != nil {
		t.Fatal("expected no robots guard when robots are ignored")
	}
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	req := Request{
		URL:     "https://example.com",
		Headers: http.Header{"X-Trace": {"yes"}},
	}
	rec := &crawl.Record{}
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, req, rec, &fetchErr)
	if hooks.onRequest == nil || hooks.onResponse == nil || hooks.onError == nil {
		t.Fatal("expected hooks to be registered")
	}

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	if collyReq.Headers.Get("X-Trace") != "yes" {
		t.Fatalf("expected header propagation, got %+v", collyReq.Headers)
	}

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusNotFound,
		Body:       []byte("body"),
		Headers:    &http.Header{"Content-Type": {"text/plain"}},
		Request: &colly.Request{
			Method:  http.MethodGet,
			URL:     mustParseURL(t, "https://example.com/x"),
			Headers: &http.Header{},
		},
	})
	if rec.FetchStatus != http.StatusNotFound || string(rec.Content) != "body" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.ContentType != "text/plain" {
		t.Fatalf("expected content type copied, got %q", rec.ContentType)
	}
	if !strings.HasPrefix(string(rec.ResponseHeader), "HTTP/1.1 404 Not Found\r\n") {
		t.Fatalf("unexpected response header %q", rec.ResponseHeader)
	}
	if !strings.HasPrefix(string(rec.Request), "GET /x HTTP/1.1\r\nHost: example.com\r\n") {
		t.Fatalf("unexpected request %q", rec.Request)
	}

	hooks.onError(&colly.Response{StatusCode: http.StatusNotFound}, errors.New("not found"))
	if fetchErr != nil {
		t.Fatalf("expected http error status to be ignored, got %v", fetchErr)
	}
	hooks.onError(nil, errors.New("boom"))
	if fetchErr == nil || fetchErr.Error() != "boom" {
		t.Fatalf("expected fetchErr set, got %v", fetchErr)
	}
}

func TestFetchBuildsRecord(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>hello</html>"))
	}))
	t.Cleanup(srv.Close)

	f := New(Config{UserAgent: "crawlstore-test", SourceTag: "seed-1"})
	rec, err := f.Fetch(context.Background(), Request{URL: srv.URL + "/page", Via: "http://a.com/"})
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if rec.FetchStatus != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.FetchStatus)
	}
	if string(rec.Content) != "<html>hello</html>" {
		t.Fatalf("unexpected body %q", rec.Content)
	}
	if rec.ContentType != "text/html" || rec.SourceTag != "seed-1" || rec.Via != "http://a.com/" {
		t.Fatalf("unexpected record fields: %+v", rec)
	}
	if rec.IP != "127.0.0.1" {
		t.Fatalf("expected loopback ip, got %q", rec.IP)
	}
}

func TestFetchRecordsNon2xxStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	t.Cleanup(srv.Close)

	rec, err := New(Config{}).Fetch(context.Background(), Request{URL: srv.URL})
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if rec.FetchStatus != http.StatusGone {
		t.Fatalf("expected 410, got %d", rec.FetchStatus)
	}
}

func TestLookupIPRecordsResolveFailure(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	f.resolve = func(context.Context, string) ([]string, error) {
		return nil, errors.New("no such host")
	}
	rec := &crawl.Record{URL: "http://unknown.invalid/"}
	if ip := f.lookupIP(context.Background(), rec); ip != "" {
		t.Fatalf("expected blank ip, got %q", ip)
	}
	if len(rec.NonFatalFailures()) != 1 {
		t.Fatalf("expected one failure, got %v", rec.NonFatalFailures())
	}
}

func TestFetchCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Config{}).Fetch(ctx, Request{URL: "http://127.0.0.1:1/"})
	if err == nil {
		t.Fatal("expected error for canceled context")
	}
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse url %q: %v", raw, err)
	}
	return u
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
