package api

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawlstore/internal/crawl"
	"github.com/JakeFAU/crawlstore/internal/metrics"
	"github.com/JakeFAU/crawlstore/internal/pool"
	"github.com/JakeFAU/crawlstore/internal/processor"
	"github.com/JakeFAU/crawlstore/internal/urlkey"
)

// RecordProcessor is satisfied by *processor.Processor.
type RecordProcessor interface {
	Process(ctx context.Context, rec *crawl.Record) processor.Result
}

// PoolReporter exposes writer pool occupancy.
type PoolReporter interface {
	Stats() pool.Stats
}

// ReadyFunc reports whether downstream dependencies can serve traffic.
type ReadyFunc func(ctx context.Context) error

// Options tunes the server.
type Options struct {
	APIKey         string
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	Ready          ReadyFunc
}

// Server wires HTTP handlers to the record processor.
type Server struct {
	router chi.Router
	proc   RecordProcessor
	pool   PoolReporter
	opts   Options
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(proc RecordProcessor, pool PoolReporter, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	s := &Server{
		proc:   proc,
		pool:   pool,
		opts:   opts,
		logger: logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(opts.RequestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if opts.APIKey != "" {
			r.Use(apiKeyMiddleware(opts.APIKey))
		}
		r.Post("/records", s.submitRecord)
		r.Get("/keys", s.rowKey)
		r.Get("/pool", s.poolStats)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.opts.Ready != nil {
		if err := s.opts.Ready(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type recordResponse struct {
	URL           string   `json:"url"`
	Outcome       string   `json:"outcome"`
	Reason        string   `json:"reason,omitempty"`
	Disposition   string   `json:"disposition"`
	RowKey        string   `json:"row_key,omitempty"`
	ContentKey    string   `json:"content_key,omitempty"`
	ContentStored bool     `json:"content_stored"`
	Bytes         int64    `json:"bytes"`
	Annotations   []string `json:"annotations,omitempty"`
	Failures      []string `json:"failures,omitempty"`
	Error         string   `json:"error,omitempty"`
}

func (s *Server) submitRecord(w http.ResponseWriter, r *http.Request) {
	body := r.Body
	if s.opts.MaxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	}
	var rec crawl.Record
	if err := json.NewDecoder(body).Decode(&rec); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "record too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(rec.URL) == "" {
		writeError(w, http.StatusBadRequest, "url required")
		return
	}

	res := s.proc.Process(r.Context(), &rec)
	resp := recordResponse{
		URL:           rec.URL,
		Outcome:       string(res.Outcome),
		Reason:        res.Reason,
		Disposition:   res.Disposition.String(),
		RowKey:        string(res.Write.RowKey),
		ContentKey:    res.Write.ContentKey,
		ContentStored: res.Write.ContentStored,
		Bytes:         res.Write.Bytes,
		Annotations:   rec.Annotations(),
	}
	for _, err := range rec.NonFatalFailures() {
		resp.Failures = append(resp.Failures, err.Error())
	}

	status := http.StatusOK
	switch res.Outcome {
	case processor.OutcomeWritten:
		status = http.StatusCreated
	case processor.OutcomeFailed:
		status = http.StatusInternalServerError
		if errors.Is(res.Err, pool.ErrExhausted) || errors.Is(res.Err, pool.ErrClosed) {
			status = http.StatusServiceUnavailable
		}
		if res.Err != nil {
			resp.Error = res.Err.Error()
		}
	}
	writeJSON(w, status, resp)
}

func (s *Server) rowKey(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "url query parameter required")
		return
	}
	key := urlkey.Encode(raw)
	writeJSON(w, http.StatusOK, map[string]string{
		"url":         raw,
		"row_key":     string(key),
		"row_key_hex": hex.EncodeToString(key),
	})
}

func (s *Server) poolStats(w http.ResponseWriter, _ *http.Request) {
	if s.pool == nil {
		writeError(w, http.StatusNotFound, "pool not configured")
		return
	}
	writeJSON(w, http.StatusOK, s.pool.Stats())
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("request_id", requestIDFrom(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
