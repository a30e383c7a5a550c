// Package sticky implements an in-memory sticky server: one shared value that
// POST and PUT replace and GET returns. It backs the development daemon and
// the transfer tests.
package sticky

import (
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ickyclip/icky/internal/inbuf"
	"github.com/ickyclip/icky/internal/observability"
)

// Options configures a Server.
type Options struct {
	// Limits bounds uploaded values. Zero fields take inbuf defaults.
	Limits  inbuf.Limits
	Logger  *observability.Logger
	Metrics *observability.Metrics
	Version string
}

// Server holds the current value.
type Server struct {
	limits  inbuf.Limits
	logger  *observability.Logger
	metrics *observability.Metrics
	health  *observability.HealthChecker

	mu      sync.RWMutex
	value   []byte
	etag    string
	updated time.Time
}

// New creates an empty server.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = observability.NewNopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NewMetrics()
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	s := &Server{
		limits:  opts.Limits,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		health:  observability.NewHealthChecker(opts.Version),
		etag:    etagFor(nil),
	}
	s.health.RegisterCheck("store", observability.StoreCheck(s.Size))
	return s
}

// Handler routes /healthz and /metrics and serves the value everywhere else.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/healthz", s.health.Handler())
	mux.Handle("/metrics", s.metrics.Handler())
	mux.Handle("/", s)
	return mux
}

// Value returns a copy of the current value.
func (s *Server) Value() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]byte(nil), s.value...)
}

// Size returns the length of the current value.
func (s *Server) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.value)
}

// ServeHTTP implements the sticky protocol.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := s.logger.WithEndpoint(r.URL.Path)
	if id := r.Header.Get("X-Request-ID"); id != "" {
		logger = logger.WithRequest(id)
	}

	switch r.Method {
	case http.MethodGet, http.MethodHead:
		s.handleGet(w, r, logger)
	case http.MethodPost, http.MethodPut:
		s.handleStore(w, r, logger)
	default:
		w.Header().Set("Allow", "GET, HEAD, POST, PUT")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request, logger *observability.Logger) {
	start := time.Now()

	s.mu.RLock()
	value, etag, updated := s.value, s.etag, s.updated
	s.mu.RUnlock()

	h := w.Header()
	h.Set("Content-Type", "text/plain")
	h.Set("ETag", etag)
	if !updated.IsZero() {
		h.Set("Last-Modified", updated.UTC().Format(http.TimeFormat))
	}

	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	h.Set("Content-Length", strconv.Itoa(len(value)))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(value); err != nil {
		logger.Error(err, "failed to write value")
		s.metrics.RecordTransfer("pull", false, time.Since(start))
		return
	}

	s.metrics.RecordBytesReceived(int64(len(value)))
	s.metrics.RecordTransfer("pull", true, time.Since(start))
	logger.TransferCompleted("pull", http.StatusOK, int64(len(value)), 0, time.Since(start))
}

func (s *Server) handleStore(w http.ResponseWriter, r *http.Request, logger *observability.Logger) {
	start := time.Now()

	data, err := inbuf.ReadAll(r.Body, s.limits)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, inbuf.ErrCapacityExceeded) {
			status = http.StatusRequestEntityTooLarge
		}
		logger.Error(err, "failed to read pushed value")
		s.metrics.RecordTransfer("push", false, time.Since(start))
		http.Error(w, err.Error(), status)
		return
	}

	etag := etagFor(data)
	s.mu.Lock()
	s.value = data
	s.etag = etag
	s.updated = time.Now()
	s.mu.Unlock()

	s.metrics.RecordBytesSent(len(data))
	s.metrics.RecordTransfer("push", true, time.Since(start))
	logger.TransferCompleted("push", http.StatusNoContent, 0, int64(len(data)), time.Since(start))

	w.Header().Set("ETag", etag)
	w.WriteHeader(http.StatusNoContent)
}

func etagFor(value []byte) string {
	return `"` + inbuf.Digest(value) + `"`
}
