// Package transfer performs the single HTTP exchange between icky and a
// sticky server: a push of local input or a pull of the current value.
package transfer

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/quic-go/quic-go/http3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ickyclip/icky/internal/config"
	"github.com/ickyclip/icky/internal/observability"
	"github.com/ickyclip/icky/internal/tlsutil"
	"github.com/ickyclip/icky/internal/validation"
	"github.com/ickyclip/icky/internal/version"
)

const (
	OpPush = "push"
	OpPull = "pull"

	// ContentType is sent with every push.
	ContentType = "text/plain"
	// RequestIDHeader carries the per-transfer request id.
	RequestIDHeader = "X-Request-ID"
)

var (
	// ErrClientInit is returned when the client cannot be built.
	ErrClientInit = errors.New("client initialization failed")
	// ErrTransport is returned when the exchange fails at the transport level.
	ErrTransport = errors.New("transfer failed")
)

var tracer = otel.Tracer("github.com/ickyclip/icky/internal/transfer")

// Options configures a Client.
type Options struct {
	// Server is the sticky endpoint URL.
	Server string
	// Method is the push method, POST or PUT. Empty means POST.
	Method string
	// Timeout bounds each exchange. Zero means config.DefaultTimeout.
	Timeout time.Duration
	// TLS is presented to the server. Nil uses Go's defaults.
	TLS *tls.Config
	// HTTP3 sends requests over QUIC.
	HTTP3 bool
	// Verbose traces each request through TraceLogger.
	Verbose bool

	Logger      *observability.Logger
	TraceLogger *observability.Logger
	Metrics     *observability.Metrics
}

// Result describes one completed exchange.
type Result struct {
	Op            string
	Method        string
	URL           string
	RequestID     string
	StatusCode    int
	Status        string
	BytesSent     int64
	BytesReceived int64
	Duration      time.Duration
}

// Client performs pushes and pulls against one endpoint.
type Client struct {
	opts     Options
	endpoint *url.URL
	http     *http.Client
	closer   io.Closer
}

// New builds a client. Errors wrap ErrClientInit.
func New(opts Options) (*Client, error) {
	endpoint, err := validation.ValidateEndpoint(opts.Server)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrClientInit, err)
	}

	if opts.Method == "" {
		opts.Method = http.MethodPost
	}
	method, err := validation.ValidateMethod(opts.Method)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrClientInit, err)
	}
	opts.Method = method

	if opts.Timeout <= 0 {
		opts.Timeout = config.DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = observability.NewNopLogger()
	}
	if opts.TraceLogger == nil {
		opts.TraceLogger = opts.Logger
	}

	c := &Client{
		opts:     opts,
		endpoint: endpoint,
	}

	var rt http.RoundTripper
	if opts.HTTP3 {
		tr := &http3.Transport{TLSClientConfig: opts.TLS}
		rt, c.closer = tr, tr
	} else {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.TLSClientConfig = opts.TLS
		tr.ForceAttemptHTTP2 = true
		rt = tr
	}

	c.http = &http.Client{
		Transport: rt,
		Timeout:   opts.Timeout,
	}
	return c, nil
}

// NewFromConfig loads the TLS material named by cfg and builds a client.
func NewFromConfig(cfg *config.Config, logger, traceLogger *observability.Logger, metrics *observability.Metrics) (*Client, error) {
	tlsConfig, err := tlsutil.LoadClientConfig(tlsutil.ClientOptions{
		CertFile: cfg.ClientCert,
		KeyFile:  cfg.ClientKey,
		CertType: string(cfg.CertType),
		Password: cfg.CertPassword,
		CAFile:   cfg.CACert,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrClientInit, err)
	}

	return New(Options{
		Server:      cfg.Server,
		Method:      cfg.Method,
		Timeout:     cfg.Timeout,
		TLS:         tlsConfig,
		HTTP3:       cfg.HTTP3,
		Verbose:     cfg.Verbose,
		Logger:      logger,
		TraceLogger: traceLogger,
		Metrics:     metrics,
	})
}

// Endpoint returns the URL requests are sent to.
func (c *Client) Endpoint() string {
	return c.endpoint.String()
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

// Push sends payload as the new remote value. The body is sent with an exact
// Content-Length. A non-2xx status is reported in the Result, not as an error.
func (c *Client) Push(ctx context.Context, payload []byte) (*Result, error) {
	ctx, span := tracer.Start(ctx, "icky.push", trace.WithAttributes(
		attribute.String("http.method", c.opts.Method),
		attribute.Int("icky.payload_size", len(payload)),
	))
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, c.opts.Method, c.endpoint.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, c.fail(span, OpPush, fmt.Errorf("%w: %w", ErrClientInit, err), 0)
	}
	req.ContentLength = int64(len(payload))
	req.Header.Set("Content-Type", ContentType)

	if c.opts.Metrics != nil {
		c.opts.Metrics.RecordBytesSent(len(payload))
	}

	res, err := c.do(req, OpPush, int64(len(payload)), io.Discard)
	if err != nil {
		return nil, c.fail(span, OpPush, err, res.Duration)
	}
	span.SetAttributes(attribute.Int("http.status_code", res.StatusCode))
	return res, nil
}

// Pull fetches the remote value and copies the response body to w.
func (c *Client) Pull(ctx context.Context, w io.Writer) (*Result, error) {
	ctx, span := tracer.Start(ctx, "icky.pull", trace.WithAttributes(
		attribute.String("http.method", http.MethodGet),
	))
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint.String(), nil)
	if err != nil {
		return nil, c.fail(span, OpPull, fmt.Errorf("%w: %w", ErrClientInit, err), 0)
	}

	res, err := c.do(req, OpPull, 0, w)
	if err != nil {
		return nil, c.fail(span, OpPull, err, res.Duration)
	}
	if c.opts.Metrics != nil {
		c.opts.Metrics.RecordBytesReceived(res.BytesReceived)
	}
	span.SetAttributes(
		attribute.Int("http.status_code", res.StatusCode),
		attribute.Int64("icky.bytes_received", res.BytesReceived),
	)
	return res, nil
}

// do runs req and copies the response body to body. The returned Result is
// never nil so callers can read Duration on failure.
func (c *Client) do(req *http.Request, op string, sent int64, body io.Writer) (*Result, error) {
	requestID := uuid.NewString()
	req.Header.Set(RequestIDHeader, requestID)
	req.Header.Set("User-Agent", version.UserAgent())

	logger := c.opts.Logger.WithRequest(requestID)
	logger.TransferStarted(op, req.Method, req.URL.String(), int(sent))

	if c.opts.Verbose {
		tl := c.opts.TraceLogger.WithRequest(requestID)
		req = req.WithContext(httptrace.WithClientTrace(req.Context(), newClientTrace(tl)))
		traceRequest(tl, req)
	}

	res := &Result{
		Op:        op,
		Method:    req.Method,
		URL:       req.URL.String(),
		RequestID: requestID,
		BytesSent: sent,
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		res.Duration = time.Since(start)
		return res, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	if c.opts.Verbose {
		traceResponse(c.opts.TraceLogger.WithRequest(requestID), resp)
	}

	n, err := io.Copy(body, resp.Body)
	res.Duration = time.Since(start)
	res.BytesReceived = n
	res.StatusCode = resp.StatusCode
	res.Status = resp.Status
	if err != nil {
		return res, fmt.Errorf("%w: reading response body: %w", ErrTransport, err)
	}

	logger.TransferCompleted(op, res.StatusCode, res.BytesSent, res.BytesReceived, res.Duration)
	if c.opts.Metrics != nil {
		c.opts.Metrics.RecordTransfer(op, true, res.Duration)
	}
	return res, nil
}

func (c *Client) fail(span trace.Span, op string, err error, duration time.Duration) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	c.opts.Logger.TransferFailed(op, err)
	if c.opts.Metrics != nil {
		c.opts.Metrics.RecordTransfer(op, false, duration)
	}
	return err
}
