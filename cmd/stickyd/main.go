// stickyd serves a single sticky value over mutual TLS for icky clients.
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/quic-go/quic-go/http3"
	"github.com/spf13/pflag"

	"github.com/ickyclip/icky/internal/config"
	"github.com/ickyclip/icky/internal/inbuf"
	"github.com/ickyclip/icky/internal/observability"
	"github.com/ickyclip/icky/internal/ratelimit"
	"github.com/ickyclip/icky/internal/sticky"
	"github.com/ickyclip/icky/internal/tlsutil"
	"github.com/ickyclip/icky/internal/version"
)

// ServerConfig holds stickyd configuration.
type ServerConfig struct {
	ListenAddr   string
	CertDir      string
	HTTP3        bool
	DebugAddr    string
	MaxSize      int
	RateLimit    float64
	RateBurst    int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func main() {
	cfg := ServerConfig{}
	pflag.StringVar(&cfg.ListenAddr, "listen", ":7010", "Listen address")
	pflag.StringVar(&cfg.CertDir, "certs", config.DefaultDir, "Directory holding server.crt, server.key and ca.crt")
	pflag.BoolVar(&cfg.HTTP3, "http3", false, "Also serve HTTP/3 on the same UDP port")
	pflag.StringVar(&cfg.DebugAddr, "debug-addr", "", "Plain HTTP address for /healthz, /metrics and pprof")
	pflag.IntVar(&cfg.MaxSize, "max-size", inbuf.Max, "Capacity ceiling for stored values in bytes")
	pflag.Float64Var(&cfg.RateLimit, "rate", 10, "Requests per second per client (0 disables limiting)")
	pflag.IntVar(&cfg.RateBurst, "burst", 20, "Request burst size per client")
	pflag.DurationVar(&cfg.ReadTimeout, "read-timeout", 30*time.Second, "Request read timeout")
	pflag.DurationVar(&cfg.WriteTimeout, "write-timeout", 30*time.Second, "Response write timeout")
	showVersion := pflag.Bool("version", false, "Print version and exit")
	pflag.Parse()

	if *showVersion {
		fmt.Printf("stickyd version %s\n", version.Version)
		return
	}

	logger := observability.NewLogger("stickyd", version.Version, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, "stickyd", version.Version)
	if err != nil {
		logger.Error(err, "tracing disabled")
	} else {
		defer shutdownTracing(context.Background())
	}

	if err := serve(ctx, cfg, logger); err != nil {
		logger.Error(err, "stickyd stopped")
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg ServerConfig, logger *observability.Logger) error {
	dir, err := config.ExpandPath(cfg.CertDir)
	if err != nil {
		return err
	}
	tlsConfig, err := tlsutil.LoadServerConfig(
		filepath.Join(dir, tlsutil.ServerCertFile),
		filepath.Join(dir, tlsutil.ServerKeyFile),
		filepath.Join(dir, tlsutil.CAFile),
	)
	if err != nil {
		return fmt.Errorf("failed to load server TLS material: %w", err)
	}

	store := sticky.New(sticky.Options{
		Limits:  inbuf.Limits{Max: cfg.MaxSize},
		Logger:  logger,
		Version: version.Version,
	})
	handler := newHandler(cfg, store)

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler,
		TLSConfig:    tlsConfig,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// HTTP/3 gets its own copy before Serve mutates NextProtos for HTTP/2.
	var h3TLS *tls.Config
	if cfg.HTTP3 {
		h3TLS = http3.ConfigureTLSConfig(tlsConfig.Clone())
	}

	errCh := make(chan error, 3)

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.ListenAddr, err)
	}
	logger.Info(fmt.Sprintf("stickyd listening on %s", ln.Addr()))
	go func() { errCh <- srv.Serve(tls.NewListener(ln, tlsConfig)) }()

	var h3 *http3.Server
	if cfg.HTTP3 {
		h3 = &http3.Server{
			Addr:      cfg.ListenAddr,
			Handler:   handler,
			TLSConfig: h3TLS,
		}
		logger.Info(fmt.Sprintf("stickyd serving HTTP/3 on udp %s", cfg.ListenAddr))
		go func() { errCh <- h3.ListenAndServe() }()
	}

	var debug *http.Server
	if cfg.DebugAddr != "" {
		debug = &http.Server{Addr: cfg.DebugAddr, Handler: debugMux(store)}
		logger.Warn("debug listener serves health, metrics and pprof without client certificates")
		logger.Info(fmt.Sprintf("debug server listening on %s", cfg.DebugAddr))
		go func() { errCh <- debug.ListenAndServe() }()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if h3 != nil {
		h3.Close()
	}
	if debug != nil {
		debug.Shutdown(shutdownCtx)
	}
	return srv.Shutdown(shutdownCtx)
}

func newHandler(cfg ServerConfig, store *sticky.Server) http.Handler {
	var limiter *ratelimit.Limiter
	if cfg.RateLimit > 0 {
		limiter = ratelimit.New(cfg.RateLimit, cfg.RateBurst)
	}
	return ratelimit.Middleware(limiter, store.Handler())
}

// debugMux exposes health, metrics and pprof without client certificates.
func debugMux(store *sticky.Server) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/healthz", store.Handler())
	mux.Handle("/metrics", store.Handler())
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}
