// icky pushes standard input to a sticky clipboard server, or prints the
// server's current value.
//
// Usage:
//
//	icky              # print the remote value
//	echo hi | icky -i # replace the remote value with "hi"
//
// Requests use mutual TLS with the client certificate and CA bundle named in
// ~/.icky/config.yaml.
package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/ickyclip/icky/internal/config"
	"github.com/ickyclip/icky/internal/inbuf"
	"github.com/ickyclip/icky/internal/observability"
	"github.com/ickyclip/icky/internal/tlsutil"
	"github.com/ickyclip/icky/internal/transfer"
	"github.com/ickyclip/icky/internal/validation"
	"github.com/ickyclip/icky/internal/version"
)

const (
	exitOK       = 0
	exitFailure  = 1
	exitUsage    = 2
	checkTimeout = 10 * time.Second
)

type options struct {
	input      bool
	configFile string
	verbose    bool
	help       bool
	check      bool
	strict     bool
	version    bool
}

// streams are the process's standard files, swapped out in tests.
type streams struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], streams{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr})
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, std streams) int {
	var opts options

	fs := pflag.NewFlagSet("icky", pflag.ContinueOnError)
	fs.SetOutput(std.stderr)
	fs.BoolVarP(&opts.input, "input", "i", false, "Read input and push to clipboard")
	fs.StringVarP(&opts.configFile, "config", "c", config.DefaultConfigFile, "Config file to use")
	fs.BoolVarP(&opts.verbose, "verbose", "v", false, "Be verbose")
	fs.BoolVarP(&opts.help, "help", "h", false, "Display this help")
	fs.BoolVar(&opts.check, "check", false, "Check configuration, certificates and server reachability")
	fs.BoolVar(&opts.strict, "strict", false, "Exit with status 1 when the transfer fails")
	fs.BoolVar(&opts.version, "version", false, "Print version and exit")
	fs.Usage = func() { printUsage(std.stderr, fs) }

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(std.stderr, "icky: %v\n", err)
		fs.Usage()
		return exitUsage
	}
	if opts.help {
		fs.Usage()
		return exitOK
	}
	if opts.version {
		fmt.Fprintf(std.stdout, "icky version %s\n", version.Version)
		return exitOK
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(std.stderr, "icky: unexpected argument %q\n", fs.Arg(0))
		fs.Usage()
		return exitUsage
	}

	logger := observability.NewConsoleLogger(std.stderr, opts.verbose)
	cfg := config.Resolve(opts.configFile, logger)
	if opts.verbose {
		cfg.Verbose = true
	}
	if cfg.Verbose && !opts.verbose {
		logger = observability.NewConsoleLogger(std.stderr, true)
	}
	traceLogger := observability.NewConsoleLogger(std.stdout, cfg.Verbose)

	if shutdown, err := observability.InitTracing(ctx, "icky", version.Version); err == nil {
		defer shutdown(context.Background())
	} else {
		logger.Error(err, "tracing disabled")
	}

	if opts.check {
		return runCheck(ctx, cfg, std.stdout)
	}

	metrics := observability.NewMetrics()
	defer writeMetrics(cfg, metrics, logger)

	var err error
	if opts.input {
		err = push(ctx, cfg, std.stdin, std.stderr, logger, traceLogger, metrics)
	} else {
		err = pull(ctx, cfg, std.stdout, logger, traceLogger, metrics)
	}
	if err != nil {
		fmt.Fprintf(std.stderr, "icky: %v\n", err)
		if opts.strict {
			return exitFailure
		}
	}
	return exitOK
}

func push(ctx context.Context, cfg *config.Config, stdin io.Reader, stderr io.Writer, logger, traceLogger *observability.Logger, metrics *observability.Metrics) error {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprintln(stderr, "icky: reading from terminal, finish with Ctrl-D")
	}

	payload, err := inbuf.ReadAll(stdin, inbuf.DefaultLimits())
	if err != nil {
		return fmt.Errorf("unable to read input: %w", err)
	}
	if logger.Enabled() {
		logger.PayloadRead(len(payload), inbuf.Digest(payload))
	}

	client, err := transfer.NewFromConfig(cfg, logger, traceLogger, metrics)
	if err != nil {
		return err
	}
	defer client.Close()

	_, err = client.Push(ctx, payload)
	return err
}

func pull(ctx context.Context, cfg *config.Config, stdout io.Writer, logger, traceLogger *observability.Logger, metrics *observability.Metrics) error {
	client, err := transfer.NewFromConfig(cfg, logger, traceLogger, metrics)
	if err != nil {
		return err
	}
	defer client.Close()

	_, err = client.Pull(ctx, stdout)
	return err
}

func writeMetrics(cfg *config.Config, metrics *observability.Metrics, logger *observability.Logger) {
	if cfg.MetricsFile == "" {
		return
	}
	if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
		logger.Error(err, "failed to write metrics file")
	}
}

// runCheck prints a JSON diagnostics report and fails when anything is unhealthy.
func runCheck(ctx context.Context, cfg *config.Config, stdout io.Writer) int {
	hc := observability.NewHealthChecker(version.Version)
	hc.RegisterCheck("server", observability.EndpointCheck(cfg.Server))
	hc.RegisterCheck("client_cert", observability.FileCheck(cfg.ClientCert))
	hc.RegisterCheck("ca_cert", observability.FileCheck(cfg.CACert))

	clientOpts := tlsutil.ClientOptions{
		CertFile: cfg.ClientCert,
		KeyFile:  cfg.ClientKey,
		CertType: string(cfg.CertType),
		Password: cfg.CertPassword,
		CAFile:   cfg.CACert,
	}
	hc.RegisterCheck("tls_material", observability.LoadCheck("client certificate and CA bundle loaded", func() error {
		_, err := tlsutil.LoadClientConfig(clientOpts)
		return err
	}))

	if tlsConfig, err := tlsutil.LoadClientConfig(clientOpts); err == nil {
		if addr, serverName, ok := dialTarget(cfg.Server); ok {
			tlsConfig.ServerName = serverName
			hc.RegisterCheck("handshake", observability.HandshakeCheck(addr, tlsConfig, checkTimeout))
		}
	}

	report := hc.Check(ctx)
	if err := observability.WriteReport(stdout, report); err != nil {
		return exitFailure
	}
	if report.Status == observability.HealthStatusUnhealthy {
		return exitFailure
	}
	return exitOK
}

// dialTarget returns the host:port and TLS server name for a server URL.
func dialTarget(server string) (addr, serverName string, ok bool) {
	u, err := validation.ValidateEndpoint(server)
	if err != nil {
		return "", "", false
	}
	host, port := u.Hostname(), u.Port()
	if port == "" {
		port = "443"
		if u.Scheme == "http" {
			port = "80"
		}
	}
	return net.JoinHostPort(host, port), host, true
}
