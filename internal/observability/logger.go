package observability

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog for structured logging.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates a new structured JSON logger.
func NewLogger(service, version string, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}

	zerolog.TimeFieldFormat = time.RFC3339

	logger := zerolog.New(output).With().
		Timestamp().
		Str("service", service).
		Str("version", version).
		Str("host", getHostname()).
		Logger()

	return &Logger{
		logger: logger,
	}
}

// NewConsoleLogger creates a human-readable logger for command line tools.
// Debug events are only emitted when verbose is set.
func NewConsoleLogger(output io.Writer, verbose bool) *Logger {
	if output == nil {
		output = os.Stderr
	}

	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(zerolog.ConsoleWriter{
		Out:        output,
		TimeFormat: time.TimeOnly,
		NoColor:    true,
	}).Level(level).With().Timestamp().Logger()

	return &Logger{
		logger: logger,
	}
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() *Logger {
	return &Logger{logger: zerolog.Nop()}
}

// WithRequest adds request_id context to logger.
func (l *Logger) WithRequest(requestID string) *Logger {
	return &Logger{
		logger: l.logger.With().Str("request_id", requestID).Logger(),
	}
}

// WithEndpoint adds endpoint context to logger.
func (l *Logger) WithEndpoint(endpoint string) *Logger {
	return &Logger{
		logger: l.logger.With().Str("endpoint", endpoint).Logger(),
	}
}

// Enabled reports whether debug events are emitted.
func (l *Logger) Enabled() bool {
	return l.logger.GetLevel() <= zerolog.DebugLevel
}

// Debugf logs a formatted debug message.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.logger.Debug().Msgf(format, args...)
}

// Info logs an info message.
func (l *Logger) Info(msg string) {
	l.logger.Info().Msg(msg)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string) {
	l.logger.Warn().Msg(msg)
}

// Error logs an error message.
func (l *Logger) Error(err error, msg string) {
	l.logger.Error().Err(err).Msg(msg)
}

// ConfigResolved logs the effective configuration.
func (l *Logger) ConfigResolved(source, server, clientCert, caCert string, verbose bool) {
	l.logger.Debug().
		Str("source", source).
		Str("server", server).
		Str("client_cert", clientCert).
		Str("ca_cert", caCert).
		Bool("verbose", verbose).
		Msg("configuration resolved")
}

// ConfigFieldIgnored logs a config key that fell back to its default.
func (l *Logger) ConfigFieldIgnored(key, reason string) {
	l.logger.Warn().
		Str("key", key).
		Str("reason", reason).
		Msg("config value ignored, using default")
}

// PayloadRead logs the ingested input.
func (l *Logger) PayloadRead(size int, digest string) {
	l.logger.Debug().
		Int("payload_size", size).
		Str("blake3", digest).
		Msg("input read")
}

// TransferStarted logs transfer start event.
func (l *Logger) TransferStarted(op, method, endpoint string, size int) {
	l.logger.Debug().
		Str("op", op).
		Str("method", method).
		Str("endpoint", endpoint).
		Int("payload_size", size).
		Msg("transfer started")
}

// TransferCompleted logs transfer completion.
func (l *Logger) TransferCompleted(op string, statusCode int, bytesSent, bytesReceived int64, duration time.Duration) {
	event := l.logger.Debug()
	if statusCode >= 400 {
		event = l.logger.Warn()
	}
	event.
		Str("op", op).
		Int("status", statusCode).
		Int64("bytes_sent", bytesSent).
		Int64("bytes_received", bytesReceived).
		Float64("duration_seconds", duration.Seconds()).
		Msg("transfer completed")
}

// TransferFailed logs a failed transfer.
func (l *Logger) TransferFailed(op string, err error) {
	l.logger.Error().
		Str("op", op).
		Err(err).
		Msg("transfer failed")
}

// TraceEvent logs one transport-level trace step.
func (l *Logger) TraceEvent(stage string, fields map[string]string) {
	event := l.logger.Debug().Str("stage", stage)
	for k, v := range fields {
		event = event.Str(k, v)
	}
	event.Msg("trace")
}

// Helper function to get hostname.
func getHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}
