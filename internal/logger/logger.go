// Package logger provides structured logging for the codexindex service
package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger wraps zerolog with service-specific helpers
type Logger struct {
	zlog zerolog.Logger
}

// Config holds logger configuration
type Config struct {
	Level      string    `yaml:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Pretty     bool      `yaml:"pretty"`
	WithCaller bool      `yaml:"with_caller"`
	Output     io.Writer `yaml:"-"`
}

// NewLogger creates a structured logger. Unknown levels fall back to info.
func NewLogger(cfg Config) *Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	zctx := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Str("service", "codexindex")
	if cfg.WithCaller {
		zctx = zctx.Caller()
	}

	return &Logger{zlog: zctx.Logger()}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

// Zerolog returns the underlying zerolog logger for packages that take one
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zlog
}

// Info starts an info event
func (l *Logger) Info() *zerolog.Event { return l.zlog.Info() }

// Debug starts a debug event
func (l *Logger) Debug() *zerolog.Event { return l.zlog.Debug() }

// Warn starts a warning event
func (l *Logger) Warn() *zerolog.Event { return l.zlog.Warn() }

// Error starts an error event
func (l *Logger) Error() *zerolog.Event { return l.zlog.Error() }

// WithFields returns a logger with additional fields
func (l *Logger) WithFields(fields map[string]any) *Logger {
	return &Logger{zlog: l.zlog.With().Fields(fields).Logger()}
}

// Component returns a child logger tagged with a component name
func (l *Logger) Component(name string) *Logger {
	return &Logger{zlog: l.zlog.With().Str("component", name).Logger()}
}

// GrpcLogger returns a logger for one gRPC method
func (l *Logger) GrpcLogger(method string) *Logger {
	return &Logger{
		zlog: l.zlog.With().
			Str("component", "grpc").
			Str("method", method).
			Logger(),
	}
}

// LogGrpcRequest logs a completed unary call
func (l *Logger) LogGrpcRequest(method, requestID, code string, duration time.Duration, err error) {
	event := l.zlog.Info()
	if err != nil {
		event = l.zlog.Warn().Err(err)
	}
	event.
		Str("component", "grpc").
		Str("method", method).
		Str("request_id", requestID).
		Str("code", code).
		Dur("duration_ms", duration).
		Msg("gRPC request completed")
}

// LogQuery logs an evaluated index query at debug level
func (l *Logger) LogQuery(queryType, field string, results int, cacheHit bool, duration time.Duration) {
	l.zlog.Debug().
		Str("component", "index").
		Str("query_type", queryType).
		Str("field", field).
		Int("results", results).
		Bool("cache_hit", cacheHit).
		Dur("duration_ms", duration).
		Msg("query evaluated")
}

// LogIndexOperation logs an index mutation
func (l *Logger) LogIndexOperation(operation string, nodes int, duration time.Duration, err error) {
	event := l.zlog.Debug()
	if err != nil {
		event = l.zlog.Error().Err(err)
	}
	event.
		Str("component", "index").
		Str("operation", operation).
		Int("nodes", nodes).
		Dur("duration_ms", duration).
		Msg("index operation completed")
}

// LogServerStart logs server startup
func (l *Logger) LogServerStart(port, metricsPort int, dataDir string) {
	l.zlog.Info().
		Str("event", "server_start").
		Int("port", port).
		Int("metrics_port", metricsPort).
		Str("data_dir", dataDir).
		Msg("codexindex server starting")
}

// LogServerReady logs when the server accepts connections
func (l *Logger) LogServerReady(addr string) {
	l.zlog.Info().
		Str("event", "server_ready").
		Str("addr", addr).
		Msg("codexindex server ready to accept connections")
}

// LogServerShutdown logs server shutdown
func (l *Logger) LogServerShutdown(reason string) {
	l.zlog.Info().
		Str("event", "server_shutdown").
		Str("reason", reason).
		Msg("codexindex server shutting down")
}

var (
	globalMu     sync.Mutex
	globalLogger *Logger
)

// InitGlobalLogger sets the process-wide logger and zerolog's global logger
func InitGlobalLogger(cfg Config) *Logger {
	l := NewLogger(cfg)
	globalMu.Lock()
	globalLogger = l
	globalMu.Unlock()
	log.Logger = l.zlog
	return l
}

// GetGlobalLogger returns the process-wide logger, initializing it with
// pretty info-level output on first use
func GetGlobalLogger() *Logger {
	globalMu.Lock()
	l := globalLogger
	globalMu.Unlock()
	if l == nil {
		return InitGlobalLogger(Config{Level: "info", Pretty: true})
	}
	return l
}
