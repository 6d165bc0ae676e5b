package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger with additional functionality
type Logger struct {
	*zap.Logger
}

// Config contains logger configuration
type Config struct {
	Level  string
	Format string // json or console
	Output string // stdout or stderr
	File   *FileConfig
}

// FileConfig contains file logging configuration
type FileConfig struct {
	Enabled bool
	Path    string
}

// New creates a new logger instance
func New(config Config) (*Logger, error) {
	level, err := zapcore.ParseLevel(config.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", config.Level, err)
	}

	var encoder zapcore.Encoder
	if config.Format == "console" {
		encoderConfig := zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoderConfig := zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	// The CLI prints processed documents on stdout, so it logs to stderr
	sink := os.Stdout
	if config.Output == "stderr" {
		sink = os.Stderr
	}

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.AddSync(sink), level),
	}

	if config.File != nil && config.File.Enabled {
		file, err := os.OpenFile(config.File.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}

		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(file),
			level,
		))
	}

	return Wrap(zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))), nil
}

// NewNop returns a logger that discards everything, used by tests
func NewNop() *Logger {
	return Wrap(zap.NewNop())
}

// Wrap adapts an existing zap logger
func Wrap(l *zap.Logger) *Logger {
	if l == nil {
		return NewNop()
	}
	return &Logger{Logger: l}
}

// WithRequestID adds a request ID to the logger context
func (l *Logger) WithRequestID(requestID string) *Logger {
	return &Logger{Logger: l.Logger.With(zap.String("request_id", requestID))}
}

// WithDocumentID adds a document ID to the logger context
func (l *Logger) WithDocumentID(documentID string) *Logger {
	return &Logger{Logger: l.Logger.With(zap.String("document_id", documentID))}
}

// WithComponent adds a component name to the logger context
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{Logger: l.Logger.With(zap.String("component", component))}
}

// LogRequest logs an HTTP request. Bodies carry the documents under
// review and are never logged.
func (l *Logger) LogRequest(method, path string, headers map[string][]string) {
	safeHeaders := make(map[string]string)
	for k, v := range headers {
		if isSensitiveHeader(k) {
			safeHeaders[k] = "[REDACTED]"
		} else if len(v) > 0 {
			safeHeaders[k] = v[0]
		}
	}

	l.Info("HTTP request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Any("headers", safeHeaders),
	)
}

// isSensitiveHeader checks if a header contains sensitive information
func isSensitiveHeader(header string) bool {
	sensitiveHeaders := []string{
		"authorization",
		"x-api-key",
		"cookie",
		"x-auth-token",
		"x-access-token",
		"bearer",
	}

	headerLower := strings.ToLower(header)
	for _, sensitive := range sensitiveHeaders {
		if strings.Contains(headerLower, sensitive) {
			return true
		}
	}
	return false
}
