package core

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger adapts a zap logger to the Logger interface.
// This is the production implementation; tests and embedders that do
// not want output use NoOpLogger instead.
type ZapLogger struct {
	logger *zap.Logger
}

// NewZapLogger wraps an existing zap logger.
func NewZapLogger(logger *zap.Logger) *ZapLogger {
	return &ZapLogger{logger: logger}
}

// NewProductionLogger builds a zap-backed logger for SDK self-logging.
// JSON output when running in a cluster (detected via KUBERNETES_SERVICE_HOST,
// the usual in-cluster marker), console output for local development.
func NewProductionLogger(serviceName, level string) *ZapLogger {
	var cfg zap.Config
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(ParseLevel(level))
	cfg.DisableStacktrace = true

	logger, err := cfg.Build()
	if err != nil {
		// zap only fails on invalid sink configuration; fall back to a
		// bare production logger rather than failing initialization.
		logger = zap.NewNop()
	}
	return &ZapLogger{logger: logger.Named(serviceName)}
}

// ParseLevel converts a config log level string to a zapcore level.
// Unknown values default to Info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return zapcore.DebugLevel
	case "INFO":
		return zapcore.InfoLevel
	case "WARN", "WARNING":
		return zapcore.WarnLevel
	case "ERROR":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Zap exposes the underlying zap logger for callers that want the full API.
func (z *ZapLogger) Zap() *zap.Logger { return z.logger }

func (z *ZapLogger) Info(msg string, fields map[string]interface{}) {
	z.logger.Info(msg, mapToFields(fields)...)
}

func (z *ZapLogger) Error(msg string, fields map[string]interface{}) {
	z.logger.Error(msg, mapToFields(fields)...)
}

func (z *ZapLogger) Warn(msg string, fields map[string]interface{}) {
	z.logger.Warn(msg, mapToFields(fields)...)
}

func (z *ZapLogger) Debug(msg string, fields map[string]interface{}) {
	z.logger.Debug(msg, mapToFields(fields)...)
}

func mapToFields(fields map[string]interface{}) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		out = append(out, zap.Any(k, v))
	}
	return out
}
