package telemetry

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/optic-dev/optic-go/trace"
)

// Field names the correlator stamps onto log records. LoggerWithContext
// writes them; the correlated core reads them back out when building
// the exported LogRecord.
const (
	TraceIDField = "trace_id"
	SpanIDField  = "span_id"
)

// LoggerWithContext returns logger with the ambient trace identifiers
// attached as fields. A context with no active span returns the logger
// unchanged, so untraced logs carry no identifiers.
func LoggerWithContext(ctx context.Context, logger *zap.Logger) *zap.Logger {
	sc := trace.FromContext(ctx)
	if !sc.IsValid() {
		return logger
	}
	return logger.With(
		zap.String(TraceIDField, sc.TraceID.String()),
		zap.String(SpanIDField, sc.SpanID.String()),
	)
}

// NewCorrelatedCore wraps a zapcore.Core so every record it writes is
// also captured into the log pipeline. The wrap is transparent: the
// inner core writes exactly what it would have written, and a failure
// in the capture path can never block or fail the host logging call.
// minLevel bounds what the pipeline captures; the inner core keeps its
// own level independently.
func NewCorrelatedCore(inner zapcore.Core, pipeline *Pipeline, minLevel zapcore.Level) zapcore.Core {
	if c, ok := inner.(*correlatedCore); ok {
		// Already correlated; re-wrapping would double-capture.
		return c
	}
	return &correlatedCore{inner: inner, pipeline: pipeline, minLevel: minLevel}
}

type correlatedCore struct {
	inner    zapcore.Core
	pipeline *Pipeline
	minLevel zapcore.Level
	fields   []zapcore.Field
}

func (c *correlatedCore) Enabled(level zapcore.Level) bool {
	return c.inner.Enabled(level) || level >= c.minLevel
}

func (c *correlatedCore) With(fields []zapcore.Field) zapcore.Core {
	accumulated := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	accumulated = append(accumulated, c.fields...)
	accumulated = append(accumulated, fields...)
	return &correlatedCore{
		inner:    c.inner.With(fields),
		pipeline: c.pipeline,
		minLevel: c.minLevel,
		fields:   accumulated,
	}
}

func (c *correlatedCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checked.AddCore(entry, c)
	}
	return checked
}

func (c *correlatedCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	c.capture(entry, fields)
	if c.inner.Enabled(entry.Level) {
		return c.inner.Write(entry, fields)
	}
	return nil
}

func (c *correlatedCore) Sync() error {
	return c.inner.Sync()
}

// capture converts the entry to a LogRecord and enqueues it. Panics
// here must not reach the logging call site.
func (c *correlatedCore) capture(entry zapcore.Entry, fields []zapcore.Field) {
	defer func() {
		_ = recover()
	}()
	if entry.Level < c.minLevel {
		return
	}

	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}

	record := LogRecord{
		Time:     entry.Time,
		Severity: entry.Level.CapitalString(),
		Body:     entry.Message,
	}
	if v, ok := enc.Fields[TraceIDField].(string); ok {
		record.TraceID = v
		delete(enc.Fields, TraceIDField)
	}
	if v, ok := enc.Fields[SpanIDField].(string); ok {
		record.SpanID = v
		delete(enc.Fields, SpanIDField)
	}
	if len(enc.Fields) > 0 {
		record.Attributes = enc.Fields
	}
	c.pipeline.RecordLog(record)
}
