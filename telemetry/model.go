// Package telemetry implements the interception and delivery engine:
// span creation, adapter registry, bounded buffering, batching, and
// export to the collector backend.
//
// The package never alters the control flow of instrumented code. Every
// failure inside the engine degrades to an internal counter; nothing
// here returns an error to an instrumented call path.
package telemetry

import (
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/optic-dev/optic-go/trace"
)

// Event is a timestamped record attached to a span.
type Event struct {
	Name       string
	Time       time.Time
	Attributes []attribute.KeyValue
}

// Span is a timed record of one unit of work. It is exclusively owned
// by the call frame that created it until End seals it; after that the
// buffer owns it and no further mutation is allowed.
type Span struct {
	Context trace.SpanContext

	Name          string
	Kind          oteltrace.SpanKind
	StartTime     time.Time
	EndTime       time.Time
	StatusCode    codes.Code
	StatusMessage string
	Attributes    []attribute.KeyValue
	Events        []Event

	pipeline  *Pipeline
	recording bool
	ended     atomic.Bool
}

// IsRecording reports whether mutations on this span will be kept.
// Spans from a disabled or unsampled trace are no-ops.
func (s *Span) IsRecording() bool {
	return s != nil && s.recording && !s.ended.Load()
}

// SetAttributes adds attributes to the span.
func (s *Span) SetAttributes(attrs ...attribute.KeyValue) {
	if !s.IsRecording() {
		return
	}
	s.Attributes = append(s.Attributes, attrs...)
}

// AddEvent attaches a named, timestamped event to the span.
func (s *Span) AddEvent(name string, attrs ...attribute.KeyValue) {
	if !s.IsRecording() {
		return
	}
	s.Events = append(s.Events, Event{
		Name:       name,
		Time:       time.Now(),
		Attributes: attrs,
	})
}

// RecordError marks the span as failed and attaches an event describing
// the error. The error itself is never modified or consumed.
func (s *Span) RecordError(err error) {
	if err == nil || !s.IsRecording() {
		return
	}
	s.AddEvent("exception",
		attribute.String("exception.message", err.Error()),
		attribute.String("exception.type", errorType(err)),
	)
	s.StatusCode = codes.Error
	s.StatusMessage = err.Error()
}

// SetStatus sets the span status explicitly.
func (s *Span) SetStatus(code codes.Code, message string) {
	if !s.IsRecording() {
		return
	}
	s.StatusCode = code
	s.StatusMessage = message
}

// End seals the span and hands it to the buffer. End is idempotent;
// only the first call has any effect.
func (s *Span) End() {
	if s == nil || !s.recording {
		return
	}
	if !s.ended.CompareAndSwap(false, true) {
		return
	}
	s.EndTime = time.Now()
	if s.pipeline != nil {
		s.pipeline.RecordSpan(s)
	}
}

// MetricKind identifies the aggregation semantics of a metric point.
type MetricKind string

const (
	MetricCounter   MetricKind = "counter"
	MetricGauge     MetricKind = "gauge"
	MetricHistogram MetricKind = "histogram"
)

// MetricPoint is a single measurement. Points are created synchronously
// at measurement sites and never mutated afterwards.
type MetricPoint struct {
	Name       string
	Kind       MetricKind
	Value      float64
	Time       time.Time
	Attributes []attribute.KeyValue
}

// LogRecord is one captured log emission. TraceID/SpanID are stamped by
// the log correlator from the ambient context; both are empty when no
// span was active at emission time.
type LogRecord struct {
	Time       time.Time
	Severity   string
	Body       string
	Attributes map[string]interface{}
	TraceID    string
	SpanID     string
}

// Signal identifies which pipeline a batch belongs to.
type Signal string

const (
	SignalTraces  Signal = "traces"
	SignalMetrics Signal = "metrics"
	SignalLogs    Signal = "logs"
)

// Batch is an ordered set of sealed items for one signal. The buffer
// owns queued items until a batch is constructed; the exporter owns the
// batch for the duration of a send attempt.
type Batch struct {
	Signal  Signal
	Spans   []*Span
	Metrics []MetricPoint
	Logs    []LogRecord
}

// Len returns the number of items in the batch.
func (b *Batch) Len() int {
	switch b.Signal {
	case SignalTraces:
		return len(b.Spans)
	case SignalMetrics:
		return len(b.Metrics)
	default:
		return len(b.Logs)
	}
}

func errorType(err error) string {
	return fmt.Sprintf("%T", err)
}
