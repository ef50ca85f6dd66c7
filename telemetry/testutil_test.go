package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/optic-dev/optic-go/core"
)

// captureExporter records every batch it receives and reports a fixed
// outcome, so tests can drive the pipeline deterministically.
type captureExporter struct {
	mu      sync.Mutex
	outcome Outcome
	batches []*Batch
}

func (e *captureExporter) Send(_ context.Context, batch *Batch) Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.batches = append(e.batches, batch)
	return e.outcome
}

func (e *captureExporter) spans() []*Span {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []*Span
	for _, b := range e.batches {
		out = append(out, b.Spans...)
	}
	return out
}

func (e *captureExporter) logs() []LogRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []LogRecord
	for _, b := range e.batches {
		out = append(out, b.Logs...)
	}
	return out
}

func (e *captureExporter) metrics() []MetricPoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []MetricPoint
	for _, b := range e.batches {
		out = append(out, b.Metrics...)
	}
	return out
}

func (e *captureExporter) batchCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.batches)
}

// captureLogger records self-logging output so tests can assert on it.
type captureLogger struct {
	mu    sync.Mutex
	warns []map[string]interface{}
}

func (l *captureLogger) Warn(msg string, fields map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, fields)
}

func (l *captureLogger) Info(string, map[string]interface{})  {}
func (l *captureLogger) Error(string, map[string]interface{}) {}
func (l *captureLogger) Debug(string, map[string]interface{}) {}

func (l *captureLogger) warnings() []map[string]interface{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]map[string]interface{}, len(l.warns))
	copy(out, l.warns)
	return out
}

func testConfig() *core.Config {
	cfg := core.DefaultConfig()
	cfg.APIKey = "test-key"
	cfg.ServiceName = "test-service"
	cfg.FlushInterval = time.Hour // tests flush explicitly
	cfg.ExportRetryAttempts = 1
	cfg.ExportRetryBaseDelay = time.Millisecond
	cfg.ShutdownGrace = 2 * time.Second
	return cfg
}

// newTestPipeline builds a pipeline that is not started; tests record
// items and then call Shutdown, which performs the final flush
// synchronously into the capture exporter.
func newTestPipeline(cfg *core.Config) (*Pipeline, *captureExporter) {
	exporter := &captureExporter{outcome: OutcomeDelivered}
	return NewPipeline(cfg, exporter, &core.NoOpLogger{}), exporter
}
