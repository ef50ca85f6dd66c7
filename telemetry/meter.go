package telemetry

import (
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// Meter creates metric points synchronously at measurement sites and
// hands them to the pipeline. Points are immutable once created.
type Meter struct {
	pipeline *Pipeline
	enabled  bool
}

// NewMeter creates a meter feeding the given pipeline.
func NewMeter(pipeline *Pipeline, enabled bool) *Meter {
	return &Meter{pipeline: pipeline, enabled: enabled}
}

// Counter records a monotonic increment.
func (m *Meter) Counter(name string, value float64, attrs ...attribute.KeyValue) {
	m.record(name, MetricCounter, value, attrs)
}

// Gauge records a point-in-time value.
func (m *Meter) Gauge(name string, value float64, attrs ...attribute.KeyValue) {
	m.record(name, MetricGauge, value, attrs)
}

// Histogram records a distribution sample, e.g. a request duration.
func (m *Meter) Histogram(name string, value float64, attrs ...attribute.KeyValue) {
	m.record(name, MetricHistogram, value, attrs)
}

func (m *Meter) record(name string, kind MetricKind, value float64, attrs []attribute.KeyValue) {
	if m == nil || !m.enabled || name == "" {
		return
	}
	m.pipeline.RecordMetric(MetricPoint{
		Name:       name,
		Kind:       kind,
		Value:      value,
		Time:       time.Now(),
		Attributes: attrs,
	})
}
