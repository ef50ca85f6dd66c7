package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/optic-dev/optic-go/core"
)

// Outcome classifies the result of one batch send.
type Outcome int

const (
	// OutcomeDelivered means the backend accepted the batch.
	OutcomeDelivered Outcome = iota
	// OutcomeRetryable means a transient failure: network error,
	// timeout, throttling, or a 5xx from the backend.
	OutcomeRetryable
	// OutcomeFatal means the backend rejected the batch permanently
	// (malformed payload, auth rejection); retrying cannot help.
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeRetryable:
		return "retryable-failure"
	default:
		return "fatal-failure"
	}
}

// Err maps the outcome onto the error taxonomy so callers can classify
// with errors.Is (core.IsRetryable, core.IsFatal). Delivered maps to nil.
func (o Outcome) Err() error {
	switch o {
	case OutcomeRetryable:
		return core.ErrExportRetryable
	case OutcomeFatal:
		return core.ErrExportFatal
	default:
		return nil
	}
}

// Exporter sends batches to the backend. Implementations own the batch
// for the duration of a send attempt and must never block instrumented
// call paths - the pipeline invokes them only from its worker.
type Exporter interface {
	Send(ctx context.Context, batch *Batch) Outcome
}

// exportSchema versions the JSON envelope understood by the backend.
const exportSchema = "optic/v1"

// HTTPExporter delivers batches to {endpoint}/otlp/v1/{signal} as JSON
// with bearer authentication, the wire contract of the optic collector.
type HTTPExporter struct {
	client   *http.Client
	endpoint string
	apiKey   string
	timeout  time.Duration
	resource map[string]string
}

// NewHTTPExporter builds the exporter from validated configuration.
func NewHTTPExporter(cfg *core.Config) *HTTPExporter {
	version := cfg.ServiceVersion
	if version == "" {
		version = "unknown"
	}
	return &HTTPExporter{
		// The exporter deliberately uses its own transport: wrapping
		// http.DefaultTransport here would trace our own export calls.
		client:   &http.Client{Transport: &http.Transport{}},
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:   cfg.APIKey,
		timeout:  cfg.ExportTimeout,
		resource: map[string]string{
			"service.name":           cfg.ServiceName,
			"deployment.environment": cfg.Environment,
			"service.version":        version,
			"telemetry.sdk.name":     "optic-go",
			"telemetry.sdk.version":  SDKVersion,
		},
	}
}

// SDKVersion is stamped on every exported batch.
const SDKVersion = "0.1.0"

// Send performs one delivery attempt with the per-attempt timeout
// applied. Retry scheduling lives in the pipeline's RetryPolicy, not
// here, so a canceled shutdown context cuts through cleanly.
func (e *HTTPExporter) Send(ctx context.Context, batch *Batch) Outcome {
	if batch == nil || batch.Len() == 0 {
		return OutcomeDelivered
	}

	payload, err := json.Marshal(e.envelope(batch))
	if err != nil {
		// Unserializable telemetry is malformed by definition.
		return OutcomeFatal
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/otlp/v1/%s", e.endpoint, batch.Signal)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return OutcomeFatal
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return OutcomeRetryable
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	return classifyStatus(resp.StatusCode)
}

func classifyStatus(status int) Outcome {
	switch {
	case status >= 200 && status < 300:
		return OutcomeDelivered
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests, status >= 500:
		return OutcomeRetryable
	default:
		return OutcomeFatal
	}
}

// envelope converts a batch to its wire form.
func (e *HTTPExporter) envelope(batch *Batch) exportEnvelope {
	env := exportEnvelope{
		Schema:   exportSchema,
		Resource: e.resource,
	}
	switch batch.Signal {
	case SignalTraces:
		env.Spans = make([]exportSpan, 0, len(batch.Spans))
		for _, s := range batch.Spans {
			env.Spans = append(env.Spans, toExportSpan(s))
		}
	case SignalMetrics:
		env.Metrics = make([]exportMetric, 0, len(batch.Metrics))
		for _, m := range batch.Metrics {
			env.Metrics = append(env.Metrics, exportMetric{
				Name:       m.Name,
				Kind:       string(m.Kind),
				Value:      m.Value,
				Timestamp:  m.Time,
				Attributes: attributesToMap(m.Attributes),
			})
		}
	case SignalLogs:
		env.Logs = make([]exportLog, 0, len(batch.Logs))
		for _, l := range batch.Logs {
			env.Logs = append(env.Logs, exportLog{
				Timestamp:  l.Time,
				Severity:   l.Severity,
				Body:       l.Body,
				Attributes: l.Attributes,
				TraceID:    l.TraceID,
				SpanID:     l.SpanID,
			})
		}
	}
	return env
}

type exportEnvelope struct {
	Schema   string            `json:"schema"`
	Resource map[string]string `json:"resource"`
	Spans    []exportSpan      `json:"spans,omitempty"`
	Metrics  []exportMetric    `json:"metrics,omitempty"`
	Logs     []exportLog       `json:"logs,omitempty"`
}

type exportSpan struct {
	TraceID       string                 `json:"traceId"`
	SpanID        string                 `json:"spanId"`
	ParentSpanID  string                 `json:"parentSpanId,omitempty"`
	Name          string                 `json:"name"`
	Kind          string                 `json:"kind"`
	StartTime     time.Time              `json:"startTime"`
	EndTime       time.Time              `json:"endTime"`
	Status        string                 `json:"status"`
	StatusMessage string                 `json:"statusMessage,omitempty"`
	Attributes    map[string]interface{} `json:"attributes,omitempty"`
	Events        []exportEvent          `json:"events,omitempty"`
}

type exportEvent struct {
	Name       string                 `json:"name"`
	Timestamp  time.Time              `json:"timestamp"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

type exportMetric struct {
	Name       string                 `json:"name"`
	Kind       string                 `json:"kind"`
	Value      float64                `json:"value"`
	Timestamp  time.Time              `json:"timestamp"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

type exportLog struct {
	Timestamp  time.Time              `json:"timestamp"`
	Severity   string                 `json:"severity"`
	Body       string                 `json:"body"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
	TraceID    string                 `json:"traceId,omitempty"`
	SpanID     string                 `json:"spanId,omitempty"`
}

func toExportSpan(s *Span) exportSpan {
	out := exportSpan{
		TraceID:       s.Context.TraceID.String(),
		SpanID:        s.Context.SpanID.String(),
		Name:          s.Name,
		Kind:          s.Kind.String(),
		StartTime:     s.StartTime,
		EndTime:       s.EndTime,
		Status:        statusString(s.StatusCode),
		StatusMessage: s.StatusMessage,
		Attributes:    attributesToMap(s.Attributes),
	}
	if s.Context.HasParent() {
		out.ParentSpanID = s.Context.ParentSpanID.String()
	}
	for _, ev := range s.Events {
		out.Events = append(out.Events, exportEvent{
			Name:       ev.Name,
			Timestamp:  ev.Time,
			Attributes: attributesToMap(ev.Attributes),
		})
	}
	return out
}

func statusString(code codes.Code) string {
	switch code {
	case codes.Ok:
		return "ok"
	case codes.Error:
		return "error"
	default:
		return "unset"
	}
}

func attributesToMap(attrs []attribute.KeyValue) map[string]interface{} {
	if len(attrs) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}
