package telemetry

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/optic-dev/optic-go/core"
	"github.com/optic-dev/optic-go/trace"
)

func sealedSpan(name string) *Span {
	sc := trace.ChildOf(trace.NewRoot())
	s := &Span{
		Context:    sc,
		Name:       name,
		Kind:       oteltrace.SpanKindServer,
		StartTime:  time.Now().Add(-time.Millisecond),
		EndTime:    time.Now(),
		StatusCode: codes.Ok,
		Attributes: []attribute.KeyValue{attribute.String("http.method", "GET")},
	}
	return s
}

func exporterFor(t *testing.T, backend http.HandlerFunc) (*HTTPExporter, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(backend)
	t.Cleanup(server.Close)

	cfg := testConfig()
	cfg.Endpoint = server.URL
	cfg.ServiceVersion = "1.2.3"
	return NewHTTPExporter(cfg), server
}

func TestExporterDelivers(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody []byte
	exporter, _ := exporterFor(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	})

	batch := &Batch{Signal: SignalTraces, Spans: []*Span{sealedSpan("handle")}}
	outcome := exporter.Send(context.Background(), batch)

	require.Equal(t, OutcomeDelivered, outcome)
	assert.Equal(t, "/otlp/v1/traces", gotPath)
	assert.Equal(t, "Bearer test-key", gotAuth)

	var envelope map[string]interface{}
	require.NoError(t, json.Unmarshal(gotBody, &envelope))
	assert.Equal(t, "optic/v1", envelope["schema"])

	resource := envelope["resource"].(map[string]interface{})
	assert.Equal(t, "test-service", resource["service.name"])
	assert.Equal(t, "1.2.3", resource["service.version"])

	spans := envelope["spans"].([]interface{})
	require.Len(t, spans, 1)
	span := spans[0].(map[string]interface{})
	assert.Equal(t, "handle", span["name"])
	assert.Equal(t, "server", span["kind"])
	assert.Equal(t, "ok", span["status"])
	assert.NotEmpty(t, span["parentSpanId"])
}

func TestExporterOutcomeClassification(t *testing.T) {
	tests := []struct {
		status  int
		outcome Outcome
	}{
		{http.StatusOK, OutcomeDelivered},
		{http.StatusAccepted, OutcomeDelivered},
		{http.StatusRequestTimeout, OutcomeRetryable},
		{http.StatusTooManyRequests, OutcomeRetryable},
		{http.StatusInternalServerError, OutcomeRetryable},
		{http.StatusBadGateway, OutcomeRetryable},
		{http.StatusBadRequest, OutcomeFatal},
		{http.StatusUnauthorized, OutcomeFatal},
		{http.StatusNotFound, OutcomeFatal},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			exporter, _ := exporterFor(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			batch := &Batch{Signal: SignalTraces, Spans: []*Span{sealedSpan("s")}}
			assert.Equal(t, tt.outcome, exporter.Send(context.Background(), batch))
		})
	}
}

func TestOutcomeErrMapsToSentinels(t *testing.T) {
	assert.NoError(t, OutcomeDelivered.Err())
	assert.True(t, core.IsRetryable(OutcomeRetryable.Err()))
	assert.False(t, core.IsFatal(OutcomeRetryable.Err()))
	assert.True(t, core.IsFatal(OutcomeFatal.Err()))
	assert.False(t, core.IsRetryable(OutcomeFatal.Err()))
}

func TestExporterNetworkErrorIsRetryable(t *testing.T) {
	cfg := testConfig()
	cfg.Endpoint = "http://127.0.0.1:1" // nothing listens here
	cfg.ExportTimeout = 500 * time.Millisecond
	exporter := NewHTTPExporter(cfg)

	batch := &Batch{Signal: SignalTraces, Spans: []*Span{sealedSpan("s")}}
	assert.Equal(t, OutcomeRetryable, exporter.Send(context.Background(), batch))
}

func TestExporterEmptyBatch(t *testing.T) {
	var calls atomic.Int64
	exporter, _ := exporterFor(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	outcome := exporter.Send(context.Background(), &Batch{Signal: SignalTraces})
	assert.Equal(t, OutcomeDelivered, outcome)
	assert.EqualValues(t, 0, calls.Load(), "empty batches must not hit the network")
}

func TestRetryPolicyRetryableExhaustion(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}

	var attempts int
	outcome, used := policy.Execute(context.Background(), func(context.Context) Outcome {
		attempts++
		return OutcomeRetryable
	})

	assert.Equal(t, OutcomeRetryable, outcome)
	assert.Equal(t, 3, used)
	assert.Equal(t, 3, attempts)
}

func TestRetryPolicyFatalNoRetry(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}

	var attempts int
	outcome, used := policy.Execute(context.Background(), func(context.Context) Outcome {
		attempts++
		return OutcomeFatal
	})

	assert.Equal(t, OutcomeFatal, outcome)
	assert.Equal(t, 1, used)
	assert.Equal(t, 1, attempts)
}

func TestRetryPolicyEventualDelivery(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}

	var attempts int
	outcome, used := policy.Execute(context.Background(), func(context.Context) Outcome {
		attempts++
		if attempts < 3 {
			return OutcomeRetryable
		}
		return OutcomeDelivered
	})

	assert.Equal(t, OutcomeDelivered, outcome)
	assert.Equal(t, 3, used)
}

func TestRetryPolicyContextCancellation(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 10, BaseDelay: time.Hour, MaxDelay: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		outcome, _ := policy.Execute(ctx, func(context.Context) Outcome {
			return OutcomeRetryable
		})
		assert.Equal(t, OutcomeRetryable, outcome)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Execute did not honor context cancellation")
	}
}

func TestConfigEndpointTrailingSlash(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.Endpoint = server.URL + "/"
	exporter := NewHTTPExporter(cfg)
	exporter.Send(context.Background(), &Batch{Signal: SignalLogs, Logs: []LogRecord{{Body: "x", Time: time.Now(), Severity: "INFO"}}})

	assert.Equal(t, "/otlp/v1/logs", gotPath)
}
