package telemetry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/optic-dev/optic-go/core"
)

// Pipeline owns the per-signal buffers and the background workers that
// batch and export their contents. Recording is constant-time and
// non-blocking; all I/O happens on the workers, decoupled from the
// instrumented application.
//
// Each signal moves through Empty -> Accumulating -> Flushing -> Empty
// independently. A flush is triggered by the size threshold or the
// periodic timer; draining swaps queued items out under a short lock,
// so ingestion continues while a batch is in flight.
type Pipeline struct {
	cfg      *core.Config
	logger   core.Logger
	exporter Exporter
	retry    RetryPolicy

	spans   *Buffer[*Span]
	metrics *Buffer[MetricPoint]
	logs    *Buffer[LogRecord]

	kickSpans   chan struct{}
	kickMetrics chan struct{}
	kickLogs    chan struct{}

	stopped atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	batchesExported atomic.Int64
	batchesFailed   atomic.Int64
	itemsExported   atomic.Int64
	itemsLost       atomic.Int64
	exportRetries   atomic.Int64

	// Export failures are logged through a rate limiter so a dead
	// backend cannot flood the host application's logs.
	errorLimiter *RateLimiter
}

// Stats is a snapshot of the pipeline's self-observability counters.
// This is the only place pipeline failures are visible; they never
// surface as application errors.
type Stats struct {
	SpansDropped    uint64 `json:"spans_dropped"`
	MetricsDropped  uint64 `json:"metrics_dropped"`
	LogsDropped     uint64 `json:"logs_dropped"`
	BatchesExported int64  `json:"batches_exported"`
	BatchesFailed   int64  `json:"batches_failed"`
	ItemsExported   int64  `json:"items_exported"`
	ItemsLost       int64  `json:"items_lost"`
	ExportRetries   int64  `json:"export_retries"`
}

// NewPipeline creates a pipeline; call Start to launch the workers.
func NewPipeline(cfg *core.Config, exporter Exporter, logger core.Logger) *Pipeline {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Pipeline{
		cfg:      cfg,
		logger:   logger,
		exporter: exporter,
		retry: RetryPolicy{
			MaxAttempts:   cfg.ExportRetryAttempts,
			BaseDelay:     cfg.ExportRetryBaseDelay,
			MaxDelay:      cfg.ExportRetryMaxDelay,
			JitterEnabled: true,
		},
		spans:        NewBuffer[*Span](cfg.BufferCapacity),
		metrics:      NewBuffer[MetricPoint](cfg.BufferCapacity),
		logs:         NewBuffer[LogRecord](cfg.BufferCapacity),
		kickSpans:    make(chan struct{}, 1),
		kickMetrics:  make(chan struct{}, 1),
		kickLogs:     make(chan struct{}, 1),
		errorLimiter: NewRateLimiter(30 * time.Second),
	}
}

// Start launches one flush worker per enabled signal.
func (p *Pipeline) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	if p.cfg.EnableTraces {
		p.startWorker(ctx, SignalTraces, p.kickSpans)
	}
	if p.cfg.EnableMetrics {
		p.startWorker(ctx, SignalMetrics, p.kickMetrics)
	}
	if p.cfg.EnableLogs {
		p.startWorker(ctx, SignalLogs, p.kickLogs)
	}
}

func (p *Pipeline) startWorker(ctx context.Context, signal Signal, kick <-chan struct{}) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.cfg.FlushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.flush(ctx, signal)
			case <-kick:
				p.flush(ctx, signal)
			}
		}
	}()
}

// RecordSpan enqueues a sealed span. Never blocks; at capacity the
// oldest span is evicted and counted as dropped.
func (p *Pipeline) RecordSpan(s *Span) {
	if p == nil || s == nil || p.stopped.Load() || !p.cfg.EnableTraces {
		return
	}
	p.spans.Record(s)
	p.maybeKick(p.spans.Len(), p.kickSpans)
}

// RecordMetric enqueues a metric point.
func (p *Pipeline) RecordMetric(m MetricPoint) {
	if p == nil || p.stopped.Load() || !p.cfg.EnableMetrics {
		return
	}
	p.metrics.Record(m)
	p.maybeKick(p.metrics.Len(), p.kickMetrics)
}

// RecordLog enqueues a captured log record.
func (p *Pipeline) RecordLog(l LogRecord) {
	if p == nil || p.stopped.Load() || !p.cfg.EnableLogs {
		return
	}
	p.logs.Record(l)
	p.maybeKick(p.logs.Len(), p.kickLogs)
}

func (p *Pipeline) maybeKick(queued int, kick chan<- struct{}) {
	if queued < p.cfg.BatchSize {
		return
	}
	select {
	case kick <- struct{}{}:
	default:
	}
}

// flush drains a signal's queue into batches and exports them until the
// queue is empty or ctx is canceled.
func (p *Pipeline) flush(ctx context.Context, signal Signal) {
	for ctx.Err() == nil {
		batch := p.nextBatch(signal)
		if batch == nil {
			return
		}
		p.export(ctx, batch)
	}
}

func (p *Pipeline) nextBatch(signal Signal) *Batch {
	switch signal {
	case SignalTraces:
		items := p.spans.Drain(p.cfg.BatchSize)
		if len(items) == 0 {
			return nil
		}
		return &Batch{Signal: SignalTraces, Spans: items}
	case SignalMetrics:
		items := p.metrics.Drain(p.cfg.BatchSize)
		if len(items) == 0 {
			return nil
		}
		return &Batch{Signal: SignalMetrics, Metrics: items}
	default:
		items := p.logs.Drain(p.cfg.BatchSize)
		if len(items) == 0 {
			return nil
		}
		return &Batch{Signal: SignalLogs, Logs: items}
	}
}

// export owns the batch for the duration of the attempt sequence.
// Retryable outcomes are retried with bounded backoff; exhaustion or a
// fatal outcome drops the batch and increments the loss counter.
func (p *Pipeline) export(ctx context.Context, batch *Batch) {
	outcome, attempts := p.retry.Execute(ctx, func(ctx context.Context) Outcome {
		return p.exporter.Send(ctx, batch)
	})
	if attempts > 1 {
		p.exportRetries.Add(int64(attempts - 1))
	}

	switch outcome {
	case OutcomeDelivered:
		p.batchesExported.Add(1)
		p.itemsExported.Add(int64(batch.Len()))
	default:
		p.batchesFailed.Add(1)
		p.itemsLost.Add(int64(batch.Len()))
		failure := outcome.Err()
		if outcome == OutcomeRetryable {
			failure = fmt.Errorf("%w: %v", core.ErrMaxRetriesExceeded, failure)
		}
		if p.errorLimiter.Allow() {
			p.logger.Warn("Dropping telemetry batch", map[string]interface{}{
				"signal":   string(batch.Signal),
				"items":    batch.Len(),
				"attempts": attempts,
				"error":    core.NewOpError("pipeline.export", "export", failure).Error(),
			})
		}
	}
}

// Shutdown stops ingestion, halts the workers, and attempts one final
// flush bounded by the configured grace timeout. Telemetry still queued
// past the timeout is discarded, not retried indefinitely.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	if !p.stopped.CompareAndSwap(false, true) {
		return nil
	}
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ShutdownGrace)
	defer cancel()

	for _, signal := range []Signal{SignalTraces, SignalMetrics, SignalLogs} {
		p.flush(ctx, signal)
	}
	return ctx.Err()
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		SpansDropped:    p.spans.Drops(),
		MetricsDropped:  p.metrics.Drops(),
		LogsDropped:     p.logs.Drops(),
		BatchesExported: p.batchesExported.Load(),
		BatchesFailed:   p.batchesFailed.Load(),
		ItemsExported:   p.itemsExported.Load(),
		ItemsLost:       p.itemsLost.Load(),
		ExportRetries:   p.exportRetries.Load(),
	}
}
