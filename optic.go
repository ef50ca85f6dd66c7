// Package optic auto-instruments an application with one call:
//
//	err := optic.Init(
//	    core.WithAPIKey("your-key"),
//	    core.WithServiceName("checkout"),
//	)
//
// After Init, supported libraries found in the binary are instrumented,
// log records carry the active trace identifiers, and spans, metrics,
// and logs are batched and delivered to the configured collector.
// Nothing optic does can alter the control flow or return values of the
// instrumented application; every internal failure degrades to a
// counter visible through Stats.
package optic

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/optic-dev/optic-go/core"
	"github.com/optic-dev/optic-go/telemetry"
)

// SDK bundles the engine components wired together by Init.
type SDK struct {
	config      *core.Config
	logger      core.Logger
	pipeline    *telemetry.Pipeline
	tracer      *telemetry.Tracer
	meter       *telemetry.Meter
	interceptor *telemetry.Interceptor
	registry    *telemetry.Registry
	sampler     *telemetry.RuntimeSampler
	appLogger   *zap.Logger
}

var (
	// global holds the singleton SDK. atomic.Value gives lock-free
	// reads on the hot path; it is written once by Init.
	global atomic.Value // *SDK

	initMu sync.Mutex
)

// Init initializes the SDK: validates configuration, starts the
// delivery pipeline, activates auto-instrumentation, and attaches the
// log correlator. It is the only call an application needs.
//
// Init is idempotent - subsequent calls are no-ops returning nil. A
// configuration error is returned before any instrumentation is
// installed, so a failed Init leaves the process untouched.
func Init(opts ...core.Option) error {
	cfg, err := core.NewConfig(opts...)
	if err != nil {
		return err
	}
	return InitWithConfig(cfg)
}

// InitWithConfig initializes the SDK from an already-built Config,
// for embedders that manage configuration themselves.
func InitWithConfig(cfg *core.Config) error {
	initMu.Lock()
	defer initMu.Unlock()

	if Initialized() {
		return nil
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := core.NewProductionLogger("optic", cfg.LogLevel)

	pipeline := telemetry.NewPipeline(cfg, telemetry.NewHTTPExporter(cfg), logger)
	tracer := telemetry.NewTracer(pipeline, cfg.EnableTraces)
	meter := telemetry.NewMeter(pipeline, cfg.EnableMetrics)
	interceptor := telemetry.NewInterceptor(tracer)

	sdk := &SDK{
		config:      cfg,
		logger:      logger,
		pipeline:    pipeline,
		tracer:      tracer,
		meter:       meter,
		interceptor: interceptor,
	}

	sdk.registry = telemetry.NewRegistry(telemetry.AdapterDeps{
		Tracer:      tracer,
		Meter:       meter,
		Interceptor: interceptor,
		Pipeline:    pipeline,
		Config:      cfg,
		Logger:      logger,
	})
	sdk.registry.Register(telemetry.HTTPAdapterDescriptor())
	sdk.registry.Register(telemetry.RedisAdapterDescriptor())

	// The application-facing logger: whatever it logs is also captured
	// into the log pipeline, stamped with ambient trace identifiers.
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(core.ParseLevel(cfg.LogLevel))
	base, zerr := zapCfg.Build()
	if zerr != nil {
		base = zap.NewNop()
	}
	sdk.appLogger = zap.New(telemetry.NewCorrelatedCore(
		base.Core(), pipeline, core.ParseLevel(cfg.LogLevel)))

	pipeline.Start()

	if cfg.AutoInstrument {
		sdk.registry.Activate()
	}
	if cfg.RuntimeMetricsEnabled && cfg.EnableMetrics {
		sdk.sampler = telemetry.NewRuntimeSampler(meter, cfg.RuntimeMetricsInterval)
		sdk.sampler.Start()
	}

	global.Store(sdk)
	logger.Info("optic SDK initialized", map[string]interface{}{
		"service":  cfg.ServiceName,
		"endpoint": cfg.Endpoint,
		"traces":   cfg.EnableTraces,
		"metrics":  cfg.EnableMetrics,
		"logs":     cfg.EnableLogs,
	})
	return nil
}

// Initialized reports whether the SDK has been initialized.
func Initialized() bool {
	sdk, _ := global.Load().(*SDK)
	return sdk != nil
}

// Shutdown flushes buffered telemetry within the configured grace
// timeout and stops all background work. Telemetry still queued past
// the timeout is discarded. Safe to call without a prior Init.
func Shutdown(ctx context.Context) error {
	initMu.Lock()
	defer initMu.Unlock()

	sdk, _ := global.Load().(*SDK)
	if sdk == nil {
		return nil
	}
	if sdk.sampler != nil {
		sdk.sampler.Stop()
	}
	err := sdk.pipeline.Shutdown(ctx)
	global.Store((*SDK)(nil))
	return err
}

// current returns the active SDK or nil.
func current() *SDK {
	sdk, _ := global.Load().(*SDK)
	return sdk
}

// Tracer returns the active tracer. Before Init it returns a disabled
// tracer whose spans are no-ops.
func Tracer() *telemetry.Tracer {
	if sdk := current(); sdk != nil {
		return sdk.tracer
	}
	return telemetry.NewTracer(nil, false)
}

// Meter returns the active meter, or a disabled one before Init.
func Meter() *telemetry.Meter {
	if sdk := current(); sdk != nil {
		return sdk.meter
	}
	return telemetry.NewMeter(nil, false)
}

// Interceptor returns the active interceptor for wrapping arbitrary
// call sites.
func Interceptor() *telemetry.Interceptor {
	if sdk := current(); sdk != nil {
		return sdk.interceptor
	}
	return telemetry.NewInterceptor(telemetry.NewTracer(nil, false))
}

// Logger returns the correlated application logger. Pair it with
// telemetry.LoggerWithContext to stamp trace identifiers:
//
//	optic.LoggerFor(ctx).Info("charge accepted", zap.String("order", id))
func Logger() *zap.Logger {
	if sdk := current(); sdk != nil {
		return sdk.appLogger
	}
	return zap.NewNop()
}

// LoggerFor returns the correlated logger with ctx's trace identifiers
// already attached.
func LoggerFor(ctx context.Context) *zap.Logger {
	return telemetry.LoggerWithContext(ctx, Logger())
}

// WrapZapCore attaches the log correlator to an application-owned zap
// core, for applications that build their own logger.
func WrapZapCore(inner zapcore.Core) zapcore.Core {
	sdk := current()
	if sdk == nil {
		return inner
	}
	return telemetry.NewCorrelatedCore(inner, sdk.pipeline, core.ParseLevel(sdk.config.LogLevel))
}

// Middleware wraps an http.Handler with server-side tracing, honoring
// the configured excluded URL patterns.
func Middleware(next http.Handler) http.Handler {
	sdk := current()
	if sdk == nil {
		return next
	}
	return telemetry.Middleware(telemetry.HTTPOptions{
		Tracer:       sdk.tracer,
		Meter:        sdk.meter,
		ExcludedURLs: sdk.config.ExcludedURLs,
	})(next)
}

// HTTPClient returns a client whose outbound requests are traced and
// carry propagation headers.
func HTTPClient() *http.Client {
	sdk := current()
	if sdk == nil {
		return &http.Client{}
	}
	return telemetry.NewHTTPClient(sdk.tracer, sdk.meter)
}

// InstrumentRedis attaches command tracing to a go-redis client. A
// no-op when the redis adapter is not installed.
func InstrumentRedis(client redis.UniversalClient) {
	telemetry.InstrumentRedisClient(client)
}

// Stats returns the pipeline's self-observability counters.
func Stats() telemetry.Stats {
	if sdk := current(); sdk != nil {
		return sdk.pipeline.Stats()
	}
	return telemetry.Stats{}
}
