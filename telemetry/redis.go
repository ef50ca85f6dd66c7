// Redis instrumentation via the go-redis hook mechanism.
//
// go-redis exposes AddHook rather than a patchable call site, so the
// adapter installs a process-wide hook template and clients opt in
// through InstrumentRedisClient. Hooks fire around every command, which
// gives exact client-span boundaries without wrapping call sites.

package telemetry

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/go-redis/redis/v8"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// installedRedisHook holds the hook built at adapter install time.
// Empty until the registry matched a supported go-redis version.
var installedRedisHook atomic.Value // redis.Hook

// InstrumentRedisClient attaches the installed tracing hook to a
// client. A no-op when the redis adapter was never installed, so
// callers do not need to branch on configuration.
func InstrumentRedisClient(client redis.UniversalClient) {
	if hook, ok := installedRedisHook.Load().(redis.Hook); ok {
		client.AddHook(hook)
	}
}

// NewRedisHook builds a redis.Hook that opens a client span per command
// (and per pipeline). Used directly by applications that manage their
// own hook chains.
func NewRedisHook(tracer *Tracer) redis.Hook {
	return &redisHook{tracer: tracer}
}

type redisHook struct {
	tracer *Tracer
}

func (h *redisHook) BeforeProcess(ctx context.Context, cmd redis.Cmder) (context.Context, error) {
	ctx, span := h.tracer.StartSpan(ctx, "redis "+cmd.Name(), oteltrace.SpanKindClient)
	span.SetAttributes(
		attribute.String("db.system", "redis"),
		attribute.String("db.operation", cmd.Name()),
	)
	return ctx, nil
}

func (h *redisHook) AfterProcess(ctx context.Context, cmd redis.Cmder) error {
	span := SpanFromContext(ctx)
	if span == nil {
		return nil
	}
	// redis.Nil is a cache miss, not a failure.
	if err := cmd.Err(); err != nil && !errors.Is(err, redis.Nil) {
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
	return nil
}

func (h *redisHook) BeforeProcessPipeline(ctx context.Context, cmds []redis.Cmder) (context.Context, error) {
	ctx, span := h.tracer.StartSpan(ctx, "redis pipeline", oteltrace.SpanKindClient)
	span.SetAttributes(
		attribute.String("db.system", "redis"),
		attribute.Int("db.redis.num_cmd", len(cmds)),
	)
	return ctx, nil
}

func (h *redisHook) AfterProcessPipeline(ctx context.Context, cmds []redis.Cmder) error {
	span := SpanFromContext(ctx)
	if span == nil {
		return nil
	}
	var failed error
	for _, cmd := range cmds {
		if err := cmd.Err(); err != nil && !errors.Is(err, redis.Nil) {
			failed = err
			break
		}
	}
	if failed != nil {
		span.RecordError(failed)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
	return nil
}

// redisAdapter activates Redis instrumentation when a supported
// go-redis version is linked into the binary.
type redisAdapter struct{}

// RedisAdapterDescriptor describes the go-redis v8 adapter.
func RedisAdapterDescriptor() (AdapterDescriptor, AdapterFactory) {
	return AdapterDescriptor{
		Name:     "go-redis",
		Module:   "github.com/go-redis/redis/v8",
		Versions: ">= 8.0.0, < 9.0.0",
	}, func() Adapter { return &redisAdapter{} }
}

func (a *redisAdapter) Install(deps AdapterDeps) error {
	installedRedisHook.Store(NewRedisHook(deps.Tracer))
	return nil
}
