package optic

import (
	"context"

	"go.uber.org/fx"

	"github.com/optic-dev/optic-go/core"
)

// FXModule integrates the SDK into an Fx-based application: the SDK is
// initialized on start and flushed on stop through the Fx lifecycle.
//
// Dependencies required by this module:
// - A *core.Config instance must be available in the dependency
//   injection container.
//
// Usage:
//
//	app := fx.New(
//	    optic.FXModule,
//	    fx.Provide(func() *core.Config {
//	        cfg := core.DefaultConfig()
//	        cfg.APIKey = "your-key"
//	        cfg.ServiceName = "checkout"
//	        return cfg
//	    }),
//	)
var FXModule = fx.Module("optic",
	fx.Invoke(RegisterLifecycle),
)

// RegisterLifecycle wires SDK init and shutdown into the Fx lifecycle.
// Invoked automatically by FXModule.
func RegisterLifecycle(lc fx.Lifecycle, cfg *core.Config) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return InitWithConfig(cfg)
		},
		OnStop: func(ctx context.Context) error {
			return Shutdown(ctx)
		},
	})
}
