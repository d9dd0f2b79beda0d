// Package bootstrap runs a scribe service through its lifecycle: validated
// config, component start in registration order, configure callbacks, then a
// blocking wait for SIGINT/SIGTERM followed by graceful shutdown.
//
//	app, err := bootstrap.NewApp(cfg)
//	app.RegisterComponent(telemetry)
//	app.RegisterComponent(httpServer)
//	app.OnConfigure(func(ctx context.Context, a *bootstrap.App[*Config]) error {
//	    return mountRoutes(a)
//	})
//	err = app.Run(ctx)
package bootstrap
