package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/vyrodovalexey/reride-fetch/internal/config"
	"github.com/vyrodovalexey/reride-fetch/internal/observability"
)

// runProxy runs the proxy and handles shutdown.
func runProxy(app *application, configPath string, followLogLevel bool, logger observability.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app.layer.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.server.Start()
	}()

	watcher := startConfigWatcher(app, configPath, followLogLevel, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", observability.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", observability.Error(err))
		}
	}

	app.shutdown(watcher)
}

// shutdown stops the components in order: config watcher, HTTP server,
// cache layer (janitor and backend), tracer.
func (app *application) shutdown(watcher *config.Watcher) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.server.ShutdownTimeout())
	defer cancel()

	if watcher != nil {
		_ = watcher.Stop()
	}

	if err := app.server.Stop(shutdownCtx); err != nil {
		app.logger.Error("failed to stop server gracefully", observability.Error(err))
	}

	if err := app.layer.Close(); err != nil {
		app.logger.Error("failed to close cache layer", observability.Error(err))
	}

	if err := app.tracer.Shutdown(shutdownCtx); err != nil {
		app.logger.Error("failed to shutdown tracer", observability.Error(err))
	}

	app.logger.Info("rerideproxy stopped")
}
