package main

import (
	"context"

	"github.com/vyrodovalexey/reride-fetch/internal/config"
	"github.com/vyrodovalexey/reride-fetch/internal/observability"
)

// applyReload applies the settings of a reloaded configuration that can
// change without a restart: the cache default TTL and, unless pinned on
// the command line, the log level. Other changes need a restart.
func (app *application) applyReload(newCfg *config.Config, followLogLevel bool) {
	app.logger.Info("configuration changed, applying")

	if followLogLevel {
		applyLogLevel(app.logger, newCfg.Observability.Logging.Level)
	}

	if !newCfg.Cache.IsEmpty() && newCfg.Cache.TTL > 0 {
		if !app.layer.SetDefaultTTL(newCfg.Cache.TTL.Duration()) {
			app.logger.Debug("cache backend does not support TTL changes")
		}
	}

	if newCfg.Upstream.BaseURL != app.config.Upstream.BaseURL ||
		newCfg.Server.Address != app.config.Server.Address {
		app.logger.Warn("upstream or listen address changed; restart required")
	}
}

// startConfigWatcher starts the configuration watcher.
func startConfigWatcher(
	app *application,
	configPath string,
	followLogLevel bool,
	logger observability.Logger,
) *config.Watcher {
	watcher, err := config.NewWatcher(configPath, func(newCfg *config.Config) {
		app.applyReload(newCfg, followLogLevel)
	}, config.WithLogger(logger))
	if err != nil {
		logger.Warn("failed to create config watcher", observability.Error(err))
		return nil
	}

	if err := watcher.Start(context.Background()); err != nil {
		logger.Warn("failed to start config watcher", observability.Error(err))
		_ = watcher.Stop()
		return nil
	}

	return watcher
}
