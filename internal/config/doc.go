// Package config provides configuration types and loading for the
// ReRide fetch proxy.
//
// This package defines the configuration model, YAML loading with
// environment variable substitution, validation, and file watching for
// hot-reload support.
//
// # Features
//
//   - YAML configuration file loading
//   - Environment variable substitution with ${VAR:-default} syntax
//   - Configuration validation with detailed error reporting
//   - File watching for configuration hot-reload
//   - Server, upstream, cache, and observability configuration
//
// # Configuration Loading
//
// Load configuration from a YAML file:
//
//	cfg, err := config.LoadConfig("rerideproxy.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := config.ValidateConfig(cfg); err != nil {
//	    log.Fatal(err)
//	}
//
// # File Watching
//
// Watch for configuration changes:
//
//	watcher, err := config.NewWatcher("rerideproxy.yaml", func(cfg *config.Config) {
//	    // apply the new configuration
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer watcher.Stop()
//	watcher.Start(ctx)
package config
