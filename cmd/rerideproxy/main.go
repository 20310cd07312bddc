// Package main is the entry point for the ReRide fetch proxy.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/vyrodovalexey/reride-fetch/internal/config"
	"github.com/vyrodovalexey/reride-fetch/internal/observability"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	showVersion bool
}

func main() {
	flags := parseFlags(flag.CommandLine, os.Args[1:])

	if flags.showVersion {
		printVersion()
		return
	}

	logger := initLogger(flags)
	defer func() { _ = logger.Sync() }()

	cfg := loadAndValidateConfig(flags.configPath, logger)
	if flags.logLevel == "" {
		applyLogLevel(logger, cfg.Observability.Logging.Level)
	}

	app, err := initApplication(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize application", observability.Error(err))
	}

	runProxy(app, flags.configPath, flags.logLevel == "", logger)
}

// parseFlags parses command line flags. An empty log level means the level
// from the configuration file is used and followed on reload.
func parseFlags(fs *flag.FlagSet, args []string) cliFlags {
	configPath := fs.String("config", getEnvOrDefault("RERIDE_CONFIG_PATH", "configs/rerideproxy.yaml"),
		"Path to configuration file")
	logLevel := fs.String("log-level", getEnvOrDefault("RERIDE_LOG_LEVEL", ""),
		"Log level (debug, info, warn, error); overrides the configuration file")
	logFormat := fs.String("log-format", getEnvOrDefault("RERIDE_LOG_FORMAT", "json"),
		"Log format (json, console)")
	showVersion := fs.Bool("version", false, "Show version information")
	_ = fs.Parse(args)

	return cliFlags{
		configPath:  *configPath,
		logLevel:    *logLevel,
		logFormat:   *logFormat,
		showVersion: *showVersion,
	}
}

// printVersion prints version information.
func printVersion() {
	fmt.Printf("rerideproxy version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// initLogger initializes the logger.
func initLogger(flags cliFlags) observability.Logger {
	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  flags.logLevel,
		Format: flags.logFormat,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

// loadAndValidateConfig loads and validates the configuration.
func loadAndValidateConfig(configPath string, logger observability.Logger) *config.Config {
	logger.Info("starting rerideproxy",
		observability.String("version", version),
		observability.String("config", configPath),
	)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", observability.Error(err))
	}

	if err := config.ValidateConfig(cfg); err != nil {
		logger.Fatal("invalid configuration", observability.Error(err))
	}

	cacheType := "disabled"
	if !cfg.Cache.IsEmpty() {
		cacheType = cfg.Cache.Type
	}

	logger.Info("configuration loaded",
		observability.String("address", cfg.Server.Address),
		observability.String("upstream", cfg.Upstream.BaseURL),
		observability.String("cache", cacheType),
	)

	return cfg
}

// applyLogLevel changes the logger level, logging an invalid level instead
// of failing.
func applyLogLevel(logger observability.Logger, level string) {
	if level == "" {
		return
	}
	if err := logger.SetLevel(level); err != nil {
		logger.Warn("ignoring invalid log level",
			observability.String("level", level),
			observability.Error(err))
	}
}
