// Package main is the entry point for the gateway.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/svcgateway/svcgw/internal/config"
	"github.com/svcgateway/svcgw/internal/observability"
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
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	logger := initLogger(flags)
	defer func() { _ = logger.Sync() }()

	cfg := loadConfig(flags.configPath, logger)

	app, err := newApplication(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize gateway", zap.Error(err))
	}

	run(app, flags.configPath, logger)
}

// parseFlags parses command line flags.
func parseFlags() cliFlags {
	configPath := flag.String("config", getEnvOrDefault("GATEWAY_CONFIG_PATH", "configs/gateway.yaml"),
		"Path to configuration file")
	logLevel := flag.String("log-level", getEnvOrDefault("GATEWAY_LOG_LEVEL", "info"),
		"Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", getEnvOrDefault("GATEWAY_LOG_FORMAT", "json"),
		"Log format (json, console)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		configPath:  *configPath,
		logLevel:    *logLevel,
		logFormat:   *logFormat,
		showVersion: *showVersion,
	}
}

// printVersion prints version information.
func printVersion() {
	fmt.Printf("svcgw version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// initLogger initializes the logger.
func initLogger(flags cliFlags) *zap.Logger {
	logger, err := observability.NewZapLogger(observability.LogConfig{
		Level:  flags.logLevel,
		Format: flags.logFormat,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	observability.SetGlobalLogger(observability.WrapZap(logger))
	return logger
}

// loadConfig loads and validates the configuration.
func loadConfig(configPath string, logger *zap.Logger) *config.GatewayConfig {
	logger.Info("starting svcgw",
		zap.String("version", version),
		zap.String("config", configPath),
	)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	if err := config.ValidateConfig(cfg); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	logger.Info("configuration loaded",
		zap.Int("services", len(cfg.Services)),
		zap.Bool("cache", cfg.Cache.Enabled),
		zap.String("rateLimitStore", cfg.RateLimit.Store),
	)

	return cfg
}

// run starts the application and blocks until a shutdown signal.
func run(app *application, configPath string, logger *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app.Start(ctx)

	watcher := startConfigWatcher(app, configPath, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("server stopped unexpectedly", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if watcher != nil {
		_ = watcher.Stop()
	}

	app.Stop(shutdownCtx)

	logger.Info("gateway stopped")
}

// startConfigWatcher starts the configuration watcher. Most settings
// require a restart; the watcher logs changes so operators notice.
func startConfigWatcher(app *application, configPath string, logger *zap.Logger) *config.Watcher {
	watcher, err := config.NewWatcher(configPath, func(newCfg *config.GatewayConfig) {
		logger.Info("configuration changed")
		app.Reload(newCfg)
	}, config.WithWatcherLogger(observability.WrapZap(logger)))
	if err != nil {
		logger.Warn("failed to create config watcher", zap.Error(err))
		return nil
	}

	if err := watcher.Start(context.Background()); err != nil {
		logger.Warn("failed to start config watcher", zap.Error(err))
	}

	return watcher
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
