package main

import (
	"flag"
	"fmt"
	"os"
)

// CLIConfig holds command-line configuration. Pipeline settings come from
// the environment (see config package); flags cover logging and diagnostics.
type CLIConfig struct {
	LogLevel    string
	LogFormat   string
	Debug       bool
	ShowVersion bool
	ShowHelp    bool
	Validate    bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	flag.StringVar(&cfg.LogLevel, "log-level",
		getEnv("DIODEFLOW_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: DIODEFLOW_LOG_LEVEL)")

	flag.StringVar(&cfg.LogFormat, "log-format",
		getEnv("DIODEFLOW_LOG_FORMAT", "json"),
		"Log format: json, text (env: DIODEFLOW_LOG_FORMAT)")

	flag.BoolVar(&cfg.Debug, "debug", false, "Enable debug logging")

	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	flag.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	flag.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	flag.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	flag.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	flag.Usage = printDetailedHelp

	flag.Parse()

	if cfg.Debug {
		cfg.LogLevel = "debug"
	}

	return cfg
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}

	validFormats := []string{"json", "text"}
	if !contains(validFormats, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	return nil
}

func printDetailedHelp() {
	_, _ = fmt.Fprintf(os.Stderr, `%s - One-way UDP telemetry receiver

Usage: %s [options]

Options:
`, appName, os.Args[0])
	flag.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Environment:
  LISTEN_PORT          UDP port to listen on (default 9999)
  BROKER_URL           NATS server URL (required)
  QUEUE_NAME           Broker subject for published envelopes (default telemetry)
  BUFFER_CAPACITY      Reliability buffer size in envelopes (default 10000)
  BACKOFF_BASE_MS      Initial reconnect backoff in ms (default 500)
  BACKOFF_MAX_MS       Reconnect backoff cap in ms (default 30000)
  SHUTDOWN_TIMEOUT_MS  Drain window on shutdown in ms (default 5000)
  METRICS_PORT         Prometheus metrics port (default 9090)

Examples:
  # Run against a local broker
  BROKER_URL=nats://localhost:4222 %s

  # Validate environment configuration only
  BROKER_URL=nats://localhost:4222 %s --validate

Version: %s
Build: %s
`, os.Args[0], os.Args[0], Version, BuildTime)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
