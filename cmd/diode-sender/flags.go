package main

import (
	"flag"
	"fmt"
	"os"
)

// CLIConfig holds command-line configuration. The target address and send
// interval come from the environment (see config package).
type CLIConfig struct {
	LogLevel    string
	LogFormat   string
	Debug       bool
	Stdin       bool
	Count       int
	ShowVersion bool
	ShowHelp    bool
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

	flag.BoolVar(&cfg.Stdin, "stdin", false,
		"Read payloads from stdin, one datagram per line, instead of synthetic readings")

	flag.IntVar(&cfg.Count, "count", 0,
		"Emit this many synthetic readings then exit, 0 for unlimited")

	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	flag.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	flag.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	flag.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")

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

	if cfg.Count < 0 {
		return fmt.Errorf("invalid count: %d", cfg.Count)
	}

	return nil
}

func printDetailedHelp() {
	_, _ = fmt.Fprintf(os.Stderr, `%s - One-way UDP telemetry sender

Usage: %s [options]

Options:
`, appName, os.Args[0])
	flag.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Environment:
  TARGET_ADDR       Receiver address as host:port (default 127.0.0.1:9999)
  SEND_INTERVAL_MS  Interval between synthetic readings in ms (default 5000)

Examples:
  # Emit synthetic readings every second
  SEND_INTERVAL_MS=1000 %s

  # Pipe existing telemetry through the diode
  tail -f readings.jsonl | %s --stdin

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
