// Package config loads pipeline configuration from the environment.
//
// Every value has a default except BROKER_URL, which is mandatory: the
// receiver refuses to start without a broker to hand messages to. Durations
// are configured in milliseconds (BACKOFF_BASE_MS and friends).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/c360/diodeflow/errors"
)

// Defaults for the receiver process.
const (
	DefaultListenPort      = 9999
	DefaultQueueName       = "telemetry"
	DefaultBufferCapacity  = 10000
	DefaultBackoffBase     = 500 * time.Millisecond
	DefaultBackoffMax      = 30 * time.Second
	DefaultShutdownTimeout = 5 * time.Second
	DefaultMetricsPort     = 9090
)

// Defaults for the sender process.
const (
	DefaultTargetAddr   = "127.0.0.1:9999"
	DefaultSendInterval = 5 * time.Second
)

// Receiver holds configuration for the receiver process: the UDP listener,
// the reliability buffer, the broker publisher, and the metrics server.
type Receiver struct {
	ListenPort      int           // LISTEN_PORT
	BrokerURL       string        // BROKER_URL (mandatory)
	QueueName       string        // QUEUE_NAME
	BufferCapacity  int           // BUFFER_CAPACITY
	BackoffBase     time.Duration // BACKOFF_BASE_MS
	BackoffMax      time.Duration // BACKOFF_MAX_MS
	ShutdownTimeout time.Duration // SHUTDOWN_TIMEOUT_MS
	MetricsPort     int           // METRICS_PORT
}

// Sender holds configuration for the sender process.
type Sender struct {
	TargetAddr   string        // TARGET_ADDR, host:port of the receiver
	SendInterval time.Duration // SEND_INTERVAL_MS
}

// ReceiverFromEnv builds a Receiver configuration from the environment and
// validates it. Returns a fatal-class error on a missing mandatory value or
// an unparseable override.
func ReceiverFromEnv() (Receiver, error) {
	cfg := Receiver{
		BrokerURL: os.Getenv("BROKER_URL"),
		QueueName: getEnv("QUEUE_NAME", DefaultQueueName),
	}

	var err error
	if cfg.ListenPort, err = getEnvInt("LISTEN_PORT", DefaultListenPort); err != nil {
		return Receiver{}, err
	}
	if cfg.BufferCapacity, err = getEnvInt("BUFFER_CAPACITY", DefaultBufferCapacity); err != nil {
		return Receiver{}, err
	}
	if cfg.BackoffBase, err = getEnvDuration("BACKOFF_BASE_MS", DefaultBackoffBase); err != nil {
		return Receiver{}, err
	}
	if cfg.BackoffMax, err = getEnvDuration("BACKOFF_MAX_MS", DefaultBackoffMax); err != nil {
		return Receiver{}, err
	}
	if cfg.ShutdownTimeout, err = getEnvDuration("SHUTDOWN_TIMEOUT_MS", DefaultShutdownTimeout); err != nil {
		return Receiver{}, err
	}
	if cfg.MetricsPort, err = getEnvInt("METRICS_PORT", DefaultMetricsPort); err != nil {
		return Receiver{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Receiver{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for values that cannot serve.
func (c Receiver) Validate() error {
	if c.BrokerURL == "" {
		return errors.WrapFatal(errors.ErrMissingConfig,
			"config", "Validate", "BROKER_URL resolution")
	}
	if c.ListenPort < 1 || c.ListenPort > 65535 {
		return invalid("Validate", "LISTEN_PORT", fmt.Sprintf("%d", c.ListenPort))
	}
	if c.MetricsPort < 1 || c.MetricsPort > 65535 {
		return invalid("Validate", "METRICS_PORT", fmt.Sprintf("%d", c.MetricsPort))
	}
	if c.QueueName == "" {
		return invalid("Validate", "QUEUE_NAME", "empty")
	}
	if c.BufferCapacity < 1 {
		return invalid("Validate", "BUFFER_CAPACITY", fmt.Sprintf("%d", c.BufferCapacity))
	}
	if c.BackoffBase <= 0 {
		return invalid("Validate", "BACKOFF_BASE_MS", c.BackoffBase.String())
	}
	if c.BackoffMax < c.BackoffBase {
		return invalid("Validate", "BACKOFF_MAX_MS", c.BackoffMax.String())
	}
	if c.ShutdownTimeout <= 0 {
		return invalid("Validate", "SHUTDOWN_TIMEOUT_MS", c.ShutdownTimeout.String())
	}
	return nil
}

// SenderFromEnv builds a Sender configuration from the environment.
func SenderFromEnv() (Sender, error) {
	cfg := Sender{
		TargetAddr: getEnv("TARGET_ADDR", DefaultTargetAddr),
	}

	var err error
	if cfg.SendInterval, err = getEnvDuration("SEND_INTERVAL_MS", DefaultSendInterval); err != nil {
		return Sender{}, err
	}

	if cfg.TargetAddr == "" {
		return Sender{}, invalid("SenderFromEnv", "TARGET_ADDR", "empty")
	}
	if cfg.SendInterval <= 0 {
		return Sender{}, invalid("SenderFromEnv", "SEND_INTERVAL_MS", cfg.SendInterval.String())
	}
	return cfg, nil
}

func invalid(op, key, value string) error {
	return errors.WrapFatal(
		fmt.Errorf("%w: %s=%s", errors.ErrInvalidConfig, key, value),
		"config", op, "value validation")
}

// getEnv returns the environment value for key, or defaultVal when unset.
func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvInt parses an integer environment value, or returns defaultVal when unset.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, errors.WrapFatal(
			fmt.Errorf("%w: %s=%q is not an integer", errors.ErrInvalidConfig, key, val),
			"config", "getEnvInt", "value parsing")
	}
	return n, nil
}

// getEnvDuration parses a millisecond environment value into a duration.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	ms, err := getEnvInt(key, int(defaultVal/time.Millisecond))
	if err != nil {
		return 0, err
	}
	return time.Duration(ms) * time.Millisecond, nil
}
