// Package main implements the receiving end of the diodeflow pipeline: a UDP
// listener feeding a reliability buffer that a publisher drains into NATS
// JetStream. The link is one-way; nothing here ever writes back to the
// sender.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/c360/diodeflow/config"
	"github.com/c360/diodeflow/listener"
	"github.com/c360/diodeflow/metric"
	"github.com/c360/diodeflow/natsclient"
	"github.com/c360/diodeflow/pkg/buffer"
	"github.com/c360/diodeflow/pkg/retry"
	"github.com/c360/diodeflow/publisher"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "diode-receiver"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("Starting diode receiver",
		"version", Version,
		"build_time", BuildTime)

	cfg, err := config.ReceiverFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	slog.Info("Configuration loaded",
		"listen_port", cfg.ListenPort,
		"broker_url", cfg.BrokerURL,
		"queue", cfg.QueueName,
		"buffer_capacity", cfg.BufferCapacity,
		"metrics_port", cfg.MetricsPort)

	registry := metric.NewMetricsRegistry()
	core := registry.CoreMetrics()

	// Reliability buffer shared by listener (producer) and publisher
	// (consumer). DropOldest: under sustained outage the freshest telemetry
	// wins.
	buf, err := buffer.NewCircularBuffer[publisher.Item](cfg.BufferCapacity,
		buffer.WithOverflowPolicy[publisher.Item](buffer.DropOldest),
		buffer.WithDropCallback[publisher.Item](func(item publisher.Item) {
			core.RecordBufferDrop()
			slog.Debug("buffer evicted oldest envelope", "seq", item.Envelope.Seq)
		}),
		buffer.WithMetrics[publisher.Item](registry, "reliability"),
	)
	if err != nil {
		return fmt.Errorf("create buffer: %w", err)
	}

	natsClient, err := natsclient.NewClient(cfg.BrokerURL,
		natsclient.WithLogger(slogAdapter{logger.With("component", "natsclient")}),
		natsclient.WithName(appName),
	)
	if err != nil {
		return fmt.Errorf("create NATS client: %w", err)
	}

	broker := publisher.NewNATSBroker(natsClient, cfg.QueueName, strings.ToUpper(cfg.QueueName))

	pub, err := publisher.New(publisher.Deps{
		Buffer:   buf,
		Broker:   broker,
		Metrics:  core,
		Registry: registry,
		Logger:   logger.With("component", "publisher"),
		Backoff: retry.Config{
			InitialDelay: cfg.BackoffBase,
			MaxDelay:     cfg.BackoffMax,
			Multiplier:   2.0,
			AddJitter:    true,
		},
	})
	if err != nil {
		return fmt.Errorf("create publisher: %w", err)
	}

	lst, err := listener.New(listener.Deps{
		Port:     cfg.ListenPort,
		Buffer:   buf,
		Metrics:  core,
		Registry: registry,
		Logger:   logger.With("component", "listener", "port", cfg.ListenPort),
	})
	if err != nil {
		return fmt.Errorf("create listener: %w", err)
	}

	metricsServer := metric.NewServer(cfg.MetricsPort, "/metrics", registry)
	go func() {
		if err := metricsServer.Start(); err != nil {
			slog.Error("Metrics server failed", "error", err)
		}
	}()

	signalCtx, signalCancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := pub.Start(); err != nil {
		return fmt.Errorf("start publisher: %w", err)
	}

	if err := lst.Start(signalCtx); err != nil {
		// Make sure the publisher goroutine does not outlive us
		_ = pub.Stop(time.Second)
		return fmt.Errorf("start listener: %w", err)
	}

	slog.Info("Diode receiver started",
		"listen_port", cfg.ListenPort,
		"metrics_port", cfg.MetricsPort)

	<-signalCtx.Done()
	slog.Info("Received shutdown signal")

	return shutdown(lst, pub, buf, metricsServer, cfg.ShutdownTimeout)
}

// shutdown stops intake first so the drain flushes a quiescent buffer, then
// drains the publisher, then tears down the ancillary pieces.
func shutdown(
	lst *listener.Listener,
	pub *publisher.Publisher,
	buf buffer.Buffer[publisher.Item],
	metricsServer *metric.Server,
	timeout time.Duration,
) error {
	if err := lst.Stop(timeout); err != nil {
		slog.Error("Listener stop failed", "error", err)
	}

	if err := pub.Stop(timeout); err != nil {
		slog.Error("Publisher stop failed", "error", err)
	}

	_ = buf.Close()

	if err := metricsServer.Stop(); err != nil {
		slog.Error("Metrics server stop failed", "error", err)
	}

	slog.Info("Diode receiver shutdown complete")
	return nil
}

// slogAdapter bridges slog to the natsclient Logger interface.
type slogAdapter struct {
	l *slog.Logger
}

func (a slogAdapter) Printf(format string, args ...any) {
	a.l.Info(fmt.Sprintf(format, args...))
}

func (a slogAdapter) Errorf(format string, args ...any) {
	a.l.Error(fmt.Sprintf(format, args...))
}

func (a slogAdapter) Debugf(format string, args ...any) {
	a.l.Debug(fmt.Sprintf(format, args...))
}
