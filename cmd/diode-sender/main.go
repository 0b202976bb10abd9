// Package main implements the transmitting end of the diodeflow pipeline: a
// telemetry source that emits one envelope datagram per reading at a fixed
// interval. It receives nothing back and keeps emitting regardless of
// receiver state.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/c360/diodeflow/config"
	"github.com/c360/diodeflow/sender"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "diode-sender"
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

	cfg, err := config.SenderFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("Starting diode sender",
		"version", Version,
		"target", cfg.TargetAddr,
		"interval", cfg.SendInterval)

	s, err := sender.New(cfg.TargetAddr,
		sender.WithLogger(logger.With("component", "sender")))
	if err != nil {
		return fmt.Errorf("create sender: %w", err)
	}
	defer func() { _ = s.Close() }()

	signalCtx, signalCancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if cliCfg.Stdin {
		err = emitFromStdin(signalCtx, s)
	} else {
		err = emitSynthetic(signalCtx, s, cfg.SendInterval, cliCfg.Count)
	}
	if err != nil {
		return err
	}

	stats := s.Stats()
	slog.Info("Diode sender shutdown complete",
		"sent", stats.Sent,
		"send_errors", stats.SendErrors)
	return nil
}

// reading is the synthetic telemetry payload, one JSON object per datagram.
type reading struct {
	Device     string    `json:"device"`
	Metric     string    `json:"metric"`
	Value      float64   `json:"value"`
	Unit       string    `json:"unit"`
	CapturedAt time.Time `json:"captured_at"`
}

// emitSynthetic sends a randomized temperature reading every interval until
// interrupted, or until count readings when count > 0.
func emitSynthetic(ctx context.Context, s *sender.Sender, interval time.Duration, count int) error {
	device := "sensor-" + uuid.NewString()[:8]
	slog.Info("Emitting synthetic telemetry", "device", device)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	emitted := 0
	for {
		payload, err := json.Marshal(reading{
			Device:     device,
			Metric:     "temperature",
			Value:      20.0 + rand.Float64()*5.0,
			Unit:       "celsius",
			CapturedAt: time.Now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("marshal reading: %w", err)
		}

		s.Emit(payload)
		emitted++
		if count > 0 && emitted >= count {
			return nil
		}

		select {
		case <-ctx.Done():
			slog.Info("Received shutdown signal")
			return nil
		case <-ticker.C:
		}
	}
}

// emitFromStdin sends each input line as one datagram payload.
func emitFromStdin(ctx context.Context, s *sender.Sender) error {
	slog.Info("Emitting from stdin, one datagram per line")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			slog.Info("Received shutdown signal")
			return nil
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		payload := make([]byte, len(line))
		copy(payload, line)
		s.Emit(payload)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	return nil
}
