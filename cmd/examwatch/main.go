package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"examwatch/internal/app"
	"examwatch/internal/config"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

// run loads configuration, starts the monitor and blocks until a
// shutdown signal or a fatal startup error.
func run() error {
	// STEP 1: Configuration precedence: file > environment > defaults.
	configPath := os.Getenv("EXAMWATCH_CONFIG_FILE")
	cfg := config.LoadConfigWithPrecedence(configPath)

	// STEP 2: Build the monitor.
	monitor, err := app.NewMonitor(cfg)
	if err != nil {
		return fmt.Errorf("failed to create monitor: %w", err)
	}

	// STEP 3: Signal handling for graceful shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	// STEP 4: Start in background.
	errCh := make(chan error, 1)
	go func() {
		if err := monitor.Start(ctx); err != nil {
			errCh <- err
		}
	}()

	// STEP 5: Wait for a signal or a startup error.
	select {
	case err := <-errCh:
		return fmt.Errorf("monitor error: %w", err)
	case sig := <-signalCh:
		log.Printf("Received signal %v, shutting down gracefully", sig)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := monitor.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		return nil
	}
}
