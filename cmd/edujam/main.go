package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"edujam/internal/app"
	"edujam/internal/config"
)

const shutdownTimeout = 30 * time.Second

// FUNCTIONAL DISCOVERY: Graceful shutdown on SIGINT/SIGTERM closes every live
// session before the chat history database
func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

// ARCHITECTURAL DISCOVERY: Separate run function enables testing and error handling
func run(args []string) error {
	flags := flag.NewFlagSet("edujam", flag.ContinueOnError)
	dotEnv := flags.String("env", ".env", "path to a .env file (missing is fine)")
	configPath := flags.String("config", "", "path to a JSON or YAML config file (overrides EDUJAM_CONFIG_FILE)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	// STEP 1: Load configuration (defaults < .env < environment < file)
	cfg, err := config.Load(*dotEnv, *configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// STEP 2: Create application with configuration
	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// STEP 3: Start serving
	if err := application.Start(ctx); err != nil {
		_ = application.Stop(context.Background())
		return fmt.Errorf("application error: %w", err)
	}

	// STEP 4: Wait for a shutdown signal
	<-ctx.Done()
	log.Printf("Received shutdown signal, shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := application.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}
