// Command crossarb is the entry point for the cross-exchange arbitrage
// engine. It loads configuration, validates it, wires dependencies, sets up
// signal handling, and starts the application in the configured mode.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mlajoie/crossarb/internal/app"
	"github.com/mlajoie/crossarb/internal/config"
	"github.com/mlajoie/crossarb/internal/crypto"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	encryptIn := flag.String("encrypt-creds", "", "encrypt the plaintext JSON credentials file at this path and exit")
	encryptOut := flag.String("encrypt-creds-out", "credentials.enc.json", "output path for -encrypt-creds")
	flag.Parse()

	// Setup structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if *encryptIn != "" {
		if err := encryptCredentials(*encryptIn, *encryptOut); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
		logger.Info("credentials encrypted", slog.String("path", *encryptOut))
		return
	}

	// Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// Set log level from config.
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// Validate configuration.
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("crossarb starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
	)

	// Create the application.
	application := app.New(cfg, logger)
	defer application.Close()

	// Setup signal handling for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Run the application.
	if err := application.Run(ctx); err != nil {
		// context.Canceled is expected on clean shutdown.
		if err == context.Canceled {
			logger.Info("application shut down gracefully")
		} else {
			logger.Error("application exited with error",
				slog.String("error", err.Error()),
			)
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
	}

	logger.Info("crossarb stopped")
}

// encryptCredentials reads a plaintext JSON file of per-venue credentials,
// encrypts it with the password from CROSSARB_CREDENTIALS_PASSWORD, and
// writes the result to outPath.
func encryptCredentials(inPath, outPath string) error {
	password := os.Getenv("CROSSARB_CREDENTIALS_PASSWORD")
	if password == "" {
		return fmt.Errorf("CROSSARB_CREDENTIALS_PASSWORD must be set")
	}

	data, err := os.ReadFile(inPath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", inPath, err)
	}

	var creds crypto.CredentialSet
	if err := json.Unmarshal(data, &creds); err != nil {
		return fmt.Errorf("parsing %s: %w", inPath, err)
	}

	blob, err := crypto.EncryptCredentials(creds, password)
	if err != nil {
		return err
	}

	if err := os.WriteFile(outPath, blob, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", outPath, err)
	}
	return nil
}
