package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/computesdk/orchestrator/internal/app"
	"github.com/computesdk/orchestrator/pkg/config"
	"github.com/computesdk/orchestrator/pkg/logger"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logging.Development, cfg.Logging.Level, cfg.Logging.Encoding)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	application, err := app.New(cfg, log)
	if err != nil {
		log.Error("Failed to initialize orchestrator", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- application.Run()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error("Orchestrator error", err)
			os.Exit(1)
		}
	case sig := <-sigCh:
		log.Info("Received signal, shutting down", "signal", sig.String())
		if err := application.Shutdown(); err != nil {
			log.Error("Error during shutdown", err)
			os.Exit(1)
		}
	}
}
