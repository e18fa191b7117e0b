// Package app wires the orchestrator daemon: configuration, logging, the
// cluster client, both managers, and the health/metrics endpoint.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/computesdk/orchestrator/internal/metrics"
	"github.com/computesdk/orchestrator/pkg/compute"
	"github.com/computesdk/orchestrator/pkg/config"
	"github.com/computesdk/orchestrator/pkg/kubernetes"
	"github.com/computesdk/orchestrator/pkg/logger"
	"github.com/computesdk/orchestrator/pkg/preset"
)

// App represents the orchestrator daemon
type App struct {
	config    *config.Config
	logger    *logger.Logger
	server    *http.Server
	k8sClient *kubernetes.Client
	presets   preset.Manager
	computes  compute.Manager
}

// New creates a new daemon instance
func New(cfg *config.Config, log *logger.Logger) (*App, error) {
	k8sClient, err := kubernetes.New(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kubernetes client: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.New(registry)

	presets, err := preset.New(log, k8sClient.Pods(), k8sClient.Deployments(), recorder, &preset.Config{
		Namespace: cfg.Kubernetes.Namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize preset registry: %w", err)
	}

	computes, err := compute.New(log, k8sClient.Pods(), k8sClient.Deployments(), presets, recorder, &compute.Config{
		Namespace:            cfg.Kubernetes.Namespace,
		CreateTimeout:        cfg.Orchestrator.CreateTimeout,
		PollInterval:         cfg.Orchestrator.PollInterval,
		CacheRefreshInterval: cfg.Orchestrator.CacheRefreshInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize compute manager: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: mux,
	}

	return &App{
		config:    cfg,
		logger:    log,
		server:    server,
		k8sClient: k8sClient,
		presets:   presets,
		computes:  computes,
	}, nil
}

// Presets returns the preset registry.
func (a *App) Presets() preset.Manager {
	return a.presets
}

// Computes returns the compute lifecycle manager.
func (a *App) Computes() compute.Manager {
	return a.computes
}

// Run starts the daemon and blocks until the HTTP server exits
func (a *App) Run() error {
	if err := a.computes.Start(); err != nil {
		return fmt.Errorf("failed to start compute manager: %w", err)
	}

	a.logger.Info("Starting HTTP server", "address", a.server.Addr)
	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the daemon
func (a *App) Shutdown() error {
	a.logger.Info("Shutting down orchestrator")

	ctx, cancel := context.WithTimeout(context.Background(), a.config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Error("HTTP server shutdown error", err)
	}

	if err := a.computes.Stop(); err != nil {
		a.logger.Error("Compute manager shutdown error", err)
	}

	a.logger.Info("Shutdown complete")
	return nil
}
