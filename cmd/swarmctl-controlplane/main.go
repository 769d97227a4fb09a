// Copyright 2026 The Swarmctl Authors
// SPDX-License-Identifier: Apache-2.0

// Swarmctl-controlplane is the control plane binary: it wires together
// the Registry, Identity Adapter, Orchestrator Driver, Control Core,
// and Edge Proxy into one running process, serving the public API on
// one listener and the agent-pod-facing heartbeat endpoint on a
// second, internal-only listener.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/auraswarm/swarmctl/internal/config"
	"github.com/auraswarm/swarmctl/internal/edge"
	"github.com/auraswarm/swarmctl/internal/identity"
	"github.com/auraswarm/swarmctl/internal/lifecycle"
	"github.com/auraswarm/swarmctl/internal/orchestrator"
	"github.com/auraswarm/swarmctl/internal/registry"
	"github.com/auraswarm/swarmctl/lib/clock"
	"github.com/auraswarm/swarmctl/lib/process"
	"github.com/auraswarm/swarmctl/lib/service"
	"github.com/auraswarm/swarmctl/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath      string
		podTemplatePath string
		showVersion     bool
	)
	flag.StringVar(&configPath, "config", "", "path to the swarmctl config file (defaults to $SWARMCTL_CONFIG)")
	flag.StringVar(&podTemplatePath, "pod-template", "", "path to the JSONC pod template file (required)")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("swarmctl-controlplane %s\n", version.Info())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if podTemplatePath == "" {
		return fmt.Errorf("--pod-template is required")
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := clock.Real()

	store, err := registry.Open(registry.Config{
		Path:     cfg.Registry.DatabasePath,
		PoolSize: cfg.Registry.PoolSize,
		Clock:    clk,
		Logger:   logger.With("component", "registry"),
	})
	if err != nil {
		return fmt.Errorf("opening registry: %w", err)
	}
	defer store.Close()

	fetcher := identity.NewHTTPKeyFetcher(cfg.Identity.KeysEndpoint, nil)
	verifier, err := identity.NewVerifier(identity.Config{
		Fetcher:          fetcher,
		Clock:            clk,
		ExpectedIssuer:   cfg.Identity.ExpectedIssuer,
		ExpectedAudience: cfg.Identity.ExpectedAudience,
	})
	if err != nil {
		return fmt.Errorf("constructing identity verifier: %w", err)
	}

	template, err := orchestrator.LoadTemplateConfig(podTemplatePath)
	if err != nil {
		return fmt.Errorf("loading pod template: %w", err)
	}

	scheduler := orchestrator.NewHTTPScheduler(cfg.Orchestrator.APIBaseURL, *template, nil)
	driver, err := orchestrator.NewDriver(orchestrator.Config{
		Scheduler: scheduler,
		Clock:     clk,
		Logger:    logger.With("component", "orchestrator"),
	})
	if err != nil {
		return fmt.Errorf("constructing orchestrator driver: %w", err)
	}

	core, err := lifecycle.NewCore(lifecycle.Config{
		Registry:          store,
		Driver:            driver,
		Clock:             clk,
		Logger:            logger.With("component", "lifecycle"),
		MaxAgentsPerOwner: cfg.Lifecycle.MaxAgentsPerOwner,
		WakeTimeout:       cfg.Lifecycle.WakeTimeout(),
		IdleTimeout:       cfg.Lifecycle.IdleTimeout(),
	})
	if err != nil {
		return fmt.Errorf("constructing control core: %w", err)
	}

	edgeServer, err := edge.NewServer(edge.Config{
		Core:                   core,
		Verifier:               verifier,
		Clock:                  clk,
		Logger:                 logger.With("component", "edge"),
		MaxConnectionsPerOwner: cfg.Edge.MaxConnectionsPerOwner,
		HealthVersion:          version.Short(),
	})
	if err != nil {
		return fmt.Errorf("constructing edge server: %w", err)
	}

	reconciler := orchestrator.NewReconciler(driver, store, logger.With("component", "reconciler"))

	publicServer := service.NewHTTPServer(service.HTTPServerConfig{
		Address: cfg.Edge.ListenAddress,
		Handler: edgeServer.Handler(),
		Logger:  logger.With("listener", "public"),
	})
	internalServer := service.NewHTTPServer(service.HTTPServerConfig{
		Address: cfg.Edge.InternalListenAddress,
		Handler: edgeServer.InternalHandler(),
		Logger:  logger.With("listener", "internal"),
	})

	done := make(chan struct{})
	go func() {
		reconciler.Run(ctx)
		close(done)
	}()
	go core.RunIdleDetector(ctx)

	publicDone := make(chan error, 1)
	go func() { publicDone <- publicServer.Serve(ctx) }()
	internalDone := make(chan error, 1)
	go func() { internalDone <- internalServer.Serve(ctx) }()

	logger.Info("swarmctl-controlplane running",
		"environment", cfg.Environment,
		"public_address", cfg.Edge.ListenAddress,
		"internal_address", cfg.Edge.InternalListenAddress,
	)

	<-ctx.Done()
	logger.Info("shutting down")

	if err := <-publicDone; err != nil {
		logger.Error("public listener error", "error", err)
	}
	if err := <-internalDone; err != nil {
		logger.Error("internal listener error", "error", err)
	}
	<-done

	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
