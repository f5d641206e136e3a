package cmd

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"github.com/spf13/viper"
	gce "google.golang.org/api/compute/v1"

	"quantplane/internal/channel"
	"quantplane/internal/compute"
	"quantplane/internal/config"
	"quantplane/internal/logger"
	"quantplane/internal/orchestrator"
)

// newOrchestrator wires config, storage and compute into an orchestrator.
// Package variable so command tests can substitute in-memory fakes.
var newOrchestrator = func(ctx context.Context) (*orchestrator.Orchestrator, *config.Config, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	applyOverrides(cfg)

	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create storage client: %w", err)
	}

	computeService, err := gce.NewService(ctx)
	if err != nil {
		storageClient.Close()
		return nil, nil, nil, fmt.Errorf("create compute service: %w", err)
	}

	log := logger.NewConsole(logger.ParseLevel(viper.GetString("log-level")))
	o := orchestrator.New(
		channel.NewGCS(storageClient, cfg.Project, cfg.Bucket),
		compute.NewGCE(computeService, cfg.Project, cfg.Zone),
		cfg,
		log,
	)
	cleanup := func() { storageClient.Close() }
	return o, cfg, cleanup, nil
}

// applyOverrides folds flag and config-file values over the environment
// configuration. Flags win.
func applyOverrides(cfg *config.Config) {
	if zone := viper.GetString("zone"); zone != "" {
		cfg.Zone = zone
	}
	if mt := viper.GetString("machine-type"); mt != "" {
		cfg.MachineType = mt
	}
}
