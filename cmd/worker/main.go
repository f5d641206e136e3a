// Package main is the entry point for the quantplane worker.
// The worker runs on the provisioned instance, executes the quantization
// pipeline once and powers the instance off when it is done.
package main

import (
	"bytes"
	"context"
	"log"
	"os"

	"cloud.google.com/go/storage"

	"quantplane/internal/channel"
	"quantplane/internal/job"
	"quantplane/internal/logger"
	"quantplane/internal/observability"
	"quantplane/internal/toolchain"
	"quantplane/internal/worker"
)

func main() {
	ctx := context.Background()

	// Everything logged here also accumulates into the buffer the agent
	// uploads to the status channel when the run ends.
	var logBuf bytes.Buffer
	logg := logger.NewTee(&logBuf)

	shutdownTracer, err := observability.Init(ctx, "quantplane-worker", os.Getenv("QUANTPLANE_OTEL_ENDPOINT"))
	if err != nil {
		log.Fatalf("Failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Printf("Failed to shutdown tracer: %v", err)
		}
	}()

	// The status channel bucket and project come from the platform, not
	// from flags: the instance carries everything the worker needs.
	params := worker.NewMetadataSource()
	bucket, err := params.Get(ctx, job.MetaBucket)
	if err != nil || bucket == "" {
		log.Fatalf("Failed to read bucket from instance metadata: %v", err)
	}
	project, err := params.ProjectID(ctx)
	if err != nil {
		log.Fatalf("Failed to read project from instance metadata: %v", err)
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		log.Fatalf("Failed to create storage client: %v", err)
	}
	defer client.Close()

	agent := worker.New(
		channel.NewGCS(client, project, bucket),
		toolchain.NewOllama("", logg),
		params,
		nil,
		worker.Config{
			WorkDir:   "/var/lib/quantplane",
			ModelsDir: "/usr/share/ollama/.ollama/models",
			KeyDir:    "/root/.ollama",
		},
		logg,
		&logBuf,
	)

	if err := agent.Run(ctx); err != nil {
		// The fail marker and log upload already happened inside Run; the
		// exit code is only visible in the serial console.
		os.Exit(1)
	}
}
