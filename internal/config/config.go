// Package config handles environment variable loading for the orchestrator
// and the defaults for the worker instance shape.
package config

import (
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration values for a quantplane invocation.
type Config struct {
	// GCP project that owns the instance and the bucket
	Project string

	// Destination namespace models are pushed under
	Namespace string

	// Status channel bucket name
	Bucket string

	// Source model reference fetched from Hugging Face (e.g. "meta-llama/Llama-3-8B")
	SourceModel string

	// Instance shape
	Zone        string
	MachineType string
	DiskSizeGB  int64
	DiskType    string

	// Platform reaper: the instance is force-deleted after this duration
	MaxLifetime time.Duration

	// Monitoring loop
	PollInterval time.Duration
	PollBudget   int

	// Build actions need a Hugging Face token
	HFToken string

	// Push actions need the ollama signing key (path to the private key file)
	RegistryKeyPath string

	// Optional ollama endpoint override used by pull
	OllamaHost string

	// Optional OTLP collector endpoint; tracing is off when empty
	OTELEndpoint string
}

// SourceModelShortName derives the local model name from the source
// reference: the last path element, lowercased. Empty when no source model
// is configured.
func (c *Config) SourceModelShortName() string {
	if c.SourceModel == "" {
		return ""
	}
	return strings.ToLower(path.Base(c.SourceModel))
}

// Load reads configuration from environment variables. A .env file in the
// working directory is folded in first when present; real environment
// variables win over it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	project := os.Getenv("QUANTPLANE_PROJECT")
	if project == "" {
		return nil, fmt.Errorf("QUANTPLANE_PROJECT is required")
	}

	namespace := os.Getenv("QUANTPLANE_NAMESPACE")
	if namespace == "" {
		return nil, fmt.Errorf("QUANTPLANE_NAMESPACE is required")
	}

	bucket := os.Getenv("QUANTPLANE_BUCKET")
	if bucket == "" {
		return nil, fmt.Errorf("QUANTPLANE_BUCKET is required")
	}

	cfg := &Config{
		Project:         project,
		Namespace:       namespace,
		Bucket:          bucket,
		SourceModel:     os.Getenv("QUANTPLANE_SOURCE_MODEL"),
		Zone:            "us-central1-a",
		MachineType:     "n1-standard-16",
		DiskSizeGB:      200,
		DiskType:        "pd-ssd",
		MaxLifetime:     4 * time.Hour,
		PollInterval:    30 * time.Second,
		PollBudget:      120,
		HFToken:         os.Getenv("HF_TOKEN"),
		RegistryKeyPath: os.Getenv("QUANTPLANE_REGISTRY_KEY"),
		OllamaHost:      os.Getenv("OLLAMA_HOST"),
		OTELEndpoint:    os.Getenv("QUANTPLANE_OTEL_ENDPOINT"),
	}

	if zone := os.Getenv("QUANTPLANE_ZONE"); zone != "" {
		cfg.Zone = zone
	}
	if machineType := os.Getenv("QUANTPLANE_MACHINE_TYPE"); machineType != "" {
		cfg.MachineType = machineType
	}
	if diskType := os.Getenv("QUANTPLANE_DISK_TYPE"); diskType != "" {
		cfg.DiskType = diskType
	}

	if sizeStr := os.Getenv("QUANTPLANE_DISK_SIZE_GB"); sizeStr != "" {
		size, err := strconv.ParseInt(sizeStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid QUANTPLANE_DISK_SIZE_GB: %w", err)
		}
		cfg.DiskSizeGB = size
	}

	if ttlStr := os.Getenv("QUANTPLANE_MAX_LIFETIME"); ttlStr != "" {
		ttl, err := time.ParseDuration(ttlStr)
		if err != nil {
			return nil, fmt.Errorf("invalid QUANTPLANE_MAX_LIFETIME: %w", err)
		}
		cfg.MaxLifetime = ttl
	}

	if intervalStr := os.Getenv("QUANTPLANE_POLL_INTERVAL"); intervalStr != "" {
		interval, err := time.ParseDuration(intervalStr)
		if err != nil {
			return nil, fmt.Errorf("invalid QUANTPLANE_POLL_INTERVAL: %w", err)
		}
		cfg.PollInterval = interval
	}

	if budgetStr := os.Getenv("QUANTPLANE_POLL_BUDGET"); budgetStr != "" {
		budget, err := strconv.Atoi(budgetStr)
		if err != nil {
			return nil, fmt.Errorf("invalid QUANTPLANE_POLL_BUDGET: %w", err)
		}
		cfg.PollBudget = budget
	}

	return cfg, nil
}
