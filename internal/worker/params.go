package worker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	"cloud.google.com/go/compute/metadata"
	"github.com/google/renameio/v2"

	"quantplane/internal/job"
)

// ParamSource reads instance metadata values by key. The GCE metadata server
// is the real source; tests supply a map.
type ParamSource interface {
	Get(ctx context.Context, key string) (string, error)
}

// MetadataSource reads from the GCE metadata server the instance booted with.
type MetadataSource struct {
	client *metadata.Client
}

// NewMetadataSource returns a ParamSource backed by the platform metadata
// server. Only works on the instance itself.
func NewMetadataSource() *MetadataSource {
	return &MetadataSource{client: metadata.NewClient(nil)}
}

func (s *MetadataSource) Get(ctx context.Context, key string) (string, error) {
	return s.client.InstanceAttributeValueWithContext(ctx, key)
}

// ProjectID returns the project the instance runs in.
func (s *MetadataSource) ProjectID(ctx context.Context) (string, error) {
	return s.client.ProjectIDWithContext(ctx)
}

// MapSource is a ParamSource over a plain map, for tests.
type MapSource map[string]string

func (s MapSource) Get(ctx context.Context, key string) (string, error) {
	return s[key], nil
}

// loadParameters decodes the job request from instance metadata and, for
// push actions, materializes the registry signing key where ollama expects
// it. Failures here are fatal and non-retryable.
func (a *Agent) loadParameters(ctx context.Context) error {
	req, err := job.FromMetadata(func(key string) (string, error) {
		return a.params.Get(ctx, key)
	})
	if err != nil {
		return configErr("%v", err)
	}

	if req.Action.Builds() && req.Source == "" {
		return configErr("build action requires a source model reference")
	}
	if req.Action.Builds() && req.HFToken == "" {
		return configErr("build action requires a Hugging Face token")
	}
	if req.Action.Pushes() && req.RegistryKey == "" {
		return configErr("push action requires a registry signing key")
	}

	if req.Action.Pushes() {
		if err := a.writeRegistryKey(req.RegistryKey); err != nil {
			return configErr("materialize registry key: %v", err)
		}
	}

	a.req = req
	a.log.Info("job parameters loaded",
		"action", req.Action, "variant", req.Variant, "model", req.Model)
	return nil
}

// writeRegistryKey places the signing key at <keyDir>/id_ed25519 with owner
// only permissions. The write is atomic so a crashed attempt can never leave
// a truncated key behind.
func (a *Agent) writeRegistryKey(key string) error {
	if err := os.MkdirAll(a.cfg.KeyDir, 0o700); err != nil {
		return err
	}
	path := filepath.Join(a.cfg.KeyDir, "id_ed25519")
	if err := renameio.WriteFile(path, []byte(key), 0o600); err != nil {
		return err
	}
	sum := sha256.Sum256([]byte(key))
	a.log.Info("registry key materialized",
		"path", path, "fingerprint", hex.EncodeToString(sum[:8]))
	return nil
}
