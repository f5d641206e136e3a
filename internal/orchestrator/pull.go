package orchestrator

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"quantplane/internal/channel"
)

// Candidate ollama endpoints, probed in order: the configured host wins,
// then the container bridge address for a containerized runtime, then the
// local default.
const (
	bridgeEndpoint = "http://172.17.0.1:11434"
	localEndpoint  = "http://127.0.0.1:11434"
)

// ResolveEndpoint finds a reachable local ollama endpoint. probeClient may
// be nil for the default 2s-timeout client.
func (o *Orchestrator) ResolveEndpoint(ctx context.Context, probeClient *http.Client) (string, error) {
	if probeClient == nil {
		probeClient = &http.Client{Timeout: 2 * time.Second}
	}

	var candidates []string
	if o.cfg.OllamaHost != "" {
		candidates = append(candidates, o.cfg.OllamaHost)
	}
	candidates = append(candidates, bridgeEndpoint, localEndpoint)

	for _, endpoint := range candidates {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/api/version", nil)
		if err != nil {
			continue
		}
		resp, err := probeClient.Do(req)
		if err != nil {
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			return endpoint, nil
		}
	}
	return "", fmt.Errorf("no reachable ollama endpoint (tried %v)", candidates)
}

// Pull fetches every pushed variant's published model through a local
// ollama endpoint. Variants that never pushed are skipped.
func (o *Orchestrator) Pull(ctx context.Context) error {
	endpoint, err := o.ResolveEndpoint(ctx, nil)
	if err != nil {
		return err
	}
	o.log.Info("pulling published models", "endpoint", endpoint)

	report, err := o.Status(ctx)
	if err != nil {
		return err
	}

	pulled := 0
	for _, vs := range report.Variants {
		if vs.State != StateSucceeded {
			continue
		}
		// Built-only variants exist in the channel but not in the registry.
		var pm channel.PushedMarker
		if err := channel.ReadMarker(ctx, o.ch, channel.PushedName(vs.Variant), &pm); err != nil {
			continue
		}
		// The marker records the exact name the worker pushed under; a
		// legacy marker without one falls back to the configured name.
		model := pm.Target
		if model == "" {
			model = fmt.Sprintf("%s/%s:%s", o.cfg.Namespace, o.cfg.SourceModelShortName(), vs.Variant)
		}
		o.log.Info("pulling", "model", model)
		if err := pullModel(ctx, endpoint, model); err != nil {
			return fmt.Errorf("pull %s: %w", model, err)
		}
		pulled++
	}
	if pulled == 0 {
		o.log.Warn("nothing to pull: no variant has a success marker")
	}
	return nil
}

// pullModel drives one streaming /api/pull call, failing on an error line.
func pullModel(ctx context.Context, endpoint, model string) error {
	body, err := json.Marshal(map[string]string{"model": model})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("registry pull returned HTTP %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var line struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			continue
		}
		if line.Error != "" {
			return fmt.Errorf("%s", line.Error)
		}
	}
	return scanner.Err()
}
