package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"quantplane/internal/channel"
)

// runPush publishes the quantized model under the destination namespace. A
// push-only run first restores the packaged model from the channel; if the
// model exists neither locally nor as an artifact, the stage fails with no
// retry.
func (a *Agent) runPush(ctx context.Context) error {
	start := time.Now()
	model := a.localModel()

	if err := a.tc.Show(ctx, model); err != nil {
		a.log.Info("model not present locally, restoring artifact", "model", model)
		if err := a.restoreArtifact(ctx); err != nil {
			return err
		}
		if err := a.tc.Show(ctx, model); err != nil {
			return pushErr(fmt.Errorf("restored artifact does not contain %s: %w", model, err))
		}
	}

	target := fmt.Sprintf("%s/%s:%s", a.req.Namespace, a.req.Model, a.req.Variant)
	if err := a.tc.Copy(ctx, model, target); err != nil {
		return pushErr(err)
	}
	a.log.Info("pushing", "target", target)
	if err := a.tc.Push(ctx, target); err != nil {
		return pushErr(err)
	}

	marker := channel.PushedMarker{
		Timestamp: time.Now().UTC(),
		Target:    target,
		Duration:  time.Since(start).Round(time.Second).String(),
	}
	if err := channel.WriteMarker(ctx, a.ch, channel.PushedName(a.req.Variant), marker); err != nil {
		return pushErr(err)
	}

	a.log.Info("push complete", "target", target, "took", marker.Duration)
	return nil
}

func (a *Agent) restoreArtifact(ctx context.Context) error {
	name := channel.ArtifactName(a.req.Model, a.req.Variant)
	data, err := a.ch.Get(ctx, name)
	if err != nil {
		if errors.Is(err, channel.ErrNotExist) {
			return pushErr(fmt.Errorf("no artifact found for %s:%s", a.req.Model, a.req.Variant))
		}
		return pushErr(err)
	}
	if err := unpackDir(bytes.NewReader(data), a.cfg.ModelsDir); err != nil {
		return pushErr(fmt.Errorf("unpack artifact %s: %w", name, err))
	}
	return nil
}
