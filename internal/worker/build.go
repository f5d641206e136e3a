package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
	"time"

	"quantplane/internal/channel"
)

// modelfileTemplate is the fixed post-processing applied to every quantized
// build: the chat template and stop parameters baked into the packaged model.
var modelfileTemplate = template.Must(template.New("modelfile").Parse(
	`FROM {{.Source}}
TEMPLATE """{{"{{"}} .System {{"}}"}}
{{"{{"}} .Prompt {{"}}"}}"""
PARAMETER stop "<|im_start|>"
PARAMETER stop "<|im_end|>"
`))

// runBuild quantizes the source model, verifies the result answers to its
// name, packages it and uploads the package, then writes the built marker.
func (a *Agent) runBuild(ctx context.Context) error {
	start := time.Now()
	model := a.localModel()

	modelfile, err := a.renderModelfile()
	if err != nil {
		return buildErr(err)
	}

	a.log.Info("quantizing", "model", model, "variant", a.req.Variant)
	if err := a.tc.Create(ctx, model, modelfile, a.req.Variant); err != nil {
		return buildErr(err)
	}
	if err := a.tc.Show(ctx, model); err != nil {
		return buildErr(fmt.Errorf("built model not queryable: %w", err))
	}

	artifact := channel.ArtifactName(a.req.Model, a.req.Variant)
	size, err := a.uploadArtifact(ctx, artifact)
	if err != nil {
		return buildErr(err)
	}

	marker := channel.BuiltMarker{
		Timestamp: time.Now().UTC(),
		Artifact:  artifact,
		SizeBytes: size,
		Duration:  time.Since(start).Round(time.Second).String(),
	}
	if err := channel.WriteMarker(ctx, a.ch, channel.BuiltName(a.req.Variant), marker); err != nil {
		return buildErr(err)
	}

	a.log.Info("build complete", "artifact", artifact, "size", size, "took", marker.Duration)
	return nil
}

func (a *Agent) renderModelfile() (string, error) {
	path := filepath.Join(a.cfg.WorkDir, "Modelfile")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := modelfileTemplate.Execute(f, struct{ Source string }{a.sourceDir()}); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}

// uploadArtifact packages the model store and puts it on the channel,
// returning the package size.
func (a *Agent) uploadArtifact(ctx context.Context, name string) (int64, error) {
	pkg := filepath.Join(a.cfg.WorkDir, "artifact.tgz")
	f, err := os.Create(pkg)
	if err != nil {
		return 0, err
	}
	if err := packDir(a.cfg.ModelsDir, f); err != nil {
		f.Close()
		return 0, fmt.Errorf("package model store: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, err
	}

	data, err := os.ReadFile(pkg)
	if err != nil {
		return 0, err
	}
	if err := a.ch.Put(ctx, name, data); err != nil {
		return 0, fmt.Errorf("upload artifact: %w", err)
	}
	return int64(len(data)), nil
}
