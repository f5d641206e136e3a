package worker

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"path/filepath"
	"time"

	"quantplane/internal/channel"
	"quantplane/internal/job"
	"quantplane/internal/toolchain"
)

// Config holds the local layout and limits for one worker run.
type Config struct {
	// WorkDir holds the downloaded source, the Modelfile and the packaged
	// artifact.
	WorkDir string

	// ModelsDir is the toolchain's model store; it is what gets packaged
	// into the artifact.
	ModelsDir string

	// KeyDir is where the registry signing key is materialized.
	KeyDir string

	// ReadyAttempts bounds the toolchain readiness poll.
	ReadyAttempts int
}

// Agent runs the worker pipeline once and then ends the instance's life.
// Stages execute strictly in order; the first failure is terminal.
type Agent struct {
	ch      channel.StatusChannel
	tc      toolchain.Toolchain
	params  ParamSource
	fetcher Fetcher
	cfg     Config
	log     *slog.Logger
	logBuf  *bytes.Buffer

	req job.Request

	// PowerOff ends the instance from the inside. Replaceable in tests;
	// the orchestrator's delete and the platform lifetime cap remain as
	// outside-in backstops if it fails.
	PowerOff func() error
}

// New assembles an agent. fetcher may be nil, in which case a Hugging Face
// fetcher is built from the loaded parameters.
func New(ch channel.StatusChannel, tc toolchain.Toolchain, params ParamSource, fetcher Fetcher, cfg Config, log *slog.Logger, logBuf *bytes.Buffer) *Agent {
	if cfg.ReadyAttempts <= 0 {
		cfg.ReadyAttempts = 30
	}
	return &Agent{
		ch:      ch,
		tc:      tc,
		params:  params,
		fetcher: fetcher,
		cfg:     cfg,
		log:     log,
		logBuf:  logBuf,
		PowerOff: func() error {
			return exec.Command("systemctl", "poweroff").Run()
		},
	}
}

// Run executes the pipeline and always finalizes: the log goes up whatever
// happened, and the instance powers itself off. The returned error is the
// stage failure, nil on success.
func (a *Agent) Run(ctx context.Context) error {
	err := a.runPipeline(ctx)
	if err != nil {
		a.log.Error("pipeline failed", "stage", FailedStage(err), "err", err)
		a.reportFailure(ctx, err)
	}
	a.finalize(ctx)
	return err
}

func (a *Agent) runPipeline(ctx context.Context) error {
	if err := a.loadParameters(ctx); err != nil {
		return err
	}
	if err := a.installToolchain(ctx); err != nil {
		return err
	}
	if a.req.Action.Builds() {
		if a.fetcher == nil {
			a.fetcher = NewHFFetcher(a.req.HFToken)
		}
		if err := a.acquireInputAsset(ctx); err != nil {
			return err
		}
		if err := a.runBuild(ctx); err != nil {
			return err
		}
	}
	if a.req.Action.Pushes() {
		if err := a.runPush(ctx); err != nil {
			return err
		}
	}
	return nil
}

// installToolchain is idempotent: a present install is reused, otherwise the
// tool is installed and its service polled for readiness.
func (a *Agent) installToolchain(ctx context.Context) error {
	if a.tc.Installed() {
		a.log.Info("toolchain already installed")
	} else {
		if err := a.tc.Install(ctx); err != nil {
			return toolchainErr(err)
		}
	}
	if err := a.tc.WaitReady(ctx, a.cfg.ReadyAttempts); err != nil {
		return toolchainErr(err)
	}
	return nil
}

// reportFailure writes the single fail marker for this attempt. Parameter
// loading can fail before the variant is known; then there is no marker to
// write and the orchestrator sees "terminated without completion" instead.
func (a *Agent) reportFailure(ctx context.Context, ferr error) {
	if a.req.Variant == "" {
		return
	}
	marker := channel.FailMarker{
		Timestamp: time.Now().UTC(),
		Stage:     string(FailedStage(ferr)),
		ExitCode:  toolchain.ExitCode(ferr),
		Message:   ferr.Error(),
	}
	if err := channel.WriteMarker(ctx, a.ch, channel.FailName(a.req.Variant), marker); err != nil {
		a.log.Error("failed to write fail marker", "err", err)
	}
}

// finalize uploads the accumulated log and powers the instance off. Neither
// step is guaranteed to succeed; the terminal marker already written is the
// attempt's reliable record.
func (a *Agent) finalize(ctx context.Context) {
	if a.req.Variant != "" && a.logBuf != nil {
		if err := a.ch.Put(ctx, channel.LogName(a.req.Variant), a.logBuf.Bytes()); err != nil {
			a.log.Error("failed to upload log", "err", err)
		}
	}
	a.log.Info("shutting down instance")
	if err := a.PowerOff(); err != nil {
		a.log.Error("self poweroff failed, relying on lifetime cap", "err", err)
	}
}

func (a *Agent) sourceDir() string {
	return filepath.Join(a.cfg.WorkDir, "source")
}

func (a *Agent) localModel() string {
	return a.req.Model + ":" + a.req.Variant
}
