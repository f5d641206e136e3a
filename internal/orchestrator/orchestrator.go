// Package orchestrator is the control-plane side of the pipeline: it
// validates a job request, provisions the single worker instance, watches
// the status channel for the outcome and always tears the instance down.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"quantplane/internal/channel"
	"quantplane/internal/compute"
	"quantplane/internal/config"
	"quantplane/internal/job"
)

// Error taxonomy. Submit wraps one of these so callers can map an error to
// user-facing behavior without string matching.
var (
	// ErrConfiguration: pre-flight, local, no remote resource touched.
	ErrConfiguration = errors.New("configuration error")

	// ErrProvisioning: instance creation rejected, nothing to clean up.
	ErrProvisioning = errors.New("provisioning failed")

	// ErrRemoteFatal: the worker reported a terminal failure.
	ErrRemoteFatal = errors.New("remote job failed")

	// ErrTimeout: no resolution within the poll budget; the instance is
	// deliberately left running for inspection.
	ErrTimeout = errors.New("timed out waiting for job")

	// ErrInterrupted: the invocation was aborted; cleanup still ran.
	ErrInterrupted = errors.New("interrupted")
)

// Orchestrator coordinates one job at a time against the shared channel and
// the singleton instance.
type Orchestrator struct {
	ch  channel.StatusChannel
	mgr compute.Manager
	cfg *config.Config
	log *slog.Logger
}

// New wires an orchestrator. Both collaborators are interfaces so the whole
// control flow is testable in-process.
func New(ch channel.StatusChannel, mgr compute.Manager, cfg *config.Config, log *slog.Logger) *Orchestrator {
	return &Orchestrator{ch: ch, mgr: mgr, cfg: cfg, log: log}
}

// ValidateEnvironment checks the required parameters and that the
// provisioning backend answers at all. It touches nothing remote beyond a
// read.
func (o *Orchestrator) ValidateEnvironment(ctx context.Context) error {
	if o.cfg.Namespace == "" {
		return fmt.Errorf("%w: destination namespace is not set", ErrConfiguration)
	}
	if o.cfg.Bucket == "" {
		return fmt.Errorf("%w: status channel bucket is not set", ErrConfiguration)
	}
	if _, err := o.mgr.Describe(ctx, compute.InstanceName); err != nil && !errors.Is(err, compute.ErrNotFound) {
		return fmt.Errorf("%w: provisioning backend unreachable or unauthenticated: %v", ErrConfiguration, err)
	}
	return nil
}

// Submit runs the full job lifecycle: validate, clear markers, replace any
// existing instance, provision, monitor. Cleanup runs on every exit path
// except a timeout, which deliberately leaves the instance running.
func (o *Orchestrator) Submit(ctx context.Context, req job.Request) (out Outcome, err error) {
	tracer := otel.Tracer("quantplane-orchestrator")
	ctx, span := tracer.Start(ctx, "submit", trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("job.action", string(req.Action)),
		attribute.String("job.variant", req.Variant),
		attribute.String("job.attempt_id", uuid.NewString()),
	)
	defer span.End()
	defer func() { span.SetAttributes(attribute.String("job.outcome", string(out.State))) }()

	if err := o.validateRequest(req); err != nil {
		return Outcome{State: StateFailed, Detail: err.Error()}, err
	}

	// Teardown is owed from here on, whatever happens, with the single
	// exception of the timeout case. The cleanup context is detached so an
	// interrupt that cancelled ctx cannot also cancel its own cleanup.
	defer func() {
		if out.State == StateTimedOut {
			return
		}
		if cerr := o.Cleanup(context.WithoutCancel(ctx)); cerr != nil {
			o.log.Error("cleanup failed, instance may be orphaned", "err", cerr)
		}
	}()

	if ens, ok := o.ch.(channel.Ensurer); ok {
		if err := ens.Ensure(ctx); err != nil {
			return Outcome{State: StateFailed, Detail: err.Error()},
				fmt.Errorf("%w: ensure status channel: %v", ErrConfiguration, err)
		}
	}

	// Clearing happens-before create: a marker present during monitoring
	// always belongs to this attempt.
	if err := channel.ClearMarkers(ctx, o.ch, req.Variant); err != nil {
		return Outcome{State: StateFailed, Detail: err.Error()},
			fmt.Errorf("%w: clear markers: %v", ErrConfiguration, err)
	}

	// Mutual exclusion: the previous instance, if any, dies first.
	if err := o.mgr.Delete(ctx, compute.InstanceName); err != nil {
		return Outcome{State: StateFailed, Detail: err.Error()},
			fmt.Errorf("%w: delete previous instance: %v", ErrProvisioning, err)
	}

	spec, err := o.instanceSpec(req)
	if err != nil {
		return Outcome{State: StateFailed, Detail: err.Error()},
			fmt.Errorf("%w: %v", ErrProvisioning, err)
	}
	o.log.Info("creating worker instance",
		"name", spec.Name, "machine", spec.MachineType, "zone", spec.Zone)
	if err := o.mgr.Create(ctx, spec); err != nil {
		return Outcome{State: StateFailed, Detail: err.Error()},
			fmt.Errorf("%w: %v", ErrProvisioning, err)
	}

	return o.Monitor(ctx, req)
}

// validateRequest applies the per-action requirements before anything
// remote is touched.
func (o *Orchestrator) validateRequest(req job.Request) error {
	if !req.Action.Valid() {
		return fmt.Errorf("%w: unknown action %q", ErrConfiguration, req.Action)
	}
	if req.Variant == "" {
		return fmt.Errorf("%w: variant is required", ErrConfiguration)
	}
	if req.Model == "" {
		return fmt.Errorf("%w: model name is required", ErrConfiguration)
	}
	if req.Action.Builds() && req.HFToken == "" {
		return fmt.Errorf("%w: build actions require HF_TOKEN", ErrConfiguration)
	}
	if req.Action.Builds() && req.Source == "" {
		return fmt.Errorf("%w: build actions require a source model reference", ErrConfiguration)
	}
	if req.Action.Pushes() && req.RegistryKey == "" {
		return fmt.Errorf("%w: push actions require a registry signing key", ErrConfiguration)
	}
	return nil
}

func (o *Orchestrator) instanceSpec(req job.Request) (compute.InstanceSpec, error) {
	script, err := renderBootstrap(o.cfg.Bucket)
	if err != nil {
		return compute.InstanceSpec{}, fmt.Errorf("render bootstrap script: %w", err)
	}

	meta := req.Metadata()
	meta["startup-script"] = script

	return compute.InstanceSpec{
		Name:        compute.InstanceName,
		MachineType: o.cfg.MachineType,
		Zone:        o.cfg.Zone,
		DiskSizeGB:  o.cfg.DiskSizeGB,
		DiskType:    o.cfg.DiskType,
		Metadata:    meta,
		MaxLifetime: o.cfg.MaxLifetime,
	}, nil
}

// Cleanup deletes the worker instance if one exists. Safe to call from any
// state, any number of times.
func (o *Orchestrator) Cleanup(ctx context.Context) error {
	o.log.Info("deleting worker instance", "name", compute.InstanceName)
	return o.mgr.Delete(ctx, compute.InstanceName)
}
