package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"quantplane/internal/channel"
	"quantplane/internal/compute"
)

// VariantStatus is the per-variant summary rendered by the status command.
// State priority: pushed > built > failed; only the winning marker's detail
// is shown.
type VariantStatus struct {
	Variant string
	State   State
	Detail  string
}

// StatusReport covers every variant with markers plus the current instance,
// if one exists.
type StatusReport struct {
	Variants []VariantStatus
	Instance *compute.Instance
}

// Status sweeps the marker namespace and summarizes each variant's latest
// outcome, alongside the live instance state.
func (o *Orchestrator) Status(ctx context.Context) (StatusReport, error) {
	infos, err := o.ch.List(ctx, channel.StatusPrefix)
	if err != nil {
		return StatusReport{}, fmt.Errorf("list markers: %w", err)
	}

	variants := make(map[string]bool)
	for _, info := range infos {
		if v, ok := markerVariant(info.Name); ok {
			variants[v] = true
		}
	}

	var report StatusReport
	for variant := range variants {
		vs, err := o.variantStatus(ctx, variant)
		if err != nil {
			return StatusReport{}, err
		}
		report.Variants = append(report.Variants, vs)
	}
	sort.Slice(report.Variants, func(i, j int) bool {
		return report.Variants[i].Variant < report.Variants[j].Variant
	})

	inst, err := o.mgr.Describe(ctx, compute.InstanceName)
	if err == nil {
		report.Instance = &inst
	} else if !errors.Is(err, compute.ErrNotFound) {
		return StatusReport{}, fmt.Errorf("describe instance: %w", err)
	}

	return report, nil
}

// variantStatus inspects one variant's markers in priority order.
func (o *Orchestrator) variantStatus(ctx context.Context, variant string) (VariantStatus, error) {
	var pushed channel.PushedMarker
	err := channel.ReadMarker(ctx, o.ch, channel.PushedName(variant), &pushed)
	if err == nil {
		return VariantStatus{
			Variant: variant,
			State:   StateSucceeded,
			Detail:  fmt.Sprintf("pushed %s at %s", pushed.Target, pushed.Timestamp.Format("2006-01-02 15:04:05")),
		}, nil
	}
	if !errors.Is(err, channel.ErrNotExist) {
		return VariantStatus{}, err
	}

	var built channel.BuiltMarker
	err = channel.ReadMarker(ctx, o.ch, channel.BuiltName(variant), &built)
	if err == nil {
		return VariantStatus{
			Variant: variant,
			State:   StateSucceeded,
			Detail:  fmt.Sprintf("built %s (%d bytes) at %s", built.Artifact, built.SizeBytes, built.Timestamp.Format("2006-01-02 15:04:05")),
		}, nil
	}
	if !errors.Is(err, channel.ErrNotExist) {
		return VariantStatus{}, err
	}

	var fail channel.FailMarker
	err = channel.ReadMarker(ctx, o.ch, channel.FailName(variant), &fail)
	if err == nil {
		return VariantStatus{
			Variant: variant,
			State:   StateFailed,
			Detail:  fmt.Sprintf("stage %s failed (exit %d): %s", fail.Stage, fail.ExitCode, fail.Message),
		}, nil
	}
	if !errors.Is(err, channel.ErrNotExist) {
		return VariantStatus{}, err
	}

	// Only a log object exists.
	return VariantStatus{Variant: variant, State: StateTerminatedEarly, Detail: "log present, no outcome marker"}, nil
}

// markerVariant extracts the variant from a marker object name, false for
// names outside the marker layout.
func markerVariant(name string) (string, bool) {
	name = strings.TrimPrefix(name, channel.StatusPrefix)
	switch {
	case strings.HasSuffix(name, ".built"):
		return strings.TrimSuffix(name, ".built"), true
	case strings.HasSuffix(name, ".pushed"):
		return strings.TrimSuffix(name, ".pushed"), true
	case strings.HasSuffix(name, "-error.fail"):
		return strings.TrimSuffix(name, "-error.fail"), true
	case strings.HasSuffix(name, "-build.log"):
		return strings.TrimSuffix(name, "-build.log"), true
	}
	return "", false
}
