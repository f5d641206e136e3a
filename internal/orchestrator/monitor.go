package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"quantplane/internal/channel"
	"quantplane/internal/compute"
	"quantplane/internal/job"
)

// State classifies how a submission resolved.
type State string

const (
	StateSucceeded       State = "succeeded"
	StateFailed          State = "failed"
	StateTerminatedEarly State = "terminated-early"
	StateTimedOut        State = "timed-out"
)

// Outcome is what Monitor hands back to the CLI: the classification plus
// whatever marker payloads and log tail were available.
type Outcome struct {
	State  State
	Detail string

	Built  *channel.BuiltMarker
	Pushed *channel.PushedMarker
	Fail   *channel.FailMarker

	LogTail string
}

// logTailLines bounds how much of the worker log failure reports carry.
const logTailLines = 20

// pollUntil runs probe once per interval up to budget times. The probe
// reports done when it has classified the run; pollUntil returns false when
// the budget is exhausted first. The first probe fires immediately.
func pollUntil(ctx context.Context, interval time.Duration, budget int, probe func(ctx context.Context) (bool, error)) (bool, error) {
	for i := 0; i < budget; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-time.After(interval):
			}
		}
		done, err := probe(ctx)
		if err != nil {
			return false, err
		}
		if done {
			return true, nil
		}
	}
	return false, nil
}

// Monitor polls the status channel until a terminal marker appears, the
// instance disappears, or the poll budget runs out. Calling it again on an
// unchanged channel yields the same classification.
func (o *Orchestrator) Monitor(ctx context.Context, req job.Request) (Outcome, error) {
	// Push actions resolve on the pushed marker, build-only on built.
	want := channel.BuiltName(req.Variant)
	if req.Action.Pushes() {
		want = channel.PushedName(req.Variant)
	}

	var out Outcome
	resolved, err := pollUntil(ctx, o.cfg.PollInterval, o.cfg.PollBudget, func(ctx context.Context) (bool, error) {
		res, done, err := o.classify(ctx, req, want)
		if done {
			out = res
		}
		return done, err
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Outcome{State: StateFailed, Detail: "interrupted while monitoring"},
				fmt.Errorf("%w: %v", ErrInterrupted, err)
		}
		return Outcome{State: StateFailed, Detail: err.Error()}, err
	}
	if !resolved {
		out = Outcome{
			State:  StateTimedOut,
			Detail: fmt.Sprintf("no outcome after %d polls; the instance may still be running", o.cfg.PollBudget),
		}
		return out, ErrTimeout
	}

	switch out.State {
	case StateSucceeded:
		return out, nil
	case StateFailed:
		return out, fmt.Errorf("%w: stage %s: %s", ErrRemoteFatal, out.Fail.Stage, out.Fail.Message)
	default:
		return out, fmt.Errorf("%w: %s", ErrRemoteFatal, out.Detail)
	}
}

// classify is one poll: markers first, then instance liveness. It has no
// side effects, which is what keeps Monitor idempotent.
func (o *Orchestrator) classify(ctx context.Context, req job.Request, want string) (Outcome, bool, error) {
	if out, ok, err := o.checkMarkers(ctx, req, want); err != nil || ok {
		return out, ok, err
	}

	inst, err := o.mgr.Describe(ctx, compute.InstanceName)
	gone := errors.Is(err, compute.ErrNotFound)
	if err != nil && !gone {
		return Outcome{}, false, fmt.Errorf("describe instance: %w", err)
	}
	if gone || inst.Stopped() {
		// The instance can vanish between its final marker write and our
		// read of it. Give the channel one grace interval and look again.
		select {
		case <-ctx.Done():
			return Outcome{}, false, ctx.Err()
		case <-time.After(o.cfg.PollInterval):
		}
		if out, ok, err := o.checkMarkers(ctx, req, want); err != nil || ok {
			return out, ok, err
		}
		return Outcome{
			State:   StateTerminatedEarly,
			Detail:  "instance terminated without reporting completion",
			LogTail: o.logTail(ctx, req.Variant),
		}, true, nil
	}

	return Outcome{}, false, nil
}

func (o *Orchestrator) checkMarkers(ctx context.Context, req job.Request, want string) (Outcome, bool, error) {
	var fail channel.FailMarker
	err := channel.ReadMarker(ctx, o.ch, channel.FailName(req.Variant), &fail)
	if err == nil {
		return Outcome{
			State:   StateFailed,
			Detail:  fmt.Sprintf("stage %s failed (exit %d): %s", fail.Stage, fail.ExitCode, fail.Message),
			Fail:    &fail,
			LogTail: o.logTail(ctx, req.Variant),
		}, true, nil
	}
	if !errors.Is(err, channel.ErrNotExist) {
		return Outcome{}, false, fmt.Errorf("read fail marker: %w", err)
	}

	if _, err := o.ch.Stat(ctx, want); err == nil {
		out := Outcome{State: StateSucceeded}
		if req.Action.Pushes() {
			var pushed channel.PushedMarker
			if err := channel.ReadMarker(ctx, o.ch, channel.PushedName(req.Variant), &pushed); err != nil {
				return Outcome{}, false, err
			}
			out.Pushed = &pushed
			out.Detail = fmt.Sprintf("pushed %s in %s", pushed.Target, pushed.Duration)
		} else {
			var built channel.BuiltMarker
			if err := channel.ReadMarker(ctx, o.ch, channel.BuiltName(req.Variant), &built); err != nil {
				return Outcome{}, false, err
			}
			out.Built = &built
			out.Detail = fmt.Sprintf("built %s (%d bytes) in %s", built.Artifact, built.SizeBytes, built.Duration)
		}
		return out, true, nil
	} else if !errors.Is(err, channel.ErrNotExist) {
		return Outcome{}, false, fmt.Errorf("stat %s: %w", want, err)
	}

	return Outcome{}, false, nil
}

// logTail fetches the last lines of the worker's uploaded log, empty when
// no log exists.
func (o *Orchestrator) logTail(ctx context.Context, variant string) string {
	data, err := o.ch.Get(ctx, channel.LogName(variant))
	if err != nil {
		return ""
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) > logTailLines {
		lines = lines[len(lines)-logTailLines:]
	}
	return strings.Join(lines, "\n")
}
