package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"quantplane/internal/channel"
	"quantplane/internal/compute"
	"quantplane/internal/config"
	"quantplane/internal/job"
	"quantplane/internal/logger"
)

func testConfig() *config.Config {
	return &config.Config{
		Project:      "test-project",
		Namespace:    "acme",
		Bucket:       "quantplane-status",
		SourceModel:  "meta-llama/Llama-3-8B",
		Zone:         "us-central1-a",
		MachineType:  "n1-standard-16",
		DiskSizeGB:   200,
		DiskType:     "pd-ssd",
		MaxLifetime:  4 * time.Hour,
		PollInterval: time.Millisecond,
		PollBudget:   5,
	}
}

func testRequest(action job.Action) job.Request {
	return job.Request{
		Action:      action,
		Variant:     "q8_0",
		Model:       "llama3",
		Source:      "meta-llama/Llama-3-8B",
		Namespace:   "acme",
		Bucket:      "quantplane-status",
		HFToken:     "hf_secret",
		RegistryKey: "key material",
	}
}

func newTestOrch(t *testing.T) (*Orchestrator, *channel.Memory, *compute.Fake) {
	t.Helper()
	ch := channel.NewMemory()
	mgr := compute.NewFake()
	return New(ch, mgr, testConfig(), logger.New()), ch, mgr
}

func writeMarker(t *testing.T, ch channel.StatusChannel, name string, payload any) {
	t.Helper()
	if err := channel.WriteMarker(context.Background(), ch, name, payload); err != nil {
		t.Fatalf("write marker %s: %v", name, err)
	}
}

func TestSubmit_BuildSuccess(t *testing.T) {
	ctx := context.Background()
	o, ch, mgr := newTestOrch(t)

	// Stale markers from an earlier attempt, one of them in the legacy
	// unprefixed layout. If clearing ever breaks, the fail marker below
	// flips the outcome.
	writeMarker(t, ch, channel.FailName("q8_0"), channel.FailMarker{Stage: "quantize", Message: "stale"})
	writeMarker(t, ch, "q8_0.built", channel.BuiltMarker{Artifact: "stale"})

	mgr.OnCreate = func(spec compute.InstanceSpec) {
		writeMarker(t, ch, channel.BuiltName("q8_0"), channel.BuiltMarker{
			Timestamp: time.Now(),
			Artifact:  channel.ArtifactName("llama3", "q8_0"),
			SizeBytes: 42,
			Duration:  "1m0s",
		})
	}

	out, err := o.Submit(ctx, testRequest(job.ActionBuild))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if out.State != StateSucceeded {
		t.Fatalf("state = %s, want %s", out.State, StateSucceeded)
	}
	if out.Built == nil || out.Built.Artifact != "artifacts/llama3-q8_0.tgz" {
		t.Errorf("built marker not surfaced: %+v", out.Built)
	}
	if mgr.Exists() {
		t.Error("instance still exists after successful submit")
	}
	if mgr.Creates != 1 {
		t.Errorf("Creates = %d, want 1", mgr.Creates)
	}
	for _, name := range ch.Names() {
		if name == "q8_0.built" || name == channel.FailName("q8_0") {
			t.Errorf("stale marker %s survived the attempt", name)
		}
	}
}

func TestSubmit_InstanceMetadataAndBootstrap(t *testing.T) {
	ctx := context.Background()
	o, ch, mgr := newTestOrch(t)

	var spec compute.InstanceSpec
	mgr.OnCreate = func(s compute.InstanceSpec) {
		spec = s
		writeMarker(t, ch, channel.BuiltName("q8_0"), channel.BuiltMarker{})
	}

	if _, err := o.Submit(ctx, testRequest(job.ActionBuild)); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if spec.Name != compute.InstanceName {
		t.Errorf("instance name = %q, want %q", spec.Name, compute.InstanceName)
	}
	if spec.MachineType != "n1-standard-16" || spec.Zone != "us-central1-a" {
		t.Errorf("shape = %s/%s", spec.MachineType, spec.Zone)
	}
	if spec.MaxLifetime != 4*time.Hour {
		t.Errorf("max lifetime = %s", spec.MaxLifetime)
	}
	if got := spec.Metadata[job.MetaVariant]; got != "q8_0" {
		t.Errorf("variant metadata = %q", got)
	}
	script := spec.Metadata["startup-script"]
	if !strings.Contains(script, "gs://quantplane-status/bin/quantplane-worker") {
		t.Errorf("startup script does not fetch the worker binary:\n%s", script)
	}
}

func TestSubmit_RemoteFailure(t *testing.T) {
	ctx := context.Background()
	o, ch, mgr := newTestOrch(t)

	var logLines []string
	for i := 0; i < 25; i++ {
		logLines = append(logLines, fmt.Sprintf("line %d", i))
	}
	mgr.OnCreate = func(spec compute.InstanceSpec) {
		if err := ch.Put(context.Background(), channel.LogName("q8_0"), []byte(strings.Join(logLines, "\n")+"\n")); err != nil {
			t.Fatal(err)
		}
		writeMarker(t, ch, channel.FailName("q8_0"), channel.FailMarker{
			Stage:    "quantize",
			ExitCode: 1,
			Message:  "unsupported tensor layout",
		})
	}

	out, err := o.Submit(ctx, testRequest(job.ActionBuild))
	if !errors.Is(err, ErrRemoteFatal) {
		t.Fatalf("err = %v, want ErrRemoteFatal", err)
	}
	if out.State != StateFailed {
		t.Errorf("state = %s", out.State)
	}
	if out.Fail == nil || out.Fail.Stage != "quantize" {
		t.Errorf("fail marker not surfaced: %+v", out.Fail)
	}
	tail := strings.Split(out.LogTail, "\n")
	if len(tail) != logTailLines {
		t.Errorf("log tail has %d lines, want %d", len(tail), logTailLines)
	}
	if tail[len(tail)-1] != "line 24" {
		t.Errorf("tail ends with %q", tail[len(tail)-1])
	}
	if mgr.Exists() {
		t.Error("instance still exists after failure")
	}
}

func TestSubmit_TimeoutLeavesInstance(t *testing.T) {
	ctx := context.Background()
	o, ch, mgr := newTestOrch(t)

	// build+push resolves on the pushed marker; a built marker alone
	// never satisfies it.
	mgr.OnCreate = func(spec compute.InstanceSpec) {
		writeMarker(t, ch, channel.BuiltName("q8_0"), channel.BuiltMarker{})
	}

	out, err := o.Submit(ctx, testRequest(job.ActionBuildPush))
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if out.State != StateTimedOut {
		t.Errorf("state = %s", out.State)
	}
	if !mgr.Exists() {
		t.Error("timeout must leave the instance running for inspection")
	}
}

func TestSubmit_TerminatedEarly(t *testing.T) {
	ctx := context.Background()
	o, ch, mgr := newTestOrch(t)

	mgr.OnCreate = func(spec compute.InstanceSpec) {
		if err := ch.Put(context.Background(), channel.LogName("q8_0"), []byte("panic: out of disk\n")); err != nil {
			t.Fatal(err)
		}
		if err := mgr.Delete(context.Background(), spec.Name); err != nil {
			t.Fatal(err)
		}
	}

	out, err := o.Submit(ctx, testRequest(job.ActionBuild))
	if !errors.Is(err, ErrRemoteFatal) {
		t.Fatalf("err = %v, want ErrRemoteFatal", err)
	}
	if out.State != StateTerminatedEarly {
		t.Errorf("state = %s, want %s", out.State, StateTerminatedEarly)
	}
	if !strings.Contains(out.LogTail, "out of disk") {
		t.Errorf("log tail missing: %q", out.LogTail)
	}
}

func TestSubmit_StoppedInstance(t *testing.T) {
	ctx := context.Background()
	o, ch, mgr := newTestOrch(t)

	// The instance powered off without a terminal marker: still listed by
	// the platform, just not running anymore.
	mgr.OnCreate = func(spec compute.InstanceSpec) {
		if err := ch.Put(context.Background(), channel.LogName("q8_0"), []byte("oom-killer invoked\n")); err != nil {
			t.Fatal(err)
		}
		mgr.SetStatus(compute.StatusTerminated)
	}

	out, err := o.Submit(ctx, testRequest(job.ActionBuild))
	if !errors.Is(err, ErrRemoteFatal) {
		t.Fatalf("err = %v, want ErrRemoteFatal", err)
	}
	if out.State != StateTerminatedEarly {
		t.Errorf("state = %s, want %s", out.State, StateTerminatedEarly)
	}
	if !strings.Contains(out.LogTail, "oom-killer") {
		t.Errorf("log tail missing: %q", out.LogTail)
	}
	if mgr.Exists() {
		t.Error("stopped instance must still be cleaned up")
	}
}

// lateMarkerChannel hides markers from the first Stat calls, modelling a
// marker that lands between the stopped-instance read and the grace
// re-check.
type lateMarkerChannel struct {
	*channel.Memory
	mu    sync.Mutex
	skips int
}

func (c *lateMarkerChannel) Stat(ctx context.Context, name string) (channel.ObjectInfo, error) {
	c.mu.Lock()
	if c.skips > 0 {
		c.skips--
		c.mu.Unlock()
		return channel.ObjectInfo{}, channel.ErrNotExist
	}
	c.mu.Unlock()
	return c.Memory.Stat(ctx, name)
}

func TestSubmit_StoppedInstanceGraceRecheck(t *testing.T) {
	ctx := context.Background()
	mem := channel.NewMemory()
	ch := &lateMarkerChannel{Memory: mem, skips: 1}
	mgr := compute.NewFake()
	o := New(ch, mgr, testConfig(), logger.New())

	// The built marker lands while the instance already reads as stopped;
	// the grace re-check must pick it up instead of declaring early
	// termination.
	mgr.OnCreate = func(spec compute.InstanceSpec) {
		writeMarker(t, mem, channel.BuiltName("q8_0"), channel.BuiltMarker{Artifact: "artifacts/llama3-q8_0.tgz"})
		mgr.SetStatus(compute.StatusStopping)
	}

	out, err := o.Submit(ctx, testRequest(job.ActionBuild))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if out.State != StateSucceeded {
		t.Fatalf("state = %s, want %s", out.State, StateSucceeded)
	}
}

func TestSubmit_ValidationRejectsBeforeProvisioning(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*job.Request)
	}{
		{"unknown action", func(r *job.Request) { r.Action = "rebuild" }},
		{"missing variant", func(r *job.Request) { r.Variant = "" }},
		{"missing model", func(r *job.Request) { r.Model = "" }},
		{"build without token", func(r *job.Request) { r.Action = job.ActionBuild; r.HFToken = "" }},
		{"build without source", func(r *job.Request) { r.Action = job.ActionBuild; r.Source = "" }},
		{"push without key", func(r *job.Request) { r.Action = job.ActionPush; r.RegistryKey = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, ch, mgr := newTestOrch(t)
			req := testRequest(job.ActionBuildPush)
			tt.mutate(&req)

			_, err := o.Submit(context.Background(), req)
			if !errors.Is(err, ErrConfiguration) {
				t.Fatalf("err = %v, want ErrConfiguration", err)
			}
			if mgr.Creates != 0 {
				t.Error("validation failure must not touch provisioning")
			}
			if len(ch.Names()) != 0 {
				t.Error("validation failure must not touch the channel")
			}
		})
	}
}

func TestSubmit_ProvisioningRejected(t *testing.T) {
	o, _, mgr := newTestOrch(t)
	mgr.CreateErr = errors.New("quota exceeded")

	_, err := o.Submit(context.Background(), testRequest(job.ActionBuild))
	if !errors.Is(err, ErrProvisioning) {
		t.Fatalf("err = %v, want ErrProvisioning", err)
	}
	if mgr.Exists() {
		t.Error("no instance should exist after a rejected create")
	}
}

func TestSubmit_ReplacesExistingInstance(t *testing.T) {
	ctx := context.Background()
	o, ch, mgr := newTestOrch(t)

	// Leftover from a previous invocation that timed out.
	if err := mgr.Create(ctx, compute.InstanceSpec{Name: compute.InstanceName, Zone: "us-central1-a"}); err != nil {
		t.Fatal(err)
	}
	mgr.OnCreate = func(spec compute.InstanceSpec) {
		writeMarker(t, ch, channel.BuiltName("q8_0"), channel.BuiltMarker{})
	}

	out, err := o.Submit(ctx, testRequest(job.ActionBuild))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if out.State != StateSucceeded {
		t.Fatalf("state = %s", out.State)
	}
	if mgr.Creates != 2 {
		t.Errorf("Creates = %d, want 2 (replacement)", mgr.Creates)
	}
}

func TestSubmit_InterruptStillCleansUp(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	o, _, mgr := newTestOrch(t)

	mgr.OnCreate = func(spec compute.InstanceSpec) {
		// Simulates ^C while the job is in flight.
		cancel()
	}

	_, err := o.Submit(ctx, testRequest(job.ActionBuild))
	if !errors.Is(err, ErrInterrupted) {
		t.Fatalf("err = %v, want ErrInterrupted", err)
	}
	if mgr.Exists() {
		t.Error("interrupt must still tear the instance down")
	}
}

func TestMonitor_Idempotent(t *testing.T) {
	ctx := context.Background()
	o, ch, _ := newTestOrch(t)
	req := testRequest(job.ActionBuild)

	writeMarker(t, ch, channel.BuiltName("q8_0"), channel.BuiltMarker{Artifact: "artifacts/llama3-q8_0.tgz", SizeBytes: 7, Duration: "2m0s"})

	first, err := o.Monitor(ctx, req)
	if err != nil {
		t.Fatalf("first Monitor: %v", err)
	}
	second, err := o.Monitor(ctx, req)
	if err != nil {
		t.Fatalf("second Monitor: %v", err)
	}
	if first.State != second.State || first.Detail != second.Detail {
		t.Errorf("outcomes diverged: %+v vs %+v", first, second)
	}
}

func TestValidateEnvironment(t *testing.T) {
	o, _, _ := newTestOrch(t)
	if err := o.ValidateEnvironment(context.Background()); err != nil {
		t.Fatalf("ValidateEnvironment: %v", err)
	}

	bad := testConfig()
	bad.Namespace = ""
	o2 := New(channel.NewMemory(), compute.NewFake(), bad, logger.New())
	if err := o2.ValidateEnvironment(context.Background()); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
}

func TestCleanup_NoInstance(t *testing.T) {
	o, _, mgr := newTestOrch(t)
	if err := o.Cleanup(context.Background()); err != nil {
		t.Fatalf("Cleanup on empty state: %v", err)
	}
	if err := o.Cleanup(context.Background()); err != nil {
		t.Fatalf("second Cleanup: %v", err)
	}
	if mgr.Deletes != 2 {
		t.Errorf("Deletes = %d, want 2", mgr.Deletes)
	}
}

func TestPollUntil(t *testing.T) {
	ctx := context.Background()

	calls := 0
	done, err := pollUntil(ctx, time.Millisecond, 3, func(ctx context.Context) (bool, error) {
		calls++
		return false, nil
	})
	if err != nil || done {
		t.Fatalf("done=%v err=%v", done, err)
	}
	if calls != 3 {
		t.Errorf("probe ran %d times, want 3", calls)
	}

	calls = 0
	done, err = pollUntil(ctx, time.Hour, 3, func(ctx context.Context) (bool, error) {
		calls++
		return true, nil
	})
	if err != nil || !done {
		t.Fatalf("done=%v err=%v", done, err)
	}
	if calls != 1 {
		t.Errorf("first probe must fire without waiting, got %d calls", calls)
	}
}

func TestRenderBootstrap(t *testing.T) {
	script, err := renderBootstrap("my-bucket")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(script, "#!") {
		t.Error("script missing shebang")
	}
	if !strings.Contains(script, "gs://my-bucket/bin/quantplane-worker") {
		t.Errorf("script does not reference the bucket:\n%s", script)
	}
}
