package compute

import (
	"context"
	"errors"
	"testing"
)

func TestFakeSingleton(t *testing.T) {
	ctx := context.Background()
	f := NewFake()

	spec := InstanceSpec{Name: InstanceName, MachineType: "n1-standard-16", Zone: "us-central1-a"}
	if err := f.Create(ctx, spec); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if err := f.Create(ctx, spec); err == nil {
		t.Fatal("second create under the same name should fail")
	}

	inst, err := f.Describe(ctx, InstanceName)
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if inst.Status != StatusRunning {
		t.Errorf("status = %q, want RUNNING", inst.Status)
	}

	if err := f.Delete(ctx, InstanceName); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.Describe(ctx, InstanceName); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	// Idempotent delete.
	if err := f.Delete(ctx, InstanceName); err != nil {
		t.Fatalf("delete of absent instance should be a no-op, got %v", err)
	}
}

func TestStopped(t *testing.T) {
	cases := []struct {
		status string
		want   bool
	}{
		{StatusProvisioning, false},
		{StatusRunning, false},
		{StatusStopping, true},
		{StatusTerminated, true},
	}
	for _, tc := range cases {
		if got := (Instance{Status: tc.status}).Stopped(); got != tc.want {
			t.Errorf("Stopped(%s) = %v, want %v", tc.status, got, tc.want)
		}
	}
}
