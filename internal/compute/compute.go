// Package compute abstracts the ephemeral worker instance lifecycle. The
// orchestrator owns create/describe/delete; the only instance that ever
// exists carries a fixed singleton name, which is what makes concurrent
// submissions impossible.
package compute

import (
	"context"
	"errors"
	"time"
)

// InstanceName is the singleton worker instance name. Creating a second
// instance under this name fails at the platform, so mutual exclusion does
// not rely on orchestrator bookkeeping alone.
const InstanceName = "quantplane-worker"

// ErrNotFound is returned by Describe when no instance exists.
var ErrNotFound = errors.New("compute: instance not found")

// InstanceSpec describes the worker instance to create. Metadata carries the
// job request fields plus the bootstrap script; MaxLifetime is the platform
// reaper that guarantees teardown even when every explicit delete fails.
type InstanceSpec struct {
	Name        string
	MachineType string
	Zone        string
	DiskSizeGB  int64
	DiskType    string
	Metadata    map[string]string
	MaxLifetime time.Duration
}

// Instance is the describe-side view of the worker.
type Instance struct {
	Name    string
	Status  string
	Zone    string
	Created time.Time
}

// Instance status values as reported by the platform.
const (
	StatusProvisioning = "PROVISIONING"
	StatusStaging      = "STAGING"
	StatusRunning      = "RUNNING"
	StatusStopping     = "STOPPING"
	StatusTerminated   = "TERMINATED"
)

// Stopped reports whether the instance has reached a state it will not run
// from again.
func (i Instance) Stopped() bool {
	return i.Status == StatusStopping || i.Status == StatusTerminated
}

// Manager is the instance lifecycle capability used by the orchestrator.
// Delete must be idempotent: deleting an absent instance is a no-op, which
// is what makes unconditional cleanup safe.
type Manager interface {
	Create(ctx context.Context, spec InstanceSpec) error
	Describe(ctx context.Context, name string) (Instance, error)
	Delete(ctx context.Context, name string) error
}
