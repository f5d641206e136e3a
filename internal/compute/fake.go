package compute

import (
	"context"
	"sync"
	"time"
)

// Fake is an in-process Manager used by orchestrator tests. At most one
// instance can exist, mirroring the platform's name collision behavior.
type Fake struct {
	mu       sync.Mutex
	instance *Instance
	metadata map[string]string

	// CreateErr, when set, is returned by Create. Models provisioning
	// rejection.
	CreateErr error

	// OnCreate, when set, runs after a successful Create. Tests use it to
	// play the worker's part against the channel.
	OnCreate func(spec InstanceSpec)

	// Creates and Deletes count lifecycle calls for assertions.
	Creates int
	Deletes int
}

// NewFake returns a Fake with no instance.
func NewFake() *Fake {
	return &Fake{}
}

func (f *Fake) Create(ctx context.Context, spec InstanceSpec) error {
	f.mu.Lock()
	f.Creates++
	if f.CreateErr != nil {
		f.mu.Unlock()
		return f.CreateErr
	}
	if f.instance != nil {
		f.mu.Unlock()
		return &nameInUseError{name: spec.Name}
	}
	f.instance = &Instance{
		Name:    spec.Name,
		Status:  StatusRunning,
		Zone:    spec.Zone,
		Created: time.Now(),
	}
	f.metadata = spec.Metadata
	f.mu.Unlock()

	if f.OnCreate != nil {
		f.OnCreate(spec)
	}
	return nil
}

func (f *Fake) Describe(ctx context.Context, name string) (Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.instance == nil || f.instance.Name != name {
		return Instance{}, ErrNotFound
	}
	return *f.instance, nil
}

func (f *Fake) Delete(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Deletes++
	if f.instance != nil && f.instance.Name == name {
		f.instance = nil
		f.metadata = nil
	}
	return nil
}

// SetStatus flips the current instance's status mid-test.
func (f *Fake) SetStatus(status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.instance != nil {
		f.instance.Status = status
	}
}

// Exists reports whether an instance currently exists.
func (f *Fake) Exists() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.instance != nil
}

// Metadata returns the metadata of the current instance, nil when absent.
func (f *Fake) Metadata() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.metadata
}

type nameInUseError struct{ name string }

func (e *nameInUseError) Error() string {
	return "compute: instance name already in use: " + e.name
}
