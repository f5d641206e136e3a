// Package toolchain wraps the ollama command surface the worker drives. The
// Toolchain interface keeps the pipeline testable without a real install.
package toolchain

import "context"

// Toolchain is the build tool capability used by the worker pipeline.
type Toolchain interface {
	// Installed reports whether the tool is already present on the host.
	Installed() bool

	// Install installs the tool and starts its background service.
	Install(ctx context.Context) error

	// WaitReady polls the background service until it answers, up to the
	// given attempt count.
	WaitReady(ctx context.Context, attempts int) error

	// Create builds a quantized model from a Modelfile.
	Create(ctx context.Context, model, modelfile, quantize string) error

	// Show verifies a model is queryable by name.
	Show(ctx context.Context, model string) error

	// Copy tags a local model under a new name.
	Copy(ctx context.Context, src, dst string) error

	// Push publishes a model to the registry.
	Push(ctx context.Context, model string) error
}

// ExitCoder is implemented by errors that carry a process exit status.
// Marker payloads record it when a stage fails.
type ExitCoder interface {
	ExitCode() int
}

// ExitCode extracts a process exit status from err, or -1 when none exists.
func ExitCode(err error) int {
	for err != nil {
		if ec, ok := err.(ExitCoder); ok {
			return ec.ExitCode()
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return -1
}
