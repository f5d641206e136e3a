package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/exec"
	"time"
)

const installScriptURL = "https://ollama.com/install.sh"

// DefaultHost is where the systemd-managed ollama server listens.
const DefaultHost = "http://127.0.0.1:11434"

// Ollama is the real Toolchain implementation, shelling out to the ollama
// binary and probing its HTTP server for readiness.
type Ollama struct {
	host   string
	log    *slog.Logger
	client *http.Client
}

// NewOllama returns a Toolchain talking to the server at host. An empty
// host means DefaultHost.
func NewOllama(host string, log *slog.Logger) *Ollama {
	if host == "" {
		host = DefaultHost
	}
	return &Ollama{
		host:   host,
		log:    log,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (o *Ollama) Installed() bool {
	_, err := exec.LookPath("ollama")
	return err == nil
}

// Install runs the upstream install script, which also registers and starts
// the systemd service.
func (o *Ollama) Install(ctx context.Context) error {
	o.log.Info("installing ollama")
	cmd := exec.CommandContext(ctx, "sh", "-c", fmt.Sprintf("curl -fsSL %s | sh", installScriptURL))
	if out, err := cmd.CombinedOutput(); err != nil {
		return &commandError{op: "install", output: out, err: err}
	}
	return nil
}

// WaitReady polls /api/version until the server answers. One second between
// attempts.
func (o *Ollama) WaitReady(ctx context.Context, attempts int) error {
	for i := 0; i < attempts; i++ {
		resp, err := o.client.Get(o.host + "/api/version")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return fmt.Errorf("ollama server not ready after %d attempts", attempts)
}

func (o *Ollama) Create(ctx context.Context, model, modelfile, quantize string) error {
	args := []string{"create", model, "-f", modelfile}
	if quantize != "" {
		args = append(args, "--quantize", quantize)
	}
	return o.run(ctx, args...)
}

func (o *Ollama) Show(ctx context.Context, model string) error {
	return o.run(ctx, "show", model)
}

func (o *Ollama) Copy(ctx context.Context, src, dst string) error {
	return o.run(ctx, "cp", src, dst)
}

func (o *Ollama) Push(ctx context.Context, model string) error {
	return o.run(ctx, "push", model)
}

func (o *Ollama) run(ctx context.Context, args ...string) error {
	o.log.Info("ollama", "args", args)
	cmd := exec.CommandContext(ctx, "ollama", args...)
	cmd.Env = append(cmd.Environ(), "OLLAMA_HOST="+o.host)

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	if err := cmd.Run(); err != nil {
		return &commandError{op: args[0], output: buf.Bytes(), err: err}
	}
	return nil
}

// commandError carries the command output and the underlying exit status.
type commandError struct {
	op     string
	output []byte
	err    error
}

func (e *commandError) Error() string {
	out := bytes.TrimSpace(e.output)
	if len(out) == 0 {
		return fmt.Sprintf("ollama %s: %v", e.op, e.err)
	}
	return fmt.Sprintf("ollama %s: %v: %s", e.op, e.err, out)
}

func (e *commandError) Unwrap() error { return e.err }

func (e *commandError) ExitCode() int {
	var exitErr *exec.ExitError
	if errors.As(e.err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
