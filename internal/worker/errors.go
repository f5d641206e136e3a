// Package worker contains the instance-side pipeline: load parameters,
// install the toolchain, acquire the input asset, quantize, push, finalize.
// Every stage failure is terminal; there are no internal retries.
package worker

import (
	"errors"
	"fmt"

	"quantplane/internal/toolchain"
)

// Stage is a pipeline stage name. It appears verbatim in fail markers.
type Stage string

const (
	StageParams    Stage = "params"
	StageToolchain Stage = "toolchain"
	StageAsset     Stage = "asset"
	StageQuantize  Stage = "quantize"
	StagePush      Stage = "push"
)

// StageError is a terminal pipeline failure attributed to one stage.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// ExitCode returns the underlying toolchain exit status, -1 when none.
func (e *StageError) ExitCode() int {
	return toolchain.ExitCode(e.Err)
}

func configErr(format string, args ...any) error {
	return &StageError{Stage: StageParams, Err: fmt.Errorf(format, args...)}
}

func toolchainErr(err error) error {
	return &StageError{Stage: StageToolchain, Err: err}
}

func assetErr(err error) error {
	return &StageError{Stage: StageAsset, Err: err}
}

func buildErr(err error) error {
	return &StageError{Stage: StageQuantize, Err: err}
}

func pushErr(err error) error {
	return &StageError{Stage: StagePush, Err: err}
}

// FailedStage extracts the stage from a pipeline error, or "" when err is
// not a StageError.
func FailedStage(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
