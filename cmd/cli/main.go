// Package main is the entry point for the quantplane CLI.
// The CLI is the operator terminal tool for driving quantization runs.
package main

import (
	"os"

	"quantplane/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
