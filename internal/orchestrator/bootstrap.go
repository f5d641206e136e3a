package orchestrator

import (
	"strings"
	"text/template"
)

// The bootstrap script is the instance's startup action. It pulls the worker
// binary from the status channel bucket, where a release build publishes it,
// and hands control to it; everything else the worker reads from its own
// instance metadata.
var bootstrapTemplate = template.Must(template.New("bootstrap").Parse(
	`#!/usr/bin/env bash
set -euo pipefail

BIN=/usr/local/bin/quantplane-worker
for attempt in 1 2 3; do
	gsutil cp gs://{{.Bucket}}/bin/quantplane-worker "$BIN" && break
	sleep 10
done
chmod 0755 "$BIN"

"$BIN" >>/var/log/quantplane-worker.log 2>&1
`))

func renderBootstrap(bucket string) (string, error) {
	var sb strings.Builder
	if err := bootstrapTemplate.Execute(&sb, struct{ Bucket string }{bucket}); err != nil {
		return "", err
	}
	return sb.String(), nil
}
