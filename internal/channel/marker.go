package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"
)

// Object name layout inside the channel. Markers live under status/, the
// worker's asset cache under cache/ and packaged models under artifacts/.
const (
	StatusPrefix   = "status/"
	CachePrefix    = "cache/"
	ArtifactPrefix = "artifacts/"
)

// BuiltName returns the marker name signalling a completed quantization for
// the variant.
func BuiltName(variant string) string {
	return StatusPrefix + variant + ".built"
}

// PushedName returns the marker name signalling a completed registry push.
func PushedName(variant string) string {
	return StatusPrefix + variant + ".pushed"
}

// FailName returns the marker name signalling a terminal worker failure.
func FailName(variant string) string {
	return StatusPrefix + variant + "-error.fail"
}

// LogName returns the object name of the worker's uploaded build log.
func LogName(variant string) string {
	return StatusPrefix + variant + "-build.log"
}

// ArtifactName returns the object name of a packaged model archive.
func ArtifactName(model, variant string) string {
	return ArtifactPrefix + fmt.Sprintf("%s-%s.tgz", model, variant)
}

// CacheDir returns the cache prefix for a source model reference. Slashes in
// the reference (e.g. "meta-llama/Llama-3-70B") become path separators under
// the prefix.
func CacheDir(source string) string {
	return CachePrefix + path.Clean(source) + "/"
}

// CacheCompleteName is the completeness marker inside a cache directory. A
// cache prefix without it is a miss regardless of what else is there.
func CacheCompleteName(source string) string {
	return CacheDir(source) + ".complete"
}

// BuiltMarker is the payload of a .built marker.
type BuiltMarker struct {
	Timestamp time.Time `json:"timestamp"`
	Artifact  string    `json:"artifact"`
	SizeBytes int64     `json:"size_bytes"`
	Duration  string    `json:"duration"`
}

// PushedMarker is the payload of a .pushed marker.
type PushedMarker struct {
	Timestamp time.Time `json:"timestamp"`
	Target    string    `json:"target"`
	Duration  string    `json:"duration"`
}

// FailMarker is the payload of an -error.fail marker. Stage names the
// pipeline stage that failed; ExitCode carries the toolchain exit status
// when one exists, -1 otherwise.
type FailMarker struct {
	Timestamp time.Time `json:"timestamp"`
	Stage     string    `json:"stage"`
	ExitCode  int       `json:"exit_code"`
	Message   string    `json:"message"`
}

// WriteMarker marshals a payload and stores it under the given marker name.
func WriteMarker(ctx context.Context, ch StatusChannel, name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal marker %s: %w", name, err)
	}
	return ch.Put(ctx, name, data)
}

// ReadMarker fetches a marker and unmarshals it into out. Returns
// ErrNotExist when the marker is absent.
func ReadMarker(ctx context.Context, ch StatusChannel, name string, out any) error {
	data, err := ch.Get(ctx, name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal marker %s: %w", name, err)
	}
	return nil
}

// markerNames returns every marker name the current protocol generation can
// write for a variant.
func markerNames(variant string) []string {
	return []string{
		BuiltName(variant),
		PushedName(variant),
		FailName(variant),
		LogName(variant),
	}
}

// legacyMarkerNames returns the unprefixed names an earlier protocol
// generation wrote at the channel root. They are cleared alongside the
// current names so an attempt can never inherit a marker from before the
// status/ layout existed.
func legacyMarkerNames(variant string) []string {
	return []string{
		variant + ".built",
		variant + ".pushed",
		variant + "-error.fail",
		variant + "-build.log",
	}
}

// ClearMarkers deletes every marker for a variant, current and legacy
// generation alike. After it returns, a marker's presence always means the
// in-flight attempt wrote it.
func ClearMarkers(ctx context.Context, ch StatusChannel, variant string) error {
	names := append(markerNames(variant), legacyMarkerNames(variant)...)
	for _, name := range names {
		if err := ch.Delete(ctx, name); err != nil {
			return fmt.Errorf("clear marker %s: %w", name, err)
		}
	}
	return nil
}
