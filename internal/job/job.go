// Package job defines the job request shared between the orchestrator and
// the worker. The request crosses the process boundary as instance metadata,
// so the metadata key schema lives here next to the struct it encodes.
package job

import (
	"fmt"
	"sort"
)

// Action selects which pipeline stages the worker runs.
type Action string

const (
	ActionBuild     Action = "build"
	ActionPush      Action = "push"
	ActionBuildPush Action = "build+push"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionBuild, ActionPush, ActionBuildPush:
		return true
	}
	return false
}

// Builds reports whether the action includes the build stage.
func (a Action) Builds() bool { return a == ActionBuild || a == ActionBuildPush }

// Pushes reports whether the action includes the push stage.
func (a Action) Pushes() bool { return a == ActionPush || a == ActionBuildPush }

// Metadata keys carried on the worker instance.
const (
	MetaAction      = "quantplane-action"
	MetaVariant     = "quantplane-variant"
	MetaBucket      = "quantplane-bucket"
	MetaNamespace   = "quantplane-namespace"
	MetaModel       = "quantplane-model"
	MetaSource      = "quantplane-source"
	MetaHFToken     = "quantplane-hf-token"
	MetaRegistryKey = "quantplane-registry-key"
)

// Request is one immutable job submission. It exists only as instance
// metadata for the duration of the attempt and is never persisted anywhere
// else.
type Request struct {
	Action    Action
	Variant   string
	Model     string // short model name, used in artifact and tag names
	Source    string // Hugging Face source reference
	Namespace string // destination namespace for pushes
	Bucket    string // status channel bucket

	HFToken     string // build actions
	RegistryKey string // push actions: signing key content
}

// Metadata encodes the request as instance metadata.
func (r Request) Metadata() map[string]string {
	m := map[string]string{
		MetaAction:    string(r.Action),
		MetaVariant:   r.Variant,
		MetaBucket:    r.Bucket,
		MetaNamespace: r.Namespace,
		MetaModel:     r.Model,
		MetaSource:    r.Source,
	}
	if r.HFToken != "" {
		m[MetaHFToken] = r.HFToken
	}
	if r.RegistryKey != "" {
		m[MetaRegistryKey] = r.RegistryKey
	}
	return m
}

// FromMetadata decodes a request from an instance metadata lookup function.
// Missing required keys are a fatal configuration problem on the worker side.
func FromMetadata(get func(key string) (string, error)) (Request, error) {
	var r Request
	var missing []string

	lookup := func(key string, dst *string, required bool) {
		v, err := get(key)
		if (err != nil || v == "") && required {
			missing = append(missing, key)
			return
		}
		*dst = v
	}

	var action string
	lookup(MetaAction, &action, true)
	lookup(MetaVariant, &r.Variant, true)
	lookup(MetaBucket, &r.Bucket, true)
	lookup(MetaNamespace, &r.Namespace, true)
	lookup(MetaModel, &r.Model, true)
	lookup(MetaSource, &r.Source, false)
	lookup(MetaHFToken, &r.HFToken, false)
	lookup(MetaRegistryKey, &r.RegistryKey, false)

	if len(missing) > 0 {
		sort.Strings(missing)
		return Request{}, fmt.Errorf("missing instance metadata: %v", missing)
	}

	r.Action = Action(action)
	if !r.Action.Valid() {
		return Request{}, fmt.Errorf("unknown action %q in instance metadata", action)
	}
	return r, nil
}
