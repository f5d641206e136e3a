// Package channel implements the object-storage mailbox shared by the
// orchestrator and the worker. The two processes never talk directly; every
// fact about a job crosses this channel as a named object.
package channel

import (
	"context"
	"errors"
	"time"
)

// ErrNotExist is returned by Get and Stat when the named object is absent.
var ErrNotExist = errors.New("channel: object does not exist")

// ObjectInfo describes a stored object without its payload.
type ObjectInfo struct {
	Name    string
	Size    int64
	Updated time.Time
}

// StatusChannel is the minimal mailbox contract: write-once puts, reads,
// existence checks, prefix listing and deletes. The marker protocol and the
// asset cache are both layered on top of it, so the whole coordination
// scheme can be carried by any object store.
type StatusChannel interface {
	// Put writes an object, replacing any previous content under the name.
	Put(ctx context.Context, name string, data []byte) error

	// Get returns the full payload of an object, or ErrNotExist.
	Get(ctx context.Context, name string) ([]byte, error)

	// Stat reports metadata for an object, or ErrNotExist.
	Stat(ctx context.Context, name string) (ObjectInfo, error)

	// List returns the infos of all objects under the given name prefix,
	// in lexical order.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// Delete removes an object. Deleting an absent object is not an error.
	Delete(ctx context.Context, name string) error
}

// Ensurer is implemented by channels whose backing container can be created
// on demand. The orchestrator calls it once before the first submission.
type Ensurer interface {
	// Ensure idempotently creates the backing container if it is absent.
	Ensure(ctx context.Context) error
}
