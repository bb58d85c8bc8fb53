package store

import (
	"context"
	"errors"
)

// Sentinel errors returned by collection implementations.
var (
	// ErrWatchUnsupported indicates the deployment cannot serve change
	// streams (standalone Mongo, in-memory store); callers fall back to
	// polling mode.
	ErrWatchUnsupported = errors.New("store: change streams unsupported")

	// ErrNotFound is returned by FindOne when no document matches.
	ErrNotFound = errors.New("store: document not found")
)

// ChangeKind identifies a change stream operation
type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// Change is one normalized change stream event. Doc is nil for deletes and
// for updates where the post-update document was unavailable; the feed
// re-fetches by ID in that case.
type Change[T any] struct {
	Kind ChangeKind
	ID   string
	Doc  *T
}

// ChangeStream yields normalized change events until closed
type ChangeStream[T any] interface {
	// Next blocks for the next change. Returns an error when the stream
	// breaks or ctx is done.
	Next(ctx context.Context) (Change[T], error)
	Close(ctx context.Context) error
}

// Collection is the persistence contract the feeds and stores are written
// against. Implementations must be safe for concurrent use.
type Collection[T any] interface {
	// Name returns the collection name
	Name() string

	// Find returns every document in the collection
	Find(ctx context.Context) ([]*T, error)

	// FindOne returns the document with the given id, or ErrNotFound
	FindOne(ctx context.Context, id string) (*T, error)

	// UpsertOne replaces or inserts the document under id
	UpsertOne(ctx context.Context, id string, doc *T) error

	// DeleteOne removes the document under id; false when absent
	DeleteOne(ctx context.Context, id string) (bool, error)

	// PushField appends values to a string-array field, creating the
	// document when absent ($push $each with upsert)
	PushField(ctx context.Context, id string, field string, values []string) error

	// PullField removes values from a string-array field ($pull $in)
	PullField(ctx context.Context, id string, field string, values []string) error

	// Watch opens a change stream, or returns ErrWatchUnsupported
	Watch(ctx context.Context) (ChangeStream[T], error)

	// OnMutation registers a hook invoked after every mutating operation
	// issued through this collection handle. Polling-mode feeds use it to
	// schedule a full resync.
	OnMutation(fn func())
}
