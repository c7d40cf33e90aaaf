// Package store defines the hierarchical document store the interaction
// engine reads and writes, plus the change-subscription contract layered
// on top of it.
//
// A store is a tree of slash-separated paths. Every path may hold a JSON
// value; children of a path are independent nodes. Writes are last-write-wins
// per path and nothing in this package groups several paths into a
// transaction.
package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned by Get when no value is stored at the path.
	ErrNotFound = errors.New("store: node not found")

	// ErrInvalidPath is returned when a path is empty or contains a reserved character.
	ErrInvalidPath = errors.New("store: invalid path")
)

// Snapshot is one child returned by List.
type Snapshot struct {
	Key  string
	Path string
	Data json.RawMessage
}

// Decode unmarshals the snapshot value into dst.
func (s Snapshot) Decode(dst any) error {
	return json.Unmarshal(s.Data, dst)
}

// ListOptions narrows a List call. Children are always ordered by key, and
// push keys sort by creation time.
type ListOptions struct {
	// Limit caps the number of children returned. Zero means no limit.
	Limit int
	// Before keeps only keys strictly lower than Before.
	Before string
	// Descending returns the highest keys first. Combined with Limit it
	// yields the newest N children.
	Descending bool
}

// Store is the read/write half of a document store client.
type Store interface {
	// Get decodes the value stored at path into dst.
	// Returns ErrNotFound when the path holds no value.
	Get(ctx context.Context, path string, dst any) error

	// Exists reports whether the path holds a value.
	Exists(ctx context.Context, path string) (bool, error)

	// Set replaces the value at path. Descendants of path are removed.
	Set(ctx context.Context, path string, value any) error

	// Update merges fields into the object stored at path, creating it when
	// absent. Field names may be slash-separated to reach nested fields
	// ("read/u42"). A nil value removes the field.
	Update(ctx context.Context, path string, fields map[string]any) error

	// Delete removes path and all of its descendants. Deleting a missing
	// path is not an error.
	Delete(ctx context.Context, path string) error

	// Push stores value under a new time-ordered key below parent and
	// returns that key.
	Push(ctx context.Context, parent string, value any) (string, error)

	// List returns the direct children of parent that hold a value.
	List(ctx context.Context, parent string, opts ListOptions) ([]Snapshot, error)
}

// EventType names the kind of change observed below a watched path.
type EventType string

const (
	ChildAdded   EventType = "child_added"
	ChildChanged EventType = "child_changed"
	ChildRemoved EventType = "child_removed"
)

// Event describes a change to one direct child of a watched path.
type Event struct {
	Type   EventType       `json:"type"`
	Parent string          `json:"parent"`
	Key    string          `json:"key"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Path returns the full path of the changed child.
func (e Event) Path() string {
	return Join(e.Parent, e.Key)
}

// Decode unmarshals the child value carried by the event.
// Removal events carry no value.
func (e Event) Decode(dst any) error {
	if len(e.Data) == 0 {
		return ErrNotFound
	}
	return json.Unmarshal(e.Data, dst)
}

// Handler receives change events. A subscription never runs two handler
// calls at the same time, and calls arrive in publish order.
type Handler func(Event)

// Subscription is the cancellation handle returned by Subscribe.
type Subscription interface {
	// Cancel detaches the handler and waits for an in-flight call to
	// return. It must not be called from inside the handler itself.
	Cancel()
}

// Watcher delivers change events for the direct children of a path.
type Watcher interface {
	Subscribe(ctx context.Context, parent string, fn Handler) (Subscription, error)
}

// Client is a store that also supports subscriptions. Services receive a
// Client instead of reaching for a process-wide handle.
type Client interface {
	Store
	Watcher
}

// NewKey returns a unique key that sorts after every key generated earlier
// by this process.
func NewKey() string {
	return uuid.Must(uuid.NewV7()).String()
}
