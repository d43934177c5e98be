package resource

import (
	"context"
	"time"
)

// Clock provides time-related functionality.
// This abstraction enables testing with controlled time.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// RealClock implements Clock using the system time.
type RealClock struct{}

// Now returns the current system time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// Build is a live handle to a running task that holds a resource.
type Build interface {
	// ExternalID returns the durable identifier of the build. It is the only
	// part of the build relationship that is persisted.
	ExternalID() string
	// DisplayName returns a human readable name for the build.
	DisplayName() string
}

// BuildResolver resolves a durable build identifier back to a live handle.
type BuildResolver interface {
	ResolveBuild(ctx context.Context, externalID string) (Build, error)
}

// Task is a pending unit of work waiting in the scheduler queue.
type Task interface {
	// Name returns the display name of the task.
	Name() string
}

// QueueItemResolver resolves a queue item id to its owning task.
type QueueItemResolver interface {
	// TaskForItem returns the task owning the queue item, or nil when the
	// item is no longer queued.
	TaskForItem(ctx context.Context, itemID int64) (Task, error)
}

// User is an identity known to the user directory.
type User struct {
	Name  string
	Email string
}

// UserDirectory looks up users by name.
type UserDirectory interface {
	// LookupUser returns the user with the given name, or nil if unknown.
	LookupUser(ctx context.Context, name string) (*User, error)
}

// Recycler re-offers resources to whoever is waiting for them.
// The pool implements it.
type Recycler interface {
	Recycle(ctx context.Context, resources []*Resource) error
}

// Script is an externally supplied boolean expression evaluated against a
// resource's binding surface. The resource only contributes the bindings.
type Script interface {
	// Source returns the script text, used for logging and error messages.
	Source() string
	// Evaluate runs the script against the bindings and returns its result.
	Evaluate(ctx context.Context, bindings map[string]any) (any, error)
}
