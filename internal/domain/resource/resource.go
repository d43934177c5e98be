// Package resource provides the lockable resource aggregate: a named,
// mutually exclusive token that build tasks reserve or lock before running.
//
// A Resource holds no locks of its own. The pool that owns it must serialise
// every mutating call (reserve, unreserve, lock, queue, reset, reload) for the
// duration of any read-modify-write sequence. Recycle is the exception: it is
// called without the pool lock and takes the guard supplied by WithGuard
// around its own writes.
package resource

import (
	"sync"
	"time"
)

const (
	// NotQueued is the queue item id reported when no claim is present.
	NotQueued int64 = 0

	// QueueTimeout is how long a queue claim survives without being turned
	// into a lock or reservation.
	QueueTimeout = 60 * time.Second

	// ScriptMarker prefixes a label expression that should be matched as a
	// predicate script rather than a plain label.
	ScriptMarker = "expr:"
)

// Resource is the aggregate root for a single lockable resource.
// Identity is the name; every other field is mutable state.
type Resource struct {
	// Identity
	name string

	// Descriptor (written on configuration reload)
	description string
	labels      string
	note        string
	ephemeral   bool

	// Ownership
	reservedBy string
	reservedAt *time.Time
	stolen     bool
	buildID    string
	build      Build
	lockedAt   *time.Time

	// carriedAt is a timestamp copied from a previous instance while
	// neither a reservation nor a lock owns the timestamp.
	carriedAt *time.Time

	// Queue claim
	claim queueClaim

	// Collaborators
	clock         Clock
	recycler      Recycler
	buildResolver BuildResolver
	queueResolver QueueItemResolver
	users         UserDirectory

	// guard is the owning pool's lock, taken by Recycle.
	guard sync.Locker

	machine   *OwnershipMachine
	recycling bool

	events []DomainEvent
}

// Option configures a Resource.
type Option func(*Resource)

// WithDescription sets the description.
func WithDescription(description string) Option {
	return func(r *Resource) { r.description = description }
}

// WithLabels sets the whitespace delimited label set.
func WithLabels(labels string) Option {
	return func(r *Resource) { r.labels = labels }
}

// WithNote sets the free-form note.
func WithNote(note string) Option {
	return func(r *Resource) { r.note = note }
}

// Ephemeral marks the resource as created on demand.
func Ephemeral() Option {
	return func(r *Resource) { r.ephemeral = true }
}

// WithClock sets the clock used for timestamps and queue expiry.
func WithClock(clock Clock) Option {
	return func(r *Resource) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithRecycler attaches the pool that re-offers this resource on Recycle.
func WithRecycler(recycler Recycler) Option {
	return func(r *Resource) { r.recycler = recycler }
}

// WithBuildResolver attaches the resolver for durable build identifiers.
func WithBuildResolver(resolver BuildResolver) Option {
	return func(r *Resource) { r.buildResolver = resolver }
}

// WithQueueResolver attaches the resolver for queue item ids.
func WithQueueResolver(resolver QueueItemResolver) Option {
	return func(r *Resource) { r.queueResolver = resolver }
}

// WithUserDirectory attaches the user directory used for holder lookups.
func WithUserDirectory(users UserDirectory) Option {
	return func(r *Resource) { r.users = users }
}

// WithGuard sets the lock Recycle holds while it mutates the resource. It
// must be the lock the owning pool serialises mutations with, and Recycle
// must be called without it held.
func WithGuard(guard sync.Locker) Option {
	return func(r *Resource) { r.guard = guard }
}

// New creates a free resource with the given name.
func New(name string, opts ...Option) *Resource {
	r := &Resource{
		name:  name,
		clock: RealClock{},
	}
	r.Apply(opts...)
	r.machine = NewOwnershipMachine()
	r.machine.Start()
	return r
}

// Apply applies options to an existing resource.
func (r *Resource) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(r)
	}
}

// Name returns the resource name.
func (r *Resource) Name() string {
	return r.name
}

// String returns the bare name, the natural key used in logs.
func (r *Resource) String() string {
	return r.name
}

// Equal reports whether two resources share the same name.
func (r *Resource) Equal(other *Resource) bool {
	if r == nil || other == nil {
		return r == other
	}
	return r.name == other.name
}

// Key returns the identity key for maps and sets keyed by resource.
func (r *Resource) Key() string {
	return r.name
}

// Description returns the description.
func (r *Resource) Description() string {
	return r.description
}

// SetDescription sets the description.
func (r *Resource) SetDescription(description string) {
	r.description = description
}

// Labels returns the raw whitespace delimited label string.
func (r *Resource) Labels() string {
	return r.labels
}

// SetLabels sets the raw label string.
func (r *Resource) SetLabels(labels string) {
	r.labels = labels
}

// Note returns the note.
func (r *Resource) Note() string {
	return r.note
}

// SetNote sets the note.
func (r *Resource) SetNote(note string) {
	r.note = note
}

// IsEphemeral reports whether the resource was created on demand.
func (r *Resource) IsEphemeral() bool {
	return r.ephemeral
}

// SetEphemeral sets the ephemeral flag.
func (r *Resource) SetEphemeral(ephemeral bool) {
	r.ephemeral = ephemeral
}

// IsFree reports whether the resource is neither reserved, locked nor queued.
// It applies the queue timeout.
func (r *Resource) IsFree() bool {
	return !r.IsReserved() && !r.IsLocked() && !r.IsQueued()
}

func (r *Resource) now() time.Time {
	return r.clock.Now()
}

func timePtr(t time.Time) *time.Time {
	return &t
}
