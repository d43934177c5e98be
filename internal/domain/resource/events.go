package resource

import (
	"time"

	"github.com/google/uuid"
)

// DomainEvent is the interface for all resource domain events.
type DomainEvent interface {
	EventID() string
	EventName() string
	OccurredAt() time.Time
	ResourceName() string
}

// Event names emitted by the resource aggregate.
const (
	EventNameReserved     = "resource.reserved"
	EventNameUnreserved   = "resource.unreserved"
	EventNameStolen       = "resource.stolen"
	EventNameLocked       = "resource.locked"
	EventNameUnlocked     = "resource.unlocked"
	EventNameQueued       = "resource.queued"
	EventNameUnqueued     = "resource.unqueued"
	EventNameQueueExpired = "resource.queue_expired"
	EventNameReset        = "resource.reset"
	EventNameRecycled     = "resource.recycled"
)

// Event is the single concrete domain event type. Attrs carries the
// event-specific fields (holder, build id, queue item id, ...).
type Event struct {
	ID       string
	Name     string
	Resource string
	At       time.Time
	Attrs    map[string]any
}

func (e *Event) EventID() string       { return e.ID }
func (e *Event) EventName() string     { return e.Name }
func (e *Event) OccurredAt() time.Time { return e.At }
func (e *Event) ResourceName() string  { return e.Resource }

// record appends a domain event to the aggregate's pending events.
func (r *Resource) record(name string, attrs map[string]any) {
	r.events = append(r.events, &Event{
		ID:       uuid.New().String(),
		Name:     name,
		Resource: r.name,
		At:       r.clock.Now(),
		Attrs:    attrs,
	})
}

// PullEvents returns the pending domain events and clears them.
func (r *Resource) PullEvents() []DomainEvent {
	events := r.events
	r.events = nil
	return events
}
