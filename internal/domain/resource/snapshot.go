package resource

import (
	"time"
)

// Snapshot is the persistable live state of a resource. The build is kept
// only as its durable identifier.
type Snapshot struct {
	Name             string
	Description      string
	Labels           string
	Note             string
	Ephemeral        bool
	ReservedBy       string
	ReservedAt       *time.Time
	Stolen           bool
	BuildID          string
	LockedAt         *time.Time
	QueueItemID      int64
	QueueItemProject string
	QueuingStarted   int64
}

// Snapshot captures the current state. The queue timeout is applied first.
func (r *Resource) Snapshot() Snapshot {
	r.validateQueuingTimeout()
	s := Snapshot{
		Name:             r.name,
		Description:      r.description,
		Labels:           r.labels,
		Note:             r.note,
		Ephemeral:        r.ephemeral,
		ReservedBy:       r.reservedBy,
		Stolen:           r.stolen,
		BuildID:          r.buildID,
		QueueItemID:      r.claim.itemID,
		QueueItemProject: r.claim.project,
		QueuingStarted:   r.claim.started,
	}
	if r.reservedAt != nil {
		s.ReservedAt = timePtr(*r.reservedAt)
	} else if !r.IsReserved() && !r.IsLocked() && r.carriedAt != nil {
		s.ReservedAt = timePtr(*r.carriedAt)
	}
	if r.lockedAt != nil {
		s.LockedAt = timePtr(*r.lockedAt)
	}
	return s
}

// FromSnapshot rebuilds a resource from persisted state.
func FromSnapshot(s Snapshot, opts ...Option) *Resource {
	r := New(s.Name, opts...)
	r.Restore(s)
	return r
}

// Restore overwrites the live state with s, keeping the name.
// No domain events are recorded.
func (r *Resource) Restore(s Snapshot) {
	r.description = s.Description
	r.labels = s.Labels
	r.note = s.Note
	r.ephemeral = s.Ephemeral
	r.reservedBy = s.ReservedBy
	r.stolen = s.Stolen && s.ReservedBy != ""
	r.buildID = s.BuildID
	r.build = nil
	r.reservedAt, r.lockedAt, r.carriedAt = nil, nil, nil
	if s.ReservedAt != nil {
		if s.ReservedBy != "" {
			r.reservedAt = timePtr(*s.ReservedAt)
		} else if s.BuildID == "" {
			r.carriedAt = timePtr(*s.ReservedAt)
		}
	}
	if s.LockedAt != nil && s.BuildID != "" {
		r.lockedAt = timePtr(*s.LockedAt)
	}
	r.claim = queueClaim{itemID: s.QueueItemID, project: s.QueueItemProject, started: s.QueuingStarted}
	r.machine.Sync(r.fieldState())
}
