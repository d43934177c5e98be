package resource

import (
	"context"
	"time"
)

// queueClaim is a provisional, time-bounded hold placed by a pending task.
type queueClaim struct {
	itemID  int64
	project string
	started int64 // unix seconds, 0 when no claim
}

func (c queueClaim) present() bool {
	return c.itemID != NotQueued
}

// effectiveClaim applies the queue timeout to a claim as observed at now.
// The second result is false when the claim has expired and must be cleared.
func effectiveClaim(c queueClaim, now time.Time) (queueClaim, bool) {
	if c.started > 0 && now.Unix()-c.started > int64(QueueTimeout/time.Second) {
		return queueClaim{}, false
	}
	return c, true
}

// validateQueuingTimeout commits an expired claim. Every queue accessor
// calls it, so reads may mutate state.
func (r *Resource) validateQueuingTimeout() {
	claim, live := effectiveClaim(r.claim, r.now())
	if live {
		return
	}
	expired := r.claim
	r.claim = claim
	r.record(EventNameQueueExpired, map[string]any{
		"queue_item_id": expired.itemID,
		"project":       expired.project,
	})
}

// SetQueued places a claim for queue item id.
func (r *Resource) SetQueued(itemID int64) {
	r.claim.itemID = itemID
	r.claim.started = r.now().Unix()
	r.record(EventNameQueued, map[string]any{"queue_item_id": itemID})
}

// SetQueuedForProject places a claim for queue item id belonging to project.
func (r *Resource) SetQueuedForProject(itemID int64, project string) {
	r.SetQueued(itemID)
	r.claim.project = project
}

// Unqueue clears the claim.
func (r *Resource) Unqueue() {
	had := r.claim.present()
	r.claim = queueClaim{}
	if had {
		r.record(EventNameUnqueued, nil)
	}
}

// IsQueued reports whether a live claim is present.
func (r *Resource) IsQueued() bool {
	r.validateQueuingTimeout()
	return r.claim.present()
}

// IsQueuedByOther reports whether a live claim is held by a task other than
// itemID.
func (r *Resource) IsQueuedByOther(itemID int64) bool {
	r.validateQueuingTimeout()
	return r.claim.present() && r.claim.itemID != itemID
}

// IsQueuedByTask reports whether the live claim belongs to itemID.
func (r *Resource) IsQueuedByTask(itemID int64) bool {
	r.validateQueuingTimeout()
	return r.claim.itemID == itemID
}

// QueueItemID returns the id of the live claim, or NotQueued.
func (r *Resource) QueueItemID() int64 {
	r.validateQueuingTimeout()
	return r.claim.itemID
}

// QueueItemProject returns the project of the live claim, or "".
func (r *Resource) QueueItemProject() string {
	r.validateQueuingTimeout()
	return r.claim.project
}

// QueuingStarted returns when the live claim was placed.
func (r *Resource) QueuingStarted() (time.Time, bool) {
	r.validateQueuingTimeout()
	if r.claim.started == 0 {
		return time.Time{}, false
	}
	return time.Unix(r.claim.started, 0), true
}

// Task resolves the live claim to its owning task, or nil.
func (r *Resource) Task(ctx context.Context) (Task, error) {
	itemID := r.QueueItemID()
	if itemID == NotQueued || r.queueResolver == nil {
		return nil, nil
	}
	return r.queueResolver.TaskForItem(ctx, itemID)
}
