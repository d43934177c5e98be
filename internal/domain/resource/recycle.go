package resource

import (
	"context"
)

// Recycle asks the pool to re-offer this resource to waiting candidates
// immediately. If the pool is missing or fails, the resource is reset
// locally so it is never left held but abandoned. Recycle returns the pool
// error, if any, for logging; the resource is consistent either way.
//
// Recycle must not be called from the execution context that currently holds
// the resource, nor with the guard held. A nested call on the same resource
// while a recycle is unwinding returns ErrRecycleInProgress without touching
// state.
func (r *Resource) Recycle(ctx context.Context) error {
	r.lock()
	if r.recycling {
		r.unlock()
		return ErrRecycleInProgress
	}
	r.recycling = true
	recycler := r.recycler
	r.unlock()

	err := ErrNoRecycler
	if recycler != nil {
		err = recycler.Recycle(ctx, []*Resource{r})
	}

	r.lock()
	defer r.unlock()
	r.recycling = false
	if err != nil {
		r.Reset()
		return err
	}
	r.record(EventNameRecycled, nil)
	return nil
}

// IsRecycling reports whether a recycle of this resource is unwinding. The
// caller must hold the guard.
func (r *Resource) IsRecycling() bool {
	return r.recycling
}

func (r *Resource) lock() {
	if r.guard != nil {
		r.guard.Lock()
	}
}

func (r *Resource) unlock() {
	if r.guard != nil {
		r.guard.Unlock()
	}
}
