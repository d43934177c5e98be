package pool

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/relicta-tech/lockable/internal/domain/resource"
	lrerrors "github.com/relicta-tech/lockable/internal/errors"
)

// Request is a task asking the pool for resources. Its ID doubles as the
// queue item id placed on claimed resources.
type Request struct {
	ID      int64
	Project string
	Selector
}

// Name returns a display name for the request.
func (r *Request) Name() string {
	if r.Project != "" {
		return fmt.Sprintf("%s #%d", r.Project, r.ID)
	}
	return fmt.Sprintf("request #%d", r.ID)
}

// QueueResult reports the outcome of Queue.
type QueueResult struct {
	// Claimed holds the resources claimed for the request, sorted by name.
	Claimed []*resource.Resource
	// Pending is true when too few resources were free and the request
	// waits for a recycle.
	Pending bool
}

// Queue places claims for the request on free, unclaimed resources. When
// fewer than the requested quantity are available nothing is claimed and
// the request is kept pending. Unknown explicit names are created as
// ephemeral resources.
func (m *Manager) Queue(ctx context.Context, req Request) (res QueueResult, err error) {
	const op = "pool.Queue"
	ctx, span := m.inst.Start(ctx, "Queue", attribute.Int64("lockres.request", req.ID))
	defer func() { span.End(ctx, err) }()

	if req.ID == resource.NotQueued {
		return res, lrerrors.Validation(op, "request id must not be zero")
	}
	if err := req.validate(op); err != nil {
		return res, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.publishLocked(ctx)

	claimed, err := m.tryClaimLocked(ctx, &req)
	if err != nil {
		return res, err
	}
	if claimed != nil {
		m.dropPendingLocked(req.ID)
		return QueueResult{Claimed: claimed}, nil
	}
	if !m.isPendingLocked(req.ID) {
		r := req
		m.pending = append(m.pending, &r)
	}
	m.logger.Debug("request pending", "request", req.ID)
	return QueueResult{Pending: true}, nil
}

// tryClaimLocked claims resources for req if enough are free. It returns
// nil without error when the request must wait.
func (m *Manager) tryClaimLocked(ctx context.Context, req *Request) ([]*resource.Resource, error) {
	const op = "pool.Queue"
	var candidates []*resource.Resource
	if len(req.Names) > 0 {
		seen := make(map[string]bool, len(req.Names))
		for _, name := range req.Names {
			if !seen[name] {
				seen[name] = true
				candidates = append(candidates, m.getOrCreateLocked(name))
			}
		}
	} else {
		matched, err := m.matchLocked(ctx, req.Selector)
		if err != nil {
			return nil, err
		}
		candidates = matched
	}

	need := req.Quantity
	if need == 0 {
		need = len(candidates)
	}
	if need == 0 {
		return nil, lrerrors.NotFound(op, "no resources match the request")
	}
	if need > len(candidates) {
		return nil, lrerrors.Validation(op,
			fmt.Sprintf("request needs %d resources but only %d match", need, len(candidates)))
	}

	var free []*resource.Resource
	for _, r := range candidates {
		if !r.IsReserved() && !r.IsLocked() && !r.IsQueuedByOther(req.ID) {
			free = append(free, r)
		}
	}
	if len(free) < need {
		return nil, nil
	}
	free = free[:need]
	for _, r := range free {
		r.SetQueuedForProject(req.ID, req.Project)
	}
	m.logger.Debug("claimed resources", "request", req.ID, "count", len(free))
	return free, nil
}

// Lock turns the claims of request id into locks held by build.
func (m *Manager) Lock(ctx context.Context, id int64, buildID string) (locked []*resource.Resource, err error) {
	const op = "pool.Lock"
	ctx, span := m.inst.Start(ctx, "Lock", attribute.Int64("lockres.request", id), attribute.String("lockres.build", buildID))
	defer func() { span.End(ctx, err) }()

	if strings.TrimSpace(buildID) == "" {
		return nil, lrerrors.Validation(op, "build id must not be blank")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.publishLocked(ctx)

	for _, r := range m.sortedLocked() {
		if id != resource.NotQueued && r.QueueItemID() == id {
			locked = append(locked, r)
		}
	}
	if len(locked) == 0 {
		return nil, lrerrors.NotFound(op, fmt.Sprintf("request %d holds no claims", id))
	}
	for _, r := range locked {
		if err := r.CheckReservable(""); err != nil {
			return nil, lrerrors.ConflictWrap(err, op, "cannot lock")
		}
	}
	for _, r := range locked {
		r.Unqueue()
		r.SetBuild(BuildRef(buildID))
	}
	m.dropPendingLocked(id)
	m.logger.Debug("locked claims", "request", id, "build", buildID, "count", len(locked))
	return locked, nil
}

// Pending returns copies of the waiting requests in arrival order.
func (m *Manager) Pending() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, 0, len(m.pending))
	for _, r := range m.pending {
		out = append(out, *r)
	}
	return out
}

// Cancel drops a pending request and any claims it holds.
func (m *Manager) Cancel(ctx context.Context, id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropPendingLocked(id)
	for _, r := range m.sortedLocked() {
		if r.QueueItemID() == id {
			r.Unqueue()
		}
	}
	m.releaseLocked(ctx)
}

// TaskForItem resolves a queue item id to its pending request. It must not
// be called with the pool lock held.
func (m *Manager) TaskForItem(_ context.Context, itemID int64) (resource.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.pending {
		if r.ID == itemID {
			return r, nil
		}
	}
	return nil, nil
}

func (m *Manager) isPendingLocked(id int64) bool {
	for _, r := range m.pending {
		if r.ID == id {
			return true
		}
	}
	return false
}

func (m *Manager) dropPendingLocked(id int64) {
	kept := m.pending[:0]
	for _, r := range m.pending {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	m.pending = kept
}

// Recycle frees the given resources, re-offers them to pending requests in
// arrival order and discards free ephemeral resources. It implements
// resource.Recycler.
func (m *Manager) Recycle(ctx context.Context, resources []*resource.Resource) (err error) {
	names := make([]string, 0, len(resources))
	for _, r := range resources {
		names = append(names, r.Name())
	}
	ctx, span := m.inst.Start(ctx, "Recycle", namesAttr(names))
	defer func() { span.End(ctx, err) }()

	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range resources {
		r.Reset()
	}
	m.releaseLocked(ctx)
	m.logger.Debug("recycled resources", "resources", names)
	return nil
}

// RecycleNames recycles the named resources through each resource, so the
// configured recycler middleware applies. Failures are joined; the
// resources are free either way.
func (m *Manager) RecycleNames(ctx context.Context, names []string) error {
	m.mu.Lock()
	rs, err := m.lookupLocked("pool.RecycleNames", names)
	m.mu.Unlock()
	if err != nil {
		return err
	}

	var errs []error
	for _, r := range rs {
		if err := r.Recycle(ctx); err != nil {
			m.logger.Warn("recycle fell back to reset", "resource", r.Name(), "error", err)
			errs = append(errs, fmt.Errorf("recycling %s: %w", r.Name(), err))
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseLocked(ctx)
	return errors.Join(errs...)
}

// releaseLocked re-offers free resources to pending requests, drops free
// ephemeral resources and publishes events.
func (m *Manager) releaseLocked(ctx context.Context) {
	waiting := append([]*Request(nil), m.pending...)
	for _, req := range waiting {
		claimed, err := m.tryClaimLocked(ctx, req)
		if err != nil {
			m.logger.Warn("dropping pending request", "request", req.ID, "error", err)
			m.dropPendingLocked(req.ID)
			continue
		}
		if claimed != nil {
			m.dropPendingLocked(req.ID)
			m.logger.Info("pending request claimed resources", "request", req.ID, "count", len(claimed))
		}
	}

	for name, r := range m.resources {
		if r.IsEphemeral() && r.IsFree() {
			m.pullLocked(ctx, r)
			delete(m.resources, name)
			m.logger.Info("removed free ephemeral resource", "resource", name)
		}
	}
	m.publishLocked(ctx)
}
