package pool

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/relicta-tech/lockable/internal/domain/resource"
	lrerrors "github.com/relicta-tech/lockable/internal/errors"
)

func namesAttr(names []string) attribute.KeyValue {
	return attribute.StringSlice("lockres.resources", names)
}

// Reserve reserves every named resource for holder. Either all resources
// are reserved or none is: a resource held by someone else, or claimed by a
// queued request, fails the whole call.
func (m *Manager) Reserve(ctx context.Context, names []string, holder string) (err error) {
	const op = "pool.Reserve"
	ctx, span := m.inst.Start(ctx, "Reserve", namesAttr(names))
	defer func() { span.End(ctx, err) }()

	holder = strings.TrimSpace(holder)
	if holder == "" {
		return lrerrors.Validation(op, "holder must not be blank")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	rs, err := m.lookupLocked(op, names)
	if err != nil {
		return err
	}
	for _, r := range rs {
		if err := r.CheckReservable(holder); err != nil {
			return lrerrors.ConflictWrap(err, op, "cannot reserve")
		}
		if r.IsQueued() {
			return lrerrors.Conflict(op, fmt.Sprintf("[%s] is queued by request %d", r.Name(), r.QueueItemID()))
		}
	}
	for _, r := range rs {
		r.Reserve(holder)
	}
	m.publishLocked(ctx)
	m.logger.Debug("reserved resources", "resources", names, "holder", holder)
	return nil
}

// Unreserve releases the reservation of every named resource and re-offers
// the freed resources to pending requests. When holder is not blank, each
// resource must be reserved by holder.
func (m *Manager) Unreserve(ctx context.Context, names []string, holder string) (err error) {
	const op = "pool.Unreserve"
	ctx, span := m.inst.Start(ctx, "Unreserve", namesAttr(names))
	defer func() { span.End(ctx, err) }()

	m.mu.Lock()
	defer m.mu.Unlock()
	rs, err := m.lookupLocked(op, names)
	if err != nil {
		return err
	}
	if strings.TrimSpace(holder) != "" {
		for _, r := range rs {
			if err := r.CheckHeldBy(holder); err != nil {
				return lrerrors.ConflictWrap(err, op, "cannot unreserve")
			}
		}
	}
	for _, r := range rs {
		r.Unreserve()
	}
	m.releaseLocked(ctx)
	m.logger.Debug("unreserved resources", "resources", names)
	return nil
}

// Steal reserves every named resource for holder, taking over any existing
// reservation. Resources that were held by someone else are marked stolen.
func (m *Manager) Steal(ctx context.Context, names []string, holder string) (err error) {
	const op = "pool.Steal"
	ctx, span := m.inst.Start(ctx, "Steal", namesAttr(names))
	defer func() { span.End(ctx, err) }()

	holder = strings.TrimSpace(holder)
	if holder == "" {
		return lrerrors.Validation(op, "holder must not be blank")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	rs, err := m.lookupLocked(op, names)
	if err != nil {
		return err
	}
	for _, r := range rs {
		taken := r.CheckReservable(holder) != nil
		if r.IsQueued() {
			m.logger.Info("steal dropped queue claim", "resource", r.Name(), "request", r.QueueItemID())
			r.Unqueue()
		}
		r.Reserve(holder)
		if taken {
			r.MarkStolen()
			m.logger.Info("stole resource", "resource", r.Name(), "holder", holder)
		}
	}
	m.publishLocked(ctx)
	return nil
}

// LockNames locks every named resource for build. Unknown names are created
// as ephemeral resources. Either all resources are locked or none is.
func (m *Manager) LockNames(ctx context.Context, names []string, buildID string) (err error) {
	const op = "pool.LockNames"
	ctx, span := m.inst.Start(ctx, "LockNames", namesAttr(names), attribute.String("lockres.build", buildID))
	defer func() { span.End(ctx, err) }()

	if strings.TrimSpace(buildID) == "" {
		return lrerrors.Validation(op, "build id must not be blank")
	}
	if len(names) == 0 {
		return lrerrors.Validation(op, "no resources named")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var rs []*resource.Resource
	for _, name := range names {
		if r, ok := m.resources[name]; ok {
			if err := r.CheckReservable(""); err != nil {
				return lrerrors.ConflictWrap(err, op, "cannot lock")
			}
			if r.IsQueued() {
				return lrerrors.Conflict(op, fmt.Sprintf("[%s] is queued by request %d", name, r.QueueItemID()))
			}
		}
	}
	for _, name := range names {
		rs = append(rs, m.getOrCreateLocked(name))
	}
	for _, r := range rs {
		r.SetBuild(BuildRef(buildID))
	}
	m.publishLocked(ctx)
	m.logger.Debug("locked resources", "resources", names, "build", buildID)
	return nil
}

// Unlock releases the build lock of every named resource and re-offers the
// freed resources.
func (m *Manager) Unlock(ctx context.Context, names []string) (err error) {
	const op = "pool.Unlock"
	ctx, span := m.inst.Start(ctx, "Unlock", namesAttr(names))
	defer func() { span.End(ctx, err) }()

	m.mu.Lock()
	defer m.mu.Unlock()
	rs, err := m.lookupLocked(op, names)
	if err != nil {
		return err
	}
	for _, r := range rs {
		r.SetBuild(nil)
	}
	m.releaseLocked(ctx)
	m.logger.Debug("unlocked resources", "resources", names)
	return nil
}

// Reset returns every named resource to the free state and re-offers them.
func (m *Manager) Reset(ctx context.Context, names []string) (err error) {
	const op = "pool.Reset"
	ctx, span := m.inst.Start(ctx, "Reset", namesAttr(names))
	defer func() { span.End(ctx, err) }()

	m.mu.Lock()
	defer m.mu.Unlock()
	rs, err := m.lookupLocked(op, names)
	if err != nil {
		return err
	}
	for _, r := range rs {
		r.Reset()
	}
	m.releaseLocked(ctx)
	m.logger.Debug("reset resources", "resources", names)
	return nil
}

// SetNote replaces the note of the named resource.
func (m *Manager) SetNote(ctx context.Context, name, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rs, err := m.lookupLocked("pool.SetNote", []string{name})
	if err != nil {
		return err
	}
	rs[0].SetNote(note)
	return nil
}
