// Package pool manages a set of lockable resources. A Manager owns every
// resource it creates and serialises all mutations behind one mutex.
package pool

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/relicta-tech/lockable/internal/config"
	"github.com/relicta-tech/lockable/internal/domain/resource"
	lrerrors "github.com/relicta-tech/lockable/internal/errors"
	"github.com/relicta-tech/lockable/internal/predicate"
	"github.com/relicta-tech/lockable/internal/telemetry"
)

// defaultMatchWorkers bounds concurrent predicate evaluation during selection.
const defaultMatchWorkers = 4

// EventPublisher publishes resource domain events.
type EventPublisher interface {
	Publish(ctx context.Context, events ...resource.DomainEvent) error
}

// Manager is the pool of lockable resources.
type Manager struct {
	mu        sync.Mutex
	resources map[string]*resource.Resource
	pending   []*Request

	clock        resource.Clock
	recycler     resource.Recycler
	evaluator    *predicate.Evaluator
	publisher    EventPublisher
	users        resource.UserDirectory
	logger       *log.Logger
	inst         *telemetry.PoolInstruments
	matchWorkers int
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the clock handed to every resource.
func WithClock(clock resource.Clock) Option {
	return func(m *Manager) { m.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithPublisher sets the domain event publisher.
func WithPublisher(publisher EventPublisher) Option {
	return func(m *Manager) { m.publisher = publisher }
}

// WithEvaluator sets the predicate evaluator used for script selection.
func WithEvaluator(evaluator *predicate.Evaluator) Option {
	return func(m *Manager) { m.evaluator = evaluator }
}

// WithUserDirectory sets the directory used to resolve holder addresses.
func WithUserDirectory(users resource.UserDirectory) Option {
	return func(m *Manager) { m.users = users }
}

// WithRecyclerMiddleware wraps the recycler that resources call back into.
// The wrapped recycler must eventually call the manager.
func WithRecyclerMiddleware(wrap func(next resource.Recycler) resource.Recycler) Option {
	return func(m *Manager) { m.recycler = wrap(m) }
}

// WithMatchWorkers bounds concurrent predicate evaluation.
func WithMatchWorkers(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.matchWorkers = n
		}
	}
}

// New creates an empty pool.
func New(opts ...Option) *Manager {
	m := &Manager{
		resources:    make(map[string]*resource.Resource),
		clock:        resource.RealClock{},
		matchWorkers: defaultMatchWorkers,
	}
	m.recycler = m
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = log.New(io.Discard)
	}
	if m.evaluator == nil {
		m.evaluator = predicate.NewEvaluator(m.logger)
	}
	m.inst = telemetry.NewPoolInstruments()
	return m
}

func (m *Manager) resourceOptions() []resource.Option {
	return []resource.Option{
		resource.WithClock(m.clock),
		resource.WithRecycler(m.recycler),
		resource.WithBuildResolver(buildResolver{}),
		resource.WithQueueResolver(m),
		resource.WithUserDirectory(m.users),
		resource.WithGuard(&m.mu),
	}
}

// Get returns the resource with the given name. The returned resource must
// only be mutated through the manager.
func (m *Manager) Get(name string) (*resource.Resource, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.resources[name]
	return r, ok
}

// GetOrCreate returns the named resource, creating an ephemeral one when the
// name is unknown.
func (m *Manager) GetOrCreate(name string) *resource.Resource {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getOrCreateLocked(name)
}

func (m *Manager) getOrCreateLocked(name string) *resource.Resource {
	if r, ok := m.resources[name]; ok {
		return r
	}
	opts := append(m.resourceOptions(), resource.Ephemeral())
	r := resource.New(name, opts...)
	m.resources[name] = r
	m.logger.Info("created ephemeral resource", "resource", name)
	return r
}

// Resources returns every resource sorted by name.
func (m *Manager) Resources() []*resource.Resource {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedLocked()
}

func (m *Manager) sortedLocked() []*resource.Resource {
	out := make([]*resource.Resource, 0, len(m.resources))
	for _, r := range m.resources {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Snapshots captures the live state of every resource, sorted by name.
func (m *Manager) Snapshots() []resource.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	sorted := m.sortedLocked()
	out := make([]resource.Snapshot, 0, len(sorted))
	for _, r := range sorted {
		out = append(out, r.Snapshot())
	}
	return out
}

// Reload applies resource definitions. Live instances are reused by name so
// ownership survives; new names are created; names no longer defined are
// dropped when free and turned ephemeral otherwise.
func (m *Manager) Reload(ctx context.Context, defs []config.ResourceConfig) (err error) {
	ctx, op := m.inst.Start(ctx, "Reload", attribute.Int("lockres.definitions", len(defs)))
	defer func() { op.End(ctx, err) }()

	m.mu.Lock()
	defer m.mu.Unlock()

	defined := make(map[string]bool, len(defs))
	for _, def := range defs {
		name := strings.TrimSpace(def.Name)
		if name == "" {
			return lrerrors.Validation("pool.Reload", "resource name must not be blank")
		}
		if defined[name] {
			return lrerrors.Validation("pool.Reload", fmt.Sprintf("resource %q is defined twice", name))
		}
		defined[name] = true

		if r, ok := m.resources[name]; ok {
			r.SetDescription(def.Description)
			r.SetLabels(def.Labels)
			r.SetEphemeral(false)
			continue
		}
		opts := append(m.resourceOptions(),
			resource.WithDescription(def.Description),
			resource.WithLabels(def.Labels),
		)
		m.resources[name] = resource.New(name, opts...)
	}

	for name, r := range m.resources {
		if defined[name] || r.IsEphemeral() {
			continue
		}
		if r.IsFree() {
			m.pullLocked(ctx, r)
			delete(m.resources, name)
			m.logger.Info("removed resource no longer defined", "resource", name)
			continue
		}
		r.SetEphemeral(true)
		m.logger.Info("kept held resource as ephemeral", "resource", name, "cause", r.LockCause())
	}

	m.publishLocked(ctx)
	m.logger.Debug("reloaded resources", "count", len(m.resources))
	return nil
}

// Restore re-applies persisted live state. Configured resources keep their
// descriptor; a free configured resource only takes the persisted note and
// timestamp. Unknown names are restored as they were saved.
func (m *Manager) Restore(snapshots []resource.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range snapshots {
		restored := resource.FromSnapshot(s, m.resourceOptions()...)
		live, ok := m.resources[s.Name]
		if !ok {
			m.resources[s.Name] = restored
			continue
		}
		if restored.OwnershipState() == resource.StateFree && !restored.IsQueued() {
			live.CopyUnconfigurablePropertiesFrom(restored)
			continue
		}
		restored.SetDescription(live.Description())
		restored.SetLabels(live.Labels())
		restored.SetEphemeral(live.IsEphemeral())
		m.resources[s.Name] = restored
	}
	// Restoring records nothing worth publishing.
	for _, r := range m.resources {
		r.PullEvents()
	}
}

// lookupLocked resolves names, failing on the first unknown one.
func (m *Manager) lookupLocked(op string, names []string) ([]*resource.Resource, error) {
	if len(names) == 0 {
		return nil, lrerrors.Validation(op, "no resources named")
	}
	out := make([]*resource.Resource, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		r, ok := m.resources[name]
		if !ok {
			return nil, lrerrors.NotFound(op, fmt.Sprintf("resource %q not found", name)).
				WithDetail("resource", name)
		}
		out = append(out, r)
	}
	return out, nil
}

// pullLocked publishes the pending events of a single resource.
func (m *Manager) pullLocked(ctx context.Context, r *resource.Resource) {
	m.emitLocked(ctx, r.PullEvents())
}

// publishLocked drains and publishes the events of every resource.
func (m *Manager) publishLocked(ctx context.Context) {
	var events []resource.DomainEvent
	for _, r := range m.sortedLocked() {
		if err := r.VerifyState(); err != nil {
			m.logger.Error("ownership state diverged", "resource", r.Name(), "error", err)
		}
		events = append(events, r.PullEvents()...)
	}
	m.emitLocked(ctx, events)
}

func (m *Manager) emitLocked(ctx context.Context, events []resource.DomainEvent) {
	if len(events) == 0 {
		return
	}
	for _, e := range events {
		m.inst.RecordEvent(ctx, e.EventName())
		if e.EventName() == resource.EventNameQueueExpired {
			m.logger.Info("queue claim expired", "resource", e.ResourceName())
			continue
		}
		m.logger.Debug("resource event", "event", e.EventName(), "resource", e.ResourceName())
	}
	if m.publisher == nil {
		return
	}
	if err := m.publisher.Publish(ctx, events...); err != nil {
		m.logger.Warn("failed to publish events", "count", len(events), "error", err)
	}
}

// BuildRef is a build known only by its durable identifier.
type BuildRef string

// ExternalID returns the identifier.
func (b BuildRef) ExternalID() string { return string(b) }

// DisplayName returns the identifier.
func (b BuildRef) DisplayName() string { return string(b) }

type buildResolver struct{}

func (buildResolver) ResolveBuild(_ context.Context, externalID string) (resource.Build, error) {
	return BuildRef(externalID), nil
}
