package pool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relicta-tech/lockable/internal/config"
	"github.com/relicta-tech/lockable/internal/domain/resource"
	lrerrors "github.com/relicta-tech/lockable/internal/errors"
	"github.com/relicta-tech/lockable/internal/infrastructure/persistence"
	"github.com/relicta-tech/lockable/internal/infrastructure/resilience"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestManager(t *testing.T, defs ...config.ResourceConfig) (*Manager, *fakeClock, *persistence.InMemoryEventPublisher) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, time.March, 5, 14, 30, 0, 0, time.UTC)}
	pub := persistence.NewInMemoryEventPublisher()
	m := New(WithClock(clock), WithPublisher(pub))
	require.NoError(t, m.Reload(context.Background(), defs))
	return m, clock, pub
}

func eventsNamed(pub *persistence.InMemoryEventPublisher, name string) []resource.DomainEvent {
	var out []resource.DomainEvent
	for _, e := range pub.GetEvents() {
		if e.EventName() == name {
			out = append(out, e)
		}
	}
	return out
}

func defs(names ...string) []config.ResourceConfig {
	out := make([]config.ResourceConfig, 0, len(names))
	for _, n := range names {
		out = append(out, config.ResourceConfig{Name: n})
	}
	return out
}

func mustGet(t *testing.T, m *Manager, name string) *resource.Resource {
	t.Helper()
	r, ok := m.Get(name)
	require.True(t, ok, "resource %s missing", name)
	return r
}

func names(rs []*resource.Resource) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Name())
	}
	return out
}

func TestReload(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t,
		config.ResourceConfig{Name: "a", Labels: "linux"},
		config.ResourceConfig{Name: "b"},
		config.ResourceConfig{Name: "c"},
	)
	require.NoError(t, m.Reserve(ctx, []string{"b"}, "alice"))
	a := mustGet(t, m, "a")

	require.NoError(t, m.Reload(ctx, []config.ResourceConfig{
		{Name: "a", Description: "updated", Labels: "linux arm"},
		{Name: "d"},
	}))

	assert.Equal(t, []string{"a", "b", "d"}, names(m.Resources()))
	assert.Same(t, a, mustGet(t, m, "a"), "live instance is reused")
	assert.Equal(t, "updated", a.Description())
	assert.Equal(t, []string{"linux", "arm"}, a.LabelList())

	b := mustGet(t, m, "b")
	assert.True(t, b.IsEphemeral(), "held resource that is no longer defined turns ephemeral")
	assert.Equal(t, "alice", b.ReservedBy())

	require.NoError(t, m.Unreserve(ctx, []string{"b"}, ""))
	_, ok := m.Get("b")
	assert.False(t, ok, "free ephemeral resource is discarded")
}

func TestReloadRejectsInvalidDefinitions(t *testing.T) {
	m := New()
	err := m.Reload(context.Background(), defs("a", "a"))
	assert.True(t, lrerrors.IsKind(err, lrerrors.KindValidation))

	err = m.Reload(context.Background(), defs(" "))
	assert.True(t, lrerrors.IsKind(err, lrerrors.KindValidation))
}

func TestReloadClearsEphemeral(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t)
	require.NoError(t, m.LockNames(ctx, []string{"x"}, "build-1"))
	assert.True(t, mustGet(t, m, "x").IsEphemeral())

	require.NoError(t, m.Reload(ctx, defs("x")))
	x := mustGet(t, m, "x")
	assert.False(t, x.IsEphemeral())
	assert.Equal(t, "build-1", x.BuildID())
}

func TestReserve(t *testing.T) {
	ctx := context.Background()

	t.Run("all or nothing", func(t *testing.T) {
		m, _, _ := newTestManager(t, defs("a", "b")...)
		require.NoError(t, m.Reserve(ctx, []string{"b"}, "bob"))

		err := m.Reserve(ctx, []string{"a", "b"}, "alice")
		require.Error(t, err)
		assert.True(t, lrerrors.IsKind(err, lrerrors.KindConflict))
		assert.ErrorIs(t, err, resource.ErrAlreadyHeld)
		assert.False(t, mustGet(t, m, "a").IsReserved())
	})

	t.Run("same holder may reserve again", func(t *testing.T) {
		m, _, _ := newTestManager(t, defs("a")...)
		require.NoError(t, m.Reserve(ctx, []string{"a"}, "alice"))
		require.NoError(t, m.Reserve(ctx, []string{"a"}, "alice"))
	})

	t.Run("unknown name", func(t *testing.T) {
		m, _, _ := newTestManager(t, defs("a")...)
		err := m.Reserve(ctx, []string{"zzz"}, "alice")
		assert.True(t, lrerrors.IsKind(err, lrerrors.KindNotFound))
	})

	t.Run("blank holder", func(t *testing.T) {
		m, _, _ := newTestManager(t, defs("a")...)
		err := m.Reserve(ctx, []string{"a"}, "  ")
		assert.True(t, lrerrors.IsKind(err, lrerrors.KindValidation))
	})

	t.Run("queued resource", func(t *testing.T) {
		m, _, _ := newTestManager(t, defs("a")...)
		_, err := m.Queue(ctx, Request{ID: 7, Selector: Selector{Names: []string{"a"}}})
		require.NoError(t, err)
		err = m.Reserve(ctx, []string{"a"}, "alice")
		assert.True(t, lrerrors.IsKind(err, lrerrors.KindConflict))
	})
}

func TestUnreserveChecksHolder(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t, defs("a")...)
	require.NoError(t, m.Reserve(ctx, []string{"a"}, "alice"))

	err := m.Unreserve(ctx, []string{"a"}, "bob")
	assert.ErrorIs(t, err, resource.ErrNotHeld)
	assert.True(t, mustGet(t, m, "a").IsReserved())

	require.NoError(t, m.Unreserve(ctx, []string{"a"}, "alice"))
	assert.False(t, mustGet(t, m, "a").IsReserved())
}

func TestSteal(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t, defs("a", "b")...)
	require.NoError(t, m.Reserve(ctx, []string{"a"}, "alice"))

	require.NoError(t, m.Steal(ctx, []string{"a", "b"}, "bob"))

	a := mustGet(t, m, "a")
	assert.Equal(t, "bob", a.ReservedBy())
	assert.True(t, a.IsStolen())

	b := mustGet(t, m, "b")
	assert.Equal(t, "bob", b.ReservedBy())
	assert.False(t, b.IsStolen(), "a free resource is not stolen")
}

func TestStealClearsQueueClaim(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t, defs("a")...)
	_, err := m.Queue(ctx, Request{ID: 7, Selector: Selector{Names: []string{"a"}}})
	require.NoError(t, err)

	require.NoError(t, m.Steal(ctx, []string{"a"}, "bob"))

	a := mustGet(t, m, "a")
	assert.Equal(t, "bob", a.ReservedBy())
	assert.False(t, a.IsQueued())
	assert.Equal(t, resource.NotQueued, a.QueueItemID())
	assert.False(t, a.IsStolen(), "a queue claim is not ownership")
}

func TestLockNames(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t, defs("a")...)

	require.NoError(t, m.LockNames(ctx, []string{"a", "tmp"}, "job#1"))
	a := mustGet(t, m, "a")
	assert.Equal(t, resource.StateLocked, a.OwnershipState())
	assert.Equal(t, "job#1", a.BuildName(ctx))
	assert.True(t, mustGet(t, m, "tmp").IsEphemeral())

	err := m.LockNames(ctx, []string{"a"}, "job#2")
	assert.True(t, lrerrors.IsKind(err, lrerrors.KindConflict))

	require.NoError(t, m.Unlock(ctx, []string{"a", "tmp"}))
	assert.True(t, a.IsFree())
	_, ok := m.Get("tmp")
	assert.False(t, ok)
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t, defs("a")...)
	require.NoError(t, m.Reserve(ctx, []string{"a"}, "alice"))
	require.NoError(t, m.Reset(ctx, []string{"a"}))
	assert.Equal(t, resource.StateFree, mustGet(t, m, "a").OwnershipState())

	assert.True(t, lrerrors.IsKind(m.Reset(ctx, nil), lrerrors.KindValidation))
}

func TestSetNote(t *testing.T) {
	m, _, _ := newTestManager(t, defs("a")...)
	require.NoError(t, m.SetNote(context.Background(), "a", "flaky fan"))
	assert.Equal(t, "flaky fan", mustGet(t, m, "a").Note())
	assert.Error(t, m.SetNote(context.Background(), "b", "x"))
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t,
		config.ResourceConfig{Name: "held", Labels: "configured"},
		config.ResourceConfig{Name: "free", Labels: "configured"},
	)
	ts := time.Date(2024, time.January, 2, 3, 4, 5, 0, time.UTC)

	m.Restore([]resource.Snapshot{
		{Name: "held", Labels: "stale", ReservedBy: "alice", ReservedAt: &ts},
		{Name: "free", Labels: "stale", Note: "kept", ReservedAt: &ts},
		{Name: "orphan", Ephemeral: true, BuildID: "job#3", LockedAt: &ts},
	})

	held := mustGet(t, m, "held")
	assert.Equal(t, "alice", held.ReservedBy())
	assert.Equal(t, "configured", held.Labels())
	require.NotNil(t, held.ReservedTimestamp())
	assert.True(t, ts.Equal(*held.ReservedTimestamp()))

	free := mustGet(t, m, "free")
	assert.Equal(t, "configured", free.Labels())
	assert.Equal(t, "kept", free.Note())
	require.NotNil(t, free.ReservedTimestamp())

	orphan := mustGet(t, m, "orphan")
	assert.Equal(t, "job#3", orphan.BuildID())

	// Held resources keep working through the pool after a restore.
	require.NoError(t, m.Unreserve(ctx, []string{"held"}, "alice"))
}

func TestSnapshotsSorted(t *testing.T) {
	m, _, _ := newTestManager(t, defs("c", "a", "b")...)
	snaps := m.Snapshots()
	require.Len(t, snaps, 3)
	assert.Equal(t, "a", snaps[0].Name)
	assert.Equal(t, "c", snaps[2].Name)
}

func TestEventsArePublished(t *testing.T) {
	ctx := context.Background()
	m, _, pub := newTestManager(t, defs("a")...)
	require.NoError(t, m.Reserve(ctx, []string{"a"}, "alice"))
	require.NoError(t, m.Unreserve(ctx, []string{"a"}, ""))

	assert.Len(t, eventsNamed(pub, resource.EventNameReserved), 1)
	assert.Len(t, eventsNamed(pub, resource.EventNameUnreserved), 1)
	assert.Len(t, pub.GetEvents(), 2)
}

func TestRecycleNamesThroughResilience(t *testing.T) {
	ctx := context.Background()
	cfg := resilience.DefaultConfig()
	m := New(WithRecyclerMiddleware(func(next resource.Recycler) resource.Recycler {
		return resilience.NewRecycler(next, cfg, nil)
	}))
	require.NoError(t, m.Reload(ctx, defs("a")))
	require.NoError(t, m.Reserve(ctx, []string{"a"}, "alice"))

	require.NoError(t, m.RecycleNames(ctx, []string{"a"}))
	assert.True(t, mustGet(t, m, "a").IsFree())
}

type recyclerFunc func(ctx context.Context, resources []*resource.Resource) error

func (f recyclerFunc) Recycle(ctx context.Context, resources []*resource.Resource) error {
	return f(ctx, resources)
}

func TestRecycleNamesFallbackHoldsPoolLock(t *testing.T) {
	ctx := context.Background()
	var m *Manager
	var unlockedDuringCall bool
	pub := persistence.NewInMemoryEventPublisher()
	m = New(WithPublisher(pub), WithRecyclerMiddleware(func(resource.Recycler) resource.Recycler {
		return recyclerFunc(func(context.Context, []*resource.Resource) error {
			if m.mu.TryLock() {
				unlockedDuringCall = true
				m.mu.Unlock()
			}
			return errors.New("circuit open")
		})
	}))
	require.NoError(t, m.Reload(ctx, defs("a")))
	require.NoError(t, m.Reserve(ctx, []string{"a"}, "alice"))

	err := m.RecycleNames(ctx, []string{"a"})
	require.Error(t, err)
	assert.True(t, unlockedDuringCall, "the recycler runs without the pool lock")
	assert.True(t, mustGet(t, m, "a").IsFree())
	assert.Len(t, eventsNamed(pub, resource.EventNameReset), 1)
	assert.True(t, m.mu.TryLock(), "the pool lock is released afterwards")
	m.mu.Unlock()
}

func TestRecycleNamesConcurrentWithSteal(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t, defs("a")...)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for range 200 {
			_ = m.RecycleNames(ctx, []string{"a"})
		}
	}()
	go func() {
		defer wg.Done()
		for range 200 {
			_ = m.Steal(ctx, []string{"a"}, "bob")
		}
	}()
	wg.Wait()

	require.NoError(t, m.RecycleNames(ctx, []string{"a"}))
	assert.True(t, mustGet(t, m, "a").IsFree())
}

func TestUnknownResourceCarriesDetail(t *testing.T) {
	m, _, _ := newTestManager(t, defs("a")...)

	err := m.Reserve(context.Background(), []string{"a", "ghost"}, "alice")
	var e *lrerrors.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, lrerrors.KindNotFound, e.Kind)
	assert.Equal(t, "ghost", e.Details["resource"])
	assert.False(t, mustGet(t, m, "a").IsReserved())
}
