package pool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relicta-tech/lockable/internal/config"
	"github.com/relicta-tech/lockable/internal/domain/resource"
	lrerrors "github.com/relicta-tech/lockable/internal/errors"
)

func TestQueueClaimsAndLocks(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t, defs("a", "b")...)

	res, err := m.Queue(ctx, Request{ID: 11, Project: "deploy", Selector: Selector{Names: []string{"a", "b"}}})
	require.NoError(t, err)
	assert.False(t, res.Pending)
	assert.Equal(t, []string{"a", "b"}, names(res.Claimed))

	a := mustGet(t, m, "a")
	assert.True(t, a.IsQueuedByTask(11))
	assert.Equal(t, "deploy", a.QueueItemProject())

	locked, err := m.Lock(ctx, 11, "deploy#4")
	require.NoError(t, err)
	assert.Len(t, locked, 2)
	assert.False(t, a.IsQueued())
	assert.Equal(t, "deploy#4", a.BuildID())

	_, err = m.Lock(ctx, 11, "deploy#4")
	assert.True(t, lrerrors.IsKind(err, lrerrors.KindNotFound))
}

func TestQueuePendingIsReofferedInArrivalOrder(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t, defs("a")...)
	require.NoError(t, m.LockNames(ctx, []string{"a"}, "job#1"))

	for _, id := range []int64{1, 2} {
		res, err := m.Queue(ctx, Request{ID: id, Selector: Selector{Names: []string{"a"}}})
		require.NoError(t, err)
		assert.True(t, res.Pending)
	}
	require.Len(t, m.Pending(), 2)

	task, err := m.TaskForItem(ctx, 2)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, "request #2", task.Name())

	require.NoError(t, m.Unlock(ctx, []string{"a"}))

	a := mustGet(t, m, "a")
	assert.True(t, a.IsQueuedByTask(1), "first request wins")
	pending := m.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, int64(2), pending[0].ID)
}

func TestQueueByLabelWithQuantity(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t,
		config.ResourceConfig{Name: "a", Labels: "gpu"},
		config.ResourceConfig{Name: "b", Labels: "gpu"},
		config.ResourceConfig{Name: "c", Labels: "cpu"},
	)
	require.NoError(t, m.Reserve(ctx, []string{"a"}, "alice"))

	res, err := m.Queue(ctx, Request{ID: 3, Selector: Selector{Label: "gpu", Quantity: 1}})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, names(res.Claimed))

	_, err = m.Queue(ctx, Request{ID: 4, Selector: Selector{Label: "gpu", Quantity: 3}})
	assert.True(t, lrerrors.IsKind(err, lrerrors.KindValidation))

	_, err = m.Queue(ctx, Request{ID: 5, Selector: Selector{Label: "none"}})
	assert.True(t, lrerrors.IsKind(err, lrerrors.KindNotFound))
}

func TestQueueByScript(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t,
		config.ResourceConfig{Name: "rig-1", Labels: "arm"},
		config.ResourceConfig{Name: "rig-2", Labels: "x86"},
	)

	res, err := m.Queue(ctx, Request{ID: 9, Selector: Selector{
		Label: resource.ScriptMarker + ` resourceLabels contains arch`,
		Params: map[string]any{"arch": "x86"},
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{"rig-2"}, names(res.Claimed))
}

func TestQueueClaimExpires(t *testing.T) {
	ctx := context.Background()
	m, clock, pub := newTestManager(t, defs("a")...)

	_, err := m.Queue(ctx, Request{ID: 1, Selector: Selector{Names: []string{"a"}}})
	require.NoError(t, err)

	res, err := m.Queue(ctx, Request{ID: 2, Selector: Selector{Names: []string{"a"}}})
	require.NoError(t, err)
	assert.True(t, res.Pending)

	clock.Advance(resource.QueueTimeout + 2*time.Second)
	res, err = m.Queue(ctx, Request{ID: 2, Selector: Selector{Names: []string{"a"}}})
	require.NoError(t, err)
	assert.False(t, res.Pending)
	assert.Empty(t, m.Pending())
	assert.NotEmpty(t, eventsNamed(pub, resource.EventNameQueueExpired))
}

func TestQueueValidation(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t, defs("a")...)

	_, err := m.Queue(ctx, Request{ID: 0, Selector: Selector{Names: []string{"a"}}})
	assert.True(t, lrerrors.IsKind(err, lrerrors.KindValidation))

	_, err = m.Queue(ctx, Request{ID: 1, Selector: Selector{Names: []string{"a"}, Label: "x"}})
	assert.True(t, lrerrors.IsKind(err, lrerrors.KindValidation))

	_, err = m.Queue(ctx, Request{ID: 1})
	assert.True(t, lrerrors.IsKind(err, lrerrors.KindValidation))
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t, defs("a")...)
	_, err := m.Queue(ctx, Request{ID: 1, Selector: Selector{Names: []string{"a"}}})
	require.NoError(t, err)

	m.Cancel(ctx, 1)
	assert.True(t, mustGet(t, m, "a").IsFree())
}

func TestResourceRecycleReoffers(t *testing.T) {
	ctx := context.Background()
	m, _, pub := newTestManager(t, defs("a")...)
	require.NoError(t, m.Reserve(ctx, []string{"a"}, "alice"))
	res, err := m.Queue(ctx, Request{ID: 5, Selector: Selector{Names: []string{"a"}}})
	require.NoError(t, err)
	require.True(t, res.Pending)

	a := mustGet(t, m, "a")
	require.NoError(t, a.Recycle(ctx))

	assert.False(t, a.IsReserved())
	assert.True(t, a.IsQueuedByTask(5))
	assert.Empty(t, m.Pending())

	require.NoError(t, m.RecycleNames(ctx, []string{"a"}))
	assert.NotEmpty(t, eventsNamed(pub, resource.EventNameRecycled))
}

func TestRecycleCanceledContext(t *testing.T) {
	m, _, _ := newTestManager(t, defs("a")...)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.Recycle(ctx, nil), context.Canceled)
}
