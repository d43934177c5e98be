package resource

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetQueued(t *testing.T) {
	clock := newFakeClock()
	r := New("rig-1", WithClock(clock))
	r.SetQueued(7)

	assert.True(t, r.IsQueued())
	assert.Equal(t, int64(7), r.QueueItemID())
	assert.Empty(t, r.QueueItemProject())
	started, ok := r.QueuingStarted()
	require.True(t, ok)
	assert.Equal(t, clock.Now().Unix(), started.Unix())
}

func TestSetQueuedForProject(t *testing.T) {
	r := New("rig-1")
	r.SetQueuedForProject(7, "firmware")

	assert.Equal(t, int64(7), r.QueueItemID())
	assert.Equal(t, "firmware", r.QueueItemProject())
}

func TestIsQueuedByOther(t *testing.T) {
	r := New("rig-1")
	r.SetQueued(7)

	assert.False(t, r.IsQueuedByOther(7), "own claim")
	assert.True(t, r.IsQueuedByOther(8), "someone else is waiting")
	assert.True(t, r.IsQueuedByTask(7))
	assert.False(t, r.IsQueuedByTask(8))
}

func TestIsQueuedByOther_NoClaim(t *testing.T) {
	r := New("rig-1")
	assert.False(t, r.IsQueuedByOther(8))
}

func TestUnqueue(t *testing.T) {
	r := New("rig-1")
	r.SetQueuedForProject(7, "firmware")
	r.Unqueue()

	assert.False(t, r.IsQueued())
	assert.Equal(t, NotQueued, r.QueueItemID())
	assert.Empty(t, r.QueueItemProject())
	_, ok := r.QueuingStarted()
	assert.False(t, ok)
}

func TestQueueTimeout(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		queued  bool
	}{
		{"immediately", 0, true},
		{"59s", 59 * time.Second, true},
		{"60s", 60 * time.Second, true},
		{"61s", 61 * time.Second, false},
		{"1h", time.Hour, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			r := New("rig-1", WithClock(clock))
			r.SetQueuedForProject(7, "firmware")

			clock.Advance(tt.elapsed)
			assert.Equal(t, tt.queued, r.IsQueued())
		})
	}
}

func TestQueueTimeout_ExpiryClearsClaimOnRead(t *testing.T) {
	clock := newFakeClock()
	r := New("rig-1", WithClock(clock))
	r.SetQueuedForProject(7, "firmware")
	r.PullEvents()

	clock.Advance(61 * time.Second)
	assert.False(t, r.IsQueued())

	// The claim fields were committed as cleared, even if time goes back.
	clock.Advance(-time.Hour)
	assert.Equal(t, NotQueued, r.QueueItemID())
	assert.Empty(t, r.QueueItemProject())

	events := r.PullEvents()
	require.Len(t, events, 1)
	assert.Equal(t, EventNameQueueExpired, events[0].EventName())
}

func TestQueueTimeout_EveryAccessorExpires(t *testing.T) {
	accessors := map[string]func(r *Resource){
		"IsQueued":         func(r *Resource) { r.IsQueued() },
		"IsQueuedByOther":  func(r *Resource) { r.IsQueuedByOther(1) },
		"IsQueuedByTask":   func(r *Resource) { r.IsQueuedByTask(7) },
		"QueueItemID":      func(r *Resource) { r.QueueItemID() },
		"QueueItemProject": func(r *Resource) { r.QueueItemProject() },
		"Snapshot":         func(r *Resource) { r.Snapshot() },
	}
	for name, read := range accessors {
		t.Run(name, func(t *testing.T) {
			clock := newFakeClock()
			r := New("rig-1", WithClock(clock))
			r.SetQueued(7)
			clock.Advance(2 * time.Minute)

			read(r)
			assert.Equal(t, queueClaim{}, r.claim)
		})
	}
}

func TestEffectiveClaim(t *testing.T) {
	now := time.Unix(10_000, 0)

	claim, live := effectiveClaim(queueClaim{}, now)
	assert.True(t, live)
	assert.Equal(t, queueClaim{}, claim)

	fresh := queueClaim{itemID: 3, started: now.Unix() - 60}
	claim, live = effectiveClaim(fresh, now)
	assert.True(t, live)
	assert.Equal(t, fresh, claim)

	stale := queueClaim{itemID: 3, project: "p", started: now.Unix() - 61}
	claim, live = effectiveClaim(stale, now)
	assert.False(t, live)
	assert.Equal(t, queueClaim{}, claim)
}

type fakeTask string

func (f fakeTask) Name() string { return string(f) }

type fakeQueue map[int64]Task

func (f fakeQueue) TaskForItem(_ context.Context, id int64) (Task, error) {
	return f[id], nil
}

func TestTask(t *testing.T) {
	r := New("rig-1", WithQueueResolver(fakeQueue{7: fakeTask("firmware #7")}))
	task, err := r.Task(context.Background())
	require.NoError(t, err)
	assert.Nil(t, task)

	r.SetQueued(7)
	task, err = r.Task(context.Background())
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, "firmware #7", task.Name())
}
