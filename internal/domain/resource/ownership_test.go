package resource

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserve(t *testing.T) {
	for _, holder := range []string{"alice", "ci-bot", "team lead"} {
		t.Run(holder, func(t *testing.T) {
			clock := newFakeClock()
			r := New("rig-1", WithClock(clock))
			r.Reserve(holder)

			assert.True(t, r.IsReserved())
			assert.Equal(t, holder, r.ReservedBy())
			require.NotNil(t, r.ReservedTimestamp())
			assert.Equal(t, clock.Now(), *r.ReservedTimestamp())
			assert.Equal(t, StateReserved, r.OwnershipState())
		})
	}
}

func TestReserve_BlankHolderIsNoop(t *testing.T) {
	for _, holder := range []string{"", "   ", "\t\n"} {
		r := New("rig-1")
		r.Reserve(holder)

		assert.False(t, r.IsReserved(), "holder %q", holder)
		assert.Nil(t, r.ReservedTimestamp())
		assert.Empty(t, r.PullEvents())
	}
}

func TestReserve_BlankHolderClearsExistingReservation(t *testing.T) {
	r := New("rig-1")
	r.Reserve("alice")
	r.SetBuild(&fakeBuild{id: "job#1"})
	r.Reserve("   ")

	assert.False(t, r.IsReserved())
	assert.Empty(t, r.ReservedBy())
	assert.True(t, r.IsLocked(), "a blank reservation does not touch the lock")
	assert.Equal(t, StateLocked, r.OwnershipState())
}

func TestReserve_OverwritesHolder(t *testing.T) {
	clock := newFakeClock()
	r := New("rig-1", WithClock(clock))
	r.Reserve("alice")
	clock.Advance(time.Minute)
	r.Reserve("bob")

	assert.Equal(t, "bob", r.ReservedBy())
	assert.Equal(t, clock.Now(), *r.ReservedTimestamp())
}

func TestUnreserve(t *testing.T) {
	r := New("rig-1")
	r.Reserve("alice")
	r.MarkStolen()
	r.Unreserve()

	assert.False(t, r.IsReserved())
	assert.False(t, r.IsStolen())
	assert.Nil(t, r.ReservedTimestamp())
	assert.Equal(t, StateFree, r.OwnershipState())
}

func TestUnreserve_KeepsLockTimestamp(t *testing.T) {
	clock := newFakeClock()
	r := New("rig-1", WithClock(clock))
	r.SetBuild(&fakeBuild{id: "job#7"})
	lockedAt := clock.Now()

	clock.Advance(5 * time.Minute)
	r.Reserve("alice")
	assert.Equal(t, clock.Now(), *r.ReservedTimestamp(), "reservation takes priority")

	r.Unreserve()
	assert.True(t, r.IsLocked())
	require.NotNil(t, r.ReservedTimestamp())
	assert.Equal(t, lockedAt, *r.ReservedTimestamp())
}

func TestSetBuild_LockAndUnlock(t *testing.T) {
	clock := newFakeClock()
	r := New("rig-1", WithClock(clock))
	r.SetBuild(&fakeBuild{id: "job#1", name: "job #1"})

	assert.True(t, r.IsLocked())
	assert.Equal(t, "job#1", r.BuildID())
	assert.Equal(t, clock.Now(), *r.ReservedTimestamp())
	assert.Equal(t, StateLocked, r.OwnershipState())

	r.SetBuild(nil)
	assert.False(t, r.IsLocked())
	assert.Nil(t, r.ReservedTimestamp())
	assert.Equal(t, StateFree, r.OwnershipState())
}

func TestSetBuild_ClearKeepsReservationTimestamp(t *testing.T) {
	clock := newFakeClock()
	r := New("rig-1", WithClock(clock))
	r.Reserve("alice")
	reservedAt := clock.Now()
	clock.Advance(time.Minute)
	r.SetBuild(&fakeBuild{id: "job#1"})
	assert.Equal(t, StateReservedAndLocked, r.OwnershipState())

	r.SetBuild(nil)
	assert.Equal(t, StateReserved, r.OwnershipState())
	assert.Equal(t, reservedAt, *r.ReservedTimestamp())
}

func TestMarkStolen(t *testing.T) {
	r := New("rig-1")
	r.Reserve("alice")
	r.MarkStolen()
	assert.True(t, r.IsStolen())

	r.Reserve("bob")
	assert.True(t, r.IsStolen(), "re-reserving does not clear stolen")
}

func TestReset(t *testing.T) {
	cases := map[string]func(r *Resource){
		"free":     func(r *Resource) {},
		"reserved": func(r *Resource) { r.Reserve("alice") },
		"stolen":   func(r *Resource) { r.Reserve("alice"); r.MarkStolen() },
		"locked":   func(r *Resource) { r.SetBuild(&fakeBuild{id: "job#1"}) },
		"queued":   func(r *Resource) { r.SetQueuedForProject(7, "proj") },
		"everything": func(r *Resource) {
			r.Reserve("alice")
			r.MarkStolen()
			r.SetBuild(&fakeBuild{id: "job#1"})
			r.SetQueued(9)
		},
	}
	for name, setup := range cases {
		t.Run(name, func(t *testing.T) {
			r := New("rig-1")
			setup(r)
			r.Reset()

			assert.False(t, r.IsReserved())
			assert.False(t, r.IsLocked())
			assert.False(t, r.IsQueued())
			assert.False(t, r.IsStolen())
			assert.Nil(t, r.ReservedTimestamp())
			assert.Equal(t, StateFree, r.OwnershipState())
			assert.Equal(t, StateIDFree, r.machine.CurrentState())
		})
	}
}

func TestLockCause(t *testing.T) {
	clock := newFakeClock()
	r := New("rig-1", WithClock(clock))
	assert.Empty(t, r.LockCause())

	r.SetBuild(&fakeBuild{id: "pipeline#12"})
	assert.Equal(t, "[rig-1] is locked by pipeline#12 at Mar 5, 2024, 2:30 PM", r.LockCause())

	clock.Advance(15 * time.Minute)
	r.Reserve("alice")
	assert.Equal(t, "[rig-1] is reserved by alice at Mar 5, 2024, 2:45 PM", r.LockCause())

	r.Unreserve()
	assert.Equal(t, "[rig-1] is locked by pipeline#12 at Mar 5, 2024, 2:30 PM", r.LockCause())
}

func TestLockCause_UnknownTimestamp(t *testing.T) {
	r := New("rig-1")
	r.SetReservedBy("alice")
	assert.Equal(t, "[rig-1] is reserved by alice at <unknown>", r.LockCause())
}

func TestBuild_LazyResolution(t *testing.T) {
	resolver := &fakeBuildResolver{builds: map[string]Build{
		"job#3": &fakeBuild{id: "job#3", name: "Job #3"},
	}}
	r := New("rig-1", WithBuildResolver(resolver))
	r.SetBuildID("job#3")
	assert.True(t, r.IsLocked())
	assert.Zero(t, resolver.calls)

	ctx := context.Background()
	assert.Equal(t, "Job #3", r.BuildName(ctx))
	assert.Equal(t, "Job #3", r.BuildName(ctx))
	assert.Equal(t, 1, resolver.calls, "handle is cached after first resolution")
}

func TestBuild_ResolutionFailure(t *testing.T) {
	r := New("rig-1", WithBuildResolver(&fakeBuildResolver{}))
	r.SetBuildID("gone#1")

	build, err := r.Build(context.Background())
	require.Error(t, err)
	assert.Nil(t, build)
	assert.Empty(t, r.BuildName(context.Background()))
	assert.True(t, r.IsLocked(), "the durable id still holds the lock")
}

type fakeUsers map[string]*User

func (f fakeUsers) LookupUser(_ context.Context, name string) (*User, error) {
	if name == "broken" {
		return nil, errors.New("directory down")
	}
	return f[name], nil
}

func TestReservedByEmail(t *testing.T) {
	users := fakeUsers{
		"alice": {Name: "alice", Email: "alice@example.com"},
		"bob":   {Name: "bob"},
	}
	ctx := context.Background()

	tests := []struct {
		holder string
		want   string
	}{
		{"alice", "alice@example.com"},
		{"bob", ""},
		{"carol", ""},
		{"broken", ""},
	}
	for _, tt := range tests {
		r := New("rig-1", WithUserDirectory(users))
		r.Reserve(tt.holder)
		assert.Equal(t, tt.want, r.ReservedByEmail(ctx), tt.holder)
	}

	assert.Empty(t, New("rig-1", WithUserDirectory(users)).ReservedByEmail(ctx))
	unattached := New("rig-1")
	unattached.Reserve("alice")
	assert.Empty(t, unattached.ReservedByEmail(ctx))
}

func TestCheckReservable(t *testing.T) {
	r := New("rig-1")
	assert.NoError(t, r.CheckReservable("alice"))

	r.Reserve("alice")
	assert.NoError(t, r.CheckReservable("alice"))
	err := r.CheckReservable("bob")
	assert.ErrorIs(t, err, ErrAlreadyHeld)
	assert.Contains(t, err.Error(), "reserved by alice")

	r.Unreserve()
	r.SetBuild(&fakeBuild{id: "job#1"})
	assert.ErrorIs(t, r.CheckReservable("alice"), ErrAlreadyHeld)
}

func TestCheckHeldBy(t *testing.T) {
	r := New("rig-1")
	assert.ErrorIs(t, r.CheckHeldBy("alice"), ErrNotHeld)

	r.Reserve("alice")
	assert.NoError(t, r.CheckHeldBy("alice"))
	assert.ErrorIs(t, r.CheckHeldBy("bob"), ErrNotHeld)
}

func TestOwnershipEvents(t *testing.T) {
	r := New("rig-1")
	r.Reserve("alice")
	r.SetBuild(&fakeBuild{id: "job#1"})
	r.SetBuild(nil)
	r.Unreserve()

	var names []string
	for _, e := range r.PullEvents() {
		names = append(names, e.EventName())
		assert.Equal(t, "rig-1", e.ResourceName())
		assert.NotEmpty(t, e.EventID())
	}
	assert.Equal(t, []string{EventNameReserved, EventNameLocked, EventNameUnlocked, EventNameUnreserved}, names)
	assert.Empty(t, r.PullEvents())
}
