package resource

import (
	"context"
	"errors"
	"time"
)

// fakeClock is a manually advanced Clock.
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, time.March, 5, 14, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fakeBuild struct {
	id   string
	name string
}

func (b *fakeBuild) ExternalID() string  { return b.id }
func (b *fakeBuild) DisplayName() string { return b.name }

type fakeBuildResolver struct {
	builds map[string]Build
	calls  int
}

func (f *fakeBuildResolver) ResolveBuild(_ context.Context, id string) (Build, error) {
	f.calls++
	b, ok := f.builds[id]
	if !ok {
		return nil, errors.New("no such build")
	}
	return b, nil
}

type fakeRecycler struct {
	err   error
	calls [][]*Resource
	hook  func(resources []*Resource)
}

func (f *fakeRecycler) Recycle(_ context.Context, resources []*Resource) error {
	f.calls = append(f.calls, resources)
	if f.hook != nil {
		f.hook(resources)
	}
	return f.err
}

type scriptFunc struct {
	src string
	fn  func(map[string]any) (any, error)
}

func (s scriptFunc) Source() string { return s.src }

func (s scriptFunc) Evaluate(_ context.Context, bindings map[string]any) (any, error) {
	return s.fn(bindings)
}
