package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/flock"

	lrerrors "github.com/relicta-tech/lockable/internal/errors"
)

const (
	// DefaultLockTimeout bounds how long a run waits for another run to
	// finish with the state file.
	DefaultLockTimeout = 30 * time.Second

	lockPollInterval = 50 * time.Millisecond
)

// LockPath returns the path of the lock file guarding the state file.
func (r *FileStateRepository) LockPath() string {
	return r.path + ".lock"
}

// WithExclusiveLock runs fn while holding an exclusive advisory lock on the
// state's lock file. Other processes using the same state path wait until fn
// returns. A timeout of zero or less uses DefaultLockTimeout.
func (r *FileStateRepository) WithExclusiveLock(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	const op = "state.Lock"
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}

	lock := flock.New(r.LockPath())
	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	locked, err := lock.TryLockContext(lockCtx, lockPollInterval)
	if err != nil || !locked {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err == nil || lockCtx.Err() != nil {
			return lrerrors.TimeoutWrap(err, op,
				fmt.Sprintf("timed out after %s waiting for %s; another run is using the state", timeout, lock.Path()))
		}
		return lrerrors.IOWrap(err, op, "failed to lock state file")
	}
	defer func() { _ = lock.Unlock() }()

	return fn(ctx)
}
