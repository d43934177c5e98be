package cli

import (
	"context"

	"github.com/relicta-tech/lockable/internal/domain/resource"
	"github.com/relicta-tech/lockable/internal/infrastructure/persistence"
	"github.com/relicta-tech/lockable/internal/infrastructure/resilience"
	"github.com/relicta-tech/lockable/internal/pool"
)

// app wires the pool to the state file for one command invocation.
type app struct {
	repo   *persistence.FileStateRepository
	pool   *pool.Manager
	events *persistence.InMemoryEventPublisher
}

func resilienceConfig() resilience.Config {
	rc := resilience.DefaultConfig()
	rc.MaxAttempts = cfg.Resilience.MaxAttempts
	rc.InitialDelay = cfg.Resilience.InitialDelay
	rc.MaxDelay = cfg.Resilience.MaxDelay
	rc.FailureThreshold = cfg.Resilience.FailureThreshold
	rc.OpenTimeout = cfg.Resilience.OpenTimeout
	return rc
}

// openApp builds a pool over repo from persisted state and the configured
// resources. The caller must hold the state lock.
func openApp(ctx context.Context, repo *persistence.FileStateRepository) (*app, error) {
	rc := resilienceConfig()
	events := persistence.NewInMemoryEventPublisher()
	m := pool.New(
		pool.WithLogger(logger),
		pool.WithPublisher(events),
		pool.WithRecyclerMiddleware(func(next resource.Recycler) resource.Recycler {
			return resilience.NewRecycler(next, rc, logger)
		}),
	)

	snapshots, err := repo.Load(ctx)
	if err != nil {
		return nil, err
	}
	m.Restore(snapshots)
	if err := m.Reload(ctx, cfg.Resources); err != nil {
		return nil, err
	}
	logger.Debug("opened pool", "state", repo.Path(), "resources", len(m.Resources()))
	return &app{repo: repo, pool: m, events: events}, nil
}

// save persists the live state of every resource.
func (a *app) save(ctx context.Context) error {
	if err := a.repo.Save(ctx, a.pool.Snapshots()); err != nil {
		return err
	}
	logger.Debug("saved state", "state", a.repo.Path(), "events", len(a.events.GetEvents()))
	return nil
}

// withPool loads the pool, runs fn and saves the state when fn succeeds,
// all while holding the exclusive state lock so concurrent runs see each
// other's changes. The state is saved even when reads apply queue timeouts.
func withPool(ctx context.Context, fn func(ctx context.Context, m *pool.Manager) error) error {
	repo, err := persistence.NewFileStateRepository(cfg.State.Path)
	if err != nil {
		return err
	}
	return repo.WithExclusiveLock(ctx, cfg.State.LockTimeout, func(ctx context.Context) error {
		a, err := openApp(ctx, repo)
		if err != nil {
			return err
		}
		if fn != nil {
			if err := fn(ctx, a.pool); err != nil {
				return err
			}
		}
		return a.save(ctx)
	})
}
