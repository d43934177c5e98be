package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/relicta-tech/lockable/internal/config"
	"github.com/relicta-tech/lockable/internal/domain/resource"
	lrerrors "github.com/relicta-tech/lockable/internal/errors"
)

// watchSweepInterval is how often expired queue claims are swept from the
// state while watching.
const watchSweepInterval = resource.QueueTimeout / 4

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Reload resources whenever the configuration file changes",
	Long: `Apply configuration changes to the persisted state as they happen.

Held resources that disappear from the configuration become ephemeral
and are discarded once free. Expired queue claims are swept periodically.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if configPath == "" {
			return lrerrors.Config("cli.watch", "no configuration file to watch")
		}
		return runWatch(cmd)
	},
}

// syncState applies the configured resources to the persisted state and
// sweeps expired queue claims, under the state lock.
func syncState(ctx context.Context) error {
	return withPool(ctx, nil)
}

func runWatch(cmd *cobra.Command) error {
	ctx := cmd.Context()
	if err := syncState(ctx); err != nil {
		return err
	}

	changes := make(chan *config.Config, 1)
	w := config.NewWatcher(configPath,
		func(c *config.Config) {
			// Keep only the newest configuration.
			select {
			case <-changes:
			default:
			}
			changes <- c
		},
		func(err error) {
			logger.Error("configuration reload failed", "error", err)
		},
	)

	printTitle(cmd, "Watching "+configPath)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Run(gCtx) })
	g.Go(func() error {
		ticker := time.NewTicker(watchSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gCtx.Done():
				return nil
			case c := <-changes:
				previous := cfg.Resources
				cfg.Resources = c.Resources
				if err := syncState(gCtx); err != nil {
					cfg.Resources = previous
					logger.Error("failed to apply configuration", "error", err)
					continue
				}
				logger.Info("configuration applied", "resources", len(c.Resources))
			case <-ticker.C:
				err := syncState(gCtx)
				switch {
				case err == nil:
				case lrerrors.IsKind(err, lrerrors.KindTimeout):
					logger.Warn("state busy, skipping sweep", "error", err)
				default:
					logger.Error("failed to sweep state", "error", err)
				}
			}
		}
	})
	return g.Wait()
}
