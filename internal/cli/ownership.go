package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/relicta-tech/lockable/internal/domain/resource"
	lrerrors "github.com/relicta-tech/lockable/internal/errors"
	"github.com/relicta-tech/lockable/internal/pool"
)

var (
	unreserveHolder string
	lockBuild       string
	lockRequest     int64
	queueID         int64
	queueProject    string
	queueLabel      string
	queueScript     string
	queueQuantity   int
	queueParams     []string
)

func addOwnershipCommands(root *cobra.Command) {
	unreserveCmd.Flags().StringVar(&unreserveHolder, "holder", "", "only unreserve resources held by this holder")

	lockCmd.Flags().StringVar(&lockBuild, "build", "", "durable identifier of the build taking the lock (required)")
	lockCmd.Flags().Int64Var(&lockRequest, "request", 0, "lock the resources claimed by this queue request")
	_ = lockCmd.MarkFlagRequired("build")

	queueCmd.Flags().Int64Var(&queueID, "id", 0, "queue item id (default: random)")
	queueCmd.Flags().StringVar(&queueProject, "project", "", "project owning the queue item")
	queueCmd.Flags().StringVar(&queueLabel, "label", "", "select resources by label")
	queueCmd.Flags().StringVar(&queueScript, "script", "", "select resources by predicate script")
	queueCmd.Flags().IntVar(&queueQuantity, "quantity", 0, "number of resources needed (default: all selected)")
	queueCmd.Flags().StringArrayVar(&queueParams, "param", nil, "script parameter as key=value (repeatable)")

	root.AddCommand(reserveCmd, unreserveCmd, stealCmd, lockCmd, unlockCmd, resetCmd, recycleCmd, queueCmd, noteCmd)
}

var reserveCmd = &cobra.Command{
	Use:   "reserve <holder> <resource>...",
	Short: "Reserve resources for a holder",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		holder, names := args[0], args[1:]
		return runMutation(cmd, func(ctx context.Context, m *pool.Manager) error {
			return m.Reserve(ctx, names, holder)
		}, fmt.Sprintf("Reserved %s for %s", strings.Join(names, ", "), holder))
	},
}

var unreserveCmd = &cobra.Command{
	Use:   "unreserve <resource>...",
	Short: "Release reservations",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMutation(cmd, func(ctx context.Context, m *pool.Manager) error {
			return m.Unreserve(ctx, args, unreserveHolder)
		}, "Unreserved "+strings.Join(args, ", "))
	},
}

var stealCmd = &cobra.Command{
	Use:   "steal <holder> <resource>...",
	Short: "Take over reservations from their current holder",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		holder, names := args[0], args[1:]
		return runMutation(cmd, func(ctx context.Context, m *pool.Manager) error {
			return m.Steal(ctx, names, holder)
		}, fmt.Sprintf("%s now holds %s", holder, strings.Join(names, ", ")))
	},
}

var lockCmd = &cobra.Command{
	Use:   "lock --build <id> (--request <n> | <resource>...)",
	Short: "Lock resources for a running build",
	RunE: func(cmd *cobra.Command, args []string) error {
		if lockRequest != 0 && len(args) > 0 {
			return lrerrors.Validation("cli.lock", "use either --request or resource names")
		}
		if lockRequest == 0 && len(args) == 0 {
			return lrerrors.Validation("cli.lock", "name resources or pass --request")
		}
		return runMutation(cmd, func(ctx context.Context, m *pool.Manager) error {
			if lockRequest != 0 {
				_, err := m.Lock(ctx, lockRequest, lockBuild)
				return err
			}
			return m.LockNames(ctx, args, lockBuild)
		}, "Locked for "+lockBuild)
	},
}

var unlockCmd = &cobra.Command{
	Use:   "unlock <resource>...",
	Short: "Release build locks",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMutation(cmd, func(ctx context.Context, m *pool.Manager) error {
			return m.Unlock(ctx, args)
		}, "Unlocked "+strings.Join(args, ", "))
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset <resource>...",
	Short: "Force resources back to the free state",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMutation(cmd, func(ctx context.Context, m *pool.Manager) error {
			return m.Reset(ctx, args)
		}, "Reset "+strings.Join(args, ", "))
	},
}

var recycleCmd = &cobra.Command{
	Use:   "recycle <resource>...",
	Short: "Free resources and offer them to pending requests",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMutation(cmd, func(ctx context.Context, m *pool.Manager) error {
			if err := m.RecycleNames(ctx, args); err != nil {
				printWarning(cmd, err.Error())
			}
			return nil
		}, "Recycled "+strings.Join(args, ", "))
	},
}

var queueCmd = &cobra.Command{
	Use:   "queue [--label l | --script s | <resource>...]",
	Short: "Claim free resources for a queued task",
	Long: `Claim free resources for a queued task.

Claims expire after 60 seconds unless turned into a lock with
'lockres lock --request <id> --build <build>'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := parseParams(queueParams)
		if err != nil {
			return err
		}
		id := queueID
		if id == 0 {
			id = int64(uuid.New().ID())
		}
		req := pool.Request{
			ID:      id,
			Project: queueProject,
			Selector: pool.Selector{
				Names:    args,
				Label:    queueLabel,
				Script:   queueScript,
				Params:   params,
				Quantity: queueQuantity,
			},
		}
		return withPool(cmd.Context(), func(ctx context.Context, m *pool.Manager) error {
			res, err := m.Queue(ctx, req)
			if err != nil {
				return err
			}
			if res.Pending {
				printWarning(cmd, fmt.Sprintf("request %d claimed nothing: not enough free resources", id))
				return nil
			}
			printSuccess(cmd, fmt.Sprintf("request %d claimed %s", id, strings.Join(resourceNames(res.Claimed), ", ")))
			return nil
		})
	},
}

var noteCmd = &cobra.Command{
	Use:   "note <resource> <text>",
	Short: "Set the note of a resource",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMutation(cmd, func(ctx context.Context, m *pool.Manager) error {
			return m.SetNote(ctx, args[0], args[1])
		}, "Updated note of "+args[0])
	},
}

// runMutation applies fn to the pool, saves state and prints msg.
func runMutation(cmd *cobra.Command, fn func(ctx context.Context, m *pool.Manager) error, msg string) error {
	if err := withPool(cmd.Context(), fn); err != nil {
		return err
	}
	printSuccess(cmd, msg)
	return nil
}

func resourceNames(rs []*resource.Resource) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Name())
	}
	return out
}

// parseParams parses key=value pairs into script parameters.
func parseParams(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	params := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, lrerrors.Validation("cli.parseParams", fmt.Sprintf("invalid parameter %q, want key=value", p))
		}
		params[k] = v
	}
	return params, nil
}
