package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/relicta-tech/lockable/internal/pool"
)

var matchParams []string

var matchCmd = &cobra.Command{
	Use:   "match <script>",
	Short: "List resources matching a predicate script",
	Long: `List resources matching a predicate script.

Scripts see resourceName, resourceDescription, resourceLabels and
resourceNote, plus any --param values. Examples:

  lockres match 'resourceLabels contains "gpu"'
  lockres match 'resourceName matches "^rig-" and not (resourceNote == "broken")'
  lockres match --param arch=arm 'resourceLabels contains arch'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := parseParams(matchParams)
		if err != nil {
			return err
		}
		return withPool(cmd.Context(), func(ctx context.Context, m *pool.Manager) error {
			rs, err := m.Select(ctx, pool.Selector{Script: args[0], Params: params})
			if err != nil {
				return err
			}
			if cfg.Output.Format == "json" || cfg.Output.Format == "yaml" {
				views := make([]resourceView, 0, len(rs))
				for _, r := range rs {
					views = append(views, newResourceView(ctx, r))
				}
				return renderViews(cmd.OutOrStdout(), cfg.Output.Format, views)
			}
			if len(rs) == 0 {
				printInfo(cmd, "no resources match")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(resourceNames(rs), "\n"))
			return nil
		})
	},
}

func init() {
	matchCmd.Flags().StringArrayVar(&matchParams, "param", nil, "script parameter as key=value (repeatable)")
}
