package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/relicta-tech/lockable/internal/domain/resource"
)

var machineCmd = &cobra.Command{
	Use:   "machine",
	Short: "Print the resource ownership state machine as XState JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := resource.ExportXStateJSON()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return err
	},
}
