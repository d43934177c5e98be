package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/relicta-tech/lockable/internal/config"
	lrerrors "github.com/relicta-tech/lockable/internal/errors"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the lockres configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a starter configuration file",
	Long: `Write a starter configuration file. The format follows the file
extension: .yaml/.yml, .toml or .json.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "lockres.yaml"
		if len(args) == 1 {
			path = args[0]
		} else if config.ConfigExists(".") && !configForce {
			return lrerrors.Conflict("cli.config.init", "a configuration file already exists in this directory (use --force to overwrite)")
		}
		if _, err := os.Stat(path); err == nil && !configForce {
			return lrerrors.Conflict("cli.config.init", fmt.Sprintf("%s already exists (use --force to overwrite)", path))
		}
		if err := config.WriteDefaultConfig(path); err != nil {
			return err
		}
		printSuccess(cmd, "Wrote "+path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if cfg.Output.Format == "json" {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(cfg)
		}
		enc := yaml.NewEncoder(out)
		defer enc.Close()
		return enc.Encode(cfg)
	},
}

func init() {
	configInitCmd.Flags().BoolVarP(&configForce, "force", "f", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd, configShowCmd)
}
