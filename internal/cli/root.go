// Package cli provides the command-line interface for lockres.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/relicta-tech/lockable/internal/config"
	lrerrors "github.com/relicta-tech/lockable/internal/errors"
	"github.com/relicta-tech/lockable/internal/telemetry"
)

var (
	// Version information set by main.
	versionInfo struct {
		Version string
		Commit  string
		Date    string
	}

	// Global flags
	cfgFile      string
	stateFile    string
	verbose      bool
	outputFormat string
	noColor      bool
	logLevel     string

	// Global config
	cfg *config.Config

	// configPath is the configuration file actually loaded, if any.
	configPath string

	// Logger
	logger *log.Logger

	// logFile holds the log file handle for cleanup
	logFile *os.File

	// Styles
	styles = struct {
		Title   lipgloss.Style
		Success lipgloss.Style
		Error   lipgloss.Style
		Warning lipgloss.Style
		Info    lipgloss.Style
		Subtle  lipgloss.Style
		Bold    lipgloss.Style
	}{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99")),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		Info:    lipgloss.NewStyle().Foreground(lipgloss.Color("33")),
		Subtle:  lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		Bold:    lipgloss.NewStyle().Bold(true),
	}
)

// SetVersionInfo sets the version information from main.
func SetVersionInfo(version, commit, date string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.Date = date
}

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "lockres",
	Short: "Manage a pool of lockable resources",
	Long: `lockres manages named, mutually exclusive resources that build tasks
reserve or lock before running.

Resources are declared in lockres.yaml (or .toml/.json). Live ownership
(reservations, build locks, queue claims and notes) is kept in a state
file and survives configuration reloads.

Get started with 'lockres config init'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch cmd.Name() {
		case "version", "help", "machine", "init":
			return nil
		}
		return initConfig(cmd.Context())
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with a context for graceful shutdown.
func ExecuteContext(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	var e *lrerrors.Error
	if errors.As(err, &e) && len(e.Details) > 0 {
		logger.Debug("error details", "kind", e.Kind.String(), "details", e.Details)
	}
	return err
}

// ExitCode maps an error returned by Execute to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return lrerrors.GetKind(err).ExitCode()
}

func init() {
	logger = log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		ReportCaller:    false,
	})

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: lockres.yaml)")
	rootCmd.PersistentFlags().StringVar(&stateFile, "state", "", "state file (overrides state.path)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "", "output format (table, json, yaml)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(machineCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(matchCmd)
	rootCmd.AddCommand(watchCmd)
	addOwnershipCommands(rootCmd)
}

// loadAndValidateConfig loads and validates the configuration.
func loadAndValidateConfig() error {
	loader := config.NewLoader()
	if cfgFile != "" {
		loader.WithConfigPath(cfgFile)
	}

	var err error
	cfg, err = loader.Load()
	if err != nil {
		return err
	}
	configPath = loader.GetConfigPath()

	validator := config.NewValidator()
	if err := validator.Validate(cfg); err != nil {
		return err
	}
	for _, w := range validator.Warnings() {
		logger.Warn("configuration", "warning", w)
	}
	return nil
}

// applyGlobalFlags applies global CLI flags to the configuration.
func applyGlobalFlags() {
	if stateFile != "" {
		cfg.State.Path = stateFile
	}
	if outputFormat != "" {
		cfg.Output.Format = outputFormat
	}
	if logLevel != "" {
		cfg.Output.LogLevel = logLevel
	}
	if verbose {
		cfg.Output.LogLevel = "debug"
	}
	if noColor {
		cfg.Output.Color = false
	}
	if !cfg.Output.Color {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// configureLogger sets the logger format and level from configuration.
func configureLogger() {
	if cfg.Output.LogFormat == "json" {
		logger.SetFormatter(log.JSONFormatter)
	} else {
		logger.SetFormatter(log.TextFormatter)
	}

	switch cfg.Output.LogLevel {
	case "debug":
		logger.SetLevel(log.DebugLevel)
	case "warn":
		logger.SetLevel(log.WarnLevel)
	case "error":
		logger.SetLevel(log.ErrorLevel)
	default:
		logger.SetLevel(log.InfoLevel)
	}
}

// configureLogFile sets up log file output if specified.
func configureLogFile() error {
	if cfg.Output.LogFile == "" {
		return nil
	}

	var err error
	logFile, err = os.OpenFile(cfg.Output.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return lrerrors.IOWrap(err, "cli.configureLogFile", "failed to open log file")
	}
	logger.SetOutput(logFile)
	return nil
}

// initConfig reads the config file and environment, then sets up logging
// and telemetry.
func initConfig(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := loadAndValidateConfig(); err != nil {
		return err
	}
	applyGlobalFlags()
	if err := config.Validate(cfg); err != nil {
		return err
	}
	configureLogger()
	if err := configureLogFile(); err != nil {
		return err
	}
	return telemetry.Init(ctx, telemetry.Options{
		Enabled:     cfg.Telemetry.Enabled,
		Exporter:    cfg.Telemetry.Exporter,
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     versionInfo.Version,
	})
}

// Cleanup flushes telemetry and closes the log file. Should be called
// before program exit.
func Cleanup() {
	telemetry.Shutdown(context.Background())
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "lockres %s\n", versionInfo.Version)
		if verbose {
			fmt.Fprintf(out, "  commit: %s\n", versionInfo.Commit)
			fmt.Fprintf(out, "  built:  %s\n", versionInfo.Date)
		}
	},
}

// Helper functions for output

func printSuccess(cmd *cobra.Command, msg string) {
	fmt.Fprintln(cmd.OutOrStdout(), styles.Success.Render("✓ "+msg))
}

func printWarning(cmd *cobra.Command, msg string) {
	fmt.Fprintln(cmd.OutOrStdout(), styles.Warning.Render("⚠ "+msg))
}

func printInfo(cmd *cobra.Command, msg string) {
	fmt.Fprintln(cmd.OutOrStdout(), styles.Info.Render("ℹ "+msg))
}

func printTitle(cmd *cobra.Command, msg string) {
	fmt.Fprintln(cmd.OutOrStdout(), styles.Title.Render(msg))
}
