package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tinytelemetry/meetreport/internal/job"
)

// Build variables - set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

// exitError carries a process exit code out of a cobra command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func startupError(err error) error {
	return &exitError{code: job.ExitStartup, err: err}
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		code := job.ExitStartup
		var ee *exitError
		if errors.As(err, &ee) {
			code = ee.code
		}
		if ee == nil || ee.err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(code)
	}
}

func newRootCmd() *cobra.Command {
	var configPath, envFile string

	load := func() (appConfig, error) {
		cfg, err := loadConfig(configPath, envFile)
		if err != nil {
			return cfg, startupError(fmt.Errorf("loading config: %w", err))
		}
		return cfg, nil
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Mail the failed meetings report for the configured window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if err := cfg.validate(); err != nil {
				return startupError(err)
			}
			return runReport(cmd.Context(), cfg)
		},
	}

	rootCmd := &cobra.Command{
		Use:           "meetreport",
		Short:         "Failed meetings report mailer",
		Long:          "Logs into the meetings console, exports the failed meetings for the previous day and emails them as a spreadsheet.",
		Args:          cobra.NoArgs,
		RunE:          runCmd.RunE,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default is $HOME/.config/meetreport/config.yml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	checkCmd := &cobra.Command{
		Use:   "check-config",
		Short: "Print the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(cfg.masked())
			if err != nil {
				return startupError(err)
			}
			w := cmd.OutOrStdout()
			if cfg.ConfigPath != "" {
				fmt.Fprintf(w, "# config file: %s\n", cfg.ConfigPath)
			}
			if cfg.HistoryDBPath != "" {
				fmt.Fprintln(w, historySchemaLine(cmd.Context(), cfg.HistoryDBPath))
			}
			fmt.Fprint(w, string(out))
			if err := cfg.validate(); err != nil {
				return startupError(err)
			}
			return nil
		},
	}

	var limit int
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return printHistory(cmd.Context(), cmd.OutOrStdout(), cfg, limit)
		},
	}
	historyCmd.Flags().IntVar(&limit, "limit", 20, "number of runs to show")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Meetreport - Failed Meetings Report Mailer\n")
			fmt.Fprintf(w, "  Version:    %s\n", version)
			fmt.Fprintf(w, "  Commit:     %s\n", commit)
			fmt.Fprintf(w, "  Built:      %s\n", buildTime)
			fmt.Fprintf(w, "  Go version: %s\n", goVersion)
		},
	}

	rootCmd.AddCommand(runCmd, checkCmd, historyCmd, versionCmd)
	return rootCmd
}
