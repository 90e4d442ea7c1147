package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/FACorreiaa/ledger-core/pkg/config"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	metrics    bool
	allMetrics bool
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Import bank statements into the personal ledger",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().BoolVar(&flags.metrics, "metrics", false, "print ledger metrics after the command")
	rootCmd.PersistentFlags().BoolVar(&flags.allMetrics, "all-metrics", false, "with --metrics, include Go runtime metrics")

	rootCmd.AddCommand(
		newMigrateCommand(flags),
		newImportCommand(flags),
		newPendingCommand(flags),
		newInstallmentsCommand(flags),
	)

	return rootCmd
}

// withDependencies loads configuration, wires the dependencies, runs fn and
// releases everything afterwards. Metrics are printed when requested, even
// when fn fails.
func withDependencies(cmd *cobra.Command, flags *globalFlags, fn func(ctx context.Context, deps *Dependencies) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if flags.metrics {
		cfg.Observability.MetricsEnabled = true
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg.Log)
	deps, err := InitDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Cleanup()

	runErr := fn(ctx, deps)

	if flags.metrics {
		if err := deps.Metrics.WriteText(cmd.OutOrStdout(), flags.allMetrics); err != nil && runErr == nil {
			runErr = err
		}
	}
	return runErr
}

func parseUUID(name, value string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid --%s %q: %w", name, value, err)
	}
	return id, nil
}

// parseOptionalUUID returns nil for an empty value.
func parseOptionalUUID(name, value string) (*uuid.UUID, error) {
	if value == "" {
		return nil, nil
	}
	id, err := parseUUID(name, value)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func parseDate(name, value string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s %q, want YYYY-MM-DD", name, value)
	}
	return t, nil
}

func newMigrateCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDependencies(cmd, flags, func(ctx context.Context, deps *Dependencies) error {
				if err := deps.RunMigrations(ctx); err != nil {
					return fmt.Errorf("failed to run migrations: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			})
		},
	}
}
