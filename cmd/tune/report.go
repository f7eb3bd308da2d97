package main

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/thalesfsp/tune/internal/leaderboard"
	"github.com/thalesfsp/tune/internal/report"
	"github.com/thalesfsp/tune/internal/tracking"
)

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report <run-id>",
		Short: "Render the leaderboard of a tracked run",
		Args:  cobra.ExactArgs(1),
		RunE:  runReport,
	}

	cmd.Flags().String("out", "", "write to this path (.html or .md) instead of stdout")

	return cmd
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out, _ := cmd.Flags().GetString("out")

	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid run id: %w", err)
	}

	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	run, err := store.Run(ctx, id)
	if err != nil {
		return err
	}

	trials, err := store.Leaderboard(ctx, id)
	if err != nil {
		return err
	}

	direction, err := leaderboard.ParseDirection(run.Direction)
	if err != nil {
		return err
	}

	summary := report.Summary{
		Title:     fmt.Sprintf("%s run %s", run.Experiment, run.ID),
		Metric:    run.Metric,
		Direction: direction,
		Trials:    trials,
	}

	if out == "" {
		_, err := fmt.Fprint(cmd.OutOrStdout(), report.Markdown(summary))

		return err
	}

	return writeReport(out, summary)
}

func openStore(cmd *cobra.Command) (*tracking.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	if cfg.Tracking.DSN == "" {
		return nil, errors.New("no tracking database configured (set --tracking-dsn or TUNE_TRACKING_DSN)")
	}

	return tracking.Open(cmd.Context(), cfg.Tracking.DSN)
}
