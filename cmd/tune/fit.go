package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/thalesfsp/tune"
	"github.com/thalesfsp/tune/internal/dataset"
	"github.com/thalesfsp/tune/internal/leaderboard"
	"github.com/thalesfsp/tune/internal/report"
	"github.com/thalesfsp/tune/internal/search"
	"github.com/thalesfsp/tune/internal/tracking"
)

func fitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fit",
		Short: "Search hyperparameters and fit the final model",
		Long: `Load a feature table (CSV or XLSX), split it into modelling and holdout rows,
run the cross-validated hyperparameter search on the modelling rows, refit the
best configuration and score it on the holdout.

A fold where the model predicts no positive label has no defined precision and
aborts the search. The min_samples_leaf bound is narrowed to a tenth of the
training rows per fold to keep small or imbalanced tables from hitting this.`,
		Example: `  tune fit --data titanic.csv --target survived --runs 20 --export model.json
  tune fit --data features.xlsx --target churned --metric auc_avg --report report.html`,
		RunE: runFit,
	}

	cmd.Flags().String("data", "", "feature table (.csv or .xlsx)")
	cmd.Flags().String("target", "", "label column (0/1)")
	cmd.Flags().StringSlice("features", nil, "feature columns (default: every column except the target)")
	cmd.Flags().Int("folds", 0, "number of cross validation folds")
	cmd.Flags().Int("runs", 0, "number of hyperparameter optimisation runs")
	cmd.Flags().String("metric", "", "optimisation metric (acc_avg, prec_avg, rec_avg, f1_avg, auc_avg)")
	cmd.Flags().String("direction", "", "optimisation direction (max, min)")
	cmd.Flags().Int64("seed", 0, "random seed")
	cmd.Flags().String("experiment", "", "experiment name for tracking")
	cmd.Flags().String("export", "", "write the fitted artifact to this path")
	cmd.Flags().String("report", "", "write a report to this path (.html or .md)")
	cmd.Flags().Bool("no-scaling", false, "skip standard scaling of features")
	_ = cmd.MarkFlagRequired("data")

	bind := map[string]string{
		"target":                             "target",
		"features":                           "features",
		"n_folds":                            "folds",
		"n_hyperparameter_optimisation_runs": "runs",
		"optimisation_metric":                "metric",
		"max_or_min_optimisation_metric":     "direction",
		"seed":                               "seed",
		"tracking.experiment":                "experiment",
	}

	cmd.PreRunE = func(cmd *cobra.Command, _ []string) error {
		for key, flag := range bind {
			if cmd.Flags().Changed(flag) {
				if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
					return err
				}
			}
		}

		return nil
	}

	return cmd
}

func runFit(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	dataPath, _ := cmd.Flags().GetString("data")
	exportPath, _ := cmd.Flags().GetString("export")
	reportPath, _ := cmd.Flags().GetString("report")
	noScaling, _ := cmd.Flags().GetBool("no-scaling")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	table, err := dataset.Load(dataPath, cfg.Target, cfg.Features)
	if err != nil {
		return fmt.Errorf("failed to load feature table: %w", err)
	}

	slog.Info("Feature table loaded",
		"path", dataPath,
		"rows", table.Len(),
		"features", len(table.Features),
		"labels", table.LabelCounts(),
	)

	progress := make(chan tune.ProgressUpdate, cfg.NRuns)

	s := &search.Search{
		Config:   cfg,
		Progress: progress,
	}

	if !noScaling {
		s.NewPreprocessor = search.ScalerFactory
	}

	p := &search.Pipeline{
		Search:     s,
		ExportPath: exportPath,
	}

	if cfg.Tracking.DSN != "" {
		store, err := tracking.Open(ctx, cfg.Tracking.DSN)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		p.Tracker = store
	}

	var wg sync.WaitGroup

	wg.Add(1)

	go func() {
		defer wg.Done()
		renderProgress(cmd, cfg.NRuns, cfg.OptimisationDirection(), progress)
	}()

	result, err := p.Fit(ctx, table)

	close(progress)
	wg.Wait()

	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "\nBest trial %d: %s = %.4f\n", result.Best.Index, cfg.Metric, result.Best.Averages[cfg.Metric])

	for _, name := range result.Best.MetricNames() {
		fmt.Fprintf(out, "  %-10s %.4f\n", name, result.Best.Averages[name])
	}

	if len(result.Holdout) > 0 {
		fmt.Fprintf(out, "Holdout: %s\n", result.Holdout.Format())
	}

	if result.RunID != uuid.Nil {
		fmt.Fprintf(out, "Run ID: %s\n", result.RunID)
	}

	if reportPath != "" {
		summary := report.FromReport(filepath.Base(dataPath), cfg.Metric, cfg.OptimisationDirection(), result)
		if err := writeReport(reportPath, summary); err != nil {
			return err
		}

		slog.Info("Report written", "path", reportPath)
	}

	return nil
}

// renderProgress draws one bar step per told trial. Objectives are mapped
// back to metric values for display.
func renderProgress(cmd *cobra.Command, total int, direction leaderboard.Direction, updates <-chan tune.ProgressUpdate) {
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]Searching hyperparameters...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			_, _ = fmt.Fprintln(cmd.ErrOrStderr())
		}),
	)

	for update := range updates {
		bar.Describe(fmt.Sprintf("[cyan][bold]%s[reset] best=%.4f", update.Phase, direction.Objective(update.CurrentBestValue)))

		if err := bar.Add(1); err != nil {
			slog.Warn("Failed to update progress bar", "error", err)
		}
	}
}

func writeReport(path string, summary report.Summary) error {
	var content []byte

	if strings.EqualFold(filepath.Ext(path), ".html") {
		content = report.HTML(summary)
	} else {
		content = []byte(report.Markdown(summary))
	}

	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	return nil
}
