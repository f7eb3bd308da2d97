package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/thalesfsp/tune/internal/artifact"
	"github.com/thalesfsp/tune/internal/dataset"
	"github.com/thalesfsp/tune/internal/search"
)

func predictCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Score a feature table with an exported artifact",
		Long: `Load an artifact written by "tune fit --export", score every row of a feature
table (CSV or XLSX) offline and write one prediction per row as CSV.

The table must carry the artifact's feature columns. When it also carries the
target column the predictions are evaluated and the scores printed.`,
		Example: `  tune predict --artifact model.json --data holdout.csv --out preds.csv`,
		RunE:    runPredict,
	}

	cmd.Flags().String("artifact", "", "artifact file written by fit --export")
	cmd.Flags().String("data", "", "feature table (.csv or .xlsx)")
	cmd.Flags().String("out", "", "write predictions to this CSV file instead of stdout")
	_ = cmd.MarkFlagRequired("artifact")
	_ = cmd.MarkFlagRequired("data")

	return cmd
}

func runPredict(cmd *cobra.Command, _ []string) error {
	artifactPath, _ := cmd.Flags().GetString("artifact")
	dataPath, _ := cmd.Flags().GetString("data")
	out, _ := cmd.Flags().GetString("out")

	bundle, err := artifact.Load(artifactPath)
	if err != nil {
		return fmt.Errorf("failed to load artifact: %w", err)
	}

	table, err := dataset.Load(dataPath, bundle.Config.Target, bundle.Features)
	if errors.Is(err, dataset.ErrTargetNotFound) {
		slog.Info("No target column, predictions will not be evaluated", "target", bundle.Config.Target)

		table, err = dataset.Load(dataPath, "", bundle.Features)
	}

	if err != nil {
		return fmt.Errorf("failed to load feature table: %w", err)
	}

	scored, err := search.Score(bundle, table)
	if err != nil {
		return err
	}

	if out == "" {
		return writePredictions(cmd.OutOrStdout(), table, scored)
	}

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("failed to create predictions file: %w", err)
	}
	defer f.Close()

	if err := writePredictions(f, table, scored); err != nil {
		return err
	}

	slog.Info("Predictions written", "path", out, "rows", table.Len())

	if len(scored.Scores) > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "Scores: %s\n", scored.Scores.Format())
	}

	return f.Close()
}

func writePredictions(w io.Writer, table *dataset.Table, scored *search.Scored) error {
	cw := csv.NewWriter(w)

	header := []string{"row", "prediction", "probability"}
	if table.Labelled() {
		header = append(header, "label")
	}

	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write predictions: %w", err)
	}

	for i, pred := range scored.Predictions {
		record := []string{
			strconv.Itoa(i),
			strconv.Itoa(pred),
			strconv.FormatFloat(scored.Probabilities[i], 'f', 6, 64),
		}

		if table.Labelled() {
			record = append(record, strconv.Itoa(table.Y[i]))
		}

		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write predictions: %w", err)
		}
	}

	cw.Flush()

	return cw.Error()
}
