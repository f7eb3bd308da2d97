package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List tracked runs",
		RunE:  runRuns,
	}

	cmd.Flags().String("experiment", "", "only list runs of this experiment")

	return cmd
}

func runRuns(cmd *cobra.Command, _ []string) error {
	experiment, _ := cmd.Flags().GetString("experiment")

	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	runs, err := store.Runs(cmd.Context(), experiment)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tEXPERIMENT\tMETRIC\tVALUE\tTRIALS\tCREATED")

	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s %s\t%.4f\t%d\t%s\n",
			r.ID, r.Experiment, r.Direction, r.Metric, r.Value, r.Trials, r.CreatedAt.Format("2006-01-02 15:04:05"))
	}

	return w.Flush()
}
