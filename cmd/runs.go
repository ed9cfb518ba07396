package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/deadonfilm/deadonfilm/internal/model"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect past enrichment runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		runs, err := st.ListRuns(cmd.Context(), limit)
		if err != nil {
			return eris.Wrap(err, "list runs")
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTARTED\tEXIT\tREVIEW\tPROCESSED\tENRICHED\tCOST")
		for _, run := range runs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%d\t$%.4f\n",
				run.ID,
				run.StartedAt.Format("2006-01-02 15:04"),
				exitOrRunning(run),
				run.ReviewStatus,
				run.Stats.SubjectsProcessed, run.Stats.SubjectsQueried,
				run.Stats.SubjectsEnriched,
				run.Stats.TotalCostUSD)
		}
		return w.Flush()
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		run, err := st.GetRun(cmd.Context(), args[0])
		if err != nil {
			return eris.Wrap(err, "get run")
		}
		if run == nil {
			return eris.Errorf("run not found: %s", args[0])
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

func exitOrRunning(run model.Run) string {
	if run.ExitReason == "" {
		return "running"
	}
	return string(run.ExitReason)
}

func init() {
	runsListCmd.Flags().Int("limit", 20, "max runs to list")

	runsCmd.AddCommand(runsListCmd, runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}
