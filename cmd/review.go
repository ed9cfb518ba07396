package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/deadonfilm/deadonfilm/internal/model"
	"github.com/deadonfilm/deadonfilm/internal/review"
	"github.com/deadonfilm/deadonfilm/internal/store"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Review staged enrichment results before they commit",
}

var reviewListCmd = &cobra.Command{
	Use:   "list",
	Short: "List staging records",
	RunE: func(cmd *cobra.Command, _ []string) error {
		runID, _ := cmd.Flags().GetString("run")
		statusNames, _ := cmd.Flags().GetStringSlice("status")
		limit, _ := cmd.Flags().GetInt("limit")

		statuses, err := parseStatuses(statusNames)
		if err != nil {
			return err
		}

		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		records, err := st.ListStaging(cmd.Context(), store.StagingFilter{
			RunID:    runID,
			Statuses: statuses,
			Limit:    limit,
		})
		if err != nil {
			return eris.Wrap(err, "list staging")
		}
		if len(records) == 0 {
			fmt.Fprintln(os.Stderr, "No staging records found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tPERSON\tNAME\tSTATUS\tCAUSE\tCONFIDENCE")
		for _, rec := range records {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n",
				rec.ID, rec.PersonID, rec.SubjectName, rec.Status,
				truncate(rec.Fields.CauseOfDeath, 40), rec.Fields.Confidence)
		}
		return w.Flush()
	},
}

var reviewShowCmd = &cobra.Command{
	Use:   "show <staging-id>",
	Short: "Show one staging record as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		rec, err := st.GetStagingRecord(cmd.Context(), args[0])
		if err != nil {
			return eris.Wrap(err, "get staging record")
		}
		if rec == nil {
			return eris.Errorf("staging record not found: %s", args[0])
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}

var reviewApproveCmd = &cobra.Command{
	Use:   "approve <staging-id>...",
	Short: "Approve staging records for commit",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reviewer, _ := cmd.Flags().GetString("reviewer")
		notes, _ := cmd.Flags().GetString("notes")

		return withWorkflow(cmd.Context(), func(ctx context.Context, wf *review.Workflow) error {
			for _, id := range args {
				if err := wf.Approve(ctx, id, reviewer, notes); err != nil {
					return err
				}
				fmt.Printf("approved %s\n", id)
			}
			return nil
		})
	},
}

var reviewRejectCmd = &cobra.Command{
	Use:   "reject <staging-id>...",
	Short: "Reject staging records",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reviewer, _ := cmd.Flags().GetString("reviewer")
		reason, _ := cmd.Flags().GetString("reason")

		return withWorkflow(cmd.Context(), func(ctx context.Context, wf *review.Workflow) error {
			for _, id := range args {
				if err := wf.Reject(ctx, id, reviewer, reason); err != nil {
					return err
				}
				fmt.Printf("rejected %s\n", id)
			}
			return nil
		})
	},
}

var reviewEditCmd = &cobra.Command{
	Use:   "edit <staging-id>",
	Short: "Edit a staging record's fields",
	Long:  "Overlays the supplied field flags onto the staged draft. Unset flags keep their current value. An edited record is commit-eligible without a separate approval.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reviewer, _ := cmd.Flags().GetString("reviewer")
		notes, _ := cmd.Flags().GetString("notes")

		edits, err := editsFromFlags(cmd)
		if err != nil {
			return err
		}

		return withWorkflow(cmd.Context(), func(ctx context.Context, wf *review.Workflow) error {
			if err := wf.Edit(ctx, args[0], reviewer, edits, notes); err != nil {
				return err
			}
			fmt.Printf("edited %s\n", args[0])
			return nil
		})
	},
}

var reviewExportCmd = &cobra.Command{
	Use:   "export <run-id>",
	Short: "Export a run's staging records to an XLSX workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")
		statusNames, _ := cmd.Flags().GetStringSlice("status")

		statuses, err := parseStatuses(statusNames)
		if err != nil {
			return err
		}
		if out == "" {
			out = fmt.Sprintf("staging-%s.xlsx", args[0])
		}

		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		n, err := review.ExportXLSX(cmd.Context(), st, args[0], out, statuses)
		if err != nil {
			return eris.Wrap(err, "export staging")
		}
		fmt.Printf("wrote %d records to %s\n", n, out)
		return nil
	},
}

var reviewCommitCmd = &cobra.Command{
	Use:   "commit <run-id>",
	Short: "Commit a run's approved and edited records to the subjects table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reviewer, _ := cmd.Flags().GetString("reviewer")

		return withWorkflow(cmd.Context(), func(ctx context.Context, wf *review.Workflow) error {
			result, err := wf.Commit(ctx, args[0], reviewer)
			if err != nil {
				return eris.Wrap(err, "commit run")
			}
			if result.Committed == 0 {
				fmt.Println("Nothing to commit: no approved or edited records in this run.")
				return nil
			}
			fmt.Printf("committed %d records from run %s\n", result.Committed, args[0])
			return nil
		})
	},
}

func withWorkflow(ctx context.Context, fn func(context.Context, *review.Workflow) error) error {
	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(ctx, review.NewWorkflow(st))
}

func parseStatuses(names []string) ([]model.StagingStatus, error) {
	out := make([]model.StagingStatus, 0, len(names))
	for _, name := range names {
		s := model.StagingStatus(name)
		switch s {
		case model.StagingPending, model.StagingApproved, model.StagingEdited,
			model.StagingRejected, model.StagingCommitted:
			out = append(out, s)
		default:
			return nil, eris.Errorf("unknown staging status: %s", name)
		}
	}
	return out, nil
}

func editsFromFlags(cmd *cobra.Command) (model.FieldEdits, error) {
	var edits model.FieldEdits

	strFlag := func(name string, dst **string) {
		if cmd.Flags().Changed(name) {
			v, _ := cmd.Flags().GetString(name)
			*dst = &v
		}
	}
	strFlag("cause", &edits.CauseOfDeath)
	strFlag("details", &edits.CauseDetails)
	strFlag("circumstances", &edits.Circumstances)
	strFlag("location", &edits.Location)

	if cmd.Flags().Changed("factors") {
		v, _ := cmd.Flags().GetStringSlice("factors")
		edits.NotableFactors = &v
	}
	if cmd.Flags().Changed("related") {
		v, _ := cmd.Flags().GetStringSlice("related")
		edits.RelatedPeople = &v
	}
	if cmd.Flags().Changed("confidence") {
		v, _ := cmd.Flags().GetString("confidence")
		c := model.Confidence(v)
		if !c.Valid() {
			return edits, eris.Errorf("unknown confidence tier: %s", v)
		}
		edits.Confidence = &c
	}
	return edits, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func init() {
	reviewListCmd.Flags().String("run", "", "filter by run ID")
	reviewListCmd.Flags().StringSlice("status", nil, "filter by status (pending, approved, edited, rejected, committed)")
	reviewListCmd.Flags().Int("limit", 100, "max records to list")

	for _, c := range []*cobra.Command{reviewApproveCmd, reviewRejectCmd, reviewEditCmd, reviewCommitCmd} {
		c.Flags().String("reviewer", "", "reviewer name recorded on the decision")
		_ = c.MarkFlagRequired("reviewer")
	}
	reviewApproveCmd.Flags().String("notes", "", "reviewer notes")
	reviewRejectCmd.Flags().String("reason", "", "why the draft was rejected")

	reviewEditCmd.Flags().String("notes", "", "reviewer notes")
	reviewEditCmd.Flags().String("cause", "", "cause of death")
	reviewEditCmd.Flags().String("details", "", "cause details")
	reviewEditCmd.Flags().String("circumstances", "", "circumstances of death")
	reviewEditCmd.Flags().String("location", "", "location of death")
	reviewEditCmd.Flags().StringSlice("factors", nil, "notable factors")
	reviewEditCmd.Flags().StringSlice("related", nil, "related people")
	reviewEditCmd.Flags().String("confidence", "", "confidence tier (high, medium, low)")

	reviewExportCmd.Flags().String("out", "", "output path (defaults to staging-<run-id>.xlsx)")
	reviewExportCmd.Flags().StringSlice("status", nil, "statuses to export (defaults to pending)")

	reviewCmd.AddCommand(reviewListCmd, reviewShowCmd, reviewApproveCmd,
		reviewRejectCmd, reviewEditCmd, reviewExportCmd, reviewCommitCmd)
	rootCmd.AddCommand(reviewCmd)
}
