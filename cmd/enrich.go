package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/deadonfilm/deadonfilm/internal/model"
	"github.com/deadonfilm/deadonfilm/internal/source"
	"github.com/deadonfilm/deadonfilm/internal/store"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Run the death-detail enrichment cascade over subjects",
	Long:  "Selects subjects, runs each through the source cascade under the cost governor, and stages fused results for review. Nothing touches the live subjects table until a reviewer commits the run.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		runCfg := runConfigFromFlags(cmd)

		personIDs, _ := cmd.Flags().GetIntSlice("person-id")
		limit, _ := cmd.Flags().GetInt("limit")
		missingOnly, _ := cmd.Flags().GetBool("missing-only")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		env, err := initEnrich(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		subjects, err := env.Store.ListSubjects(ctx, store.SubjectFilter{
			PersonIDs:   personIDs,
			MissingOnly: missingOnly,
			Limit:       limit,
		})
		if err != nil {
			return eris.Wrap(err, "list subjects")
		}
		if len(subjects) == 0 {
			fmt.Fprintln(os.Stderr, "No matching subjects.")
			return nil
		}

		if dryRun {
			printDryRun(subjects, env.Registry, runCfg)
			return nil
		}

		run, err := env.Pipeline.RunBatch(ctx, subjects, runCfg)
		if err != nil {
			return eris.Wrap(err, "enrich run")
		}

		printRunSummary(run)
		return nil
	},
}

func runConfigFromFlags(cmd *cobra.Command) model.RunConfig {
	runCfg := model.RunConfig{
		Categories:          cfg.Enrich.Categories,
		ConfidenceThreshold: cfg.Enrich.ConfidenceThreshold,
		StopOnMatch:         cfg.Enrich.StopOnMatch,
		GatherAllSources:    cfg.Enrich.GatherAllSources,
		ClaudeCleanup:       cfg.Enrich.ClaudeCleanup,
		MaxCostPerSubject:   cfg.Enrich.MaxCostPerSubject,
		MaxTotalCost:        cfg.Enrich.MaxTotalCost,
		Concurrency:         cfg.Enrich.Concurrency,
	}

	if cmd.Flags().Changed("categories") {
		runCfg.Categories, _ = cmd.Flags().GetStringSlice("categories")
	}
	if cmd.Flags().Changed("confidence-threshold") {
		runCfg.ConfidenceThreshold, _ = cmd.Flags().GetFloat64("confidence-threshold")
	}
	if cmd.Flags().Changed("stop-on-match") {
		runCfg.StopOnMatch, _ = cmd.Flags().GetBool("stop-on-match")
	}
	if cmd.Flags().Changed("gather-all-sources") {
		runCfg.GatherAllSources, _ = cmd.Flags().GetBool("gather-all-sources")
	}
	if cmd.Flags().Changed("claude-cleanup") {
		runCfg.ClaudeCleanup, _ = cmd.Flags().GetBool("claude-cleanup")
	}
	if cmd.Flags().Changed("max-cost-per-subject") {
		runCfg.MaxCostPerSubject, _ = cmd.Flags().GetFloat64("max-cost-per-subject")
	}
	if cmd.Flags().Changed("max-total-cost") {
		runCfg.MaxTotalCost, _ = cmd.Flags().GetFloat64("max-total-cost")
	}
	if cmd.Flags().Changed("concurrency") {
		runCfg.Concurrency, _ = cmd.Flags().GetInt("concurrency")
	}
	return runCfg
}

func printDryRun(subjects []model.Subject, reg *source.Registry, runCfg model.RunConfig) {
	cascade := reg.Cascade(source.ParseCategories(runCfg.Categories))

	var perSubject float64
	for _, s := range cascade {
		perSubject += s.EstimatedCostPerQuery()
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PERSON_ID\tNAME\tDEATH_YEAR")
	for _, subj := range subjects {
		fmt.Fprintf(w, "%d\t%s\t%d\n", subj.PersonID, subj.Name, subj.DeathYear)
	}
	w.Flush()

	fmt.Printf("\n%d subjects, %d sources in cascade (", len(subjects), len(cascade))
	for i, s := range cascade {
		if i > 0 {
			fmt.Print(" -> ")
		}
		fmt.Print(s.Name())
	}
	fmt.Printf(")\nworst-case cost: $%.4f/subject, $%.2f total\n", perSubject, perSubject*float64(len(subjects)))
	fmt.Println("Dry run: no sources queried, nothing staged.")
}

func printRunSummary(run *model.Run) {
	fmt.Printf("Run %s finished: %s\n", run.ID, run.ExitReason)
	fmt.Printf("  processed: %d/%d subjects\n", run.Stats.SubjectsProcessed, run.Stats.SubjectsQueried)
	fmt.Printf("  enriched:  %d (fill rate %.1f%%)\n", run.Stats.SubjectsEnriched, run.Stats.FillRate)
	fmt.Printf("  cost:      $%.4f\n", run.Stats.TotalCostUSD)
	for src, usd := range run.Stats.CostBySource {
		fmt.Printf("    %-14s $%.4f\n", src, usd)
	}
	if run.Stats.ErrorCount > 0 {
		fmt.Printf("  errors:    %d\n", run.Stats.ErrorCount)
	}
	if run.ExitReason == model.ExitCostLimitReached {
		fmt.Println("  cost limit reached; staged work is preserved. Review and commit, then re-run for the rest.")
	}
	fmt.Printf("\nNext: deadonfilm review list --run %s\n", run.ID)
}

func init() {
	enrichCmd.Flags().IntSlice("person-id", nil, "enrich specific person IDs")
	enrichCmd.Flags().Int("limit", 25, "max subjects to process")
	enrichCmd.Flags().Bool("missing-only", true, "only subjects with no committed enrichment")
	enrichCmd.Flags().StringSlice("categories", nil, "source categories to run (free, paid, ai)")
	enrichCmd.Flags().Float64("confidence-threshold", 0, "confidence needed to stop the cascade early")
	enrichCmd.Flags().Bool("stop-on-match", true, "stop the cascade at the first confident result")
	enrichCmd.Flags().Bool("gather-all-sources", false, "query every source even after a confident match")
	enrichCmd.Flags().Bool("claude-cleanup", true, "run the model cleanup pass over fused results")
	enrichCmd.Flags().Float64("max-cost-per-subject", 0, "per-subject spend cap in USD (0 uses config)")
	enrichCmd.Flags().Float64("max-total-cost", 0, "per-run spend cap in USD (0 uses config)")
	enrichCmd.Flags().Int("concurrency", 0, "subjects processed in parallel (0 uses config)")
	enrichCmd.Flags().Bool("dry-run", false, "show what would be processed without querying sources")

	rootCmd.AddCommand(enrichCmd)
}
