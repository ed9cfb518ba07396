package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/deadonfilm/deadonfilm/internal/fetcher"
	"github.com/deadonfilm/deadonfilm/internal/imdbsync"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync deceased people from the IMDb name dataset",
	Long:  "Downloads name.basics.tsv.gz, keeps rows with a death year, and upserts them into the subjects table. Enrichment columns on existing subjects are never touched.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{})
		syncer := imdbsync.New(st, f, cfg.Sync.DatasetURL)

		result, err := syncer.Sync(ctx, cfg.Sync.TempDir)
		if err != nil {
			return eris.Wrap(err, "imdb sync")
		}

		fmt.Printf("scanned %d rows, synced %d deceased subjects in %s\n",
			result.RowsScanned, result.RowsSynced, result.Elapsed.Round(time.Millisecond))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
