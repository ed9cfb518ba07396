package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/deadonfilm/deadonfilm/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "deadonfilm",
	Short: "Death-detail enrichment pipeline for deceased film people",
	Long:  "Builds and maintains a database of deceased actors and filmmakers: syncs identities from IMDb, enriches death details through a cost-governed source cascade, and stages results for human review before committing.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
