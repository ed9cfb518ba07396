package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(cmd.Context()); err != nil {
			return eris.Wrap(err, "migrate store")
		}
		fmt.Println("migrations applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
