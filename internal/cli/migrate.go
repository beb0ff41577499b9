package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, closeDB, err := openDB()
		if err != nil {
			return err
		}
		defer closeDB()

		fmt.Fprintf(cmd.OutOrStdout(), "schema up to date: %s\n", cfg.DatabaseURL)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
