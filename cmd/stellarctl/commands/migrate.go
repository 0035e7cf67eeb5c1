package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alem-hub/stellar-map/internal/app"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	Long: `Opens the configured store, which applies every pending migration, and
reports the backend in use.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
			fmt.Fprintf(cmd.OutOrStdout(), "schema is up to date (%s)\n", rt.Config.Database.Driver)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
