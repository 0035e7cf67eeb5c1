package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alem-hub/stellar-map/internal/app"
	"github.com/alem-hub/stellar-map/internal/application/query"
)

var (
	validateCore   string
	validateStrict bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Audit the stored hierarchy",
	Long: `Groups every stored node of each core and reports orphans, level
mismatches, cross-core references, duplicates and stale aliases. With
--strict the command fails when any error-level issue is found.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
			result, err := rt.Validate.Handle(ctx, query.ValidateHierarchyQuery{Core: validateCore})
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			printAuditSummary(cmd.ErrOrStderr(), result)
			if validateStrict && result.HasErrors() {
				return fmt.Errorf("hierarchy has %d issues", result.TotalIssues())
			}
			return nil
		})
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateCore, "core", "", "audit a single core")
	validateCmd.Flags().BoolVar(&validateStrict, "strict", false, "exit non-zero on error-level issues")
	rootCmd.AddCommand(validateCmd)
}
