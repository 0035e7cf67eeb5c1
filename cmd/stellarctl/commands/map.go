package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/alem-hub/stellar-map/internal/app"
	"github.com/alem-hub/stellar-map/internal/application/query"
)

var mapFlags struct {
	core    string
	learner string
	xp      int64
}

var mapCmd = &cobra.Command{
	Use:   "map",
	Short: "Print the grouped hierarchy a learner sees in one core",
	Long: `Loads the learner's experience and completions, classifies the learner in
the core and prints the family/constellation/node tree for the revealed
difficulty range. --xp overrides the stored experience.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
			result, err := rt.Map.Handle(ctx, mapQuery(cmd))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		})
	},
}

func mapQuery(cmd *cobra.Command) query.GetStellarMapQuery {
	q := query.GetStellarMapQuery{LearnerID: mapFlags.learner, Core: mapFlags.core}
	if cmd.Flags().Changed("xp") {
		xp := mapFlags.xp
		q.XP = &xp
	}
	return q
}

func addMapFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&mapFlags.core, "core", "", "core name (case-insensitive)")
	cmd.Flags().StringVar(&mapFlags.learner, "learner", "", "learner id")
	cmd.Flags().Int64Var(&mapFlags.xp, "xp", 0, "experience override")
	_ = cmd.MarkFlagRequired("core")
}

func init() {
	addMapFlags(mapCmd)
	rootCmd.AddCommand(mapCmd)
}
