package commands

import (
	"context"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/alem-hub/stellar-map/internal/app"
	"github.com/alem-hub/stellar-map/internal/application/command"
)

var (
	completeLearner string
	completeReward  int64
)

var completeCmd = &cobra.Command{
	Use:   "complete <node-id>...",
	Short: "Record node completions for a learner",
	Long: `Marks each node completed for the learner. The first completion of a node
grants its reward; repeats are reported and grant nothing.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
			completions := make([]command.CompleteNodeCommand, 0, len(args))
			for _, nodeID := range args {
				completions = append(completions, command.CompleteNodeCommand{
					LearnerID: completeLearner,
					NodeID:    nodeID,
					Reward:    completeReward,
				})
			}
			result, err := rt.CompleteBatch.Handle(ctx, command.CompleteNodesCommand{
				Completions:   completions,
				CorrelationID: uuid.NewString(),
			})
			if err != nil {
				return err
			}
			errs := make(map[string]string, len(result.Errors))
			for k, e := range result.Errors {
				errs[k] = e.Error()
			}
			return printJSON(cmd.OutOrStdout(), struct {
				*command.CompleteNodesResult
				Errors map[string]string `json:"errors,omitempty"`
			}{result, errs})
		})
	},
}

func init() {
	completeCmd.Flags().StringVar(&completeLearner, "learner", "", "learner id")
	completeCmd.Flags().Int64Var(&completeReward, "reward", 0, "xp reward (default: the node's xp_reward, else DEFAULT_REWARD)")
	_ = completeCmd.MarkFlagRequired("learner")
	rootCmd.AddCommand(completeCmd)
}
