package commands

import (
	"context"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/alem-hub/stellar-map/internal/app"
	"github.com/alem-hub/stellar-map/internal/application/command"
)

var rewardLearner string

var rewardCmd = &cobra.Command{
	Use:   "reward <node-id>",
	Short: "Apply the reward of a completion recorded without it",
	Long: `Adds the stored reward of an existing completion to the learner's
experience. Use it only for completions the worker lists as owed
(RewardFailed); each run adds the reward again.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
			result, err := rt.ApplyReward.Handle(ctx, command.ApplyRewardCommand{
				LearnerID:     rewardLearner,
				NodeID:        args[0],
				CorrelationID: uuid.NewString(),
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		})
	},
}

func init() {
	rewardCmd.Flags().StringVar(&rewardLearner, "learner", "", "learner id")
	_ = rewardCmd.MarkFlagRequired("learner")
	rootCmd.AddCommand(rewardCmd)
}
