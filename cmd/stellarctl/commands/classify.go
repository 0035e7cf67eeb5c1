package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alem-hub/stellar-map/internal/domain/visibility"
)

var (
	classifyCore string
	classifyXP   int64
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Show the visibility tier for a core and experience total",
	Long: `Classifies an experience total against the core threshold table and
prints the tier and the difficulty range it reveals. Without --core every
known core is classified.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if classifyXP < 0 {
			return fmt.Errorf("--xp cannot be negative")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		classifier := visibility.DefaultClassifier()
		if cfg.Engine.CoreTablePath != "" {
			if classifier, err = visibility.LoadTableFile(cfg.Engine.CoreTablePath); err != nil {
				return fmt.Errorf("load core table: %w", err)
			}
		}

		cores := classifier.Cores()
		if classifyCore != "" {
			core, ok := classifier.ParseCore(classifyCore)
			if !ok {
				core = visibility.Core(classifyCore)
			}
			cores = []visibility.Core{core}
		}

		out := make([]visibility.Classification, 0, len(cores))
		for _, core := range cores {
			out = append(out, classifier.Classify(core, classifyXP))
		}
		return printJSON(cmd.OutOrStdout(), out)
	},
}

func init() {
	classifyCmd.Flags().StringVar(&classifyCore, "core", "", "core name (case-insensitive)")
	classifyCmd.Flags().Int64Var(&classifyXP, "xp", 0, "experience points")
	rootCmd.AddCommand(classifyCmd)
}
