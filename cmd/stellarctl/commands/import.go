package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/alem-hub/stellar-map/internal/app"
	"github.com/alem-hub/stellar-map/internal/application/command"
)

var (
	importFormat  string
	importDryRun  bool
	importReward  int64
	importAliases map[string]string
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import classified content nodes from JSON or YAML",
	Long: `Reads an array of classified records, resolves each constellation by name
within its core and stores the node with an unlock threshold derived from
its difficulty. Records that fail are reported and skipped.

The format follows the file extension unless --format is given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		format := command.FormatForPath(path)
		if importFormat != "" {
			format = command.ImportFormat(importFormat)
		}

		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open import file: %w", err)
		}
		defer f.Close()

		records, err := command.ParseImport(f, format)
		if err != nil {
			return err
		}

		return withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
			aliases := make(map[string]string, len(rt.Config.Engine.ConstellationAliases)+len(importAliases))
			for k, v := range rt.Config.Engine.ConstellationAliases {
				aliases[k] = v
			}
			for k, v := range importAliases {
				aliases[k] = v
			}
			reward := importReward
			if reward == 0 {
				reward = rt.Config.Engine.DefaultReward
			}

			result, err := rt.ImportNodes.Handle(ctx, command.ImportNodesCommand{
				Records:              records,
				Source:               filepath.Base(path),
				DryRun:               importDryRun,
				ConstellationAliases: aliases,
				Reward:               reward,
			})
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if result.Failed > 0 {
				return fmt.Errorf("%d of %d records failed", result.Failed, len(records))
			}
			return nil
		})
	},
}

var catalogCmd = &cobra.Command{
	Use:   "catalog <file>",
	Short: "Create families and constellations from a YAML catalog",
	Long: `Creates every family and constellation listed in the catalog that does not
exist yet. Running the same catalog twice changes nothing.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open catalog: %w", err)
		}
		defer f.Close()

		catalog, err := command.ParseCatalog(f)
		if err != nil {
			return err
		}
		return withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
			result, err := rt.ImportCatalog.Handle(ctx, command.ImportCatalogCommand{Catalog: catalog})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		})
	},
}

func init() {
	importCmd.Flags().StringVar(&importFormat, "format", "", "json or yaml (default: from extension)")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "resolve records without inserting")
	importCmd.Flags().Int64Var(&importReward, "reward", 0, "xp reward stored on each node (default: DEFAULT_REWARD)")
	importCmd.Flags().StringToStringVar(&importAliases, "alias", nil, "constellation rename, old=new (repeatable)")
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(catalogCmd)
}
