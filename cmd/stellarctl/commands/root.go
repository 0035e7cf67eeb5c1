package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alem-hub/stellar-map/config"
	"github.com/alem-hub/stellar-map/internal/app"
	"github.com/alem-hub/stellar-map/pkg/logger"
)

var (
	version string
	commit  string
	date    string

	sqlitePath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "stellarctl",
	Short: "Stellar Map content and map tooling",
	Long: `stellarctl imports the Stellar Map catalog and content nodes, audits the
family/constellation/node hierarchy, classifies learners into visibility
tiers, records node completions and renders a core's scene headlessly.

Storage, caches and tracing are configured from the environment.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI.
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&sqlitePath, "sqlite", "", "use a SQLite store at this path instead of DATABASE_DRIVER")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL")
}

// loadConfig reads the environment and applies the global flags.
func loadConfig() (*config.Config, error) {
	return config.Load(func(c *config.Config) {
		if sqlitePath != "" {
			c.Database.Driver = config.DriverSQLite
			c.Database.SQLitePath = sqlitePath
		}
		if logLevel != "" {
			c.Observability.LogLevel = logLevel
		}
	})
}

func newLogger(cfg *config.Config, w io.Writer) *logger.Logger {
	opts := cfg.LoggerOptions()
	opts.Output = w
	return logger.New(opts)
}

// withRuntime opens the runtime for one command and closes it afterwards.
// Logs go to stderr so stdout stays machine-readable.
func withRuntime(cmd *cobra.Command, fn func(ctx context.Context, rt *app.Runtime) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg, cmd.ErrOrStderr())
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := app.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(context.Background()); err != nil {
			log.Warn("close runtime", logger.Err(err))
		}
	}()
	return fn(ctx, rt)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
