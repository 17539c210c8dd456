// gatectl evaluates messages against the gate and administers the banned
// word list.
package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/bezhai/inner-bot-server-sub001/internal/config"
)

var (
	configDir  string
	sqlitePath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "gatectl",
	Short: "Operate the inner-bot front gate",
	Long: "Runs messages through the gate pipeline and manages the banned word\n" +
		"list in Postgres and Redis, or in a local SQLite file with --sqlite.",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "configs", "path to configuration directory")
	rootCmd.PersistentFlags().StringVar(&sqlitePath, "sqlite", "", "use a local SQLite block-list instead of Postgres/Redis")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log pipeline details to stderr")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Loader, error) {
	loader := config.NewLoader(configDir, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := loader.Load(); err != nil {
		return nil, err
	}
	return loader, nil
}
