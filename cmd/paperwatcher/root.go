// paperwatcher keeps a reading profile built from a Zotero library and scores new
// literature against it.
//
// Usage:
//
//	paperwatcher profile [--full]
//	paperwatcher watch [--top N] [--notify] [--daemon] [--no-sync]
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"PaperWatcher/internal/app"
	"PaperWatcher/internal/config"
	"PaperWatcher/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	configPath string
	envPath    string
	verbose    bool
}

var rootCmd = &cobra.Command{
	Use:   "paperwatcher",
	Short: "Rank new papers against your Zotero library",
	Long:  "PaperWatcher builds an interest profile from your reference library\nand scores fresh OpenAlex, Crossref, arXiv and bioRxiv works against it.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&rootFlags.configPath, "config", "c", "", "YAML config file (default $PAPERWATCHER_CONFIG)")
	pf.StringVar(&rootFlags.envPath, "env", ".env", "dotenv file with secrets")
	pf.BoolVarP(&rootFlags.verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.Version = version
}

// bootstrap loads configuration and builds the application for a subcommand.
func bootstrap() (*app.Application, *slog.Logger, error) {
	cfg, err := config.Load(config.Options{ConfigPath: rootFlags.configPath, EnvPath: rootFlags.envPath})
	if err != nil {
		return nil, nil, err
	}
	if rootFlags.verbose {
		cfg.Logging.Level = "debug"
	}
	logger := logging.New(cfg.Logging.Level)
	return app.New(cfg, logger), logger, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
