// Package cli implements the newtab command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Global flags. Empty values leave the environment configuration in place.
var (
	storeBackend string
	storePath    string
	logLevel     string
	logFormat    string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "newtab",
	Short: "newtab serves the daily background, weather and holidays for a new-tab page",
	Long: `newtab caches a daily background image, per-city weather and per-country
public holidays in a local or remote key-value store, and serves them over HTTP.
Configuration is read from NEWTAB_* environment variables; flags override them.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&storeBackend, "store", "", "Store backend: bbolt, sqlite, redis, firestore or memory")
	rootCmd.PersistentFlags().StringVar(&storePath, "store-path", "", "Database file for the bbolt and sqlite backends")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: console or json")
}
