package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "hermes",
	Short: "Hermes - caching and governance proxy for translation lookups",
	Long: `Hermes is a caching and governance proxy for batch word translation
lookups.

It answers batches from a layered cache and fetches the rest from the
upstream translation API under admission control:
  - Bloom-filtered two-tier cache (in-memory LRU plus persisted store)
  - Per-caller sliding window rate limits
  - Cost accounting with a circuit breaker and emergency stop
  - Retrying upstream fetches with jittered exponential backoff`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
