package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"glotta-hq/hermes/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long: `Load the configuration file, apply defaults and environment overrides,
and report every validation problem found.

Examples:
  # Validate the default config
  hermes validate

  # Validate a specific file
  hermes validate --config /etc/hermes/config.yaml`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validateConfig(cmd *cobra.Command, args []string) error {
	_, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		var validationErr config.ValidationError
		if errors.As(err, &validationErr) {
			fmt.Printf("Configuration invalid (%d problems):\n", len(validationErr.Errors))
			for _, fieldErr := range validationErr.Errors {
				fmt.Printf("  - %s\n", fieldErr)
			}
			return fmt.Errorf("validation failed")
		}
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Printf("✓ Configuration valid: %s\n", cfgFile)
	return nil
}
