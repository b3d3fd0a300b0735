package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/fintrack/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate or validate configuration files",
	Long: `Manage fintrack configuration files.

Subcommands:
  init     - Generate a default configuration file
  validate - Validate an existing configuration file

Every setting can be overridden from the environment, e.g.
FINTRACK_DATABASE_PATH=/var/lib/fintrack.db.

Examples:
  fintrack config init -o fintrack.yaml
  fintrack config validate -f fintrack.yaml`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a default configuration file",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

var (
	configInitOutput   string
	configValidatePath string
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", "fintrack.yaml", "output config file path")
	configValidateCmd.Flags().StringVarP(&configValidatePath, "file", "f", "", "path to config file (required)")
	configValidateCmd.MarkFlagRequired("file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if err := cfg.SaveToFile(configInitOutput); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Printf("✓ Created default configuration: %s\n", configInitOutput)
	fmt.Println("\nEdit the file and run with:")
	fmt.Printf("  fintrack --config %s account list\n", configInitOutput)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configValidatePath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	fmt.Printf("✓ Configuration valid: %s\n", configValidatePath)
	fmt.Printf("  Owner: %s\n", cfg.Owner)
	fmt.Printf("  Database: %s (busy %s, %s)\n", cfg.Database.Path, cfg.Database.BusyTimeout, cfg.Database.TxLock)
	fmt.Printf("  Engine: %d retries, %s backoff\n", cfg.Engine.MaxRetries, cfg.Engine.RetryBackoff)
	fmt.Printf("  Server: %s (%s)\n", cfg.Server.Address, cfg.Server.Mode)
	return nil
}
