package cmd

import (
	"errors"
	"fmt"

	"github.com/conneroisu/otuserver/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect OTUServer configuration",
	Long: `Inspect the configuration resolved from .otuserver.yml, OTUSERVER_
environment variables and flags.

Examples:
  otuserver config show                  # Show resolved configuration as YAML
  otuserver config show --format json    # Show it as JSON
  otuserver config validate              # Check it before serving
  otuserver config validate --strict     # Treat warnings as errors`,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the resolved configuration",
	Long: `Validate the resolved configuration for correctness.

This command checks for:
- Valid port range and host name
- An existing document root directory
- A bare index file name
- Positive worker count and timeouts
- Known log level and format`,
	RunE: runConfigValidate,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Display the configuration after file, environment and defaults are
applied.`,
	RunE: runConfigShow,
}

var (
	configFormat string
	configStrict bool
)

func init() {
	rootCmd.AddCommand(configCmd)

	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)

	configValidateCmd.Flags().BoolVar(&configStrict, "strict", false, "Treat warnings as errors")
	configShowCmd.Flags().StringVar(&configFormat, "format", "yaml", "Output format (yaml, json)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Resolve(viper.GetViper())
	if err != nil {
		return fmt.Errorf("failed to parse configuration: %w", err)
	}

	var out []byte
	switch configFormat {
	case "yaml", "yml":
		out, err = config.Dump(cfg)
	case "json":
		out, err = config.DumpJSON(cfg)
		out = append(out, '\n')
	default:
		return fmt.Errorf("unsupported format: %s (supported: yaml, json)", configFormat)
	}
	if err != nil {
		return fmt.Errorf("failed to render configuration: %w", err)
	}

	_, err = cmd.OutOrStdout().Write(out)
	return err
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Resolve(viper.GetViper())
	if err != nil {
		return fmt.Errorf("failed to parse configuration: %w", err)
	}

	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Fprintf(out, "🔍 Validating configuration file: %s\n", used)
	} else {
		fmt.Fprintln(out, "🔍 Validating configuration (no file, defaults and environment)")
	}

	validation := config.ValidateConfigWithDetails(cfg)

	if validation.Valid && !validation.HasWarnings() {
		fmt.Fprintln(out, "✅ Configuration is valid!")
		return nil
	}

	fmt.Fprint(out, validation.String())

	if validation.HasErrors() {
		return fmt.Errorf("configuration validation failed with %d errors", len(validation.Errors))
	}

	if configStrict {
		return errors.New("configuration validation failed in strict mode")
	}

	fmt.Fprintf(out, "✅ Configuration is valid with %d warnings.\n", len(validation.Warnings))
	return nil
}
