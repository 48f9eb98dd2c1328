package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/axon-dev/axon/configs"
	"github.com/axon-dev/axon/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage user configuration",
		Long: `Manage the user configuration file.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/axon/config.yaml)
  3. Environment variables (AXON_*, TEI_URL, QDRANT_URL, QDRANT_COLLECTION)`,
		Example: `  # Create user config from template
  axon config init

  # Show effective configuration (merged from all sources)
  axon config show

  # Print user config file path
  axon config path`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the user configuration file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			configPath := config.UserConfigPath()

			if _, err := os.Stat(configPath); err == nil && !force {
				fmt.Fprintf(cmd.OutOrStdout(), "Configuration already exists at %s\n", configPath)
				fmt.Fprintln(cmd.OutOrStdout(), "Use --force to overwrite it with the template.")
				return nil
			}

			if err := os.MkdirAll(config.UserConfigDir(), 0o700); err != nil {
				return fmt.Errorf("failed to create config directory: %w", err)
			}
			if err := os.WriteFile(configPath, []byte(configs.UserConfigTemplate), 0o600); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", configPath)
			fmt.Fprintln(cmd.OutOrStdout(), "Edit it to point at your TEI and Qdrant services, then run 'axon config show' to verify.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration file")

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var cfg *config.Config
			var sourceDesc string

			switch source {
			case "merged":
				loaded, err := loadConfig()
				if err != nil {
					return err
				}
				cfg = loaded
				sourceDesc = "merged (defaults + user + env)"
			case "defaults":
				cfg = config.NewConfig()
				sourceDesc = "defaults (hardcoded)"
			default:
				return fmt.Errorf("invalid source: %s (use: merged, defaults)", source)
			}

			// Secrets stay out of terminal output.
			redacted := *cfg
			if redacted.Crawler.APIKey != "" {
				redacted.Crawler.APIKey = "<redacted>"
			}
			if redacted.Webhook.Secret != "" {
				redacted.Webhook.Secret = "<redacted>"
			}

			data, err := yaml.Marshal(&redacted)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "# source: %s\n", sourceDesc)
			fmt.Fprint(cmd.OutOrStdout(), string(data))
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "merged", "Config source: merged, defaults")

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the user config file path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), config.UserConfigPath())
			return nil
		},
	}
}
