package main

import (
	"fmt"

	"github.com/open-edge-platform/trunk-libdeps/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// createConfigCommand creates the config subcommand
func createConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage global configuration for trunk-libdeps.

Available commands:
  init    Initialize a new configuration file with default values
  show    Print the effective configuration`,
	}

	configCmd.AddCommand(createConfigInitCommand())
	configCmd.AddCommand(createConfigShowCommand())

	return configCmd
}

// createConfigInitCommand creates the config init subcommand
func createConfigInitCommand() *cobra.Command {
	initCmd := &cobra.Command{
		Use:   "init [config-file]",
		Short: "Initialize a new configuration file",
		Long: `Initialize a new configuration file with default values.

If no path is specified, the config will be created in the current directory as trunk-libdeps.yml

Examples:
  # Create config in current directory
  trunk-libdeps config init

  # Create config at specific location
  trunk-libdeps config init /etc/trunk-libdeps/config.yml`,
		Args: cobra.MaximumNArgs(1),
		RunE: executeConfigInit,
	}

	return initCmd
}

// executeConfigInit handles the config init command logic
func executeConfigInit(cmd *cobra.Command, args []string) error {
	configPath := "trunk-libdeps.yml"
	if len(args) > 0 {
		configPath = args[0]
	}

	defaultConfig := config.DefaultGlobalConfig()
	if err := defaultConfig.SaveGlobalConfigWithComments(configPath); err != nil {
		return fmt.Errorf("failed to save config file: %v", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration file created at: %s\n", configPath)
	fmt.Fprintf(out, "\nDefault configuration settings:\n")
	fmt.Fprintf(out, "  Registry: %s\n", defaultConfig.RegistryURL)
	fmt.Fprintf(out, "  Timeout: %ds\n", defaultConfig.TimeoutSeconds)
	fmt.Fprintf(out, "  Output Format: %s\n", defaultConfig.Output.Format)
	fmt.Fprintf(out, "  Log Level: %s\n", defaultConfig.Logging.Level)
	fmt.Fprintf(out, "  Library Directory: %s\n", defaultConfig.Installer.LibDir)
	fmt.Fprintf(out, "\nEdit the configuration file to customize these settings.\n")

	return nil
}

// createConfigShowCommand creates the config show subcommand
func createConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if actualConfigFile != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "# loaded from %s\n", actualConfigFile)
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(config.Global()); err != nil {
				return fmt.Errorf("encoding configuration: %w", err)
			}
			return enc.Close()
		},
	}
}
