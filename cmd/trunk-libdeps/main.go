package main

import (
	"fmt"
	"os"

	"github.com/open-edge-platform/trunk-libdeps/internal/config"
	"github.com/open-edge-platform/trunk-libdeps/internal/utils/logger"
	"github.com/open-edge-platform/trunk-libdeps/internal/utils/security"
	"github.com/spf13/cobra"
)

// Command-line flags that can override config file settings
var (
	configFile string = "" // Path to config file
	logLevel   string = "" // Empty means use config file value
	logFile    string = "" // Empty means use config file value

	actualConfigFile string
	loggerCleanup    func()
)

func main() {
	rootCmd := createRootCommand()
	err := rootCmd.Execute()
	if loggerCleanup != nil {
		loggerCleanup()
	}
	if err != nil {
		os.Exit(1)
	}
}

// initConfig loads the configuration file, applies flag overrides and
// installs the global config and logger.
func initConfig() error {
	actualConfigFile = configFile
	if actualConfigFile == "" {
		actualConfigFile = config.FindConfigFile()
	}

	globalConfig, err := config.LoadGlobalConfig(actualConfigFile)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if logLevel != "" {
		globalConfig.Logging.Level = logLevel
	}
	if logFile != "" {
		globalConfig.Logging.File = logFile
	}
	if err := globalConfig.Validate(); err != nil {
		return err
	}
	config.SetGlobal(globalConfig)

	if loggerCleanup != nil {
		loggerCleanup()
		loggerCleanup = nil
	}
	log, cleanup, err := logger.InitWithConfig(logger.Config{
		Level:    globalConfig.Logging.Level,
		FilePath: globalConfig.Logging.File,
	})
	if err != nil {
		return err
	}
	loggerCleanup = cleanup

	if actualConfigFile != "" {
		log.Infof("Using configuration from: %s", actualConfigFile)
	}
	log.Debugf("Config: registry=%s, timeout=%s, supplier_table=%q, format=%s",
		globalConfig.RegistryURL, config.Timeout(), globalConfig.SupplierTable, globalConfig.Output.Format)
	return nil
}

// createRootCommand creates and configures the root cobra command with all subcommands
func createRootCommand() *cobra.Command {
	// Subcommands carry their own input checks; keep the root hook running too.
	cobra.EnableTraverseRunHooks = true

	rootCmd := &cobra.Command{
		Use:   "trunk-libdeps",
		Short: "Find the system packages Trunk extensions need at runtime",
		Long: `trunk-libdeps downloads every package published on the Trunk registry,
reads the shared-library requirements of the objects it ships and reports
which system packages must be installed for each one to load.

Use 'trunk-libdeps --help' to see available commands.
Use 'trunk-libdeps <command> --help' for more information about a command.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
	}

	// Add global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "",
		"Also write logs to this file")

	// Add all subcommands
	rootCmd.AddCommand(createAnalyzeCommand())
	rootCmd.AddCommand(createGenerateTableCommand())
	rootCmd.AddCommand(createInstallCommand())
	rootCmd.AddCommand(createVersionCommand())
	rootCmd.AddCommand(createConfigCommand())
	rootCmd.AddCommand(createInstallCompletionCommand())

	security.AttachRecursive(rootCmd, security.DefaultLimits())
	return rootCmd
}
