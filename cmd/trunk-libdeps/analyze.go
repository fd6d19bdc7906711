package main

import (
	"fmt"
	"slices"
	"time"

	"github.com/open-edge-platform/trunk-libdeps/internal/analyzer"
	"github.com/open-edge-platform/trunk-libdeps/internal/config"
	"github.com/open-edge-platform/trunk-libdeps/internal/report"
	"github.com/open-edge-platform/trunk-libdeps/internal/supplier"
	"github.com/open-edge-platform/trunk-libdeps/internal/utils/logger"
	"github.com/open-edge-platform/trunk-libdeps/internal/utils/network"
	"github.com/spf13/cobra"
)

// Analyze command flags
var (
	registryURL    string = ""
	supplierTable  string = ""
	outputFormat   string = ""
	outputFile     string = ""
	detailedOutput bool   = false
	showProgress   bool   = false
	timeoutSeconds int    = 0
)

// createAnalyzeCommand creates the analyze subcommand
func createAnalyzeCommand() *cobra.Command {
	analyzeCmd := &cobra.Command{
		Use:   "analyze",
		Short: "Report the system packages every registry package needs",
		Long: `Analyze fetches the registry catalog, downloads every package archive,
extracts the shared libraries its objects link against and prints, for each
package, the system packages supplying them. libc is never reported.

Packages that fail to download or parse are logged and left out; the command
only fails when the catalog itself cannot be fetched.`,
		Args: cobra.NoArgs,
		RunE: executeAnalyze,
	}

	analyzeCmd.Flags().StringVar(&registryURL, "registry", "",
		"Catalog URL (overrides config)")
	analyzeCmd.Flags().StringVar(&supplierTable, "table", "",
		"JSON library->package table replacing the built-in one")
	analyzeCmd.Flags().StringVar(&outputFormat, "format", "",
		"Report format: text, yaml or json")
	analyzeCmd.Flags().StringVar(&outputFile, "output", "",
		"Write the report to this file instead of stdout")
	analyzeCmd.Flags().BoolVar(&detailedOutput, "detailed", false,
		"Also list every library of every package with its supplier")
	analyzeCmd.Flags().BoolVar(&showProgress, "progress", false,
		"Show a progress bar on stderr")
	analyzeCmd.Flags().IntVar(&timeoutSeconds, "timeout", 0,
		"Seconds allowed for each network fetch (overrides config)")

	return analyzeCmd
}

// executeAnalyze handles the analyze command logic
func executeAnalyze(cmd *cobra.Command, args []string) error {
	log := logger.Logger()
	cfg := config.Global()

	registry := cfg.RegistryURL
	if cmd.Flags().Changed("registry") {
		registry = registryURL
	}
	tablePath := cfg.SupplierTable
	if cmd.Flags().Changed("table") {
		tablePath = supplierTable
	}
	format := cfg.Output.Format
	if cmd.Flags().Changed("format") {
		format = outputFormat
	}
	if !slices.Contains(report.Formats, format) {
		return fmt.Errorf("invalid format %q, must be one of: %v", format, report.Formats)
	}
	output := cfg.Output.File
	if cmd.Flags().Changed("output") {
		output = outputFile
	}
	detailed := cfg.Output.Detailed
	if cmd.Flags().Changed("detailed") {
		detailed = detailedOutput
	}
	timeout := config.Timeout()
	if cmd.Flags().Changed("timeout") {
		if timeoutSeconds <= 0 {
			return fmt.Errorf("--timeout must be greater than 0, got %d", timeoutSeconds)
		}
		timeout = time.Duration(timeoutSeconds) * time.Second
	}

	var resolver supplier.Resolver = supplier.Default()
	if tablePath != "" {
		table, err := supplier.LoadTable(tablePath)
		if err != nil {
			return err
		}
		log.Infof("loaded %d suppliers from %s", table.Len(), tablePath)
		resolver = table
	}

	a := analyzer.New(analyzer.Options{
		Client:         network.NewSecureHTTPClient(0),
		Resolver:       resolver,
		Timeout:        timeout,
		Progress:       showProgress,
		ProgressWriter: cmd.ErrOrStderr(),
	})

	start := time.Now()
	rep, err := a.Run(cmd.Context(), registry)
	if err != nil {
		return err
	}
	log.Infof("run %s finished in %s", rep.RunID, time.Since(start).Round(time.Millisecond))

	if detailed {
		if err := report.WriteDetailed(cmd.OutOrStdout(), rep.Packages); err != nil {
			return err
		}
	}

	entries := report.Build(rep.Packages)
	if output != "" {
		if err := report.WriteFile(output, format, entries, rep.RunID); err != nil {
			return err
		}
		log.Infof("report written to %s", output)
		return nil
	}
	return report.Write(cmd.OutOrStdout(), format, entries, rep.RunID)
}
