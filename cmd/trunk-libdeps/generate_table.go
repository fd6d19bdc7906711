package main

import (
	"fmt"

	"github.com/open-edge-platform/trunk-libdeps/internal/config"
	"github.com/open-edge-platform/trunk-libdeps/internal/contents"
	"github.com/open-edge-platform/trunk-libdeps/internal/utils/network"
	"github.com/spf13/cobra"
)

// Generate-table command flags
var (
	mirrorURL   string = ""
	contentArch string = ""
	tableOutDir string = ""
)

// createGenerateTableCommand creates the generate-table subcommand
func createGenerateTableCommand() *cobra.Command {
	generateCmd := &cobra.Command{
		Use:   "generate-table [DIST...]",
		Short: "Build library->package tables from Ubuntu Contents indexes",
		Long: `Generate-table downloads the Contents index of each distribution's updates
pocket and writes library_mapping_<dist>.json, mapping every shared library
basename to the package that ships it. The tables can be passed to
'analyze --table'.

Distributions default to contents.dists from the configuration.`,
		RunE: executeGenerateTable,
	}

	generateCmd.Flags().StringVar(&mirrorURL, "mirror", "",
		"Archive mirror URL (overrides config)")
	generateCmd.Flags().StringVar(&contentArch, "arch", "",
		"Contents index architecture (overrides config)")
	generateCmd.Flags().StringVar(&tableOutDir, "out-dir", "",
		"Directory the tables are written to (overrides config)")

	return generateCmd
}

// executeGenerateTable handles the generate-table command logic
func executeGenerateTable(cmd *cobra.Command, args []string) error {
	cfg := config.Global()

	opts := contents.Options{
		MirrorURL: cfg.Contents.MirrorURL,
		Arch:      cfg.Contents.Arch,
		OutDir:    cfg.Contents.OutDir,
	}
	if cmd.Flags().Changed("mirror") {
		opts.MirrorURL = mirrorURL
	}
	if cmd.Flags().Changed("arch") {
		opts.Arch = contentArch
	}
	if cmd.Flags().Changed("out-dir") {
		opts.OutDir = tableOutDir
	}

	dists := args
	if len(dists) == 0 {
		dists = cfg.Contents.Dists
	}

	// Indexes run to tens of megabytes; only cancellation bounds the download.
	paths, err := contents.GenerateAll(cmd.Context(), network.NewSecureHTTPClient(0), opts, dists)
	if err != nil {
		return err
	}
	for _, p := range paths {
		fmt.Fprintln(cmd.OutOrStdout(), p)
	}
	return nil
}
