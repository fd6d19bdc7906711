package main

import (
	"fmt"

	"github.com/open-edge-platform/trunk-libdeps/internal/config"
	"github.com/open-edge-platform/trunk-libdeps/internal/installer"
	"github.com/spf13/cobra"
)

// Install command flags
var (
	installBaseURL   string = ""
	installLibDir    string = ""
	installConfigDir string = ""
	installPublicKey string = ""
	installLSBFile   string = ""
	installArch      string = ""
)

// createInstallCommand creates the install subcommand
func createInstallCommand() *cobra.Command {
	installCmd := &cobra.Command{
		Use:   "install PACKAGE...",
		Short: "Install prebuilt dependency bundles for packages",
		Long: `Install downloads the dependency bundle of each package for this host's
distribution codename and architecture, checks every file against the
bundle's SHA-512 digests and copies its shared libraries into the library
directory.

A failing package does not stop the others; the command fails if any did.`,
		Args: cobra.MinimumNArgs(1),
		RunE: executeInstall,
	}

	installCmd.Flags().StringVar(&installBaseURL, "base-url", "",
		"Bundle base URL (overrides config)")
	installCmd.Flags().StringVar(&installLibDir, "lib-dir", "",
		"Directory libraries are installed into (overrides config)")
	installCmd.Flags().StringVar(&installConfigDir, "config-dir", "",
		"Directory bundle configs are recorded in (overrides config)")
	installCmd.Flags().StringVar(&installPublicKey, "public-key", "",
		"Armored public key that must sign each digests file (overrides config)")
	installCmd.Flags().StringVar(&installLSBFile, "lsb-file", "",
		"File the distribution codename is read from (overrides config)")
	installCmd.Flags().StringVar(&installArch, "arch", "",
		"Bundle architecture (default: derived from the host)")

	return installCmd
}

// executeInstall handles the install command logic
func executeInstall(cmd *cobra.Command, args []string) error {
	cfg := config.Global().Installer

	if cmd.Flags().Changed("base-url") {
		cfg.BaseURL = installBaseURL
	}
	if cmd.Flags().Changed("lib-dir") {
		cfg.LibDir = installLibDir
	}
	if cmd.Flags().Changed("config-dir") {
		cfg.ConfigDir = installConfigDir
	}
	if cmd.Flags().Changed("public-key") {
		cfg.PublicKey = installPublicKey
	}
	if cmd.Flags().Changed("lsb-file") {
		cfg.LSBFile = installLSBFile
	}

	inst, err := installer.New(installer.Options{
		BaseURL:   cfg.BaseURL,
		LibDir:    cfg.LibDir,
		ConfigDir: cfg.ConfigDir,
		LSBFile:   cfg.LSBFile,
		PublicKey: cfg.PublicKey,
		Arch:      installArch,
		Timeout:   config.Timeout(),
	})
	if err != nil {
		return fmt.Errorf("preparing installer: %w", err)
	}
	return inst.InstallAll(cmd.Context(), args)
}
