package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/open-edge-platform/trunk-libdeps/internal/utils/security"
	"github.com/spf13/cobra"
)

// completionScopeEnv set to "system" installs the bash script system-wide when writable.
const completionScopeEnv = "TRUNK_LIBDEPS_COMPLETION_SCOPE"

// createInstallCompletionCommand creates the install-completion subcommand
func createInstallCompletionCommand() *cobra.Command {
	installCompletionCmd := &cobra.Command{
		Use:   "install-completion",
		Short: "Install shell completion script",
		Long: `Install shell completion script for Bash, Zsh, Fish, or PowerShell.
Automatically detects your shell and installs the appropriate completion script.`,
		Args: cobra.NoArgs,
		RunE: executeInstallCompletion,
	}

	installCompletionCmd.Flags().String("shell", "", "Specify shell type (bash, zsh, fish, powershell)")
	installCompletionCmd.Flags().Bool("force", false, "Force overwrite existing completion files")

	return installCompletionCmd
}

// detectShell guesses the user's shell from the environment.
func detectShell() (string, error) {
	shellEnv := os.Getenv("SHELL")
	if shellEnv == "" {
		if os.Getenv("PSModulePath") != "" {
			return "powershell", nil
		}
		return "", fmt.Errorf("could not detect shell. Please specify with --shell flag")
	}
	for _, sh := range []string{"bash", "zsh", "fish"} {
		if strings.Contains(filepath.Base(shellEnv), sh) {
			return sh, nil
		}
	}
	return "", fmt.Errorf("unsupported shell: %s. Please specify shell with --shell flag", shellEnv)
}

// completionTarget returns where the script for shellType belongs under home.
func completionTarget(shellType, home string) (string, error) {
	name := "trunk-libdeps"
	switch shellType {
	case "bash":
		dir := filepath.Join(home, ".bash_completion.d")
		if os.Getenv(completionScopeEnv) == "system" && dirWritable("/etc/bash_completion.d") {
			dir = "/etc/bash_completion.d"
		}
		return filepath.Join(dir, name+".bash"), nil
	case "zsh":
		return filepath.Join(home, ".zsh", "completion", "_"+name), nil
	case "fish":
		return filepath.Join(home, ".config", "fish", "completions", name+".fish"), nil
	case "powershell":
		return filepath.Join(home, "Documents", "WindowsPowerShell", name+"-completion.ps1"), nil
	default:
		return "", fmt.Errorf("unsupported shell type: %s", shellType)
	}
}

func generateCompletion(root *cobra.Command, shellType string) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch shellType {
	case "bash":
		err = root.GenBashCompletionV2(&buf, true)
	case "zsh":
		err = root.GenZshCompletion(&buf)
	case "fish":
		err = root.GenFishCompletion(&buf, true)
	case "powershell":
		err = root.GenPowerShellCompletionWithDesc(&buf)
	default:
		return nil, fmt.Errorf("unsupported shell type: %s", shellType)
	}
	if err != nil {
		return nil, fmt.Errorf("error generating %s completion: %w", shellType, err)
	}
	return buf.Bytes(), nil
}

// executeInstallCompletion handles installation of shell completion scripts
func executeInstallCompletion(cmd *cobra.Command, args []string) error {
	shellType, err := cmd.Flags().GetString("shell")
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if shellType == "" {
		if shellType, err = detectShell(); err != nil {
			return err
		}
	}

	script, err := generateCompletion(cmd.Root(), shellType)
	if err != nil {
		return err
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("could not determine home directory: %v", err)
	}
	targetPath, err := completionTarget(shellType, homeDir)
	if err != nil {
		return err
	}

	if _, err := os.Stat(targetPath); err == nil && !force {
		return fmt.Errorf("completion file already exists at %s. Use --force to overwrite", targetPath)
	}
	if err := os.MkdirAll(filepath.Dir(targetPath), 0o700); err != nil {
		return fmt.Errorf("could not create directory %s: %v", filepath.Dir(targetPath), err)
	}
	if err := security.SafeWriteFile(targetPath, script, 0o600, security.RejectSymlinks); err != nil {
		return fmt.Errorf("could not write completion file: %v", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Shell completion installed for %s at %s\n", shellType, targetPath)
	return nil
}

// dirWritable checks if the specified directory is writable by attempting to create and remove a temporary file.
func dirWritable(p string) bool {
	tf, err := os.CreateTemp(p, ".probe-*")
	if err != nil {
		return false
	}
	tf.Close()
	_ = os.Remove(tf.Name())
	return true
}
