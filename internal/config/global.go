// internal/config/global.go
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/open-edge-platform/trunk-libdeps/internal/config/validate"
	"github.com/open-edge-platform/trunk-libdeps/internal/utils/logger"
	"github.com/open-edge-platform/trunk-libdeps/internal/utils/security"
	"gopkg.in/yaml.v3"
)

const (
	DefaultRegistryURL = "https://registry.pgtrunk.io/api/v1/trunk-projects"
	DefaultMirrorURL   = "http://archive.ubuntu.com/ubuntu"
	DefaultInstallURL  = "https://cdb-plat-use1-prod-pgtrunkio.s3.us-east-1.amazonaws.com/dependencies"
)

// GlobalConfig holds tool-level configuration shared by every subcommand.
type GlobalConfig struct {
	RegistryURL    string `yaml:"registry_url" json:"registry_url"`                         // Catalog endpoint returning the JSON package list
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`                   // Bound applied to each network fetch
	SupplierTable  string `yaml:"supplier_table,omitempty" json:"supplier_table,omitempty"` // Optional library->package JSON table replacing the built-in one

	Output    OutputConfig    `yaml:"output" json:"output"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
	Installer InstallerConfig `yaml:"installer" json:"installer"`
	Contents  ContentsConfig  `yaml:"contents" json:"contents"`
}

// OutputConfig controls how the dependency report is emitted.
type OutputConfig struct {
	Format   string `yaml:"format" json:"format"`                         // text, yaml or json
	File     string `yaml:"file,omitempty" json:"file,omitempty"`         // Empty writes to stdout
	Detailed bool   `yaml:"detailed,omitempty" json:"detailed,omitempty"` // List every library and its supplier
}

// LoggingConfig controls basic logging behavior.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file,omitempty" json:"file,omitempty"`
}

// InstallerConfig locates the dependency bundles and where their contents land.
type InstallerConfig struct {
	BaseURL   string `yaml:"base_url" json:"base_url"`
	LibDir    string `yaml:"lib_dir" json:"lib_dir"`
	ConfigDir string `yaml:"config_dir" json:"config_dir"`
	LSBFile   string `yaml:"lsb_file" json:"lsb_file"`
	PublicKey string `yaml:"public_key,omitempty" json:"public_key,omitempty"` // Armored key that must sign the digests file when set
}

// ContentsConfig drives supplier-table generation from distribution Contents indexes.
type ContentsConfig struct {
	MirrorURL string   `yaml:"mirror_url" json:"mirror_url"`
	Dists     []string `yaml:"dists" json:"dists"`
	Arch      string   `yaml:"arch" json:"arch"`
	OutDir    string   `yaml:"out_dir" json:"out_dir"`
}

var (
	globalInstance *GlobalConfig
	globalMutex    sync.RWMutex
)

// SetGlobal replaces the process-wide configuration.
func SetGlobal(cfg *GlobalConfig) {
	globalMutex.Lock()
	defer globalMutex.Unlock()
	globalInstance = cfg
}

// Global returns the process-wide configuration, defaulting it on first use.
func Global() *GlobalConfig {
	globalMutex.RLock()
	cfg := globalInstance
	globalMutex.RUnlock()
	if cfg != nil {
		return cfg
	}

	globalMutex.Lock()
	defer globalMutex.Unlock()
	if globalInstance == nil {
		globalInstance = DefaultGlobalConfig()
	}
	return globalInstance
}

func DefaultGlobalConfig() *GlobalConfig {
	return &GlobalConfig{
		RegistryURL:    DefaultRegistryURL,
		TimeoutSeconds: 30,
		Output: OutputConfig{
			Format: "text",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Installer: InstallerConfig{
			BaseURL:   DefaultInstallURL,
			LibDir:    "/var/lib/postgresql/data/lib",
			ConfigDir: "/var/lib/postgresql/data/tembox",
			LSBFile:   "/etc/lsb-release",
		},
		Contents: ContentsConfig{
			MirrorURL: DefaultMirrorURL,
			Dists:     []string{"focal", "jammy"},
			Arch:      "amd64",
			OutDir:    ".",
		},
	}
}

// LoadGlobalConfig overlays the YAML file at configPath on the defaults. A
// missing or unreadable path yields the defaults.
func LoadGlobalConfig(configPath string) (*GlobalConfig, error) {
	log := logger.Logger()
	cfg := DefaultGlobalConfig()
	if configPath == "" {
		return cfg, nil
	}

	if _, err := os.Stat(configPath); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		if errors.Is(err, os.ErrPermission) {
			log.Warnf("config file %s is not accessible (%v); using defaults", configPath, err)
			return cfg, nil
		}
		return nil, fmt.Errorf("accessing config file %s: %w", configPath, err)
	}

	ext := strings.ToLower(filepath.Ext(configPath))
	if ext != ".yml" && ext != ".yaml" {
		return nil, fmt.Errorf("unsupported config file format: %s (supported: .yaml, .yml)", ext)
	}

	data, err := security.SafeReadFile(configPath, security.RejectSymlinks)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", configPath, err)
	}

	if err := validate.ValidateConfigYAML(data); err != nil {
		log.Errorf("schema validation failed for %s: %v", configPath, err)
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing YAML config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks cross-field constraints the schema cannot express.
func (gc *GlobalConfig) Validate() error {
	if strings.TrimSpace(gc.RegistryURL) == "" {
		return fmt.Errorf("registry_url cannot be empty")
	}
	if gc.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout_seconds must be greater than 0, got %d", gc.TimeoutSeconds)
	}

	validFormats := []string{"text", "yaml", "json"}
	if !slices.Contains(validFormats, gc.Output.Format) {
		return fmt.Errorf("invalid output format %q, must be one of: %s",
			gc.Output.Format, strings.Join(validFormats, ", "))
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLevels, gc.Logging.Level) {
		return fmt.Errorf("invalid log level %q, must be one of: %s",
			gc.Logging.Level, strings.Join(validLevels, ", "))
	}

	if err := security.ValidateStructStrings(gc, security.DefaultLimits()); err != nil {
		return err
	}

	gc.Logging.File = strings.TrimSpace(gc.Logging.File)
	gc.Output.File = strings.TrimSpace(gc.Output.File)
	gc.SupplierTable = strings.TrimSpace(gc.SupplierTable)
	return nil
}

// SaveGlobalConfigWithComments writes gc as commented YAML. Used by `config init`.
func (gc *GlobalConfig) SaveGlobalConfigWithComments(configPath string) error {
	if configPath == "" {
		return fmt.Errorf("config path is empty")
	}

	if dir := filepath.Dir(configPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}

	jsonData, err := json.Marshal(gc)
	if err != nil {
		return fmt.Errorf("converting config to JSON for validation: %w", err)
	}
	if err := validate.ValidateConfigJSON(jsonData); err != nil {
		return fmt.Errorf("config validation failed before save: %w", err)
	}

	if err := security.SafeWriteFile(configPath, []byte(gc.renderCommentedYAML()), 0o600, security.RejectSymlinks); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

func (gc *GlobalConfig) renderCommentedYAML() string {
	var b strings.Builder

	b.WriteString("# trunk-libdeps - Global Configuration\n\n")

	fmt.Fprintf(&b, "registry_url: %q\n", gc.RegistryURL)
	b.WriteString("# Catalog endpoint listing every package and its download links\n\n")

	fmt.Fprintf(&b, "timeout_seconds: %d\n", gc.TimeoutSeconds)
	b.WriteString("# Upper bound for each catalog fetch and archive download\n\n")

	if gc.SupplierTable != "" {
		fmt.Fprintf(&b, "supplier_table: %q\n", gc.SupplierTable)
	} else {
		b.WriteString("# supplier_table: \"library_mapping_jammy.json\"\n")
	}
	b.WriteString("# JSON library->package table produced by `generate-table`; the built-in table is used when unset\n\n")

	b.WriteString("output:\n")
	fmt.Fprintf(&b, "  format: %q\n", gc.Output.Format)
	b.WriteString("  # text (one `package: [suppliers]` line each), yaml or json\n")
	if gc.Output.File != "" {
		fmt.Fprintf(&b, "  file: %q\n", gc.Output.File)
	}
	fmt.Fprintf(&b, "  detailed: %t\n", gc.Output.Detailed)
	b.WriteString("  # List every shared library with the package that supplies it\n\n")

	b.WriteString("logging:\n")
	fmt.Fprintf(&b, "  level: %q\n", gc.Logging.Level)
	b.WriteString("  # debug, info, warn or error\n")
	if gc.Logging.File != "" {
		fmt.Fprintf(&b, "  file: %q\n", gc.Logging.File)
	}
	b.WriteString("\n")

	b.WriteString("installer:\n")
	fmt.Fprintf(&b, "  base_url: %q\n", gc.Installer.BaseURL)
	fmt.Fprintf(&b, "  lib_dir: %q\n", gc.Installer.LibDir)
	fmt.Fprintf(&b, "  config_dir: %q\n", gc.Installer.ConfigDir)
	fmt.Fprintf(&b, "  lsb_file: %q\n", gc.Installer.LSBFile)
	if gc.Installer.PublicKey != "" {
		fmt.Fprintf(&b, "  public_key: %q\n", gc.Installer.PublicKey)
	}
	b.WriteString("  # Set public_key to require an armored signature over each bundle's digests file\n\n")

	b.WriteString("contents:\n")
	fmt.Fprintf(&b, "  mirror_url: %q\n", gc.Contents.MirrorURL)
	b.WriteString("  dists:\n")
	for _, d := range gc.Contents.Dists {
		fmt.Fprintf(&b, "    - %q\n", d)
	}
	fmt.Fprintf(&b, "  arch: %q\n", gc.Contents.Arch)
	fmt.Fprintf(&b, "  out_dir: %q\n", gc.Contents.OutDir)

	return b.String()
}

// GetConfigPaths returns the standard configuration file locations in search order.
func GetConfigPaths() []string {
	paths := []string{
		"trunk-libdeps.yml",
		".trunk-libdeps.yml",
		"trunk-libdeps.yaml",
		".trunk-libdeps.yaml",
	}
	if home, _ := os.UserHomeDir(); home != "" {
		paths = append(paths,
			filepath.Join(home, ".trunk-libdeps", "config.yml"),
			filepath.Join(home, ".config", "trunk-libdeps", "config.yml"),
		)
	}
	return append(paths, "/etc/trunk-libdeps/config.yml")
}

// FindConfigFile returns the first existing standard config path, or "".
func FindConfigFile() string {
	for _, path := range GetConfigPaths() {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func Timeout() time.Duration {
	return time.Duration(Global().TimeoutSeconds) * time.Second
}

func RegistryURL() string {
	return Global().RegistryURL
}

func LogLevel() string {
	return Global().Logging.Level
}
