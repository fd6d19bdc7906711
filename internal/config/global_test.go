package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadGlobalConfigDefaults(t *testing.T) {
	for _, path := range []string{"", filepath.Join(t.TempDir(), "missing.yml")} {
		cfg, err := LoadGlobalConfig(path)
		if err != nil {
			t.Fatalf("LoadGlobalConfig(%q): %v", path, err)
		}
		if diff := cmp.Diff(DefaultGlobalConfig(), cfg); diff != "" {
			t.Errorf("defaults mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestLoadGlobalConfigOverlay(t *testing.T) {
	path := writeConfig(t, "trunk-libdeps.yml", `
registry_url: https://registry.example.com/api/v1/trunk-projects
timeout_seconds: 5
supplier_table: "  library_mapping_jammy.json "
output:
  format: json
  detailed: true
logging:
  level: debug
contents:
  dists: [noble]
`)

	cfg, err := LoadGlobalConfig(path)
	if err != nil {
		t.Fatalf("LoadGlobalConfig: %v", err)
	}

	want := DefaultGlobalConfig()
	want.RegistryURL = "https://registry.example.com/api/v1/trunk-projects"
	want.TimeoutSeconds = 5
	want.SupplierTable = "library_mapping_jammy.json"
	want.Output = OutputConfig{Format: "json", Detailed: true}
	want.Logging.Level = "debug"
	want.Contents.Dists = []string{"noble"}

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadGlobalConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{"unsupported extension", "config.toml", "x = 1", "unsupported config file format"},
		{"schema violation", "config.yml", "output:\n  format: xml\n", "schema validation failed"},
		{"unknown key", "config.yml", "workers: 8\n", "schema validation failed"},
		{"control characters", "config.yml", "supplier_table: \"a\\u0007b\"\n", "config validation failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadGlobalConfig(writeConfig(t, tt.file, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadGlobalConfigRejectsSymlink(t *testing.T) {
	target := writeConfig(t, "real.yml", "timeout_seconds: 10\n")
	link := filepath.Join(t.TempDir(), "link.yml")
	if err := os.Symlink(target, link); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadGlobalConfig(link); err == nil {
		t.Fatal("expected symlinked config to be rejected")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*GlobalConfig)
		wantErr string
	}{
		{"defaults", func(*GlobalConfig) {}, ""},
		{"empty registry", func(c *GlobalConfig) { c.RegistryURL = " " }, "registry_url"},
		{"zero timeout", func(c *GlobalConfig) { c.TimeoutSeconds = 0 }, "timeout_seconds"},
		{"bad format", func(c *GlobalConfig) { c.Output.Format = "csv" }, "invalid output format"},
		{"bad level", func(c *GlobalConfig) { c.Logging.Level = "trace" }, "invalid log level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultGlobalConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestSaveGlobalConfigWithCommentsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "trunk-libdeps.yml")
	cfg := DefaultGlobalConfig()
	cfg.Logging.File = "run.log"
	cfg.Installer.PublicKey = "/etc/trunk-libdeps/signing.asc"

	if err := cfg.SaveGlobalConfigWithComments(path); err != nil {
		t.Fatalf("SaveGlobalConfigWithComments: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "# trunk-libdeps") {
		t.Errorf("expected header comment, got %q", string(data)[:40])
	}

	loaded, err := LoadGlobalConfig(path)
	if err != nil {
		t.Fatalf("reloading saved config: %v", err)
	}
	if diff := cmp.Diff(cfg, loaded); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveGlobalConfigWithCommentsEmptyPath(t *testing.T) {
	if err := DefaultGlobalConfig().SaveGlobalConfigWithComments(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestGlobalSingleton(t *testing.T) {
	orig := Global()
	defer SetGlobal(orig)

	cfg := DefaultGlobalConfig()
	cfg.TimeoutSeconds = 7
	SetGlobal(cfg)

	if Global() != cfg {
		t.Fatal("Global did not return the configured instance")
	}
	if Timeout() != 7*time.Second {
		t.Errorf("Timeout() = %v, want 7s", Timeout())
	}
	if RegistryURL() != DefaultRegistryURL {
		t.Errorf("RegistryURL() = %q", RegistryURL())
	}
}
