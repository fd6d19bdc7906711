package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/open-edge-platform/trunk-libdeps/internal/config"
	"github.com/open-edge-platform/trunk-libdeps/internal/fixture"
)

// execute runs the root command with args against a config path that does
// not exist, so every test starts from the defaults.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() {
		if loggerCleanup != nil {
			loggerCleanup()
			loggerCleanup = nil
		}
		config.SetGlobal(nil)
	})

	root := createRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "absent.yml")}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestRootCommandSetup(t *testing.T) {
	root := createRootCommand()

	if root.Use != "trunk-libdeps" {
		t.Errorf("expected Use to be 'trunk-libdeps', got %q", root.Use)
	}
	for _, flag := range []string{"config", "log-level", "log-file"} {
		if root.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("expected persistent flag --%s", flag)
		}
	}

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	sort.Strings(names)
	want := []string{"analyze", "config", "generate-table", "install", "install-completion", "version"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("subcommands mismatch (-want +got):\n%s", diff)
	}
}

func TestInitConfig(t *testing.T) {
	origConfigFile, origLogLevel, origLogFile := configFile, logLevel, logFile
	defer func() {
		configFile, logLevel, logFile = origConfigFile, origLogLevel, origLogFile
		if loggerCleanup != nil {
			loggerCleanup()
			loggerCleanup = nil
		}
		config.SetGlobal(nil)
	}()

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "trunk-libdeps.yml")
	content := "timeout_seconds: 9\nlogging:\n  level: warn\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Run("FileValues", func(t *testing.T) {
		configFile, logLevel, logFile = path, "", ""
		if err := initConfig(); err != nil {
			t.Fatalf("initConfig: %v", err)
		}
		cfg := config.Global()
		if cfg.TimeoutSeconds != 9 || cfg.Logging.Level != "warn" {
			t.Errorf("config not loaded from file: timeout=%d level=%q", cfg.TimeoutSeconds, cfg.Logging.Level)
		}
		if actualConfigFile != path {
			t.Errorf("actualConfigFile = %q, want %q", actualConfigFile, path)
		}
	})

	t.Run("FlagOverrides", func(t *testing.T) {
		logPath := filepath.Join(tmpDir, "logs", "run.log")
		configFile, logLevel, logFile = path, "debug", logPath
		if err := initConfig(); err != nil {
			t.Fatalf("initConfig: %v", err)
		}
		cfg := config.Global()
		if cfg.Logging.Level != "debug" {
			t.Errorf("expected log level override, got %q", cfg.Logging.Level)
		}
		if cfg.Logging.File != logPath {
			t.Errorf("expected log file override, got %q", cfg.Logging.File)
		}
		if _, err := os.Stat(logPath); err != nil {
			t.Errorf("expected log file to be created: %v", err)
		}
	})

	t.Run("InvalidLevel", func(t *testing.T) {
		configFile, logLevel, logFile = path, "verbose", ""
		if err := initConfig(); err == nil {
			t.Fatal("expected invalid log level to be rejected")
		}
	})

	t.Run("InvalidFile", func(t *testing.T) {
		bad := filepath.Join(tmpDir, "bad.yml")
		if err := os.WriteFile(bad, []byte("output:\n  format: xml\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		configFile, logLevel, logFile = bad, "", ""
		if err := initConfig(); err == nil {
			t.Fatal("expected schema violation to be reported")
		}
	})
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	for _, want := range []string{"trunk-libdeps v", "Build Date:", "Commit:", "Organization:"} {
		if !strings.Contains(out, want) {
			t.Errorf("version output missing %q:\n%s", want, out)
		}
	}
}

func TestConfigShow(t *testing.T) {
	out, err := execute(t, "--log-level", "error", "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if !strings.Contains(out, "registry_url: "+config.DefaultRegistryURL) {
		t.Errorf("expected default registry in output:\n%s", out)
	}
	if !strings.Contains(out, "level: error") {
		t.Errorf("expected flag override in output:\n%s", out)
	}
}

func TestRejectsControlCharacters(t *testing.T) {
	if _, err := execute(t, "analyze", "--registry", "http://example.com/\x07"); err == nil {
		t.Fatal("expected control characters in a flag to be rejected")
	}
}

// registry serves a catalog at /api and package archives under /dl/.
type registry struct {
	srv      *httptest.Server
	archives map[string][]byte
	names    []string
	status   int
}

func newRegistry(t *testing.T) *registry {
	t.Helper()
	r := &registry{archives: map[string][]byte{}}
	r.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path == "/api" {
			if r.status != 0 {
				http.Error(w, "unavailable", r.status)
				return
			}
			var pkgs []map[string]any
			for _, name := range r.names {
				pkgs = append(pkgs, map[string]any{
					"name":    name,
					"version": "1.0.0",
					"downloads": []map[string]any{
						{"link": fmt.Sprintf("%s/dl/%s.tar.gz", r.srv.URL, name), "pg_version": 15, "platform": "linux/amd64"},
					},
				})
			}
			_ = json.NewEncoder(w).Encode(pkgs)
			return
		}
		data, ok := r.archives[strings.TrimSuffix(strings.TrimPrefix(req.URL.Path, "/dl/"), ".tar.gz")]
		if !ok {
			http.NotFound(w, req)
			return
		}
		_, _ = w.Write(data)
	}))
	t.Cleanup(r.srv.Close)
	return r
}

func (r *registry) add(name string, archive []byte) {
	if archive != nil {
		r.archives[name] = archive
	}
	r.names = append(r.names, name)
}

func sampleRegistry(t *testing.T) *registry {
	t.Helper()
	reg := newRegistry(t)
	reg.add("postgis", fixture.Package(t, map[string][]string{
		"lib/postgis-3.so": {"libc.so.6", "libgeos_c.so.1", "libm.so.6"},
		"lib/rtpostgis.so": {"libssl.so.3"},
	}))
	reg.add("pg_plain", fixture.Package(t, map[string][]string{
		"lib/pg_plain.so": {"ld-linux-x86-64.so.2"},
	}))
	reg.add("vanished", nil)
	return reg
}

func TestAnalyzeText(t *testing.T) {
	reg := sampleRegistry(t)

	out, err := execute(t, "analyze", "--registry", reg.srv.URL+"/api")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	want := "postgis: [libgeos-c1v5, libssl3]\n"
	if out != want {
		t.Errorf("report = %q, want %q", out, want)
	}
}

func TestAnalyzeJSONWithTable(t *testing.T) {
	reg := sampleRegistry(t)
	table := filepath.Join(t.TempDir(), "library_mapping_jammy.json")
	if err := os.WriteFile(table, []byte(`{"libssl.so.3": "openssl", "libc.so.6": "libc6"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "analyze", "--registry", reg.srv.URL+"/api", "--table", table, "--format", "json", "--timeout", "5")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	var doc struct {
		ReportType string `json:"report_type"`
		RunID      string `json:"run_id"`
		Packages   []struct {
			Package   string   `json:"package"`
			Suppliers []string `json:"suppliers"`
		} `json:"packages"`
	}
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("decoding report: %v\n%s", err, out)
	}
	if doc.ReportType != "library_dependencies_report" || doc.RunID == "" {
		t.Errorf("unexpected header: type=%q run_id=%q", doc.ReportType, doc.RunID)
	}
	if len(doc.Packages) != 1 || doc.Packages[0].Package != "postgis" {
		t.Fatalf("unexpected packages: %+v", doc.Packages)
	}
	// libgeos is unknown to the loaded table.
	if diff := cmp.Diff([]string{"(unknown)", "openssl"}, doc.Packages[0].Suppliers); diff != "" {
		t.Errorf("suppliers mismatch (-want +got):\n%s", diff)
	}
}

func TestAnalyzeOutputFileAndDetailed(t *testing.T) {
	reg := sampleRegistry(t)
	path := filepath.Join(t.TempDir(), "report.yaml")

	out, err := execute(t, "analyze", "--registry", reg.srv.URL+"/api", "--format", "yaml", "--output", path, "--detailed")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if !strings.Contains(out, "pg_plain:\n\tlibc.so.6 met by libc6\n") {
		t.Errorf("detailed listing missing aliased loader:\n%s", out)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "report_type: library_dependencies_report") ||
		!strings.Contains(string(data), "- libgeos-c1v5") {
		t.Errorf("unexpected report file:\n%s", data)
	}
}

func TestAnalyzeErrors(t *testing.T) {
	reg := newRegistry(t)
	reg.status = http.StatusServiceUnavailable

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"catalog unavailable", []string{"--registry", reg.srv.URL + "/api"}, "failed to fetch trunk projects"},
		{"bad format", []string{"--registry", reg.srv.URL + "/api", "--format", "csv"}, "invalid format"},
		{"bad timeout", []string{"--registry", reg.srv.URL + "/api", "--timeout", "0"}, "--timeout"},
		{"missing table", []string{"--registry", reg.srv.URL + "/api", "--table", filepath.Join(t.TempDir(), "none.json")}, "none.json"},
		{"unexpected arg", []string{"extra"}, "unknown command"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, append([]string{"analyze"}, tt.args...)...)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestGenerateTable(t *testing.T) {
	index := "FILE LOCATION\n" +
		"usr/lib/x86_64-linux-gnu/libssl.so.3    libs/libssl3\n" +
		"usr/lib/x86_64-linux-gnu/libssl.so.3    universe/libs/libssl3-compat\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ubuntu/dists/noble-updates/Contents-arm64.gz" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(fixture.Gzip(t, []byte(index)))
	}))
	defer srv.Close()

	outDir := t.TempDir()
	out, err := execute(t, "generate-table", "--mirror", srv.URL+"/ubuntu", "--arch", "arm64", "--out-dir", outDir, "noble")
	if err != nil {
		t.Fatalf("generate-table: %v", err)
	}
	path := filepath.Join(outDir, "library_mapping_noble.json")
	if strings.TrimSpace(out) != path {
		t.Errorf("output = %q, want %q", out, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var table map[string]string
	if err := json.Unmarshal(data, &table); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(map[string]string{"libssl.so.3": "libssl3"}, table); diff != "" {
		t.Errorf("table mismatch (-want +got):\n%s", diff)
	}

	if _, err := execute(t, "generate-table", "--mirror", srv.URL+"/ubuntu", "--out-dir", outDir, "jammy"); err == nil {
		t.Error("expected missing index to fail")
	}
}
