// Package report renders analyzed packages as the list of non-libc packages
// each one needs.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/open-edge-platform/trunk-libdeps/internal/deps"
	"github.com/open-edge-platform/trunk-libdeps/internal/utils/security"
	"gopkg.in/yaml.v3"
)

const reportType = "library_dependencies_report"

// Formats lists the accepted output formats.
var Formats = []string{"text", "yaml", "json"}

// Entry is one reported package and the suppliers it needs beyond libc.
type Entry struct {
	Package   string   `yaml:"package" json:"package"`
	Suppliers []string `yaml:"suppliers" json:"suppliers"`
}

type document struct {
	ReportType string  `yaml:"report_type" json:"report_type"`
	RunID      string  `yaml:"run_id,omitempty" json:"run_id,omitempty"`
	Packages   []Entry `yaml:"packages" json:"packages"`
}

// Build drops libc-supplied dependencies and packages left with none. One
// supplier description is kept per remaining library, sorted; entries are
// sorted by package name.
func Build(packages map[string]*deps.Set) []Entry {
	entries := make([]Entry, 0, len(packages))
	for name, set := range packages {
		var suppliers []string
		for _, lib := range set.Libraries() {
			sup, _ := set.Supplier(lib)
			if sup.IsLibc() {
				continue
			}
			suppliers = append(suppliers, sup.String())
		}
		if len(suppliers) == 0 {
			continue
		}
		slices.Sort(suppliers)
		entries = append(entries, Entry{Package: name, Suppliers: suppliers})
	}
	slices.SortFunc(entries, func(a, b Entry) int { return strings.Compare(a.Package, b.Package) })
	return entries
}

// Write renders entries in format ("text", "yaml" or "json").
func Write(w io.Writer, format string, entries []Entry, runID string) error {
	switch format {
	case "", "text":
		for _, e := range entries {
			if _, err := fmt.Fprintf(w, "%s: [%s]\n", e.Package, strings.Join(e.Suppliers, ", ")); err != nil {
				return fmt.Errorf("writing report: %w", err)
			}
		}
		return nil
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(newDocument(entries, runID)); err != nil {
			return fmt.Errorf("encoding yaml report: %w", err)
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(newDocument(entries, runID)); err != nil {
			return fmt.Errorf("encoding json report: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported report format %q, must be one of: %s", format, strings.Join(Formats, ", "))
	}
}

// WriteDetailed lists every library of every package with its supplier,
// libc included.
func WriteDetailed(w io.Writer, packages map[string]*deps.Set) error {
	names := make([]string, 0, len(packages))
	for name := range packages {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if _, err := fmt.Fprintf(w, "%s:\n%s", name, packages[name]); err != nil {
			return fmt.Errorf("writing detailed report: %w", err)
		}
	}
	return nil
}

// WriteFile renders the report into path, refusing to follow a symlink there.
func WriteFile(path, format string, entries []Entry, runID string) error {
	var buf bytes.Buffer
	if err := Write(&buf, format, entries, runID); err != nil {
		return err
	}
	if err := security.SafeWriteFile(path, buf.Bytes(), 0o644, security.RejectSymlinks); err != nil {
		return fmt.Errorf("writing report to %s: %w", path, err)
	}
	return nil
}

func newDocument(entries []Entry, runID string) document {
	if entries == nil {
		entries = []Entry{}
	}
	return document{ReportType: reportType, RunID: runID, Packages: entries}
}
