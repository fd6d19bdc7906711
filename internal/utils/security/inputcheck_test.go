package security

import (
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func TestValidateString(t *testing.T) {
	lim := DefaultLimits()
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{"empty", "", ""},
		{"plain", "pgvector", ""},
		{"newline allowed", "a\nb", ""},
		{"nul byte", "a\x00b", "NUL"},
		{"control rune", "a\x07b", "non-printable"},
		{"invalid utf8", string([]byte{0xff, 0xfe}), "invalid UTF-8"},
		{"too long", strings.Repeat("x", lim.MaxString+1), "too long"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateString("field", tt.input, lim)
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

func TestValidateStructStrings(t *testing.T) {
	type inner struct {
		LibDir string
		Dists  []string
	}
	type outer struct {
		Name  string
		Inner *inner
		Extra map[string]string
	}

	ok := outer{Name: "ok", Inner: &inner{LibDir: "/var/lib", Dists: []string{"jammy"}}, Extra: map[string]string{"k": "v"}}
	if err := ValidateStructStrings(&ok, DefaultLimits()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	bad := outer{Name: "ok", Inner: &inner{Dists: []string{"jam\x00my"}}}
	err := ValidateStructStrings(&bad, DefaultLimits())
	if err == nil || !strings.Contains(err.Error(), "config.Inner.Dists[0]") {
		t.Errorf("expected error naming the field path, got %v", err)
	}
}

func TestAttachRecursiveRejectsBadFlag(t *testing.T) {
	var out string
	root := &cobra.Command{Use: "root"}
	child := &cobra.Command{
		Use:  "analyze",
		RunE: func(cmd *cobra.Command, args []string) error { return nil },
	}
	child.Flags().StringVar(&out, "output-file", "", "")
	root.AddCommand(child)
	AttachRecursive(root, DefaultLimits())

	root.SetArgs([]string{"analyze", "--output-file", "bad\x00path"})
	root.SilenceUsage = true
	root.SilenceErrors = true
	if err := root.Execute(); err == nil {
		t.Fatal("expected validation error for NUL in flag value")
	}

	root.SetArgs([]string{"analyze", "--output-file", "report.txt"})
	if err := root.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
