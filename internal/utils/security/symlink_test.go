package security

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCheckSymlinkPolicies(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target.yml")
	if err := os.WriteFile(target, []byte("workers: 1"), 0o600); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "link.yml")
	if err := os.Symlink(target, link); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name         string
		path         string
		policy       SymlinkPolicy
		wantErr      string
		wantResolved string
	}{
		{"regular file reject", target, RejectSymlinks, "", target},
		{"symlink reject", link, RejectSymlinks, "symlinks are not allowed", ""},
		{"symlink resolve", link, ResolveSymlinks, "", target},
		{"symlink allow", link, AllowSymlinks, "", link},
		{"invalid policy", target, SymlinkPolicy(42), "invalid symlink policy", ""},
		{"missing file", filepath.Join(dir, "missing"), RejectSymlinks, "failed to get file info", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := CheckSymlink(tt.path, tt.policy)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			resolved, _ := filepath.EvalSymlinks(info.ResolvedPath)
			want, _ := filepath.EvalSymlinks(tt.wantResolved)
			if tt.policy == AllowSymlinks {
				resolved, want = info.ResolvedPath, tt.wantResolved
			}
			if resolved != want {
				t.Errorf("ResolvedPath = %q, want %q", info.ResolvedPath, tt.wantResolved)
			}
		})
	}
}

func TestSafeReadFileRejectsSymlink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "cfg")
	if err := os.WriteFile(target, []byte("data"), 0o600); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "cfg.link")
	if err := os.Symlink(target, link); err != nil {
		t.Fatal(err)
	}

	if _, err := SafeReadFile(link, RejectSymlinks); err == nil {
		t.Error("expected symlink to be rejected")
	}
	data, err := SafeReadFile(target, RejectSymlinks)
	if err != nil || string(data) != "data" {
		t.Errorf("SafeReadFile = %q, %v", data, err)
	}
}

func TestSafeWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")

	if err := SafeWriteFile(path, []byte("one"), 0o600, RejectSymlinks); err != nil {
		t.Fatalf("write new file: %v", err)
	}
	if err := SafeWriteFile(path, []byte("two"), 0o600, RejectSymlinks); err != nil {
		t.Fatalf("overwrite file: %v", err)
	}
	got, _ := os.ReadFile(path)
	if string(got) != "two" {
		t.Errorf("content = %q, want two", got)
	}

	link := filepath.Join(dir, "out.link")
	if err := os.Symlink(path, link); err != nil {
		t.Fatal(err)
	}
	if err := SafeWriteFile(link, []byte("three"), 0o600, RejectSymlinks); err == nil {
		t.Error("expected write through symlink to be rejected")
	}
}

func TestSafeOpenFileCreates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.txt")
	f, err := SafeOpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600, RejectSymlinks)
	if err != nil {
		t.Fatalf("SafeOpenFile: %v", err)
	}
	if _, err := f.WriteString("pgvector: [libc6]\n"); err != nil {
		t.Fatal(err)
	}
	f.Close()
	if _, err := os.Stat(path); err != nil {
		t.Errorf("file not created: %v", err)
	}
}
