package security

import (
	"fmt"
	"os"
	"path/filepath"
)

// SymlinkPolicy defines how file helpers treat a path that is a symlink.
type SymlinkPolicy int

const (
	RejectSymlinks SymlinkPolicy = iota
	ResolveSymlinks
	AllowSymlinks
)

// SafeFileInfo describes a path after its symlink policy has been applied.
type SafeFileInfo struct {
	OriginalPath string
	ResolvedPath string
	IsSymlink    bool
	FileInfo     os.FileInfo
}

// CheckSymlink applies policy to path and reports where it effectively points.
func CheckSymlink(path string, policy SymlinkPolicy) (*SafeFileInfo, error) {
	if policy < RejectSymlinks || policy > AllowSymlinks {
		return nil, fmt.Errorf("invalid symlink policy: %d", policy)
	}

	fi, err := os.Lstat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get file info for %s: %w", path, err)
	}

	info := &SafeFileInfo{
		OriginalPath: path,
		ResolvedPath: path,
		IsSymlink:    fi.Mode()&os.ModeSymlink != 0,
		FileInfo:     fi,
	}
	if !info.IsSymlink {
		return info, nil
	}

	switch policy {
	case RejectSymlinks:
		return nil, fmt.Errorf("symlinks are not allowed: %s", path)
	case ResolveSymlinks:
		resolved, err := filepath.EvalSymlinks(path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve symlink %s: %w", path, err)
		}
		target, err := os.Stat(resolved)
		if err != nil {
			return nil, fmt.Errorf("failed to access symlink target %s: %w", resolved, err)
		}
		info.ResolvedPath = resolved
		info.FileInfo = target
	}
	return info, nil
}

// SafeReadFile reads path after applying policy.
func SafeReadFile(path string, policy SymlinkPolicy) ([]byte, error) {
	info, err := CheckSymlink(path, policy)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(info.ResolvedPath)
}

// SafeWriteFile writes data to path after applying policy to an existing file
// and to its parent directory.
func SafeWriteFile(path string, data []byte, perm os.FileMode, policy SymlinkPolicy) error {
	resolved, err := resolveForWrite(path, policy)
	if err != nil {
		return err
	}
	return os.WriteFile(resolved, data, perm)
}

// SafeOpenFile opens path with flag after applying policy. Files that do not
// exist yet only have their parent directory checked.
func SafeOpenFile(path string, flag int, perm os.FileMode, policy SymlinkPolicy) (*os.File, error) {
	resolved, err := resolveForWrite(path, policy)
	if err != nil {
		return nil, err
	}
	return os.OpenFile(resolved, flag, perm)
}

func resolveForWrite(path string, policy SymlinkPolicy) (string, error) {
	if _, err := os.Lstat(path); err == nil {
		info, err := CheckSymlink(path, policy)
		if err != nil {
			return "", fmt.Errorf("existing file symlink check failed: %w", err)
		}
		path = info.ResolvedPath
	}

	dir := filepath.Dir(path)
	if dir == "." || dir == "/" {
		return path, nil
	}
	if _, err := os.Lstat(dir); os.IsNotExist(err) {
		return path, nil
	}
	info, err := CheckSymlink(dir, policy)
	if err != nil {
		return "", fmt.Errorf("parent directory symlink check failed: %w", err)
	}
	if info.ResolvedPath != dir {
		path = filepath.Join(info.ResolvedPath, filepath.Base(path))
	}
	return path, nil
}
