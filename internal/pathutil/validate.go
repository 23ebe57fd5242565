// Package pathutil confines file writes requested over MCP to allowed
// directories.
package pathutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ArchiveDirName is the directory under the clonesim home that receives
// archives exported over MCP.
const ArchiveDirName = "archives"

// RedactPath shortens a path to .../<parent>/<base> for error messages.
// "/home/user/.clonesim/archives/run.csar" becomes ".../archives/run.csar".
func RedactPath(path string) string {
	if path == "" {
		return ""
	}
	cleaned := filepath.Clean(path)
	parent, base := filepath.Split(cleaned)
	parent = filepath.Base(parent)
	if parent == "." || parent == string(filepath.Separator) {
		return base
	}
	return ".../" + parent + "/" + base
}

// ValidatePath reports an error unless path lies inside one of allowedDirs
// after cleaning and symlink resolution. The file itself need not exist.
func ValidatePath(path string, allowedDirs []string) error {
	target, err := resolveTarget(path, allowedDirs)
	if err != nil {
		return fmt.Errorf("path validation failed: %w", err)
	}

	for _, dir := range allowedDirs {
		root, err := filepath.Abs(dir)
		if err != nil {
			continue
		}
		if root, err = resolveExisting(root); err != nil {
			continue
		}
		if within(target, root) {
			return nil
		}
	}
	return fmt.Errorf("path validation failed: %q is outside allowed directories", RedactPath(target))
}

// resolveTarget turns path into an absolute path whose directory part has
// its symlinks resolved.
func resolveTarget(path string, allowedDirs []string) (string, error) {
	switch {
	case path == "":
		return "", errors.New("path is empty")
	case len(allowedDirs) == 0:
		return "", errors.New("no allowed directories configured")
	case strings.IndexByte(path, 0) >= 0:
		return "", errors.New("path contains null byte")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("cannot resolve absolute path: %w", err)
	}
	dir, err := resolveExisting(filepath.Dir(abs))
	if err != nil {
		return "", fmt.Errorf("cannot resolve parent directory: %w", err)
	}
	return filepath.Join(dir, filepath.Base(abs)), nil
}

// resolveExisting evaluates symlinks on the deepest ancestor of dir that
// exists, then appends the components that do not exist yet.
func resolveExisting(dir string) (string, error) {
	var missing []string
	for {
		resolved, err := filepath.EvalSymlinks(dir)
		if err == nil {
			for i := len(missing) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, missing[i])
			}
			return resolved, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("cannot resolve path: %s", RedactPath(dir))
		}
		missing = append(missing, filepath.Base(dir))
		dir = parent
	}
}

// within reports whether path is root or lies below it.
func within(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator)))
}

// ArchiveDir returns <home>/archives, where home is the clonesim settings
// directory.
func ArchiveDir(home string) string {
	return filepath.Join(home, ArchiveDirName)
}
