// Package security validates filesystem paths assembled from request input
// before the server creates or reads anything on disk.
package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// maxFilenameLen caps sanitized filenames well below common filesystem
// limits, leaving room for directory prefixes and extensions.
const maxFilenameLen = 128

// WithinRoot reports an error unless path stays inside root once both are
// made absolute and symlinks are resolved. Paths that do not exist yet are
// resolved through their nearest existing ancestor, so a symlinked parent
// directory cannot redirect a pending write outside root.
func WithinRoot(path, root string) error {
	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve root: %w", err)
	}
	// The root must exist; a dangling root means nothing can validate
	// against it.
	canonicalRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return fmt.Errorf("resolve root symlinks: %w", err)
	}

	rel, err := filepath.Rel(canonicalRoot, canonicalize(absPath))
	if err != nil {
		return fmt.Errorf("path is outside %s: %w", root, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("path traversal detected: %s escapes %s", path, root)
	}
	return nil
}

// canonicalize resolves symlinks in absPath. When the path does not exist,
// the deepest existing ancestor is resolved instead and the remaining
// components are rejoined onto it.
func canonicalize(absPath string) string {
	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		return resolved
	}
	for dir := filepath.Dir(absPath); ; dir = filepath.Dir(dir) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			rel, err := filepath.Rel(dir, absPath)
			if err != nil {
				return absPath
			}
			return filepath.Join(resolved, rel)
		}
		if dir == filepath.Dir(dir) {
			return absPath
		}
	}
}

// ValidateExportPath accepts export destinations under the system temp
// directory or the current working directory and rejects everything else.
func ValidateExportPath(path string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolve working directory: %w", err)
	}
	for _, root := range []string{os.TempDir(), cwd} {
		if WithinRoot(path, root) == nil {
			return nil
		}
	}
	return fmt.Errorf("export path %s is outside the permitted directories", path)
}

// SanitizeFilename reduces an arbitrary string to a name safe to embed in a
// filesystem path. ASCII letters, digits, dot, underscore and dash pass
// through; every other run of characters collapses to a single underscore.
// The result is trimmed of leading and trailing dots and underscores and
// capped at 128 bytes; when nothing survives the result is "unknown".
func SanitizeFilename(s string) string {
	var b strings.Builder
	replaced := false
	for _, r := range s {
		if b.Len() >= maxFilenameLen {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
			replaced = false
		default:
			if !replaced {
				b.WriteByte('_')
				replaced = true
			}
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
