// Package fileutil provides file and path utility functions.
package fileutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Sentinel errors for file verification.
var (
	ErrFileMissing = errors.New("file does not exist")
	ErrFileEmpty   = errors.New("file is empty")
	ErrNotRegular  = errors.New("not a regular file")
)

// FileExists returns true if the path exists and is a regular file.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// VerifyNonEmpty checks that path is a regular file with at least one byte.
// Used after every write that a later stage depends on.
func VerifyNonEmpty(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrFileMissing, path)
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s", ErrNotRegular, path)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%w: %s", ErrFileEmpty, path)
	}
	return nil
}

// IsURL returns true if the string looks like an http(s) URL.
func IsURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// IsWithin reports whether path is root itself or lies under it.
// Both paths are cleaned and made absolute first; symlinks are not resolved.
func IsWithin(root, path string) bool {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// SafeName turns s into a file-name-safe slug: ASCII letters and digits are
// kept (lower-cased), every other run of characters becomes a single dash.
//
// Examples:
//   - "acme.webflow.io" -> "acme-webflow-io"
//   - "My Page!"        -> "my-page"
//   - "***"             -> "page"
func SafeName(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if out == "" {
		return "page"
	}
	return out
}
