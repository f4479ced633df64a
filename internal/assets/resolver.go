package assets

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Resolver tries a custom directory first and falls back to embedded styles.
type Resolver struct {
	custom   StyleLoader // nil if no custom path configured
	embedded StyleLoader
}

// NewResolver creates a Resolver. An empty customBasePath uses embedded styles only.
func NewResolver(customBasePath string) (*Resolver, error) {
	r := &Resolver{embedded: NewEmbeddedLoader()}

	if customBasePath != "" {
		fsLoader, err := NewFilesystemLoader(customBasePath)
		if err != nil {
			return nil, err
		}
		r.custom = fsLoader
	}

	return r, nil
}

// LoadStyle loads a style, preferring the custom directory.
// Only "not found" falls through; validation and I/O errors are returned.
func (r *Resolver) LoadStyle(name string) (string, error) {
	if r.custom == nil {
		return r.embedded.LoadStyle(name)
	}

	css, err := r.custom.LoadStyle(name)
	if err == nil {
		return css, nil
	}
	if !errors.Is(err, ErrStyleNotFound) {
		return "", err
	}
	return r.embedded.LoadStyle(name)
}

// HasCustomLoader reports whether a custom directory is configured.
func (r *Resolver) HasCustomLoader() bool {
	return r.custom != nil
}

// ResolveStylesheet turns a configured value into CSS.
//
//   - ""            -> the default embedded style
//   - "none"        -> no injection (empty string)
//   - "./site.css"  -> file contents (anything containing a path separator)
//   - "minimal"     -> a style loaded through r
func (r *Resolver) ResolveStylesheet(value string) (string, error) {
	switch {
	case value == "":
		return r.LoadStyle(DefaultStyle)
	case value == "none":
		return "", nil
	case strings.ContainsAny(value, "/\\"):
		content, err := os.ReadFile(value) // #nosec G304 -- user-provided stylesheet
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrAssetRead, err)
		}
		return string(content), nil
	default:
		return r.LoadStyle(value)
	}
}

// Compile-time interface check.
var _ StyleLoader = (*Resolver)(nil)
