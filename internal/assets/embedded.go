package assets

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed styles/*.css
var styles embed.FS

// DefaultStyle is the stylesheet injected when none is configured.
const DefaultStyle = "overrides"

// StyleLoader loads a stylesheet by name (without the .css extension).
type StyleLoader interface {
	LoadStyle(name string) (string, error)
}

// EmbeddedLoader loads styles compiled into the binary.
type EmbeddedLoader struct{}

// NewEmbeddedLoader creates an EmbeddedLoader.
func NewEmbeddedLoader() *EmbeddedLoader {
	return &EmbeddedLoader{}
}

// LoadStyle loads a built-in style by name.
func (e *EmbeddedLoader) LoadStyle(name string) (string, error) {
	if err := ValidateAssetName(name); err != nil {
		return "", err
	}

	content, err := styles.ReadFile("styles/" + name + ".css")
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrStyleNotFound, name)
	}

	return string(content), nil
}

// Styles lists the built-in style names, sorted.
func Styles() []string {
	entries, err := fs.ReadDir(styles, "styles")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".css"))
	}
	sort.Strings(names)
	return names
}

// Overrides returns the default built-in stylesheet.
func Overrides() string {
	css, err := NewEmbeddedLoader().LoadStyle(DefaultStyle)
	if err != nil {
		// The default style is embedded; a miss means a broken build.
		panic(err)
	}
	return css
}

// Compile-time interface check.
var _ StyleLoader = (*EmbeddedLoader)(nil)
