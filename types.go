package site2pdf

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/alnah/go-site2pdf/internal/fileutil"
)

// Viewport defaults, matching a common desktop screen.
const (
	DefaultViewportWidth  = 1920
	DefaultViewportHeight = 1080
	DefaultOverlap        = 10
)

// Viewport is the browser window size used while scanning, in CSS pixels.
type Viewport struct {
	Width  int
	Height int
}

// DefaultViewport returns the 1920x1080 viewport.
func DefaultViewport() Viewport {
	return Viewport{Width: DefaultViewportWidth, Height: DefaultViewportHeight}
}

// Validate checks that both dimensions are positive.
func (v Viewport) Validate() error {
	if v.Width <= 0 || v.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidViewport, v.Width, v.Height)
	}
	return nil
}

// ValidateOverlap checks that overlap fits inside a viewport of the given height.
// A band advance of viewportHeight-overlap must be strictly positive.
func ValidateOverlap(overlap, viewportHeight int) error {
	if overlap < 0 || overlap >= viewportHeight {
		return fmt.Errorf("%w: %d (viewport height %d)", ErrInvalidOverlap, overlap, viewportHeight)
	}
	return nil
}

// RenderJob describes one page to render.
type RenderJob struct {
	// ID identifies the job in logs. Generated when empty.
	ID string
	// URL is the absolute http(s) address of the page.
	URL string
	// Dir is an existing directory owned by this job.
	Dir string
	// FileName is the PDF file name inside Dir. Derived from the host when empty.
	FileName string
	// Progress receives milestones. May be nil.
	Progress *Reporter
}

// Validate checks the URL and the directory.
func (j RenderJob) Validate() error {
	if err := validateTargetURL(j.URL); err != nil {
		return err
	}
	if j.Dir == "" {
		return fmt.Errorf("%w: job directory is empty", ErrWorkspace)
	}
	info, err := os.Stat(j.Dir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWorkspace, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrWorkspace, j.Dir)
	}
	if j.FileName != "" && strings.ContainsAny(j.FileName, "/\\\x00") {
		return fmt.Errorf("%w: file name %q contains a path separator", ErrWorkspace, j.FileName)
	}
	return nil
}

// pdfName returns the artifact file name.
func (j RenderJob) pdfName() string {
	if j.FileName != "" {
		return j.FileName
	}
	u, err := url.Parse(j.URL)
	if err != nil || u.Hostname() == "" {
		return "page.pdf"
	}
	return fileutil.SafeName(u.Hostname()) + ".pdf"
}

func validateTargetURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: %q must use http or https", ErrInvalidURL, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: %q has no host", ErrInvalidURL, raw)
	}
	return nil
}

// CaptureBand is one saved viewport screenshot.
type CaptureBand struct {
	Index  int    // zero-based, in capture order
	Offset int    // scroll offset in page pixels
	Path   string // PNG file
	Width  int    // decoded pixel width
	Height int    // decoded pixel height
}

// StitchedImage is the composited full-page PNG.
type StitchedImage struct {
	Path   string
	Width  int
	Height int
}

// RenderArtifact is the final PDF and what produced it.
type RenderArtifact struct {
	Path       string
	PageWidth  float64 // points
	PageHeight float64 // points
	Bands      int
	Duration   time.Duration
}
