package site2pdf

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/png" // register PNG decoder for DecodeConfig
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/alnah/go-site2pdf/internal/fileutil"
)

// scrollPage is the part of a loaded page the scanner drives.
type scrollPage interface {
	SetViewport(ctx context.Context, width, height int) error
	ScrollHeight(ctx context.Context) (int, error)
	ScrollTo(ctx context.Context, y int) error
	Screenshot(ctx context.Context) ([]byte, error)
}

// BandPlan is one planned capture: where to scroll and how tall the viewport is.
type BandPlan struct {
	Offset int
	Height int
}

// PlanBands computes the capture sequence for a page of total height, a
// viewport of viewportHeight and the given overlap.
//
// Bands start at 0 and advance by viewportHeight-overlap. Each band is as tall
// as the viewport, except the last which is clipped to what remains. The plan
// stops at the first band that reaches the bottom, so the count is
// ceil((total-overlap)/(viewportHeight-overlap)) for total > viewportHeight
// and 1 otherwise.
func PlanBands(total, viewportHeight, overlap int) ([]BandPlan, error) {
	if viewportHeight <= 0 {
		return nil, fmt.Errorf("%w: height %d", ErrInvalidViewport, viewportHeight)
	}
	if err := ValidateOverlap(overlap, viewportHeight); err != nil {
		return nil, err
	}
	if total <= 0 {
		return nil, fmt.Errorf("%w: page height is %d", ErrCapture, total)
	}

	step := viewportHeight - overlap
	plan := make([]BandPlan, 0, (total+step-1)/step)
	for y := 0; y < total; y += step {
		remaining := total - y
		plan = append(plan, BandPlan{Offset: y, Height: min(viewportHeight, remaining)})
		if remaining <= viewportHeight {
			break
		}
	}
	return plan, nil
}

// Scanner captures a loaded page as a sequence of overlapping bands.
type Scanner struct {
	scrollDelay time.Duration
	logger      *zap.Logger
	writeFile   func(name string, data []byte, perm os.FileMode) error
}

// NewScanner creates a Scanner that waits scrollDelay after each scroll.
func NewScanner(scrollDelay time.Duration, logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{scrollDelay: scrollDelay, logger: logger, writeFile: os.WriteFile}
}

// bandFileName is the on-disk name of the band at index i.
func bandFileName(i int) string {
	return fmt.Sprintf("band-%04d.png", i+1)
}

// Capture scans page into dir. Bands are returned in capture order with
// strictly increasing offsets, each backed by a verified PNG file.
// Invalid overlap fails before the page is touched.
func (s *Scanner) Capture(ctx context.Context, page scrollPage, dir string, vp Viewport, overlap int) ([]CaptureBand, error) {
	if err := vp.Validate(); err != nil {
		return nil, err
	}
	if err := ValidateOverlap(overlap, vp.Height); err != nil {
		return nil, err
	}

	if err := page.SetViewport(ctx, vp.Width, vp.Height); err != nil {
		return nil, captureError(ctx, "setting viewport", err)
	}
	total, err := page.ScrollHeight(ctx)
	if err != nil {
		return nil, captureError(ctx, "reading page height", err)
	}

	plan, err := PlanBands(total, vp.Height, overlap)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("scan planned",
		zap.Int("page_height", total),
		zap.Int("bands", len(plan)),
		zap.Int("overlap", overlap))

	bands := make([]CaptureBand, 0, len(plan))
	for i, b := range plan {
		band, err := s.captureBand(ctx, page, dir, i, b, vp.Width)
		if err != nil {
			return nil, err
		}
		bands = append(bands, band)
	}
	return bands, nil
}

func (s *Scanner) captureBand(ctx context.Context, page scrollPage, dir string, i int, b BandPlan, width int) (CaptureBand, error) {
	if err := ctx.Err(); err != nil {
		return CaptureBand{}, err
	}
	if err := page.SetViewport(ctx, width, b.Height); err != nil {
		return CaptureBand{}, captureError(ctx, fmt.Sprintf("band %d: setting viewport", i), err)
	}
	if err := page.ScrollTo(ctx, b.Offset); err != nil {
		return CaptureBand{}, captureError(ctx, fmt.Sprintf("band %d: scrolling", i), err)
	}
	if err := sleepCtx(ctx, s.scrollDelay); err != nil {
		return CaptureBand{}, err
	}

	buf, err := page.Screenshot(ctx)
	if err != nil {
		return CaptureBand{}, captureError(ctx, fmt.Sprintf("band %d: screenshot", i), err)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(buf))
	if err != nil {
		return CaptureBand{}, fmt.Errorf("%w: band %d: decoding screenshot: %v", ErrCapture, i, err)
	}

	path := filepath.Join(dir, bandFileName(i))
	if err := s.writeFile(path, buf, 0o600); err != nil {
		return CaptureBand{}, fmt.Errorf("%w: band %d: %v", ErrCapture, i, err)
	}
	if err := fileutil.VerifyNonEmpty(path); err != nil {
		return CaptureBand{}, fmt.Errorf("%w: band %d: %w", ErrCapture, i, err)
	}

	s.logger.Debug("band captured",
		zap.Int("index", i),
		zap.Int("offset", b.Offset),
		zap.Int("height", cfg.Height))

	return CaptureBand{
		Index:  i,
		Offset: b.Offset,
		Path:   path,
		Width:  cfg.Width,
		Height: cfg.Height,
	}, nil
}

func captureError(ctx context.Context, step string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %s: %v", ErrCapture, step, err)
}
