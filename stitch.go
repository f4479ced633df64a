package site2pdf

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"os"

	"go.uber.org/zap"

	"github.com/alnah/go-site2pdf/internal/fileutil"
)

// Stitcher composites bands into one tall image.
type Stitcher struct {
	overlap int
	logger  *zap.Logger
}

// NewStitcher creates a Stitcher that drops overlap rows between neighbours.
func NewStitcher(overlap int, logger *zap.Logger) *Stitcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stitcher{overlap: overlap, logger: logger}
}

// Stitch decodes bands in order and pastes each one overlap pixels above the
// end of the previous one. The canvas is as wide as the widest band and as
// tall as the sum of band heights minus overlap*(n-1), using decoded heights.
// The result is written to out as PNG and verified on disk.
func (s *Stitcher) Stitch(ctx context.Context, bands []CaptureBand, out string) (*StitchedImage, error) {
	if len(bands) == 0 {
		return nil, fmt.Errorf("%w: no bands", ErrStitch)
	}
	if s.overlap < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidOverlap, s.overlap)
	}

	imgs := make([]image.Image, 0, len(bands))
	width, height := 0, 0
	for i, b := range bands {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := decodePNG(b.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: band %d: %v", ErrStitch, i, err)
		}
		bh := img.Bounds().Dy()
		if i > 0 && bh <= s.overlap {
			return nil, fmt.Errorf("%w: band %d is %d px tall, not more than overlap %d", ErrStitch, i, bh, s.overlap)
		}
		width = max(width, img.Bounds().Dx())
		height += bh
		imgs = append(imgs, img)
	}
	height -= s.overlap * (len(imgs) - 1)

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	y := 0
	for _, img := range imgs {
		b := img.Bounds()
		dst := image.Rect(0, y, b.Dx(), y+b.Dy())
		draw.Draw(canvas, dst, img, b.Min, draw.Src)
		y += b.Dy() - s.overlap
	}

	if err := writePNG(out, canvas); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStitch, err)
	}
	if err := fileutil.VerifyNonEmpty(out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStitch, err)
	}

	s.logger.Debug("bands stitched",
		zap.Int("bands", len(imgs)),
		zap.Int("width", width),
		zap.Int("height", height))

	return &StitchedImage{Path: out, Width: width, Height: height}, nil
}

func decodePNG(path string) (image.Image, error) {
	f, err := os.Open(path) // #nosec G304 -- path produced by the scanner
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return png.Decode(f)
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path) // #nosec G304 -- path inside the job workspace
	if err != nil {
		return err
	}
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(f, img); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
