package site2pdf

import (
	"context"
	"fmt"
	"image"
	_ "image/png" // register PNG decoder for DecodeConfig
	"os"
	"sync"

	"github.com/go-pdf/fpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"go.uber.org/zap"

	"github.com/alnah/go-site2pdf/internal/fileutil"
)

// pdfcpu otherwise creates a config dir under the user's home on first use.
var disablePDFCPUConfig sync.Once

// Emitter writes a stitched image into a one-page PDF sized to it.
type Emitter struct {
	logger *zap.Logger
}

// NewEmitter creates an Emitter.
func NewEmitter(logger *zap.Logger) *Emitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Emitter{logger: logger}
}

// Emit writes img to out as a single page of exactly img's pixel size in
// points, with no margins, then checks the file is non-empty and parses as a
// valid PDF.
func (e *Emitter) Emit(ctx context.Context, img *StitchedImage, out string) (*RenderArtifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if img == nil {
		return nil, fmt.Errorf("%w: no image", ErrEmit)
	}

	w, h, err := imageSize(img.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading image: %v", ErrEmit, err)
	}
	if w != img.Width || h != img.Height {
		e.logger.Warn("stitched image size differs from file",
			zap.Int("want_width", img.Width), zap.Int("want_height", img.Height),
			zap.Int("width", w), zap.Int("height", h))
	}

	pageW, pageH := float64(w), float64(h)
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           fpdf.SizeType{Wd: pageW, Ht: pageH},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()
	pdf.ImageOptions(img.Path, 0, 0, pageW, pageH, false, fpdf.ImageOptions{ImageType: "PNG"}, 0, "")

	if err := pdf.OutputFileAndClose(out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmit, err)
	}
	if err := verifyPDF(out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmit, err)
	}

	e.logger.Debug("pdf written",
		zap.String("path", out),
		zap.Float64("width_pt", pageW),
		zap.Float64("height_pt", pageH))

	return &RenderArtifact{Path: out, PageWidth: pageW, PageHeight: pageH}, nil
}

func imageSize(path string) (int, int, error) {
	f, err := os.Open(path) // #nosec G304 -- path produced by the stitcher
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

// verifyPDF checks the file exists, is non-empty and passes relaxed validation.
func verifyPDF(path string) error {
	if err := fileutil.VerifyNonEmpty(path); err != nil {
		return err
	}
	disablePDFCPUConfig.Do(api.DisableConfigDir)

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.ValidateFile(path, conf); err != nil {
		return fmt.Errorf("validating %s: %w", path, err)
	}
	return nil
}
