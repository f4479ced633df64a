package site2pdf

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// ---------------------------------------------------------------------------
// Synthetic page
// ---------------------------------------------------------------------------

// pagePixel gives every row a distinct colour so misplaced bands show up as
// pixel mismatches.
func pagePixel(x, y int) color.RGBA {
	return color.RGBA{R: uint8(y), G: uint8(y >> 8), B: uint8(x * 7), A: 255}
}

func syntheticPage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, pagePixel(x, y))
		}
	}
	return img
}

// fakePage emulates a browser tab showing a synthetic page. Scrolling is
// clamped the way browsers clamp it, and screenshots crop the current
// viewport.
type fakePage struct {
	mu sync.Mutex

	page    *image.RGBA
	vw, vh  int
	scrollY int

	calls          []string
	offsets        []int
	shots          int
	closed         int
	failShotAt     int // 1-based screenshot number to fail; 0 never
	heightErr      error
	panicOnScroll  bool
	cancelOnShotAt int
	cancel         context.CancelFunc
}

func newFakePage(width, height int) *fakePage {
	return &fakePage{page: syntheticPage(width, height)}
}

func (f *fakePage) SetViewport(_ context.Context, w, h int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "viewport")
	f.vw, f.vh = w, h
	return nil
}

func (f *fakePage) ScrollHeight(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "height")
	if f.heightErr != nil {
		return 0, f.heightErr
	}
	return f.page.Bounds().Dy(), nil
}

func (f *fakePage) ScrollTo(_ context.Context, y int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOnScroll {
		panic("renderer crashed")
	}
	f.calls = append(f.calls, "scroll")
	f.offsets = append(f.offsets, y)
	f.scrollY = max(0, min(y, f.page.Bounds().Dy()-f.vh))
	return nil
}

func (f *fakePage) Screenshot(context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "screenshot")
	f.shots++
	if f.cancelOnShotAt > 0 && f.shots == f.cancelOnShotAt && f.cancel != nil {
		f.cancel()
	}
	if f.failShotAt > 0 && f.shots == f.failShotAt {
		return nil, errors.New("target closed")
	}

	w := min(f.vw, f.page.Bounds().Dx())
	h := min(f.vh, f.page.Bounds().Dy()-f.scrollY)
	shot := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			shot.SetRGBA(x, y, f.page.RGBAAt(x, f.scrollY+y))
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, shot); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (f *fakePage) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakePage) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakePage) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeOpener hands out one fakePage per Open, or fails.
type fakeOpener struct {
	mu     sync.Mutex
	width  int
	height int
	err    error
	pages  []*fakePage
	setup  func(*fakePage)
}

func (o *fakeOpener) Open(ctx context.Context, _ string) (capturePage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if o.err != nil {
		return nil, o.err
	}
	p := newFakePage(o.width, o.height)
	if o.setup != nil {
		o.setup(p)
	}
	o.mu.Lock()
	o.pages = append(o.pages, p)
	o.mu.Unlock()
	return p, nil
}

func (o *fakeOpener) opened() []*fakePage {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*fakePage(nil), o.pages...)
}

// ---------------------------------------------------------------------------
// Image helpers
// ---------------------------------------------------------------------------

func writeTestPNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func readTestPNG(t *testing.T, path string) image.Image {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	return img
}

func solidBand(t *testing.T, dir string, i, w, h int, c color.RGBA) CaptureBand {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	path := filepath.Join(dir, bandFileName(i))
	writeTestPNG(t, path, img)
	return CaptureBand{Index: i, Path: path, Width: w, Height: h}
}

// samePixels reports the first differing pixel, if any.
func samePixels(got image.Image, want *image.RGBA) (x, y int, ok bool) {
	if got.Bounds().Dx() != want.Bounds().Dx() || got.Bounds().Dy() != want.Bounds().Dy() {
		return -1, -1, false
	}
	for y := 0; y < want.Bounds().Dy(); y++ {
		for x := 0; x < want.Bounds().Dx(); x++ {
			r1, g1, b1, a1 := got.At(got.Bounds().Min.X+x, got.Bounds().Min.Y+y).RGBA()
			r2, g2, b2, a2 := want.At(x, y).RGBA()
			if r1 != r2 || g1 != g2 || b1 != b2 || a1 != a2 {
				return x, y, false
			}
		}
	}
	return 0, 0, true
}
