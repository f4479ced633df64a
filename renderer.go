package site2pdf

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alnah/go-site2pdf/internal/assets"
)

// stitchedFileName is the composited image inside the job directory.
const stitchedFileName = "stitched.png"

// JobState is the lifecycle state of a render.
type JobState int

// Job states. Failed is reachable from any non-terminal state.
const (
	StateCreated JobState = iota
	StateNavigating
	StateScanning
	StateStitching
	StateEmitting
	StateCompleted
	StateFailed
)

var stateNames = [...]string{"created", "navigating", "scanning", "stitching", "emitting", "completed", "failed"}

func (s JobState) String() string {
	if int(s) >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("JobState(%d)", int(s))
}

// Terminal reports whether no further transitions are possible.
func (s JobState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// StateHook observes state changes. err is set only for StateFailed.
type StateHook func(jobID string, from, to JobState, err error)

// Observer receives job-level outcomes, typically to record metrics.
type Observer interface {
	JobStarted()
	JobFinished(outcome JobState, elapsed time.Duration, bands int)
}

type nopObserver struct{}

func (nopObserver) JobStarted()                             {}
func (nopObserver) JobFinished(JobState, time.Duration, int) {}

// Renderer turns a URL into a one-page PDF. It holds configuration only;
// every Render launches and disposes of its own browser, so a Renderer is
// safe for concurrent use.
type Renderer struct {
	cfg      rendererConfig
	opener   pageOpener
	scanner  *Scanner
	stitcher *Stitcher
	emitter  *Emitter
	logger   *zap.Logger
	observer Observer
	hook     StateHook
}

// NewRenderer creates a Renderer. Returns ErrInvalidViewport or
// ErrInvalidOverlap for bad geometry.
func NewRenderer(opts ...Option) (*Renderer, error) {
	r := &Renderer{
		cfg:      defaultRendererConfig(),
		logger:   zap.NewNop(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(r)
	}

	if err := r.cfg.viewport.Validate(); err != nil {
		return nil, err
	}
	if err := ValidateOverlap(r.cfg.overlap, r.cfg.viewport.Height); err != nil {
		return nil, err
	}

	css := assets.Overrides()
	if r.cfg.overridesCSS != nil {
		css = *r.cfg.overridesCSS
	}

	if r.opener == nil {
		r.opener = &rodOpener{
			cfg: captureConfig{
				navigationTimeout: r.cfg.navigationTimeout,
				settleDelay:       r.cfg.settleDelay,
				idleWindow:        r.cfg.idleWindow,
				overridesCSS:      css,
				browserBin:        r.cfg.browserBin,
				noSandbox:         r.cfg.noSandbox,
			},
			logger: r.logger,
		}
	}
	r.scanner = NewScanner(r.cfg.scrollDelay, r.logger)
	r.stitcher = NewStitcher(r.cfg.overlap, r.logger)
	r.emitter = NewEmitter(r.logger)
	return r, nil
}

// Viewport returns the configured scanning viewport.
func (r *Renderer) Viewport() Viewport {
	return r.cfg.viewport
}

// Render runs the full pipeline for job and returns the PDF artifact inside
// job.Dir. The browser is closed on every path. The caller owns job.Dir and
// is responsible for reclaiming it; nothing is retried here.
func (r *Renderer) Render(ctx context.Context, job RenderJob) (art *RenderArtifact, err error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	log := r.logger.With(zap.String("job", job.ID), zap.String("url", job.URL))
	tr := &jobTracker{id: job.ID, logger: log, hook: r.hook}
	start := time.Now()
	bandCount := 0

	r.observer.JobStarted()
	defer func() {
		// Recover from unexpected panics in browser or image code.
		if rec := recover(); rec != nil {
			art, err = nil, fmt.Errorf("internal error during render: %v", rec)
		}
		if err != nil {
			tr.fail(err)
		} else {
			tr.advance(StateCompleted)
			art.Bands = bandCount
			art.Duration = time.Since(start)
		}
		r.observer.JobFinished(tr.state, time.Since(start), bandCount)
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}

	tr.advance(StateNavigating)
	job.Progress.Notify(ctx, MilestoneFetching)
	page, err := r.opener.Open(ctx, job.URL)
	if err != nil {
		return nil, err
	}
	var closeOnce sync.Once
	closeBrowser := func() { closeOnce.Do(func() { closePage(page, log) }) }
	defer closeBrowser()

	tr.advance(StateScanning)
	job.Progress.Notify(ctx, MilestoneScrolling)
	bands, err := r.scanner.Capture(ctx, page, job.Dir, r.cfg.viewport, r.cfg.overlap)
	if err != nil {
		return nil, err
	}
	bandCount = len(bands)
	// Free the browser before CPU-bound work.
	closeBrowser()

	tr.advance(StateStitching)
	job.Progress.Notify(ctx, MilestoneCompositing)
	stitched, err := r.stitcher.Stitch(ctx, bands, filepath.Join(job.Dir, stitchedFileName))
	if err != nil {
		return nil, err
	}

	tr.advance(StateEmitting)
	job.Progress.Notify(ctx, MilestoneFinalizing)
	return r.emitter.Emit(ctx, stitched, filepath.Join(job.Dir, job.pdfName()))
}

func closePage(p capturePage, log *zap.Logger) {
	if err := p.Close(); err != nil {
		log.Debug("browser close reported errors", zap.Error(err))
	}
}

// jobTracker enforces forward-only transitions and reports them.
type jobTracker struct {
	id     string
	state  JobState
	logger *zap.Logger
	hook   StateHook
}

func (t *jobTracker) advance(to JobState) {
	if t.state.Terminal() || to <= t.state {
		return
	}
	from := t.state
	t.state = to
	t.logger.Debug("job state", zap.Stringer("from", from), zap.Stringer("to", to))
	if t.hook != nil {
		t.hook(t.id, from, to, nil)
	}
}

func (t *jobTracker) fail(err error) {
	if t.state.Terminal() {
		return
	}
	from := t.state
	t.state = StateFailed
	t.logger.Warn("job failed", zap.Stringer("from", from), zap.Error(err))
	if t.hook != nil {
		t.hook(t.id, from, StateFailed, err)
	}
}
