package site2pdf

import (
	"time"

	"go.uber.org/zap"
)

// Timing defaults.
const (
	// DefaultNavigationTimeout bounds loading plus network quiescence.
	DefaultNavigationTimeout = 80 * time.Second

	// DefaultSettleDelay lets late scripts and fonts finish after load.
	DefaultSettleDelay = 5 * time.Second

	// DefaultScrollDelay lets lazy content paint after each scroll.
	DefaultScrollDelay = time.Second

	// defaultIdleWindow is how long the network must stay quiet.
	defaultIdleWindow = 500 * time.Millisecond
)

// Option configures a Renderer.
type Option func(*Renderer)

// rendererConfig holds internal configuration for Renderer.
type rendererConfig struct {
	viewport          Viewport
	overlap           int
	navigationTimeout time.Duration
	settleDelay       time.Duration
	scrollDelay       time.Duration
	idleWindow        time.Duration
	overridesCSS      *string // nil means the embedded stylesheet
	browserBin        string
	noSandbox         bool
}

func defaultRendererConfig() rendererConfig {
	return rendererConfig{
		viewport:          DefaultViewport(),
		overlap:           DefaultOverlap,
		navigationTimeout: DefaultNavigationTimeout,
		settleDelay:       DefaultSettleDelay,
		scrollDelay:       DefaultScrollDelay,
		idleWindow:        defaultIdleWindow,
	}
}

// WithViewport sets the scanning viewport. Validated by NewRenderer.
func WithViewport(width, height int) Option {
	return func(r *Renderer) {
		r.cfg.viewport = Viewport{Width: width, Height: height}
	}
}

// WithOverlap sets how many pixels neighbouring bands share. Validated by NewRenderer.
func WithOverlap(px int) Option {
	return func(r *Renderer) {
		r.cfg.overlap = px
	}
}

// WithNavigationTimeout bounds page loading and network quiescence.
// Panics if d <= 0 (programmer error, similar to time.NewTicker).
func WithNavigationTimeout(d time.Duration) Option {
	if d <= 0 {
		panic("site2pdf: WithNavigationTimeout duration must be positive")
	}
	return func(r *Renderer) {
		r.cfg.navigationTimeout = d
	}
}

// WithSettleDelay sets the pause after navigation. Zero disables it.
func WithSettleDelay(d time.Duration) Option {
	return func(r *Renderer) {
		r.cfg.settleDelay = max(d, 0)
	}
}

// WithScrollDelay sets the pause after each scroll. Zero disables it.
func WithScrollDelay(d time.Duration) Option {
	return func(r *Renderer) {
		r.cfg.scrollDelay = max(d, 0)
	}
}

// WithOverridesCSS replaces the embedded override stylesheet.
// An empty string disables style injection.
func WithOverridesCSS(css string) Option {
	return func(r *Renderer) {
		r.cfg.overridesCSS = &css
	}
}

// WithBrowserBin uses a pre-installed Chrome instead of the managed download.
func WithBrowserBin(path string) Option {
	return func(r *Renderer) {
		r.cfg.browserBin = path
	}
}

// WithNoSandbox disables the Chrome sandbox (containers, CI).
func WithNoSandbox(v bool) Option {
	return func(r *Renderer) {
		r.cfg.noSandbox = v
	}
}

// WithLogger sets the structured logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Renderer) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithObserver receives job outcomes, typically for metrics.
func WithObserver(o Observer) Option {
	return func(r *Renderer) {
		if o != nil {
			r.observer = o
		}
	}
}

// WithStateHook is called on every job state change.
func WithStateHook(h StateHook) Option {
	return func(r *Renderer) {
		r.hook = h
	}
}

// withOpener swaps the browser for tests.
func withOpener(o pageOpener) Option {
	return func(r *Renderer) {
		r.opener = o
	}
}
