package site2pdf

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/alnah/go-site2pdf/internal/process"
)

// capturePage is an opened, loaded page ready for scanning.
type capturePage interface {
	scrollPage
	Close() error
}

// pageOpener abstracts browser launch and navigation to enable testing without a browser.
type pageOpener interface {
	Open(ctx context.Context, url string) (capturePage, error)
}

// Compile-time interface checks
var (
	_ capturePage = (*Session)(nil)
	_ pageOpener  = (*rodOpener)(nil)
)

// captureConfig is the subset of rendererConfig the browser needs.
type captureConfig struct {
	navigationTimeout time.Duration
	settleDelay       time.Duration
	idleWindow        time.Duration
	overridesCSS      string
	browserBin        string
	noSandbox         bool
}

// rodOpener launches one Chrome per Open call using go-rod.
// Rod automatically downloads Chromium on first run if not found.
type rodOpener struct {
	cfg    captureConfig
	logger *zap.Logger
}

func (o *rodOpener) Open(ctx context.Context, url string) (capturePage, error) {
	return Open(ctx, url, o.cfg, o.logger)
}

// Session owns one browser process and the page loaded in it.
// Close must be called on every path; it is idempotent.
type Session struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	pid      int
	logger   *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

// newLauncher configures Chrome the same way for renders and doctor checks.
func newLauncher(bin string, noSandbox bool) *launcher.Launcher {
	l := launcher.New().Headless(true)

	// Pre-installed browser (Docker/containerized environments)
	if bin == "" {
		bin = os.Getenv("ROD_BROWSER_BIN")
	}
	if bin != "" {
		l = l.Bin(bin)
	}

	// Sandbox does not work in most CI and container setups
	if noSandbox || os.Getenv("CI") == "true" || os.Getenv("ROD_NO_SANDBOX") == "1" {
		l = l.NoSandbox(true)
	}
	return l
}

// Open launches a browser, loads url and prepares it for scanning:
// wait for the network to go idle (bounded by the navigation timeout), wait
// for the load event, inject the override stylesheet, then settle.
//
// On error every resource acquired so far is released before returning.
func Open(ctx context.Context, url string, cfg captureConfig, logger *zap.Logger) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	l := newLauncher(cfg.browserBin, cfg.noSandbox).Context(ctx)
	controlURL, err := l.Launch()
	if err != nil {
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("%w: %v", ErrBrowserConnect, err)
	}

	s := &Session{launcher: l, pid: l.PID(), logger: logger}
	logger.Debug("browser launched", zap.Int("pid", s.pid))

	// The browser is not bound to ctx so Close still works after cancellation.
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("%w: %v", ErrBrowserConnect, err)
	}
	s.browser = browser

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("%w: %v", ErrPageCreate, err)
	}
	s.page = page

	if err := s.navigate(ctx, url, cfg); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Session) navigate(ctx context.Context, url string, cfg captureConfig) error {
	navCtx, cancel := context.WithTimeout(ctx, cfg.navigationTimeout)
	defer cancel()

	p := s.page.Context(navCtx)
	waitIdle := p.WaitRequestIdle(cfg.idleWindow, nil, nil, nil)

	if err := p.Navigate(url); err != nil {
		return navigationError(ctx, url, err)
	}
	waitIdle()
	if err := p.WaitLoad(); err != nil {
		return navigationError(ctx, url, err)
	}
	// WaitRequestIdle returns silently when navCtx ends.
	if err := navCtx.Err(); err != nil {
		return navigationError(ctx, url, err)
	}

	if cfg.overridesCSS != "" {
		if err := p.AddStyleTag("", cfg.overridesCSS); err != nil {
			return fmt.Errorf("%w: injecting override stylesheet: %v", ErrNavigation, err)
		}
	}

	s.logger.Debug("page loaded", zap.String("url", url))
	return sleepCtx(ctx, cfg.settleDelay)
}

// navigationError keeps caller cancellation distinct from navigation failure.
func navigationError(ctx context.Context, url string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: network did not go idle in time", ErrNavigation, url)
	}
	return fmt.Errorf("%w: %s: %v", ErrNavigation, url, err)
}

// SetViewport resizes the emulated window.
func (s *Session) SetViewport(ctx context.Context, width, height int) error {
	return s.page.Context(ctx).SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1,
	})
}

// ScrollHeight returns the full document height in CSS pixels.
func (s *Session) ScrollHeight(ctx context.Context) (int, error) {
	res, err := s.page.Context(ctx).Eval(`() => Math.max(
		document.body ? document.body.scrollHeight : 0,
		document.documentElement.scrollHeight)`)
	if err != nil {
		return 0, err
	}
	return res.Value.Int(), nil
}

// ScrollTo scrolls the window to vertical offset y.
func (s *Session) ScrollTo(ctx context.Context, y int) error {
	_, err := s.page.Context(ctx).Eval(`(y) => window.scrollTo(0, y)`, y)
	return err
}

// Screenshot captures the current viewport as PNG.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	return s.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
}

// PID returns the browser process ID, or 0 if launch failed.
func (s *Session) PID() int {
	return s.pid
}

// Close closes the page and browser, kills the browser process group and
// removes the browser profile directory. Safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if s.page != nil {
			if err := s.page.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing page: %w", err))
			}
		}
		if s.browser != nil {
			if err := s.browser.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing browser: %w", err))
			}
		}
		process.KillTree(s.pid)
		if s.launcher != nil {
			s.launcher.Kill()
			s.launcher.Cleanup()
		}
		s.closeErr = errors.Join(errs...)
		s.logger.Debug("browser closed", zap.Int("pid", s.pid))
	})
	return s.closeErr
}

// sleepCtx waits for d or until ctx ends.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
