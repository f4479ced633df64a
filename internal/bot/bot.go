package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	site2pdf "github.com/alnah/go-site2pdf"
	"github.com/alnah/go-site2pdf/internal/retry"
	"github.com/alnah/go-site2pdf/internal/store"
)

// Defaults applied by New for zero Config fields.
const (
	DefaultJobTimeout     = 1000 * time.Second
	DefaultGrace          = 30 * time.Second
	DefaultSessionTTL     = 7 * 24 * time.Hour
	DefaultRateLimit      = rate.Limit(1.0 / 10) // one render every ten seconds
	DefaultRateBurst      = 3
	DefaultRetryAttempts  = 3
	DefaultRetryBaseDelay = 2 * time.Second
)

// maxLimiters bounds the per-user limiter table before idle ones are pruned.
const maxLimiters = 10_000

// Renderer runs one render job, allocating its directory once a browser is
// free. *site2pdf.RendererPool satisfies it.
type Renderer interface {
	RenderIn(ctx context.Context, job site2pdf.RenderJob, allocate func() (string, error)) (string, *site2pdf.RenderArtifact, error)
}

// Templates picks a template URL for a category slug. *catalog.Client satisfies it.
type Templates interface {
	Random(ctx context.Context, slug string) (string, error)
}

// Workspaces hands out and reclaims job directories. *site2pdf.Workspace satisfies it.
type Workspaces interface {
	Allocate() (string, error)
	Reclaim(dir string)
	ReclaimAfter(dir string, grace time.Duration)
}

// Metrics receives bot-level counters. *metrics.Metrics satisfies it.
type Metrics interface {
	Delivery(result string)
	Throttled()
}

type nopMetrics struct{}

func (nopMetrics) Delivery(string) {}
func (nopMetrics) Throttled()      {}

// Config tunes the bot. Zero fields take the defaults above.
type Config struct {
	OperatorChatID int64
	JobTimeout     time.Duration
	Grace          time.Duration // negative reclaims right after delivery
	SessionTTL     time.Duration
	HistoryLimit   int
	RateLimit      rate.Limit
	RateBurst      int
	RetryAttempts  int
	RetryBaseDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.JobTimeout <= 0 {
		c.JobTimeout = DefaultJobTimeout
	}
	if c.Grace < 0 {
		c.Grace = 0
	} else if c.Grace == 0 {
		c.Grace = DefaultGrace
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = DefaultSessionTTL
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = DefaultHistoryLimit
	}
	if c.RateLimit <= 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.RateBurst <= 0 {
		c.RateBurst = DefaultRateBurst
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = DefaultRetryAttempts
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = DefaultRetryBaseDelay
	}
	return c
}

// Deps are the collaborators a Bot drives.
type Deps struct {
	Messenger  Messenger
	Renderer   Renderer
	Templates  Templates
	Workspaces Workspaces
	Store      store.Store
	Metrics    Metrics
	Logger     *zap.Logger
}

// Bot dispatches updates. Renders run in background goroutines; Run waits
// for them before returning.
type Bot struct {
	msg      Messenger
	renderer Renderer
	catalog  Templates
	ws       Workspaces
	sess     sessions
	metrics  Metrics
	logger   *zap.Logger
	cfg      Config
	delivery retry.Policy

	limMu    sync.Mutex
	limiters map[int64]*rate.Limiter

	renders sync.WaitGroup
}

// New validates deps and builds a Bot.
func New(deps Deps, cfg Config) (*Bot, error) {
	switch {
	case deps.Messenger == nil:
		return nil, errors.New("bot: messenger is required")
	case deps.Renderer == nil:
		return nil, errors.New("bot: renderer is required")
	case deps.Templates == nil:
		return nil, errors.New("bot: template source is required")
	case deps.Workspaces == nil:
		return nil, errors.New("bot: workspaces are required")
	case deps.Store == nil:
		return nil, errors.New("bot: session store is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}
	cfg = cfg.withDefaults()

	b := &Bot{
		msg:      deps.Messenger,
		renderer: deps.Renderer,
		catalog:  deps.Templates,
		ws:       deps.Workspaces,
		sess:     sessions{st: deps.Store, ttl: cfg.SessionTTL, historyLimit: cfg.HistoryLimit},
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		cfg:      cfg,
		limiters: make(map[int64]*rate.Limiter),
	}
	b.delivery = retry.Policy{
		MaxAttempts: cfg.RetryAttempts,
		Backoff:     retry.Exponential(cfg.RetryBaseDelay),
		OnRetry: func(attempt int, wait time.Duration, err error) {
			b.logger.Warn("delivery failed, retrying",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", cfg.RetryAttempts),
				zap.Duration("wait", wait),
				zap.Error(err))
		},
	}
	return b, nil
}

// Run handles updates until ctx ends or updates is closed, then waits for
// in-flight renders. Cancelling ctx cancels those renders too.
func (b *Bot) Run(ctx context.Context, updates <-chan Update) error {
	defer b.renders.Wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			b.Handle(ctx, u)
		}
	}
}

// Wait blocks until background renders finish.
func (b *Bot) Wait() {
	b.renders.Wait()
}

// allow applies the per-user token bucket.
func (b *Bot) allow(userID int64) bool {
	b.limMu.Lock()
	defer b.limMu.Unlock()

	lim, ok := b.limiters[userID]
	if !ok {
		if len(b.limiters) >= maxLimiters {
			b.pruneLimitersLocked()
		}
		lim = rate.NewLimiter(b.cfg.RateLimit, b.cfg.RateBurst)
		b.limiters[userID] = lim
	}
	return lim.Allow()
}

// pruneLimitersLocked drops limiters whose bucket has refilled, since a
// fresh limiter behaves the same.
func (b *Bot) pruneLimitersLocked() {
	full := float64(b.cfg.RateBurst)
	for id, lim := range b.limiters {
		if lim.Tokens() >= full {
			delete(b.limiters, id)
		}
	}
}

// reply sends text and logs failures; handlers have no caller to report to.
func (b *Bot) reply(ctx context.Context, chatID int64, text string, kb *Keyboard) {
	if _, err := b.msg.SendText(ctx, chatID, text, kb); err != nil {
		b.logger.Warn("sending message failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (b *Bot) remove(ctx context.Context, chatID int64, messageID int) {
	if err := b.msg.Delete(ctx, chatID, messageID); err != nil {
		b.logger.Debug("deleting message failed",
			zap.Int64("chat_id", chatID), zap.Int("message_id", messageID), zap.Error(err))
	}
}

// deliver sends the PDF with the follow-up buttons, retrying transient failures.
func (b *Bot) deliver(ctx context.Context, chatID int64, path string) (int, error) {
	var messageID, attempts int
	err := b.delivery.Do(ctx, func(ctx context.Context) error {
		attempts++
		id, err := b.msg.SendDocument(ctx, chatID, path, textDocumentCaption, followUpKeyboard())
		if errors.Is(err, ErrRejected) {
			return retry.Permanent(err)
		}
		if err != nil {
			return err
		}
		messageID = id
		return nil
	})
	switch {
	case err != nil:
		b.metrics.Delivery("failed")
		return 0, fmt.Errorf("delivering %s: %w", path, err)
	case attempts > 1:
		b.metrics.Delivery("retried")
	default:
		b.metrics.Delivery("ok")
	}
	return messageID, nil
}
