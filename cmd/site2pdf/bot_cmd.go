package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	site2pdf "github.com/alnah/go-site2pdf"
	"github.com/alnah/go-site2pdf/internal/bot"
	"github.com/alnah/go-site2pdf/internal/catalog"
	"github.com/alnah/go-site2pdf/internal/config"
	"github.com/alnah/go-site2pdf/internal/hints"
	"github.com/alnah/go-site2pdf/internal/metrics"
	"github.com/alnah/go-site2pdf/internal/store"
)

// runBot runs the chat service until ctx is cancelled.
func runBot(ctx context.Context, args []string, env *Environment) error {
	f, err := parseBotFlags(args)
	if err != nil {
		if errors.Is(err, errHelpShown) {
			printBotUsage(env.Stdout)
		}
		return err
	}

	cfg, err := loadConfig(f.common)
	if err != nil {
		return err
	}
	if err := f.apply(cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.ValidateBot(); err != nil {
		if errors.Is(err, config.ErrMissingToken) {
			return withHint(err, hints.ForToken())
		}
		return err
	}

	logger, flush, err := newLogger(cfg, f.common, "", env)
	if err != nil {
		return err
	}
	defer flush()
	if cfg.Bot.OperatorChatID == 0 {
		logger.Warn("bot.operatorChatID is not set; contact requests will be refused")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := metrics.New()
	if cfg.Metrics.Addr != "" {
		go func() {
			if err := m.Serve(ctx, cfg.Metrics.Addr, logger.Named("metrics")); err != nil {
				logger.Error("metrics endpoint stopped", zap.Error(err))
			}
		}()
	}

	ws, err := newWorkspace(cfg, logger.Named("workspace"), site2pdf.WithReclaimCounter(m.WorkspacesReclaimed))
	if err != nil {
		return err
	}
	go ws.Run(ctx)

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()
	if mem, ok := st.(*store.Memory); ok {
		go mem.Run(ctx, cfg.Workspace.SweepInterval.D())
	}

	catOpts := []catalog.Option{
		catalog.WithTimeout(cfg.Catalog.Timeout.D()),
		catalog.WithLogger(logger.Named("catalog")),
	}
	if cfg.Catalog.UserAgent != "" {
		catOpts = append(catOpts, catalog.WithUserAgent(cfg.Catalog.UserAgent))
	}
	gallery, err := catalog.New(cfg.Catalog.BaseURL, catOpts...)
	if err != nil {
		return err
	}

	css, err := resolveStyle(cfg.Render)
	if err != nil {
		return err
	}
	pool := site2pdf.NewRendererPool(site2pdf.ResolvePoolSize(cfg.Render.Workers),
		rendererOptions(cfg, css, logger.Named("render"), m)...)
	defer func() { _ = pool.Close() }()

	tg, err := bot.NewTelegram(cfg.Bot.Token, bot.WithTelegramLogger(logger.Named("telegram")))
	if err != nil {
		if errors.Is(err, bot.ErrRejected) {
			return withHint(err, hints.ForToken())
		}
		return err
	}

	b, err := bot.New(bot.Deps{
		Messenger:  tg,
		Renderer:   pool,
		Templates:  gallery,
		Workspaces: ws,
		Store:      st,
		Metrics:    m,
		Logger:     logger.Named("bot"),
	}, botConfig(cfg))
	if err != nil {
		return err
	}

	logger.Info("bot started",
		zap.String("username", tg.Username()),
		zap.Int("workers", pool.Size()),
		zap.String("store", cfg.Store.Backend),
		zap.String("version", Version))
	if !f.common.quiet {
		fmt.Fprintf(env.Stdout, "site2pdf bot @%s running (Ctrl+C to stop)\n", tg.Username())
	}

	err = b.Run(ctx, tg.Updates(ctx, cfg.Bot.PollTimeout.D()))
	logger.Info("bot stopped")
	return err
}

// apply overrides cfg with the bot flags that were set.
func (f *botFlags) apply(cfg *config.Config) error {
	if err := f.browser.apply(cfg); err != nil {
		return err
	}
	if f.token != "" {
		cfg.Bot.Token = f.token
	}
	if f.operator != 0 {
		cfg.Bot.OperatorChatID = f.operator
	}
	if f.store != "" {
		cfg.Store.Backend = f.store
	}
	if f.metricsAddr != "" {
		cfg.Metrics.Addr = f.metricsAddr
	}
	return nil
}

// openStore opens the session store, hinting at the fallback when Redis is down.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	st, err := store.Open(ctx, store.Options{
		Backend:  cfg.Store.Backend,
		MaxKeys:  cfg.Store.MaxKeys,
		Addr:     cfg.Store.Redis.Addr,
		Password: cfg.Store.Redis.Password,
		DB:       cfg.Store.Redis.DB,
		Prefix:   cfg.Store.Redis.Prefix,
	})
	if err != nil && cfg.Store.Backend == store.BackendRedis {
		return nil, withHint(err, hints.ForRedis(cfg.Store.Redis.Addr))
	}
	return st, err
}

// botConfig maps the bot section. rateLimit is configured per minute.
func botConfig(cfg *config.Config) bot.Config {
	return bot.Config{
		OperatorChatID: cfg.Bot.OperatorChatID,
		JobTimeout:     cfg.Render.JobTimeout.D(),
		Grace:          cfg.Workspace.Grace.D(),
		SessionTTL:     cfg.Bot.SessionTTL.D(),
		HistoryLimit:   cfg.Bot.HistoryLimit,
		RateLimit:      rate.Limit(cfg.Bot.RateLimit / 60),
		RateBurst:      cfg.Bot.RateBurst,
		RetryAttempts:  cfg.Bot.Delivery.Attempts,
		RetryBaseDelay: cfg.Bot.Delivery.BaseDelay.D(),
	}
}
