package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	site2pdf "github.com/alnah/go-site2pdf"
	"github.com/alnah/go-site2pdf/internal/catalog"
	"github.com/alnah/go-site2pdf/internal/fileutil"
	"github.com/alnah/go-site2pdf/internal/hints"
)

// renderResult is the outcome of one URL.
type renderResult struct {
	url  string
	path string
	art  *site2pdf.RenderArtifact
	err  error
}

// runRender renders one or more URLs to PDFs in the output directory.
func runRender(ctx context.Context, args []string, env *Environment) error {
	f, urls, err := parseRenderFlags(args)
	if err != nil {
		if errors.Is(err, errHelpShown) {
			printRenderUsage(env.Stdout)
		}
		return err
	}

	cfg, err := loadConfig(f.common)
	if err != nil {
		return err
	}
	if err := f.browser.apply(cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, flush, err := newLogger(cfg, f.common, "warn", env)
	if err != nil {
		return err
	}
	defer flush()

	if f.category != "" {
		u, err := randomTemplate(ctx, f.category, cfg.Catalog.BaseURL, cfg.Catalog.Timeout.D(), cfg.Catalog.UserAgent, logger)
		if err != nil {
			return err
		}
		if !f.common.quiet {
			fmt.Fprintf(env.Stdout, "Picked %s\n", u)
		}
		urls = append(urls, u)
	}
	if len(urls) == 0 {
		return fmt.Errorf("%w: render needs at least one URL or --category", errUsage)
	}
	if f.name != "" && len(urls) > 1 {
		return fmt.Errorf("%w: --name applies to a single URL", errUsage)
	}
	for _, u := range urls {
		if !fileutil.IsURL(u) {
			return fmt.Errorf("%w: %q is not an http(s) URL (try https://%s)", errUsage, u, u)
		}
	}

	css, err := resolveStyle(cfg.Render)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(f.output, 0o750); err != nil {
		return withHint(fmt.Errorf("creating output directory: %w", err), hints.ForOutputDirectory())
	}

	ws, err := newWorkspace(cfg, logger)
	if err != nil {
		return err
	}

	size := min(site2pdf.ResolvePoolSize(cfg.Render.Workers), len(urls))
	pool := site2pdf.NewRendererPool(size, rendererOptions(cfg, css, logger, nil)...)
	defer func() { _ = pool.Close() }()

	var out io.Writer = env.Stderr
	if f.common.quiet {
		out = io.Discard
	}

	results := make([]renderResult, len(urls))
	var wg sync.WaitGroup
	for i, u := range urls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = renderOne(ctx, pool, ws, u, f.output, f.name, cfg.Render.JobTimeout.D(), out, logger)
		}()
	}
	wg.Wait()

	var failed []error
	for _, r := range results {
		if r.err != nil {
			failed = append(failed, fmt.Errorf("%s: %w", r.url, r.err))
			continue
		}
		if !f.common.quiet {
			fmt.Fprintf(env.Stdout, "Created %s (%d bands, %.0fx%.0f pt, %s)\n",
				r.path, r.art.Bands, r.art.PageWidth, r.art.PageHeight, r.art.Duration.Round(10*time.Millisecond))
		}
	}
	return errors.Join(failed...)
}

// renderOne renders u in its own job directory and moves the PDF to outDir.
// The directory is allocated once a browser is free and reclaimed whatever
// the outcome.
func renderOne(ctx context.Context, pool *site2pdf.RendererPool, ws *site2pdf.Workspace,
	u, outDir, name string, timeout time.Duration, progress io.Writer, logger *zap.Logger,
) renderResult {
	res := renderResult{url: u}

	jobCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reporter := site2pdf.NewReporter(&lineSink{w: progress, prefix: hostOf(u)}, logger)
	dir, art, err := pool.RenderIn(jobCtx, site2pdf.RenderJob{URL: u, FileName: name, Progress: reporter}, ws.Allocate)
	if dir != "" {
		defer ws.Reclaim(dir)
	}
	if err != nil {
		res.err = err
		return res
	}

	dst := filepath.Join(outDir, filepath.Base(art.Path))
	if err := moveFile(art.Path, dst); err != nil {
		res.err = fmt.Errorf("saving PDF: %w", err)
		return res
	}
	res.path, res.art = dst, art
	return res
}

// randomTemplate resolves a category by display name or slug and picks a template.
func randomTemplate(ctx context.Context, category, baseURL string, timeout time.Duration, ua string, logger *zap.Logger) (string, error) {
	cat, ok := catalog.ByName(category)
	if !ok {
		cat, ok = catalog.BySlug(category)
	}
	if !ok {
		return "", fmt.Errorf("%w: %q", catalog.ErrUnknownCategory, category)
	}

	opts := []catalog.Option{catalog.WithTimeout(timeout), catalog.WithLogger(logger)}
	if ua != "" {
		opts = append(opts, catalog.WithUserAgent(ua))
	}
	client, err := catalog.New(baseURL, opts...)
	if err != nil {
		return "", err
	}
	return client.Random(ctx, cat.Slug)
}

// lineSink prints each milestone on its own line. Nothing is removed.
type lineSink struct {
	mu     sync.Mutex
	w      io.Writer
	prefix string
}

func (s *lineSink) Show(_ context.Context, text string) (site2pdf.MessageHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.w, "[%s] %s\n", s.prefix, text)
	return nil, err
}

func (s *lineSink) Remove(context.Context, site2pdf.MessageHandle) error { return nil }

// Compile-time interface check.
var _ site2pdf.ProgressSink = (*lineSink)(nil)

func hostOf(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		return u.Host
	}
	return raw
}

// moveFile renames src to dst, copying when they sit on different filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src) // #nosec G304 -- path produced by the renderer
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644) // #nosec G302,G304 -- user-chosen output
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
