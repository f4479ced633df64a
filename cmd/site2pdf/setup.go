package main

import (
	"errors"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	site2pdf "github.com/alnah/go-site2pdf"
	"github.com/alnah/go-site2pdf/internal/assets"
	"github.com/alnah/go-site2pdf/internal/config"
	"github.com/alnah/go-site2pdf/internal/hints"
	"github.com/alnah/go-site2pdf/internal/logging"
)

// loadConfig builds the effective configuration before command flags:
// --config (or SITE2PDF_CONFIG) on top of defaults, then the environment.
func loadConfig(f commonFlags) (*config.Config, error) {
	env := loadEnvConfig()

	name := f.config
	if name == "" {
		name = env.ConfigPath
	}

	cfg := config.DefaultConfig()
	if name != "" {
		loaded, err := config.LoadConfig(name)
		if err != nil {
			if errors.Is(err, config.ErrConfigNotFound) {
				return nil, withHint(err, hints.ForConfigNotFound(configCandidates(name)))
			}
			return nil, err
		}
		cfg = loaded
	}

	applyEnvConfig(env, cfg)
	return cfg, nil
}

// configCandidates lists where a config name would be looked up.
func configCandidates(name string) []string {
	paths := []string{name + ".yaml", name + ".yml"}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "go-site2pdf", name+".yaml"))
	}
	return paths
}

// newLogger builds the zap logger for a command. Verbose forces debug and
// quiet forces error; otherwise fallback applies unless a log file is set.
func newLogger(cfg *config.Config, f commonFlags, fallback string, env *Environment) (*zap.Logger, func(), error) {
	opts := logging.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Stderr:     env.Stderr,
	}
	switch {
	case f.verbose:
		opts.Level = "debug"
	case f.quiet:
		opts.Level = "error"
	case fallback != "" && opts.File == "":
		opts.Level = fallback
	}
	return logging.New(opts)
}

// resolveStyle turns render.overridesCSS into stylesheet text, looking in
// render.stylesDir before the embedded styles.
func resolveStyle(rc config.RenderConfig) (string, error) {
	r, err := assets.NewResolver(rc.StylesDir)
	if err != nil {
		return "", err
	}
	css, err := r.ResolveStylesheet(rc.OverridesCSS)
	if errors.Is(err, assets.ErrStyleNotFound) {
		return "", withHint(err, hints.ForStyleNotFound(assets.Styles()))
	}
	return css, err
}

// rendererOptions maps the render section onto renderer options.
func rendererOptions(cfg *config.Config, css string, logger *zap.Logger, observer site2pdf.Observer) []site2pdf.Option {
	r := cfg.Render
	opts := []site2pdf.Option{
		site2pdf.WithViewport(r.ViewportWidth, r.ViewportHeight),
		site2pdf.WithOverlap(r.Overlap),
		site2pdf.WithNavigationTimeout(r.NavigationTimeout.D()),
		site2pdf.WithSettleDelay(r.SettleDelay.D()),
		site2pdf.WithScrollDelay(r.ScrollDelay.D()),
		site2pdf.WithOverridesCSS(css),
		site2pdf.WithBrowserBin(r.BrowserBin),
		site2pdf.WithNoSandbox(r.NoSandbox),
		site2pdf.WithLogger(logger),
	}
	if observer != nil {
		opts = append(opts, site2pdf.WithObserver(observer))
	}
	return opts
}

// newWorkspace opens the job directory root from the workspace section.
func newWorkspace(cfg *config.Config, logger *zap.Logger, opts ...site2pdf.WorkspaceOption) (*site2pdf.Workspace, error) {
	base := []site2pdf.WorkspaceOption{
		site2pdf.WithRetention(cfg.Workspace.Retention.D()),
		site2pdf.WithSweepInterval(cfg.Workspace.SweepInterval.D()),
		site2pdf.WithWorkspaceLogger(logger),
	}
	ws, err := site2pdf.NewWorkspace(cfg.WorkspaceRoot(), append(base, opts...)...)
	if err != nil {
		return nil, withHint(err, hints.ForOutputDirectory())
	}
	return ws, nil
}
