package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/alnah/go-site2pdf/internal/config"
)

// errUsage marks invalid command-line input.
var errUsage = errors.New("invalid usage")

// errHelpShown is returned when -h/--help printed the flag list.
var errHelpShown = flag.ErrHelp

// commonFlags holds flags shared across commands.
type commonFlags struct {
	config  string
	quiet   bool
	verbose bool
}

// browserFlags holds flags that shape every render.
type browserFlags struct {
	workers    int
	timeout    string
	viewport   string
	overlap    int
	style      string
	browserBin string
	noSandbox  bool
}

// renderFlags holds all flags for the render command.
type renderFlags struct {
	common   commonFlags
	browser  browserFlags
	output   string
	name     string
	category string
}

// botFlags holds all flags for the bot command.
type botFlags struct {
	common      commonFlags
	browser     browserFlags
	token       string
	operator    int64
	store       string
	metricsAddr string
}

// addCommonFlags adds common flags to a FlagSet.
func addCommonFlags(fs *flag.FlagSet, f *commonFlags) {
	fs.StringVarP(&f.config, "config", "c", "", "config file name or path")
	fs.BoolVarP(&f.quiet, "quiet", "q", false, "only show errors")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "show debug logs")
}

// addBrowserFlags adds render tuning flags to a FlagSet.
func addBrowserFlags(fs *flag.FlagSet, f *browserFlags) {
	fs.IntVarP(&f.workers, "workers", "w", 0, "concurrent browsers (0 = auto)")
	fs.StringVarP(&f.timeout, "timeout", "t", "", "per-job timeout (e.g., 90s, 5m)")
	fs.StringVar(&f.viewport, "viewport", "", "viewport as WIDTHxHEIGHT (e.g., 1920x1080)")
	fs.IntVar(&f.overlap, "overlap", -1, "pixels shared by consecutive bands")
	fs.StringVar(&f.style, "style", "", "override stylesheet: name, file path, or none")
	fs.StringVar(&f.browserBin, "browser", "", "path to an installed Chrome/Chromium")
	fs.BoolVar(&f.noSandbox, "no-sandbox", false, "disable the Chrome sandbox")
}

// parseRenderFlags parses render command flags and returns the URLs.
func parseRenderFlags(args []string) (*renderFlags, []string, error) {
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {} // printRenderUsage is shown instead
	f := &renderFlags{}

	fs.StringVarP(&f.output, "output", "o", ".", "output directory")
	fs.StringVarP(&f.name, "name", "n", "", "PDF file name (single URL only)")
	fs.StringVar(&f.category, "category", "", "render a random template from this category")
	addCommonFlags(fs, &f.common)
	addBrowserFlags(fs, &f.browser)

	if err := fs.Parse(args); err != nil {
		return nil, nil, parseError(err)
	}
	return f, fs.Args(), nil
}

// parseBotFlags parses bot command flags.
func parseBotFlags(args []string) (*botFlags, error) {
	fs := flag.NewFlagSet("bot", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}
	f := &botFlags{}

	fs.StringVar(&f.token, "token", "", "chat API token (prefer SITE2PDF_BOT_TOKEN)")
	fs.Int64Var(&f.operator, "operator", 0, "chat ID that receives contact requests")
	fs.StringVar(&f.store, "store", "", "session store: memory or redis")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	addCommonFlags(fs, &f.common)
	addBrowserFlags(fs, &f.browser)

	if err := fs.Parse(args); err != nil {
		return nil, parseError(err)
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("%w: bot takes no arguments, got %q", errUsage, fs.Args())
	}
	return f, nil
}

// parseError keeps ErrHelp intact and tags everything else as usage.
func parseError(err error) error {
	if errors.Is(err, flag.ErrHelp) {
		return err
	}
	return fmt.Errorf("%w: %v", errUsage, err)
}

// apply overrides cfg with the flags that were set.
func (f *browserFlags) apply(cfg *config.Config) error {
	if f.workers > 0 {
		cfg.Render.Workers = f.workers
	}
	if f.timeout != "" {
		d, err := time.ParseDuration(f.timeout)
		if err != nil || d <= 0 {
			return fmt.Errorf("%w: --timeout %q is not a positive duration", errUsage, f.timeout)
		}
		cfg.Render.JobTimeout = config.Duration(d)
	}
	if f.viewport != "" {
		w, h, err := parseViewport(f.viewport)
		if err != nil {
			return err
		}
		cfg.Render.ViewportWidth, cfg.Render.ViewportHeight = w, h
	}
	if f.overlap >= 0 {
		cfg.Render.Overlap = f.overlap
	}
	if f.style != "" {
		cfg.Render.OverridesCSS = f.style
	}
	if f.browserBin != "" {
		cfg.Render.BrowserBin = f.browserBin
	}
	if f.noSandbox {
		cfg.Render.NoSandbox = true
	}
	return nil
}

// parseViewport reads "1920x1080".
func parseViewport(s string) (int, int, error) {
	parts := strings.SplitN(strings.ToLower(s), "x", 2)
	if len(parts) == 2 {
		w, errW := strconv.Atoi(parts[0])
		h, errH := strconv.Atoi(parts[1])
		if errW == nil && errH == nil && w > 0 && h > 0 {
			return w, h, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: --viewport %q, want WIDTHxHEIGHT", errUsage, s)
}
