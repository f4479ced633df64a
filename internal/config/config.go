// Package config loads the YAML configuration for the renderer, the bot and
// their supporting services.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/alnah/go-site2pdf/internal/yamlutil"
)

// Sentinel errors for config operations.
var (
	ErrConfigNotFound  = errors.New("config file not found")
	ErrEmptyConfigName = errors.New("config name cannot be empty")
	ErrConfigParse     = errors.New("failed to parse config")
	ErrInvalidValue    = errors.New("invalid config value")
	ErrMissingToken    = errors.New("bot token is required")
)

// appDir is the directory name under the user config dir.
const appDir = "go-site2pdf"

// Duration is a time.Duration written as "80s" or "5m" in YAML.
// A bare integer is read as seconds.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" {
		*d = 0
		return nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		*d = Duration(time.Duration(n) * time.Second)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q", s)
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// Config holds the whole application configuration.
type Config struct {
	Render    RenderConfig    `yaml:"render"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	Bot       BotConfig       `yaml:"bot"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Store     StoreConfig     `yaml:"store"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
}

// RenderConfig tunes the capture pipeline.
type RenderConfig struct {
	ViewportWidth     int      `yaml:"viewportWidth"`
	ViewportHeight    int      `yaml:"viewportHeight"`
	Overlap           int      `yaml:"overlap"`
	NavigationTimeout Duration `yaml:"navigationTimeout"`
	SettleDelay       Duration `yaml:"settleDelay"`
	ScrollDelay       Duration `yaml:"scrollDelay"`
	JobTimeout        Duration `yaml:"jobTimeout"`
	OverridesCSS      string   `yaml:"overridesCSS"` // style name, file path, or "none"
	StylesDir         string   `yaml:"stylesDir"`    // holds styles/<name>.css, searched before embedded
	Workers           int      `yaml:"workers"`      // 0 = auto
	BrowserBin        string   `yaml:"browserBin"`
	NoSandbox         bool     `yaml:"noSandbox"`
}

// WorkspaceConfig controls job directories.
type WorkspaceConfig struct {
	Root          string   `yaml:"root"` // empty = <tmp>/site2pdf
	Retention     Duration `yaml:"retention"`
	Grace         Duration `yaml:"grace"`
	SweepInterval Duration `yaml:"sweepInterval"`
}

// BotConfig configures the chat front end.
type BotConfig struct {
	Token          string         `yaml:"token"`
	OperatorChatID int64          `yaml:"operatorChatID"`
	PollTimeout    Duration       `yaml:"pollTimeout"`
	RateLimit      float64        `yaml:"rateLimit"` // renders per minute per user
	RateBurst      int            `yaml:"rateBurst"`
	SessionTTL     Duration       `yaml:"sessionTTL"`
	HistoryLimit   int            `yaml:"historyLimit"`
	Delivery       DeliveryConfig `yaml:"delivery"`
}

// DeliveryConfig is the PDF send retry policy.
type DeliveryConfig struct {
	Attempts  int      `yaml:"attempts"`
	BaseDelay Duration `yaml:"baseDelay"`
}

// CatalogConfig points at the template gallery.
type CatalogConfig struct {
	BaseURL   string   `yaml:"baseURL"`
	Timeout   Duration `yaml:"timeout"`
	UserAgent string   `yaml:"userAgent"`
}

// StoreConfig selects the session store backend.
type StoreConfig struct {
	Backend string      `yaml:"backend"` // memory | redis
	MaxKeys int         `yaml:"maxKeys"`
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig is used when Backend is "redis".
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// MetricsConfig exposes Prometheus metrics; empty Addr disables the endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig configures zap.
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // console | json
	File       string `yaml:"file"`   // empty = stderr only
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	return &Config{
		Render: RenderConfig{
			ViewportWidth:     1920,
			ViewportHeight:    1080,
			Overlap:           10,
			NavigationTimeout: Duration(80 * time.Second),
			SettleDelay:       Duration(5 * time.Second),
			ScrollDelay:       Duration(time.Second),
			JobTimeout:        Duration(1000 * time.Second),
		},
		Workspace: WorkspaceConfig{
			Retention:     Duration(30 * time.Minute),
			Grace:         Duration(30 * time.Second),
			SweepInterval: Duration(time.Minute),
		},
		Bot: BotConfig{
			PollTimeout:  Duration(60 * time.Second),
			RateLimit:    6,
			RateBurst:    3,
			SessionTTL:   Duration(7 * 24 * time.Hour),
			HistoryLimit: 50,
			Delivery: DeliveryConfig{
				Attempts:  3,
				BaseDelay: Duration(2 * time.Second),
			},
		},
		Catalog: CatalogConfig{
			BaseURL: "https://webflow.com",
			Timeout: Duration(30 * time.Second),
		},
		Store: StoreConfig{
			Backend: "memory",
			Redis:   RedisConfig{Addr: "localhost:6379", Prefix: "site2pdf:"},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// ApplyDefaults replaces zero-valued fields with their DefaultConfig value.
// Zero therefore means "default"; a negative workspace.grace reclaims right
// after delivery.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()

	setInt(&c.Render.ViewportWidth, d.Render.ViewportWidth)
	setInt(&c.Render.ViewportHeight, d.Render.ViewportHeight)
	setInt(&c.Render.Overlap, d.Render.Overlap)
	setDur(&c.Render.NavigationTimeout, d.Render.NavigationTimeout)
	setDur(&c.Render.SettleDelay, d.Render.SettleDelay)
	setDur(&c.Render.ScrollDelay, d.Render.ScrollDelay)
	setDur(&c.Render.JobTimeout, d.Render.JobTimeout)

	setDur(&c.Workspace.Retention, d.Workspace.Retention)
	setDur(&c.Workspace.Grace, d.Workspace.Grace)
	setDur(&c.Workspace.SweepInterval, d.Workspace.SweepInterval)

	setDur(&c.Bot.PollTimeout, d.Bot.PollTimeout)
	if c.Bot.RateLimit == 0 {
		c.Bot.RateLimit = d.Bot.RateLimit
	}
	setInt(&c.Bot.RateBurst, d.Bot.RateBurst)
	setDur(&c.Bot.SessionTTL, d.Bot.SessionTTL)
	setInt(&c.Bot.HistoryLimit, d.Bot.HistoryLimit)
	setInt(&c.Bot.Delivery.Attempts, d.Bot.Delivery.Attempts)
	setDur(&c.Bot.Delivery.BaseDelay, d.Bot.Delivery.BaseDelay)

	setStr(&c.Catalog.BaseURL, d.Catalog.BaseURL)
	setDur(&c.Catalog.Timeout, d.Catalog.Timeout)

	setStr(&c.Store.Backend, d.Store.Backend)
	setStr(&c.Store.Redis.Addr, d.Store.Redis.Addr)
	setStr(&c.Store.Redis.Prefix, d.Store.Redis.Prefix)

	setStr(&c.Log.Level, d.Log.Level)
	setStr(&c.Log.Format, d.Log.Format)
}

func setInt(v *int, def int) {
	if *v == 0 {
		*v = def
	}
}

func setDur(v *Duration, def Duration) {
	if *v == 0 {
		*v = def
	}
}

func setStr(v *string, def string) {
	if *v == "" {
		*v = def
	}
}

// WorkspaceRoot resolves the configured root, defaulting under the temp dir.
func (c *Config) WorkspaceRoot() string {
	if c.Workspace.Root != "" {
		return c.Workspace.Root
	}
	return filepath.Join(os.TempDir(), "site2pdf")
}

// Validate checks ranges and enumerations. It does not require a bot token;
// see ValidateBot.
func (c *Config) Validate() error {
	r := c.Render
	if r.ViewportWidth <= 0 || r.ViewportHeight <= 0 {
		return fmt.Errorf("%w: render.viewport must be positive, got %dx%d", ErrInvalidValue, r.ViewportWidth, r.ViewportHeight)
	}
	if r.Overlap < 0 || r.Overlap >= r.ViewportHeight {
		return fmt.Errorf("%w: render.overlap must be in [0, %d), got %d", ErrInvalidValue, r.ViewportHeight, r.Overlap)
	}
	for name, d := range map[string]Duration{
		"render.navigationTimeout": r.NavigationTimeout,
		"render.jobTimeout":        r.JobTimeout,
		"workspace.sweepInterval":  c.Workspace.SweepInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalidValue, name)
		}
	}
	for name, d := range map[string]Duration{
		"render.settleDelay":  r.SettleDelay,
		"render.scrollDelay":  r.ScrollDelay,
		"workspace.retention": c.Workspace.Retention,
	} {
		if d < 0 {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidValue, name)
		}
	}
	// A job directory must outlive the longest job plus its delivery grace,
	// or the sweep removes it mid-render.
	if ret := c.Workspace.Retention.D(); ret > 0 {
		if floor := r.JobTimeout.D() + max(c.Workspace.Grace.D(), 0); ret <= floor {
			return fmt.Errorf("%w: workspace.retention %s must exceed render.jobTimeout plus workspace.grace (%s)", ErrInvalidValue, ret, floor)
		}
	}
	if r.Workers < 0 {
		return fmt.Errorf("%w: render.workers must not be negative, got %d", ErrInvalidValue, r.Workers)
	}

	if c.Bot.RateLimit < 0 || c.Bot.RateBurst < 0 || c.Bot.HistoryLimit < 0 || c.Bot.Delivery.Attempts < 0 {
		return fmt.Errorf("%w: bot limits must not be negative", ErrInvalidValue)
	}

	if c.Catalog.BaseURL != "" {
		u, err := url.Parse(c.Catalog.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: catalog.baseURL %q is not an http(s) URL", ErrInvalidValue, c.Catalog.BaseURL)
		}
	}

	switch c.Store.Backend {
	case "", "memory":
	case "redis":
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("%w: store.redis.addr is required for the redis backend", ErrInvalidValue)
		}
	default:
		return fmt.Errorf("%w: store.backend must be memory or redis, got %q", ErrInvalidValue, c.Store.Backend)
	}

	switch strings.ToLower(c.Log.Format) {
	case "", "console", "json":
	default:
		return fmt.Errorf("%w: log.format must be console or json, got %q", ErrInvalidValue, c.Log.Format)
	}
	return nil
}

// ValidateBot checks settings only the bot command needs. A zero
// bot.operatorChatID is allowed; contact requests then fail with a message.
func (c *Config) ValidateBot() error {
	if strings.TrimSpace(c.Bot.Token) == "" {
		return ErrMissingToken
	}
	if strings.ContainsAny(c.Bot.Token, " \t\r\n") {
		return fmt.Errorf("%w: bot.token contains whitespace", ErrInvalidValue)
	}
	return nil
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() *Config {
	cp := *c
	if cp.Bot.Token != "" {
		cp.Bot.Token = "***"
	}
	if cp.Store.Redis.Password != "" {
		cp.Store.Redis.Password = "***"
	}
	return &cp
}

// Marshal renders the config as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yamlutil.Marshal(c)
}

// LoadConfig loads configuration from a file path or config name and fills
// unset fields from DefaultConfig. If nameOrPath contains a path separator, it's treated as a
// file path. Otherwise it's searched in standard locations.
// Returns error if the file is not found (no silent fallback).
func LoadConfig(nameOrPath string) (*Config, error) {
	if nameOrPath == "" {
		return nil, ErrEmptyConfigName
	}

	configPath := nameOrPath
	if !isFilePath(nameOrPath) {
		var err error
		configPath, err = resolveConfigPath(nameOrPath)
		if err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := yamlutil.UnmarshalFileStrict(configPath, cfg); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, configPath)
		}
		return nil, fmt.Errorf("%w: %v", ErrConfigParse, err)
	}
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// isFilePath returns true if the string looks like a file path.
func isFilePath(s string) bool {
	return strings.ContainsAny(s, "/\\")
}

// resolveConfigPath searches for a config file by name in standard locations.
// Tries extensions in order: .yaml, .yml
// Tries locations in order: current directory, <user config dir>/go-site2pdf/
func resolveConfigPath(name string) (string, error) {
	extensions := []string{".yaml", ".yml"}
	triedPaths := make([]string, 0, len(extensions)*2)

	for _, ext := range extensions {
		localPath := name + ext
		if fileExists(localPath) {
			return localPath, nil
		}
		triedPaths = append(triedPaths, localPath)
	}

	if userConfigDir, err := os.UserConfigDir(); err == nil {
		for _, ext := range extensions {
			userPath := filepath.Join(userConfigDir, appDir, name+ext)
			if fileExists(userPath) {
				return userPath, nil
			}
			triedPaths = append(triedPaths, userPath)
		}
	}

	return "", fmt.Errorf("%w: tried %s", ErrConfigNotFound, strings.Join(triedPaths, ", "))
}

// fileExists returns true if the path exists and is a regular file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
