package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alnah/go-site2pdf/internal/config"
)

// envConfig holds configuration from environment variables.
// Provides container-friendly overrides without requiring YAML files.
type envConfig struct {
	// Tier 1 - Essential
	ConfigPath     string        // SITE2PDF_CONFIG: config file name or path
	BotToken       string        // SITE2PDF_BOT_TOKEN: chat API token
	OperatorChatID int64         // SITE2PDF_OPERATOR_CHAT_ID: contact requests go here
	Timeout        time.Duration // SITE2PDF_TIMEOUT: per-job timeout

	// Tier 2 - Browser and rendering
	BrowserBin string // SITE2PDF_BROWSER_BIN: installed Chrome
	StylesDir  string // SITE2PDF_STYLES_DIR: custom styles directory
	NoSandbox  bool   // SITE2PDF_NO_SANDBOX: "1" disables the sandbox
	Workers    int    // SITE2PDF_WORKERS: concurrent browsers
	Workspace  string // SITE2PDF_WORKSPACE: job directory root

	// Tier 3 - Services
	StoreBackend  string // SITE2PDF_STORE: memory or redis
	RedisAddr     string // SITE2PDF_REDIS_ADDR
	RedisPassword string // SITE2PDF_REDIS_PASSWORD
	MetricsAddr   string // SITE2PDF_METRICS_ADDR: e.g. :9090
	LogLevel      string // SITE2PDF_LOG_LEVEL
	LogFormat     string // SITE2PDF_LOG_FORMAT
}

// knownEnvVars lists valid SITE2PDF_* environment variables.
// Used to detect typos and warn users about unknown variables.
var knownEnvVars = map[string]bool{
	// Tier 1
	"SITE2PDF_CONFIG":           true,
	"SITE2PDF_BOT_TOKEN":        true,
	"SITE2PDF_OPERATOR_CHAT_ID": true,
	"SITE2PDF_TIMEOUT":          true,
	// Tier 2
	"SITE2PDF_BROWSER_BIN": true,
	"SITE2PDF_STYLES_DIR":  true,
	"SITE2PDF_NO_SANDBOX":  true,
	"SITE2PDF_WORKERS":     true,
	"SITE2PDF_WORKSPACE":   true,
	// Tier 3
	"SITE2PDF_STORE":          true,
	"SITE2PDF_REDIS_ADDR":     true,
	"SITE2PDF_REDIS_PASSWORD": true,
	"SITE2PDF_METRICS_ADDR":   true,
	"SITE2PDF_LOG_LEVEL":      true,
	"SITE2PDF_LOG_FORMAT":     true,
	// Read by doctor and tests
	"SITE2PDF_CONTAINER":       true,
	"SITE2PDF_TEST_REDIS_ADDR": true,
}

// loadEnvConfig reads configuration from environment variables.
// Malformed numbers and durations are ignored.
func loadEnvConfig() *envConfig {
	cfg := &envConfig{
		ConfigPath:    os.Getenv("SITE2PDF_CONFIG"),
		BotToken:      os.Getenv("SITE2PDF_BOT_TOKEN"),
		BrowserBin:    os.Getenv("SITE2PDF_BROWSER_BIN"),
		StylesDir:     os.Getenv("SITE2PDF_STYLES_DIR"),
		NoSandbox:     os.Getenv("SITE2PDF_NO_SANDBOX") == "1",
		Workspace:     os.Getenv("SITE2PDF_WORKSPACE"),
		StoreBackend:  os.Getenv("SITE2PDF_STORE"),
		RedisAddr:     os.Getenv("SITE2PDF_REDIS_ADDR"),
		RedisPassword: os.Getenv("SITE2PDF_REDIS_PASSWORD"),
		MetricsAddr:   os.Getenv("SITE2PDF_METRICS_ADDR"),
		LogLevel:      os.Getenv("SITE2PDF_LOG_LEVEL"),
		LogFormat:     os.Getenv("SITE2PDF_LOG_FORMAT"),
	}

	if v := os.Getenv("SITE2PDF_OPERATOR_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.OperatorChatID = id
		}
	}
	if v := os.Getenv("SITE2PDF_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Timeout = d
		}
	}
	if v := os.Getenv("SITE2PDF_WORKERS"); v != "" {
		if w, err := strconv.Atoi(v); err == nil && w > 0 {
			cfg.Workers = w
		}
	}

	return cfg
}

// warnUnknownEnvVars logs warnings for unrecognized SITE2PDF_* variables.
// Helps catch typos like SITE2PDF_BOT_TOKN.
func warnUnknownEnvVars(w io.Writer) {
	for _, env := range os.Environ() {
		if strings.HasPrefix(env, "SITE2PDF_") {
			name := strings.SplitN(env, "=", 2)[0]
			if !knownEnvVars[name] {
				fmt.Fprintf(w, "warning: unknown environment variable %s (typo?)\n", name)
			}
		}
	}
}

// applyEnvConfig overlays set environment values onto cfg.
// The file has already been merged with defaults, so a set variable wins over
// both. CLI flags are applied afterwards.
// Precedence: CLI flags > env vars > config file > defaults.
func applyEnvConfig(env *envConfig, cfg *config.Config) {
	if env.BotToken != "" {
		cfg.Bot.Token = env.BotToken
	}
	if env.OperatorChatID != 0 {
		cfg.Bot.OperatorChatID = env.OperatorChatID
	}
	if env.Timeout > 0 {
		cfg.Render.JobTimeout = config.Duration(env.Timeout)
	}

	if env.BrowserBin != "" {
		cfg.Render.BrowserBin = env.BrowserBin
	}
	if env.StylesDir != "" {
		cfg.Render.StylesDir = env.StylesDir
	}
	if env.NoSandbox {
		cfg.Render.NoSandbox = true
	}
	if env.Workers > 0 {
		cfg.Render.Workers = env.Workers
	}
	if env.Workspace != "" {
		cfg.Workspace.Root = env.Workspace
	}

	if env.StoreBackend != "" {
		cfg.Store.Backend = env.StoreBackend
	}
	if env.RedisAddr != "" {
		cfg.Store.Redis.Addr = env.RedisAddr
	}
	if env.RedisPassword != "" {
		cfg.Store.Redis.Password = env.RedisPassword
	}
	if env.MetricsAddr != "" {
		cfg.Metrics.Addr = env.MetricsAddr
	}
	if env.LogLevel != "" {
		cfg.Log.Level = env.LogLevel
	}
	if env.LogFormat != "" {
		cfg.Log.Format = env.LogFormat
	}
}
