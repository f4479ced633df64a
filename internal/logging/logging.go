// Package logging builds the process-wide zap logger.
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Output formats.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// ErrInvalidFormat indicates an unknown log format.
var ErrInvalidFormat = errors.New("invalid log format")

// Options configures New.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // json or console
	File   string // rotate into this file instead of writing to Stderr

	MaxSizeMB  int // per file before rotation
	MaxBackups int
	MaxAgeDays int

	// Stderr receives logs when File is empty. Defaults to os.Stderr.
	Stderr io.Writer
}

// New returns a logger and a flush function to defer.
func New(opts Options) (*zap.Logger, func(), error) {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(opts.Level))); err != nil {
			return nil, nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
	}

	encCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var enc zapcore.Encoder
	switch strings.ToLower(opts.Format) {
	case "", FormatJSON:
		enc = zapcore.NewJSONEncoder(encCfg)
	case FormatConsole:
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	default:
		return nil, nil, fmt.Errorf("%w: %q (use json or console)", ErrInvalidFormat, opts.Format)
	}

	var sink zapcore.WriteSyncer
	var closer io.Closer
	if opts.File != "" {
		lj := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    orDefault(opts.MaxSizeMB, 10),
			MaxBackups: orDefault(opts.MaxBackups, 5),
			MaxAge:     orDefault(opts.MaxAgeDays, 14),
			Compress:   true,
		}
		sink, closer = zapcore.AddSync(lj), lj
	} else {
		w := opts.Stderr
		if w == nil {
			w = os.Stderr
		}
		sink = zapcore.AddSync(w)
	}

	logger := zap.New(zapcore.NewCore(enc, sink, level),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel))

	flush := func() {
		_ = logger.Sync()
		if closer != nil {
			_ = closer.Close()
		}
	}
	return logger, flush, nil
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
