package main

import (
	"errors"
	"os"

	site2pdf "github.com/alnah/go-site2pdf"
	"github.com/alnah/go-site2pdf/internal/assets"
	"github.com/alnah/go-site2pdf/internal/bot"
	"github.com/alnah/go-site2pdf/internal/catalog"
	"github.com/alnah/go-site2pdf/internal/config"
	"github.com/alnah/go-site2pdf/internal/logging"
	"github.com/alnah/go-site2pdf/internal/store"
)

// Exit codes for the site2pdf CLI.
// Follows Unix conventions: 0=success, 1=general, 2=usage, and custom codes < 126.
const (
	ExitSuccess = 0 // Command completed
	ExitGeneral = 1 // General/unexpected error
	ExitUsage   = 2 // Invalid flags, config, or validation
	ExitIO      = 3 // File not found, permission denied, workspace
	ExitBrowser = 4 // Browser/Chrome errors
)

// exitCodeFor returns the appropriate exit code for an error.
// It uses errors.Is to check wrapped errors, so callers must use fmt.Errorf("%w", err).
func exitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}

	// Browser errors (exit 4)
	if errors.Is(err, site2pdf.ErrBrowserConnect) ||
		errors.Is(err, site2pdf.ErrPageCreate) ||
		errors.Is(err, site2pdf.ErrNavigation) ||
		errors.Is(err, site2pdf.ErrCapture) {
		return ExitBrowser
	}

	// I/O errors (exit 3)
	if errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, os.ErrPermission) ||
		errors.Is(err, site2pdf.ErrWorkspace) ||
		errors.Is(err, site2pdf.ErrStitch) ||
		errors.Is(err, site2pdf.ErrEmit) ||
		errors.Is(err, assets.ErrAssetRead) {
		return ExitIO
	}

	// Usage/config/validation errors (exit 2)
	if errors.Is(err, errUsage) ||
		errors.Is(err, config.ErrConfigNotFound) ||
		errors.Is(err, config.ErrConfigParse) ||
		errors.Is(err, config.ErrInvalidValue) ||
		errors.Is(err, config.ErrMissingToken) ||
		errors.Is(err, site2pdf.ErrInvalidURL) ||
		errors.Is(err, site2pdf.ErrInvalidViewport) ||
		errors.Is(err, site2pdf.ErrInvalidOverlap) ||
		errors.Is(err, assets.ErrStyleNotFound) ||
		errors.Is(err, assets.ErrInvalidAssetName) ||
		errors.Is(err, assets.ErrInvalidBasePath) ||
		errors.Is(err, store.ErrUnknownBackend) ||
		errors.Is(err, logging.ErrInvalidFormat) ||
		errors.Is(err, catalog.ErrUnknownCategory) ||
		errors.Is(err, bot.ErrRejected) {
		return ExitUsage
	}

	return ExitGeneral
}

// hintedError carries an actionable hint alongside the error.
type hintedError struct {
	err  error
	hint string
}

func (e *hintedError) Error() string { return e.err.Error() }
func (e *hintedError) Unwrap() error { return e.err }
func (e *hintedError) Hint() string  { return e.hint }

// withHint attaches hint to err. A nil err stays nil.
func withHint(err error, hint string) error {
	if err == nil || hint == "" {
		return err
	}
	return &hintedError{err: err, hint: hint}
}
