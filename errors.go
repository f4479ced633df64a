package site2pdf

import "errors"

// Sentinel errors for library operations.
var (
	ErrBrowserConnect = errors.New("failed to connect to browser")
	ErrPageCreate     = errors.New("failed to create browser page")
	ErrNavigation     = errors.New("page failed to load")
	ErrCapture        = errors.New("band capture failed")
	ErrStitch         = errors.New("image stitching failed")
	ErrEmit           = errors.New("PDF emission failed")

	// Job validation errors.
	ErrInvalidURL      = errors.New("invalid target URL")
	ErrInvalidViewport = errors.New("invalid viewport")
	ErrInvalidOverlap  = errors.New("invalid overlap")

	// Workspace errors.
	ErrWorkspace = errors.New("workspace error")

	// Pool errors.
	ErrPoolClosed = errors.New("renderer pool is closed")
)
