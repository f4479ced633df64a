package site2pdf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alnah/go-site2pdf/internal/fileutil"
)

// Workspace defaults.
const (
	DefaultRetention     = 30 * time.Minute
	DefaultSweepInterval = time.Minute

	workspacePrefix = "job-"
)

// WorkspaceOption configures a Workspace.
type WorkspaceOption func(*Workspace)

// WithRetention sets how old a job directory must be before Sweep removes it.
func WithRetention(d time.Duration) WorkspaceOption {
	return func(w *Workspace) {
		if d > 0 {
			w.retention = d
		}
	}
}

// WithSweepInterval sets how often Run sweeps.
func WithSweepInterval(d time.Duration) WorkspaceOption {
	return func(w *Workspace) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWorkspaceLogger sets the structured logger.
func WithWorkspaceLogger(l *zap.Logger) WorkspaceOption {
	return func(w *Workspace) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithReclaimCounter is called with the number of directories each removal pass deletes.
func WithReclaimCounter(fn func(n int)) WorkspaceOption {
	return func(w *Workspace) {
		w.onReclaim = fn
	}
}

// withClock replaces time.Now for tests.
func withClock(now func() time.Time) WorkspaceOption {
	return func(w *Workspace) {
		w.now = now
	}
}

// Workspace allocates one directory per job under a root and reclaims them.
//
// Directories are reclaimed three ways: immediately (Reclaim), after a grace
// delay (ReclaimAfter, executed by the next Sweep past the deadline), or by
// age once older than the retention window. Age uses the allocation time for
// directories this Workspace created and the on-disk modification time for
// anything else under root that looks like a job directory.
type Workspace struct {
	root      string
	retention time.Duration
	interval  time.Duration
	logger    *zap.Logger
	onReclaim func(n int)
	now       func() time.Time

	mu      sync.Mutex
	created map[string]time.Time // dir -> allocation time
	due     map[string]time.Time // dir -> scheduled reclaim time
}

// NewWorkspace creates root if needed and returns a Workspace rooted there.
func NewWorkspace(root string, opts ...WorkspaceOption) (*Workspace, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: empty root", ErrWorkspace)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWorkspace, err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWorkspace, err)
	}

	w := &Workspace{
		root:      abs,
		retention: DefaultRetention,
		interval:  DefaultSweepInterval,
		logger:    zap.NewNop(),
		now:       time.Now,
		created:   make(map[string]time.Time),
		due:       make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Root returns the absolute workspace root.
func (w *Workspace) Root() string {
	return w.root
}

// Allocate creates a fresh job directory and returns its path.
func (w *Workspace) Allocate() (string, error) {
	dir := filepath.Join(w.root, workspacePrefix+uuid.NewString())
	if err := os.Mkdir(dir, 0o750); err != nil {
		return "", fmt.Errorf("%w: %v", ErrWorkspace, err)
	}

	w.mu.Lock()
	w.created[dir] = w.now()
	w.mu.Unlock()

	w.logger.Debug("workspace allocated", zap.String("dir", dir))
	return dir, nil
}

// Reclaim removes dir and everything in it. Failures are logged, not returned.
func (w *Workspace) Reclaim(dir string) {
	if w.remove(dir, "explicit") {
		w.count(1)
	}
}

// ReclaimAfter schedules dir for removal once grace has elapsed.
// The removal happens on the first Sweep at or after the deadline.
func (w *Workspace) ReclaimAfter(dir string, grace time.Duration) {
	if !w.owns(dir) {
		w.logger.Warn("refusing to schedule reclaim outside workspace root", zap.String("dir", dir))
		return
	}
	w.mu.Lock()
	w.due[filepath.Clean(dir)] = w.now().Add(grace)
	w.mu.Unlock()
}

// Pending returns how many directories are waiting for a scheduled reclaim.
func (w *Workspace) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.due)
}

// Sweep removes directories whose scheduled reclaim is due and any job
// directory older than the retention window. Returns the number removed.
func (w *Workspace) Sweep(now time.Time) int {
	removed := 0

	w.mu.Lock()
	var due []string
	for dir, at := range w.due {
		if !now.Before(at) {
			due = append(due, dir)
		}
	}
	w.mu.Unlock()

	for _, dir := range due {
		if w.remove(dir, "scheduled") {
			removed++
		}
	}

	entries, err := os.ReadDir(w.root)
	if err != nil {
		w.logger.Warn("workspace sweep: reading root", zap.Error(err))
		w.count(removed)
		return removed
	}
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), workspacePrefix) {
			continue
		}
		dir := filepath.Join(w.root, e.Name())
		born, ok := w.allocatedAt(dir)
		if !ok {
			info, err := e.Info()
			if err != nil {
				continue
			}
			born = info.ModTime()
		}
		if now.Sub(born) < w.retention {
			continue
		}
		if w.remove(dir, "expired") {
			removed++
		}
	}

	w.count(removed)
	return removed
}

// Run sweeps every interval until ctx ends, then performs a final sweep of
// due reclaims so scheduled work is not lost on shutdown.
func (w *Workspace) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.Sweep(w.now())
			return
		case <-ticker.C:
			if n := w.Sweep(w.now()); n > 0 {
				w.logger.Info("workspace sweep", zap.Int("removed", n))
			}
		}
	}
}

func (w *Workspace) remove(dir, reason string) bool {
	dir = filepath.Clean(dir)
	if !w.owns(dir) {
		w.logger.Warn("refusing to reclaim outside workspace root",
			zap.String("dir", dir), zap.String("root", w.root))
		return false
	}

	w.mu.Lock()
	delete(w.created, dir)
	delete(w.due, dir)
	w.mu.Unlock()

	if _, err := os.Lstat(dir); os.IsNotExist(err) {
		return false
	}
	if err := os.RemoveAll(dir); err != nil {
		w.logger.Warn("workspace reclaim failed",
			zap.String("dir", dir), zap.String("reason", reason), zap.Error(err))
		return false
	}
	w.logger.Debug("workspace reclaimed", zap.String("dir", dir), zap.String("reason", reason))
	return true
}

// owns reports whether dir is a job directory strictly inside root.
func (w *Workspace) owns(dir string) bool {
	dir = filepath.Clean(dir)
	return dir != w.root &&
		fileutil.IsWithin(w.root, dir) &&
		filepath.Dir(dir) == w.root &&
		strings.HasPrefix(filepath.Base(dir), workspacePrefix)
}

func (w *Workspace) allocatedAt(dir string) (time.Time, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	t, ok := w.created[dir]
	return t, ok
}

func (w *Workspace) count(n int) {
	if n > 0 && w.onReclaim != nil {
		w.onReclaim(n)
	}
}
