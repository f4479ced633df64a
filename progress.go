package site2pdf

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Milestone is a user-visible progress step.
type Milestone int

// Milestones in the order a render reaches them.
const (
	MilestoneQueued Milestone = iota
	MilestoneFetching
	MilestoneScrolling
	MilestoneCompositing
	MilestoneFinalizing
)

var milestoneText = map[Milestone]string{
	MilestoneQueued:      "Queued, waiting for a free renderer...",
	MilestoneFetching:    "Loading the page...",
	MilestoneScrolling:   "Capturing the page...",
	MilestoneCompositing: "Assembling the screenshot...",
	MilestoneFinalizing:  "Building the PDF...",
}

// String returns the status text shown to the user.
func (m Milestone) String() string {
	if s, ok := milestoneText[m]; ok {
		return s
	}
	return "Working..."
}

// MessageHandle identifies a shown status so it can be removed later.
type MessageHandle any

// ProgressSink displays and removes status messages, typically in a chat.
type ProgressSink interface {
	Show(ctx context.Context, text string) (MessageHandle, error)
	Remove(ctx context.Context, h MessageHandle) error
}

// Reporter keeps at most one live status message per job. Each Notify
// removes the previous message before showing the next one. Sink failures
// are logged and never returned. A nil *Reporter is a valid no-op.
type Reporter struct {
	sink   ProgressSink
	logger *zap.Logger

	mu   sync.Mutex
	last MessageHandle
	has  bool
	text func(Milestone) string
}

// NewReporter creates a Reporter writing to sink.
func NewReporter(sink ProgressSink, logger *zap.Logger) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{sink: sink, logger: logger, text: Milestone.String}
}

// WithText replaces the milestone wording (for example to localize it).
func (r *Reporter) WithText(fn func(Milestone) string) *Reporter {
	if r != nil && fn != nil {
		r.text = fn
	}
	return r
}

// Notify replaces the current status with m.
func (r *Reporter) Notify(ctx context.Context, m Milestone) {
	if r == nil || r.sink == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeLocked(ctx)

	h, err := r.sink.Show(ctx, r.text(m))
	if err != nil {
		r.logger.Warn("progress update failed", zap.Int("milestone", int(m)), zap.Error(err))
		return
	}
	r.last, r.has = h, true
}

// Clear removes the current status, if any.
func (r *Reporter) Clear(ctx context.Context) {
	if r == nil || r.sink == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(ctx)
}

func (r *Reporter) removeLocked(ctx context.Context) {
	if !r.has {
		return
	}
	if err := r.sink.Remove(ctx, r.last); err != nil {
		r.logger.Warn("progress removal failed", zap.Error(err))
	}
	r.last, r.has = nil, false
}
