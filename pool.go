package site2pdf

import (
	"context"
	"runtime"
	"sync"
)

// Pool sizing constants.
const (
	// MinPoolSize ensures at least one worker is available.
	MinPoolSize = 1

	// MaxPoolSize caps concurrent browsers to limit memory (~300MB each on
	// long pages).
	MaxPoolSize = 8

	// cpuDivisor leaves headroom for Chrome child processes and PNG encoding.
	cpuDivisor = 2
)

// RendererPool bounds how many renders (and so browsers) run at once.
// Renderers are created lazily on first acquire with the pool's options.
type RendererPool struct {
	size    int
	opts    []Option
	sem     chan *Renderer
	mu      sync.Mutex
	created int
	closed  bool
	waiting int
}

// NewRendererPool creates a pool with capacity for n concurrent renders.
// Every Renderer it creates uses opts.
func NewRendererPool(n int, opts ...Option) *RendererPool {
	if n < 1 {
		n = 1
	}

	return &RendererPool{
		size: n,
		opts: opts,
		sem:  make(chan *Renderer, n),
	}
}

// Acquire gets a Renderer, creating one if capacity allows, otherwise
// waiting for a Release. Returns ctx.Err() if ctx ends first and
// ErrPoolClosed once the pool is closed.
func (p *RendererPool) Acquire(ctx context.Context) (*Renderer, error) {
	// Try to get an idle renderer (non-blocking)
	select {
	case r, ok := <-p.sem:
		if !ok {
			return nil, ErrPoolClosed
		}
		return r, nil
	default:
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if p.created < p.size {
		p.created++
		p.mu.Unlock()

		r, err := NewRenderer(p.opts...)
		if err != nil {
			p.mu.Lock()
			p.created--
			p.mu.Unlock()
			return nil, err
		}
		return r, nil
	}
	p.waiting++
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.waiting--
		p.mu.Unlock()
	}()

	// All renderers created, wait for one to be released
	select {
	case r, ok := <-p.sem:
		if !ok {
			return nil, ErrPoolClosed
		}
		return r, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns a Renderer to the pool. No-op after Close.
// The send happens under the lock so it cannot race with Close; it never
// blocks because at most size renderers exist.
func (p *RendererPool) Release(r *Renderer) {
	if r == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.sem <- r
}

// Render reports MilestoneQueued, acquires a Renderer, runs job and releases it.
func (p *RendererPool) Render(ctx context.Context, job RenderJob) (*RenderArtifact, error) {
	job.Progress.Notify(ctx, MilestoneQueued)
	r, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.Release(r)
	return r.Render(ctx, job)
}

// RenderIn is Render with the job directory allocated only once a renderer
// is held, so queue time never counts against the directory's age. dir is
// the allocated directory, set even when the render fails; it is empty when
// allocation never happened. The caller reclaims it.
func (p *RendererPool) RenderIn(ctx context.Context, job RenderJob, allocate func() (string, error)) (dir string, art *RenderArtifact, err error) {
	job.Progress.Notify(ctx, MilestoneQueued)
	r, err := p.Acquire(ctx)
	if err != nil {
		return "", nil, err
	}
	defer p.Release(r)

	dir, err = allocate()
	if err != nil {
		return "", nil, err
	}
	job.Dir = dir
	art, err = r.Render(ctx, job)
	return dir, art, err
}

// Close stops handing out renderers and wakes any waiters with ErrPoolClosed.
// Renders already running finish normally.
func (p *RendererPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.sem)
	return nil
}

// Size returns the pool capacity.
func (p *RendererPool) Size() int {
	return p.size
}

// Waiting returns how many callers are blocked in Acquire.
func (p *RendererPool) Waiting() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waiting
}

// ResolvePoolSize determines the pool size.
// Priority: explicit workers > GOMAXPROCS-based calculation.
func ResolvePoolSize(workers int) int {
	if workers > 0 {
		return workers
	}

	// GOMAXPROCS is container-aware once automaxprocs has run
	n := runtime.GOMAXPROCS(0) / cpuDivisor

	if n < MinPoolSize {
		return MinPoolSize
	}
	if n > MaxPoolSize {
		return MaxPoolSize
	}
	return n
}
