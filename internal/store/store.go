// Package store keeps short-lived bot session state in a key-value store
// with per-key TTL. Two backends: in-process memory and Redis.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// ErrUnknownBackend indicates an unsupported backend name.
var ErrUnknownBackend = errors.New("unknown store backend")

// Store is the subset of key-value operations the bot needs.
// A zero or negative ttl means the key never expires.
type Store interface {
	// Get returns the value and whether it was found.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX sets the key only if absent and reports whether it did.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, keys ...string) error

	// PushCapped appends to a list and keeps only the newest limit items.
	PushCapped(ctx context.Context, key, value string, limit int, ttl time.Duration) error
	// Range returns the whole list, oldest first.
	Range(ctx context.Context, key string) ([]string, error)

	Ping(ctx context.Context) error
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Backend string

	// Memory
	MaxKeys int

	// Redis
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Open returns the configured backend. Redis connectivity is checked with a ping.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case "", BackendMemory:
		return NewMemory(opts.MaxKeys), nil
	case BackendRedis:
		r := NewRedis(opts.Addr, opts.Password, opts.DB, opts.Prefix)
		if err := r.Ping(ctx); err != nil {
			_ = r.Close()
			return nil, fmt.Errorf("connecting to redis at %s: %w", opts.Addr, err)
		}
		return r, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}
