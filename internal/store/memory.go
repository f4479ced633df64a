package store

import (
	"context"
	"sync"
	"time"
)

// DefaultMaxKeys bounds the memory store when no limit is given.
const DefaultMaxKeys = 100_000

type entry struct {
	value   string
	list    []string
	expires time.Time // zero means never
	seq     uint64    // write order
	lock    bool      // written by SetNX
}

func (e entry) expired(now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}

// Memory is an in-process Store. Expired keys are invisible immediately and
// physically removed by Sweep. When full, expired keys are dropped first, then
// the least recently written key. Keys taken with SetNX are locks and go only
// when nothing else is left.
type Memory struct {
	mu      sync.Mutex
	data    map[string]entry
	maxKeys int
	seq     uint64
	now     func() time.Time
}

// Compile-time interface check.
var _ Store = (*Memory)(nil)

// NewMemory creates a Memory store holding at most maxKeys keys.
func NewMemory(maxKeys int) *Memory {
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}
	return &Memory{data: make(map[string]entry), maxKeys: maxKeys, now: time.Now}
}

func (m *Memory) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.now().Add(ttl)
}

// lookupLocked returns a live entry, dropping it if expired.
func (m *Memory) lookupLocked(key string) (entry, bool) {
	e, ok := m.data[key]
	if !ok {
		return entry{}, false
	}
	if e.expired(m.now()) {
		delete(m.data, key)
		return entry{}, false
	}
	return e, true
}

func (m *Memory) storeLocked(key string, e entry) {
	if _, exists := m.data[key]; !exists && len(m.data) >= m.maxKeys {
		m.evictLocked()
	}
	m.seq++
	e.seq = m.seq
	m.data[key] = e
}

// evictLocked drops every expired key. If the store is still full it drops
// the oldest non-lock key, or the oldest lock when only locks remain.
func (m *Memory) evictLocked() {
	now := m.now()
	var oldest, oldestLock string
	var oldestSeq, oldestLockSeq uint64
	for k, e := range m.data {
		switch {
		case e.expired(now):
			delete(m.data, k)
		case e.lock:
			if oldestLock == "" || e.seq < oldestLockSeq {
				oldestLock, oldestLockSeq = k, e.seq
			}
		default:
			if oldest == "" || e.seq < oldestSeq {
				oldest, oldestSeq = k, e.seq
			}
		}
	}
	if len(m.data) < m.maxKeys {
		return
	}
	if oldest != "" {
		delete(m.data, oldest)
		return
	}
	delete(m.data, oldestLock)
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.lookupLocked(key)
	if !ok || e.list != nil {
		return "", false, nil
	}
	return e.value, true, nil
}

// Set implements Store.
func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storeLocked(key, entry{value: value, expires: m.deadline(ttl)})
	return nil
}

// SetNX implements Store.
func (m *Memory) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.lookupLocked(key); ok {
		return false, nil
	}
	m.storeLocked(key, entry{value: value, expires: m.deadline(ttl), lock: true})
	return true, nil
}

// Delete implements Store.
func (m *Memory) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

// PushCapped implements Store.
func (m *Memory) PushCapped(_ context.Context, key, value string, limit int, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, _ := m.lookupLocked(key)
	list := append(append([]string(nil), e.list...), value)
	if limit > 0 && len(list) > limit {
		list = list[len(list)-limit:]
	}
	m.storeLocked(key, entry{list: list, expires: m.deadline(ttl)})
	return nil
}

// Range implements Store.
func (m *Memory) Range(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.lookupLocked(key)
	if !ok {
		return nil, nil
	}
	return append([]string(nil), e.list...), nil
}

// Ping implements Store.
func (m *Memory) Ping(context.Context) error { return nil }

// Close implements Store.
func (m *Memory) Close() error { return nil }

// Len returns the number of stored keys, including expired ones not yet swept.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

// Sweep removes expired keys and returns how many were removed.
func (m *Memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	n := 0
	for k, e := range m.data {
		if e.expired(now) {
			delete(m.data, k)
			n++
		}
	}
	return n
}

// Run sweeps every interval until ctx ends.
func (m *Memory) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Sweep()
		}
	}
}
