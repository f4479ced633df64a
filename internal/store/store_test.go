package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// Shared contract
// ---------------------------------------------------------------------------

// testContract exercises behavior every backend must share. Keys are
// namespaced by the caller so Redis runs do not collide.
func testContract(t *testing.T, s Store, ns string) {
	t.Helper()
	ctx := context.Background()
	k := func(name string) string { return ns + name }

	t.Run("get missing", func(t *testing.T) {
		v, ok, err := s.Get(ctx, k("missing"))
		if err != nil || ok || v != "" {
			t.Errorf("Get(missing) = %q, %v, %v", v, ok, err)
		}
	})

	t.Run("set get delete", func(t *testing.T) {
		if err := s.Set(ctx, k("a"), "1", time.Minute); err != nil {
			t.Fatal(err)
		}
		v, ok, err := s.Get(ctx, k("a"))
		if err != nil || !ok || v != "1" {
			t.Fatalf("Get(a) = %q, %v, %v", v, ok, err)
		}
		if err := s.Delete(ctx, k("a")); err != nil {
			t.Fatal(err)
		}
		if _, ok, _ := s.Get(ctx, k("a")); ok {
			t.Error("key survived Delete")
		}
	})

	t.Run("setnx", func(t *testing.T) {
		defer s.Delete(ctx, k("lock"))
		ok, err := s.SetNX(ctx, k("lock"), "x", time.Minute)
		if err != nil || !ok {
			t.Fatalf("first SetNX = %v, %v", ok, err)
		}
		ok, err = s.SetNX(ctx, k("lock"), "y", time.Minute)
		if err != nil || ok {
			t.Errorf("second SetNX = %v, %v", ok, err)
		}
		if v, _, _ := s.Get(ctx, k("lock")); v != "x" {
			t.Errorf("lock value = %q, want x", v)
		}
	})

	t.Run("capped list", func(t *testing.T) {
		defer s.Delete(ctx, k("hist"))
		for i := range 5 {
			if err := s.PushCapped(ctx, k("hist"), fmt.Sprint(i), 3, time.Minute); err != nil {
				t.Fatal(err)
			}
		}
		got, err := s.Range(ctx, k("hist"))
		if err != nil {
			t.Fatal(err)
		}
		if fmt.Sprint(got) != "[2 3 4]" {
			t.Errorf("Range() = %v, want [2 3 4]", got)
		}
	})

	t.Run("range missing", func(t *testing.T) {
		got, err := s.Range(ctx, k("nolist"))
		if err != nil || len(got) != 0 {
			t.Errorf("Range(missing) = %v, %v", got, err)
		}
	})

	t.Run("ping", func(t *testing.T) {
		if err := s.Ping(ctx); err != nil {
			t.Errorf("Ping() error: %v", err)
		}
	})
}

// ---------------------------------------------------------------------------
// TestMemory
// ---------------------------------------------------------------------------

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestMemory(maxKeys int) (*Memory, *clock) {
	c := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := NewMemory(maxKeys)
	m.now = c.now
	return m, c
}

func TestMemory_Contract(t *testing.T) {
	t.Parallel()
	testContract(t, NewMemory(0), "")
}

func TestMemory_TTL(t *testing.T) {
	t.Parallel()

	m, c := newTestMemory(0)
	ctx := context.Background()

	_ = m.Set(ctx, "short", "v", time.Second)
	_ = m.Set(ctx, "forever", "v", 0)
	_ = m.PushCapped(ctx, "list", "v", 0, time.Second)

	c.advance(time.Second)
	if _, ok, _ := m.Get(ctx, "short"); ok {
		t.Error("expired key still visible")
	}
	if got, _ := m.Range(ctx, "list"); len(got) != 0 {
		t.Errorf("expired list = %v", got)
	}
	if _, ok, _ := m.Get(ctx, "forever"); !ok {
		t.Error("key without TTL expired")
	}

	// Expired keys no longer block SetNX.
	_ = m.Set(ctx, "lock", "a", time.Second)
	c.advance(2 * time.Second)
	if ok, _ := m.SetNX(ctx, "lock", "b", time.Second); !ok {
		t.Error("SetNX over expired key = false")
	}
}

func TestMemory_Sweep(t *testing.T) {
	t.Parallel()

	m, c := newTestMemory(0)
	ctx := context.Background()
	for i := range 4 {
		_ = m.Set(ctx, fmt.Sprint(i), "v", time.Duration(i+1)*time.Minute)
	}

	c.advance(2 * time.Minute)
	if n := m.Sweep(); n != 2 {
		t.Errorf("Sweep() = %d, want 2", n)
	}
	if m.Len() != 2 {
		t.Errorf("Len() = %d, want 2", m.Len())
	}
}

func TestMemory_Eviction(t *testing.T) {
	t.Parallel()

	t.Run("oldest non-lock key", func(t *testing.T) {
		t.Parallel()

		m, _ := newTestMemory(3)
		ctx := context.Background()

		// The lock is written first and expires soonest; it still survives.
		if ok, _ := m.SetNX(ctx, "busy:42", "1", time.Minute); !ok {
			t.Fatal("SetNX() = false")
		}
		_ = m.Set(ctx, "old", "v", time.Hour)
		_ = m.PushCapped(ctx, "history:42", "v", 10, 2*time.Hour)
		_ = m.Set(ctx, "new", "v", time.Hour)

		if m.Len() != 3 {
			t.Fatalf("Len() = %d, want 3", m.Len())
		}
		if _, ok, _ := m.Get(ctx, "old"); ok {
			t.Error("oldest key not evicted")
		}
		if _, ok, _ := m.Get(ctx, "busy:42"); !ok {
			t.Error("lock evicted before plain keys")
		}
		if got, _ := m.Range(ctx, "history:42"); len(got) != 1 {
			t.Errorf("history = %v", got)
		}
	})

	t.Run("expired keys first", func(t *testing.T) {
		t.Parallel()

		m, c := newTestMemory(3)
		ctx := context.Background()

		_ = m.Set(ctx, "a", "v", 0)
		_ = m.Set(ctx, "b", "v", time.Minute)
		_ = m.Set(ctx, "c", "v", time.Minute)
		c.advance(time.Minute)
		_ = m.Set(ctx, "d", "v", 0)

		if m.Len() != 2 {
			t.Errorf("Len() = %d, want 2 after expired keys dropped", m.Len())
		}
		if _, ok, _ := m.Get(ctx, "a"); !ok {
			t.Error("live key evicted while expired keys remained")
		}
	})

	t.Run("only locks left", func(t *testing.T) {
		t.Parallel()

		m, _ := newTestMemory(2)
		ctx := context.Background()

		_, _ = m.SetNX(ctx, "busy:1", "1", time.Hour)
		_, _ = m.SetNX(ctx, "busy:2", "1", time.Minute)
		_ = m.Set(ctx, "state:3", "v", 0)

		if _, ok, _ := m.Get(ctx, "busy:1"); ok {
			t.Error("oldest lock not evicted")
		}
		for _, k := range []string{"busy:2", "state:3"} {
			if _, ok, _ := m.Get(ctx, k); !ok {
				t.Errorf("%s evicted", k)
			}
		}
	})

	t.Run("overwrite never evicts", func(t *testing.T) {
		t.Parallel()

		m, _ := newTestMemory(2)
		ctx := context.Background()

		_ = m.Set(ctx, "a", "v", 0)
		_ = m.Set(ctx, "b", "v", 0)
		_ = m.Set(ctx, "b", "v2", 0)
		if m.Len() != 2 {
			t.Errorf("Len() after overwrite = %d", m.Len())
		}
	})
}

func TestMemory_Run(t *testing.T) {
	t.Parallel()

	m, c := newTestMemory(0)
	_ = m.Set(context.Background(), "k", "v", time.Second)
	c.advance(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for m.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("Run() never swept")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done
}

// ---------------------------------------------------------------------------
// TestOpen
// ---------------------------------------------------------------------------

func TestOpen(t *testing.T) {
	t.Parallel()

	for _, backend := range []string{"", BackendMemory} {
		s, err := Open(context.Background(), Options{Backend: backend})
		if err != nil {
			t.Fatalf("Open(%q) error: %v", backend, err)
		}
		if _, ok := s.(*Memory); !ok {
			t.Errorf("Open(%q) = %T, want *Memory", backend, s)
		}
	}

	if _, err := Open(context.Background(), Options{Backend: "etcd"}); !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("Open(etcd) error = %v, want ErrUnknownBackend", err)
	}
}

func TestOpen_RedisUnreachable(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := Open(ctx, Options{Backend: BackendRedis, Addr: "127.0.0.1:1"}); err == nil {
		t.Error("Open(redis) on a closed port = nil error")
	}
}

// ---------------------------------------------------------------------------
// TestRedis (requires SITE2PDF_TEST_REDIS_ADDR)
// ---------------------------------------------------------------------------

func TestRedis_Contract(t *testing.T) {
	addr := os.Getenv("SITE2PDF_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SITE2PDF_TEST_REDIS_ADDR not set")
	}

	s := NewRedis(addr, os.Getenv("SITE2PDF_TEST_REDIS_PASSWORD"), 0, "site2pdf-test:")
	defer s.Close()
	testContract(t, s, fmt.Sprintf("%d:", time.Now().UnixNano()))
}
