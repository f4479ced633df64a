package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

const galleryPage = `<!doctype html>
<html><body>
<div role="list" class="tm-templates_grid">
  <div role="listitem" class="tm-templates_grid_item w-dyn-item">
    <a class="tm-templates-preview_link" href="https://acme.webflow.io">Preview</a>
    <a class="tm-templates-buy_link" href="/templates/html/acme">Buy</a>
  </div>
  <div role="listitem" class="tm-templates_grid_item">
    <div class="card"><a class="btn tm-templates-preview_link" href="/preview/relative">Preview</a></div>
  </div>
  <div role="listitem" class="tm-templates_grid_item">
    <a class="tm-templates-preview_link" href="https://acme.webflow.io">Duplicate</a>
    <a class="tm-templates-preview_link" href="mailto:someone@example.com">Mail</a>
    <a class="tm-templates-preview_link" href="#top">Anchor</a>
  </div>
  <div class="tm-templates_grid_item">
    <a class="tm-templates-preview_link" href="https://no-role.webflow.io">No role</a>
  </div>
</div>
<a class="tm-templates-preview_link" href="https://outside.webflow.io">Outside</a>
</body></html>`

type requestLog struct {
	mu    sync.Mutex
	lines []string
}

func (l *requestLog) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

func newGallery(t *testing.T, status int, body string) (*httptest.Server, *requestLog) {
	t.Helper()
	log := &requestLog{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.mu.Lock()
		log.lines = append(log.lines, r.URL.Path+"|"+r.UserAgent())
		log.mu.Unlock()
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, log
}

// ---------------------------------------------------------------------------
// TestCategories
// ---------------------------------------------------------------------------

func TestCategories(t *testing.T) {
	t.Parallel()

	if len(Categories) != 14 {
		t.Errorf("len(Categories) = %d, want 14", len(Categories))
	}
	names := make(map[string]bool)
	for _, c := range Categories {
		if names[c.Name] {
			t.Errorf("duplicate name %q", c.Name)
		}
		names[c.Name] = true
		if !strings.HasSuffix(c.Slug, "-websites") {
			t.Errorf("slug %q lacks -websites suffix", c.Slug)
		}
		if got, ok := ByName(c.Name); !ok || got != c {
			t.Errorf("ByName(%q) = %v, %v", c.Name, got, ok)
		}
		if got, ok := BySlug(c.Slug); !ok || got != c {
			t.Errorf("BySlug(%q) = %v, %v", c.Slug, got, ok)
		}
	}
	if _, ok := ByName("Crypto Websites"); ok {
		t.Error("ByName accepted an unknown category")
	}
}

// ---------------------------------------------------------------------------
// TestClient_Templates
// ---------------------------------------------------------------------------

func TestClient_Templates(t *testing.T) {
	t.Parallel()

	srv, paths := newGallery(t, http.StatusOK, galleryPage)
	c, err := New(srv.URL, WithUserAgent("test-agent"))
	if err != nil {
		t.Fatal(err)
	}

	got, err := c.Templates(context.Background(), "design-websites")
	if err != nil {
		t.Fatalf("Templates() error: %v", err)
	}
	want := []string{"https://acme.webflow.io", srv.URL + "/preview/relative"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("Templates() = %v, want %v", got, want)
	}
	if reqs := paths.get(); len(reqs) != 1 || reqs[0] != "/templates/category/design-websites|test-agent" {
		t.Errorf("requests = %v", reqs)
	}
}

func TestClient_Templates_EmptyPage(t *testing.T) {
	t.Parallel()

	srv, _ := newGallery(t, http.StatusOK, "<html><body><p>nothing</p></body></html>")
	c, _ := New(srv.URL)

	got, err := c.Templates(context.Background(), "blog-websites")
	if err != nil || len(got) != 0 {
		t.Errorf("Templates() = %v, %v, want empty and nil", got, err)
	}
	if _, err := c.Random(context.Background(), "blog-websites"); !errors.Is(err, ErrNoTemplates) {
		t.Errorf("Random() error = %v, want ErrNoTemplates", err)
	}
}

func TestClient_Templates_Errors(t *testing.T) {
	t.Parallel()

	srv, _ := newGallery(t, http.StatusServiceUnavailable, "down")
	c, _ := New(srv.URL)

	if _, err := c.Templates(context.Background(), "blog-websites"); !errors.Is(err, ErrFetch) {
		t.Errorf("Templates() on 503 error = %v, want ErrFetch", err)
	}
	if _, err := c.Templates(context.Background(), "crypto-websites"); !errors.Is(err, ErrUnknownCategory) {
		t.Errorf("Templates() unknown slug error = %v, want ErrUnknownCategory", err)
	}

	unreachable, _ := New("http://127.0.0.1:1", WithTimeout(time.Second))
	if _, err := unreachable.Templates(context.Background(), "blog-websites"); !errors.Is(err, ErrFetch) {
		t.Errorf("Templates() unreachable error = %v, want ErrFetch", err)
	}
}

func TestClient_Random(t *testing.T) {
	t.Parallel()

	srv, _ := newGallery(t, http.StatusOK, galleryPage)
	c, _ := New(srv.URL, withRand(func(n int) int { return n - 1 }))

	got, err := c.Random(context.Background(), "travel-websites")
	if err != nil {
		t.Fatal(err)
	}
	if got != srv.URL+"/preview/relative" {
		t.Errorf("Random() = %q", got)
	}
}

func TestNew_InvalidBase(t *testing.T) {
	t.Parallel()

	for _, base := range []string{"ftp://webflow.com", "not a url", "https://"} {
		if _, err := New(base); err == nil {
			t.Errorf("New(%q) = nil error", base)
		}
	}
	c, err := New("")
	if err != nil {
		t.Fatal(err)
	}
	if got := c.CategoryURL("blog-websites"); got != "https://webflow.com/templates/category/blog-websites" {
		t.Errorf("CategoryURL() = %q", got)
	}
}

func TestPick(t *testing.T) {
	t.Parallel()

	if _, ok := Pick(nil, nil); ok {
		t.Error("Pick(nil) ok = true")
	}
	if got, ok := Pick([]string{"a", "b", "c"}, func(int) int { return 1 }); !ok || got != "b" {
		t.Errorf("Pick() = %q, %v", got, ok)
	}
	if got, ok := Pick([]string{"only"}, nil); !ok || got != "only" {
		t.Errorf("Pick() default rand = %q, %v", got, ok)
	}
}
