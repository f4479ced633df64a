// Package catalog lists website categories and scrapes template preview
// links from the Webflow template gallery.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// DefaultBaseURL is the gallery root; category pages live under /templates/category/<slug>.
const DefaultBaseURL = "https://webflow.com"

// DefaultTimeout bounds one gallery request.
const DefaultTimeout = 30 * time.Second

// DefaultUserAgent identifies the scraper.
const DefaultUserAgent = "go-site2pdf/1.0 (+https://github.com/alnah/go-site2pdf)"

const maxPageBytes = 8 << 20

// Sentinel errors.
var (
	ErrUnknownCategory = errors.New("unknown category")
	ErrFetch           = errors.New("fetching gallery page")
	ErrNoTemplates     = errors.New("no templates found")
)

// Category is one gallery section.
type Category struct {
	Name string // button label
	Slug string
}

// Categories in keyboard order.
var Categories = []Category{
	{"Technology Websites", "technology-websites"},
	{"Design Websites", "design-websites"},
	{"Business Websites", "business-websites"},
	{"Blog Websites", "blog-websites"},
	{"Marketing Websites", "marketing-websites"},
	{"Photography & Video Websites", "photography-and-video-websites"},
	{"Entertainment Websites", "entertainment-websites"},
	{"Food & drink Websites", "food-and-drink-websites"},
	{"Travel Websites", "travel-websites"},
	{"Education Websites", "education-websites"},
	{"Sports Websites", "sports-websites"},
	{"Medical Websites", "medical-websites"},
	{"Beauty & Wellness Websites", "beauty-and-wellness-websites"},
	{"Fashion Websites", "fashion-websites"},
}

// ByName finds a category by its exact label.
func ByName(name string) (Category, bool) {
	for _, c := range Categories {
		if c.Name == name {
			return c, true
		}
	}
	return Category{}, false
}

// BySlug finds a category by slug.
func BySlug(slug string) (Category, bool) {
	for _, c := range Categories {
		if c.Slug == slug {
			return c, true
		}
	}
	return Category{}, false
}

// Client fetches category pages.
type Client struct {
	base      *url.URL
	http      *http.Client
	userAgent string
	logger    *zap.Logger
	intn      func(n int) int
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client (and its timeout).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http = &http.Client{Timeout: d, Transport: c.http.Transport}
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// withRand replaces the random source; tests use it for determinism.
func withRand(intn func(int) int) Option {
	return func(c *Client) { c.intn = intn }
}

// New creates a client for the gallery at baseURL ("" for DefaultBaseURL).
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid catalog base URL %q", baseURL)
	}
	c := &Client{
		base:      u,
		http:      &http.Client{Timeout: DefaultTimeout},
		userAgent: DefaultUserAgent,
		logger:    zap.NewNop(),
		intn:      rand.IntN,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CategoryURL returns the gallery page for slug.
func (c *Client) CategoryURL(slug string) string {
	return c.base.JoinPath("templates", "category", slug).String()
}

// Templates returns the preview links listed on a category page, in page
// order without duplicates. An empty page is not an error.
func (c *Client) Templates(ctx context.Context, slug string) ([]string, error) {
	if _, ok := BySlug(slug); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, slug)
	}
	pageURL := c.CategoryURL(slug)
	log := c.logger.With(zap.String("category", slug), zap.String("url", pageURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := c.http.Do(req)
	if err != nil {
		log.Warn("gallery request failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Warn("gallery returned non-200", zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("%w: %s returned %s", ErrFetch, pageURL, resp.Status)
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", ErrFetch, pageURL, err)
	}

	links := extractPreviewLinks(doc, resp.Request.URL)
	log.Info("templates found", zap.Int("count", len(links)))
	return links, nil
}

// Random fetches a category page and picks one template at random.
func (c *Client) Random(ctx context.Context, slug string) (string, error) {
	links, err := c.Templates(ctx, slug)
	if err != nil {
		return "", err
	}
	link, ok := Pick(links, c.intn)
	if !ok {
		return "", fmt.Errorf("%w in category %q", ErrNoTemplates, slug)
	}
	return link, nil
}

// Pick returns a random element using intn, or false for an empty list.
func Pick(links []string, intn func(int) int) (string, bool) {
	if len(links) == 0 {
		return "", false
	}
	if intn == nil {
		intn = rand.IntN
	}
	return links[intn(len(links))], true
}

// ---------------------------------------------------------------------------
// HTML extraction
// ---------------------------------------------------------------------------

// extractPreviewLinks collects a.tm-templates-preview_link hrefs found inside
// div[role=listitem].tm-templates_grid_item, resolved against base.
func extractPreviewLinks(doc *html.Node, base *url.URL) []string {
	var links []string
	seen := make(map[string]bool)

	var walk func(n *html.Node, inItem bool)
	walk = func(n *html.Node, inItem bool) {
		if n.Type == html.ElementNode {
			switch {
			case n.Data == "div" && attr(n, "role") == "listitem" && hasClass(n, "tm-templates_grid_item"):
				inItem = true
			case inItem && n.Data == "a" && hasClass(n, "tm-templates-preview_link"):
				if link, ok := resolve(base, attr(n, "href")); ok && !seen[link] {
					seen[link] = true
					links = append(links, link)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, inItem)
		}
	}
	walk(doc, false)
	return links
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// resolve keeps only http(s) targets.
func resolve(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	u := ref
	if base != nil {
		u = base.ResolveReference(ref)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	return u.String(), true
}
