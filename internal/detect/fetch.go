package detect

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/net/html"
)

const (
	maxPageContentLength = 15000
	fetchCacheSize       = 512
	fetchCacheTTL        = 15 * time.Minute
)

// Fetcher retrieves the visible text content of a web page.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (string, error)
}

// PageFetcher downloads pages and strips them to whitespace-collapsed text.
// Responses are cached by URL so repeated candidates are fetched once.
type PageFetcher struct {
	HTTPClient *http.Client
	cache      *expirable.LRU[string, string]
}

// NewPageFetcher builds a fetcher with the given request timeout.
func NewPageFetcher(timeout time.Duration) *PageFetcher {
	return &PageFetcher{
		HTTPClient: &http.Client{Timeout: timeout},
		cache:      expirable.NewLRU[string, string](fetchCacheSize, nil, fetchCacheTTL),
	}
}

func (f *PageFetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	if f.cache != nil {
		if cached, ok := f.cache.Get(pageURL); ok {
			return cached, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("fetch request url=%s: %w", pageURL, err)
	}
	req.Header.Set("User-Agent", searchUserAgent)

	client := f.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch url=%s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch url=%s: unexpected status %d", pageURL, resp.StatusCode)
	}

	text, err := extractVisibleText(resp.Body)
	if err != nil {
		return "", fmt.Errorf("fetch url=%s: parse: %w", pageURL, err)
	}
	if len(text) > maxPageContentLength {
		text = text[:maxPageContentLength]
	}

	if f.cache != nil {
		f.cache.Add(pageURL, text)
	}
	return text, nil
}

var skippedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
}

// extractVisibleText drops script/style/noscript subtrees and collapses all
// remaining text into single-space-separated words.
func extractVisibleText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skippedElements[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return strings.Join(strings.Fields(b.String()), " "), nil
}

var _ Fetcher = (*PageFetcher)(nil)
