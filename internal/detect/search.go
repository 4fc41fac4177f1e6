package detect

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html"
)

const (
	duckDuckGoEndpoint = "https://html.duckduckgo.com/html/"
	maxQueryLength     = 200
	searchUserAgent    = "Mozilla/5.0"
)

// Searcher finds candidate source URLs for a text fragment.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]string, error)
}

// DuckDuckGoClient queries the DuckDuckGo HTML endpoint. One request per
// query, no retries.
type DuckDuckGoClient struct {
	HTTPClient *http.Client
	Endpoint   string
}

// NewDuckDuckGoClient builds a client with the given request timeout.
func NewDuckDuckGoClient(timeout time.Duration) *DuckDuckGoClient {
	return &DuckDuckGoClient{
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

func (c *DuckDuckGoClient) Search(ctx context.Context, query string, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	query = truncateQuery(query)

	endpoint := c.Endpoint
	if endpoint == "" {
		endpoint = duckDuckGoEndpoint
	}

	reqURL := endpoint + "?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	req.Header.Set("User-Agent", searchUserAgent)

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search: unexpected status %d", resp.StatusCode)
	}

	urls, err := parseResultLinks(resp.Body, limit)
	if err != nil {
		return nil, fmt.Errorf("search: parse results: %w", err)
	}
	return urls, nil
}

// truncateQuery caps the query at maxQueryLength bytes without splitting a
// multi-byte rune.
func truncateQuery(query string) string {
	if len(query) <= maxQueryLength {
		return query
	}
	cut := maxQueryLength
	for cut > 0 && !utf8.RuneStart(query[cut]) {
		cut--
	}
	return query[:cut]
}

// parseResultLinks extracts hrefs from <a class="result__a"> anchors.
func parseResultLinks(r io.Reader, limit int) ([]string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	var urls []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(urls) >= limit {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" && hasClass(n, "result__a") {
			if href := attrValue(n, "href"); href != "" {
				urls = append(urls, href)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return urls, nil
}

func hasClass(n *html.Node, class string) bool {
	for _, field := range strings.Fields(attrValue(n, "class")) {
		if field == class {
			return true
		}
	}
	return false
}

func attrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

var _ Searcher = (*DuckDuckGoClient)(nil)
