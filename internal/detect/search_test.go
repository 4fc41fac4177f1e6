package detect

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

const searchResultsPage = `<!DOCTYPE html>
<html><body>
<div class="result">
  <a class="result__a" href="https://first.example/page">First result</a>
</div>
<div class="result">
  <a class="result__a other" href="https://second.example/page">Second result</a>
</div>
<div class="result">
  <a class="result__snippet" href="https://ignored.example">Snippet link</a>
</div>
<div class="result">
  <a class="result__a" href="https://third.example/page">Third result</a>
</div>
</body></html>`

func TestSearchParsesResultLinks(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		w.Write([]byte(searchResultsPage))
	}))
	defer server.Close()

	client := NewDuckDuckGoClient(5 * time.Second)
	client.Endpoint = server.URL

	urls, err := client.Search(context.Background(), "some unique sentence", 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if gotQuery != "some unique sentence" {
		t.Fatalf("query = %q", gotQuery)
	}

	want := []string{
		"https://first.example/page",
		"https://second.example/page",
		"https://third.example/page",
	}
	if len(urls) != len(want) {
		t.Fatalf("got %d urls, want %d: %v", len(urls), len(want), urls)
	}
	for i := range want {
		if urls[i] != want[i] {
			t.Fatalf("url %d = %q, want %q", i, urls[i], want[i])
		}
	}
}

func TestSearchHonorsLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(searchResultsPage))
	}))
	defer server.Close()

	client := NewDuckDuckGoClient(5 * time.Second)
	client.Endpoint = server.URL

	urls, err := client.Search(context.Background(), "query", 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(urls) != 2 {
		t.Fatalf("got %d urls, want 2", len(urls))
	}
}

func TestSearchTruncatesQuery(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		w.Write([]byte("<html></html>"))
	}))
	defer server.Close()

	client := NewDuckDuckGoClient(5 * time.Second)
	client.Endpoint = server.URL

	long := strings.Repeat("x", 500)
	if _, err := client.Search(context.Background(), long, 3); err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(gotQuery) != maxQueryLength {
		t.Fatalf("query length = %d, want %d", len(gotQuery), maxQueryLength)
	}
}

func TestSearchTruncationKeepsRunesIntact(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		w.Write([]byte("<html></html>"))
	}))
	defer server.Close()

	client := NewDuckDuckGoClient(5 * time.Second)
	client.Endpoint = server.URL

	// 'é' is two bytes; an odd byte budget would split one if the cut
	// were not rune-aware.
	long := strings.Repeat("é", 300)
	if _, err := client.Search(context.Background(), long, 3); err != nil {
		t.Fatalf("search: %v", err)
	}
	if !utf8.ValidString(gotQuery) {
		t.Fatalf("query is not valid UTF-8: %q", gotQuery)
	}
	if len(gotQuery) > maxQueryLength {
		t.Fatalf("query length = %d, want <= %d", len(gotQuery), maxQueryLength)
	}
	if gotQuery == "" {
		t.Fatal("expected a non-empty truncated query")
	}
}

func TestTruncateQuery(t *testing.T) {
	ascii := strings.Repeat("a", maxQueryLength+10)
	if got := truncateQuery(ascii); len(got) != maxQueryLength {
		t.Fatalf("ascii cut length = %d, want %d", len(got), maxQueryLength)
	}

	// Place a three-byte rune straddling the cut point.
	straddle := strings.Repeat("a", maxQueryLength-1) + "世界"
	got := truncateQuery(straddle)
	if !utf8.ValidString(got) {
		t.Fatalf("cut produced invalid UTF-8: %q", got)
	}
	if len(got) != maxQueryLength-1 {
		t.Fatalf("cut length = %d, want %d", len(got), maxQueryLength-1)
	}

	short := "short query"
	if got := truncateQuery(short); got != short {
		t.Fatalf("short query changed: %q", got)
	}
}

func TestSearchErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewDuckDuckGoClient(5 * time.Second)
	client.Endpoint = server.URL

	if _, err := client.Search(context.Background(), "query", 3); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	client := NewDuckDuckGoClient(time.Second)
	urls, err := client.Search(context.Background(), "   ", 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(urls) != 0 {
		t.Fatalf("got %d urls, want 0", len(urls))
	}
}
