package wikipedia

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const articleHTML = `<div class="mw-parser-output">
<div class="hatnote">For the film, see Oliver Twist (film).</div>
<table class="infobox"><tbody><tr><td>Author</td><td>Charles Dickens</td></tr></tbody></table>
<p><b>Oliver Twist</b> is the second novel by Charles Dickens.<sup class="reference">[1]</sup></p>
<p>It was published as a serial from 1837 to 1839.</p>
<div class="navbox">Works of Charles Dickens</div>
</div>`

func TestFetchArticleExtractsParagraphProse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("action") != "parse" || q.Get("page") != "Oliver Twist" {
			t.Errorf("unexpected query: %v", q)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"parse": map[string]any{
				"title": "Oliver Twist",
				"text":  articleHTML,
			},
		})
	}))
	defer server.Close()

	f := NewFetcher(server.URL, 600)
	text, err := f.FetchArticle(context.Background(), "Oliver Twist")
	if err != nil {
		t.Fatalf("FetchArticle() error = %v", err)
	}
	if !strings.HasPrefix(text, "Oliver Twist is the second novel") {
		t.Fatalf("unexpected prose start: %q", text)
	}
	if strings.Contains(text, "[1]") {
		t.Fatalf("citation marker not stripped: %q", text)
	}
	if strings.Contains(text, "infobox") || strings.Contains(text, "For the film") || strings.Contains(text, "Works of Charles Dickens") {
		t.Fatalf("non-prose content leaked: %q", text)
	}
	if !strings.Contains(text, "serial from 1837 to 1839") {
		t.Fatalf("second paragraph missing: %q", text)
	}
}

func TestFetchArticleSurfacesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": "missingtitle", "info": "The page you specified doesn't exist."},
		})
	}))
	defer server.Close()

	f := NewFetcher(server.URL, 600)
	_, err := f.FetchArticle(context.Background(), "No Such Novel")
	if err == nil || !strings.Contains(err.Error(), "missingtitle") {
		t.Fatalf("expected missingtitle error, got %v", err)
	}
}

func TestFetchArticleRejectsEmptyTitle(t *testing.T) {
	f := NewFetcher("http://localhost:1", 600)
	if _, err := f.FetchArticle(context.Background(), "  "); err == nil {
		t.Fatalf("expected error for empty title")
	}
}
