package wikipedia

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"
)

// Fetcher pulls article prose through the MediaWiki parse API. The API
// returns rendered HTML; goquery strips navigation, tables and reference
// cruft down to paragraph text.
type Fetcher struct {
	apiURL     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewFetcher(apiURL string, requestsPerMinute int) *Fetcher {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 40
	}
	return &Fetcher{
		apiURL:     apiURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), 1),
	}
}

func (f *Fetcher) FetchArticle(ctx context.Context, title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", fmt.Errorf("empty article title")
	}
	if err := f.limiter.Wait(ctx); err != nil {
		return "", err
	}

	params := url.Values{}
	params.Set("action", "parse")
	params.Set("page", title)
	params.Set("prop", "text")
	params.Set("format", "json")
	params.Set("formatversion", "2")
	params.Set("redirects", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.apiURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("create article request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch article %q: %w", title, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch article %q status: %s", title, resp.Status)
	}

	var parsed struct {
		Parse struct {
			Title string `json:"title"`
			Text  string `json:"text"`
		} `json:"parse"`
		Error struct {
			Code string `json:"code"`
			Info string `json:"info"`
		} `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode article %q: %w", title, err)
	}
	if parsed.Error.Code != "" {
		return "", fmt.Errorf("fetch article %q: %s: %s", title, parsed.Error.Code, parsed.Error.Info)
	}
	if parsed.Parse.Text == "" {
		return "", fmt.Errorf("article %q has no content", title)
	}

	text, err := extractProse(parsed.Parse.Text)
	if err != nil {
		return "", fmt.Errorf("extract article %q: %w", title, err)
	}
	if text == "" {
		return "", fmt.Errorf("article %q is empty after extraction", title)
	}
	return text, nil
}

// extractProse keeps only paragraph text from rendered article HTML.
// Infoboxes, citation markers and edit-section links would otherwise leak
// bracketed noise into the chunks.
func extractProse(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	doc.Find("table, style, sup.reference, span.mw-editsection, div.navbox, div.hatnote, figure").Remove()

	var b strings.Builder
	doc.Find("p").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(text)
	})
	return b.String(), nil
}
