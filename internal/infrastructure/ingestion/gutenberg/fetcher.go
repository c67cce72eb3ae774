package gutenberg

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Fetcher downloads plain-text books from a Project Gutenberg mirror and
// strips the license boilerplate around the body. Requests are rate limited
// to stay a polite mirror client.
type Fetcher struct {
	mirror     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewFetcher(mirror string, requestsPerMinute int) *Fetcher {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 20
	}
	return &Fetcher{
		mirror:     strings.TrimRight(mirror, "/"),
		httpClient: &http.Client{Timeout: 120 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), 1),
	}
}

func (f *Fetcher) FetchBook(ctx context.Context, gutenbergID int) (string, error) {
	if gutenbergID <= 0 {
		return "", fmt.Errorf("invalid gutenberg id: %d", gutenbergID)
	}
	if err := f.limiter.Wait(ctx); err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/cache/epub/%d/pg%d.txt", f.mirror, gutenbergID, gutenbergID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create book request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch book %d: %w", gutenbergID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch book %d status: %s", gutenbergID, resp.Status)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read book %d: %w", gutenbergID, err)
	}

	text := StripBoilerplate(string(raw))
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("book %d is empty after stripping boilerplate", gutenbergID)
	}
	return text, nil
}

const (
	startMarker = "*** START OF"
	endMarker   = "*** END OF"
)

// StripBoilerplate cuts the Project Gutenberg header and footer. The body
// sits between a "*** START OF ..." line and a "*** END OF ..." line; when
// either marker is missing the text is returned as-is, trimmed.
func StripBoilerplate(text string) string {
	body := text

	if idx := strings.Index(body, startMarker); idx >= 0 {
		rest := body[idx:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			body = rest[nl+1:]
		}
	}
	if idx := strings.Index(body, endMarker); idx >= 0 {
		// Drop everything from the start of the marker line.
		lineStart := strings.LastIndexByte(body[:idx], '\n')
		if lineStart < 0 {
			lineStart = 0
		}
		body = body[:lineStart]
	}
	return strings.TrimSpace(body)
}
