package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"codeberg.org/readeck/go-readability/v2"
	"golang.org/x/sync/singleflight"
)

// WebFetcher fetches a URL and extracts readable markdown-ish text.
// HTML pages go through readability to strip boilerplate before the
// structural extraction; other content types go through Extract with
// the type derived from the response.
type WebFetcher struct {
	client *http.Client

	cache   map[string]string
	cacheMu sync.RWMutex
	group   singleflight.Group
}

// NewWebFetcher creates a web fetcher. A nil client falls back to
// http.DefaultClient.
func NewWebFetcher(client *http.Client) *WebFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebFetcher{
		client: client,
		cache:  make(map[string]string),
	}
}

// Fetch downloads the page at rawURL and returns its cleaned text content.
// Concurrent fetches of the same URL are collapsed into one request.
func (f *WebFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	f.cacheMu.RLock()
	if cached, ok := f.cache[rawURL]; ok {
		f.cacheMu.RUnlock()
		return cached, nil
	}
	f.cacheMu.RUnlock()

	result, err, _ := f.group.Do(rawURL, func() (any, error) {
		f.cacheMu.RLock()
		if cached, ok := f.cache[rawURL]; ok {
			f.cacheMu.RUnlock()
			return cached, nil
		}
		f.cacheMu.RUnlock()

		text, err := f.fetch(ctx, rawURL)
		if err != nil {
			return "", err
		}

		f.cacheMu.Lock()
		f.cache[rawURL] = text
		f.cacheMu.Unlock()

		return text, nil
	})
	if err != nil {
		return "", err
	}

	return result.(string), nil
}

func (f *WebFetcher) fetch(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("failed to fetch url: status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "text/html") {
		pageURL, err := url.Parse(rawURL)
		if err != nil {
			return "", fmt.Errorf("failed to parse url: %w", err)
		}
		article, err := readability.FromReader(resp.Body, pageURL)
		if err != nil {
			return "", fmt.Errorf("%w: failed to parse html: %v", ErrMalformedInput, err)
		}
		var builder strings.Builder
		if err := article.RenderText(&builder); err != nil {
			return "", fmt.Errorf("failed to render article text: %w", err)
		}
		return CleanText(builder.String()), nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	return Extract(ctx, body, typeFromContentType(contentType))
}

func typeFromContentType(contentType string) string {
	base := contentType
	if idx := strings.Index(base, ";"); idx >= 0 {
		base = base[:idx]
	}
	switch strings.TrimSpace(base) {
	case "text/csv":
		return "csv"
	case "text/markdown":
		return "md"
	case "application/pdf":
		return "pdf"
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return "docx"
	default:
		return "txt"
	}
}
