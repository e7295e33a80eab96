// Package feed provides RSS/Atom feed fetching and parsing for feed-push.
package feed

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/robertmeta/feed-push/model"
)

// DefaultTimeout bounds a single feed request.
const DefaultTimeout = 15 * time.Second

// DefaultHeaders are sent with every feed request. Some feed hosts reject
// requests that do not look like a browser.
var DefaultHeaders = map[string]string{
	"User-Agent": "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Accept":     "*/*",
	"Connection": "keep-alive",
}

// Fetcher handles fetching and parsing RSS/Atom feeds.
type Fetcher struct {
	parser  *gofeed.Parser
	client  *http.Client
	headers map[string]string
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithClient replaces the HTTP client.
func WithClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithHeaders replaces the request header set.
func WithHeaders(h map[string]string) Option {
	return func(f *Fetcher) { f.headers = h }
}

// NewFetcher creates a new Fetcher. A timeout of zero uses DefaultTimeout.
func NewFetcher(timeout time.Duration, opts ...Option) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	f := &Fetcher{
		parser:  gofeed.NewParser(),
		client:  &http.Client{Timeout: timeout},
		headers: DefaultHeaders,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch retrieves and parses a feed from a URL.
// Entries are returned in source order.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]model.Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed from %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("failed to fetch feed from %s: HTTP %d", url, resp.StatusCode)
	}

	parsedFeed, err := f.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed from %s: %w", url, err)
	}
	return convert(parsedFeed), nil
}

// Parse parses feed content from a string.
func (f *Fetcher) Parse(content string) ([]model.Entry, error) {
	if content == "" {
		return nil, fmt.Errorf("feed content is empty")
	}

	parsedFeed, err := f.parser.ParseString(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}
	return convert(parsedFeed), nil
}

// convert converts a gofeed.Feed to our model types.
func convert(gf *gofeed.Feed) []model.Entry {
	entries := make([]model.Entry, 0, len(gf.Items))
	for _, item := range gf.Items {
		if item == nil {
			continue
		}
		entries = append(entries, convertItem(item))
	}
	return entries
}

// convertItem converts a gofeed.Item to a model.Entry.
func convertItem(item *gofeed.Item) model.Entry {
	entry := model.Entry{
		Link:      strings.TrimSpace(item.Link),
		Title:     item.Title,
		Content:   item.Content,
		Summary:   item.Description,
		Updated:   item.Updated,
		Published: item.Published,
	}

	// Fall back to the GUID when the item has no link
	if entry.Link == "" {
		entry.Link = strings.TrimSpace(item.GUID)
	}

	return entry
}
