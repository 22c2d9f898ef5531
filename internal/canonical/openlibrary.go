package canonical

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"
)

const defaultSearchLimit = 5

// OpenLibraryClient queries the OpenLibrary search API for catalog
// candidates. Requests are rate limited to one per second and bounded by the
// HTTP client timeout; any transport or decode failure is reported as
// ErrProviderUnavailable so the resolver can degrade to a provisional record.
type OpenLibraryClient struct {
	httpClient  *http.Client
	baseURL     string
	rateLimiter *rateLimiter
}

type rateLimiter struct {
	mu       sync.Mutex
	lastCall time.Time
	interval time.Duration
}

func newRateLimiter(interval time.Duration) *rateLimiter {
	return &rateLimiter{interval: interval}
}

func (r *rateLimiter) wait() {
	r.mu.Lock()
	defer r.mu.Unlock()

	since := time.Since(r.lastCall)
	if since < r.interval {
		time.Sleep(r.interval - since)
	}
	r.lastCall = time.Now()
}

// NewOpenLibraryClient creates a rate-limited OpenLibrary client with the
// given request timeout.
func NewOpenLibraryClient(timeout time.Duration) *OpenLibraryClient {
	return &OpenLibraryClient{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     "https://openlibrary.org",
		rateLimiter: newRateLimiter(time.Second), // 1 request per second
	}
}

// SetBaseURL overrides the API endpoint, used by tests against a local server.
func (c *OpenLibraryClient) SetBaseURL(base string) {
	c.baseURL = base
}

// Search returns up to five candidates for the raw title/author pair.
func (c *OpenLibraryClient) Search(ctx context.Context, title, author string) ([]Candidate, error) {
	if title == "" {
		return nil, fmt.Errorf("title is required")
	}

	c.rateLimiter.wait()

	q := title
	if author != "" {
		q = fmt.Sprintf("%s %s", title, author)
	}
	searchURL := fmt.Sprintf("%s/search.json?q=%s&limit=%d", c.baseURL, url.QueryEscape(q), defaultSearchLimit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Shelfmark/1.0 (https://github.com/shelfmark/shelfmark)")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrProviderUnavailable, resp.StatusCode)
	}

	var searchResult openLibrarySearchResult
	if err := json.NewDecoder(resp.Body).Decode(&searchResult); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrProviderUnavailable, err)
	}

	candidates := make([]Candidate, 0, len(searchResult.Docs))
	for _, doc := range searchResult.Docs {
		candidates = append(candidates, docToCandidate(doc))
	}
	return candidates, nil
}

func docToCandidate(doc openLibrarySearchDoc) Candidate {
	c := Candidate{
		Title:      doc.Title,
		Authors:    doc.AuthorName,
		ExternalID: doc.Key,
	}
	if len(doc.ISBN) > 0 {
		c.ISBN = doc.ISBN[0]
		c.CoverURL = fmt.Sprintf("https://covers.openlibrary.org/b/isbn/%s-L.jpg", doc.ISBN[0])
	} else if doc.CoverI != 0 {
		c.CoverURL = fmt.Sprintf("https://covers.openlibrary.org/b/id/%d-L.jpg", doc.CoverI)
	}
	return c
}

var _ Provider = (*OpenLibraryClient)(nil)

// OpenLibrary API response types (internal)

type openLibrarySearchResult struct {
	NumFound int                    `json:"numFound"`
	Docs     []openLibrarySearchDoc `json:"docs"`
}

type openLibrarySearchDoc struct {
	Key        string   `json:"key"`
	Title      string   `json:"title"`
	AuthorName []string `json:"author_name"`
	ISBN       []string `json:"isbn"`
	CoverI     int      `json:"cover_i"`
}
