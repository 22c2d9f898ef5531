package canonical

import (
	"context"
	"errors"
)

// Candidate is one external catalog record returned by a metadata provider.
type Candidate struct {
	Title      string   `json:"title"`
	Authors    []string `json:"authors,omitempty"`
	ISBN       string   `json:"isbn,omitempty"`
	ExternalID string   `json:"external_id"`
	CoverURL   string   `json:"cover_url,omitempty"`
}

// ErrProviderUnavailable signals that the provider could not be reached or
// timed out. The resolver treats it the same as an empty candidate list.
var ErrProviderUnavailable = errors.New("metadata provider unavailable")

// Provider looks up catalog candidates for a raw (title, author) pair.
// Implementations must honor ctx cancellation and deadlines.
type Provider interface {
	Search(ctx context.Context, title, author string) ([]Candidate, error)
}

// EmptyProvider always returns no candidates. It keeps canonicalization
// logic exercisable without network access: every resolution degrades to the
// provisional path.
type EmptyProvider struct{}

func (EmptyProvider) Search(ctx context.Context, title, author string) ([]Candidate, error) {
	return nil, nil
}

var _ Provider = EmptyProvider{}
