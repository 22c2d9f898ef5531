package canonical

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/shelfmark/shelfmark/internal/entities"
)

// Store is the persistence surface the resolver needs. Lookups return
// (nil, nil) when the record is absent.
type Store interface {
	FindAliasByKey(key string) (*entities.BookAlias, error)
	FindAliasByCanonicalID(canonicalID uint) (*entities.BookAlias, error)
	UpdateAlias(alias *entities.BookAlias) error
	CreateAlias(alias *entities.BookAlias) error

	GetCanonical(id uint) (*entities.CanonicalBookIdentity, error)
	FindCanonicalByVolumeID(externalID string) (*entities.CanonicalBookIdentity, error)
	CreateCanonical(c *entities.CanonicalBookIdentity) error
	UpdateCanonical(c *entities.CanonicalBookIdentity) error

	CreateLinkAudit(audit *entities.CanonicalLinkAudit) error
}

// Outcome is the result of resolving one raw book identity.
type Outcome struct {
	Canonical  *entities.CanonicalBookIdentity `json:"canonical,omitempty"`
	Band       Band                            `json:"band"`
	Mode       entities.ResolutionMode         `json:"mode"`
	Confidence float64                         `json:"confidence"`
	FromAlias  bool                            `json:"from_alias"`

	// NeedsSelection is set for interactive confirm-band resolutions:
	// nothing was persisted and the caller must present Candidates for an
	// explicit choice.
	NeedsSelection bool              `json:"needs_selection,omitempty"`
	Candidates     []ScoredCandidate `json:"candidates,omitempty"`
}

// Resolver drives the scorer against a metadata provider and persists
// canonical identity, alias and audit records. Provider failures never fail
// a resolution: they degrade to a provisional record so one unreachable
// catalog cannot stall an import batch.
type Resolver struct {
	provider   Provider
	store      Store
	cache      *gocache.Cache
	weights    Weights
	thresholds Thresholds
	timeout    time.Duration
}

// NewResolver wires the resolver. The cache is owned by the caller and
// shared across resolutions; it is invalidated here after every alias write.
func NewResolver(provider Provider, store Store, aliasCache *gocache.Cache, w Weights, th Thresholds, providerTimeout time.Duration) *Resolver {
	return &Resolver{
		provider:   provider,
		store:      store,
		cache:      aliasCache,
		weights:    w,
		thresholds: th,
		timeout:    providerTimeout,
	}
}

// AliasKey builds the normalized lookup key for a raw (title, author) pair.
func AliasKey(title, author string) string {
	return NormalizeString(title) + "|" + NormalizeString(author)
}

// Resolve maps one raw (title, author[, isbn]) to a canonical record.
//
// Order of attack: alias index (cache, then store), then provider query,
// then band policy. With interactive set, a confirm-band match persists
// nothing and returns the candidate list instead.
func (r *Resolver) Resolve(ctx context.Context, title, author, isbn string, flow entities.SourceFlow, interactive bool) (*Outcome, error) {
	key := AliasKey(title, author)

	alias, err := r.lookupAlias(key)
	if err != nil {
		return nil, fmt.Errorf("alias lookup: %w", err)
	}
	if alias != nil {
		canonical, err := r.store.GetCanonical(alias.CanonicalID)
		if err != nil {
			return nil, fmt.Errorf("load canonical %d: %w", alias.CanonicalID, err)
		}
		return &Outcome{
			Canonical:  canonical,
			Band:       r.thresholds.Band(alias.Confidence),
			Mode:       alias.ResolutionMode,
			Confidence: alias.Confidence,
			FromAlias:  true,
		}, nil
	}

	candidates, err := r.search(ctx, title, author)
	if err != nil || len(candidates) == 0 {
		if err != nil {
			log.Printf("Canonical resolve: provider failed for %q, degrading to provisional: %v", title, err)
		}
		return r.persistProvisional(title, author, 0, flow)
	}

	scored := ScoreCandidates(title, author, isbn, candidates, r.weights, r.thresholds)
	best := scored[0]
	band := r.thresholds.Band(best.Score)

	switch band {
	case BandAuto:
		return r.persistMatch(title, author, best, entities.MatchStatusVerified, entities.ResolutionModeAuto, flow)
	case BandConfirm:
		if interactive {
			return &Outcome{Band: band, Candidates: scored, Confidence: best.Score, NeedsSelection: true}, nil
		}
		// Unattended imports never block on review; the record is persisted
		// flagged for asynchronous confirmation.
		return r.persistMatch(title, author, best, entities.MatchStatusUserConfirmed, entities.ResolutionModeUserConfirmed, flow)
	default:
		return r.persistProvisional(title, author, best.Score, flow)
	}
}

// ConfirmSelection persists the candidate a user explicitly picked during
// manual entry.
func (r *Resolver) ConfirmSelection(title, author string, candidate Candidate, score float64, flow entities.SourceFlow) (*Outcome, error) {
	return r.persistMatch(title, author, ScoredCandidate{Candidate: candidate, Score: score},
		entities.MatchStatusUserConfirmed, entities.ResolutionModeUserConfirmed, flow)
}

// ConfirmNone records an explicit "none of these": a manual canonical record
// built from the raw strings.
func (r *Resolver) ConfirmNone(title, author string, flow entities.SourceFlow) (*Outcome, error) {
	canonical := &entities.CanonicalBookIdentity{
		Title:           title,
		NormalizedTitle: NormalizeString(title),
		Authors:         author,
		MatchStatus:     entities.MatchStatusUserConfirmed,
		MatchSource:     entities.MatchSourceManual,
	}
	if err := r.store.CreateCanonical(canonical); err != nil {
		return nil, fmt.Errorf("create manual canonical: %w", err)
	}
	if err := r.writeAliasAndAudit(canonical, title, author, 0, entities.ResolutionModeUserConfirmed, "", flow); err != nil {
		return nil, err
	}
	return &Outcome{
		Canonical: canonical,
		Band:      BandProvisional,
		Mode:      entities.ResolutionModeUserConfirmed,
	}, nil
}

// Reconcile retries canonicalization for a provisional record, typically
// from the background queue. Returns true when the record was upgraded to a
// verified provider match.
func (r *Resolver) Reconcile(ctx context.Context, canonicalID uint) (bool, error) {
	canonical, err := r.store.GetCanonical(canonicalID)
	if err != nil {
		return false, fmt.Errorf("load canonical %d: %w", canonicalID, err)
	}
	if canonical.MatchStatus != entities.MatchStatusUnverified {
		return false, nil
	}

	alias, err := r.store.FindAliasByCanonicalID(canonicalID)
	if err != nil {
		return false, fmt.Errorf("load alias for canonical %d: %w", canonicalID, err)
	}
	title, author := canonical.Title, canonical.Authors
	if alias != nil {
		title, author = alias.RawTitle, alias.RawAuthor
	}

	candidates, err := r.search(ctx, title, author)
	if err != nil {
		return false, fmt.Errorf("provider search: %w", err)
	}
	if len(candidates) == 0 {
		return false, nil
	}

	scored := ScoreCandidates(title, author, canonical.ISBN, candidates, r.weights, r.thresholds)
	best := scored[0]
	if r.thresholds.Band(best.Score) != BandAuto {
		return false, nil
	}

	// A canonical record never holds two conflicting volume ids; if another
	// record already owns this one, leave the provisional record for manual
	// reconciliation.
	existing, err := r.store.FindCanonicalByVolumeID(best.Candidate.ExternalID)
	if err != nil {
		return false, fmt.Errorf("volume id lookup: %w", err)
	}
	if existing != nil && existing.ID != canonical.ID {
		log.Printf("Canonical reconcile: volume %s already owned by canonical %d, skipping %d",
			best.Candidate.ExternalID, existing.ID, canonical.ID)
		return false, nil
	}

	canonical.Title = best.Candidate.Title
	canonical.NormalizedTitle = NormalizeString(best.Candidate.Title)
	canonical.Authors = joinAuthors(best.Candidate.Authors)
	canonical.ExternalVolumeID = best.Candidate.ExternalID
	canonical.ISBN = best.Candidate.ISBN
	canonical.CoverURL = best.Candidate.CoverURL
	canonical.MatchStatus = entities.MatchStatusVerified
	canonical.MatchSource = entities.MatchSourceProvider
	if err := r.store.UpdateCanonical(canonical); err != nil {
		return false, fmt.Errorf("update canonical %d: %w", canonicalID, err)
	}

	if alias != nil {
		alias.Confidence = best.Score
		alias.ResolutionMode = entities.ResolutionModeAuto
		if err := r.store.UpdateAlias(alias); err != nil {
			return false, fmt.Errorf("update alias %d: %w", alias.ID, err)
		}
		r.invalidate(alias.NormalizedKey)
	}

	confidence := best.Score
	audit := &entities.CanonicalLinkAudit{
		AuditID:        uuid.NewString(),
		CanonicalID:    canonical.ID,
		SourceFlow:     entities.SourceFlowImport,
		ResolutionMode: entities.ResolutionModeAuto,
		Confidence:     &confidence,
		ProviderID:     best.Candidate.ExternalID,
		ResolvedAt:     time.Now(),
	}
	if err := r.store.CreateLinkAudit(audit); err != nil {
		return false, fmt.Errorf("create link audit: %w", err)
	}

	return true, nil
}

func (r *Resolver) search(ctx context.Context, title, author string) ([]Candidate, error) {
	searchCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	candidates, err := r.provider.Search(searchCtx, title, author)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: timeout after %s", ErrProviderUnavailable, r.timeout)
		}
		return nil, err
	}
	return candidates, nil
}

func (r *Resolver) lookupAlias(key string) (*entities.BookAlias, error) {
	if r.cache != nil {
		if cached, ok := r.cache.Get(key); ok {
			return cached.(*entities.BookAlias), nil
		}
	}
	alias, err := r.store.FindAliasByKey(key)
	if err != nil {
		return nil, err
	}
	if alias != nil && r.cache != nil {
		r.cache.SetDefault(key, alias)
	}
	return alias, nil
}

func (r *Resolver) invalidate(key string) {
	if r.cache != nil {
		r.cache.Delete(key)
	}
}

// persistMatch creates or reuses a canonical record for a scored provider
// candidate and writes the alias + audit pair.
func (r *Resolver) persistMatch(title, author string, best ScoredCandidate, status entities.MatchStatus, mode entities.ResolutionMode, flow entities.SourceFlow) (*Outcome, error) {
	canonical, err := r.store.FindCanonicalByVolumeID(best.Candidate.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("volume id lookup: %w", err)
	}
	if canonical == nil {
		canonical = &entities.CanonicalBookIdentity{
			Title:            best.Candidate.Title,
			NormalizedTitle:  NormalizeString(best.Candidate.Title),
			Authors:          joinAuthors(best.Candidate.Authors),
			ExternalVolumeID: best.Candidate.ExternalID,
			ISBN:             best.Candidate.ISBN,
			CoverURL:         best.Candidate.CoverURL,
			MatchStatus:      status,
			MatchSource:      entities.MatchSourceProvider,
		}
		if err := r.store.CreateCanonical(canonical); err != nil {
			return nil, fmt.Errorf("create canonical: %w", err)
		}
	}

	if err := r.writeAliasAndAudit(canonical, title, author, best.Score, mode, best.Candidate.ExternalID, flow); err != nil {
		return nil, err
	}

	return &Outcome{
		Canonical:  canonical,
		Band:       r.thresholds.Band(best.Score),
		Mode:       mode,
		Confidence: best.Score,
	}, nil
}

// persistProvisional creates an unverified fallback record from the raw
// strings. Used when the provider is unavailable, returns nothing, or no
// candidate clears the confirm threshold.
func (r *Resolver) persistProvisional(title, author string, confidence float64, flow entities.SourceFlow) (*Outcome, error) {
	canonical := &entities.CanonicalBookIdentity{
		Title:           title,
		NormalizedTitle: NormalizeString(title),
		Authors:         author,
		MatchStatus:     entities.MatchStatusUnverified,
		MatchSource:     entities.MatchSourceFallback,
	}
	if err := r.store.CreateCanonical(canonical); err != nil {
		return nil, fmt.Errorf("create provisional canonical: %w", err)
	}

	if err := r.writeAliasAndAudit(canonical, title, author, confidence, entities.ResolutionModeProvisional, "", flow); err != nil {
		return nil, err
	}

	return &Outcome{
		Canonical:  canonical,
		Band:       BandProvisional,
		Mode:       entities.ResolutionModeProvisional,
		Confidence: confidence,
	}, nil
}

func (r *Resolver) writeAliasAndAudit(canonical *entities.CanonicalBookIdentity, title, author string, confidence float64, mode entities.ResolutionMode, providerID string, flow entities.SourceFlow) error {
	key := AliasKey(title, author)
	alias := &entities.BookAlias{
		NormalizedKey:  key,
		RawTitle:       title,
		RawAuthor:      author,
		CanonicalID:    canonical.ID,
		Confidence:     confidence,
		ResolutionMode: mode,
	}
	if err := r.store.CreateAlias(alias); err != nil {
		return fmt.Errorf("create alias: %w", err)
	}
	r.invalidate(key)

	c := confidence
	audit := &entities.CanonicalLinkAudit{
		AuditID:        uuid.NewString(),
		CanonicalID:    canonical.ID,
		SourceFlow:     flow,
		ResolutionMode: mode,
		Confidence:     &c,
		ProviderID:     providerID,
		ResolvedAt:     time.Now(),
	}
	if err := r.store.CreateLinkAudit(audit); err != nil {
		return fmt.Errorf("create link audit: %w", err)
	}
	return nil
}

func joinAuthors(authors []string) string {
	return strings.Join(authors, ", ")
}
