// Package canonical provides database operations for canonical book
// identities, alias mappings and resolution audit records.
package canonical

import (
	"gorm.io/gorm"

	resolver "github.com/shelfmark/shelfmark/internal/canonical"
	"github.com/shelfmark/shelfmark/internal/entities"
)

// Repository handles canonical identity persistence. It is the Store the
// resolver runs against; absent records are reported as (nil, nil).
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new canonical repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

var _ resolver.Store = (*Repository)(nil)

// FindAliasByKey looks up an alias by its normalized (title, author) key.
func (r *Repository) FindAliasByKey(key string) (*entities.BookAlias, error) {
	var alias entities.BookAlias
	err := r.db.Where("normalized_key = ?", key).First(&alias).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &alias, nil
}

// FindAliasByCanonicalID returns the oldest alias pointing at a canonical
// record, used to recover the raw strings for re-resolution.
func (r *Repository) FindAliasByCanonicalID(canonicalID uint) (*entities.BookAlias, error) {
	var alias entities.BookAlias
	err := r.db.Where("canonical_id = ?", canonicalID).Order("created_at ASC").First(&alias).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &alias, nil
}

// CreateAlias inserts a new alias mapping.
func (r *Repository) CreateAlias(alias *entities.BookAlias) error {
	return r.db.Create(alias).Error
}

// UpdateAlias persists changes to an existing alias.
func (r *Repository) UpdateAlias(alias *entities.BookAlias) error {
	return r.db.Save(alias).Error
}

// GetCanonical retrieves a canonical record by ID.
func (r *Repository) GetCanonical(id uint) (*entities.CanonicalBookIdentity, error) {
	var canonical entities.CanonicalBookIdentity
	err := r.db.First(&canonical, id).Error
	if err != nil {
		return nil, err
	}
	return &canonical, nil
}

// FindCanonicalByVolumeID looks up the canonical record owning a provider
// volume id.
func (r *Repository) FindCanonicalByVolumeID(externalID string) (*entities.CanonicalBookIdentity, error) {
	if externalID == "" {
		return nil, nil
	}
	var canonical entities.CanonicalBookIdentity
	err := r.db.Where("external_volume_id = ?", externalID).First(&canonical).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &canonical, nil
}

// CreateCanonical inserts a new canonical record.
func (r *Repository) CreateCanonical(c *entities.CanonicalBookIdentity) error {
	return r.db.Create(c).Error
}

// UpdateCanonical persists changes to an existing canonical record.
func (r *Repository) UpdateCanonical(c *entities.CanonicalBookIdentity) error {
	return r.db.Save(c).Error
}

// CreateLinkAudit inserts an immutable resolution audit record.
func (r *Repository) CreateLinkAudit(audit *entities.CanonicalLinkAudit) error {
	return r.db.Create(audit).Error
}

// ListProvisional returns unverified canonical records, oldest first. The
// background sweep feeds these back through the resolver.
func (r *Repository) ListProvisional(limit int) ([]entities.CanonicalBookIdentity, error) {
	var records []entities.CanonicalBookIdentity
	query := r.db.Where("match_status = ?", entities.MatchStatusUnverified).Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&records).Error
	return records, err
}

// ListAuditsForCanonical returns the resolution history of one canonical
// record, most recent first.
func (r *Repository) ListAuditsForCanonical(canonicalID uint) ([]entities.CanonicalLinkAudit, error) {
	var audits []entities.CanonicalLinkAudit
	err := r.db.Where("canonical_id = ?", canonicalID).Order("resolved_at DESC").Find(&audits).Error
	return audits, err
}
