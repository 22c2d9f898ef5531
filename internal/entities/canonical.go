package entities

import "time"

type MatchStatus string

const (
	MatchStatusVerified      MatchStatus = "verified"
	MatchStatusUnverified    MatchStatus = "unverified"
	MatchStatusUserConfirmed MatchStatus = "user_confirmed"
)

type MatchSource string

const (
	MatchSourceProvider MatchSource = "provider"
	MatchSourceManual   MatchSource = "manual"
	MatchSourceFallback MatchSource = "fallback"
)

type ResolutionMode string

const (
	ResolutionModeAuto          ResolutionMode = "auto"
	ResolutionModeUserConfirmed ResolutionMode = "user_confirmed"
	ResolutionModeProvisional   ResolutionMode = "provisional"
)

type SourceFlow string

const (
	SourceFlowImport      SourceFlow = "import"
	SourceFlowManualEntry SourceFlow = "manual_entry"
)

// CanonicalBookIdentity is the single catalog record standing for one
// real-world book across all raw title/author variants seen in imports.
type CanonicalBookIdentity struct {
	ID              uint        `gorm:"primaryKey" json:"id"`
	Title           string      `gorm:"size:512" json:"title"`
	NormalizedTitle string      `gorm:"index;size:512" json:"-"`
	Authors         string      `gorm:"size:512" json:"authors"`
	ExternalVolumeID string     `gorm:"index;size:256" json:"external_volume_id,omitempty"`
	ISBN            string      `gorm:"index;size:20" json:"isbn,omitempty"`
	CoverURL        string      `gorm:"size:2048" json:"cover_url,omitempty"`
	MatchStatus     MatchStatus `gorm:"size:20" json:"match_status"`
	MatchSource     MatchSource `gorm:"size:20" json:"match_source"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// BookAlias maps one normalized raw (title, author) key to a canonical
// record. Many aliases may point at the same canonical book; an alias never
// points at more than one.
type BookAlias struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	NormalizedKey  string         `gorm:"uniqueIndex;size:800" json:"-"`
	RawTitle       string         `gorm:"size:512" json:"raw_title"`
	RawAuthor      string         `gorm:"size:256" json:"raw_author"`
	CanonicalID    uint           `gorm:"index" json:"canonical_id"`
	Confidence     float64        `json:"confidence"`
	ResolutionMode ResolutionMode `gorm:"size:20" json:"resolution_mode"`
	CreatedAt      time.Time      `json:"created_at"`
}

// CanonicalLinkAudit records one resolution event. Written once, never
// updated.
type CanonicalLinkAudit struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	AuditID        string         `gorm:"uniqueIndex;size:36" json:"audit_id"`
	CanonicalID    uint           `gorm:"index" json:"canonical_id"`
	SourceFlow     SourceFlow     `gorm:"size:20" json:"source_flow"`
	ResolutionMode ResolutionMode `gorm:"size:20" json:"resolution_mode"`
	Confidence     *float64       `json:"confidence,omitempty"`
	ProviderID     string         `gorm:"size:256" json:"provider_id,omitempty"`
	ResolvedAt     time.Time      `gorm:"index" json:"resolved_at"`
}

func (CanonicalBookIdentity) TableName() string {
	return "canonical_books"
}

func (BookAlias) TableName() string {
	return "book_aliases"
}

func (CanonicalLinkAudit) TableName() string {
	return "canonical_link_audits"
}
