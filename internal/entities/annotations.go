package entities

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

type NoteType string

const (
	NoteTypeHighlight NoteType = "highlight"
	NoteTypeNote      NoteType = "note"
	NoteTypeBookmark  NoteType = "bookmark"
)

type ImportStatus string

const (
	ImportStatusStarting      ImportStatus = "starting"
	ImportStatusParsing       ImportStatus = "parsing"
	ImportStatusDeduplicating ImportStatus = "deduplicating"
	ImportStatusStoring       ImportStatus = "storing"
	ImportStatusCompleted     ImportStatus = "completed"
	ImportStatusFailed        ImportStatus = "failed"
	ImportStatusCancelled     ImportStatus = "cancelled"
)

// IsTerminal reports whether no further status transition is allowed.
func (s ImportStatus) IsTerminal() bool {
	return s == ImportStatusCompleted || s == ImportStatusFailed || s == ImportStatusCancelled
}

type Source struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"uniqueIndex;size:50" json:"name"`
	DisplayName string    `gorm:"size:100" json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

type Book struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	Title         string         `gorm:"index;size:512" json:"title"`
	Author        string         `gorm:"index;size:256" json:"author"`
	NormalizedKey string         `gorm:"uniqueIndex;size:800" json:"-"`
	NoteCount     int            `json:"note_count"`
	CanonicalID   *uint          `gorm:"index" json:"canonical_id,omitempty"`
	SourceID      uint           `gorm:"index" json:"source_id"`
	Source        Source         `gorm:"foreignKey:SourceID" json:"source,omitempty"`
	Notes         []Note         `gorm:"foreignKey:BookID" json:"notes,omitempty"`
	Tags          []Tag          `gorm:"many2many:book_tags;" json:"tags,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

// Note unifies highlights, free-form notes and bookmarks. A note-type record
// may carry AssociatedHighlightID pointing at the highlight it comments on;
// the target must be a highlight in the same book and never the note itself.
type Note struct {
	ID     uint     `gorm:"primaryKey" json:"id"`
	BookID uint     `gorm:"index" json:"book_id"`
	Type   NoteType `gorm:"index;size:20" json:"type"`
	Text   string   `gorm:"type:text" json:"text"`

	// Location information. Absent and invalid are distinct: a note parsed
	// without a usable location keeps nil pointers.
	LocationStart *int `gorm:"index" json:"location_start,omitempty"`
	LocationEnd   *int `json:"location_end,omitempty"`
	Page          *int `json:"page,omitempty"`

	// ContentHash is the hash of the normalized text, used for dedup keying.
	ContentHash string `gorm:"index;size:64" json:"-"`

	AssociatedHighlightID *uint `gorm:"index" json:"associated_highlight_id,omitempty"`

	AnnotatedAt time.Time `json:"annotated_at,omitempty"`
	SourceID    uint      `gorm:"index" json:"source_id"`
	Source      Source    `gorm:"foreignKey:SourceID" json:"source,omitempty"`
	Tags        []Tag     `gorm:"many2many:note_tags;" json:"tags,omitempty"`

	Book Book `gorm:"foreignKey:BookID" json:"-"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

type Tag struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"index;size:100" json:"name"`
	Books     []Book    `gorm:"many2many:book_tags;" json:"-"`
	Notes     []Note    `gorm:"many2many:note_tags;" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

type ImportSession struct {
	ID         uint         `gorm:"primaryKey" json:"id"`
	SourceFile string       `gorm:"size:512" json:"source_file"`
	SourceSize int64        `json:"source_size"`
	Status     ImportStatus `gorm:"size:20;default:'starting'" json:"status"`

	EntriesParsed     int `json:"entries_parsed"`
	EntriesSkipped    int `json:"entries_skipped"`
	BooksAdded        int `json:"books_added"`
	NotesAdded        int `json:"notes_added"`
	NotesUpdated      int `json:"notes_updated"`
	DuplicatesSkipped int `json:"duplicates_skipped"`
	ManualReview      int `json:"manual_review"`
	NotesAssociated   int `json:"notes_associated"`
	NotesStandalone   int `json:"notes_standalone"`
	CanonicalAuto     int `json:"canonical_auto"`
	CanonicalConfirm  int `json:"canonical_confirm"`
	CanonicalFallback int `json:"canonical_provisional"`

	Error       string     `gorm:"size:1000" json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (Source) TableName() string {
	return "sources"
}

func (Tag) TableName() string {
	return "tags"
}

func (ImportSession) TableName() string {
	return "import_sessions"
}

// BookKey builds the normalized (title, author) key used for grouping raw
// entries, book lookups and alias resolution.
func BookKey(title, author string) string {
	return strings.ToLower(strings.TrimSpace(title)) + "|" + strings.ToLower(strings.TrimSpace(author))
}
