package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/shelfmark/shelfmark/internal/canonical"
	"github.com/shelfmark/shelfmark/internal/database"
	"github.com/shelfmark/shelfmark/internal/database/books"
	"github.com/shelfmark/shelfmark/internal/dedup"
	"github.com/shelfmark/shelfmark/internal/entities"
)

const manualSourceName = "manual"

// ManualEntryController handles one-off book and note creation outside the
// clippings pipeline. Canonical resolution runs interactively: a confirm-band
// match returns the candidate list instead of persisting a link.
type ManualEntryController struct {
	books    *books.Repository
	db       *database.Database
	resolver *canonical.Resolver
}

func NewManualEntryController(booksRepo *books.Repository, db *database.Database, resolver *canonical.Resolver) *ManualEntryController {
	return &ManualEntryController{
		books:    booksRepo,
		db:       db,
		resolver: resolver,
	}
}

type ManualEntryRequest struct {
	Title    string `json:"title"`
	Author   string `json:"author"`
	ISBN     string `json:"isbn"`
	Text     string `json:"text"`
	NoteType string `json:"note_type"`
}

func (r ManualEntryRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.Required, validation.Length(1, 512)),
		validation.Field(&r.Author, validation.Required, validation.Length(1, 256)),
		validation.Field(&r.ISBN, validation.Length(10, 17)),
		validation.Field(&r.Text, validation.Length(0, 65535)),
		validation.Field(&r.NoteType, validation.In("", string(entities.NoteTypeHighlight), string(entities.NoteTypeNote), string(entities.NoteTypeBookmark))),
	)
}

type ManualEntryResponse struct {
	Book           *entities.Book              `json:"book"`
	Note           *entities.Note              `json:"note,omitempty"`
	NeedsSelection bool                        `json:"needs_selection,omitempty"`
	Candidates     []canonical.ScoredCandidate `json:"candidates,omitempty"`
	Resolution     *canonical.Outcome          `json:"resolution,omitempty"`
}

// Create adds a book (and optionally its first note) from explicit user
// input. When canonical resolution lands in the confirm band the response
// carries the candidate list; the client follows up on the confirm endpoints.
func (m *ManualEntryController) Create(ctx *gin.Context) {
	var req ManualEntryRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := req.Validate(); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	source, err := m.db.GetSourceByName(manualSourceName)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Manual source not configured"})
		return
	}

	book, _, err := m.books.GetOrCreateBook(req.Title, req.Author, source.ID)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create book"})
		return
	}

	resp := &ManualEntryResponse{Book: book}

	if req.Text != "" {
		noteType := entities.NoteType(req.NoteType)
		if noteType == "" {
			noteType = entities.NoteTypeNote
		}
		note := &entities.Note{
			BookID:      book.ID,
			Type:        noteType,
			Text:        req.Text,
			ContentHash: dedup.ContentHash(req.Text),
			AnnotatedAt: time.Now(),
			SourceID:    source.ID,
		}
		if err := m.books.CreateNote(note); err != nil {
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create note"})
			return
		}
		if err := m.books.RefreshNoteCount(book.ID); err != nil {
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to refresh note count"})
			return
		}
		resp.Note = note
	}

	if book.CanonicalID == nil && m.resolver != nil {
		outcome, err := m.resolver.Resolve(ctx.Request.Context(), req.Title, req.Author, req.ISBN, entities.SourceFlowManualEntry, true)
		if err != nil {
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Canonical resolution failed"})
			return
		}
		if outcome.NeedsSelection {
			resp.NeedsSelection = true
			resp.Candidates = outcome.Candidates
		} else if outcome.Canonical != nil {
			if err := m.books.SetCanonical(book.ID, outcome.Canonical.ID); err != nil {
				ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to link canonical record"})
				return
			}
			book.CanonicalID = &outcome.Canonical.ID
			resp.Resolution = outcome
		}
	}

	ctx.IndentedJSON(http.StatusCreated, resp)
}

type ConfirmSelectionRequest struct {
	BookID    uint                `json:"book_id"`
	Title     string              `json:"title"`
	Author    string              `json:"author"`
	Candidate canonical.Candidate `json:"candidate"`
	Score     float64             `json:"score"`
}

func (r ConfirmSelectionRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.BookID, validation.Required),
		validation.Field(&r.Title, validation.Required, validation.Length(1, 512)),
		validation.Field(&r.Score, validation.Min(0.0), validation.Max(1.0)),
	)
}

// ConfirmSelection persists the candidate the user picked from a confirm-band
// resolution and links the book.
func (m *ManualEntryController) ConfirmSelection(ctx *gin.Context) {
	var req ConfirmSelectionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := req.Validate(); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Candidate.ExternalID == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Candidate external_id is required"})
		return
	}

	outcome, err := m.resolver.ConfirmSelection(req.Title, req.Author, req.Candidate, req.Score, entities.SourceFlowManualEntry)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to persist selection"})
		return
	}

	if err := m.books.SetCanonical(req.BookID, outcome.Canonical.ID); err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to link canonical record"})
		return
	}

	ctx.IndentedJSON(http.StatusOK, outcome)
}

type ConfirmNoneRequest struct {
	BookID uint   `json:"book_id"`
	Title  string `json:"title"`
	Author string `json:"author"`
}

func (r ConfirmNoneRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.BookID, validation.Required),
		validation.Field(&r.Title, validation.Required, validation.Length(1, 512)),
	)
}

// ConfirmNone records an explicit "none of these": a manual canonical record
// built from the raw strings, linked to the book.
func (m *ManualEntryController) ConfirmNone(ctx *gin.Context) {
	var req ConfirmNoneRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := req.Validate(); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcome, err := m.resolver.ConfirmNone(req.Title, req.Author, entities.SourceFlowManualEntry)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create manual record"})
		return
	}

	if err := m.books.SetCanonical(req.BookID, outcome.Canonical.ID); err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to link canonical record"})
		return
	}

	ctx.IndentedJSON(http.StatusOK, outcome)
}
