// Package importer drives one clippings import end to end: tokenize the
// export, group entries by book, resolve canonical identity, classify each
// entry against the stored notes, persist, and recompute note-to-highlight
// associations.
package importer

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/shelfmark/shelfmark/internal/associate"
	"github.com/shelfmark/shelfmark/internal/audit"
	"github.com/shelfmark/shelfmark/internal/canonical"
	"github.com/shelfmark/shelfmark/internal/clippings"
	"github.com/shelfmark/shelfmark/internal/database"
	"github.com/shelfmark/shelfmark/internal/database/books"
	"github.com/shelfmark/shelfmark/internal/database/sessions"
	"github.com/shelfmark/shelfmark/internal/dedup"
	"github.com/shelfmark/shelfmark/internal/entities"
)

const clippingsSourceName = "kindle_clippings"

// Coordinator owns the import session lifecycle. One book failing to persist
// never aborts the rest of the file; only a rejected parse or a cancelled
// context ends the session early.
type Coordinator struct {
	db        *database.Database
	books     *books.Repository
	sessions  *sessions.Repository
	resolver  *canonical.Resolver
	auditSvc  *audit.Service
	auditor   *audit.Auditor
	tokenizer *clippings.Tokenizer
}

// NewCoordinator wires an import coordinator. auditSvc and auditor may be nil
// when audit trails are not wanted (tests, one-off CLI runs).
func NewCoordinator(
	db *database.Database,
	booksRepo *books.Repository,
	sessionsRepo *sessions.Repository,
	resolver *canonical.Resolver,
	auditSvc *audit.Service,
	auditor *audit.Auditor,
	errorBudget int,
) *Coordinator {
	return &Coordinator{
		db:        db,
		books:     booksRepo,
		sessions:  sessionsRepo,
		resolver:  resolver,
		auditSvc:  auditSvc,
		auditor:   auditor,
		tokenizer: clippings.NewTokenizer(errorBudget),
	}
}

// bookGroup collects the entries of one book in file order.
type bookGroup struct {
	title   string
	author  string
	entries []clippings.RawEntry
}

// Run imports one clippings export and returns the finished session record.
// The returned error is non-nil only when the session itself could not be
// driven; a failed parse still produces a session in the failed state.
func (c *Coordinator) Run(ctx context.Context, sourceFile string, sourceSize int64, r io.Reader) (*entities.ImportSession, error) {
	session, err := c.sessions.CreateSession(sourceFile, sourceSize)
	if err != nil {
		return nil, fmt.Errorf("create import session: %w", err)
	}

	session.Status = entities.ImportStatusParsing
	if err := c.sessions.UpdateSession(session); err != nil {
		return nil, err
	}

	result, err := c.tokenizer.Tokenize(r)
	if err != nil {
		return c.fail(session, err)
	}
	session.EntriesParsed = len(result.Entries)
	session.EntriesSkipped = len(result.Skipped)
	for _, w := range result.Warnings {
		log.Printf("Import session %d: %s", session.ID, w)
	}
	c.saveSkipReport(session, sourceFile, result)

	session.Status = entities.ImportStatusDeduplicating
	if err := c.sessions.UpdateSession(session); err != nil {
		return nil, err
	}
	groups := groupByBook(result.Entries)

	source, err := c.db.GetSourceByName(clippingsSourceName)
	if err != nil {
		return c.fail(session, fmt.Errorf("lookup source: %w", err))
	}

	session.Status = entities.ImportStatusStoring
	if err := c.sessions.UpdateSession(session); err != nil {
		return nil, err
	}

	var firstBookErr error
	for _, group := range groups {
		if err := ctx.Err(); err != nil {
			return c.cancel(session)
		}
		if err := c.importBook(ctx, session, source.ID, group); err != nil {
			log.Printf("Import session %d: book %q failed: %v", session.ID, group.title, err)
			if firstBookErr == nil {
				firstBookErr = err
			}
		}
	}

	if firstBookErr != nil {
		session.Error = firstBookErr.Error()
	}
	if err := c.sessions.FinishSession(session, entities.ImportStatusCompleted); err != nil {
		return nil, err
	}

	if c.auditSvc != nil {
		c.auditSvc.LogImport(session.ID,
			fmt.Sprintf("Imported %q: %d books added, %d notes added, %d updated, %d duplicates",
				sourceFile, session.BooksAdded, session.NotesAdded, session.NotesUpdated, session.DuplicatesSkipped),
			session.BooksAdded, session.NotesAdded, firstBookErr)
	}

	return session, nil
}

// importBook persists one book group: canonical resolution, dedup
// classification, note writes and the association pass.
func (c *Coordinator) importBook(ctx context.Context, session *entities.ImportSession, sourceID uint, group bookGroup) error {
	book, created, err := c.books.GetOrCreateBook(group.title, group.author, sourceID)
	if err != nil {
		return err
	}
	if created {
		session.BooksAdded++
	}

	if book.CanonicalID == nil {
		c.resolveCanonical(ctx, session, book, group)
	}

	existing, err := c.books.GetNotesForBook(book.ID)
	if err != nil {
		return fmt.Errorf("load notes: %w", err)
	}
	existingPtrs := make([]*entities.Note, len(existing))
	for i := range existing {
		existingPtrs[i] = &existing[i]
	}
	index := dedup.NewIndex(existingPtrs)

	for _, entry := range group.entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.importEntry(session, book, sourceID, index, entry); err != nil {
			return err
		}
	}

	if err := c.books.RefreshNoteCount(book.ID); err != nil {
		return err
	}

	return c.associateNotes(session, book.ID)
}

func (c *Coordinator) importEntry(session *entities.ImportSession, book *entities.Book, sourceID uint, index *dedup.Index, entry clippings.RawEntry) error {
	verdict := index.Classify(entry)
	switch verdict.Class {
	case dedup.ClassExact:
		session.DuplicatesSkipped++
		return nil

	case dedup.ClassManualReview:
		session.ManualReview++
		log.Printf("Import session %d: ambiguous entry in %q routed to manual review", session.ID, book.Title)
		return nil

	case dedup.ClassUpdate:
		existing := verdict.Existing
		oldHash := existing.ContentHash
		if oldHash == "" {
			oldHash = dedup.ContentHash(existing.Text)
		}
		existing.Text = entry.Text
		existing.ContentHash = dedup.ContentHash(entry.Text)
		existing.Page = entry.Page
		if entry.Location != nil {
			existing.LocationEnd = entry.Location.End
		}
		existing.AnnotatedAt = entry.AddedAt
		if err := c.books.UpdateNote(existing); err != nil {
			return fmt.Errorf("update note: %w", err)
		}
		index.Reindex(existing, oldHash)
		session.NotesUpdated++
		return nil

	default: // unique
		note := &entities.Note{
			BookID:      book.ID,
			Type:        entry.Type,
			Text:        entry.Text,
			ContentHash: dedup.ContentHash(entry.Text),
			Page:        entry.Page,
			AnnotatedAt: entry.AddedAt,
			SourceID:    sourceID,
		}
		if entry.Location != nil {
			start := entry.Location.Start
			note.LocationStart = &start
			note.LocationEnd = entry.Location.End
		}
		if err := c.books.CreateNote(note); err != nil {
			return fmt.Errorf("create note: %w", err)
		}
		index.Observe(note)
		session.NotesAdded++
		return nil
	}
}

// resolveCanonical links the book to its canonical identity. A resolver
// failure is logged and left for the background sweep; the import goes on.
func (c *Coordinator) resolveCanonical(ctx context.Context, session *entities.ImportSession, book *entities.Book, group bookGroup) {
	if c.resolver == nil {
		return
	}
	outcome, err := c.resolver.Resolve(ctx, group.title, group.author, "", entities.SourceFlowImport, false)
	if err != nil {
		log.Printf("Import session %d: canonical resolution failed for %q: %v", session.ID, group.title, err)
		return
	}
	if outcome.Canonical == nil {
		return
	}
	if err := c.books.SetCanonical(book.ID, outcome.Canonical.ID); err != nil {
		log.Printf("Import session %d: linking book %d to canonical %d failed: %v",
			session.ID, book.ID, outcome.Canonical.ID, err)
		return
	}
	book.CanonicalID = &outcome.Canonical.ID

	if outcome.FromAlias {
		return
	}
	switch outcome.Band {
	case canonical.BandAuto:
		session.CanonicalAuto++
	case canonical.BandConfirm:
		session.CanonicalConfirm++
	default:
		session.CanonicalFallback++
	}
}

// associateNotes recomputes note-to-highlight links over the book's full
// note set, so stale links from earlier imports are cleared as well.
func (c *Coordinator) associateNotes(session *entities.ImportSession, bookID uint) error {
	notes, err := c.books.GetNotesForBook(bookID)
	if err != nil {
		return fmt.Errorf("reload notes: %w", err)
	}
	notePtrs := make([]*entities.Note, len(notes))
	for i := range notes {
		notePtrs[i] = &notes[i]
	}

	res := associate.Resolve(notePtrs)
	if err := c.books.UpdateNotes(res.Changed); err != nil {
		return fmt.Errorf("persist associations: %w", err)
	}
	session.NotesAssociated += res.Associated
	session.NotesStandalone += res.Standalone
	return nil
}

// saveSkipReport writes the malformed-block report as an audit artifact.
func (c *Coordinator) saveSkipReport(session *entities.ImportSession, sourceFile string, result *clippings.Result) {
	if c.auditor == nil || len(result.Skipped) == 0 {
		return
	}
	reasons := make([]string, len(result.Skipped))
	for i, s := range result.Skipped {
		reasons[i] = s.Reason
	}
	report := map[string]any{
		"session_id":  session.ID,
		"source_file": sourceFile,
		"blocks":      result.Blocks,
		"skipped":     len(result.Skipped),
		"reasons":     reasons,
		"created_at":  time.Now().Format(time.RFC3339),
	}
	if _, err := c.auditor.SaveJSON(report); err != nil {
		log.Printf("Import session %d: saving skip report failed: %v", session.ID, err)
	}
}

func (c *Coordinator) fail(session *entities.ImportSession, cause error) (*entities.ImportSession, error) {
	session.Error = cause.Error()
	if err := c.sessions.FinishSession(session, entities.ImportStatusFailed); err != nil {
		return nil, err
	}
	if c.auditSvc != nil {
		c.auditSvc.LogImport(session.ID, "Import rejected", 0, 0, cause)
	}
	return session, cause
}

func (c *Coordinator) cancel(session *entities.ImportSession) (*entities.ImportSession, error) {
	if err := c.sessions.FinishSession(session, entities.ImportStatusCancelled); err != nil {
		return nil, err
	}
	return session, context.Canceled
}

// groupByBook buckets entries by their normalized book key, keeping both the
// book order of first appearance and the file order of entries inside each
// book.
func groupByBook(entries []clippings.RawEntry) []bookGroup {
	byKey := make(map[string]int)
	var groups []bookGroup

	for _, entry := range entries {
		key := entry.BookKey()
		idx, ok := byKey[key]
		if !ok {
			idx = len(groups)
			byKey[key] = idx
			groups = append(groups, bookGroup{title: entry.Title, author: entry.Author})
		}
		groups[idx].entries = append(groups[idx].entries, entry)
	}
	return groups
}
