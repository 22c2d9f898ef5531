package importer

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfmark/shelfmark/internal/canonical"
	"github.com/shelfmark/shelfmark/internal/clippings"
	"github.com/shelfmark/shelfmark/internal/database"
	"github.com/shelfmark/shelfmark/internal/database/books"
	canonicalRepo "github.com/shelfmark/shelfmark/internal/database/canonical"
	"github.com/shelfmark/shelfmark/internal/database/sessions"
	"github.com/shelfmark/shelfmark/internal/entities"
)

const sampleClippings = `Atomic Habits (James Clear)
- Your Highlight on page 12 | location 100-105 | Added on Tuesday, April 15, 2025 10:16:21 PM

Habits are the compound interest of self-improvement.
==========
Atomic Habits (James Clear)
- Your Note on page 12 | location 105 | Added on Tuesday, April 15, 2025 10:17:02 PM

Worth rereading every January.
==========
Meditations (Marcus Aurelius)
- Your Highlight on page 3 | location 40-42 | Added on Wednesday, April 16, 2025 8:01:11 AM

You have power over your mind, not outside events.
==========
`

// scriptedProvider returns one perfect candidate per title, or err when set.
type scriptedProvider struct {
	calls int
	err   error
}

func (p *scriptedProvider) Search(ctx context.Context, title, author string) ([]canonical.Candidate, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return []canonical.Candidate{
		{Title: title, Authors: []string{author}, ExternalID: "OL-" + strings.ToLower(strings.ReplaceAll(title, " ", "-"))},
	}, nil
}

type testEnv struct {
	coordinator *Coordinator
	books       *books.Repository
	sessions    *sessions.Repository
	canonical   *canonicalRepo.Repository
	provider    *scriptedProvider
}

func setupCoordinator(t *testing.T, errorBudget int) *testEnv {
	t.Helper()

	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	booksRepo := books.NewRepository(db.DB)
	sessionsRepo := sessions.NewRepository(db.DB)
	canonRepo := canonicalRepo.NewRepository(db.DB)

	provider := &scriptedProvider{}
	resolver := canonical.NewResolver(provider, canonRepo,
		gocache.New(time.Minute, time.Minute),
		canonical.DefaultWeights, canonical.DefaultThresholds, time.Second)

	coordinator := NewCoordinator(db, booksRepo, sessionsRepo, resolver, nil, nil, errorBudget)

	return &testEnv{
		coordinator: coordinator,
		books:       booksRepo,
		sessions:    sessionsRepo,
		canonical:   canonRepo,
		provider:    provider,
	}
}

func TestRun_ImportsCleanFile(t *testing.T) {
	env := setupCoordinator(t, 0)

	session, err := env.coordinator.Run(context.Background(), "My Clippings.txt", int64(len(sampleClippings)), strings.NewReader(sampleClippings))
	require.NoError(t, err)

	assert.Equal(t, entities.ImportStatusCompleted, session.Status)
	assert.Equal(t, 3, session.EntriesParsed)
	assert.Equal(t, 0, session.EntriesSkipped)
	assert.Equal(t, 2, session.BooksAdded)
	assert.Equal(t, 3, session.NotesAdded)
	assert.Equal(t, 2, session.CanonicalAuto)
	assert.NotNil(t, session.CompletedAt)

	all, err := env.books.GetAllBooks()
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, b := range all {
		assert.NotNil(t, b.CanonicalID, "every imported book gets a canonical link")
	}
}

func TestRun_AssociatesNoteWithHighlight(t *testing.T) {
	env := setupCoordinator(t, 0)

	session, err := env.coordinator.Run(context.Background(), "My Clippings.txt", 0, strings.NewReader(sampleClippings))
	require.NoError(t, err)
	assert.Equal(t, 1, session.NotesAssociated)

	book, err := env.books.GetBookByKey("Atomic Habits", "James Clear")
	require.NoError(t, err)
	notes, err := env.books.GetNotesForBook(book.ID)
	require.NoError(t, err)
	require.Len(t, notes, 2)

	var highlight, note *entities.Note
	for i := range notes {
		switch notes[i].Type {
		case entities.NoteTypeHighlight:
			highlight = &notes[i]
		case entities.NoteTypeNote:
			note = &notes[i]
		}
	}
	require.NotNil(t, highlight)
	require.NotNil(t, note)
	require.NotNil(t, note.AssociatedHighlightID)
	assert.Equal(t, highlight.ID, *note.AssociatedHighlightID)
}

func TestRun_ReimportIsIdempotent(t *testing.T) {
	env := setupCoordinator(t, 0)

	_, err := env.coordinator.Run(context.Background(), "My Clippings.txt", 0, strings.NewReader(sampleClippings))
	require.NoError(t, err)

	second, err := env.coordinator.Run(context.Background(), "My Clippings.txt", 0, strings.NewReader(sampleClippings))
	require.NoError(t, err)

	assert.Equal(t, 0, second.BooksAdded)
	assert.Equal(t, 0, second.NotesAdded)
	assert.Equal(t, 3, second.DuplicatesSkipped)

	_, totalNotes, err := env.books.GetStats()
	require.NoError(t, err)
	assert.Equal(t, int64(3), totalNotes)
}

func TestRun_UpdatedHighlightReplacesText(t *testing.T) {
	env := setupCoordinator(t, 0)

	_, err := env.coordinator.Run(context.Background(), "My Clippings.txt", 0, strings.NewReader(sampleClippings))
	require.NoError(t, err)

	// Same location, extended text: the reader re-highlighted a longer span.
	updated := strings.Replace(sampleClippings,
		"Habits are the compound interest of self-improvement.",
		"Habits are the compound interest of self-improvement. Small changes compound.", 1)

	session, err := env.coordinator.Run(context.Background(), "My Clippings.txt", 0, strings.NewReader(updated))
	require.NoError(t, err)
	assert.Equal(t, 1, session.NotesUpdated)
	assert.Equal(t, 2, session.DuplicatesSkipped)

	book, err := env.books.GetBookByKey("Atomic Habits", "James Clear")
	require.NoError(t, err)
	notes, err := env.books.GetNotesForBook(book.ID)
	require.NoError(t, err)
	var found bool
	for _, n := range notes {
		if n.Type == entities.NoteTypeHighlight {
			assert.Contains(t, n.Text, "Small changes compound")
			found = true
		}
	}
	assert.True(t, found)
}

func TestRun_BudgetExceededFailsSession(t *testing.T) {
	env := setupCoordinator(t, 0)

	malformed := `garbage
==========
more garbage without structure
==========
`

	session, err := env.coordinator.Run(context.Background(), "broken.txt", 0, strings.NewReader(malformed))
	require.ErrorIs(t, err, clippings.ErrBudgetExceeded)
	require.NotNil(t, session)
	assert.Equal(t, entities.ImportStatusFailed, session.Status)
	assert.NotEmpty(t, session.Error)

	stored, err := env.sessions.GetSession(session.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.ImportStatusFailed, stored.Status)
}

func TestRun_SkippedBlocksWithinBudget(t *testing.T) {
	env := setupCoordinator(t, 1)

	withGarbage := "garbage block\n==========\n" + sampleClippings

	session, err := env.coordinator.Run(context.Background(), "My Clippings.txt", 0, strings.NewReader(withGarbage))
	require.NoError(t, err)
	assert.Equal(t, entities.ImportStatusCompleted, session.Status)
	assert.Equal(t, 1, session.EntriesSkipped)
	assert.Equal(t, 3, session.EntriesParsed)
}

func TestRun_CancelledContext(t *testing.T) {
	env := setupCoordinator(t, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	session, err := env.coordinator.Run(ctx, "My Clippings.txt", 0, strings.NewReader(sampleClippings))
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, session)
	assert.Equal(t, entities.ImportStatusCancelled, session.Status)
}

func TestRun_ProviderFailureFallsBackToProvisional(t *testing.T) {
	env := setupCoordinator(t, 0)
	env.provider.err = context.DeadlineExceeded

	session, err := env.coordinator.Run(context.Background(), "My Clippings.txt", 0, strings.NewReader(sampleClippings))
	require.NoError(t, err)

	// A dead lookup provider never fails the import; every book still gets a
	// provisional canonical link.
	assert.Equal(t, entities.ImportStatusCompleted, session.Status)
	assert.Equal(t, 2, session.BooksAdded)
	assert.Equal(t, 3, session.NotesAdded)
	assert.Equal(t, 0, session.CanonicalAuto)
	assert.Equal(t, 2, session.CanonicalFallback)

	all, err := env.books.GetAllBooks()
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, b := range all {
		assert.NotNil(t, b.CanonicalID, "books link to provisional records when lookup is down")
	}

	provisional, err := env.canonical.ListProvisional(0)
	require.NoError(t, err)
	require.Len(t, provisional, 2)
	for _, rec := range provisional {
		assert.Equal(t, entities.MatchStatusUnverified, rec.MatchStatus)
		assert.Equal(t, entities.MatchSourceFallback, rec.MatchSource)
	}
}

func TestRun_AliasReuseAcrossSessions(t *testing.T) {
	env := setupCoordinator(t, 0)

	_, err := env.coordinator.Run(context.Background(), "My Clippings.txt", 0, strings.NewReader(sampleClippings))
	require.NoError(t, err)
	callsAfterFirst := env.provider.calls

	_, err = env.coordinator.Run(context.Background(), "My Clippings.txt", 0, strings.NewReader(sampleClippings))
	require.NoError(t, err)

	assert.Equal(t, callsAfterFirst, env.provider.calls,
		"second import resolves books through existing links, not the provider")
}
