package books

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/shelfmark/shelfmark/internal/entities"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&entities.Source{},
		&entities.Book{},
		&entities.Note{},
		&entities.Tag{},
	)
	require.NoError(t, err)

	return db
}

func intPtr(v int) *int { return &v }

func TestRepository_GetOrCreateBook(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)

	book, created, err := repo.GetOrCreateBook("Atomic Habits", "James Clear", 1)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotZero(t, book.ID)
	assert.Equal(t, "atomic habits|james clear", book.NormalizedKey)

	t.Run("case-insensitive reuse", func(t *testing.T) {
		again, created, err := repo.GetOrCreateBook("ATOMIC HABITS", "james clear", 1)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, book.ID, again.ID)
		// The first sighting's raw strings are kept for display.
		assert.Equal(t, "Atomic Habits", again.Title)
	})

	t.Run("different author is a different book", func(t *testing.T) {
		other, created, err := repo.GetOrCreateBook("Atomic Habits", "Someone Else", 1)
		require.NoError(t, err)
		assert.True(t, created)
		assert.NotEqual(t, book.ID, other.ID)
	})
}

func TestRepository_NotesOrderedByLocation(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)

	book, _, err := repo.GetOrCreateBook("Meditations", "Marcus Aurelius", 1)
	require.NoError(t, err)

	for _, loc := range []int{300, 100, 200} {
		note := &entities.Note{
			BookID:        book.ID,
			Type:          entities.NoteTypeHighlight,
			Text:          "text",
			LocationStart: intPtr(loc),
			AnnotatedAt:   time.Now(),
		}
		require.NoError(t, repo.CreateNote(note))
	}

	notes, err := repo.GetNotesForBook(book.ID)
	require.NoError(t, err)
	require.Len(t, notes, 3)
	assert.Equal(t, 100, *notes[0].LocationStart)
	assert.Equal(t, 200, *notes[1].LocationStart)
	assert.Equal(t, 300, *notes[2].LocationStart)
}

func TestRepository_UpdateNotes(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)

	book, _, err := repo.GetOrCreateBook("Meditations", "Marcus Aurelius", 1)
	require.NoError(t, err)

	highlight := &entities.Note{BookID: book.ID, Type: entities.NoteTypeHighlight, Text: "stoic wisdom", LocationStart: intPtr(10), LocationEnd: intPtr(15)}
	note := &entities.Note{BookID: book.ID, Type: entities.NoteTypeNote, Text: "reflect on this", LocationStart: intPtr(15)}
	require.NoError(t, repo.CreateNote(highlight))
	require.NoError(t, repo.CreateNote(note))

	note.AssociatedHighlightID = &highlight.ID
	require.NoError(t, repo.UpdateNotes([]*entities.Note{note}))

	reloaded, err := repo.GetNoteByID(note.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.AssociatedHighlightID)
	assert.Equal(t, highlight.ID, *reloaded.AssociatedHighlightID)
}

func TestRepository_RefreshNoteCount(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)

	book, _, err := repo.GetOrCreateBook("Meditations", "Marcus Aurelius", 1)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.CreateNote(&entities.Note{BookID: book.ID, Type: entities.NoteTypeHighlight, Text: "t"}))
	}
	require.NoError(t, repo.RefreshNoteCount(book.ID))

	reloaded, err := repo.GetBookByID(book.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, reloaded.NoteCount)
}

func TestRepository_SetCanonical(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)

	book, _, err := repo.GetOrCreateBook("Meditations", "Marcus Aurelius", 1)
	require.NoError(t, err)

	require.NoError(t, repo.SetCanonical(book.ID, 42))

	reloaded, err := repo.GetBookByID(book.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.CanonicalID)
	assert.Equal(t, uint(42), *reloaded.CanonicalID)

	linked, err := repo.GetBooksByCanonicalID(42)
	require.NoError(t, err)
	assert.Len(t, linked, 1)
}

func TestRepository_SearchBooks(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)

	_, _, err := repo.GetOrCreateBook("Atomic Habits", "James Clear", 1)
	require.NoError(t, err)
	_, _, err = repo.GetOrCreateBook("Meditations", "Marcus Aurelius", 1)
	require.NoError(t, err)

	results, err := repo.SearchBooks("atomic")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Atomic Habits", results[0].Title)

	results, err = repo.SearchBooks("marcus")
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestRepository_DeleteBook(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)

	book, _, err := repo.GetOrCreateBook("Meditations", "Marcus Aurelius", 1)
	require.NoError(t, err)
	require.NoError(t, repo.CreateNote(&entities.Note{BookID: book.ID, Type: entities.NoteTypeHighlight, Text: "t"}))

	require.NoError(t, repo.DeleteBook(book.ID))

	_, err = repo.GetBookByID(book.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	notes, err := repo.GetNotesForBook(book.ID)
	require.NoError(t, err)
	assert.Empty(t, notes)
}
