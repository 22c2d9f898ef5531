// Package books provides database operations for book and note management.
//
// Books are keyed by their normalized (title, author) pair so repeated
// imports of the same clippings file converge on one record per book.
//
// # Usage
//
//	repo := books.NewRepository(db)
//	book, created, err := repo.GetOrCreateBook("Atomic Habits", "James Clear", sourceID)
package books

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/shelfmark/shelfmark/internal/entities"
)

// Repository handles all book and note database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new books repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// GetOrCreateBook finds the book for a normalized (title, author) key or
// creates it. The raw title and author of the first sighting are kept for
// display. Reports whether a new record was created.
func (r *Repository) GetOrCreateBook(title, author string, sourceID uint) (*entities.Book, bool, error) {
	key := entities.BookKey(title, author)

	var book entities.Book
	err := r.db.Where("normalized_key = ?", key).First(&book).Error
	if err == nil {
		return &book, false, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, false, err
	}

	book = entities.Book{
		Title:         title,
		Author:        author,
		NormalizedKey: key,
		SourceID:      sourceID,
	}
	if err := r.db.Create(&book).Error; err != nil {
		return nil, false, fmt.Errorf("failed to create book %q: %w", title, err)
	}
	return &book, true, nil
}

// GetBookByID retrieves a book with its notes ordered by location.
func (r *Repository) GetBookByID(id uint) (*entities.Book, error) {
	var book entities.Book
	err := r.db.Preload("Notes", func(db *gorm.DB) *gorm.DB {
		return db.Order("location_start ASC, annotated_at ASC")
	}).Preload("Notes.Tags").Preload("Tags").Preload("Source").First(&book, id).Error
	if err != nil {
		return nil, err
	}
	return &book, nil
}

// GetBookByKey retrieves a book by its normalized (title, author) key.
func (r *Repository) GetBookByKey(title, author string) (*entities.Book, error) {
	var book entities.Book
	err := r.db.Preload("Notes", func(db *gorm.DB) *gorm.DB {
		return db.Order("location_start ASC, annotated_at ASC")
	}).Preload("Source").
		Where("normalized_key = ?", entities.BookKey(title, author)).
		First(&book).Error
	if err != nil {
		return nil, err
	}
	return &book, nil
}

// GetAllBooks retrieves all books without their notes.
func (r *Repository) GetAllBooks() ([]entities.Book, error) {
	var books []entities.Book
	err := r.db.Preload("Source").Order("title ASC").Find(&books).Error
	return books, err
}

// GetBooksByCanonicalID retrieves all books linked to one canonical record.
func (r *Repository) GetBooksByCanonicalID(canonicalID uint) ([]entities.Book, error) {
	var books []entities.Book
	err := r.db.Where("canonical_id = ?", canonicalID).Find(&books).Error
	return books, err
}

// SearchBooks searches books by title or author (case-insensitive partial match).
func (r *Repository) SearchBooks(query string) ([]entities.Book, error) {
	var books []entities.Book
	searchPattern := "%" + query + "%"
	err := r.db.Preload("Source").
		Where("LOWER(title) LIKE LOWER(?) OR LOWER(author) LIKE LOWER(?)", searchPattern, searchPattern).
		Order("title ASC").
		Find(&books).Error
	return books, err
}

// GetNotesForBook retrieves all notes of a book ordered by location.
func (r *Repository) GetNotesForBook(bookID uint) ([]entities.Note, error) {
	var notes []entities.Note
	err := r.db.Preload("Tags").Where("book_id = ?", bookID).
		Order("location_start ASC, annotated_at ASC").Find(&notes).Error
	return notes, err
}

// GetNoteByID retrieves a single note.
func (r *Repository) GetNoteByID(id uint) (*entities.Note, error) {
	var note entities.Note
	err := r.db.Preload("Tags").Preload("Source").First(&note, id).Error
	if err != nil {
		return nil, err
	}
	return &note, nil
}

// CreateNote inserts a new note.
func (r *Repository) CreateNote(note *entities.Note) error {
	return r.db.Create(note).Error
}

// UpdateNote persists changes to an existing note.
func (r *Repository) UpdateNote(note *entities.Note) error {
	return r.db.Save(note).Error
}

// UpdateNotes persists a batch of modified notes in one transaction.
func (r *Repository) UpdateNotes(notes []*entities.Note) error {
	if len(notes) == 0 {
		return nil
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		for _, n := range notes {
			if err := tx.Save(n).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteNote soft-deletes a note.
func (r *Repository) DeleteNote(id uint) error {
	return r.db.Delete(&entities.Note{}, id).Error
}

// SetCanonical links a book to its canonical record.
func (r *Repository) SetCanonical(bookID, canonicalID uint) error {
	return r.db.Model(&entities.Book{}).Where("id = ?", bookID).
		Update("canonical_id", canonicalID).Error
}

// RefreshNoteCount recomputes the cached note count for a book.
func (r *Repository) RefreshNoteCount(bookID uint) error {
	var count int64
	if err := r.db.Model(&entities.Note{}).Where("book_id = ?", bookID).Count(&count).Error; err != nil {
		return err
	}
	return r.db.Model(&entities.Book{}).Where("id = ?", bookID).
		Update("note_count", count).Error
}

// DeleteBook removes a book, its notes and tag links.
func (r *Repository) DeleteBook(id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("book_id = ?", id).Delete(&entities.Note{}).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM book_tags WHERE book_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&entities.Book{}, id).Error
	})
}

// GetStats returns total book and note counts.
func (r *Repository) GetStats() (totalBooks int64, totalNotes int64, err error) {
	err = r.db.Model(&entities.Book{}).Count(&totalBooks).Error
	if err != nil {
		return
	}
	err = r.db.Model(&entities.Note{}).Count(&totalNotes).Error
	return
}
