// Package tags provides database operations for tag management.
package tags

import (
	"gorm.io/gorm"

	"github.com/shelfmark/shelfmark/internal/entities"
)

// Repository handles all tag database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new tags repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// CreateTag creates a new tag.
func (r *Repository) CreateTag(name string) (*entities.Tag, error) {
	tag := &entities.Tag{Name: name}
	if err := r.db.Create(tag).Error; err != nil {
		return nil, err
	}
	return tag, nil
}

// GetOrCreateTag retrieves or creates a tag (case-insensitive).
func (r *Repository) GetOrCreateTag(name string) (*entities.Tag, error) {
	var tag entities.Tag
	err := r.db.Where("LOWER(name) = LOWER(?)", name).First(&tag).Error
	if err == gorm.ErrRecordNotFound {
		return r.CreateTag(name)
	}
	if err != nil {
		return nil, err
	}
	return &tag, nil
}

// GetAllTags retrieves all tags.
func (r *Repository) GetAllTags() ([]entities.Tag, error) {
	var tags []entities.Tag
	err := r.db.Order("name ASC").Find(&tags).Error
	return tags, err
}

// GetTagByID retrieves a tag by ID.
func (r *Repository) GetTagByID(id uint) (*entities.Tag, error) {
	var tag entities.Tag
	err := r.db.First(&tag, id).Error
	if err != nil {
		return nil, err
	}
	return &tag, nil
}

// DeleteTag deletes a tag.
func (r *Repository) DeleteTag(id uint) error {
	return r.db.Delete(&entities.Tag{}, id).Error
}

// AddTagToNote associates a tag with a note.
func (r *Repository) AddTagToNote(noteID, tagID uint) error {
	var note entities.Note
	if err := r.db.First(&note, noteID).Error; err != nil {
		return err
	}
	var tag entities.Tag
	if err := r.db.First(&tag, tagID).Error; err != nil {
		return err
	}
	return r.db.Model(&note).Association("Tags").Append(&tag)
}

// RemoveTagFromNote removes a tag from a note.
func (r *Repository) RemoveTagFromNote(noteID, tagID uint) error {
	var note entities.Note
	if err := r.db.First(&note, noteID).Error; err != nil {
		return err
	}
	var tag entities.Tag
	if err := r.db.First(&tag, tagID).Error; err != nil {
		return err
	}
	return r.db.Model(&note).Association("Tags").Delete(&tag)
}

// AddTagToBook associates a tag with a book.
func (r *Repository) AddTagToBook(bookID, tagID uint) error {
	var book entities.Book
	if err := r.db.First(&book, bookID).Error; err != nil {
		return err
	}
	var tag entities.Tag
	if err := r.db.First(&tag, tagID).Error; err != nil {
		return err
	}
	return r.db.Model(&book).Association("Tags").Append(&tag)
}

// RemoveTagFromBook removes a tag from a book.
func (r *Repository) RemoveTagFromBook(bookID, tagID uint) error {
	var book entities.Book
	if err := r.db.First(&book, bookID).Error; err != nil {
		return err
	}
	var tag entities.Tag
	if err := r.db.First(&tag, tagID).Error; err != nil {
		return err
	}
	return r.db.Model(&book).Association("Tags").Delete(&tag)
}

// DeleteOrphanTags removes all tags with no book or note associations.
func (r *Repository) DeleteOrphanTags() (int64, error) {
	result := r.db.Exec(`
		DELETE FROM tags
		WHERE id NOT IN (SELECT tag_id FROM book_tags)
		AND id NOT IN (SELECT tag_id FROM note_tags)
	`)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
