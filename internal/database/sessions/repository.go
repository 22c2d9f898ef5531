// Package sessions provides database operations for import session tracking.
package sessions

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/shelfmark/shelfmark/internal/entities"
)

// Repository handles import session persistence and enforces the session
// state machine: a terminal session never transitions again.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new sessions repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// CreateSession starts a new import session in the starting state.
func (r *Repository) CreateSession(sourceFile string, sourceSize int64) (*entities.ImportSession, error) {
	session := &entities.ImportSession{
		SourceFile: sourceFile,
		SourceSize: sourceSize,
		Status:     entities.ImportStatusStarting,
		StartedAt:  time.Now(),
	}
	if err := r.db.Create(session).Error; err != nil {
		return nil, err
	}
	return session, nil
}

// UpdateSession persists session progress. Updating a session that is
// already terminal is an error; the stored record stays untouched.
func (r *Repository) UpdateSession(session *entities.ImportSession) error {
	var stored entities.ImportSession
	if err := r.db.First(&stored, session.ID).Error; err != nil {
		return err
	}
	if stored.Status.IsTerminal() {
		return fmt.Errorf("session %d is already %s", session.ID, stored.Status)
	}
	return r.db.Save(session).Error
}

// FinishSession moves a session into a terminal state and stamps the
// completion time.
func (r *Repository) FinishSession(session *entities.ImportSession, status entities.ImportStatus) error {
	if !status.IsTerminal() {
		return fmt.Errorf("%s is not a terminal status", status)
	}
	now := time.Now()
	session.Status = status
	session.CompletedAt = &now
	return r.UpdateSession(session)
}

// GetSession retrieves a session by ID.
func (r *Repository) GetSession(id uint) (*entities.ImportSession, error) {
	var session entities.ImportSession
	err := r.db.First(&session, id).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// GetSessions retrieves all sessions, most recent first.
func (r *Repository) GetSessions(limit int) ([]entities.ImportSession, error) {
	var sessions []entities.ImportSession
	query := r.db.Order("started_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&sessions).Error
	return sessions, err
}
