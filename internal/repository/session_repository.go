package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"suna-chat/internal/model"
)

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Upsert inserts the session or overwrites its mutable columns. Ownership (user_id) and
// created_at are never changed by the update branch.
func (r *SessionRepository) Upsert(ctx context.Context, session *model.Session) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title",
			"conversation_id",
			"is_pinned",
			"is_manually_renamed",
			"updated_at",
		}),
	}).Create(session).Error
	if err != nil {
		return fmt.Errorf("upsert session failed: %w", err)
	}
	return nil
}

func (r *SessionRepository) ListByUserID(ctx context.Context, userID uint) ([]model.Session, error) {
	var sessions []model.Session
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("is_pinned DESC").
		Order("updated_at DESC").
		Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("list sessions failed: %w", err)
	}
	return sessions, nil
}

func (r *SessionRepository) GetByID(ctx context.Context, sessionID string) (*model.Session, error) {
	var session model.Session
	if err := r.db.WithContext(ctx).Where("id = ?", sessionID).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session failed: %w", err)
	}
	return &session, nil
}

func (r *SessionRepository) DeleteByIDAndUserID(ctx context.Context, sessionID string, userID uint) error {
	if err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", sessionID, userID).
		Delete(&model.Session{}).Error; err != nil {
		return fmt.Errorf("delete session failed: %w", err)
	}
	return nil
}
