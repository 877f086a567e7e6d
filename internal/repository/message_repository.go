package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"suna-chat/internal/model"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(ctx context.Context, message *model.Message) error {
	if err := r.db.WithContext(ctx).Create(message).Error; err != nil {
		return fmt.Errorf("create message failed: %w", err)
	}
	return nil
}

func (r *MessageRepository) ListBySessionID(ctx context.Context, sessionID string) ([]model.Message, error) {
	var messages []model.Message
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("timestamp ASC").
		Order("id ASC").
		Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list messages failed: %w", err)
	}
	return messages, nil
}

// FindByKey looks a message up by its composite key within a session.
func (r *MessageRepository) FindByKey(ctx context.Context, sessionID string, timestamp int64, role, content string) (*model.Message, error) {
	var message model.Message
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND timestamp = ? AND role = ? AND content = ?", sessionID, timestamp, role, content).
		First(&message).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find message failed: %w", err)
	}
	return &message, nil
}

func (r *MessageRepository) UpdateFavorite(ctx context.Context, messageID uint, favorite bool) error {
	if err := r.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("id = ?", messageID).
		Update("is_favorite", favorite).Error; err != nil {
		return fmt.Errorf("update message favorite failed: %w", err)
	}
	return nil
}

func (r *MessageRepository) DeleteBySessionID(ctx context.Context, sessionID string) error {
	if err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&model.Message{}).Error; err != nil {
		return fmt.Errorf("delete messages by session failed: %w", err)
	}
	return nil
}
