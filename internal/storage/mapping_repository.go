package storage

import (
	"errors"

	"tg-relay/internal/models"

	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when no matching row exists.
	ErrNotFound = errors.New("record not found")
	// ErrMappingExists is returned when a non-deleted mapping already
	// covers the inbound or outbound identifier pair.
	ErrMappingExists = errors.New("mapping already exists for identifier pair")
)

// MappingRepository handles database operations for MessageMapping
type MappingRepository struct {
	db *gorm.DB
}

// NewMappingRepository creates a new MappingRepository
func NewMappingRepository(db *gorm.DB) *MappingRepository {
	return &MappingRepository{db: db}
}

// Create inserts a mapping for a freshly dispatched unit. MySQL has no
// partial unique indexes, so uniqueness among non-deleted rows is
// enforced with a check inside the insert transaction; a concurrent
// second writer for the same pair fails with ErrMappingExists.
func (r *MappingRepository) Create(mapping *models.MessageMapping) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.MessageMapping{}).
			Where("user_chat_id = ? AND user_message_id = ? AND is_deleted = ?",
				mapping.UserChatID, mapping.UserMessageID, false).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrMappingExists
		}
		if err := tx.Model(&models.MessageMapping{}).
			Where("channel_chat_id = ? AND channel_message_id = ? AND is_deleted = ?",
				mapping.ChannelChatID, mapping.ChannelMessageID, false).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrMappingExists
		}
		return tx.Create(mapping).Error
	})
}

// GetByUserMessage returns the non-deleted mapping for an inbound
// (chat, message) pair.
func (r *MappingRepository) GetByUserMessage(userChatID int64, userMessageID int) (*models.MessageMapping, error) {
	var mapping models.MessageMapping
	result := r.db.Where(
		"user_chat_id = ? AND user_message_id = ? AND is_deleted = ?",
		userChatID, userMessageID, false,
	).First(&mapping)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, result.Error
	}
	return &mapping, nil
}

// GetByUserMessageOrLastEdit resolves an inbound message id against
// either the original inbound id or the last-edit id, so replies to an
// edited copy still find the mapping.
func (r *MappingRepository) GetByUserMessageOrLastEdit(userChatID int64, userMessageID int) (*models.MessageMapping, error) {
	var mapping models.MessageMapping
	result := r.db.Where(
		"user_chat_id = ? AND is_deleted = ? AND (user_message_id = ? OR user_last_edit_message_id = ?)",
		userChatID, false, userMessageID, userMessageID,
	).First(&mapping)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, result.Error
	}
	return &mapping, nil
}

// GetByChannelMessage returns the non-deleted mapping for an outbound
// (chat, message) pair.
func (r *MappingRepository) GetByChannelMessage(channelChatID int64, channelMessageID int) (*models.MessageMapping, error) {
	var mapping models.MessageMapping
	result := r.db.Where(
		"channel_chat_id = ? AND channel_message_id = ? AND is_deleted = ?",
		channelChatID, channelMessageID, false,
	).First(&mapping)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, result.Error
	}
	return &mapping, nil
}

// MarkDeleted soft-deletes the mapping for an outbound pair. The row
// stays behind as audit trail.
func (r *MappingRepository) MarkDeleted(channelChatID int64, channelMessageID int) error {
	result := r.db.Model(&models.MessageMapping{}).
		Where("channel_chat_id = ? AND channel_message_id = ?", channelChatID, channelMessageID).
		Update("is_deleted", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetLastEditMessageID records the inbound id of the latest edit.
func (r *MappingRepository) SetLastEditMessageID(userChatID int64, userMessageID int, lastEditMessageID int) error {
	return r.db.Model(&models.MessageMapping{}).
		Where("user_chat_id = ? AND user_message_id = ?", userChatID, userMessageID).
		Update("user_last_edit_message_id", lastEditMessageID).Error
}
