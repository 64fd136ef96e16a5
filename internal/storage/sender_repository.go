package storage

import (
	"time"

	"tg-relay/internal/models"

	"gorm.io/gorm"
)

// SenderRepository handles database operations for Sender
type SenderRepository struct {
	db *gorm.DB
}

// NewSenderRepository creates a new SenderRepository
func NewSenderRepository(db *gorm.DB) *SenderRepository {
	return &SenderRepository{db: db}
}

// GetByTelegramID returns the sender with the given Telegram user id.
func (r *SenderRepository) GetByTelegramID(telegramID int64) (*models.Sender, error) {
	var sender models.Sender
	result := r.db.Where("telegram_id = ?", telegramID).First(&sender)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, result.Error
	}
	return &sender, nil
}

// GetByID returns the sender by internal id.
func (r *SenderRepository) GetByID(id int64) (*models.Sender, error) {
	var sender models.Sender
	result := r.db.First(&sender, id)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, result.Error
	}
	return &sender, nil
}

// GetOrCreate looks up the sender by Telegram id, creating the record
// on first contact. Every contact refreshes the name fields and the
// last-active timestamp.
func (r *SenderRepository) GetOrCreate(telegramID int64, username, firstName, lastName string) (*models.Sender, error) {
	var sender models.Sender
	result := r.db.Where("telegram_id = ?", telegramID).First(&sender)
	if result.Error == nil {
		sender.Username = username
		sender.FirstName = firstName
		sender.LastName = lastName
		sender.LastActiveAt = time.Now()
		if err := r.db.Save(&sender).Error; err != nil {
			return nil, err
		}
		return &sender, nil
	}
	if result.Error != gorm.ErrRecordNotFound {
		return nil, result.Error
	}

	sender = models.Sender{
		TelegramID:   telegramID,
		Username:     username,
		FirstName:    firstName,
		LastName:     lastName,
		LastActiveAt: time.Now(),
	}
	if err := r.db.Create(&sender).Error; err != nil {
		return nil, err
	}
	return &sender, nil
}

// SetBanned flips the ban flag for the sender with the given Telegram id.
func (r *SenderRepository) SetBanned(telegramID int64, banned bool) error {
	result := r.db.Model(&models.Sender{}).
		Where("telegram_id = ?", telegramID).
		Update("is_banned", banned)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
