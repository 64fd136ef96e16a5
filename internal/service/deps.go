package service

import "tg-relay/internal/models"

// SenderStore is the durable sender registry as the pipeline sees it.
// *storage.SenderRepository implements it; tests use fakes.
type SenderStore interface {
	GetOrCreate(telegramID int64, username, firstName, lastName string) (*models.Sender, error)
	GetByID(id int64) (*models.Sender, error)
	GetByTelegramID(telegramID int64) (*models.Sender, error)
	SetBanned(telegramID int64, banned bool) error
}

// MappingStore is the durable identifier-mapping store as the
// pipeline sees it. *storage.MappingRepository implements it.
type MappingStore interface {
	MappingLookup
	Create(mapping *models.MessageMapping) error
	GetByUserMessage(userChatID int64, userMessageID int) (*models.MessageMapping, error)
	GetByChannelMessage(channelChatID int64, channelMessageID int) (*models.MessageMapping, error)
	MarkDeleted(channelChatID int64, channelMessageID int) error
	SetLastEditMessageID(userChatID int64, userMessageID int, lastEditMessageID int) error
}
