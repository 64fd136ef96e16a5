package models

import "time"

// MessageMapping links one message in a sender's private chat to the
// copy posted on the broadcast channel. Rows are soft-deleted on
// retraction, never removed: among non-deleted rows both the
// (UserChatID, UserMessageID) and (ChannelChatID, ChannelMessageID)
// pairs are unique.
type MessageMapping struct {
	ID       int64 `gorm:"primaryKey;autoIncrement"`
	SenderID int64 `gorm:"index;not null"`

	UserChatID    int64 `gorm:"not null;index:idx_user_message"`
	UserMessageID int   `gorm:"not null;index:idx_user_message"`

	// Set when the sender edits the unit; replies to the edited copy
	// still resolve through this column.
	UserLastEditMessageID *int `gorm:"index"`

	ChannelChatID    int64 `gorm:"not null;index:idx_channel_message"`
	ChannelMessageID int   `gorm:"not null;index:idx_channel_message"`

	IsDeleted bool `gorm:"default:false;not null"`

	CreatedAt time.Time
	UpdatedAt time.Time
}
