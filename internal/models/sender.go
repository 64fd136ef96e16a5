package models

import "time"

// Sender is the identity record for a submitting user. Created on
// first contact and refreshed on every subsequent one; rows are never
// deleted so bans and the mapping audit trail survive.
type Sender struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	TelegramID   int64  `gorm:"uniqueIndex;not null"`
	Username     string `gorm:"size:255"`
	FirstName    string `gorm:"size:255;not null"`
	LastName     string `gorm:"size:255"`
	IsBanned     bool   `gorm:"default:false;not null"`
	IsAdmin      bool   `gorm:"default:false;not null"`
	LastActiveAt time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
