package models

import (
	"time"
)

type User struct {
	ID             uint    `gorm:"primaryKey" json:"id"`
	UserID         string  `gorm:"size:64;uniqueIndex;not null" json:"user_id"`
	Address        string  `gorm:"size:128;index" json:"address"`
	Balance        float64 `gorm:"default:0" json:"balance"`
	CardCount      int64   `gorm:"default:0" json:"card_count"`
	ProfilePhoto   string  `gorm:"size:512" json:"profile_photo"`
	JoinedDiscord  bool    `gorm:"default:false" json:"joined_discord"`
	JoinedX        bool    `gorm:"default:false" json:"joined_x"`
	JoinedTelegram bool    `gorm:"default:false" json:"joined_telegram"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (User) TableName() string {
	return "user"
}
