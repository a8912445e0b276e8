package models

import (
	"time"
)

type Invitation struct {
	ID             uint   `gorm:"primaryKey"`
	InviterID      string `gorm:"size:64;not null;uniqueIndex:idx_invitation_pair"`
	InviterAddress string `gorm:"size:128;not null"`
	InviteeUserID  string `gorm:"size:64;not null;uniqueIndex:idx_invitation_pair"`
	InviteeAddress string `gorm:"size:128;not null"`
	Level          int    `gorm:"not null"`
	CreatedAt      time.Time
}

func (Invitation) TableName() string {
	return "invitation"
}
