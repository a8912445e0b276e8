package models

import (
	"time"
)

const (
	OrderStatusPending   = "pending"
	OrderStatusConfirmed = "confirmed"
	// OrderStatusAbandoned is terminal and only reached when a cutoff is configured.
	OrderStatusAbandoned = "abandoned"
)

type Order struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	UserID          string     `gorm:"size:64;index" json:"user_id"`
	Address         string     `gorm:"size:128;not null;index" json:"address"`
	Amount          float64    `gorm:"default:0" json:"amount"`
	TransactionHash string     `gorm:"size:1024" json:"transaction_hash"`
	Status          string     `gorm:"size:16;not null;default:'pending';index" json:"status"`
	ResolvedHash    string     `gorm:"size:128" json:"resolved_hash,omitempty"`
	Points          float64    `gorm:"default:0" json:"points"`
	Attempts        int        `gorm:"default:0" json:"attempts"`
	LastError       string     `gorm:"size:512" json:"last_error,omitempty"`
	ConfirmedAt     *time.Time `json:"confirmed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (Order) TableName() string {
	return "order"
}
