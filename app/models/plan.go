package models

import "time"

// Plan describes a purchasable subscription tier.
type Plan struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"type:varchar(100);not null" json:"name"`
	DurationDays int       `gorm:"not null" json:"duration_days"`
	Amount       string    `gorm:"type:varchar(32);not null" json:"amount"`
	Currency     string    `gorm:"type:varchar(8);not null" json:"currency"`
	IsActive     bool      `gorm:"default:true;index" json:"is_active"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
