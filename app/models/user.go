package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	USER_STATUS_ACTIVE   = "active"
	USER_STATUS_INACTIVE = "inactive"
	USER_STATUS_BANNED   = "banned"
)

// User is the minimal account record this service needs: enough to attribute
// payments and dispatch notifications. Account management lives elsewhere.
type User struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	TelegramID  int64          `gorm:"uniqueIndex" json:"telegram_id"`
	Username    string         `gorm:"type:varchar(150)" json:"username"`
	Email       string         `gorm:"type:varchar(200);index" json:"email"`
	Status      string         `gorm:"type:varchar(50);default:'active'" json:"status"`
	LastSeenAt  *time.Time     `gorm:"type:timestamp;default:null" json:"last_seen_at"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}
