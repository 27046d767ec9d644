package models

import "time"

// Subscription tracks a user's access window. Activation extends ExpiresAt
// from the current expiry when it is still in the future, otherwise from now.
type Subscription struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        uint      `gorm:"not null;uniqueIndex" json:"user_id"`
	PlanID        uint      `gorm:"not null;index" json:"plan_id"`
	ExpiresAt     time.Time `gorm:"type:timestamp;not null;index" json:"expires_at"`
	LastPaymentID string    `gorm:"type:varchar(36)" json:"last_payment_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsActive reports whether the subscription grants access right now.
func (s *Subscription) IsActive() bool {
	return s.ExpiresAt.After(time.Now())
}
