package models

import "time"

// WebhookEvent is the append-only audit log of every inbound provider
// notification: one row per delivery attempt, including duplicates and
// rejected deliveries. Rows are never mutated after insert apart from the
// processing outcome columns. The (provider, provider_event_id) index is a
// correlation key, not a uniqueness constraint, so redeliveries of the same
// logical event each leave their own row.
type WebhookEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Provider        string     `gorm:"type:varchar(20);not null;index:idx_webhook_events_provider_event,priority:1" json:"provider"`
	ProviderEventID string     `gorm:"type:varchar(191);not null;default:'';index:idx_webhook_events_provider_event,priority:2" json:"provider_event_id"`
	PaymentID       *string    `gorm:"type:varchar(36);index" json:"payment_id,omitempty"`
	ReportedStatus  string     `gorm:"type:varchar(50)" json:"reported_status"`
	ReportedCode    string     `gorm:"type:varchar(20)" json:"reported_code"`
	SignatureValid  bool       `gorm:"default:false;index" json:"signature_valid"`
	PayloadJSON     string     `gorm:"type:longtext;not null" json:"payload_json"`
	ProcessedAt     *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
