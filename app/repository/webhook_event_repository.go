package repository

import (
	"time"

	"github.com/pnpbots/pnptv-payments/app/models"
	"gorm.io/gorm"
)

// webhookEventRepository implements the WebhookEventRepository interface
type webhookEventRepository struct {
	db *gorm.DB
}

// NewWebhookEventRepository creates a new webhook event repository instance
func NewWebhookEventRepository(db *gorm.DB) WebhookEventRepository {
	return &webhookEventRepository{db: db}
}

// Create appends one audit row per inbound delivery attempt
func (r *webhookEventRepository) Create(event *models.WebhookEvent) error {
	return r.db.Create(event).Error
}

// HasProcessed reports whether a signature-valid delivery of this event id
// already completed processing without error. Mere prior receipt does not
// count: a forged or failed earlier delivery must not suppress a genuine one.
func (r *webhookEventRepository) HasProcessed(provider, providerEventID string) (bool, error) {
	var count int64
	err := r.db.Model(&models.WebhookEvent{}).
		Where("provider = ? AND provider_event_id = ? AND signature_valid = ? AND processed_at IS NOT NULL AND processing_error = ?",
			provider, providerEventID, true, "").
		Count(&count).Error
	return count > 0, err
}

// MarkProcessed records the processing outcome of an audited event
func (r *webhookEventRepository) MarkProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

// LinkPayment backfills the resolved payment id once processing identified it
func (r *webhookEventRepository) LinkPayment(id uint, paymentID string) error {
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).Update("payment_id", paymentID).Error
}

// ListByPaymentID returns the audit trail for one payment, oldest first
func (r *webhookEventRepository) ListByPaymentID(paymentID string) ([]models.WebhookEvent, error) {
	var events []models.WebhookEvent
	err := r.db.Where("payment_id = ?", paymentID).Order("created_at ASC").Find(&events).Error
	return events, err
}
