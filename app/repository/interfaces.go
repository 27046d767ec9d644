package repository

import (
	"time"

	"github.com/pnpbots/pnptv-payments/app/models"
	"gorm.io/gorm"
)

// PaymentRepository defines the interface for payment-related database operations
type PaymentRepository interface {
	Create(payment *models.Payment) error
	GetByID(id string) (*models.Payment, error)
	// GetByIDForUpdate fetches a payment under a row-level lock so the
	// recovery path can read the authoritative pre-update state.
	GetByIDForUpdate(tx *gorm.DB, id string) (*models.Payment, error)
	GetByProviderReference(provider, reference string) (*models.Payment, error)
	GetLatestPendingByUserAndPlan(userID, planID uint, since time.Time) (*models.Payment, error)
	ListPendingOlderThan(cutoff time.Time, limit int) ([]models.Payment, error)
	Update(payment *models.Payment) error
	// Save persists a payment inside an open transaction.
	Save(tx *gorm.DB, payment *models.Payment) error
	Transaction(fn func(tx *gorm.DB) error) error
}

// WebhookEventRepository defines the interface for the append-only webhook audit log
type WebhookEventRepository interface {
	// Create appends one audit row. Every inbound delivery attempt gets
	// its own row, including duplicates and rejected ones.
	Create(event *models.WebhookEvent) error
	// HasProcessed reports whether a signature-valid delivery of this
	// event id already completed processing without error.
	HasProcessed(provider, providerEventID string) (bool, error)
	MarkProcessed(id uint, processingError string) error
	LinkPayment(id uint, paymentID string) error
	ListByPaymentID(paymentID string) ([]models.WebhookEvent, error)
}

// SubscriptionRepository defines the interface for subscription bookkeeping
type SubscriptionRepository interface {
	GetByUserID(userID uint) (*models.Subscription, error)
	Upsert(sub *models.Subscription) error
}

// PlanRepository defines read access to subscription plans
type PlanRepository interface {
	GetByID(id uint) (*models.Plan, error)
}

// Repositories bundles all repository instances
type Repositories struct {
	Payment      PaymentRepository
	WebhookEvent WebhookEventRepository
	Subscription SubscriptionRepository
	Plan         PlanRepository
}

// NewRepositories creates all repositories backed by the given DB handle
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Payment:      NewPaymentRepository(db),
		WebhookEvent: NewWebhookEventRepository(db),
		Subscription: NewSubscriptionRepository(db),
		Plan:         NewPlanRepository(db),
	}
}
