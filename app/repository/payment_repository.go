package repository

import (
	"time"

	"github.com/pnpbots/pnptv-payments/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// paymentRepository implements the PaymentRepository interface
type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository creates a new payment repository instance
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

// Create creates a new payment record
func (r *paymentRepository) Create(payment *models.Payment) error {
	return r.db.Create(payment).Error
}

// GetByID retrieves a payment by its internal id
func (r *paymentRepository) GetByID(id string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.Where("id = ?", id).First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetByIDForUpdate retrieves a payment with SELECT ... FOR UPDATE inside the
// given transaction handle.
func (r *paymentRepository) GetByIDForUpdate(tx *gorm.DB, id string) (*models.Payment, error) {
	var payment models.Payment
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetByProviderReference resolves a payment by the provider correlation
// reference stashed in its metadata at charge creation time.
func (r *paymentRepository) GetByProviderReference(provider, reference string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.
		Where("provider = ?", provider).
		Where("JSON_UNQUOTE(JSON_EXTRACT(metadata, '$.reference')) = ?", reference).
		Order("created_at DESC").
		First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetLatestPendingByUserAndPlan is the last-resort secondary resolution: the
// most recent pending payment for a user/plan pair created after `since`.
func (r *paymentRepository) GetLatestPendingByUserAndPlan(userID, planID uint, since time.Time) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.
		Where("user_id = ? AND plan_id = ? AND status = ?", userID, planID, models.PaymentStatusPending).
		Where("created_at >= ?", since).
		Order("created_at DESC").
		First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// ListPendingOlderThan lists payments stuck in pending since before cutoff,
// oldest first, for the recovery sweep.
func (r *paymentRepository) ListPendingOlderThan(cutoff time.Time, limit int) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.
		Where("status = ? AND created_at < ?", models.PaymentStatusPending, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&payments).Error
	return payments, err
}

// Update persists payment mutations (status and metadata)
func (r *paymentRepository) Update(payment *models.Payment) error {
	return r.db.Save(payment).Error
}

// Save persists a payment inside the given transaction handle
func (r *paymentRepository) Save(tx *gorm.DB, payment *models.Payment) error {
	return tx.Save(payment).Error
}

// Transaction runs fn inside a database transaction
func (r *paymentRepository) Transaction(fn func(tx *gorm.DB) error) error {
	return r.db.Transaction(fn)
}
