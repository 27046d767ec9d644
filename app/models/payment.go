package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	PaymentProviderEpayco = "epayco"
	PaymentProviderDaimo  = "daimo"

	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
	PaymentStatusCancelled = "cancelled"
	PaymentStatusRefunded  = "refunded"
)

// Metadata keys used to stash provider correlation data on a payment.
const (
	MetaReference          = "reference"
	MetaTransactionID      = "transaction_id"
	MetaExpectedAmounts    = "expected_amounts"
	MetaExpectedCurrencies = "expected_currencies"
	MetaRecovered          = "recovered"
	MetaChain              = "chain"
	MetaTxHash             = "tx_hash"
	MetaPayerAddress       = "payer_address"
)

// Payment is the unit of reconciliation. Rows are never deleted; the status
// column is only advanced by the transition processor so the table doubles as
// an audit trail.
type Payment struct {
	ID        string      `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID    uint        `gorm:"not null;index" json:"user_id"`
	PlanID    uint        `gorm:"not null;index" json:"plan_id"`
	Amount    string      `gorm:"type:varchar(32);not null" json:"amount"`
	Currency  string      `gorm:"type:varchar(8);not null" json:"currency"`
	Provider  string      `gorm:"type:varchar(20);not null;index" json:"provider"`
	Status    string      `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	Metadata  MetadataMap `gorm:"type:longtext;serializer:json" json:"metadata"`
	CreatedAt time.Time   `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

// MetadataMap is a free-form JSON object column.
type MetadataMap map[string]interface{}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = PaymentStatusPending
	}
	if p.Metadata == nil {
		p.Metadata = MetadataMap{}
	}
	return nil
}

// IsTerminal reports whether the payment reached a final status. Completed is
// terminal except for the single allowed follow-up transition to refunded.
func (p *Payment) IsTerminal() bool {
	return p.Status == PaymentStatusCompleted || p.Status == PaymentStatusRefunded
}

// MetaString reads a metadata field as string, tolerating missing keys and
// non-string JSON values.
func (p *Payment) MetaString(key string) string {
	if p.Metadata == nil {
		return ""
	}
	if v, ok := p.Metadata[key].(string); ok {
		return v
	}
	return ""
}

// MetaStrings reads a metadata field as a string slice. JSON round-trips
// store slices as []interface{}, so both shapes are accepted.
func (p *Payment) MetaStrings(key string) []string {
	if p.Metadata == nil {
		return nil
	}
	switch v := p.Metadata[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// MetaBool reads a metadata field as bool.
func (p *Payment) MetaBool(key string) bool {
	if p.Metadata == nil {
		return false
	}
	v, ok := p.Metadata[key].(bool)
	return ok && v
}

// SetMeta writes a metadata field, allocating the map if needed.
func (p *Payment) SetMeta(key string, value interface{}) {
	if p.Metadata == nil {
		p.Metadata = MetadataMap{}
	}
	p.Metadata[key] = value
}
