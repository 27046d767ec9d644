package payments

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/pnpbots/pnptv-payments/app/models"
)

// EpaycoWebhook is the raw shape of an ePayco confirmation POST. The x_extra
// fields carry our own correlation ids through the provider's side channel,
// set when the checkout was created.
type EpaycoWebhook struct {
	CustID        string `form:"x_cust_id_cliente" json:"x_cust_id_cliente"`
	RefPayco      string `form:"x_ref_payco" json:"x_ref_payco" validate:"required"`
	TransactionID string `form:"x_transaction_id" json:"x_transaction_id" validate:"required"`
	InvoiceID     string `form:"x_id_invoice" json:"x_id_invoice"`
	Amount        string `form:"x_amount" json:"x_amount" validate:"required"`
	Currency      string `form:"x_currency_code" json:"x_currency_code" validate:"required"`
	StateText     string `form:"x_transaction_state" json:"x_transaction_state"`
	StateCode     string `form:"x_cod_transaction_state" json:"x_cod_transaction_state"`
	Signature     string `form:"x_signature" json:"x_signature"`
	ExtraPayment  string `form:"x_extra1" json:"x_extra1"`
	ExtraUser     string `form:"x_extra2" json:"x_extra2"`
	ExtraPlan     string `form:"x_extra3" json:"x_extra3"`
}

// Validate checks the required correlation fields are present.
func (w *EpaycoWebhook) Validate() error {
	if err := validator.New().Struct(w); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}

// Canonical normalizes the raw confirmation into the internal event shape.
// The result still needs signature verification before it may be processed.
func (w *EpaycoWebhook) Canonical(rawBody []byte) *CanonicalEvent {
	ev := &CanonicalEvent{
		Provider:      models.PaymentProviderEpayco,
		Reference:     strings.TrimSpace(w.RefPayco),
		TransactionID: strings.TrimSpace(w.TransactionID),
		PaymentID:     strings.TrimSpace(w.ExtraPayment),
		UserID:        parseUintField(w.ExtraUser),
		PlanID:        parseUintField(w.ExtraPlan),
		State:         NormalizeState(w.StateCode, w.StateText),
		RawStatus:     strings.TrimSpace(w.StateText),
		RawCode:       strings.TrimSpace(w.StateCode),
		Amount:        strings.TrimSpace(w.Amount),
		Currency:      strings.TrimSpace(w.Currency),
		RawPayload:    rawBody,
	}
	// ePayco has no delivery id; one logical event is one (reference, state)
	// pair, which also matches the idempotency lock granularity.
	ev.EventID = fmt.Sprintf("%s:%s", ev.Reference, ev.State)
	return ev
}

func parseUintField(raw string) uint {
	n, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 32)
	if err != nil {
		return 0
	}
	return uint(n)
}
