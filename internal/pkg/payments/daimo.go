package payments

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pnpbots/pnptv-payments/app/models"
)

// DaimoWebhook is the raw shape of a Daimo Pay notification. Depending on
// provider version the payment data arrives flat or nested under "payment";
// both shapes collapse into one CanonicalEvent here and nowhere else.
type DaimoWebhook struct {
	Type      string        `json:"type"`
	PaymentID string        `json:"paymentId"`
	Payment   *DaimoPayment `json:"payment"`

	// Flat (legacy) variant
	ID          string            `json:"id"`
	Status      string            `json:"status"`
	Source      *DaimoSource      `json:"source"`
	Destination *DaimoDestination `json:"destination"`
	Metadata    map[string]string `json:"metadata"`
}

type DaimoPayment struct {
	ID          string            `json:"id"`
	Status      string            `json:"status"`
	Source      *DaimoSource      `json:"source"`
	Destination *DaimoDestination `json:"destination"`
	Metadata    map[string]string `json:"metadata"`
}

// DaimoSource carries the on-chain settlement details.
type DaimoSource struct {
	ChainID      string `json:"chainId"`
	TxHash       string `json:"txHash"`
	PayerAddress string `json:"payerAddress"`
}

type DaimoDestination struct {
	AmountUnits string `json:"amountUnits"`
	TokenSymbol string `json:"tokenSymbol"`
}

// ParseDaimoWebhook decodes a raw Daimo notification body.
func ParseDaimoWebhook(rawBody []byte) (*DaimoWebhook, error) {
	var w DaimoWebhook
	if err := json.Unmarshal(rawBody, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if w.paymentID() == "" {
		return nil, fmt.Errorf("%w: missing payment id", ErrMalformedPayload)
	}
	return &w, nil
}

func (w *DaimoWebhook) paymentID() string {
	if w.Payment != nil && strings.TrimSpace(w.Payment.ID) != "" {
		return strings.TrimSpace(w.Payment.ID)
	}
	if strings.TrimSpace(w.PaymentID) != "" {
		return strings.TrimSpace(w.PaymentID)
	}
	return strings.TrimSpace(w.ID)
}

func (w *DaimoWebhook) status() string {
	if w.Payment != nil && strings.TrimSpace(w.Payment.Status) != "" {
		return strings.TrimSpace(w.Payment.Status)
	}
	if strings.TrimSpace(w.Status) != "" {
		return strings.TrimSpace(w.Status)
	}
	return strings.TrimSpace(w.Type)
}

func (w *DaimoWebhook) metadata() map[string]string {
	if w.Payment != nil && w.Payment.Metadata != nil {
		return w.Payment.Metadata
	}
	return w.Metadata
}

func (w *DaimoWebhook) source() *DaimoSource {
	if w.Payment != nil && w.Payment.Source != nil {
		return w.Payment.Source
	}
	return w.Source
}

func (w *DaimoWebhook) destination() *DaimoDestination {
	if w.Payment != nil && w.Payment.Destination != nil {
		return w.Payment.Destination
	}
	return w.Destination
}

func (w *DaimoWebhook) metaValue(keys ...string) string {
	meta := w.metadata()
	if meta == nil {
		return ""
	}
	for _, k := range keys {
		if v := strings.TrimSpace(meta[k]); v != "" {
			return v
		}
	}
	return ""
}

// Canonical normalizes the notification into the internal event shape.
// The result still needs signature verification before it may be processed.
func (w *DaimoWebhook) Canonical(rawBody []byte) *CanonicalEvent {
	status := w.status()
	ev := &CanonicalEvent{
		Provider:   models.PaymentProviderDaimo,
		Reference:  w.paymentID(),
		PaymentID:  w.metaValue("payment_id", "paymentId"),
		UserID:     parseUintField(w.metaValue("user_id", "userId")),
		PlanID:     parseUintField(w.metaValue("plan_id", "planId")),
		State:      NormalizeState("", status),
		RawStatus:  status,
		RawPayload: rawBody,
	}
	if src := w.source(); src != nil {
		ev.TransactionID = strings.TrimSpace(src.TxHash)
	}
	if dst := w.destination(); dst != nil {
		ev.Amount = strings.TrimSpace(dst.AmountUnits)
		ev.Currency = strings.TrimSpace(dst.TokenSymbol)
	}
	ev.ChainMeta = w.ChainMetadata()
	ev.EventID = fmt.Sprintf("%s:%s", ev.Reference, ev.State)
	return ev
}

// ChainMetadata extracts the on-chain correlation fields for storage in the
// payment metadata once the event is applied.
func (w *DaimoWebhook) ChainMetadata() map[string]string {
	src := w.source()
	if src == nil {
		return nil
	}
	return map[string]string{
		models.MetaChain:        strings.TrimSpace(src.ChainID),
		models.MetaTxHash:       strings.TrimSpace(src.TxHash),
		models.MetaPayerAddress: strings.TrimSpace(src.PayerAddress),
	}
}
