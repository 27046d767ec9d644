package payments

import "errors"

// Error taxonomy for webhook processing. Only signature, payload and
// integrity failures surface in the provider acknowledgment; everything
// downstream of the committed status write is logged and swallowed at the
// boundary.
var (
	// ErrInvalidSignature is the umbrella for both signature failures.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrMissingSignature means no signature field/header was present at
	// all. Rejected before any comparison; more severe than a mismatch
	// since it usually signals traffic that never went through the
	// provider.
	ErrMissingSignature = errors.New("missing webhook signature")

	// ErrSignatureMismatch means a signature was present but no candidate
	// hash matched.
	ErrSignatureMismatch = errors.New("webhook signature mismatch")

	// ErrMalformedPayload means required correlation fields are absent.
	// Never retried automatically.
	ErrMalformedPayload = errors.New("malformed webhook payload")

	// ErrAmountCurrencyMismatch is a potential integrity violation: the
	// reported amount/currency matches none of the candidates recorded at
	// payment creation. Requires manual review.
	ErrAmountCurrencyMismatch = errors.New("webhook amount/currency mismatch")

	// ErrPaymentNotFound means no payment could be resolved by primary key
	// nor by any secondary resolution path.
	ErrPaymentNotFound = errors.New("payment not found for webhook")

	// ErrUnknownProvider means the webhook names a provider this service
	// does not model.
	ErrUnknownProvider = errors.New("unknown payment provider")
)
