package payments

// CanonicalEvent is the one internal event shape every component downstream
// of signature verification operates on. Raw provider payload shapes (flat
// vs. nested, string vs. numeric states) never leave the boundary parsers.
type CanonicalEvent struct {
	Provider string
	// EventID is the provider-assigned delivery id when one exists;
	// synthesized deterministically otherwise so the audit log dedupes.
	EventID string
	// Reference is the provider transaction reference used for lock keys
	// and authoritative status lookups.
	Reference     string
	TransactionID string

	// Correlation ids carried through the provider's side channel
	// ("extra" fields / metadata sub-object) from charge creation.
	PaymentID string
	UserID    uint
	PlanID    uint

	State     State
	RawStatus string
	RawCode   string

	Amount   string
	Currency string

	// Recovered marks events synthesized by the reconciliation service
	// from an authoritative status lookup instead of a real delivery.
	Recovered bool

	// ChainMeta carries provider-specific settlement details (chain id,
	// tx hash, payer address) stamped onto the payment once applied.
	ChainMeta map[string]string

	RawPayload []byte
}
