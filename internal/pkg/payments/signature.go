package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// VerifyEpaycoSignature checks the x_signature of an ePayco confirmation.
// The signature is SHA-256 over the caret-joined concatenation of
// {merchant id, secret, transaction reference, transaction id, amount,
// currency}. ePayco is not consistent about the textual amount form it signs
// ("10" vs "10.00"), so the hash is computed over every plausible
// amount/currency candidate pair derived from the webhook's own fields and
// any match is accepted. Comparison is constant time.
func VerifyEpaycoSignature(ev *CanonicalEvent, signature, merchantID, secret string) error {
	sig := strings.ToLower(strings.TrimSpace(signature))
	if sig == "" {
		return fmt.Errorf("%w: %w", ErrInvalidSignature, ErrMissingSignature)
	}

	for _, amount := range AmountCandidates(ev.Amount) {
		for _, currency := range currencySignatureCandidates(ev.Currency) {
			sum := sha256.Sum256([]byte(strings.Join([]string{
				merchantID,
				secret,
				ev.Reference,
				ev.TransactionID,
				amount,
				currency,
			}, "^")))
			candidate := hex.EncodeToString(sum[:])
			if hmac.Equal([]byte(candidate), []byte(sig)) {
				return nil
			}
		}
	}
	return fmt.Errorf("%w: %w", ErrInvalidSignature, ErrSignatureMismatch)
}

// currencySignatureCandidates covers the casings ePayco has been observed to
// sign with.
func currencySignatureCandidates(raw string) []string {
	c := strings.TrimSpace(raw)
	if c == "" {
		return []string{""}
	}
	out := []string{c}
	if lower := strings.ToLower(c); lower != c {
		out = append(out, lower)
	}
	if upper := strings.ToUpper(c); upper != c {
		out = append(out, upper)
	}
	return out
}

// VerifyDaimoSignature checks the Authorization header of a Daimo Pay
// webhook: an HMAC-SHA256 over the canonical JSON serialization of the body
// with the signature field itself excluded, compared in constant time.
func VerifyDaimoSignature(rawBody []byte, authHeader, secret string) error {
	token := strings.TrimSpace(authHeader)
	token = strings.TrimPrefix(token, "Bearer ")
	token = strings.TrimPrefix(token, "Basic ")
	token = strings.ToLower(strings.TrimSpace(token))
	if token == "" {
		return fmt.Errorf("%w: %w", ErrInvalidSignature, ErrMissingSignature)
	}

	canonical, err := canonicalJSON(rawBody)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSignature, ErrSignatureMismatch)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(canonical)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(token)) {
		return fmt.Errorf("%w: %w", ErrInvalidSignature, ErrSignatureMismatch)
	}
	return nil
}

// canonicalJSON re-serializes a JSON document with lexically sorted object
// keys and the top-level signature field removed, so the signed form is
// independent of the provider's field ordering.
func canonicalJSON(raw []byte) ([]byte, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	delete(doc, "signature")
	// encoding/json marshals map keys in sorted order.
	return json.Marshal(doc)
}
