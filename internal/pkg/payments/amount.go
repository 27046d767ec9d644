package payments

import (
	"math"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/pnpbots/pnptv-payments/app/models"
)

// IntegrityResult is the outcome of the amount/currency cross-check.
type IntegrityResult string

const (
	IntegrityOK IntegrityResult = "ok"
	// IntegritySkipped means the payment carries no recorded expectation
	// (legacy/incomplete record). Deliberately allowed through; this is a
	// trade-off, not a security guarantee, and is warn-logged every time.
	IntegritySkipped IntegrityResult = "skipped"
)

// AmountCandidates expands a textual amount into every representation a
// provider might legitimately echo back: the raw string, the numeric
// normalization, the fixed two-decimal form and the bare integer when the
// value is whole. "10", "10.0" and "10.00" all describe the same charge.
func AmountCandidates(raw string) []string {
	out := make([]string, 0, 4)
	seen := make(map[string]struct{}, 4)
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	add(raw)

	trimmed := strings.TrimSpace(raw)
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return out
	}
	add(strconv.FormatFloat(f, 'f', -1, 64))
	add(strconv.FormatFloat(f, 'f', 2, 64))
	if f == math.Trunc(f) {
		add(strconv.FormatInt(int64(f), 10))
	}
	return out
}

// CurrencyCandidates normalizes a currency code into its acceptable forms.
func CurrencyCandidates(raw string) []string {
	c := strings.TrimSpace(raw)
	if c == "" {
		return nil
	}
	upper := strings.ToUpper(c)
	if upper == c {
		return []string{upper}
	}
	return []string{upper, c}
}

// FreezeExpectations records the acceptable amount/currency candidate sets
// into the payment metadata at creation time, before any provider traffic
// can reference the record.
func FreezeExpectations(p *models.Payment) {
	p.SetMeta(models.MetaExpectedAmounts, AmountCandidates(p.Amount))
	p.SetMeta(models.MetaExpectedCurrencies, CurrencyCandidates(p.Currency))
}

// ValidateIntegrity cross-checks the webhook's reported amount/currency
// against the candidate sets frozen into the payment at creation. It exists
// to stop a webhook for a different (e.g. smaller) transaction from being
// replayed against an unrelated pending payment.
func ValidateIntegrity(p *models.Payment, ev *CanonicalEvent) (IntegrityResult, error) {
	expectedAmounts := p.MetaStrings(models.MetaExpectedAmounts)
	expectedCurrencies := p.MetaStrings(models.MetaExpectedCurrencies)

	if len(expectedAmounts) == 0 || len(expectedCurrencies) == 0 {
		log.Warnf("[Payments] payment %s has no recorded amount/currency expectation, skipping integrity check", p.ID)
		return IntegritySkipped, nil
	}

	if !intersects(AmountCandidates(ev.Amount), expectedAmounts) {
		return "", ErrAmountCurrencyMismatch
	}
	if !currencyMatches(ev.Currency, expectedCurrencies) {
		return "", ErrAmountCurrencyMismatch
	}
	return IntegrityOK, nil
}

func intersects(a, b []string) bool {
	set := make(map[string]struct{}, len(b))
	for _, s := range b {
		set[strings.TrimSpace(s)] = struct{}{}
	}
	for _, s := range a {
		if _, ok := set[strings.TrimSpace(s)]; ok {
			return true
		}
	}
	return false
}

func currencyMatches(reported string, accepted []string) bool {
	r := strings.ToUpper(strings.TrimSpace(reported))
	if r == "" {
		return false
	}
	for _, c := range accepted {
		if strings.ToUpper(strings.TrimSpace(c)) == r {
			return true
		}
	}
	return false
}
