package payments

import (
	"errors"
	"testing"

	"github.com/pnpbots/pnptv-payments/app/models"
)

func TestAmountCandidates(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{raw: "10", want: []string{"10", "10.00"}},
		{raw: "10.00", want: []string{"10.00", "10"}},
		{raw: "150000", want: []string{"150000", "150000.00"}},
		{raw: "35.5", want: []string{"35.5", "35.50"}},
		{raw: " 10 ", want: []string{"10", "10.00"}},
		{raw: "abc", want: []string{"abc"}},
		{raw: "", want: []string{}},
	}

	for _, tt := range tests {
		got := AmountCandidates(tt.raw)
		if len(got) != len(tt.want) {
			t.Fatalf("AmountCandidates(%q) = %v, want %v", tt.raw, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Fatalf("AmountCandidates(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		}
	}
}

func TestCurrencyCandidates(t *testing.T) {
	if got := CurrencyCandidates("COP"); len(got) != 1 || got[0] != "COP" {
		t.Fatalf("CurrencyCandidates(COP) = %v", got)
	}
	if got := CurrencyCandidates("cop"); len(got) != 2 || got[0] != "COP" || got[1] != "cop" {
		t.Fatalf("CurrencyCandidates(cop) = %v", got)
	}
	if got := CurrencyCandidates(""); got != nil {
		t.Fatalf("CurrencyCandidates(\"\") = %v, want nil", got)
	}
}

func newExpectedPayment(amount, currency string) *models.Payment {
	p := &models.Payment{
		ID:       "pay-1",
		Amount:   amount,
		Currency: currency,
		Status:   models.PaymentStatusPending,
	}
	FreezeExpectations(p)
	return p
}

func TestValidateIntegrityAccepts(t *testing.T) {
	p := newExpectedPayment("150000", "COP")

	for _, reported := range []string{"150000", "150000.00", "150000.0"} {
		ev := &CanonicalEvent{Amount: reported, Currency: "COP"}
		res, err := ValidateIntegrity(p, ev)
		if err != nil {
			t.Fatalf("ValidateIntegrity(%q) error = %v", reported, err)
		}
		if res != IntegrityOK {
			t.Fatalf("ValidateIntegrity(%q) = %q, want %q", reported, res, IntegrityOK)
		}
	}
}

func TestValidateIntegrityCurrencyCaseInsensitive(t *testing.T) {
	p := newExpectedPayment("10", "USDC")
	ev := &CanonicalEvent{Amount: "10.00", Currency: "usdc"}
	if _, err := ValidateIntegrity(p, ev); err != nil {
		t.Fatalf("ValidateIntegrity() error = %v", err)
	}
}

func TestValidateIntegrityRejectsWrongAmount(t *testing.T) {
	p := newExpectedPayment("150000", "COP")
	ev := &CanonicalEvent{Amount: "5000", Currency: "COP"}
	_, err := ValidateIntegrity(p, ev)
	if !errors.Is(err, ErrAmountCurrencyMismatch) {
		t.Fatalf("ValidateIntegrity() error = %v, want ErrAmountCurrencyMismatch", err)
	}
}

func TestValidateIntegrityRejectsWrongCurrency(t *testing.T) {
	p := newExpectedPayment("150000", "COP")
	ev := &CanonicalEvent{Amount: "150000", Currency: "USD"}
	_, err := ValidateIntegrity(p, ev)
	if !errors.Is(err, ErrAmountCurrencyMismatch) {
		t.Fatalf("ValidateIntegrity() error = %v, want ErrAmountCurrencyMismatch", err)
	}
}

func TestValidateIntegritySkipsWithoutExpectations(t *testing.T) {
	p := &models.Payment{ID: "pay-legacy", Amount: "10", Currency: "USD"}
	ev := &CanonicalEvent{Amount: "99999", Currency: "XXX"}
	res, err := ValidateIntegrity(p, ev)
	if err != nil {
		t.Fatalf("ValidateIntegrity() error = %v", err)
	}
	if res != IntegritySkipped {
		t.Fatalf("ValidateIntegrity() = %q, want %q", res, IntegritySkipped)
	}
}
