package payments

import "testing"

func TestNormalizeStateCodes(t *testing.T) {
	tests := []struct {
		code string
		want State
	}{
		{code: "1", want: StateAccepted},
		{code: "2", want: StateRejected},
		{code: "3", want: StatePending},
		{code: "4", want: StateFailed},
		{code: "6", want: StateReversed},
		{code: "10", want: StateAbandoned},
		{code: "11", want: StateCancelled},
	}

	for _, tt := range tests {
		if got := NormalizeState(tt.code, ""); got != tt.want {
			t.Fatalf("NormalizeState(%q, \"\") = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestNormalizeStateText(t *testing.T) {
	tests := []struct {
		text string
		want State
	}{
		{text: "Aceptada", want: StateAccepted},
		{text: "aceptada", want: StateAccepted},
		{text: "Rechazada", want: StateRejected},
		{text: "Pendiente", want: StatePending},
		{text: "Fallida", want: StateFailed},
		{text: "Cancelada", want: StateCancelled},
		{text: "Reversada", want: StateReversed},
		{text: "Abandonada", want: StateAbandoned},
		{text: "payment_completed", want: StateAccepted},
		{text: "payment_started", want: StatePending},
		{text: "payment_bounced", want: StateFailed},
		{text: "payment_refunded", want: StateReversed},
		{text: " approved ", want: StateAccepted},
	}

	for _, tt := range tests {
		if got := NormalizeState("", tt.text); got != tt.want {
			t.Fatalf("NormalizeState(\"\", %q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestNormalizeStateDiacritics(t *testing.T) {
	// accented forms seen in real provider traffic
	tests := map[string]State{
		"Aceptadá":  StateAccepted,
		"Rechazadá": StateRejected,
		"Pendienté": StatePending,
	}
	for text, want := range tests {
		if got := NormalizeState("", text); got != want {
			t.Fatalf("NormalizeState(\"\", %q) = %q, want %q", text, got, want)
		}
	}
}

func TestNormalizeStateCodeWinsOverText(t *testing.T) {
	if got := NormalizeState("1", "Rechazada"); got != StateAccepted {
		t.Fatalf("code must win over text, got %q", got)
	}
	if got := NormalizeState("2", "Aceptada"); got != StateRejected {
		t.Fatalf("code must win over text, got %q", got)
	}
}

func TestNormalizeStateUnknownCodeFallsBackToText(t *testing.T) {
	if got := NormalizeState("99", "Aceptada"); got != StateAccepted {
		t.Fatalf("unmapped code should fall back to text, got %q", got)
	}
}

func TestNormalizeStateUnmappedTextPassesThrough(t *testing.T) {
	if got := NormalizeState("", "En Validación"); got != State("en validacion") {
		t.Fatalf("unmapped text should pass through folded, got %q", got)
	}
}

func TestNormalizeStateEmptyDefaultsToPending(t *testing.T) {
	if got := NormalizeState("", ""); got != StatePending {
		t.Fatalf("empty state data should default to pending, got %q", got)
	}
	if got := NormalizeState("not-a-number", "  "); got != StatePending {
		t.Fatalf("garbage code with blank text should default to pending, got %q", got)
	}
}

func TestStateIsTerminal(t *testing.T) {
	for _, s := range []State{StateAccepted, StateRejected, StateFailed, StateCancelled, StateReversed, StateAbandoned} {
		if !s.IsTerminal() {
			t.Fatalf("expected %q to be terminal", s)
		}
	}
	if StatePending.IsTerminal() {
		t.Fatal("pending must not be terminal")
	}
	if State("en validacion").IsTerminal() {
		t.Fatal("passthrough states must not be terminal")
	}
}

func TestFoldStatusText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "Aceptada", want: "aceptada"},
		{in: "  ACEPTADA  ", want: "aceptada"},
		{in: "Aceptadá", want: "aceptada"},
		{in: "", want: ""},
	}
	for _, tt := range tests {
		if got := FoldStatusText(tt.in); got != tt.want {
			t.Fatalf("FoldStatusText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
