package payments

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/gofiber/fiber/v2/log"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// State is the canonical transaction state both provider vocabularies are
// normalized onto.
type State string

const (
	StateAccepted  State = "accepted"
	StateRejected  State = "rejected"
	StatePending   State = "pending"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
	StateReversed  State = "reversed"
	StateAbandoned State = "abandoned"
)

// IsTerminal reports whether the state can no longer change provider-side.
func (s State) IsTerminal() bool {
	switch s {
	case StateAccepted, StateRejected, StateFailed, StateCancelled, StateReversed, StateAbandoned:
		return true
	}
	return false
}

// codeStates maps ePayco numeric transaction state codes. Codes are
// authoritative; the textual status is presentational and drifts between
// provider versions.
var codeStates = map[int]State{
	1:  StateAccepted,
	2:  StateRejected,
	3:  StatePending,
	4:  StateFailed,
	6:  StateReversed,
	10: StateAbandoned,
	11: StateCancelled,
}

// textStates maps folded (lowercased, diacritic-stripped) status text from
// both providers. ePayco reports Spanish; Daimo reports snake_case English.
var textStates = map[string]State{
	// ePayco Spanish vocabulary
	"aceptada":   StateAccepted,
	"aprobada":   StateAccepted,
	"rechazada":  StateRejected,
	"pendiente":  StatePending,
	"fallida":    StateFailed,
	"cancelada":  StateCancelled,
	"reversada":  StateReversed,
	"abandonada": StateAbandoned,

	// English variants seen in sandbox traffic
	"accepted":  StateAccepted,
	"approved":  StateAccepted,
	"rejected":  StateRejected,
	"declined":  StateRejected,
	"pending":   StatePending,
	"failed":    StateFailed,
	"cancelled": StateCancelled,
	"canceled":  StateCancelled,
	"reversed":  StateReversed,
	"refunded":  StateReversed,
	"abandoned": StateAbandoned,
	"expired":   StateAbandoned,

	// Daimo Pay status enum
	"payment_completed": StateAccepted,
	"payment_started":   StatePending,
	"payment_unpaid":    StatePending,
	"payment_bounced":   StateFailed,
	"payment_refunded":  StateReversed,
}

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// FoldStatusText lowercases and strips diacritics so "Aceptada" and
// "aceptada" (and mojibake-free accented forms) normalize identically.
func FoldStatusText(s string) string {
	folded, _, err := transform.String(foldTransformer, strings.TrimSpace(s))
	if err != nil {
		folded = strings.TrimSpace(s)
	}
	return strings.ToLower(folded)
}

// NormalizeState maps provider status data onto the canonical State. The
// numeric code wins when both code and text are present; an outright
// disagreement between the two is logged but never guessed around. Unmapped
// text passes through unchanged (folded) so new provider states stay visible
// instead of being dropped.
func NormalizeState(code, text string) State {
	var fromCode State
	if c := strings.TrimSpace(code); c != "" {
		if n, err := strconv.Atoi(c); err == nil {
			fromCode = codeStates[n]
		}
	}

	folded := FoldStatusText(text)
	fromText, textKnown := textStates[folded]

	if fromCode != "" {
		if textKnown && fromText != fromCode {
			log.Warnf("[Payments] state code/text disagreement: code=%q (%s) text=%q (%s), trusting code",
				code, fromCode, text, fromText)
		}
		return fromCode
	}
	if textKnown {
		return fromText
	}
	if folded == "" {
		return StatePending
	}
	// Unknown vocabulary: pass through rather than silently dropping it.
	return State(folded)
}
