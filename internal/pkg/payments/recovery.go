package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/pnpbots/pnptv-payments/app/models"
	"github.com/pnpbots/pnptv-payments/app/repository"
	"github.com/pnpbots/pnptv-payments/internal/pkg/metrics/counter"
	"github.com/pnpbots/pnptv-payments/internal/pkg/retry"
)

// StatusResult is the canonical answer of a provider's authoritative status
// endpoint, carrying the same fields a webhook would have.
type StatusResult struct {
	State         State
	RawStatus     string
	RawCode       string
	Amount        string
	Currency      string
	Reference     string
	TransactionID string
	// Source names the endpoint that produced the answer, for the
	// disagreement warning and the audit trail.
	Source string
}

// StatusClient queries one provider's authoritative status API. Both
// supported providers can drop or delay webhooks indefinitely (interactive
// card authentication, chain reorgs), so this channel is the recovery truth.
type StatusClient interface {
	Provider() string
	CheckStatus(ctx context.Context, reference string) (*StatusResult, error)
}

// RecoveryOutcome classifies a recovery attempt.
type RecoveryOutcome string

const (
	// RecoveryReplayed means an authoritative accepted state was found and
	// re-driven through the normal processing pipeline.
	RecoveryReplayed RecoveryOutcome = "replayed"
	// RecoveryNotNeeded means the payment already reached a terminal
	// status locally.
	RecoveryNotNeeded RecoveryOutcome = "not_needed"
	// RecoveryUnconfirmed means the authoritative source does not (yet)
	// report an accepted state; nothing was changed.
	RecoveryUnconfirmed RecoveryOutcome = "unconfirmed"
)

// RecoveryResult reports what a recovery attempt found and did.
type RecoveryResult struct {
	Outcome RecoveryOutcome
	// State is the authoritative provider state, when one was fetched.
	State State
	// Process is the replay result when Outcome is RecoveryReplayed.
	Process *ProcessResult
}

// RecoveryService re-drives payments stuck in pending through the transition
// processor when the provider's status API reports them settled. Recovery
// never mutates payment state directly: it synthesizes a webhook-shaped event
// and re-enters the pipeline at the idempotency lock, preserving every
// guarantee of the webhook path.
type RecoveryService struct {
	payments  repository.PaymentRepository
	events    repository.WebhookEventRepository
	processor *Processor
	clients   map[string]StatusClient

	retryAttempts int
	retryBase     time.Duration
}

// NewRecoveryService creates a recovery service over the given status clients.
func NewRecoveryService(payments repository.PaymentRepository, events repository.WebhookEventRepository, processor *Processor, clients ...StatusClient) *RecoveryService {
	m := make(map[string]StatusClient, len(clients))
	for _, c := range clients {
		m[c.Provider()] = c
	}
	return &RecoveryService{
		payments:      payments,
		events:        events,
		processor:     processor,
		clients:       m,
		retryAttempts: retry.DefaultAttempts,
		retryBase:     retry.DefaultBaseDelay,
	}
}

// CheckStatus queries the authoritative status of a provider reference, with
// backoff around the outbound call. This runs before any lock is taken.
func (s *RecoveryService) CheckStatus(ctx context.Context, provider, reference string) (*StatusResult, error) {
	client, ok := s.clients[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}

	var result *StatusResult
	err := retry.Do(ctx, "status check "+provider, s.retryAttempts, s.retryBase, func(ctx context.Context) error {
		var err error
		result, err = client.CheckStatus(ctx, reference)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Recover checks one payment against its provider's status API and replays
// the settlement through the processor when the provider reports accepted.
func (s *RecoveryService) Recover(ctx context.Context, paymentID string) (*RecoveryResult, error) {
	payment, err := s.payments.GetByID(paymentID)
	if err != nil {
		return nil, fmt.Errorf("load payment %s: %w", paymentID, err)
	}
	if payment.IsTerminal() {
		_ = counter.AddRecoveryOutcome(payment.Provider, string(RecoveryNotNeeded))
		return &RecoveryResult{Outcome: RecoveryNotNeeded}, nil
	}

	reference := payment.MetaString(models.MetaReference)
	if reference == "" {
		return nil, fmt.Errorf("payment %s has no provider reference to check", payment.ID)
	}

	status, err := s.CheckStatus(ctx, payment.Provider, reference)
	if err != nil {
		return nil, err
	}
	if status.Reference == "" {
		status.Reference = reference
	}
	if status.State != StateAccepted {
		log.Infof("[Recovery] payment %s still %s at provider (%s)", payment.ID, status.State, status.Source)
		_ = counter.AddRecoveryOutcome(payment.Provider, string(RecoveryUnconfirmed))
		return &RecoveryResult{Outcome: RecoveryUnconfirmed, State: status.State}, nil
	}

	ev := s.synthesizeEvent(payment, status)

	// The replay is auditable like any real delivery; the deterministic
	// event id correlates repeated recovery runs in the audit log.
	rawPayload, _ := json.Marshal(status)
	ev.RawPayload = rawPayload
	stored := &models.WebhookEvent{
		Provider:        payment.Provider,
		ProviderEventID: ev.EventID,
		PaymentID:       &payment.ID,
		ReportedStatus:  status.RawStatus,
		ReportedCode:    status.RawCode,
		SignatureValid:  true,
		PayloadJSON:     string(rawPayload),
	}
	if err := s.events.Create(stored); err != nil {
		return nil, fmt.Errorf("audit recovery event: %w", err)
	}

	result, err := s.processor.Process(ctx, ev)
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	if markErr := s.events.MarkProcessed(stored.ID, msg); markErr != nil {
		log.Errorf("[Recovery] could not mark audit event %d: %v", stored.ID, markErr)
	}
	if err != nil {
		return nil, err
	}

	log.Infof("[Recovery] payment %s replayed via %s: %s", payment.ID, status.Source, result.Outcome)
	_ = counter.AddRecoveryOutcome(payment.Provider, string(RecoveryReplayed))
	return &RecoveryResult{Outcome: RecoveryReplayed, State: status.State, Process: result}, nil
}

// synthesizeEvent builds the webhook-shaped event for a replay, filling the
// fields a status endpoint omits (user/plan correlation) from the locally
// stored payment record.
func (s *RecoveryService) synthesizeEvent(payment *models.Payment, status *StatusResult) *CanonicalEvent {
	amount := status.Amount
	if amount == "" {
		amount = payment.Amount
	}
	currency := status.Currency
	if currency == "" {
		currency = payment.Currency
	}
	transactionID := status.TransactionID
	if transactionID == "" {
		transactionID = payment.MetaString(models.MetaTransactionID)
	}

	return &CanonicalEvent{
		Provider:      payment.Provider,
		EventID:       fmt.Sprintf("recovery:%s:%s", status.Reference, status.State),
		Reference:     status.Reference,
		TransactionID: transactionID,
		PaymentID:     payment.ID,
		UserID:        payment.UserID,
		PlanID:        payment.PlanID,
		State:         status.State,
		RawStatus:     status.RawStatus,
		RawCode:       status.RawCode,
		Amount:        amount,
		Currency:      currency,
		Recovered:     true,
	}
}

// SweepOnce scans payments stuck pending since before olderThan and attempts
// recovery for each. Returns how many were replayed to completion.
func (s *RecoveryService) SweepOnce(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	stuck, err := s.payments.ListPendingOlderThan(cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("list stuck payments: %w", err)
	}
	if len(stuck) == 0 {
		return 0, nil
	}

	log.Infof("[Recovery] sweeping %d payments pending since before %s", len(stuck), cutoff.Format(time.RFC3339))
	replayed := 0
	for i := range stuck {
		res, err := s.Recover(ctx, stuck[i].ID)
		if err != nil {
			log.Errorf("[Recovery] sweep recover %s: %v", stuck[i].ID, err)
			continue
		}
		if res.Outcome == RecoveryReplayed {
			replayed++
		}
	}
	return replayed, nil
}
