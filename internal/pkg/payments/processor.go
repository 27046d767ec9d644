package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/pnpbots/pnptv-payments/app/models"
	"github.com/pnpbots/pnptv-payments/app/repository"
	"github.com/pnpbots/pnptv-payments/internal/pkg/lock"
)

// Outcome classifies how a webhook delivery was handled. Everything except a
// hard error maps to a 200 acknowledgment; providers only retry on non-200.
type Outcome string

const (
	// OutcomeProcessed means this delivery applied a state transition.
	OutcomeProcessed Outcome = "processed"
	// OutcomeAlreadyProcessed means the payment was already in a terminal
	// state; the delivery is acknowledged as a duplicate success.
	OutcomeAlreadyProcessed Outcome = "already_processed"
	// OutcomeDuplicate means a peer holds the idempotency lock for this
	// exact event right now.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomePending means a pending state was re-affirmed; nothing
	// changed and nothing was activated.
	OutcomePending Outcome = "pending"
	// OutcomeIgnored means the event was acknowledged but deliberately not
	// applied (unresolvable non-accepted event, invalid reversal, unknown
	// state).
	OutcomeIgnored Outcome = "ignored"
)

// ProcessResult carries the outcome plus the resolved payment (nil when none
// could be resolved) so callers can finish the audit trail.
type ProcessResult struct {
	Outcome Outcome
	Payment *models.Payment
}

// Dispatcher fans out the post-commit side effects of a completed payment.
// Implementations must be asynchronous-safe: the payment status commit is the
// single source of truth and has already happened when these run.
type Dispatcher interface {
	DispatchActivation(ctx context.Context, payment *models.Payment) error
	DispatchHistory(ctx context.Context, payment *models.Payment, ev *CanonicalEvent) error
	DispatchNotification(ctx context.Context, payment *models.Payment, status string) error
}

// ProcessorConfig tunes the transition processor.
type ProcessorConfig struct {
	// LockTTL bounds how long a crashed holder can block an event key.
	LockTTL time.Duration
	// ResolveWindow bounds the user+plan recency fallback used when a
	// webhook carries no resolvable payment id.
	ResolveWindow time.Duration
}

// Processor is the state machine that applies verified, validated, normalized
// events to payments. It is the only writer of Payment.Status.
type Processor struct {
	payments repository.PaymentRepository
	locker   lock.Locker
	dispatch Dispatcher
	cfg      ProcessorConfig
}

// NewProcessor creates a transition processor.
func NewProcessor(payments repository.PaymentRepository, locker lock.Locker, dispatch Dispatcher, cfg ProcessorConfig) *Processor {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = lock.DefaultTTL
	}
	if cfg.ResolveWindow <= 0 {
		cfg.ResolveWindow = 24 * time.Hour
	}
	return &Processor{payments: payments, locker: locker, dispatch: dispatch, cfg: cfg}
}

// Process drives one canonical event through lock acquisition, payment
// resolution, integrity validation and the state transition. The lock is
// released only after the transition has been durably committed.
func (p *Processor) Process(ctx context.Context, ev *CanonicalEvent) (*ProcessResult, error) {
	key := lock.WebhookKey(ev.Provider, ev.Reference, string(ev.State))
	acquired, err := p.locker.Acquire(ctx, key, p.cfg.LockTTL)
	if err != nil {
		// Lock store down: fail closed, never process unlocked.
		return nil, fmt.Errorf("idempotency lock unavailable: %w", err)
	}
	if !acquired {
		log.Infof("[Payments] lock contention on %s, peer is processing this event", key)
		return &ProcessResult{Outcome: OutcomeDuplicate}, nil
	}
	defer func() {
		if err := p.locker.Release(context.WithoutCancel(ctx), key); err != nil {
			log.Errorf("[Payments] lock release failed for %s: %v (TTL will self-heal)", key, err)
		}
	}()

	payment, err := p.resolvePayment(ev)
	if err != nil {
		if !errors.Is(err, ErrPaymentNotFound) {
			return nil, err
		}
		if ev.State != StateAccepted {
			// No local record and no money moved: safe to acknowledge
			// and drop.
			log.Warnf("[Payments] dropping unresolvable %s event for %s/%s", ev.State, ev.Provider, ev.Reference)
			return &ProcessResult{Outcome: OutcomeIgnored}, nil
		}
		// Money may have moved with no record to credit. Never drop
		// silently.
		log.Errorf("[Payments] ESCALATION: accepted event for %s/%s resolves to no payment", ev.Provider, ev.Reference)
		return nil, err
	}

	if _, err := ValidateIntegrity(payment, ev); err != nil {
		log.Errorf("[Payments] integrity violation on payment %s: reported %s %s not in expected candidates",
			payment.ID, ev.Amount, ev.Currency)
		return &ProcessResult{Payment: payment}, err
	}

	var outcome Outcome
	err = p.payments.Transaction(func(tx *gorm.DB) error {
		current, err := p.payments.GetByIDForUpdate(tx, payment.ID)
		if err != nil {
			return err
		}

		outcome = p.transition(current, ev)
		if outcome != OutcomeProcessed {
			payment = current
			return nil
		}

		p.stampMetadata(current, ev)
		if err := p.payments.Save(tx, current); err != nil {
			return fmt.Errorf("commit payment %s: %w", current.ID, err)
		}
		payment = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	if outcome == OutcomeProcessed && payment.Status == models.PaymentStatusCompleted {
		p.fanOut(ctx, payment, ev)
	}

	return &ProcessResult{Outcome: outcome, Payment: payment}, nil
}

// transition applies the state machine in place and reports the outcome.
// pending -> {completed, failed}; completed -> refunded is the only way out
// of a terminal state; every other re-delivery into a settled payment is an
// acknowledged no-op.
func (p *Processor) transition(payment *models.Payment, ev *CanonicalEvent) Outcome {
	if payment.Status == models.PaymentStatusCompleted && ev.State == StateReversed {
		payment.Status = models.PaymentStatusRefunded
		return OutcomeProcessed
	}
	if payment.IsTerminal() {
		return OutcomeAlreadyProcessed
	}
	if payment.Status != models.PaymentStatusPending {
		// failed/cancelled have no outgoing transitions; late events are
		// acknowledged without regressing anything.
		return OutcomeAlreadyProcessed
	}

	switch ev.State {
	case StateAccepted:
		payment.Status = models.PaymentStatusCompleted
		return OutcomeProcessed
	case StateRejected, StateFailed, StateAbandoned, StateCancelled:
		payment.Status = models.PaymentStatusFailed
		return OutcomeProcessed
	case StateReversed:
		log.Warnf("[Payments] reversal for payment %s ignored: only valid from completed, current=%s",
			payment.ID, payment.Status)
		return OutcomeIgnored
	case StatePending:
		// The safety-critical branch: interim pending states (e.g. 3DS
		// challenges) must never activate anything.
		return OutcomePending
	default:
		log.Warnf("[Payments] unmapped state %q for payment %s left untouched", ev.State, payment.ID)
		return OutcomeIgnored
	}
}

func (p *Processor) stampMetadata(payment *models.Payment, ev *CanonicalEvent) {
	if payment.MetaString(models.MetaReference) == "" && ev.Reference != "" {
		payment.SetMeta(models.MetaReference, ev.Reference)
	}
	if ev.TransactionID != "" {
		payment.SetMeta(models.MetaTransactionID, ev.TransactionID)
	}
	if ev.Recovered {
		payment.SetMeta(models.MetaRecovered, true)
	}
	for k, v := range ev.ChainMeta {
		if v != "" {
			payment.SetMeta(k, v)
		}
	}
}

// fanOut dispatches the three activation side effects. They are not
// transactional with the status write; each failure is logged and left to the
// task's own retry policy.
func (p *Processor) fanOut(ctx context.Context, payment *models.Payment, ev *CanonicalEvent) {
	if err := p.dispatch.DispatchActivation(ctx, payment); err != nil {
		log.Errorf("[Payments] activation dispatch failed for payment %s: %v", payment.ID, err)
	}
	if err := p.dispatch.DispatchHistory(ctx, payment, ev); err != nil {
		log.Errorf("[Payments] history dispatch failed for payment %s: %v", payment.ID, err)
	}
	if err := p.dispatch.DispatchNotification(ctx, payment, payment.Status); err != nil {
		log.Errorf("[Payments] notification dispatch failed for payment %s: %v", payment.ID, err)
	}
}

// resolvePayment finds the payment a webhook refers to: by primary key, then
// by provider correlation reference, then by user+plan recency.
func (p *Processor) resolvePayment(ev *CanonicalEvent) (*models.Payment, error) {
	if ev.PaymentID != "" {
		payment, err := p.payments.GetByID(ev.PaymentID)
		if err == nil {
			return payment, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	if ev.Reference != "" {
		payment, err := p.payments.GetByProviderReference(ev.Provider, ev.Reference)
		if err == nil {
			return payment, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	if ev.UserID > 0 && ev.PlanID > 0 {
		since := time.Now().Add(-p.cfg.ResolveWindow)
		payment, err := p.payments.GetLatestPendingByUserAndPlan(ev.UserID, ev.PlanID, since)
		if err == nil {
			log.Warnf("[Payments] resolved %s/%s by user/plan recency to payment %s", ev.Provider, ev.Reference, payment.ID)
			return payment, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	return nil, ErrPaymentNotFound
}
