package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/pnpbots/pnptv-payments/app/models"
	"github.com/pnpbots/pnptv-payments/app/repository"
)

// SubscriptionActivator extends the user's subscription when a payment
// completes. Extension is stacked: a payment while the subscription is still
// active adds the plan duration on top of the current expiry.
type SubscriptionActivator struct {
	payments      repository.PaymentRepository
	subscriptions repository.SubscriptionRepository
	plans         repository.PlanRepository
}

func NewSubscriptionActivator(payments repository.PaymentRepository, subscriptions repository.SubscriptionRepository, plans repository.PlanRepository) *SubscriptionActivator {
	return &SubscriptionActivator{
		payments:      payments,
		subscriptions: subscriptions,
		plans:         plans,
	}
}

func (a *SubscriptionActivator) Activate(ctx context.Context, paymentID string) error {
	payment, err := a.payments.GetByID(paymentID)
	if err != nil {
		return fmt.Errorf("failed to load payment %s: %w", paymentID, err)
	}
	if payment.Status != models.PaymentStatusCompleted {
		log.Warnf("[Activation] Payment %s is %s, skipping activation", payment.ID, payment.Status)
		return nil
	}

	plan, err := a.plans.GetByID(payment.PlanID)
	if err != nil {
		return fmt.Errorf("failed to load plan %d for payment %s: %w", payment.PlanID, payment.ID, err)
	}

	now := time.Now()
	sub, err := a.subscriptions.GetByUserID(payment.UserID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		sub = &models.Subscription{UserID: payment.UserID, ExpiresAt: now}
	case err != nil:
		return fmt.Errorf("failed to load subscription for user %d: %w", payment.UserID, err)
	case sub.LastPaymentID == payment.ID:
		// retried job, extension already applied
		return nil
	}

	base := now
	if sub.ExpiresAt.After(now) {
		base = sub.ExpiresAt
	}

	sub.PlanID = plan.ID
	sub.ExpiresAt = base.AddDate(0, 0, plan.DurationDays)
	sub.LastPaymentID = payment.ID

	if err := a.subscriptions.Upsert(sub); err != nil {
		return fmt.Errorf("failed to upsert subscription for user %d: %w", payment.UserID, err)
	}

	log.Infof("[Activation] User %d subscribed to plan %d until %s (payment %s)", payment.UserID, plan.ID, sub.ExpiresAt.Format(time.RFC3339), payment.ID)
	return nil
}

// LogHistoryRecorder is the default HistoryRecorder. The real history store
// lives in a separate service, so an installation without one just keeps the
// structured log trail.
type LogHistoryRecorder struct{}

func (LogHistoryRecorder) Record(ctx context.Context, entry HistoryPayload) error {
	log.Infof("[History] payment=%s user=%d provider=%s ref=%s state=%s amount=%s %s",
		entry.PaymentID, entry.UserID, entry.Provider, entry.Reference, entry.State, entry.Amount, entry.Currency)
	return nil
}

// LogNotifier is the default Notifier used when no messaging backend is
// configured.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, userID uint, paymentID, status string) error {
	log.Infof("[Notify] user=%d payment=%s status=%s", userID, paymentID, status)
	return nil
}
