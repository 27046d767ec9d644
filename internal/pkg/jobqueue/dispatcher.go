package jobqueue

import (
	"context"
	"fmt"

	"github.com/pnpbots/pnptv-payments/app/models"
	"github.com/pnpbots/pnptv-payments/internal/pkg/payments"
)

// QueueDispatcher turns payment side effects into background jobs.
type QueueDispatcher struct {
	queue *Queue
}

func NewQueueDispatcher(queue *Queue) *QueueDispatcher {
	return &QueueDispatcher{queue: queue}
}

var _ payments.Dispatcher = (*QueueDispatcher)(nil)

func (d *QueueDispatcher) DispatchActivation(ctx context.Context, payment *models.Payment) error {
	payload := ActivationPayload{PaymentID: payment.ID}
	if _, err := d.queue.EnqueueJob(ctx, JobTypeActivateSubscription, payload.ToMap()); err != nil {
		return fmt.Errorf("failed to enqueue activation for payment %s: %w", payment.ID, err)
	}
	return nil
}

func (d *QueueDispatcher) DispatchHistory(ctx context.Context, payment *models.Payment, ev *payments.CanonicalEvent) error {
	payload := HistoryPayload{
		PaymentID: payment.ID,
		UserID:    payment.UserID,
		Provider:  payment.Provider,
		Reference: payment.MetaString(models.MetaReference),
		State:     string(ev.State),
		Amount:    payment.Amount,
		Currency:  payment.Currency,
	}
	if _, err := d.queue.EnqueueJob(ctx, JobTypeRecordHistory, payload.ToMap()); err != nil {
		return fmt.Errorf("failed to enqueue history for payment %s: %w", payment.ID, err)
	}
	return nil
}

func (d *QueueDispatcher) DispatchNotification(ctx context.Context, payment *models.Payment, status string) error {
	payload := NotifyPayload{
		PaymentID: payment.ID,
		UserID:    payment.UserID,
		Status:    status,
	}
	if _, err := d.queue.EnqueueJob(ctx, JobTypeNotifyUser, payload.ToMap()); err != nil {
		return fmt.Errorf("failed to enqueue notification for payment %s: %w", payment.ID, err)
	}
	return nil
}
