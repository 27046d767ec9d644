package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/pnpbots/pnptv-payments/internal/pkg/jobqueue"
	"github.com/pnpbots/pnptv-payments/internal/pkg/metrics/counter"
)

var adminQueue *jobqueue.Queue

// InitAdminControllers wires the job queue into the admin handlers.
func InitAdminControllers(queue *jobqueue.Queue) {
	adminQueue = queue
}

// HandleAdminRecoverPayment triggers a status recovery for a single payment.
func HandleAdminRecoverPayment(c *fiber.Ctx) error {
	paymentID := c.Params("id")
	if paymentID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing_payment_id"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	result, err := deps.recovery.Recover(ctx, paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "payment_not_found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "recovery_failed", "detail": err.Error()})
	}

	return c.Status(fiber.StatusOK).JSON(result)
}

// HandleAdminPaymentEvents returns the webhook audit trail for a payment.
func HandleAdminPaymentEvents(c *fiber.Ctx) error {
	paymentID := c.Params("id")
	if paymentID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing_payment_id"})
	}

	events, err := deps.repos.WebhookEvent.ListByPaymentID(paymentID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "event_lookup_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"payment_id": paymentID, "events": events})
}

// HandleAdminPaymentStats exposes the webhook and recovery counters plus the
// job queue stats.
func HandleAdminPaymentStats(c *fiber.Ctx) error {
	counters, err := counter.Snapshot()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "counter_read_failed"})
	}

	resp := fiber.Map{"counters": counters}
	if adminQueue != nil {
		queueStats, qerr := adminQueue.GetQueueStats(c.Context())
		if qerr == nil {
			resp["queue"] = queueStats
		}
	}

	return c.Status(fiber.StatusOK).JSON(resp)
}
