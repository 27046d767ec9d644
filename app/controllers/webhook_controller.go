package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/pnpbots/pnptv-payments/app/models"
	"github.com/pnpbots/pnptv-payments/app/repository"
	"github.com/pnpbots/pnptv-payments/internal/pkg/env"
	"github.com/pnpbots/pnptv-payments/internal/pkg/metrics/counter"
	"github.com/pnpbots/pnptv-payments/internal/pkg/payments"
)

const webhookTimeout = 15 * time.Second

// webhookDeps is set once from main before the router starts serving.
type webhookDeps struct {
	processor *payments.Processor
	recovery  *payments.RecoveryService
	repos     *repository.Repositories
}

var deps webhookDeps

// InitWebhookControllers wires the shared processor, recovery service and
// repositories into the handler package.
func InitWebhookControllers(processor *payments.Processor, recovery *payments.RecoveryService, repos *repository.Repositories) {
	deps = webhookDeps{processor: processor, recovery: recovery, repos: repos}
}

// HandleEpaycoWebhook receives ePayco confirmation posts. ePayco retries on
// any non-200, so every deliberate no-op still acknowledges with 200.
func HandleEpaycoWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)

	var hook payments.EpaycoWebhook
	if err := c.BodyParser(&hook); err != nil {
		return rejectMalformed(c, models.PaymentProviderEpayco, rawBody, err)
	}
	if err := hook.Validate(); err != nil {
		return rejectMalformed(c, models.PaymentProviderEpayco, rawBody, err)
	}

	ev := hook.Canonical(rawBody)
	sigErr := payments.VerifyEpaycoSignature(
		ev,
		hook.Signature,
		env.GetEnv("EPAYCO_CUST_ID", ""),
		env.GetEnv("EPAYCO_P_KEY", ""),
	)

	return finishWebhook(c, ev, sigErr)
}

// HandleDaimoWebhook receives Daimo Pay webhook posts authenticated via the
// Authorization header.
func HandleDaimoWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)

	hook, err := payments.ParseDaimoWebhook(rawBody)
	if err != nil {
		return rejectMalformed(c, models.PaymentProviderDaimo, rawBody, err)
	}

	ev := hook.Canonical(rawBody)
	sigErr := payments.VerifyDaimoSignature(
		rawBody,
		c.Get(fiber.HeaderAuthorization),
		env.GetEnv("DAIMO_WEBHOOK_TOKEN", ""),
	)

	return finishWebhook(c, ev, sigErr)
}

// rejectMalformed audits an unparseable delivery and acknowledges it with 400.
// Even garbage gets its own audit row.
func rejectMalformed(c *fiber.Ctx, provider string, rawBody []byte, cause error) error {
	now := time.Now()
	if err := deps.repos.WebhookEvent.Create(&models.WebhookEvent{
		Provider:        provider,
		PayloadJSON:     string(rawBody),
		ProcessedAt:     &now,
		ProcessingError: cause.Error(),
	}); err != nil {
		log.Errorf("[Webhook] Failed to audit malformed %s delivery: %v", provider, err)
	}
	_ = counter.AddWebhookRejection(provider, "invalid_payload")
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
}

// finishWebhook runs the shared tail of both webhook handlers: audit row,
// signature gate, duplicate short-circuit, then the transition processor.
func finishWebhook(c *fiber.Ctx, ev *payments.CanonicalEvent, sigErr error) error {
	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	defer cancel()

	signatureValid := sigErr == nil
	stored := &models.WebhookEvent{
		Provider:        ev.Provider,
		ProviderEventID: ev.EventID,
		ReportedStatus:  ev.RawStatus,
		ReportedCode:    ev.RawCode,
		SignatureValid:  signatureValid,
		PayloadJSON:     string(ev.RawPayload),
	}
	if err := deps.repos.WebhookEvent.Create(stored); err != nil {
		log.Errorf("[Webhook] Failed to persist %s event %s: %v", ev.Provider, ev.EventID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	if !signatureValid {
		_ = deps.repos.WebhookEvent.MarkProcessed(stored.ID, sigErr.Error())
		_ = counter.AddWebhookRejection(ev.Provider, "invalid_signature")
		log.Warnf("[Webhook] Rejected %s event %s: %v", ev.Provider, ev.EventID, sigErr)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
	}

	// Prior receipt alone never short-circuits: an earlier forged or failed
	// delivery of this event id must not suppress the genuine one. Only a
	// signature-valid pass that completed without error counts as done; the
	// idempotency lock and the terminal-state check keep the rerun safe.
	done, err := deps.repos.WebhookEvent.HasProcessed(ev.Provider, ev.EventID)
	if err != nil {
		log.Errorf("[Webhook] Duplicate lookup failed for %s event %s: %v", ev.Provider, ev.EventID, err)
		done = false
	}
	if done {
		_ = deps.repos.WebhookEvent.MarkProcessed(stored.ID, "")
		_ = counter.AddWebhookOutcome(ev.Provider, string(payments.OutcomeDuplicate))
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}

	result, perr := deps.processor.Process(ctx, ev)
	if perr != nil {
		_ = deps.repos.WebhookEvent.MarkProcessed(stored.ID, perr.Error())
		switch {
		case errors.Is(perr, payments.ErrAmountCurrencyMismatch):
			_ = counter.AddWebhookRejection(ev.Provider, "amount_mismatch")
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "amount_mismatch"})
		case errors.Is(perr, payments.ErrPaymentNotFound):
			// Money may have moved with nothing to credit; non-200 keeps
			// the provider retrying while operators investigate.
			_ = counter.AddWebhookRejection(ev.Provider, "escalated")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "processing_failed"})
		default:
			_ = counter.AddWebhookRejection(ev.Provider, "processing_failed")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "processing_failed"})
		}
	}

	_ = deps.repos.WebhookEvent.MarkProcessed(stored.ID, "")
	if result.Payment != nil {
		_ = deps.repos.WebhookEvent.LinkPayment(stored.ID, result.Payment.ID)
	}
	_ = counter.AddWebhookOutcome(ev.Provider, string(result.Outcome))

	switch result.Outcome {
	case payments.OutcomeDuplicate:
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	case payments.OutcomeAlreadyProcessed:
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	case payments.OutcomeIgnored:
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
	default:
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
	}
}
