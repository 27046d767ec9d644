package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pnpbots/pnptv-payments/app/models"
	"github.com/pnpbots/pnptv-payments/internal/pkg/lock"
)

type fakeEventRepo struct {
	events []*models.WebhookEvent
}

func (f *fakeEventRepo) Create(event *models.WebhookEvent) error {
	event.ID = uint(len(f.events) + 1)
	f.events = append(f.events, event)
	return nil
}

func (f *fakeEventRepo) HasProcessed(provider, providerEventID string) (bool, error) {
	for _, e := range f.events {
		if e.Provider == provider && e.ProviderEventID == providerEventID &&
			e.SignatureValid && e.ProcessedAt != nil && e.ProcessingError == "" {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeEventRepo) MarkProcessed(id uint, processingError string) error {
	for _, e := range f.events {
		if e.ID == id {
			now := time.Now()
			e.ProcessedAt = &now
			e.ProcessingError = processingError
		}
	}
	return nil
}

func (f *fakeEventRepo) LinkPayment(id uint, paymentID string) error {
	for _, e := range f.events {
		if e.ID == id {
			e.PaymentID = &paymentID
		}
	}
	return nil
}

func (f *fakeEventRepo) ListByPaymentID(paymentID string) ([]models.WebhookEvent, error) {
	var out []models.WebhookEvent
	for _, e := range f.events {
		if e.PaymentID != nil && *e.PaymentID == paymentID {
			out = append(out, *e)
		}
	}
	return out, nil
}

type fakeStatusClient struct {
	provider string
	result   *StatusResult
	err      error
	calls    int
}

func (f *fakeStatusClient) Provider() string { return f.provider }

func (f *fakeStatusClient) CheckStatus(ctx context.Context, reference string) (*StatusResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func newRecoveryFixture(client StatusClient) (*RecoveryService, *fakePaymentRepo, *recordingDispatcher, *fakeEventRepo) {
	repo := newFakePaymentRepo()
	events := &fakeEventRepo{}
	dispatch := &recordingDispatcher{}
	proc := NewProcessor(repo, lock.NewMemoryLocker(), dispatch, ProcessorConfig{})
	svc := NewRecoveryService(repo, events, proc, client)
	svc.retryAttempts = 1
	svc.retryBase = time.Millisecond
	return svc, repo, dispatch, events
}

func seedStuckPayment(repo *fakePaymentRepo, id, reference string) *models.Payment {
	p := seedPendingPayment(repo, id)
	p.SetMeta(models.MetaReference, reference)
	repo.put(p)
	return p
}

func TestRecoverReplaysSettledPayment(t *testing.T) {
	client := &fakeStatusClient{
		provider: models.PaymentProviderEpayco,
		result: &StatusResult{
			State:     StateAccepted,
			RawStatus: "Aceptada",
			RawCode:   "1",
			Amount:    "150000",
			Currency:  "COP",
			Source:    "apify:transaction/detail",
		},
	}
	svc, repo, dispatch, events := newRecoveryFixture(client)
	seedStuckPayment(repo, "pay-1", "ref-1")

	res, err := svc.Recover(context.Background(), "pay-1")
	if err != nil {
		t.Fatalf("Recover() error = %v", err)
	}
	if res.Outcome != RecoveryReplayed {
		t.Fatalf("Outcome = %q, want replayed", res.Outcome)
	}
	if res.Process == nil || res.Process.Outcome != OutcomeProcessed {
		t.Fatalf("replay result = %+v", res.Process)
	}

	stored, _ := repo.GetByID("pay-1")
	if stored.Status != models.PaymentStatusCompleted {
		t.Fatalf("Status = %q, want completed", stored.Status)
	}
	if !stored.MetaBool(models.MetaRecovered) {
		t.Fatal("recovered payment must carry the recovered marker")
	}
	if dispatch.activationCount() != 1 {
		t.Fatalf("activations = %d, want 1", dispatch.activationCount())
	}

	if len(events.events) != 1 {
		t.Fatalf("audit rows = %d, want 1", len(events.events))
	}
	if events.events[0].ProviderEventID != "recovery:ref-1:accepted" {
		t.Fatalf("audit event id = %q", events.events[0].ProviderEventID)
	}
	if !events.events[0].SignatureValid {
		t.Fatal("recovery audit rows come from an authenticated API call")
	}
}

func TestRecoverTerminalPaymentNotNeeded(t *testing.T) {
	client := &fakeStatusClient{provider: models.PaymentProviderEpayco}
	svc, repo, _, _ := newRecoveryFixture(client)

	p := seedStuckPayment(repo, "pay-1", "ref-1")
	p.Status = models.PaymentStatusCompleted
	repo.put(p)

	res, err := svc.Recover(context.Background(), "pay-1")
	if err != nil {
		t.Fatalf("Recover() error = %v", err)
	}
	if res.Outcome != RecoveryNotNeeded {
		t.Fatalf("Outcome = %q, want not_needed", res.Outcome)
	}
	if client.calls != 0 {
		t.Fatal("terminal payment must not hit the provider API")
	}
}

func TestRecoverStillPendingUnconfirmed(t *testing.T) {
	client := &fakeStatusClient{
		provider: models.PaymentProviderEpayco,
		result:   &StatusResult{State: StatePending, RawStatus: "Pendiente", RawCode: "3"},
	}
	svc, repo, dispatch, _ := newRecoveryFixture(client)
	seedStuckPayment(repo, "pay-1", "ref-1")

	res, err := svc.Recover(context.Background(), "pay-1")
	if err != nil {
		t.Fatalf("Recover() error = %v", err)
	}
	if res.Outcome != RecoveryUnconfirmed {
		t.Fatalf("Outcome = %q, want unconfirmed", res.Outcome)
	}

	stored, _ := repo.GetByID("pay-1")
	if stored.Status != models.PaymentStatusPending {
		t.Fatalf("Status = %q, must stay pending", stored.Status)
	}
	if dispatch.activationCount() != 0 {
		t.Fatal("unconfirmed recovery must not activate")
	}
}

func TestRecoverWithoutReferenceFails(t *testing.T) {
	client := &fakeStatusClient{provider: models.PaymentProviderEpayco}
	svc, repo, _, _ := newRecoveryFixture(client)
	seedPendingPayment(repo, "pay-1")

	if _, err := svc.Recover(context.Background(), "pay-1"); err == nil {
		t.Fatal("expected error for payment without provider reference")
	}
}

func TestRecoverRepeatedRunsShareAuditRow(t *testing.T) {
	client := &fakeStatusClient{
		provider: models.PaymentProviderEpayco,
		result:   &StatusResult{State: StateAccepted, RawStatus: "Aceptada", RawCode: "1", Amount: "150000", Currency: "COP"},
	}
	svc, repo, _, events := newRecoveryFixture(client)
	seedStuckPayment(repo, "pay-1", "ref-1")

	if _, err := svc.Recover(context.Background(), "pay-1"); err != nil {
		t.Fatalf("first Recover() error = %v", err)
	}
	// second run is a no-op: payment terminal now
	res, err := svc.Recover(context.Background(), "pay-1")
	if err != nil {
		t.Fatalf("second Recover() error = %v", err)
	}
	if res.Outcome != RecoveryNotNeeded {
		t.Fatalf("Outcome = %q, want not_needed", res.Outcome)
	}
	if len(events.events) != 1 {
		t.Fatalf("audit rows = %d, want 1", len(events.events))
	}
}

func TestCheckStatusUnknownProvider(t *testing.T) {
	client := &fakeStatusClient{provider: models.PaymentProviderEpayco}
	svc, _, _, _ := newRecoveryFixture(client)

	_, err := svc.CheckStatus(context.Background(), "stripe", "ref-1")
	if !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("error = %v, want ErrUnknownProvider", err)
	}
}

func TestSweepOnceRecoversStuckPayments(t *testing.T) {
	client := &fakeStatusClient{
		provider: models.PaymentProviderEpayco,
		result:   &StatusResult{State: StateAccepted, RawStatus: "Aceptada", RawCode: "1", Amount: "150000", Currency: "COP"},
	}
	svc, repo, _, _ := newRecoveryFixture(client)
	seedStuckPayment(repo, "pay-1", "ref-1")
	seedStuckPayment(repo, "pay-2", "ref-2")

	replayed, err := svc.SweepOnce(context.Background(), time.Minute, 10)
	if err != nil {
		t.Fatalf("SweepOnce() error = %v", err)
	}
	if replayed != 2 {
		t.Fatalf("replayed = %d, want 2", replayed)
	}
}
