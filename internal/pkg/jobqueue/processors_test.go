package jobqueue

import (
	"context"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/pnpbots/pnptv-payments/app/models"
)

type fakePaymentStore struct {
	payments map[string]*models.Payment
}

func (f *fakePaymentStore) Create(p *models.Payment) error { f.payments[p.ID] = p; return nil }

func (f *fakePaymentStore) GetByID(id string) (*models.Payment, error) {
	p, ok := f.payments[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakePaymentStore) GetByIDForUpdate(tx *gorm.DB, id string) (*models.Payment, error) {
	return f.GetByID(id)
}

func (f *fakePaymentStore) GetByProviderReference(provider, reference string) (*models.Payment, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakePaymentStore) GetLatestPendingByUserAndPlan(userID, planID uint, since time.Time) (*models.Payment, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakePaymentStore) ListPendingOlderThan(cutoff time.Time, limit int) ([]models.Payment, error) {
	return nil, nil
}

func (f *fakePaymentStore) Update(p *models.Payment) error { f.payments[p.ID] = p; return nil }

func (f *fakePaymentStore) Save(tx *gorm.DB, p *models.Payment) error {
	f.payments[p.ID] = p
	return nil
}

func (f *fakePaymentStore) Transaction(fn func(tx *gorm.DB) error) error { return fn(nil) }

type fakeSubscriptionStore struct {
	subs map[uint]*models.Subscription
}

func (f *fakeSubscriptionStore) GetByUserID(userID uint) (*models.Subscription, error) {
	s, ok := f.subs[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSubscriptionStore) Upsert(sub *models.Subscription) error {
	cp := *sub
	f.subs[sub.UserID] = &cp
	return nil
}

type fakePlanStore struct {
	plans map[uint]*models.Plan
}

func (f *fakePlanStore) GetByID(id uint) (*models.Plan, error) {
	p, ok := f.plans[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return p, nil
}

func newActivatorFixture() (*SubscriptionActivator, *fakePaymentStore, *fakeSubscriptionStore) {
	payments := &fakePaymentStore{payments: map[string]*models.Payment{}}
	subs := &fakeSubscriptionStore{subs: map[uint]*models.Subscription{}}
	plans := &fakePlanStore{plans: map[uint]*models.Plan{
		7: {ID: 7, Name: "monthly", DurationDays: 30, Amount: "35000", Currency: "COP", IsActive: true},
	}}
	return NewSubscriptionActivator(payments, subs, plans), payments, subs
}

func completedPayment(id string, userID uint) *models.Payment {
	return &models.Payment{
		ID:       id,
		UserID:   userID,
		PlanID:   7,
		Amount:   "35000",
		Currency: "COP",
		Provider: models.PaymentProviderEpayco,
		Status:   models.PaymentStatusCompleted,
	}
}

func TestActivateCreatesSubscription(t *testing.T) {
	activator, payments, subs := newActivatorFixture()
	payments.payments["pay-1"] = completedPayment("pay-1", 42)

	if err := activator.Activate(context.Background(), "pay-1"); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}

	sub, ok := subs.subs[42]
	if !ok {
		t.Fatal("expected subscription to be created")
	}
	if sub.PlanID != 7 {
		t.Errorf("PlanID = %d, want 7", sub.PlanID)
	}
	if sub.LastPaymentID != "pay-1" {
		t.Errorf("LastPaymentID = %q, want pay-1", sub.LastPaymentID)
	}

	want := time.Now().AddDate(0, 0, 30)
	if diff := sub.ExpiresAt.Sub(want); diff < -time.Minute || diff > time.Minute {
		t.Errorf("ExpiresAt = %s, want about %s", sub.ExpiresAt, want)
	}
}

func TestActivateStacksOnActiveSubscription(t *testing.T) {
	activator, payments, subs := newActivatorFixture()
	payments.payments["pay-2"] = completedPayment("pay-2", 42)

	currentExpiry := time.Now().Add(10 * 24 * time.Hour)
	subs.subs[42] = &models.Subscription{
		UserID:        42,
		PlanID:        7,
		ExpiresAt:     currentExpiry,
		LastPaymentID: "pay-1",
	}

	if err := activator.Activate(context.Background(), "pay-2"); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}

	want := currentExpiry.AddDate(0, 0, 30)
	if !subs.subs[42].ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %s, want %s", subs.subs[42].ExpiresAt, want)
	}
}

func TestActivateRestartsExpiredSubscription(t *testing.T) {
	activator, payments, subs := newActivatorFixture()
	payments.payments["pay-3"] = completedPayment("pay-3", 42)

	subs.subs[42] = &models.Subscription{
		UserID:        42,
		PlanID:        7,
		ExpiresAt:     time.Now().Add(-48 * time.Hour),
		LastPaymentID: "pay-1",
	}

	if err := activator.Activate(context.Background(), "pay-3"); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}

	want := time.Now().AddDate(0, 0, 30)
	if diff := subs.subs[42].ExpiresAt.Sub(want); diff < -time.Minute || diff > time.Minute {
		t.Errorf("ExpiresAt = %s, want about %s", subs.subs[42].ExpiresAt, want)
	}
}

func TestActivateIsIdempotentPerPayment(t *testing.T) {
	activator, payments, subs := newActivatorFixture()
	payments.payments["pay-4"] = completedPayment("pay-4", 42)

	if err := activator.Activate(context.Background(), "pay-4"); err != nil {
		t.Fatalf("first Activate() error = %v", err)
	}
	firstExpiry := subs.subs[42].ExpiresAt

	if err := activator.Activate(context.Background(), "pay-4"); err != nil {
		t.Fatalf("second Activate() error = %v", err)
	}
	if !subs.subs[42].ExpiresAt.Equal(firstExpiry) {
		t.Errorf("retried activation extended the subscription again: %s vs %s", subs.subs[42].ExpiresAt, firstExpiry)
	}
}

func TestActivateSkipsNonCompletedPayment(t *testing.T) {
	activator, payments, subs := newActivatorFixture()
	p := completedPayment("pay-5", 42)
	p.Status = models.PaymentStatusPending
	payments.payments["pay-5"] = p

	if err := activator.Activate(context.Background(), "pay-5"); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	if _, ok := subs.subs[42]; ok {
		t.Error("pending payment must not create a subscription")
	}
}
