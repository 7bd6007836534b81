package app

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Samarth40/tree-adoption-sub000/internal/domain"
	"github.com/Samarth40/tree-adoption-sub000/internal/store"
)

type checkoutFixture struct {
	payments *paymentsStub
	store    *memoryStore
	ledger   *memoryLedger
	recorder *Recorder
	svc      *CheckoutService
}

func newCheckoutFixture(trees ...domain.TreeListing) *checkoutFixture {
	f := &checkoutFixture{
		payments: newPaymentsStub(),
		store:    newMemoryStore(trees...),
		ledger:   newMemoryLedger(),
	}
	f.recorder = NewRecorder(f.store, f.store, f.store, f.ledger, nil, discardLogger())
	f.recorder.now = func() time.Time { return testNow }
	f.svc = NewCheckoutService(f.payments, f.store, f.ledger, f.recorder, CheckoutConfig{}, nil, discardLogger())
	return f
}

func validRequest(treeID string, years int) domain.AdoptionRequest {
	return domain.AdoptionRequest{
		TreeID:    treeID,
		PlanYears: years,
		Contact: domain.Contact{
			FirstName: "Asha",
			LastName:  "Rao",
			Email:     "asha@example.com",
			Phone:     "+91 98450 00000",
			Address:   "12 MG Road, Bengaluru",
		},
	}
}

func (f *checkoutFixture) start(t *testing.T, userID, key string, req domain.AdoptionRequest) *CheckoutStarted {
	t.Helper()
	started, err := f.svc.StartCheckout(context.Background(), StartCheckoutInput{UserID: userID, IdempotencyKey: key, Request: req})
	require.NoError(t, err)
	return started
}

func (f *checkoutFixture) pay(t *testing.T, userID string, started *CheckoutStarted) *RecordResult {
	t.Helper()
	f.payments.setStatus(started.PaymentIntentID, domain.PaymentIntentSucceeded)
	result, err := f.svc.ConfirmCheckout(context.Background(), userID, started.CheckoutID, started.PaymentIntentID)
	require.NoError(t, err)
	return result
}

func TestCreatePaymentIntent_RejectsInvalidAmountWithoutProviderCall(t *testing.T) {
	f := newCheckoutFixture()
	for _, amount := range []float64{0, -5, 0.001, 0.004, 1e17, 1e19, math.NaN(), math.Inf(1)} {
		_, err := f.svc.CreatePaymentIntent(context.Background(), amount, "")
		assert.ErrorIs(t, err, ErrInvalidAmount)
	}
	assert.Empty(t, f.payments.creates)
}

func TestCreatePaymentIntent_ConvertsToMinorUnits(t *testing.T) {
	f := newCheckoutFixture()

	intent, err := f.svc.CreatePaymentIntent(context.Background(), 199, "key-1")
	require.NoError(t, err)
	assert.Equal(t, "pi_1_secret", intent.ClientSecret)

	require.Len(t, f.payments.creates, 1)
	in := f.payments.creates[0]
	assert.Equal(t, int64(19900), in.AmountMinor)
	assert.Equal(t, "INR", in.Currency)
	assert.Equal(t, "key-1", in.IdempotencyKey)
	assert.Equal(t, "tree_adoption", in.Metadata["integration_check"])
}

func TestCreatePaymentIntent_ProviderErrorIsReturnedVerbatim(t *testing.T) {
	f := newCheckoutFixture()
	providerErr := &domain.ProviderError{Code: "amount_too_small", Type: "invalid_request_error", Message: "Amount must be at least ₹0.50", StatusCode: 400}
	f.payments.createErr = providerErr

	_, err := f.svc.CreatePaymentIntent(context.Background(), 0.1, "")
	var pe *domain.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, providerErr, pe)
}

func TestPaymentNotConfigured(t *testing.T) {
	svc := NewCheckoutService(nil, newMemoryStore(), newMemoryLedger(), nil, CheckoutConfig{}, nil, discardLogger())

	_, err := svc.CreatePaymentIntent(context.Background(), 10, "")
	assert.ErrorIs(t, err, ErrPaymentNotConfigured)

	_, err = svc.CreatePaymentIntent(context.Background(), 0, "")
	assert.ErrorIs(t, err, ErrInvalidAmount, "validation runs before the provider check")
}

func TestValidateAdoptionRequest(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*domain.AdoptionRequest)
		field string
	}{
		{"valid", func(*domain.AdoptionRequest) {}, ""},
		{"missing tree", func(r *domain.AdoptionRequest) { r.TreeID = "" }, "treeId"},
		{"blank first name", func(r *domain.AdoptionRequest) { r.Contact.FirstName = "  " }, "firstName"},
		{"bad email", func(r *domain.AdoptionRequest) { r.Contact.Email = "not-an-email" }, "email"},
		{"missing phone", func(r *domain.AdoptionRequest) { r.Contact.Phone = "" }, "phone"},
		{"gift without recipient", func(r *domain.AdoptionRequest) { r.Gift = &domain.GiftDetails{Message: "hi"} }, "gift.recipientName"},
		{"gift with recipient", func(r *domain.AdoptionRequest) { r.Gift = &domain.GiftDetails{RecipientName: "Ravi"} }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest("t1", 1)
			tt.edit(&req)
			err := ValidateAdoptionRequest(req)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestStartCheckout_CreatesPendingAttemptAndIntent(t *testing.T) {
	f := newCheckoutFixture(testTree("t1"))

	started := f.start(t, "user-1", "key-1", validRequest("t1", 2))
	assert.Equal(t, int64(3599), started.Amount)
	assert.Equal(t, int64(359900), started.AmountMinor)
	assert.Equal(t, "INR", started.Currency)

	attempt, err := f.ledger.GetCheckoutAttempt(context.Background(), started.CheckoutID)
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutPending, attempt.Status)
	assert.Equal(t, started.PaymentIntentID, attempt.IntentID())

	in := f.payments.creates[0]
	assert.Equal(t, started.CheckoutID.String(), in.Metadata["checkout_id"])
	assert.Equal(t, "t1", in.Metadata["tree_id"])
	assert.Equal(t, "user-1", in.Metadata["user_id"])
	assert.Equal(t, "asha@example.com", in.ReceiptEmail)
}

func TestStartCheckout_RetryWithSameKeyReusesAttempt(t *testing.T) {
	f := newCheckoutFixture(testTree("t1"))

	first := f.start(t, "user-1", "key-1", validRequest("t1", 1))
	second := f.start(t, "user-1", "key-1", validRequest("t1", 5))

	assert.Equal(t, first.CheckoutID, second.CheckoutID)
	assert.Equal(t, first.PaymentIntentID, second.PaymentIntentID)
	assert.Equal(t, first.AmountMinor, second.AmountMinor, "the original attempt's amount wins")
	assert.Len(t, f.ledger.attempts, 1)

	other := f.start(t, "user-2", "key-1", validRequest("t1", 1))
	assert.NotEqual(t, first.CheckoutID, other.CheckoutID, "keys are scoped per user")
}

func TestStartCheckout_RejectsAdoptedTree(t *testing.T) {
	tree := testTree("t1")
	tree.Status = domain.TreeStatusAdopted
	f := newCheckoutFixture(tree)

	_, err := f.svc.StartCheckout(context.Background(), StartCheckoutInput{UserID: "u", Request: validRequest("t1", 1)})
	assert.ErrorIs(t, err, ErrTreeUnavailable)
	assert.Empty(t, f.ledger.attempts)
	assert.Empty(t, f.payments.creates)
}

func TestStartCheckout_UnknownPlanIsValidationError(t *testing.T) {
	f := newCheckoutFixture(testTree("t1"))
	_, err := f.svc.StartCheckout(context.Background(), StartCheckoutInput{UserID: "u", Request: validRequest("t1", 3)})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "planYears", ve.Field)
}

func TestConfirmCheckout_RecordsAdoption(t *testing.T) {
	f := newCheckoutFixture(testTree("t1"))
	started := f.start(t, "user-1", "", validRequest("t1", 2))

	result := f.pay(t, "user-1", started)
	assert.Equal(t, started.PaymentIntentID, result.Adoption.ID)
	assert.Equal(t, started.PaymentIntentID, result.Adoption.PaymentID)
	assert.Equal(t, int64(3599), result.Adoption.AmountPaid)
	assert.Equal(t, 44.0, result.Adoption.ImpactKg)
	assert.Equal(t, testNow.AddDate(2, 0, 0), result.Adoption.ExpiresAt)
	assert.True(t, result.AggregateApplied)
	assert.True(t, result.TreeMarked)
	assert.False(t, result.TreeConflict)

	user := f.store.users["user-1"]
	assert.Equal(t, int64(1), user.TreesPlanted)
	assert.Equal(t, 44.0, user.TotalImpactKg)
	assert.Equal(t, domain.TreeStatusAdopted, f.store.trees["t1"].Status)

	attempt, _ := f.ledger.GetCheckoutAttempt(context.Background(), started.CheckoutID)
	assert.Equal(t, domain.CheckoutRecorded, attempt.Status)
	assert.Equal(t, []string{domain.RoutingAdoptionRecorded}, f.ledger.routingKeys())

	summary := result.Summary()
	assert.Equal(t, result.Adoption.ID, summary.AdoptionID)
	assert.False(t, summary.IsGift)
}

func TestConfirmCheckout_IsIdempotent(t *testing.T) {
	f := newCheckoutFixture(testTree("t1"))
	started := f.start(t, "user-1", "", validRequest("t1", 1))
	first := f.pay(t, "user-1", started)

	again, err := f.svc.ConfirmCheckout(context.Background(), "user-1", started.CheckoutID, started.PaymentIntentID)
	require.NoError(t, err)
	assert.True(t, again.AlreadyRecorded)
	assert.Equal(t, first.Adoption.ID, again.Adoption.ID)
	assert.Len(t, f.store.adoptions, 1)
	assert.Equal(t, 1, f.store.increments)
}

func TestConfirmCheckout_NotSucceededRecordsNothing(t *testing.T) {
	for _, status := range []string{domain.PaymentIntentRequiresPaymentMethod, domain.PaymentIntentProcessing, domain.PaymentIntentCanceled} {
		t.Run(status, func(t *testing.T) {
			f := newCheckoutFixture(testTree("t1"))
			started := f.start(t, "user-1", "", validRequest("t1", 1))
			f.payments.setStatus(started.PaymentIntentID, status)

			_, err := f.svc.ConfirmCheckout(context.Background(), "user-1", started.CheckoutID, started.PaymentIntentID)
			assert.ErrorIs(t, err, ErrPaymentNotCompleted)
			assert.Empty(t, f.store.adoptions)
			assert.Empty(t, f.store.users)
			assert.True(t, f.store.trees["t1"].IsAvailable())
		})
	}
}

func TestConfirmCheckout_ProviderErrorIsNotRetried(t *testing.T) {
	f := newCheckoutFixture(testTree("t1"))
	started := f.start(t, "user-1", "", validRequest("t1", 1))
	f.payments.getErr = &domain.ProviderError{Type: "api_connection_error", Message: "network down", StatusCode: 502}

	_, err := f.svc.ConfirmCheckout(context.Background(), "user-1", started.CheckoutID, started.PaymentIntentID)
	var pe *domain.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "network down", pe.Message)
	assert.Empty(t, f.store.adoptions)
}

func TestConfirmCheckout_OwnershipAndIntentChecks(t *testing.T) {
	f := newCheckoutFixture(testTree("t1"))
	started := f.start(t, "user-1", "", validRequest("t1", 1))

	_, err := f.svc.ConfirmCheckout(context.Background(), "user-2", started.CheckoutID, started.PaymentIntentID)
	assert.ErrorIs(t, err, ErrCheckoutForbidden)

	_, err = f.svc.ConfirmCheckout(context.Background(), "user-1", started.CheckoutID, "pi_other")
	assert.ErrorIs(t, err, ErrIntentMismatch)

	_, err = f.svc.ConfirmCheckout(context.Background(), "user-1", uuid.New(), started.PaymentIntentID)
	assert.ErrorIs(t, err, store.ErrCheckoutNotFound)
	assert.True(t, IsNotFound(err))
}

func TestConfirmCheckout_AdoptionWriteFailureStopsSaga(t *testing.T) {
	f := newCheckoutFixture(testTree("t1"))
	started := f.start(t, "user-1", "", validRequest("t1", 1))
	f.store.adoptionErr = errStoreDown

	f.payments.setStatus(started.PaymentIntentID, domain.PaymentIntentSucceeded)
	_, err := f.svc.ConfirmCheckout(context.Background(), "user-1", started.CheckoutID, started.PaymentIntentID)
	require.ErrorIs(t, err, ErrRecordFailed)
	assert.ErrorIs(t, err, errStoreDown)
	assert.Contains(t, err.Error(), "contact support with payment id "+started.PaymentIntentID)

	assert.Empty(t, f.store.users, "aggregate is not touched")
	assert.True(t, f.store.trees["t1"].IsAvailable(), "tree is not touched")

	attempt, _ := f.ledger.GetCheckoutAttempt(context.Background(), started.CheckoutID)
	assert.Equal(t, domain.CheckoutConfirmed, attempt.Status)
	require.NotNil(t, attempt.FailureReason)
	assert.Equal(t, []string{domain.RoutingAdoptionRecordFailed}, f.ledger.routingKeys())

	// A later confirm succeeds once the store recovers.
	f.store.adoptionErr = nil
	result, err := f.svc.ConfirmCheckout(context.Background(), "user-1", started.CheckoutID, started.PaymentIntentID)
	require.NoError(t, err)
	assert.True(t, result.AggregateApplied)
}

func TestConfirmCheckout_AggregateFailureIsSwallowed(t *testing.T) {
	f := newCheckoutFixture(testTree("t1"))
	started := f.start(t, "user-1", "", validRequest("t1", 1))
	f.store.aggregateErr = errStoreDown

	result := f.pay(t, "user-1", started)
	assert.False(t, result.AggregateApplied)
	assert.True(t, result.TreeMarked)
	assert.Len(t, f.store.adoptions, 1)

	attempt, _ := f.ledger.GetCheckoutAttempt(context.Background(), started.CheckoutID)
	assert.Equal(t, domain.CheckoutRecorded, attempt.Status)
	assert.True(t, attempt.NeedsFollowUp())

	f.store.aggregateErr = nil
	followed, err := f.recorder.FollowUp(context.Background(), attempt)
	require.NoError(t, err)
	assert.True(t, followed.AggregateApplied)
	assert.Equal(t, int64(1), f.store.users["user-1"].TreesPlanted)

	attempt, _ = f.ledger.GetCheckoutAttempt(context.Background(), started.CheckoutID)
	assert.False(t, attempt.NeedsFollowUp())
}

func TestConfirmCheckout_TreeFailureIsSwallowed(t *testing.T) {
	f := newCheckoutFixture(testTree("t1"))
	started := f.start(t, "user-1", "", validRequest("t1", 1))
	f.store.treeErr = errStoreDown

	result := f.pay(t, "user-1", started)
	assert.True(t, result.AggregateApplied)
	assert.False(t, result.TreeMarked)
	assert.Equal(t, int64(1), f.store.users["user-1"].TreesPlanted)
}

func TestConcurrentAdoptionsOfSameTreeFlagConflict(t *testing.T) {
	f := newCheckoutFixture(testTree("t1"))
	a := f.start(t, "user-a", "", validRequest("t1", 1))
	b := f.start(t, "user-b", "", validRequest("t1", 1))
	f.payments.setStatus(a.PaymentIntentID, domain.PaymentIntentSucceeded)
	f.payments.setStatus(b.PaymentIntentID, domain.PaymentIntentSucceeded)

	var wg sync.WaitGroup
	results := make([]*RecordResult, 2)
	errs := make([]error, 2)
	for i, c := range []struct {
		user    string
		started *CheckoutStarted
	}{{"user-a", a}, {"user-b", b}} {
		wg.Add(1)
		go func(i int, user string, started *CheckoutStarted) {
			defer wg.Done()
			results[i], errs[i] = f.svc.ConfirmCheckout(context.Background(), user, started.CheckoutID, started.PaymentIntentID)
		}(i, c.user, c.started)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Len(t, f.store.adoptions, 2, "both captured payments are recorded")

	conflicts := 0
	for _, r := range results {
		if r.TreeConflict {
			conflicts++
			assert.True(t, r.Summary().TreeConflict)
		}
	}
	assert.Equal(t, 1, conflicts)
	assert.Contains(t, f.ledger.routingKeys(), domain.RoutingAdoptionTreeConflict)
}

func TestRecordErrorMatching(t *testing.T) {
	err := error(&RecordError{PaymentIntentID: "pi_9", Err: errStoreDown})
	assert.True(t, errors.Is(err, ErrRecordFailed))
	assert.True(t, errors.Is(err, errStoreDown))
	assert.Equal(t, "Your payment was received but we could not record your adoption. Please contact support with payment id pi_9", err.Error())
}
