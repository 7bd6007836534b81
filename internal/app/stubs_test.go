package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Samarth40/tree-adoption-sub000/internal/domain"
	"github.com/Samarth40/tree-adoption-sub000/internal/store"
	"github.com/Samarth40/tree-adoption-sub000/pkg/aiclient"
	"github.com/Samarth40/tree-adoption-sub000/pkg/aptosclient"
)

var testNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// paymentsStub replays the same intent for a repeated idempotency key.
type paymentsStub struct {
	mu        sync.Mutex
	creates   []domain.PaymentIntentInput
	byKey     map[string]*domain.PaymentIntent
	intents   map[string]*domain.PaymentIntent
	createErr error
	getErr    error
	seq       int
}

func newPaymentsStub() *paymentsStub {
	return &paymentsStub{
		byKey:   map[string]*domain.PaymentIntent{},
		intents: map[string]*domain.PaymentIntent{},
	}
}

func (p *paymentsStub) CreatePaymentIntent(_ context.Context, in domain.PaymentIntentInput) (*domain.PaymentIntent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.creates = append(p.creates, in)
	if p.createErr != nil {
		return nil, p.createErr
	}
	if in.IdempotencyKey != "" {
		if pi, ok := p.byKey[in.IdempotencyKey]; ok {
			return pi, nil
		}
	}
	p.seq++
	pi := &domain.PaymentIntent{
		ID:           fmt.Sprintf("pi_%d", p.seq),
		ClientSecret: fmt.Sprintf("pi_%d_secret", p.seq),
		Amount:       in.AmountMinor,
		Currency:     in.Currency,
		Status:       domain.PaymentIntentRequiresPaymentMethod,
		Metadata:     in.Metadata,
	}
	p.intents[pi.ID] = pi
	if in.IdempotencyKey != "" {
		p.byKey[in.IdempotencyKey] = pi
	}
	return pi, nil
}

func (p *paymentsStub) GetPaymentIntent(_ context.Context, id string) (*domain.PaymentIntent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.getErr != nil {
		return nil, p.getErr
	}
	pi, ok := p.intents[id]
	if !ok {
		return nil, &domain.ProviderError{Code: "resource_missing", Type: "invalid_request_error", Message: "No such payment_intent", StatusCode: 404}
	}
	cp := *pi
	return &cp, nil
}

func (p *paymentsStub) setStatus(id, status string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.intents[id].Status = status
}

// memoryStore keeps trees, adoptions and users in maps with the same
// conditional semantics as the Firestore repository.
type memoryStore struct {
	mu        sync.Mutex
	trees     map[string]domain.TreeListing
	adoptions map[string]domain.AdoptionRecord
	users     map[string]domain.UserAggregate

	adoptionErr  error
	aggregateErr error
	treeErr      error
	increments   int
}

func newMemoryStore(trees ...domain.TreeListing) *memoryStore {
	m := &memoryStore{
		trees:     map[string]domain.TreeListing{},
		adoptions: map[string]domain.AdoptionRecord{},
		users:     map[string]domain.UserAggregate{},
	}
	for _, t := range trees {
		m.trees[t.ID] = t
	}
	return m
}

func testTree(id string) domain.TreeListing {
	return domain.TreeListing{
		ID:           id,
		Name:         "Old Banyan " + id,
		CommonName:   "Banyan",
		CO2PerYearKg: 22,
		Location:     domain.Location{Region: "Bengaluru"},
		Health:       domain.HealthSnapshot{Status: "healthy", HeightCm: 900},
		Status:       domain.TreeStatusAvailable,
	}
}

func (m *memoryStore) ListTrees(_ context.Context, status string) ([]domain.TreeListing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.TreeListing
	for _, t := range m.trees {
		if status == "" || t.Status == status {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memoryStore) GetTree(_ context.Context, treeID string) (*domain.TreeListing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trees[treeID]
	if !ok {
		return nil, store.ErrTreeNotFound
	}
	return &t, nil
}

func (m *memoryStore) MarkTreeAdopted(_ context.Context, treeID, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.treeErr != nil {
		return m.treeErr
	}
	t, ok := m.trees[treeID]
	if !ok {
		return store.ErrTreeNotFound
	}
	if !t.IsAvailable() {
		if t.AdoptedBy != nil && *t.AdoptedBy == userID {
			return nil
		}
		return store.ErrTreeAlreadyAdopted
	}
	t.Status = domain.TreeStatusAdopted
	t.AdoptedBy = &userID
	t.AdoptedAt = &at
	m.trees[treeID] = t
	return nil
}

func (m *memoryStore) SeedTrees(_ context.Context, listings []domain.TreeListing) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.trees) > 0 {
		return 0, nil
	}
	for i, t := range listings {
		t.ID = fmt.Sprintf("seed-%d", i)
		m.trees[t.ID] = t
	}
	return len(listings), nil
}

func (m *memoryStore) CreateAdoption(_ context.Context, record *domain.AdoptionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.adoptionErr != nil {
		return m.adoptionErr
	}
	if _, ok := m.adoptions[record.ID]; ok {
		return store.ErrAdoptionExists
	}
	m.adoptions[record.ID] = *record
	return nil
}

func (m *memoryStore) GetAdoption(_ context.Context, adoptionID string) (*domain.AdoptionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.adoptions[adoptionID]
	if !ok {
		return nil, store.ErrAdoptionNotFound
	}
	return &r, nil
}

func (m *memoryStore) ListAdoptionsByUser(_ context.Context, userID string) ([]domain.AdoptionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AdoptionRecord
	for _, r := range m.adoptions {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memoryStore) AttachNFT(_ context.Context, adoptionID string, cert domain.NFTCertificate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.adoptions[adoptionID]
	if !ok {
		return store.ErrAdoptionNotFound
	}
	r.NFT = &cert
	m.adoptions[adoptionID] = r
	return nil
}

func (m *memoryStore) GetUser(_ context.Context, userID string) (*domain.UserAggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return &u, nil
}

func (m *memoryStore) EnsureUser(_ context.Context, userID, email, displayName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[userID]; !ok {
		m.users[userID] = domain.UserAggregate{UserID: userID, Email: email, DisplayName: displayName}
	}
	return nil
}

func (m *memoryStore) IncrementUserImpact(_ context.Context, userID string, trees int64, impactKg float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.aggregateErr != nil {
		return m.aggregateErr
	}
	u := m.users[userID]
	u.UserID = userID
	u.TreesPlanted += trees
	u.TotalImpactKg += impactKg
	m.users[userID] = u
	m.increments++
	return nil
}

func (m *memoryStore) UpdateProfile(_ context.Context, userID string, update domain.ProfileUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := update.ApplyTo(m.users[userID])
	u.UserID = userID
	m.users[userID] = u
	return nil
}

// memoryLedger mirrors the Postgres checkout ledger and its outbox.
type memoryLedger struct {
	mu       sync.Mutex
	attempts map[uuid.UUID]*domain.CheckoutAttempt
	events   []store.OutboxEvent
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{attempts: map[uuid.UUID]*domain.CheckoutAttempt{}}
}

func (l *memoryLedger) copyOf(a *domain.CheckoutAttempt) *domain.CheckoutAttempt {
	cp := *a
	return &cp
}

func (l *memoryLedger) CreateCheckoutAttempt(_ context.Context, attempt *domain.CheckoutAttempt) (*domain.CheckoutAttempt, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, a := range l.attempts {
		if a.IdempotencyKey == attempt.IdempotencyKey {
			return l.copyOf(a), false, nil
		}
	}
	a := l.copyOf(attempt)
	a.Status = domain.CheckoutPending
	a.CreatedAt = testNow
	a.UpdatedAt = testNow
	l.attempts[a.ID] = a
	return l.copyOf(a), true, nil
}

func (l *memoryLedger) GetCheckoutAttempt(_ context.Context, id uuid.UUID) (*domain.CheckoutAttempt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.attempts[id]
	if !ok {
		return nil, store.ErrCheckoutNotFound
	}
	return l.copyOf(a), nil
}

func (l *memoryLedger) FindCheckoutAttemptByIntentID(_ context.Context, paymentIntentID string) (*domain.CheckoutAttempt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, a := range l.attempts {
		if a.IntentID() == paymentIntentID {
			return l.copyOf(a), nil
		}
	}
	return nil, store.ErrCheckoutNotFound
}

func (l *memoryLedger) SetCheckoutIntent(_ context.Context, id uuid.UUID, paymentIntentID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.attempts[id]
	if !ok || (a.PaymentIntentID != nil && *a.PaymentIntentID != paymentIntentID) {
		return store.ErrCheckoutStateConflict
	}
	a.PaymentIntentID = &paymentIntentID
	return nil
}

func (l *memoryLedger) TransitionCheckoutStatus(_ context.Context, id uuid.UUID, from []string, to string) (*domain.CheckoutAttempt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.attempts[id]
	if !ok {
		return nil, store.ErrCheckoutNotFound
	}
	if !slices.Contains(from, a.Status) {
		return nil, store.ErrCheckoutStateConflict
	}
	a.Status = to
	return l.copyOf(a), nil
}

func (l *memoryLedger) MarkCheckoutRecorded(_ context.Context, id uuid.UUID, adoptionID string, aggregateApplied, treeMarked bool, events ...store.OutboxEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	a := l.attempts[id]
	a.Status = domain.CheckoutRecorded
	a.AdoptionID = &adoptionID
	a.AggregateApplied = a.AggregateApplied || aggregateApplied
	a.TreeMarked = a.TreeMarked || treeMarked
	a.FailureReason = nil
	l.events = append(l.events, events...)
	return nil
}

func (l *memoryLedger) UpdateCheckoutFollowUps(_ context.Context, id uuid.UUID, aggregateApplied, treeMarked bool, events ...store.OutboxEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	a := l.attempts[id]
	a.AggregateApplied = a.AggregateApplied || aggregateApplied
	a.TreeMarked = a.TreeMarked || treeMarked
	l.events = append(l.events, events...)
	return nil
}

func (l *memoryLedger) SetCheckoutFailureReason(_ context.Context, id uuid.UUID, reason string, events ...store.OutboxEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	a := l.attempts[id]
	a.FailureReason = &reason
	l.events = append(l.events, events...)
	return nil
}

func (l *memoryLedger) MarkCheckoutFailed(_ context.Context, id uuid.UUID, reason string, events ...store.OutboxEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	a := l.attempts[id]
	if a.Status != domain.CheckoutPending && a.Status != domain.CheckoutConfirmed {
		return store.ErrCheckoutStateConflict
	}
	a.Status = domain.CheckoutFailed
	a.FailureReason = &reason
	l.events = append(l.events, events...)
	return nil
}

func (l *memoryLedger) ListStaleCheckoutAttempts(_ context.Context, updatedBefore time.Time, limit int) ([]domain.CheckoutAttempt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.CheckoutAttempt
	for _, a := range l.attempts {
		if (a.Status == domain.CheckoutPending || a.Status == domain.CheckoutConfirmed) &&
			a.PaymentIntentID != nil && a.UpdatedAt.Before(updatedBefore) && len(out) < limit {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (l *memoryLedger) ListCheckoutFollowUps(_ context.Context, limit int) ([]domain.CheckoutAttempt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.CheckoutAttempt
	for _, a := range l.attempts {
		if a.NeedsFollowUp() && len(out) < limit {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (l *memoryLedger) routingKeys() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	keys := make([]string, 0, len(l.events))
	for _, e := range l.events {
		keys = append(keys, e.RoutingKey)
	}
	return keys
}

type insightStub struct {
	text  string
	err   error
	facts aiclient.TreeFacts
}

func (s *insightStub) TreeInsight(_ context.Context, facts aiclient.TreeFacts) (string, error) {
	s.facts = facts
	return s.text, s.err
}

type mintStub struct {
	err   error
	calls int
}

func (s *mintStub) VerifyMint(_ context.Context, hash, _ string) (*aptosclient.Transaction, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &aptosclient.Transaction{Hash: hash, Success: true}, nil
}

var errStoreDown = errors.New("store unavailable")
