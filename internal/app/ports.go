package app

import (
	"context"

	"github.com/Samarth40/tree-adoption-sub000/internal/domain"
	"github.com/Samarth40/tree-adoption-sub000/pkg/aiclient"
	"github.com/Samarth40/tree-adoption-sub000/pkg/aptosclient"
)

// PaymentProvider creates and reads payment intents.
type PaymentProvider interface {
	CreatePaymentIntent(ctx context.Context, in domain.PaymentIntentInput) (*domain.PaymentIntent, error)
	GetPaymentIntent(ctx context.Context, id string) (*domain.PaymentIntent, error)
}

// PaymentThrottle counts payment attempts per scope and subject.
type PaymentThrottle interface {
	Allow(ctx context.Context, scope, subject string) (ThrottleDecision, error)
}

// InsightGenerator writes a short note about a tree.
type InsightGenerator interface {
	TreeInsight(ctx context.Context, facts aiclient.TreeFacts) (string, error)
}

// MintVerifier confirms an on-chain certificate mint.
type MintVerifier interface {
	VerifyMint(ctx context.Context, hash, contract string) (*aptosclient.Transaction, error)
}
