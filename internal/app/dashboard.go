package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Samarth40/tree-adoption-sub000/internal/catalog"
	"github.com/Samarth40/tree-adoption-sub000/internal/domain"
	"github.com/Samarth40/tree-adoption-sub000/internal/store"
	"github.com/Samarth40/tree-adoption-sub000/pkg/aiclient"
)

var (
	ErrInsightNotConfigured = errors.New("AI insights are not configured")
	ErrInsightFailed        = errors.New("failed to generate tree insight")
	ErrNFTNotConfigured     = errors.New("NFT certificates are not configured")
	ErrAdoptionForbidden    = errors.New("adoption belongs to another user")
	ErrNFTUnverified        = errors.New("NFT transaction could not be verified")
)

// DashboardService serves trees, plans and the signed-in user's dashboard.
type DashboardService struct {
	trees       store.TreeRepository
	adoptions   store.AdoptionRepository
	users       store.UserRepository
	insights    InsightGenerator
	mints       MintVerifier
	nftContract string
	logger      *slog.Logger
	now         func() time.Time
}

// NewDashboardService builds the service. insights and mints may be nil when
// the matching integration is not configured.
func NewDashboardService(
	trees store.TreeRepository,
	adoptions store.AdoptionRepository,
	users store.UserRepository,
	insights InsightGenerator,
	mints MintVerifier,
	nftContract string,
	logger *slog.Logger,
) *DashboardService {
	return &DashboardService{
		trees:       trees,
		adoptions:   adoptions,
		users:       users,
		insights:    insights,
		mints:       mints,
		nftContract: strings.TrimSpace(nftContract),
		logger:      logger.With("component", "dashboard"),
		now:         time.Now,
	}
}

func (s *DashboardService) ListTrees(ctx context.Context, status string) ([]domain.TreeListing, error) {
	status = strings.TrimSpace(status)
	if status != "" && status != domain.TreeStatusAvailable && status != domain.TreeStatusAdopted {
		return nil, &ValidationError{Field: "status", Message: "must be available or adopted"}
	}
	return s.trees.ListTrees(ctx, status)
}

func (s *DashboardService) GetTree(ctx context.Context, treeID string) (*domain.TreeListing, error) {
	return s.trees.GetTree(ctx, treeID)
}

// SeedTrees fills an empty trees collection from the species catalog.
func (s *DashboardService) SeedTrees(ctx context.Context, c *catalog.Catalog) (int, error) {
	n, err := s.trees.SeedTrees(ctx, c.SeedListings(s.now().UTC()))
	if err != nil {
		return 0, fmt.Errorf("failed to seed trees: %w", err)
	}
	if n > 0 {
		s.logger.Info("seeded tree listings", "count", n)
	}
	return n, nil
}

// MyAdoptions returns the user's adoptions, newest first.
func (s *DashboardService) MyAdoptions(ctx context.Context, userID string) ([]domain.AdoptionRecord, error) {
	return s.adoptions.ListAdoptionsByUser(ctx, userID)
}

// Stats derives the user's impact from their adoption records and reports the
// stored counters next to it.
func (s *DashboardService) Stats(ctx context.Context, userID string) (domain.UserStats, error) {
	records, err := s.adoptions.ListAdoptionsByUser(ctx, userID)
	if err != nil {
		return domain.UserStats{}, err
	}
	stored, err := s.users.GetUser(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrUserNotFound) {
		return domain.UserStats{}, err
	}
	stats := domain.DeriveUserStats(records, stored)
	if stats.Drift {
		s.logger.Warn("user aggregate drift",
			"user_id", userID,
			"derived_trees", stats.TreesPlanted,
			"stored_trees", stats.StoredTreesPlanted,
		)
	}
	return stats, nil
}

func (s *DashboardService) Profile(ctx context.Context, userID string) (*domain.UserAggregate, error) {
	return s.users.GetUser(ctx, userID)
}

func (s *DashboardService) UpdateProfile(ctx context.Context, userID string, update domain.ProfileUpdate) (*domain.UserAggregate, error) {
	update.DisplayName = strings.TrimSpace(update.DisplayName)
	update.Phone = strings.TrimSpace(update.Phone)
	update.Address = strings.TrimSpace(update.Address)
	if update.DisplayName == "" && update.Phone == "" && update.Address == "" {
		return nil, &ValidationError{Field: "profile", Message: "at least one field is required"}
	}
	if err := s.users.UpdateProfile(ctx, userID, update); err != nil {
		return nil, err
	}
	return s.users.GetUser(ctx, userID)
}

// TreeInsight asks the model for a short care and impact note.
func (s *DashboardService) TreeInsight(ctx context.Context, treeID string) (string, error) {
	if s.insights == nil {
		return "", ErrInsightNotConfigured
	}
	tree, err := s.trees.GetTree(ctx, treeID)
	if err != nil {
		return "", err
	}
	text, err := s.insights.TreeInsight(ctx, aiclient.TreeFacts{
		Name:           tree.Name,
		CommonName:     tree.CommonName,
		ScientificName: tree.ScientificName,
		Region:         tree.Location.Region,
		CO2PerYearKg:   tree.CO2PerYearKg,
		HealthStatus:   tree.Health.Status,
		HeightCm:       tree.Health.HeightCm,
	})
	if err != nil {
		s.logger.Error("tree insight failed", "tree_id", treeID, "error", err)
		return "", fmt.Errorf("%w: %v", ErrInsightFailed, err)
	}
	return text, nil
}

// AttachNFT verifies a mint transaction and stores the certificate on the
// caller's adoption.
func (s *DashboardService) AttachNFT(ctx context.Context, userID, adoptionID, txHash string) (*domain.AdoptionRecord, error) {
	if s.mints == nil || s.nftContract == "" {
		return nil, ErrNFTNotConfigured
	}
	txHash = strings.TrimSpace(txHash)
	if txHash == "" {
		return nil, &ValidationError{Field: "transactionHash", Message: "is required"}
	}
	record, err := s.adoptions.GetAdoption(ctx, adoptionID)
	if err != nil {
		return nil, err
	}
	if record.UserID != userID {
		return nil, ErrAdoptionForbidden
	}

	if _, err := s.mints.VerifyMint(ctx, txHash, s.nftContract); err != nil {
		s.logger.Warn("nft verification failed", "adoption_id", adoptionID, "tx_hash", txHash, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrNFTUnverified, err)
	}

	cert := domain.NFTCertificate{
		TransactionHash: txHash,
		ContractAddress: s.nftContract,
		VerifiedAt:      s.now().UTC(),
	}
	if err := s.adoptions.AttachNFT(ctx, adoptionID, cert); err != nil {
		return nil, err
	}
	record.NFT = &cert
	s.logger.Info("nft certificate attached", "adoption_id", adoptionID, "user_id", userID)
	return record, nil
}
