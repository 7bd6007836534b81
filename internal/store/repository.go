/**
 * @description
 * This file defines the repository interfaces for the tree-adoption service.
 * Trees, adoptions, users and community content live in Firestore; the
 * checkout saga ledger lives in PostgreSQL. The application layer depends only
 * on these interfaces, which keeps the business logic testable without either
 * database.
 *
 * @dependencies
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Samarth40/tree-adoption-sub000/internal/domain"
)

var (
	ErrTreeNotFound          = errors.New("tree not found")
	ErrTreeAlreadyAdopted    = errors.New("tree already adopted")
	ErrAdoptionNotFound      = errors.New("adoption not found")
	ErrAdoptionExists        = errors.New("adoption already recorded")
	ErrUserNotFound          = errors.New("user not found")
	ErrCheckoutNotFound      = errors.New("checkout attempt not found")
	ErrCheckoutStateConflict = errors.New("checkout attempt is not in the expected state")
	ErrStoryNotFound         = errors.New("story not found")
	ErrCommentNotFound       = errors.New("comment not found")
	ErrEventNotFound         = errors.New("event not found")
	ErrDiscussionNotFound    = errors.New("discussion not found")
	ErrNotAuthor             = errors.New("only the author can change this item")
)

// TreeRepository covers tree listings.
type TreeRepository interface {
	ListTrees(ctx context.Context, status string) ([]domain.TreeListing, error)
	GetTree(ctx context.Context, treeID string) (*domain.TreeListing, error)
	// MarkTreeAdopted transitions a tree from available to adopted. It returns
	// ErrTreeAlreadyAdopted when another user holds the tree.
	MarkTreeAdopted(ctx context.Context, treeID, userID string, at time.Time) error
	SeedTrees(ctx context.Context, listings []domain.TreeListing) (int, error)
}

// AdoptionRepository covers adoption records.
type AdoptionRepository interface {
	CreateAdoption(ctx context.Context, record *domain.AdoptionRecord) error
	GetAdoption(ctx context.Context, adoptionID string) (*domain.AdoptionRecord, error)
	ListAdoptionsByUser(ctx context.Context, userID string) ([]domain.AdoptionRecord, error)
	AttachNFT(ctx context.Context, adoptionID string, cert domain.NFTCertificate) error
}

// UserRepository covers the per-user aggregate document.
type UserRepository interface {
	GetUser(ctx context.Context, userID string) (*domain.UserAggregate, error)
	EnsureUser(ctx context.Context, userID, email, displayName string) error
	// IncrementUserImpact atomically bumps the aggregate counters, creating
	// the user document when it does not exist.
	IncrementUserImpact(ctx context.Context, userID string, trees int64, impactKg float64) error
	UpdateProfile(ctx context.Context, userID string, update domain.ProfileUpdate) error
}

// OutboxEvent is a domain event written to the outbox in the same
// transaction as a ledger change.
type OutboxEvent struct {
	RoutingKey string
	Payload    interface{}
}

// OutboxMessage is a claimed outbox row awaiting publication.
type OutboxMessage struct {
	ID         int64
	Exchange   string
	RoutingKey string
	Payload    []byte
	Attempts   int
}

// CheckoutRepository covers the checkout saga ledger.
type CheckoutRepository interface {
	// CreateCheckoutAttempt inserts a pending attempt. When an attempt with the
	// same idempotency key exists it is returned with created=false.
	CreateCheckoutAttempt(ctx context.Context, attempt *domain.CheckoutAttempt) (existing *domain.CheckoutAttempt, created bool, err error)
	GetCheckoutAttempt(ctx context.Context, id uuid.UUID) (*domain.CheckoutAttempt, error)
	FindCheckoutAttemptByIntentID(ctx context.Context, paymentIntentID string) (*domain.CheckoutAttempt, error)
	SetCheckoutIntent(ctx context.Context, id uuid.UUID, paymentIntentID string) error
	// TransitionCheckoutStatus moves an attempt to status `to` only when its
	// current status is one of `from`.
	TransitionCheckoutStatus(ctx context.Context, id uuid.UUID, from []string, to string) (*domain.CheckoutAttempt, error)
	MarkCheckoutRecorded(ctx context.Context, id uuid.UUID, adoptionID string, aggregateApplied, treeMarked bool, events ...OutboxEvent) error
	UpdateCheckoutFollowUps(ctx context.Context, id uuid.UUID, aggregateApplied, treeMarked bool, events ...OutboxEvent) error
	SetCheckoutFailureReason(ctx context.Context, id uuid.UUID, reason string, events ...OutboxEvent) error
	MarkCheckoutFailed(ctx context.Context, id uuid.UUID, reason string, events ...OutboxEvent) error
	ListStaleCheckoutAttempts(ctx context.Context, updatedBefore time.Time, limit int) ([]domain.CheckoutAttempt, error)
	ListCheckoutFollowUps(ctx context.Context, limit int) ([]domain.CheckoutAttempt, error)
}

// OutboxRepository is consumed by the outbox dispatcher.
type OutboxRepository interface {
	ClaimOutboxMessages(ctx context.Context, limit int, staleAfterSeconds int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, id int64) error
	MarkOutboxFailed(ctx context.Context, id int64, retryAfterSeconds int, reason string) error
}

// CommunityRepository covers stories, events and discussions.
type CommunityRepository interface {
	CreateStory(ctx context.Context, story *domain.Story) error
	ListStories(ctx context.Context, limit int) ([]domain.Story, error)
	GetStory(ctx context.Context, storyID string) (*domain.Story, error)
	ToggleStoryLike(ctx context.Context, storyID, userID string) (domain.LikeResult, error)
	DeleteStory(ctx context.Context, storyID, userID string) error
	AddComment(ctx context.Context, storyID string, comment *domain.Comment) error
	ListComments(ctx context.Context, storyID string) ([]domain.Comment, error)
	DeleteComment(ctx context.Context, storyID, commentID, userID string) error

	CreateEvent(ctx context.Context, event *domain.Event) error
	ListEvents(ctx context.Context, limit int) ([]domain.Event, error)
	ToggleEventParticipation(ctx context.Context, eventID, userID string) (joined bool, participants int64, err error)
	DeleteEvent(ctx context.Context, eventID, userID string) error

	CreateDiscussion(ctx context.Context, discussion *domain.Discussion) error
	ListDiscussions(ctx context.Context, limit int) ([]domain.Discussion, error)
	ToggleDiscussionLike(ctx context.Context, discussionID, userID string) (domain.LikeResult, error)
	AddReply(ctx context.Context, discussionID string, reply *domain.Reply) error
	ListReplies(ctx context.Context, discussionID string) ([]domain.Reply, error)
}
