/**
 * @description
 * Firestore implementation of the tree, adoption and user repositories.
 * Counters are changed with firestore.Increment and the tree status change runs
 * inside a transaction, so concurrent adoptions cannot both claim a tree.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Samarth40/tree-adoption-sub000/internal/domain"
)

const (
	usersCollection       = "users"
	treesCollection       = "trees"
	adoptionsCollection   = "adoptions"
	storiesCollection     = "stories"
	commentsCollection    = "comments"
	eventsCollection      = "events"
	discussionsCollection = "discussions"
	repliesCollection     = "replies"
)

// FirestoreRepository implements the document-backed repositories.
type FirestoreRepository struct {
	client *firestore.Client
}

// NewFirestoreRepository creates a repository on top of a Firestore client.
func NewFirestoreRepository(client *firestore.Client) *FirestoreRepository {
	return &FirestoreRepository{client: client}
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func isAlreadyExists(err error) bool {
	return status.Code(err) == codes.AlreadyExists
}

// decodeAll converts snapshots into models, assigning the document id.
func decodeAll[T any](docs []*firestore.DocumentSnapshot, setID func(*T, string)) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var item T
		if err := doc.DataTo(&item); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", doc.Ref.Path, err)
		}
		setID(&item, doc.Ref.ID)
		out = append(out, item)
	}
	return out, nil
}

// ListTrees returns tree listings, optionally filtered by status, ordered by name.
func (r *FirestoreRepository) ListTrees(ctx context.Context, status string) ([]domain.TreeListing, error) {
	q := r.client.Collection(treesCollection).Query
	if status != "" {
		q = q.Where("status", "==", status)
	}
	docs, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	trees, err := decodeAll(docs, func(t *domain.TreeListing, id string) { t.ID = id })
	if err != nil {
		return nil, err
	}
	sort.Slice(trees, func(i, j int) bool { return trees[i].Name < trees[j].Name })
	return trees, nil
}

// GetTree returns a single tree listing.
func (r *FirestoreRepository) GetTree(ctx context.Context, treeID string) (*domain.TreeListing, error) {
	snap, err := r.client.Collection(treesCollection).Doc(treeID).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrTreeNotFound
		}
		return nil, err
	}
	var tree domain.TreeListing
	if err := snap.DataTo(&tree); err != nil {
		return nil, err
	}
	tree.ID = snap.Ref.ID
	return &tree, nil
}

// MarkTreeAdopted performs the conditional available -> adopted transition.
// Re-marking a tree already held by the same user is a no-op.
func (r *FirestoreRepository) MarkTreeAdopted(ctx context.Context, treeID, userID string, at time.Time) error {
	ref := r.client.Collection(treesCollection).Doc(treeID)
	return r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if isNotFound(err) {
				return ErrTreeNotFound
			}
			return err
		}
		var tree domain.TreeListing
		if err := snap.DataTo(&tree); err != nil {
			return err
		}
		if !tree.IsAvailable() {
			if tree.AdoptedBy != nil && *tree.AdoptedBy == userID {
				return nil
			}
			return ErrTreeAlreadyAdopted
		}
		return tx.Update(ref, []firestore.Update{
			{Path: "status", Value: domain.TreeStatusAdopted},
			{Path: "adoptedBy", Value: userID},
			{Path: "adoptedAt", Value: at},
		})
	})
}

// SeedTrees writes the given listings when the trees collection is empty.
func (r *FirestoreRepository) SeedTrees(ctx context.Context, listings []domain.TreeListing) (int, error) {
	existing, err := r.client.Collection(treesCollection).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}

	created := 0
	for i := range listings {
		ref := r.client.Collection(treesCollection).NewDoc()
		if _, err := ref.Create(ctx, listings[i]); err != nil {
			return created, fmt.Errorf("failed to seed tree %q: %w", listings[i].Name, err)
		}
		listings[i].ID = ref.ID
		created++
	}
	return created, nil
}

// CreateAdoption writes a record keyed by its id. A second write for the same
// payment returns ErrAdoptionExists.
func (r *FirestoreRepository) CreateAdoption(ctx context.Context, record *domain.AdoptionRecord) error {
	if record.ID == "" {
		return errors.New("adoption record id is required")
	}
	_, err := r.client.Collection(adoptionsCollection).Doc(record.ID).Create(ctx, record)
	if err != nil {
		if isAlreadyExists(err) {
			return ErrAdoptionExists
		}
		return err
	}
	return nil
}

// GetAdoption returns a single adoption record.
func (r *FirestoreRepository) GetAdoption(ctx context.Context, adoptionID string) (*domain.AdoptionRecord, error) {
	snap, err := r.client.Collection(adoptionsCollection).Doc(adoptionID).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrAdoptionNotFound
		}
		return nil, err
	}
	var record domain.AdoptionRecord
	if err := snap.DataTo(&record); err != nil {
		return nil, err
	}
	record.ID = snap.Ref.ID
	return &record, nil
}

// ListAdoptionsByUser returns a user's adoptions, newest first.
func (r *FirestoreRepository) ListAdoptionsByUser(ctx context.Context, userID string) ([]domain.AdoptionRecord, error) {
	docs, err := r.client.Collection(adoptionsCollection).Where("userId", "==", userID).Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	records, err := decodeAll(docs, func(a *domain.AdoptionRecord, id string) { a.ID = id })
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool { return records[i].CreatedAt.After(records[j].CreatedAt) })
	return records, nil
}

// AttachNFT stores the verified NFT certificate on an adoption.
func (r *FirestoreRepository) AttachNFT(ctx context.Context, adoptionID string, cert domain.NFTCertificate) error {
	_, err := r.client.Collection(adoptionsCollection).Doc(adoptionID).Update(ctx, []firestore.Update{
		{Path: "nft", Value: cert},
	})
	if err != nil && isNotFound(err) {
		return ErrAdoptionNotFound
	}
	return err
}

// GetUser returns the user aggregate document.
func (r *FirestoreRepository) GetUser(ctx context.Context, userID string) (*domain.UserAggregate, error) {
	snap, err := r.client.Collection(usersCollection).Doc(userID).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	var user domain.UserAggregate
	if err := snap.DataTo(&user); err != nil {
		return nil, err
	}
	user.UserID = snap.Ref.ID
	return &user, nil
}

// EnsureUser creates the user document on first sign-in.
func (r *FirestoreRepository) EnsureUser(ctx context.Context, userID, email, displayName string) error {
	_, err := r.client.Collection(usersCollection).Doc(userID).Create(ctx, domain.UserAggregate{
		Email:       email,
		DisplayName: displayName,
		UpdatedAt:   time.Now().UTC(),
	})
	if err != nil && !isAlreadyExists(err) {
		return err
	}
	return nil
}

// IncrementUserImpact bumps the counters with atomic increments.
func (r *FirestoreRepository) IncrementUserImpact(ctx context.Context, userID string, trees int64, impactKg float64) error {
	_, err := r.client.Collection(usersCollection).Doc(userID).Set(ctx, map[string]interface{}{
		"treesPlanted":  firestore.Increment(trees),
		"totalImpactKg": firestore.Increment(impactKg),
		"updatedAt":     firestore.ServerTimestamp,
	}, firestore.MergeAll)
	return err
}

// UpdateProfile merges the non-empty profile fields into the stored document and
// recomputes the completion flag from the result.
func (r *FirestoreRepository) UpdateProfile(ctx context.Context, userID string, update domain.ProfileUpdate) error {
	ref := r.client.Collection(usersCollection).Doc(userID)
	return r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var stored domain.UserAggregate
		snap, err := tx.Get(ref)
		switch {
		case err == nil:
			if err := snap.DataTo(&stored); err != nil {
				return err
			}
		case !isNotFound(err):
			return err
		}

		merged := update.ApplyTo(stored)
		return tx.Set(ref, map[string]interface{}{
			"displayName":       merged.DisplayName,
			"phone":             merged.Phone,
			"address":           merged.Address,
			"isProfileComplete": merged.IsProfileComplete,
			"updatedAt":         firestore.ServerTimestamp,
		}, firestore.MergeAll)
	})
}
