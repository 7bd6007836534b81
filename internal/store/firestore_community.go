package store

import (
	"context"
	"slices"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/Samarth40/tree-adoption-sub000/internal/domain"
)

// toggleLike flips a user's like on a document holding likes/likedBy fields.
// Both fields change inside one transaction so the counter never drifts.
func (r *FirestoreRepository) toggleLike(ctx context.Context, ref *firestore.DocumentRef, userID string, missing error) (domain.LikeResult, error) {
	var result domain.LikeResult
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if isNotFound(err) {
				return missing
			}
			return err
		}
		var doc struct {
			Likes   int64    `firestore:"likes"`
			LikedBy []string `firestore:"likedBy"`
		}
		if err := snap.DataTo(&doc); err != nil {
			return err
		}

		if slices.Contains(doc.LikedBy, userID) {
			result = domain.LikeResult{Liked: false, Likes: max(doc.Likes-1, 0)}
			return tx.Update(ref, []firestore.Update{
				{Path: "likedBy", Value: firestore.ArrayRemove(userID)},
				{Path: "likes", Value: firestore.Increment(-1)},
			})
		}
		result = domain.LikeResult{Liked: true, Likes: doc.Likes + 1}
		return tx.Update(ref, []firestore.Update{
			{Path: "likedBy", Value: firestore.ArrayUnion(userID)},
			{Path: "likes", Value: firestore.Increment(1)},
		})
	})
	return result, err
}

// CreateStory stores a new story and assigns its id.
func (r *FirestoreRepository) CreateStory(ctx context.Context, story *domain.Story) error {
	ref := r.client.Collection(storiesCollection).NewDoc()
	if story.LikedBy == nil {
		story.LikedBy = []string{}
	}
	if _, err := ref.Create(ctx, story); err != nil {
		return err
	}
	story.ID = ref.ID
	return nil
}

// ListStories returns the most recent stories.
func (r *FirestoreRepository) ListStories(ctx context.Context, limit int) ([]domain.Story, error) {
	docs, err := r.client.Collection(storiesCollection).
		OrderBy("createdAt", firestore.Desc).Limit(limit).Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	return decodeAll(docs, func(s *domain.Story, id string) { s.ID = id })
}

func (r *FirestoreRepository) GetStory(ctx context.Context, storyID string) (*domain.Story, error) {
	snap, err := r.client.Collection(storiesCollection).Doc(storyID).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrStoryNotFound
		}
		return nil, err
	}
	var story domain.Story
	if err := snap.DataTo(&story); err != nil {
		return nil, err
	}
	story.ID = snap.Ref.ID
	return &story, nil
}

func (r *FirestoreRepository) ToggleStoryLike(ctx context.Context, storyID, userID string) (domain.LikeResult, error) {
	return r.toggleLike(ctx, r.client.Collection(storiesCollection).Doc(storyID), userID, ErrStoryNotFound)
}

// DeleteStory removes a story owned by userID along with its comments.
func (r *FirestoreRepository) DeleteStory(ctx context.Context, storyID, userID string) error {
	ref := r.client.Collection(storiesCollection).Doc(storyID)
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if isNotFound(err) {
				return ErrStoryNotFound
			}
			return err
		}
		author, err := snap.DataAt("authorId")
		if err != nil {
			return err
		}
		if author != userID {
			return ErrNotAuthor
		}
		return tx.Delete(ref)
	})
	if err != nil {
		return err
	}

	iter := ref.Collection(commentsCollection).Documents(ctx)
	defer iter.Stop()
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := doc.Ref.Delete(ctx); err != nil {
			return err
		}
	}
}

// AddComment stores a comment and bumps the story's comment counter.
func (r *FirestoreRepository) AddComment(ctx context.Context, storyID string, comment *domain.Comment) error {
	storyRef := r.client.Collection(storiesCollection).Doc(storyID)
	commentRef := storyRef.Collection(commentsCollection).NewDoc()
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(storyRef); err != nil {
			if isNotFound(err) {
				return ErrStoryNotFound
			}
			return err
		}
		if err := tx.Create(commentRef, comment); err != nil {
			return err
		}
		return tx.Update(storyRef, []firestore.Update{{Path: "commentCount", Value: firestore.Increment(1)}})
	})
	if err != nil {
		return err
	}
	comment.ID = commentRef.ID
	return nil
}

// ListComments returns a story's comments, oldest first.
func (r *FirestoreRepository) ListComments(ctx context.Context, storyID string) ([]domain.Comment, error) {
	docs, err := r.client.Collection(storiesCollection).Doc(storyID).Collection(commentsCollection).
		OrderBy("createdAt", firestore.Asc).Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	return decodeAll(docs, func(c *domain.Comment, id string) { c.ID = id })
}

// DeleteComment removes a comment written by userID and decrements the counter.
func (r *FirestoreRepository) DeleteComment(ctx context.Context, storyID, commentID, userID string) error {
	storyRef := r.client.Collection(storiesCollection).Doc(storyID)
	commentRef := storyRef.Collection(commentsCollection).Doc(commentID)
	return r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(commentRef)
		if err != nil {
			if isNotFound(err) {
				return ErrCommentNotFound
			}
			return err
		}
		author, err := snap.DataAt("authorId")
		if err != nil {
			return err
		}
		if author != userID {
			return ErrNotAuthor
		}
		if err := tx.Delete(commentRef); err != nil {
			return err
		}
		return tx.Update(storyRef, []firestore.Update{{Path: "commentCount", Value: firestore.Increment(-1)}})
	})
}

func (r *FirestoreRepository) CreateEvent(ctx context.Context, event *domain.Event) error {
	ref := r.client.Collection(eventsCollection).NewDoc()
	if event.Participants == nil {
		event.Participants = []string{}
	}
	if _, err := ref.Create(ctx, event); err != nil {
		return err
	}
	event.ID = ref.ID
	return nil
}

// ListEvents returns events ordered by start time.
func (r *FirestoreRepository) ListEvents(ctx context.Context, limit int) ([]domain.Event, error) {
	docs, err := r.client.Collection(eventsCollection).
		OrderBy("startsAt", firestore.Asc).Limit(limit).Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	return decodeAll(docs, func(e *domain.Event, id string) { e.ID = id })
}

// ToggleEventParticipation joins or leaves an event.
func (r *FirestoreRepository) ToggleEventParticipation(ctx context.Context, eventID, userID string) (bool, int64, error) {
	ref := r.client.Collection(eventsCollection).Doc(eventID)
	var (
		joined bool
		count  int64
	)
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if isNotFound(err) {
				return ErrEventNotFound
			}
			return err
		}
		var event domain.Event
		if err := snap.DataTo(&event); err != nil {
			return err
		}

		if slices.Contains(event.Participants, userID) {
			joined, count = false, max(event.ParticipantCount-1, 0)
			return tx.Update(ref, []firestore.Update{
				{Path: "participants", Value: firestore.ArrayRemove(userID)},
				{Path: "participantCount", Value: firestore.Increment(-1)},
			})
		}
		joined, count = true, event.ParticipantCount+1
		return tx.Update(ref, []firestore.Update{
			{Path: "participants", Value: firestore.ArrayUnion(userID)},
			{Path: "participantCount", Value: firestore.Increment(1)},
		})
	})
	return joined, count, err
}

// DeleteEvent removes an event created by userID.
func (r *FirestoreRepository) DeleteEvent(ctx context.Context, eventID, userID string) error {
	ref := r.client.Collection(eventsCollection).Doc(eventID)
	return r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if isNotFound(err) {
				return ErrEventNotFound
			}
			return err
		}
		organizer, err := snap.DataAt("organizerId")
		if err != nil {
			return err
		}
		if organizer != userID {
			return ErrNotAuthor
		}
		return tx.Delete(ref)
	})
}

func (r *FirestoreRepository) CreateDiscussion(ctx context.Context, discussion *domain.Discussion) error {
	ref := r.client.Collection(discussionsCollection).NewDoc()
	if discussion.LikedBy == nil {
		discussion.LikedBy = []string{}
	}
	if discussion.Tags == nil {
		discussion.Tags = []string{}
	}
	if _, err := ref.Create(ctx, discussion); err != nil {
		return err
	}
	discussion.ID = ref.ID
	return nil
}

func (r *FirestoreRepository) ListDiscussions(ctx context.Context, limit int) ([]domain.Discussion, error) {
	docs, err := r.client.Collection(discussionsCollection).
		OrderBy("createdAt", firestore.Desc).Limit(limit).Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	return decodeAll(docs, func(d *domain.Discussion, id string) { d.ID = id })
}

func (r *FirestoreRepository) ToggleDiscussionLike(ctx context.Context, discussionID, userID string) (domain.LikeResult, error) {
	return r.toggleLike(ctx, r.client.Collection(discussionsCollection).Doc(discussionID), userID, ErrDiscussionNotFound)
}

// AddReply stores a reply and bumps the discussion's reply counter.
func (r *FirestoreRepository) AddReply(ctx context.Context, discussionID string, reply *domain.Reply) error {
	discussionRef := r.client.Collection(discussionsCollection).Doc(discussionID)
	replyRef := discussionRef.Collection(repliesCollection).NewDoc()
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(discussionRef); err != nil {
			if isNotFound(err) {
				return ErrDiscussionNotFound
			}
			return err
		}
		if err := tx.Create(replyRef, reply); err != nil {
			return err
		}
		return tx.Update(discussionRef, []firestore.Update{{Path: "replyCount", Value: firestore.Increment(1)}})
	})
	if err != nil {
		return err
	}
	reply.ID = replyRef.ID
	return nil
}

func (r *FirestoreRepository) ListReplies(ctx context.Context, discussionID string) ([]domain.Reply, error) {
	docs, err := r.client.Collection(discussionsCollection).Doc(discussionID).Collection(repliesCollection).
		OrderBy("createdAt", firestore.Asc).Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	return decodeAll(docs, func(rp *domain.Reply, id string) { rp.ID = id })
}
