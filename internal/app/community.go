package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Samarth40/tree-adoption-sub000/internal/domain"
	"github.com/Samarth40/tree-adoption-sub000/internal/store"
)

const (
	feedLimit         = 50
	feedLoadAttempts  = 3
	feedInitialDelay  = time.Second
	feedDelayMultiple = 2
)

// Author identifies the signed-in user writing community content.
type Author struct {
	UserID string
	Name   string
}

// StoryInput is the body of a new story.
type StoryInput struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	ImageURL string `json:"imageUrl"`
	TreeID   string `json:"treeId"`
}

// EventInput is the body of a new event.
type EventInput struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	StartsAt    time.Time `json:"startsAt"`
}

// DiscussionInput is the body of a new discussion.
type DiscussionInput struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

// CommunityService wraps community reads and writes. Only the feed load is
// retried; mutations run once.
type CommunityService struct {
	repo       store.CommunityRepository
	logger     *slog.Logger
	now        func() time.Time
	newBackOff func() backoff.BackOff
}

func NewCommunityService(repo store.CommunityRepository, logger *slog.Logger) *CommunityService {
	return &CommunityService{
		repo:       repo,
		logger:     logger.With("component", "community"),
		now:        time.Now,
		newBackOff: feedBackOff,
	}
}

// feedBackOff allows three attempts spaced 1s then 2s apart.
func feedBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = feedInitialDelay
	b.Multiplier = feedDelayMultiple
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	return backoff.WithMaxRetries(b, feedLoadAttempts-1)
}

// Feed loads stories, events and discussions, retrying the whole load.
func (s *CommunityService) Feed(ctx context.Context) (*domain.CommunityFeed, error) {
	var feed domain.CommunityFeed
	attempt := 0
	load := func() error {
		attempt++
		stories, err := s.repo.ListStories(ctx, feedLimit)
		if err != nil {
			return fmt.Errorf("list stories: %w", err)
		}
		events, err := s.repo.ListEvents(ctx, feedLimit)
		if err != nil {
			return fmt.Errorf("list events: %w", err)
		}
		discussions, err := s.repo.ListDiscussions(ctx, feedLimit)
		if err != nil {
			return fmt.Errorf("list discussions: %w", err)
		}
		feed = domain.CommunityFeed{Stories: stories, Events: events, Discussions: discussions}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		s.logger.Warn("community feed load failed, retrying", "attempt", attempt, "retry_in", wait.String(), "error", err)
	}

	if err := backoff.RetryNotify(load, backoff.WithContext(s.newBackOff(), ctx), notify); err != nil {
		s.logger.Error("community feed load gave up", "attempts", attempt, "error", err)
		return nil, err
	}
	return &feed, nil
}

func (s *CommunityService) CreateStory(ctx context.Context, author Author, in StoryInput) (*domain.Story, error) {
	if err := requireText("title", in.Title); err != nil {
		return nil, err
	}
	if err := requireText("content", in.Content); err != nil {
		return nil, err
	}
	story := &domain.Story{
		AuthorID:   author.UserID,
		AuthorName: author.Name,
		Title:      strings.TrimSpace(in.Title),
		Content:    strings.TrimSpace(in.Content),
		ImageURL:   strings.TrimSpace(in.ImageURL),
		TreeID:     strings.TrimSpace(in.TreeID),
		LikedBy:    []string{},
		CreatedAt:  s.now().UTC(),
	}
	if err := s.repo.CreateStory(ctx, story); err != nil {
		return nil, err
	}
	return story, nil
}

func (s *CommunityService) GetStory(ctx context.Context, storyID string) (*domain.Story, []domain.Comment, error) {
	story, err := s.repo.GetStory(ctx, storyID)
	if err != nil {
		return nil, nil, err
	}
	comments, err := s.repo.ListComments(ctx, storyID)
	if err != nil {
		return nil, nil, err
	}
	return story, comments, nil
}

func (s *CommunityService) ToggleStoryLike(ctx context.Context, storyID, userID string) (domain.LikeResult, error) {
	return s.repo.ToggleStoryLike(ctx, storyID, userID)
}

func (s *CommunityService) DeleteStory(ctx context.Context, storyID, userID string) error {
	return s.repo.DeleteStory(ctx, storyID, userID)
}

func (s *CommunityService) AddComment(ctx context.Context, storyID string, author Author, content string) (*domain.Comment, error) {
	if err := requireText("content", content); err != nil {
		return nil, err
	}
	comment := &domain.Comment{
		AuthorID:   author.UserID,
		AuthorName: author.Name,
		Content:    strings.TrimSpace(content),
		CreatedAt:  s.now().UTC(),
	}
	if err := s.repo.AddComment(ctx, storyID, comment); err != nil {
		return nil, err
	}
	return comment, nil
}

func (s *CommunityService) DeleteComment(ctx context.Context, storyID, commentID, userID string) error {
	return s.repo.DeleteComment(ctx, storyID, commentID, userID)
}

func (s *CommunityService) CreateEvent(ctx context.Context, organizer Author, in EventInput) (*domain.Event, error) {
	if err := requireText("title", in.Title); err != nil {
		return nil, err
	}
	if in.StartsAt.IsZero() {
		return nil, &ValidationError{Field: "startsAt", Message: "is required"}
	}
	event := &domain.Event{
		OrganizerID:  organizer.UserID,
		Title:        strings.TrimSpace(in.Title),
		Description:  strings.TrimSpace(in.Description),
		Location:     strings.TrimSpace(in.Location),
		StartsAt:     in.StartsAt.UTC(),
		Participants: []string{},
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.CreateEvent(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

// ToggleEventParticipation joins the event, or leaves it when already joined.
func (s *CommunityService) ToggleEventParticipation(ctx context.Context, eventID, userID string) (bool, int64, error) {
	return s.repo.ToggleEventParticipation(ctx, eventID, userID)
}

func (s *CommunityService) DeleteEvent(ctx context.Context, eventID, userID string) error {
	return s.repo.DeleteEvent(ctx, eventID, userID)
}

func (s *CommunityService) CreateDiscussion(ctx context.Context, author Author, in DiscussionInput) (*domain.Discussion, error) {
	if err := requireText("title", in.Title); err != nil {
		return nil, err
	}
	if err := requireText("content", in.Content); err != nil {
		return nil, err
	}
	tags := make([]string, 0, len(in.Tags))
	for _, tag := range in.Tags {
		if t := strings.ToLower(strings.TrimSpace(tag)); t != "" {
			tags = append(tags, t)
		}
	}
	discussion := &domain.Discussion{
		AuthorID:   author.UserID,
		AuthorName: author.Name,
		Title:      strings.TrimSpace(in.Title),
		Content:    strings.TrimSpace(in.Content),
		Tags:       tags,
		LikedBy:    []string{},
		CreatedAt:  s.now().UTC(),
	}
	if err := s.repo.CreateDiscussion(ctx, discussion); err != nil {
		return nil, err
	}
	return discussion, nil
}

func (s *CommunityService) ToggleDiscussionLike(ctx context.Context, discussionID, userID string) (domain.LikeResult, error) {
	return s.repo.ToggleDiscussionLike(ctx, discussionID, userID)
}

func (s *CommunityService) AddReply(ctx context.Context, discussionID string, author Author, content string) (*domain.Reply, error) {
	if err := requireText("content", content); err != nil {
		return nil, err
	}
	reply := &domain.Reply{
		AuthorID:   author.UserID,
		AuthorName: author.Name,
		Content:    strings.TrimSpace(content),
		CreatedAt:  s.now().UTC(),
	}
	if err := s.repo.AddReply(ctx, discussionID, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

func (s *CommunityService) ListReplies(ctx context.Context, discussionID string) ([]domain.Reply, error) {
	return s.repo.ListReplies(ctx, discussionID)
}

func requireText(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{Field: field, Message: "is required"}
	}
	return nil
}
