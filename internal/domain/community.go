/**
 * @description
 * Community models: stories with comments, events with participants and
 * discussions with replies. Counters on these documents are only ever changed
 * through atomic increments.
 */
package domain

import "time"

type Story struct {
	ID           string    `json:"id" firestore:"-"`
	AuthorID     string    `json:"authorId" firestore:"authorId"`
	AuthorName   string    `json:"authorName" firestore:"authorName"`
	Title        string    `json:"title" firestore:"title"`
	Content      string    `json:"content" firestore:"content"`
	ImageURL     string    `json:"imageUrl,omitempty" firestore:"imageUrl"`
	TreeID       string    `json:"treeId,omitempty" firestore:"treeId"`
	Likes        int64     `json:"likes" firestore:"likes"`
	LikedBy      []string  `json:"likedBy" firestore:"likedBy"`
	CommentCount int64     `json:"commentCount" firestore:"commentCount"`
	CreatedAt    time.Time `json:"createdAt" firestore:"createdAt"`
}

type Comment struct {
	ID         string    `json:"id" firestore:"-"`
	AuthorID   string    `json:"authorId" firestore:"authorId"`
	AuthorName string    `json:"authorName" firestore:"authorName"`
	Content    string    `json:"content" firestore:"content"`
	CreatedAt  time.Time `json:"createdAt" firestore:"createdAt"`
}

type Event struct {
	ID               string    `json:"id" firestore:"-"`
	OrganizerID      string    `json:"organizerId" firestore:"organizerId"`
	Title            string    `json:"title" firestore:"title"`
	Description      string    `json:"description" firestore:"description"`
	Location         string    `json:"location" firestore:"location"`
	StartsAt         time.Time `json:"startsAt" firestore:"startsAt"`
	Participants     []string  `json:"participants" firestore:"participants"`
	ParticipantCount int64     `json:"participantCount" firestore:"participantCount"`
	CreatedAt        time.Time `json:"createdAt" firestore:"createdAt"`
}

type Discussion struct {
	ID         string    `json:"id" firestore:"-"`
	AuthorID   string    `json:"authorId" firestore:"authorId"`
	AuthorName string    `json:"authorName" firestore:"authorName"`
	Title      string    `json:"title" firestore:"title"`
	Content    string    `json:"content" firestore:"content"`
	Tags       []string  `json:"tags" firestore:"tags"`
	Likes      int64     `json:"likes" firestore:"likes"`
	LikedBy    []string  `json:"likedBy" firestore:"likedBy"`
	ReplyCount int64     `json:"replyCount" firestore:"replyCount"`
	CreatedAt  time.Time `json:"createdAt" firestore:"createdAt"`
}

type Reply struct {
	ID         string    `json:"id" firestore:"-"`
	AuthorID   string    `json:"authorId" firestore:"authorId"`
	AuthorName string    `json:"authorName" firestore:"authorName"`
	Content    string    `json:"content" firestore:"content"`
	CreatedAt  time.Time `json:"createdAt" firestore:"createdAt"`
}

// CommunityFeed is the initial community page payload.
type CommunityFeed struct {
	Stories     []Story      `json:"stories"`
	Events      []Event      `json:"events"`
	Discussions []Discussion `json:"discussions"`
}

// LikeResult reports the state of a like toggle.
type LikeResult struct {
	Liked bool  `json:"liked"`
	Likes int64 `json:"likes"`
}
