package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Samarth40/tree-adoption-sub000/internal/app"
	"github.com/Samarth40/tree-adoption-sub000/internal/domain"
)

type contentRequest struct {
	Content string `json:"content"`
}

// CommunityFeedHandler returns stories, events and discussions for the community page.
func (h *Handlers) CommunityFeedHandler(w http.ResponseWriter, r *http.Request) {
	feed, err := h.community.Feed(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, feed)
}

func (h *Handlers) GetStoryHandler(w http.ResponseWriter, r *http.Request) {
	story, comments, err := h.community.GetStory(r.Context(), chi.URLParam(r, "storyID"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if comments == nil {
		comments = []domain.Comment{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"story": story, "comments": comments})
}

func (h *Handlers) CreateStoryHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	var in app.StoryInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	story, err := h.community.CreateStory(r.Context(), authorOf(s), in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, story)
}

func (h *Handlers) DeleteStoryHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	if err := h.community.DeleteStory(r.Context(), chi.URLParam(r, "storyID"), s.UserID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) ToggleStoryLikeHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	result, err := h.community.ToggleStoryLike(r.Context(), chi.URLParam(r, "storyID"), s.UserID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) AddCommentHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	var req contentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	comment, err := h.community.AddComment(r.Context(), chi.URLParam(r, "storyID"), authorOf(s), req.Content)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

func (h *Handlers) DeleteCommentHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	err := h.community.DeleteComment(r.Context(), chi.URLParam(r, "storyID"), chi.URLParam(r, "commentID"), s.UserID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) CreateEventHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	var in app.EventInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	event, err := h.community.CreateEvent(r.Context(), authorOf(s), in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

func (h *Handlers) DeleteEventHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	if err := h.community.DeleteEvent(r.Context(), chi.URLParam(r, "eventID"), s.UserID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ToggleParticipationHandler joins or leaves an event.
func (h *Handlers) ToggleParticipationHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	joined, count, err := h.community.ToggleEventParticipation(r.Context(), chi.URLParam(r, "eventID"), s.UserID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"participating": joined, "participantCount": count})
}

func (h *Handlers) CreateDiscussionHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	var in app.DiscussionInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	discussion, err := h.community.CreateDiscussion(r.Context(), authorOf(s), in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, discussion)
}

func (h *Handlers) ToggleDiscussionLikeHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	result, err := h.community.ToggleDiscussionLike(r.Context(), chi.URLParam(r, "discussionID"), s.UserID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) AddReplyHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	var req contentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	reply, err := h.community.AddReply(r.Context(), chi.URLParam(r, "discussionID"), authorOf(s), req.Content)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, reply)
}

func (h *Handlers) ListRepliesHandler(w http.ResponseWriter, r *http.Request) {
	replies, err := h.community.ListReplies(r.Context(), chi.URLParam(r, "discussionID"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if replies == nil {
		replies = []domain.Reply{}
	}
	writeJSON(w, http.StatusOK, replies)
}
