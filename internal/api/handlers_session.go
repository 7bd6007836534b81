package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Samarth40/tree-adoption-sub000/internal/app"
	"github.com/Samarth40/tree-adoption-sub000/internal/domain"
	"github.com/Samarth40/tree-adoption-sub000/internal/session"
)

type createSessionRequest struct {
	IDToken string `json:"idToken"`
}

// CreateSessionHandler exchanges a Firebase ID token for a session. The token
// may come in the body or as a bearer token.
func (h *Handlers) CreateSessionHandler(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "Sign-in is not configured")
		return
	}

	token, ok := bearerToken(r)
	if !ok {
		var req createSessionRequest
		if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.IDToken) == "" {
			writeError(w, http.StatusBadRequest, "idToken is required")
			return
		}
		token = strings.TrimSpace(req.IDToken)
	}

	s, err := h.sessions.Create(r.Context(), token)
	if err != nil {
		if errors.Is(err, session.ErrInvalidToken) {
			h.logger.Warn("rejected identity token", "error", err)
			writeError(w, http.StatusUnauthorized, session.ErrInvalidToken.Error())
			return
		}
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

func (h *Handlers) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// DeleteSessionHandler signs the user out.
func (h *Handlers) DeleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	if err := h.sessions.Invalidate(r.Context(), s.ID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type gateRequest struct {
	Password string `json:"password"`
}

// GateHandler checks the preview-site password.
func (h *Handlers) GateHandler(w http.ResponseWriter, r *http.Request) {
	var req gateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.gate.Unlock(req.Password); err != nil {
		if errors.Is(err, app.ErrGateLocked) {
			writeError(w, http.StatusUnauthorized, "Incorrect password")
			return
		}
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"unlocked": true})
}

func (h *Handlers) ListPlansHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, domain.Plans())
}
