package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Samarth40/tree-adoption-sub000/internal/domain"
)

// ListTreesHandler lists tree listings, optionally filtered by ?status=.
func (h *Handlers) ListTreesHandler(w http.ResponseWriter, r *http.Request) {
	trees, err := h.dashboard.ListTrees(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if trees == nil {
		trees = []domain.TreeListing{}
	}
	writeJSON(w, http.StatusOK, trees)
}

func (h *Handlers) GetTreeHandler(w http.ResponseWriter, r *http.Request) {
	tree, err := h.dashboard.GetTree(r.Context(), chi.URLParam(r, "treeID"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

func (h *Handlers) TreeInsightHandler(w http.ResponseWriter, r *http.Request) {
	treeID := chi.URLParam(r, "treeID")
	insight, err := h.dashboard.TreeInsight(r.Context(), treeID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"treeId": treeID, "insight": insight})
}

func (h *Handlers) MyAdoptionsHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	records, err := h.dashboard.MyAdoptions(r.Context(), s.UserID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if records == nil {
		records = []domain.AdoptionRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handlers) MyStatsHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	stats, err := h.dashboard.Stats(r.Context(), s.UserID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handlers) GetProfileHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	profile, err := h.dashboard.Profile(r.Context(), s.UserID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *Handlers) UpdateProfileHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	var update domain.ProfileUpdate
	if err := decodeJSON(r, &update); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	profile, err := h.dashboard.UpdateProfile(r.Context(), s.UserID, update)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

type attachNFTRequest struct {
	TransactionHash string `json:"transactionHash"`
}

// AttachNFTHandler stores a verified NFT certificate on one of the caller's adoptions.
func (h *Handlers) AttachNFTHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	var req attachNFTRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	record, err := h.dashboard.AttachNFT(r.Context(), s.UserID, chi.URLParam(r, "adoptionID"), req.TransactionHash)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}
