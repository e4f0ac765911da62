package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"rideBoardAPI/internal/cyclist"
	"rideBoardAPI/services"
)

// CyclistHandler serves the rider roll-ups read-only.
type CyclistHandler struct {
	cyclists *services.CyclistService
}

func NewCyclistHandler(cyclists *services.CyclistService) *CyclistHandler {
	return &CyclistHandler{cyclists: cyclists}
}

func (h *CyclistHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	all, err := h.cyclists.List(ctx)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to list cyclists")
		return
	}
	if all == nil {
		all = []*cyclist.Cyclist{}
	}

	respondWithJSON(w, http.StatusOK, all)
}

func (h *CyclistHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	username := mux.Vars(r)["username"]
	c, err := h.cyclists.Get(ctx, username)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "Cyclist not found")
		return
	}

	respondWithJSON(w, http.StatusOK, c)
}
