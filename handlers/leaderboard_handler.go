package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"rideBoardAPI/services"
	"rideBoardAPI/utils"
)

// LeaderboardHandler serves persisted snapshots read-only. The web front end
// is its only consumer.
type LeaderboardHandler struct {
	snapshots *services.SnapshotService
}

func NewLeaderboardHandler(snapshots *services.SnapshotService) *LeaderboardHandler {
	return &LeaderboardHandler{snapshots: snapshots}
}

func (h *LeaderboardHandler) GetByDate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	date := mux.Vars(r)["date"]
	if err := utils.ValidateDate(date); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := h.snapshots.LatestForDate(ctx, date)
	if err != nil {
		respondWithError(w, http.StatusNotFound, fmt.Sprintf("No leaderboard for %s", date))
		return
	}

	respondWithJSON(w, http.StatusOK, snap)
}

func (h *LeaderboardHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	snap, err := h.snapshots.Latest(ctx)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "No leaderboards stored yet")
		return
	}

	respondWithJSON(w, http.StatusOK, snap)
}

func (h *LeaderboardHandler) GetDates(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	dates, err := h.snapshots.ListDates(ctx)
	if err != nil {
		log.Printf("Failed to list snapshot dates: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to list dates")
		return
	}
	if dates == nil {
		dates = []string{}
	}

	respondWithJSON(w, http.StatusOK, map[string]any{"dates": dates})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "Failed to marshal response"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}
