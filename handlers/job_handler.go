package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"rideBoardAPI/internal/peloton"
	"rideBoardAPI/middleware"
	"rideBoardAPI/services"
	"rideBoardAPI/utils"
)

// JobHandler exposes the batch jobs to the external scheduler: the nightly
// leaderboard run plus the tag and follow sync chores.
type JobHandler struct {
	aggregator *services.AggregatorService
	cyclists   *services.CyclistService
	platform   *peloton.Client

	tz              *time.Location
	targetHour      int
	tolerance       time.Duration
	tagName         string
	referenceUserID string
}

type JobConfig struct {
	Timezone        *time.Location
	TargetHour      int
	Tolerance       time.Duration
	TagName         string
	ReferenceUserID string
}

func NewJobHandler(aggregator *services.AggregatorService, cyclists *services.CyclistService, platform *peloton.Client, cfg JobConfig) *JobHandler {
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = 45 * time.Minute
	}
	return &JobHandler{
		aggregator:      aggregator,
		cyclists:        cyclists,
		platform:        platform,
		tz:              cfg.Timezone,
		targetHour:      cfg.TargetHour,
		tolerance:       cfg.Tolerance,
		tagName:         cfg.TagName,
		referenceUserID: cfg.ReferenceUserID,
	}
}

// withinTriggerWindow reports whether an instant falls within the tolerance
// of the scheduled hour in the given timezone.
func withinTriggerWindow(now time.Time, targetHour int, tz *time.Location, tolerance time.Duration) bool {
	local := now.In(tz)
	target := time.Date(local.Year(), local.Month(), local.Day(), targetHour, 0, 0, 0, tz)
	diff := local.Sub(target)
	if diff < 0 {
		diff = -diff
	}
	return diff <= tolerance
}

// RunDailyLeaderboard triggers the aggregation run. The scheduler fires more
// often than it needs to, so invocations outside the trigger window are
// no-ops unless force=true (the backfill escape hatch).
func (h *JobHandler) RunDailyLeaderboard(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"
	if !force && !withinTriggerWindow(time.Now(), h.targetHour, h.tz, h.tolerance) {
		respondWithJSON(w, http.StatusConflict, map[string]string{
			"status": "skipped",
			"reason": "outside trigger window",
		})
		return
	}

	date := r.URL.Query().Get("date")
	if date == "" {
		date = utils.YesterdayIn(h.tz)
	}
	post := r.URL.Query().Get("post") == "true"

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Minute)
	defer cancel()

	started := time.Now()
	snap, err := h.aggregator.Run(ctx, date, post)
	if err != nil {
		middleware.RecordJobRun("daily_leaderboard", "error", time.Since(started))
		log.Printf("Daily leaderboard run failed for %s: %v", date, err)
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	middleware.RecordJobRun("daily_leaderboard", "success", time.Since(started))

	respondWithJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"date":   snap.Date,
		"rides":  len(snap.Rides),
		"riders": len(snap.Totals),
		"pbs":    len(snap.PlayersWhoPBd),
	})
}

// SyncTag pulls the community tag's membership into the cyclists table. This
// is the only place tag membership is resolved; the nightly run works off
// the table.
func (h *JobHandler) SyncTag(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Minute)
	defer cancel()

	started := time.Now()
	users, err := h.platform.GetUsersInTag(ctx, h.tagName)
	if err != nil {
		middleware.RecordJobRun("sync_tag", "error", time.Since(started))
		log.Printf("Tag sync failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	added := 0
	for _, u := range users {
		var avatar *string
		if u.AvatarURL != "" {
			avatar = &u.AvatarURL
		}
		if err := h.cyclists.UpsertMember(ctx, u.ID, u.Username, avatar); err != nil {
			middleware.RecordJobRun("sync_tag", "error", time.Since(started))
			respondWithError(w, http.StatusInternalServerError, err.Error())
			return
		}
		added++
	}
	middleware.RecordJobRun("sync_tag", "success", time.Since(started))

	respondWithJSON(w, http.StatusOK, map[string]any{"status": "ok", "members": added})
}

// SyncFollows follows every tag member the reference account isn't connected
// to yet, so their workout history stays visible to the aggregator.
func (h *JobHandler) SyncFollows(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Minute)
	defer cancel()

	started := time.Now()
	users, err := h.platform.GetUsersInTag(ctx, h.tagName)
	if err != nil {
		middleware.RecordJobRun("sync_follows", "error", time.Since(started))
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	followers, err := h.platform.GetFollowers(ctx, h.referenceUserID)
	if err != nil {
		middleware.RecordJobRun("sync_follows", "error", time.Since(started))
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	known := make(map[string]bool, len(followers))
	for _, f := range followers {
		known[f.ID] = true
	}

	followed := 0
	for _, u := range users {
		if known[u.ID] || u.ID == h.referenceUserID {
			continue
		}
		if err := h.platform.FollowUser(ctx, u.ID); err != nil {
			// Follow failures are per-user noise, not a job failure.
			log.Printf("Failed to follow %s: %v", u.Username, err)
			continue
		}
		followed++
	}
	middleware.RecordJobRun("sync_follows", "success", time.Since(started))

	respondWithJSON(w, http.StatusOK, map[string]any{"status": "ok", "followed": followed})
}
