package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"rideBoardAPI/internal/cyclist"
	"rideBoardAPI/internal/discord"
	"rideBoardAPI/internal/leaderboard"
	"rideBoardAPI/internal/peloton"
	"rideBoardAPI/internal/workout"
	"rideBoardAPI/utils"
)

// PlatformClient is the slice of the API client the aggregator needs.
type PlatformClient interface {
	GetWorkouts(ctx context.Context, userID string, from, to *time.Time) ([]workout.Workout, error)
	GetWorkout(ctx context.Context, workoutID string) (*workout.Workout, error)
	GetWorkoutPerformanceData(ctx context.Context, workoutID string) (*workout.PerformanceDetail, error)
}

// Notifier delivers formatted messages. Injected from main; nil disables
// posting entirely.
type Notifier interface {
	Send(ctx context.Context, msg *discord.Message) error
}

// SnapshotStore is the persistence the aggregator writes finished boards to.
type SnapshotStore interface {
	Insert(ctx context.Context, snap *leaderboard.Snapshot) error
}

// CyclistStore supplies the roster and accepts rolling-stat updates.
type CyclistStore interface {
	List(ctx context.Context) ([]*cyclist.Cyclist, error)
	AddRide(ctx context.Context, userID, username string, avatarURL *string, rideDate string, output float64) error
}

type AggregatorConfig struct {
	// ReferenceUserID anchors which rides count: their classes always stay
	// on the board regardless of turnout.
	ReferenceUserID string

	// Timezone is the community's reference timezone for date windows.
	Timezone *time.Location

	// LeaderboardSize caps posted messages; the persisted snapshot always
	// keeps the full list.
	LeaderboardSize int

	// MinRideParticipants is the turnout below which a ride is dropped
	// unless the reference user took it.
	MinRideParticipants int

	// ParticipantConcurrency bounds the fan-out over the roster.
	ParticipantConcurrency int
}

func (c *AggregatorConfig) applyDefaults() {
	if c.LeaderboardSize <= 0 {
		c.LeaderboardSize = 10
	}
	if c.MinRideParticipants <= 0 {
		c.MinRideParticipants = 10
	}
	if c.ParticipantConcurrency <= 0 {
		c.ParticipantConcurrency = 15
	}
}

// AggregatorService runs the nightly pipeline: fetch, reduce, persist, post.
type AggregatorService struct {
	client    PlatformClient
	snapshots SnapshotStore
	cyclists  CyclistStore
	notifier  Notifier
	cfg       AggregatorConfig
}

func NewAggregatorService(client PlatformClient, snapshots SnapshotStore, cyclists CyclistStore, notifier Notifier, cfg AggregatorConfig) *AggregatorService {
	cfg.applyDefaults()
	return &AggregatorService{
		client:    client,
		snapshots: snapshots,
		cyclists:  cyclists,
		notifier:  notifier,
		cfg:       cfg,
	}
}

// riderResult is one roster member's contribution, accumulated task-locally
// and merged under the lock at the join point.
type riderResult struct {
	rider   *cyclist.Cyclist
	total   *leaderboard.UserTotal
	pbs     []leaderboard.PBRecord
	entries map[string][]leaderboard.WorkoutEntry
}

// Run produces, persists and optionally posts the leaderboard for one date.
// Any fetch error aborts the run before anything is written; a failed run is
// retried by invoking it again with the same date.
func (s *AggregatorService) Run(ctx context.Context, date string, post bool) (*leaderboard.Snapshot, error) {
	if err := utils.ValidateDate(date); err != nil {
		return nil, err
	}

	window, err := utils.DateWindowFor(date, s.cfg.Timezone)
	if err != nil {
		return nil, err
	}

	runID := uuid.New()
	started := time.Now()
	log.Printf("Leaderboard run %s: date=%s window=[%s, %s)", runID, date,
		window.LookbackStart.Format(time.RFC3339), window.LookaheadEnd.Format(time.RFC3339))

	snap := leaderboard.NewSnapshot(date)
	referenceRides, err := s.seedReferenceRides(ctx, snap, window)
	if err != nil {
		return nil, fmt.Errorf("fetch reference workouts: %w", err)
	}
	log.Printf("Leaderboard run %s: reference user took %d rides", runID, len(referenceRides))

	roster, err := s.cyclists.List(ctx)
	if err != nil {
		return nil, err
	}

	results, err := s.collectParticipants(ctx, roster, date, window, snap)
	if err != nil {
		return nil, err
	}

	for _, res := range results {
		s.merge(snap, res)
	}

	s.applyInclusionRules(snap, referenceRides)
	sortRideEntries(snap)

	if err := s.snapshots.Insert(ctx, snap); err != nil {
		return nil, err
	}

	s.updateCyclistStats(ctx, snap, results)

	if post && s.notifier != nil {
		s.postMessages(ctx, snap)
	}

	log.Printf("Leaderboard run %s: done in %s (%d rides, %d riders, %d PBs)",
		runID, time.Since(started).Round(time.Millisecond), len(snap.Rides), len(snap.Totals), len(snap.PlayersWhoPBd))
	return snap, nil
}

// seedReferenceRides fetches the reference user's window and creates one
// RideAggregate per distinct class they took.
func (s *AggregatorService) seedReferenceRides(ctx context.Context, snap *leaderboard.Snapshot, window utils.DateWindow) (map[string]bool, error) {
	workouts, err := s.client.GetWorkouts(ctx, s.cfg.ReferenceUserID, &window.LookbackStart, &window.LookaheadEnd)
	if err != nil {
		return nil, err
	}

	attended := make(map[string]bool)
	for i := range workouts {
		w := &workouts[i]
		if !w.IsValid() || w.Ride == nil || w.Ride.ID == workout.NullRideID {
			continue
		}
		attended[w.Ride.ID] = true
		if _, ok := snap.Rides[w.Ride.ID]; !ok {
			snap.Rides[w.Ride.ID] = &leaderboard.RideAggregate{
				ID:                 w.Ride.ID,
				Title:              w.Ride.Title,
				Description:        w.Ride.Description,
				ImageURL:           w.Ride.ImageURL,
				ScheduledStartTime: w.Ride.ScheduledStartTime,
			}
		}
	}
	return attended, nil
}

// collectParticipants fans out over the roster with bounded concurrency. The
// snapshot's ride map is only read here (membership checks); all writes
// happen at the merge step.
func (s *AggregatorService) collectParticipants(ctx context.Context, roster []*cyclist.Cyclist, date string, window utils.DateWindow, snap *leaderboard.Snapshot) ([]*riderResult, error) {
	var mu sync.Mutex
	results := make([]*riderResult, 0, len(roster))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.ParticipantConcurrency)

	for _, rider := range roster {
		rider := rider
		g.Go(func() error {
			res, err := s.collectRider(gctx, rider, date, window, snap.Rides)
			if err != nil {
				return fmt.Errorf("rider %s: %w", rider.Username, err)
			}
			if res != nil {
				mu.Lock()
				results = append(results, res)
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *AggregatorService) collectRider(ctx context.Context, rider *cyclist.Cyclist, date string, window utils.DateWindow, trackedRides map[string]*leaderboard.RideAggregate) (*riderResult, error) {
	workouts, err := s.client.GetWorkouts(ctx, rider.UserID, &window.LookbackStart, &window.LookaheadEnd)
	if err != nil {
		return nil, err
	}
	if len(workouts) == 0 {
		return nil, nil
	}

	res := &riderResult{
		rider:   rider,
		entries: make(map[string][]leaderboard.WorkoutEntry),
	}
	boarded := make(map[string]bool)

	for i := range workouts {
		w := &workouts[i]
		if !w.IsValid() {
			continue
		}

		// Daily totals go by the rider's own local calendar date, so a
		// 23:50 ride in New York still counts for that New York day.
		if w.LocalDate() == date {
			if res.total == nil {
				res.total = &leaderboard.UserTotal{Username: rider.Username}
			}
			res.total.Output += w.TotalWork
			res.total.Rides++
			res.total.DurationMinutes += w.DurationMinutes()

			isPB, err := s.checkPersonalBest(ctx, w.ID)
			if errors.Is(err, peloton.ErrForbidden) {
				// Profile flipped private or the workout vanished since
				// the list call. No detail means no PB, nothing more.
				isPB = false
			} else if err != nil {
				return nil, err
			}
			if isPB {
				res.pbs = append(res.pbs, leaderboard.PBRecord{
					TotalWork:       w.TotalWork,
					DurationMinutes: w.DurationMinutes(),
				})
			}
		}

		// Ride boards are independent of the daily totals: any workout in
		// the wider window against a tracked class gets an entry, first
		// attempt per rider per ride.
		if w.Ride == nil || w.Ride.ID == workout.NullRideID {
			continue
		}
		if _, tracked := trackedRides[w.Ride.ID]; !tracked || boarded[w.Ride.ID] || !window.Contains(w.StartTime) {
			continue
		}

		entry, err := s.buildEntry(ctx, rider.Username, w)
		if errors.Is(err, peloton.ErrForbidden) {
			continue
		}
		if err != nil {
			return nil, err
		}
		res.entries[w.Ride.ID] = append(res.entries[w.Ride.ID], *entry)
		boarded[w.Ride.ID] = true
	}

	if res.total == nil && len(res.entries) == 0 {
		return nil, nil
	}
	return res, nil
}

// checkPersonalBest fetches the workout detail, whose achievement flags are
// authoritative, under the retry wrapper.
func (s *AggregatorService) checkPersonalBest(ctx context.Context, workoutID string) (bool, error) {
	detail, err := peloton.WithRetry(ctx, func() (*workout.Workout, error) {
		return s.client.GetWorkout(ctx, workoutID)
	})
	if err != nil {
		return false, fmt.Errorf("workout detail %s: %w", workoutID, err)
	}
	return detail.IsTotalWorkPersonalRecord, nil
}

func (s *AggregatorService) buildEntry(ctx context.Context, username string, w *workout.Workout) (*leaderboard.WorkoutEntry, error) {
	perf, err := peloton.WithRetry(ctx, func() (*workout.PerformanceDetail, error) {
		return s.client.GetWorkoutPerformanceData(ctx, w.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("performance data %s: %w", w.ID, err)
	}

	entry := &leaderboard.WorkoutEntry{
		Username:        username,
		TotalWork:       w.TotalWork,
		IsNewPB:         w.IsTotalWorkPersonalRecord,
		AvgCadence:      perf.AvgCadence(),
		AvgResistance:   perf.AvgResistance(),
		Distance:        perf.Distance(),
		DurationMinutes: w.DurationMinutes(),
	}
	if perf.EffortZones != nil {
		entry.EffortPoints = perf.EffortZones.TotalEffortPoints
		entry.HeartRateZones = perf.EffortZones.HeartRateZoneDurations
	}
	return entry, nil
}

func (s *AggregatorService) merge(snap *leaderboard.Snapshot, res *riderResult) {
	if res.total != nil {
		snap.Totals[res.rider.Username] = res.total
	}
	if len(res.pbs) > 0 {
		snap.PlayersWhoPBd[res.rider.Username] = res.pbs
	}
	for rideID, entries := range res.entries {
		ride := snap.Rides[rideID]
		ride.Workouts = append(ride.Workouts, entries...)
	}
}

// applyInclusionRules drops low-turnout rides the reference user skipped.
func (s *AggregatorService) applyInclusionRules(snap *leaderboard.Snapshot, referenceRides map[string]bool) {
	for id, ride := range snap.Rides {
		if len(ride.Workouts) < s.cfg.MinRideParticipants && !referenceRides[id] {
			delete(snap.Rides, id)
		}
	}
}

// sortRideEntries orders every board by output, descending. The sort is
// stable so equal outputs keep their fetch order.
func sortRideEntries(snap *leaderboard.Snapshot) {
	for _, ride := range snap.Rides {
		sort.SliceStable(ride.Workouts, func(i, j int) bool {
			return ride.Workouts[i].TotalWork > ride.Workouts[j].TotalWork
		})
	}
}

// updateCyclistStats folds the day into each rider's rolling profile. These
// updates are best-effort: the snapshot is already durable.
func (s *AggregatorService) updateCyclistStats(ctx context.Context, snap *leaderboard.Snapshot, results []*riderResult) {
	for _, res := range results {
		if res.total == nil {
			continue
		}

		var highest float64
		for _, pb := range res.pbs {
			if pb.TotalWork > highest {
				highest = pb.TotalWork
			}
		}

		for i := 0; i < res.total.Rides; i++ {
			if err := s.cyclists.AddRide(ctx, res.rider.UserID, res.rider.Username, res.rider.AvatarURL, snap.Date, highest); err != nil {
				log.Printf("Failed to update cyclist stats for %s: %v", res.rider.Username, err)
				break
			}
		}
	}
}

// postMessages formats and dispatches the chat messages. Delivery failures
// are logged and never fail the run.
func (s *AggregatorService) postMessages(ctx context.Context, snap *leaderboard.Snapshot) {
	for _, msg := range BuildMessages(snap, s.cfg.LeaderboardSize) {
		if err := s.notifier.Send(ctx, msg); err != nil {
			log.Printf("Failed to post leaderboard message: %v", err)
		}
	}
}
