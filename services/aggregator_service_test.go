package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"rideBoardAPI/internal/cyclist"
	"rideBoardAPI/internal/discord"
	"rideBoardAPI/internal/leaderboard"
	"rideBoardAPI/internal/peloton"
	"rideBoardAPI/internal/workout"
)

// fakePlatform serves canned workouts; it must be safe under the aggregator's
// concurrent fan-out.
type fakePlatform struct {
	mu             sync.Mutex
	workoutsByUser map[string][]workout.Workout
	details        map[string]*workout.Workout
	perf           map[string]*workout.PerformanceDetail
	detailErr      error
	perfErr        error
	calls          int
}

func (f *fakePlatform) GetWorkouts(ctx context.Context, userID string, from, to *time.Time) ([]workout.Workout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.workoutsByUser[userID], nil
}

func (f *fakePlatform) GetWorkout(ctx context.Context, workoutID string) (*workout.Workout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.detailErr != nil {
		return nil, f.detailErr
	}
	if d, ok := f.details[workoutID]; ok {
		return d, nil
	}
	return &workout.Workout{ID: workoutID}, nil
}

func (f *fakePlatform) GetWorkoutPerformanceData(ctx context.Context, workoutID string) (*workout.PerformanceDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.perfErr != nil {
		return nil, f.perfErr
	}
	if p, ok := f.perf[workoutID]; ok {
		return p, nil
	}
	return &workout.PerformanceDetail{}, nil
}

func (f *fakePlatform) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSnapshotStore struct {
	mu       sync.Mutex
	inserted []*leaderboard.Snapshot
}

func (f *fakeSnapshotStore) Insert(ctx context.Context, snap *leaderboard.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, snap)
	return nil
}

type addRideCall struct {
	userID string
	date   string
	output float64
}

type fakeCyclistStore struct {
	mu     sync.Mutex
	roster []*cyclist.Cyclist
	rides  []addRideCall
}

func (f *fakeCyclistStore) List(ctx context.Context) ([]*cyclist.Cyclist, error) {
	return f.roster, nil
}

func (f *fakeCyclistStore) AddRide(ctx context.Context, userID, username string, avatarURL *string, rideDate string, output float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rides = append(f.rides, addRideCall{userID: userID, date: rideDate, output: output})
	return nil
}

type failingNotifier struct{ sends int }

func (n *failingNotifier) Send(ctx context.Context, msg *discord.Message) error {
	n.sends++
	return context.DeadlineExceeded
}

const (
	refUserID = "nl-user"
	testDate  = "2024-06-01"
)

func laTZ(t *testing.T) *time.Location {
	t.Helper()
	tz, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Fatal(err)
	}
	return tz
}

func completedWorkout(id, userID, rideID string, start time.Time, durationSec int64, output float64, tzName string) workout.Workout {
	w := workout.Workout{
		ID:          id,
		UserID:      userID,
		StartTime:   start.Unix(),
		EndTime:     start.Unix() + durationSec,
		Status:      workout.StatusComplete,
		MetricsType: workout.MetricsTypeCycling,
		Timezone:    tzName,
		TotalWork:   output,
	}
	if rideID != "" {
		w.Ride = &workout.Ride{ID: rideID, Title: "Test Ride"}
	}
	return w
}

func newTestAggregator(platform *fakePlatform, snaps *fakeSnapshotStore, riders *fakeCyclistStore, notifier Notifier, tz *time.Location) *AggregatorService {
	return NewAggregatorService(platform, snaps, riders, notifier, AggregatorConfig{
		ReferenceUserID:        refUserID,
		Timezone:               tz,
		ParticipantConcurrency: 1, // deterministic merge order for assertions
	})
}

func TestRunRejectsMalformedDateBeforeAnyFetch(t *testing.T) {
	platform := &fakePlatform{}
	snaps := &fakeSnapshotStore{}
	agg := newTestAggregator(platform, snaps, &fakeCyclistStore{}, nil, time.UTC)

	if _, err := agg.Run(context.Background(), "2024-13-45", false); err == nil {
		t.Fatal("expected validation error")
	}
	if platform.callCount() != 0 {
		t.Errorf("made %d API calls before validation, want 0", platform.callCount())
	}
	if len(snaps.inserted) != 0 {
		t.Error("no snapshot may be written on a failed run")
	}
}

func TestInvalidWorkoutsAreExcluded(t *testing.T) {
	tz := laTZ(t)
	noon := time.Date(2024, 6, 1, 12, 0, 0, 0, tz)

	platform := &fakePlatform{workoutsByUser: map[string][]workout.Workout{
		"u1": {
			// Zero duration.
			completedWorkout("w-zero", "u1", "", noon, 0, 100000, "America/Los_Angeles"),
			// Wrong discipline.
			func() workout.Workout {
				w := completedWorkout("w-run", "u1", "", noon, 1800, 100000, "America/Los_Angeles")
				w.MetricsType = "running"
				return w
			}(),
			// Not finished.
			func() workout.Workout {
				w := completedWorkout("w-live", "u1", "", noon, 1800, 100000, "America/Los_Angeles")
				w.Status = "IN_PROGRESS"
				return w
			}(),
		},
	}}
	snaps := &fakeSnapshotStore{}
	riders := &fakeCyclistStore{roster: []*cyclist.Cyclist{{UserID: "u1", Username: "alice"}}}

	snap, err := newTestAggregator(platform, snaps, riders, nil, tz).Run(context.Background(), testDate, false)
	if err != nil {
		t.Fatal(err)
	}

	if len(snap.Totals) != 0 {
		t.Errorf("totals = %v, want empty: none of the workouts qualify", snap.Totals)
	}
	if len(snap.Rides) != 0 {
		t.Errorf("rides = %v, want empty", snap.Rides)
	}
}

func TestReferenceRideScenario(t *testing.T) {
	tz := laTZ(t)
	classTime := time.Date(2024, 6, 1, 10, 0, 0, 0, tz)

	workoutsByUser := map[string][]workout.Workout{
		refUserID: {completedWorkout("w-nl", refUserID, "ride-1", classTime, 1800, 300000, "America/Los_Angeles")},
	}
	roster := []*cyclist.Cyclist{{UserID: refUserID, Username: "NL"}}
	for i := 1; i <= 12; i++ {
		userID := userIDFor(i)
		output := 250000 + float64(i)*5000 // r12 tops out at 310000
		workoutsByUser[userID] = []workout.Workout{
			completedWorkout("w-"+userID, userID, "ride-1", classTime.Add(time.Duration(i)*time.Minute), 1800, output, "America/Los_Angeles"),
		}
		roster = append(roster, &cyclist.Cyclist{UserID: userID, Username: "rider" + userID})
	}

	platform := &fakePlatform{workoutsByUser: workoutsByUser}
	snaps := &fakeSnapshotStore{}
	riders := &fakeCyclistStore{roster: roster}

	snap, err := newTestAggregator(platform, snaps, riders, nil, tz).Run(context.Background(), testDate, false)
	if err != nil {
		t.Fatal(err)
	}

	ride, ok := snap.Rides["ride-1"]
	if !ok {
		t.Fatal("reference-attended ride must be retained")
	}
	if len(ride.Workouts) != 13 {
		t.Fatalf("ride has %d entries, want 13", len(ride.Workouts))
	}
	if ride.Workouts[0].TotalWork != 310000 {
		t.Errorf("top entry total_work = %v, want 310000", ride.Workouts[0].TotalWork)
	}
	for i := 1; i < len(ride.Workouts); i++ {
		if ride.Workouts[i].TotalWork > ride.Workouts[i-1].TotalWork {
			t.Fatalf("entries not sorted descending at index %d", i)
		}
	}

	nl := snap.Totals["NL"]
	if nl == nil || nl.Output != 300000 || nl.Rides != 1 || nl.DurationMinutes != 30 {
		t.Errorf("NL total = %+v, want output 300000, 1 ride, 30 min", nl)
	}

	if len(snaps.inserted) != 1 {
		t.Fatalf("inserted %d snapshots, want 1", len(snaps.inserted))
	}
}

func userIDFor(i int) string {
	return string(rune('a'+i-1)) + "-user"
}

func TestLowTurnoutRideIsDropped(t *testing.T) {
	tz := laTZ(t)
	classTime := time.Date(2024, 6, 1, 10, 0, 0, 0, tz)

	// Reference user rode nothing; three riders share an unanchored class.
	workoutsByUser := map[string][]workout.Workout{refUserID: nil}
	roster := []*cyclist.Cyclist{}
	for i := 1; i <= 3; i++ {
		userID := userIDFor(i)
		workoutsByUser[userID] = []workout.Workout{
			completedWorkout("w-"+userID, userID, "ride-quiet", classTime, 1800, 200000, "America/Los_Angeles"),
		}
		roster = append(roster, &cyclist.Cyclist{UserID: userID, Username: "rider" + userID})
	}

	platform := &fakePlatform{workoutsByUser: workoutsByUser}
	snaps := &fakeSnapshotStore{}
	riders := &fakeCyclistStore{roster: roster}

	snap, err := newTestAggregator(platform, snaps, riders, nil, tz).Run(context.Background(), testDate, false)
	if err != nil {
		t.Fatal(err)
	}

	if len(snap.Rides) != 0 {
		t.Errorf("rides = %v, want empty: quiet ride was never seeded by the reference user", snap.Rides)
	}
	// Daily totals are independent of ride boards.
	if len(snap.Totals) != 3 {
		t.Errorf("totals has %d riders, want 3", len(snap.Totals))
	}
}

func TestEqualOutputsKeepFetchOrder(t *testing.T) {
	tz := laTZ(t)
	classTime := time.Date(2024, 6, 1, 10, 0, 0, 0, tz)

	platform := &fakePlatform{workoutsByUser: map[string][]workout.Workout{
		refUserID: {completedWorkout("w-nl", refUserID, "ride-1", classTime, 1800, 250000, "America/Los_Angeles")},
		"a-user":  {completedWorkout("w-a", "a-user", "ride-1", classTime, 1800, 200000, "America/Los_Angeles")},
		"b-user":  {completedWorkout("w-b", "b-user", "ride-1", classTime, 1800, 200000, "America/Los_Angeles")},
	}}
	snaps := &fakeSnapshotStore{}
	riders := &fakeCyclistStore{roster: []*cyclist.Cyclist{
		{UserID: refUserID, Username: "NL"},
		{UserID: "a-user", Username: "alice"},
		{UserID: "b-user", Username: "bob"},
	}}

	snap, err := newTestAggregator(platform, snaps, riders, nil, tz).Run(context.Background(), testDate, false)
	if err != nil {
		t.Fatal(err)
	}

	entries := snap.Rides["ride-1"].Workouts
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	if entries[1].Username != "alice" || entries[2].Username != "bob" {
		t.Errorf("tie order = [%s %s], want [alice bob] (insertion order)", entries[1].Username, entries[2].Username)
	}
}

func TestLocalDateDecidesDailyTotals(t *testing.T) {
	tz := laTZ(t)
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatal(err)
	}

	// 23:50 in New York on the target date: still June 1 locally even
	// though it's already June 2 in UTC.
	lateRide := time.Date(2024, 6, 1, 23, 50, 0, 0, ny)

	platform := &fakePlatform{workoutsByUser: map[string][]workout.Workout{
		refUserID: nil,
		"a-user":  {completedWorkout("w-late", "a-user", "", lateRide, 1800, 180000, "America/New_York")},
	}}
	snaps := &fakeSnapshotStore{}
	riders := &fakeCyclistStore{roster: []*cyclist.Cyclist{{UserID: "a-user", Username: "alice"}}}

	snap, err := newTestAggregator(platform, snaps, riders, nil, tz).Run(context.Background(), testDate, false)
	if err != nil {
		t.Fatal(err)
	}

	total := snap.Totals["alice"]
	if total == nil {
		t.Fatal("late-evening local ride must count toward the target date")
	}
	if total.Output != 180000 {
		t.Errorf("output = %v, want 180000", total.Output)
	}
}

func TestDurationIsSummedInRoundedMinutes(t *testing.T) {
	tz := laTZ(t)
	noon := time.Date(2024, 6, 1, 12, 0, 0, 0, tz)

	platform := &fakePlatform{workoutsByUser: map[string][]workout.Workout{
		refUserID: nil,
		"a-user": {
			completedWorkout("w-1", "a-user", "", noon, 1800, 100000, "America/Los_Angeles"),
			completedWorkout("w-2", "a-user", "", noon.Add(2*time.Hour), 90, 5000, "America/Los_Angeles"),
		},
	}}
	snaps := &fakeSnapshotStore{}
	riders := &fakeCyclistStore{roster: []*cyclist.Cyclist{{UserID: "a-user", Username: "alice"}}}

	snap, err := newTestAggregator(platform, snaps, riders, nil, tz).Run(context.Background(), testDate, false)
	if err != nil {
		t.Fatal(err)
	}

	// 30 min + round(1.5 min) = 32 min, rounded per workout.
	if got := snap.Totals["alice"].DurationMinutes; got != 32 {
		t.Errorf("duration = %d min, want 32", got)
	}
}

func TestPersonalBestsAreRecordedAndRolledUp(t *testing.T) {
	tz := laTZ(t)
	noon := time.Date(2024, 6, 1, 12, 0, 0, 0, tz)

	w := completedWorkout("w-pb", "a-user", "", noon, 1800, 320000, "America/Los_Angeles")
	pbDetail := w
	pbDetail.IsTotalWorkPersonalRecord = true

	platform := &fakePlatform{
		workoutsByUser: map[string][]workout.Workout{refUserID: nil, "a-user": {w}},
		details:        map[string]*workout.Workout{"w-pb": &pbDetail},
	}
	snaps := &fakeSnapshotStore{}
	riders := &fakeCyclistStore{roster: []*cyclist.Cyclist{{UserID: "a-user", Username: "alice"}}}

	snap, err := newTestAggregator(platform, snaps, riders, nil, tz).Run(context.Background(), testDate, false)
	if err != nil {
		t.Fatal(err)
	}

	pbs := snap.PlayersWhoPBd["alice"]
	if len(pbs) != 1 || pbs[0].TotalWork != 320000 || pbs[0].DurationMinutes != 30 {
		t.Fatalf("pbs = %v, want one 320000/30min record", pbs)
	}

	if len(riders.rides) != 1 {
		t.Fatalf("AddRide called %d times, want 1", len(riders.rides))
	}
	call := riders.rides[0]
	if call.userID != "a-user" || call.date != testDate || call.output != 320000 {
		t.Errorf("AddRide call = %+v", call)
	}
}

func TestDetailAccessFailuresDoNotAbortTheRun(t *testing.T) {
	tz := laTZ(t)
	noon := time.Date(2024, 6, 1, 12, 0, 0, 0, tz)

	// Every detail call answers like a profile that flipped private between
	// the list fetch and the follow-up. The run must still complete: totals
	// from the list data, no PBs, no board entries for the blocked workouts.
	platform := &fakePlatform{
		workoutsByUser: map[string][]workout.Workout{
			refUserID: {completedWorkout("w-nl", refUserID, "ride-1", noon, 1800, 250000, "America/Los_Angeles")},
			"a-user":  {completedWorkout("w-a", "a-user", "ride-1", noon, 1800, 220000, "America/Los_Angeles")},
		},
		detailErr: peloton.ErrForbidden,
		perfErr:   peloton.ErrForbidden,
	}
	snaps := &fakeSnapshotStore{}
	riders := &fakeCyclistStore{roster: []*cyclist.Cyclist{
		{UserID: refUserID, Username: "NL"},
		{UserID: "a-user", Username: "alice"},
	}}

	snap, err := newTestAggregator(platform, snaps, riders, nil, tz).Run(context.Background(), testDate, false)
	if err != nil {
		t.Fatalf("a per-workout access failure must not abort the batch: %v", err)
	}

	if len(snap.Totals) != 2 {
		t.Errorf("totals has %d riders, want 2: list data alone carries the totals", len(snap.Totals))
	}
	if len(snap.PlayersWhoPBd) != 0 {
		t.Error("no PB may be recorded without a readable detail")
	}
	if ride := snap.Rides["ride-1"]; ride == nil || len(ride.Workouts) != 0 {
		t.Errorf("ride board = %+v, want the reference ride retained with no entries", snap.Rides["ride-1"])
	}
	if len(snaps.inserted) != 1 {
		t.Fatalf("inserted %d snapshots, want 1", len(snaps.inserted))
	}
}

func TestNotifierFailureDoesNotFailTheRun(t *testing.T) {
	tz := laTZ(t)
	noon := time.Date(2024, 6, 1, 12, 0, 0, 0, tz)

	platform := &fakePlatform{workoutsByUser: map[string][]workout.Workout{
		refUserID: {completedWorkout("w-nl", refUserID, "ride-1", noon, 1800, 250000, "America/Los_Angeles")},
	}}
	snaps := &fakeSnapshotStore{}
	riders := &fakeCyclistStore{roster: []*cyclist.Cyclist{{UserID: refUserID, Username: "NL"}}}
	notifier := &failingNotifier{}

	if _, err := newTestAggregator(platform, snaps, riders, notifier, tz).Run(context.Background(), testDate, true); err != nil {
		t.Fatalf("notification failure must not fail the run: %v", err)
	}
	if len(snaps.inserted) != 1 {
		t.Fatal("snapshot must be persisted before posting is attempted")
	}
	if notifier.sends == 0 {
		t.Fatal("expected at least one post attempt")
	}
}
