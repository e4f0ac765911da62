package services

import (
	"strings"
	"testing"

	"rideBoardAPI/internal/leaderboard"
)

func snapshotWithTotals(totals map[string]*leaderboard.UserTotal) *leaderboard.Snapshot {
	snap := leaderboard.NewSnapshot("2024-06-01")
	snap.Totals = totals
	return snap
}

func TestBuildMessagesEmptySnapshot(t *testing.T) {
	msgs := BuildMessages(leaderboard.NewSnapshot("2024-06-01"), 10)
	if len(msgs) != 0 {
		t.Fatalf("got %d messages for an empty snapshot, want 0", len(msgs))
	}
}

func TestRideMessageTruncatesAndRanks(t *testing.T) {
	snap := leaderboard.NewSnapshot("2024-06-01")
	ride := &leaderboard.RideAggregate{ID: "ride-1", Title: "30 min Climb", ImageURL: "https://img/x.png"}
	for i := 0; i < 12; i++ {
		ride.Workouts = append(ride.Workouts, leaderboard.WorkoutEntry{
			Username:  "rider" + string(rune('a'+i)),
			TotalWork: float64(300000 - i*10000),
		})
	}
	ride.Workouts[0].IsNewPB = true
	snap.Rides["ride-1"] = ride

	msgs := BuildMessages(snap, 10)
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 ride board", len(msgs))
	}

	embed := msgs[0].Embeds[0]
	if embed.Title != "30 min Climb" {
		t.Errorf("title = %q", embed.Title)
	}
	if embed.Thumbnail == nil || embed.Thumbnail.URL != "https://img/x.png" {
		t.Error("expected class art as thumbnail")
	}
	if len(embed.Fields) != 10 {
		t.Fatalf("got %d fields, want top 10 of 12", len(embed.Fields))
	}
	if embed.Fields[0].Name != "1st — ridera ⭐" {
		t.Errorf("first field name = %q", embed.Fields[0].Name)
	}
	if embed.Fields[1].Name != "2nd — riderb" {
		t.Errorf("second field name = %q", embed.Fields[1].Name)
	}
	if !strings.HasPrefix(embed.Fields[0].Value, "300.0 kJ") {
		t.Errorf("first field value = %q", embed.Fields[0].Value)
	}
	if msgs[0].AllowedMentions == nil || len(msgs[0].AllowedMentions.Parse) != 0 {
		t.Error("messages must suppress all mentions")
	}
}

func TestEnduranceMessageAggregates(t *testing.T) {
	snap := snapshotWithTotals(map[string]*leaderboard.UserTotal{
		"alice": {Username: "alice", Output: 700000, Rides: 2, DurationMinutes: 60},
		"bob":   {Username: "bob", Output: 500000, Rides: 1, DurationMinutes: 30},
	})

	msgs := BuildMessages(snap, 10)
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want endurance board only", len(msgs))
	}

	embed := msgs[0].Embeds[0]
	if embed.Title != "Endurance leaderboard — 2024-06-01" {
		t.Errorf("title = %q", embed.Title)
	}
	// 1.2 MJ combined crosses the megajoule switch; the 600 kJ average does not.
	if !strings.Contains(embed.Description, "Combined output: 1.20 MJ") {
		t.Errorf("description = %q, want MJ combined output", embed.Description)
	}
	if !strings.Contains(embed.Description, "Average: 600.0 kJ") {
		t.Errorf("description = %q, want kJ average", embed.Description)
	}
	if !strings.Contains(embed.Description, "Median: 1.5 rides") {
		t.Errorf("description = %q, want median 1.5", embed.Description)
	}

	if len(embed.Fields) != 2 {
		t.Fatalf("got %d fields", len(embed.Fields))
	}
	if embed.Fields[0].Name != "1st — alice" {
		t.Errorf("first field = %q", embed.Fields[0].Name)
	}
	if embed.Fields[0].Value != "700.0 kJ • 2 rides • 60 min" {
		t.Errorf("first value = %q", embed.Fields[0].Value)
	}
	if embed.Fields[1].Value != "500.0 kJ • 1 ride • 30 min" {
		t.Errorf("second value = %q, want singular ride", embed.Fields[1].Value)
	}
}

func TestEnduranceTiesBreakAlphabetically(t *testing.T) {
	snap := snapshotWithTotals(map[string]*leaderboard.UserTotal{
		"zoe":   {Username: "zoe", Output: 200000, Rides: 1},
		"alice": {Username: "alice", Output: 200000, Rides: 1},
		"mia":   {Username: "mia", Output: 250000, Rides: 1},
	})

	embed := BuildMessages(snap, 10)[0].Embeds[0]
	got := []string{embed.Fields[0].Name, embed.Fields[1].Name, embed.Fields[2].Name}
	want := []string{"1st — mia", "2nd — alice", "3rd — zoe"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ranking = %v, want %v", got, want)
		}
	}
}

func TestPBMessageOnlyWhenPBsExist(t *testing.T) {
	snap := snapshotWithTotals(map[string]*leaderboard.UserTotal{
		"alice": {Username: "alice", Output: 320000, Rides: 1, DurationMinutes: 30},
	})
	snap.PlayersWhoPBd["alice"] = []leaderboard.PBRecord{{TotalWork: 320000, DurationMinutes: 30}}

	msgs := BuildMessages(snap, 10)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want endurance + PB callout", len(msgs))
	}

	pb := msgs[1].Embeds[0]
	if pb.Title != "New personal bests! 🎉" {
		t.Errorf("title = %q", pb.Title)
	}
	if pb.Description != "**alice** — 320.0 kJ (30 min)" {
		t.Errorf("description = %q", pb.Description)
	}
}

func TestRideBoardsPostInScheduleOrder(t *testing.T) {
	snap := leaderboard.NewSnapshot("2024-06-01")
	snap.Rides["ride-late"] = &leaderboard.RideAggregate{
		ID: "ride-late", Title: "Evening", ScheduledStartTime: 2000,
		Workouts: []leaderboard.WorkoutEntry{{Username: "a", TotalWork: 1}},
	}
	snap.Rides["ride-early"] = &leaderboard.RideAggregate{
		ID: "ride-early", Title: "Morning", ScheduledStartTime: 1000,
		Workouts: []leaderboard.WorkoutEntry{{Username: "a", TotalWork: 1}},
	}

	msgs := BuildMessages(snap, 10)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages", len(msgs))
	}
	if msgs[0].Embeds[0].Title != "Morning" || msgs[1].Embeds[0].Title != "Evening" {
		t.Errorf("post order = [%s, %s], want schedule order",
			msgs[0].Embeds[0].Title, msgs[1].Embeds[0].Title)
	}
}
