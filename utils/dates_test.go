package utils

import (
	"testing"
	"time"
)

func TestValidateDate(t *testing.T) {
	valid := []string{"2024-06-01", "1999-01-31", "2024-02-29"}
	for _, d := range valid {
		if err := ValidateDate(d); err != nil {
			t.Errorf("ValidateDate(%q) = %v, want nil", d, err)
		}
	}

	invalid := []string{
		"2024-13-45",
		"2023-02-29",
		"2024-6-01",
		"06-01-2024",
		"2024-06-01T00:00:00Z",
		"yesterday",
		"",
	}
	for _, d := range invalid {
		if err := ValidateDate(d); err == nil {
			t.Errorf("ValidateDate(%q) = nil, want error", d)
		}
	}
}

func TestDateWindowFor(t *testing.T) {
	tz, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Fatal(err)
	}

	w, err := DateWindowFor("2024-06-01", tz)
	if err != nil {
		t.Fatal(err)
	}

	wantDayStart := time.Date(2024, 6, 1, 0, 0, 0, 0, tz)
	if !w.DayStart.Equal(wantDayStart) {
		t.Errorf("DayStart = %v, want %v", w.DayStart, wantDayStart)
	}
	if !w.DayEnd.Equal(wantDayStart.AddDate(0, 0, 1)) {
		t.Errorf("DayEnd = %v, want next midnight", w.DayEnd)
	}

	// Class starts at 09:00; the lookback reaches 12 hours before that.
	wantLookback := time.Date(2024, 5, 31, 21, 0, 0, 0, tz)
	if !w.LookbackStart.Equal(wantLookback) {
		t.Errorf("LookbackStart = %v, want %v", w.LookbackStart, wantLookback)
	}

	wantLookahead := time.Date(2024, 6, 2, 9, 0, 0, 0, tz)
	if !w.LookaheadEnd.Equal(wantLookahead) {
		t.Errorf("LookaheadEnd = %v, want %v", w.LookaheadEnd, wantLookahead)
	}
}

func TestDateWindowForRejectsBadDate(t *testing.T) {
	if _, err := DateWindowFor("2024-13-45", time.UTC); err == nil {
		t.Fatal("expected error for impossible date")
	}
}

func TestDateWindowContains(t *testing.T) {
	w, err := DateWindowFor("2024-06-01", time.UTC)
	if err != nil {
		t.Fatal(err)
	}

	inside := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC).Unix()
	if !w.Contains(inside) {
		t.Error("noon on the target date should be inside the window")
	}

	lookback := time.Date(2024, 5, 31, 22, 0, 0, 0, time.UTC).Unix()
	if !w.Contains(lookback) {
		t.Error("late evening before the target date should be inside the lookback")
	}

	before := time.Date(2024, 5, 31, 20, 0, 0, 0, time.UTC).Unix()
	if w.Contains(before) {
		t.Error("instant before the lookback should be outside")
	}

	after := time.Date(2024, 6, 2, 9, 0, 0, 0, time.UTC).Unix()
	if w.Contains(after) {
		t.Error("the lookahead end is exclusive")
	}
}
