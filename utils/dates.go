package utils

import (
	"fmt"
	"regexp"
	"time"
)

// ClassStartHour is the hour (in the reference timezone) the community's
// daily class is streamed. The fetch window is anchored on it so the same
// class counts for riders who take it on their own schedule.
const ClassStartHour = 9

// LookbackHours widens the window backwards so early-timezone riders who took
// yesterday's class before the stream still land in it.
const LookbackHours = 12

var dateFormat = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ValidateDate accepts only a real calendar date in strict YYYY-MM-DD form.
func ValidateDate(date string) error {
	if !dateFormat.MatchString(date) {
		return fmt.Errorf("invalid date %q: expected YYYY-MM-DD", date)
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return fmt.Errorf("invalid date %q: %w", date, err)
	}
	return nil
}

// DateWindow is the set of boundaries one aggregation run works with.
// DayStart/DayEnd bound the target date itself; LookbackStart/LookaheadEnd
// bound the wider fetch range used for ride matching.
type DateWindow struct {
	DayStart      time.Time
	DayEnd        time.Time
	LookbackStart time.Time
	LookaheadEnd  time.Time
}

// DateWindowFor computes the run window for a target date in the reference
// timezone: midnight-to-midnight for the date, a lookback starting
// LookbackHours before the class start hour, and a lookahead running to the
// next day's class start.
func DateWindowFor(date string, tz *time.Location) (DateWindow, error) {
	if err := ValidateDate(date); err != nil {
		return DateWindow{}, err
	}

	day, err := time.ParseInLocation("2006-01-02", date, tz)
	if err != nil {
		return DateWindow{}, fmt.Errorf("parse date %q: %w", date, err)
	}

	dayStart := day
	dayEnd := day.AddDate(0, 0, 1)

	return DateWindow{
		DayStart:      dayStart,
		DayEnd:        dayEnd,
		LookbackStart: dayStart.Add((ClassStartHour - LookbackHours) * time.Hour),
		LookaheadEnd:  dayEnd.Add(ClassStartHour * time.Hour),
	}, nil
}

// Contains reports whether an epoch-seconds instant falls inside the wider
// lookback/lookahead range.
func (w DateWindow) Contains(epochSeconds int64) bool {
	t := time.Unix(epochSeconds, 0)
	return !t.Before(w.LookbackStart) && t.Before(w.LookaheadEnd)
}

// YesterdayIn returns yesterday's date string in the given timezone, the
// default target when the trigger doesn't name one.
func YesterdayIn(tz *time.Location) string {
	return time.Now().In(tz).AddDate(0, 0, -1).Format("2006-01-02")
}
