package workout

import (
	"math"
	"time"
)

const (
	StatusComplete     = "COMPLETE"
	MetricsTypeCycling = "cycling"

	// NullRideID is the placeholder ride the platform attaches to freestyle
	// sessions. It never appears on a leaderboard.
	NullRideID = "00000000000000000000000000000000"
)

// Workout is one completed session as returned by the platform API.
type Workout struct {
	ID                        string  `json:"id"`
	UserID                    string  `json:"user_id"`
	StartTime                 int64   `json:"start_time"`
	EndTime                   int64   `json:"end_time"`
	Status                    string  `json:"status"`
	MetricsType               string  `json:"metrics_type"`
	FitnessDiscipline         string  `json:"fitness_discipline"`
	Timezone                  string  `json:"timezone"`
	TotalWork                 float64 `json:"total_work"`
	IsTotalWorkPersonalRecord bool    `json:"is_total_work_personal_record"`
	Ride                      *Ride   `json:"ride"`
}

// Ride is the class/video a workout was recorded against.
type Ride struct {
	ID                 string `json:"id"`
	Title              string `json:"title"`
	Description        string `json:"description"`
	ImageURL           string `json:"image_url"`
	ScheduledStartTime int64  `json:"scheduled_start_time"`
}

// IsValid reports whether a workout counts at all: completed, on a bike,
// and with a real duration.
func (w *Workout) IsValid() bool {
	return w.Status == StatusComplete &&
		w.MetricsType == MetricsTypeCycling &&
		w.EndTime > w.StartTime
}

// DurationMinutes is the workout length in whole minutes, rounded per workout.
func (w *Workout) DurationMinutes() int {
	return int(math.Round(float64(w.EndTime-w.StartTime) / 60.0))
}

// LocalDate returns the calendar date the workout happened on in the rider's
// own recorded timezone. Falls back to UTC if the platform sent a zone name
// the host doesn't know.
func (w *Workout) LocalDate() string {
	loc, err := time.LoadLocation(w.Timezone)
	if err != nil {
		loc = time.UTC
	}
	return time.Unix(w.StartTime, 0).In(loc).Format("2006-01-02")
}

// PerformanceDetail is the per-workout metrics summary from the
// performance_graph endpoint.
type PerformanceDetail struct {
	AverageSummaries []Summary    `json:"average_summaries"`
	Summaries        []Summary    `json:"summaries"`
	EffortZones      *EffortZones `json:"effort_zones"`
}

type Summary struct {
	Slug  string  `json:"slug"`
	Value float64 `json:"value"`
}

type EffortZones struct {
	TotalEffortPoints      float64        `json:"total_effort_points"`
	HeartRateZoneDurations map[string]int `json:"heart_rate_zone_durations"`
}

func (p *PerformanceDetail) AvgCadence() float64 {
	return summaryValue(p.AverageSummaries, "avg_cadence")
}

func (p *PerformanceDetail) AvgResistance() float64 {
	return summaryValue(p.AverageSummaries, "avg_resistance")
}

func (p *PerformanceDetail) Distance() float64 {
	return summaryValue(p.Summaries, "distance")
}

func summaryValue(summaries []Summary, slug string) float64 {
	for _, s := range summaries {
		if s.Slug == slug {
			return s.Value
		}
	}
	return 0
}
