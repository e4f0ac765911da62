package leaderboard

// WorkoutEntry is one rider's result on a single ride's leaderboard.
type WorkoutEntry struct {
	Username        string         `json:"username"`
	TotalWork       float64        `json:"total_work"`
	IsNewPB         bool           `json:"is_new_pb"`
	AvgCadence      float64        `json:"avg_cadence"`
	AvgResistance   float64        `json:"avg_resistance"`
	Distance        float64        `json:"distance"`
	DurationMinutes int            `json:"duration"`
	EffortPoints    float64        `json:"effort_points"`
	HeartRateZones  map[string]int `json:"heart_rate_zones,omitempty"`
}

// RideAggregate is one ride's leaderboard for the day: identity fields copied
// from the platform ride plus every qualifying entry, one per rider.
type RideAggregate struct {
	ID                 string         `json:"id"`
	Title              string         `json:"title"`
	Description        string         `json:"description"`
	ImageURL           string         `json:"image_url"`
	ScheduledStartTime int64          `json:"scheduled_start_time"`
	Workouts           []WorkoutEntry `json:"workouts"`
}

// UserTotal is a rider's roll-up across all their qualifying workouts on the
// target date.
type UserTotal struct {
	Username        string  `json:"username"`
	Output          float64 `json:"output"`
	Rides           int     `json:"rides"`
	DurationMinutes int     `json:"duration"`
}

// PBRecord marks one workout the platform flagged as a new personal best.
type PBRecord struct {
	TotalWork       float64 `json:"total_work"`
	DurationMinutes int     `json:"duration"`
}

// Snapshot is the persisted leaderboard result for one calendar date.
// Inserts are append-only; readers pick the most recent row for a date.
type Snapshot struct {
	Date          string                    `json:"date"`
	Rides         map[string]*RideAggregate `json:"rides"`
	Totals        map[string]*UserTotal     `json:"totals"`
	PlayersWhoPBd map[string][]PBRecord     `json:"playersWhoPbd"`
}

func NewSnapshot(date string) *Snapshot {
	return &Snapshot{
		Date:          date,
		Rides:         make(map[string]*RideAggregate),
		Totals:        make(map[string]*UserTotal),
		PlayersWhoPBd: make(map[string][]PBRecord),
	}
}
