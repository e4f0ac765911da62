package cyclist

import "time"

// Cyclist is the mutable per-rider roll-up the aggregator maintains across
// runs. It doubles as the tracked-rider roster: a user is part of the nightly
// batch iff they have a row here.
type Cyclist struct {
	UserID        string     `json:"user_id" db:"user_id"`
	Username      string     `json:"username" db:"username"`
	AvatarURL     *string    `json:"avatar_url" db:"avatar_url"`
	FirstRide     *time.Time `json:"first_ride" db:"first_ride"`
	TotalRides    int        `json:"total_rides" db:"total_rides"`
	HighestOutput float64    `json:"highest_output" db:"highest_output"`
}
