package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rideBoardAPI/internal/cyclist"
)

// CyclistService maintains the cyclists table: the tracked-rider roster plus
// each rider's rolling stats.
type CyclistService struct {
	db *pgxpool.Pool
}

func NewCyclistService(db *pgxpool.Pool) *CyclistService {
	return &CyclistService{db: db}
}

// List returns the full roster. The aggregator iterates this rather than
// re-resolving tag membership on every run.
func (s *CyclistService) List(ctx context.Context) ([]*cyclist.Cyclist, error) {
	query := `
	SELECT user_id, username, avatar_url, first_ride, total_rides, highest_output
	FROM cyclists
	ORDER BY username
	`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list cyclists: %w", err)
	}
	defer rows.Close()

	var all []*cyclist.Cyclist
	for rows.Next() {
		c := &cyclist.Cyclist{}
		if err := rows.Scan(&c.UserID, &c.Username, &c.AvatarURL, &c.FirstRide, &c.TotalRides, &c.HighestOutput); err != nil {
			return nil, fmt.Errorf("failed to scan cyclist: %w", err)
		}
		all = append(all, c)
	}
	return all, rows.Err()
}

func (s *CyclistService) Get(ctx context.Context, username string) (*cyclist.Cyclist, error) {
	query := `
	SELECT user_id, username, avatar_url, first_ride, total_rides, highest_output
	FROM cyclists
	WHERE username = $1
	`

	c := &cyclist.Cyclist{}
	err := s.db.QueryRow(ctx, query, username).Scan(&c.UserID, &c.Username, &c.AvatarURL, &c.FirstRide, &c.TotalRides, &c.HighestOutput)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("cyclist not found")
		}
		return nil, fmt.Errorf("failed to get cyclist: %w", err)
	}
	return c, nil
}

// UpsertMember adds or refreshes a roster row without touching ride stats.
// Used by the tag sync job.
func (s *CyclistService) UpsertMember(ctx context.Context, userID, username string, avatarURL *string) error {
	query := `
	INSERT INTO cyclists (user_id, username, avatar_url, total_rides, highest_output)
	VALUES ($1, $2, $3, 0, 0)
	ON CONFLICT (user_id) DO UPDATE SET
		username = EXCLUDED.username,
		avatar_url = COALESCE(EXCLUDED.avatar_url, cyclists.avatar_url)
	`

	if _, err := s.db.Exec(ctx, query, userID, username, avatarURL); err != nil {
		return fmt.Errorf("failed to upsert cyclist %s: %w", username, err)
	}
	return nil
}

// AddRide folds one qualifying ride into a rider's rolling stats. Each call
// increments total_rides by one; highest_output only ever moves up, and only
// for a positive new value; first_ride sticks at the earliest date seen.
func (s *CyclistService) AddRide(ctx context.Context, userID, username string, avatarURL *string, rideDate string, output float64) error {
	query := `
	INSERT INTO cyclists (user_id, username, avatar_url, first_ride, total_rides, highest_output)
	VALUES ($1, $2, $3, $4, 1, GREATEST($5, 0))
	ON CONFLICT (user_id) DO UPDATE SET
		username = EXCLUDED.username,
		avatar_url = COALESCE(EXCLUDED.avatar_url, cyclists.avatar_url),
		total_rides = cyclists.total_rides + 1,
		highest_output = CASE
			WHEN EXCLUDED.highest_output > cyclists.highest_output THEN EXCLUDED.highest_output
			ELSE cyclists.highest_output
		END,
		first_ride = COALESCE(cyclists.first_ride, EXCLUDED.first_ride)
	`

	if _, err := s.db.Exec(ctx, query, userID, username, avatarURL, rideDate, output); err != nil {
		return fmt.Errorf("failed to record ride for %s: %w", username, err)
	}
	return nil
}
