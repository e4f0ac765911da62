package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rideBoardAPI/internal/leaderboard"
)

// SnapshotService stores finished leaderboards. Inserts are append-only: a
// re-run of the same date writes a second row and readers take the newest.
type SnapshotService struct {
	db *pgxpool.Pool
}

func NewSnapshotService(db *pgxpool.Pool) *SnapshotService {
	return &SnapshotService{db: db}
}

func (s *SnapshotService) Insert(ctx context.Context, snap *leaderboard.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	query := `
	INSERT INTO leaderboards (date, json, created_at)
	VALUES ($1, $2, NOW())
	`

	if _, err := s.db.Exec(ctx, query, snap.Date, payload); err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}

	log.Printf("Stored leaderboard snapshot for %s (%d rides, %d riders)", snap.Date, len(snap.Rides), len(snap.Totals))
	return nil
}

// LatestForDate returns the most recent snapshot stored for a date.
func (s *SnapshotService) LatestForDate(ctx context.Context, date string) (*leaderboard.Snapshot, error) {
	query := `
	SELECT json
	FROM leaderboards
	WHERE date = $1
	ORDER BY id DESC
	LIMIT 1
	`
	return s.scanSnapshot(s.db.QueryRow(ctx, query, date))
}

// Latest returns the most recently stored snapshot of any date.
func (s *SnapshotService) Latest(ctx context.Context) (*leaderboard.Snapshot, error) {
	query := `
	SELECT json
	FROM leaderboards
	ORDER BY id DESC
	LIMIT 1
	`
	return s.scanSnapshot(s.db.QueryRow(ctx, query))
}

// ListDates returns every date that has at least one snapshot, newest first.
func (s *SnapshotService) ListDates(ctx context.Context) ([]string, error) {
	query := `
	SELECT DISTINCT date
	FROM leaderboards
	ORDER BY date DESC
	`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshot dates: %w", err)
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot date: %w", err)
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

func (s *SnapshotService) scanSnapshot(row pgx.Row) (*leaderboard.Snapshot, error) {
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("snapshot not found")
		}
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	snap := &leaderboard.Snapshot{}
	if err := json.Unmarshal(payload, snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return snap, nil
}
