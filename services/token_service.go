package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rideBoardAPI/internal/token"
)

// TokenService stores OAuth token pairs in the api_tokens table. Rows are
// append-only; Latest always resolves the most recently created pair.
type TokenService struct {
	db *pgxpool.Pool
}

func NewTokenService(db *pgxpool.Pool) *TokenService {
	return &TokenService{db: db}
}

func (s *TokenService) Latest(ctx context.Context) (*token.Record, error) {
	query := `
	SELECT id, access_token, refresh_token, expires_at, created_at
	FROM api_tokens
	ORDER BY created_at DESC, id DESC
	LIMIT 1
	`

	rec := &token.Record{}
	err := s.db.QueryRow(ctx, query).Scan(
		&rec.ID,
		&rec.AccessToken,
		&rec.RefreshToken,
		&rec.ExpiresAt,
		&rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("no stored api token")
		}
		return nil, fmt.Errorf("failed to load token: %w", err)
	}

	return rec, nil
}

func (s *TokenService) Save(ctx context.Context, rec *token.Record) error {
	query := `
	INSERT INTO api_tokens (access_token, refresh_token, expires_at, created_at)
	VALUES ($1, $2, $3, $4)
	RETURNING id
	`

	rec.CreatedAt = time.Now()
	err := s.db.QueryRow(ctx, query, rec.AccessToken, rec.RefreshToken, rec.ExpiresAt, rec.CreatedAt).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}
