package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/quizrally/sessioncore/internal/game/session"
)

// ErrNotFound signals a missing durable result row.
var ErrNotFound = errors.New("result not found")

// dbtx is the subset of pgxpool.Pool the repositories use.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// GameResult is one user's durable, best-attempt result for a game.
type GameResult struct {
	GameCode    string
	UserID      uuid.UUID
	Attempt     int
	Username    string
	Avatar      string
	Score       float64
	Answered    int
	CompletedAt time.Time
}

// ResultsRepository persists finalized attempt results.
type ResultsRepository struct {
	db dbtx
}

// NewResultsRepository constructs a results repository.
func NewResultsRepository(db dbtx) *ResultsRepository {
	return &ResultsRepository{db: db}
}

const mergeAttemptQuery = `
INSERT INTO game_results (game_code, user_id, attempt, username, avatar, score, answered, completed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (game_code, user_id) DO UPDATE SET
	attempt      = EXCLUDED.attempt,
	username     = EXCLUDED.username,
	avatar       = EXCLUDED.avatar,
	score        = EXCLUDED.score,
	answered     = EXCLUDED.answered,
	completed_at = EXCLUDED.completed_at
WHERE EXCLUDED.score > game_results.score`

// MergeAttempt folds a finalized attempt into the user's durable result.
// The best attempt wins: a lower or equal score leaves the stored row
// untouched, so replays can never make a result worse.
func (r *ResultsRepository) MergeAttempt(ctx context.Context, rec session.AttemptRecord) error {
	_, err := r.db.Exec(ctx, mergeAttemptQuery,
		rec.GameCode,
		rec.UserID,
		rec.Attempt,
		rec.Username,
		rec.Avatar,
		rec.Score,
		rec.Answered,
		time.UnixMilli(rec.LastScoreMs).UTC(),
	)
	if err != nil {
		return fmt.Errorf("merge attempt %s/%s: %w", rec.GameCode, rec.UserID, err)
	}
	return nil
}

const bestResultQuery = `
SELECT game_code, user_id, attempt, username, avatar, score, answered, completed_at
FROM game_results
WHERE game_code = $1 AND user_id = $2`

// BestResult returns the stored result for one user in one game.
func (r *ResultsRepository) BestResult(ctx context.Context, gameCode string, userID uuid.UUID) (GameResult, error) {
	var res GameResult
	err := r.db.QueryRow(ctx, bestResultQuery, gameCode, userID).Scan(
		&res.GameCode, &res.UserID, &res.Attempt, &res.Username, &res.Avatar,
		&res.Score, &res.Answered, &res.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return GameResult{}, fmt.Errorf("result %s/%s: %w", gameCode, userID, ErrNotFound)
		}
		return GameResult{}, fmt.Errorf("fetch result %s/%s: %w", gameCode, userID, err)
	}
	return res, nil
}

const listResultsQuery = `
SELECT game_code, user_id, attempt, username, avatar, score, answered, completed_at
FROM game_results
WHERE game_code = $1
ORDER BY score DESC, completed_at ASC`

// ListResults returns every durable result for a game, best first.
func (r *ResultsRepository) ListResults(ctx context.Context, gameCode string) ([]GameResult, error) {
	rows, err := r.db.Query(ctx, listResultsQuery, gameCode)
	if err != nil {
		return nil, fmt.Errorf("list results %s: %w", gameCode, err)
	}
	defer rows.Close()

	var results []GameResult
	for rows.Next() {
		var res GameResult
		if err := rows.Scan(
			&res.GameCode, &res.UserID, &res.Attempt, &res.Username, &res.Avatar,
			&res.Score, &res.Answered, &res.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list results %s: %w", gameCode, err)
	}
	return results, nil
}
