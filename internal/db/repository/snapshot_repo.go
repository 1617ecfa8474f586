package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/quizrally/sessioncore/internal/leaderboard"
)

// SnapshotRepository persists periodic leaderboard captures.
type SnapshotRepository struct {
	db dbtx
}

var _ leaderboard.SnapshotSink = (*SnapshotRepository)(nil)

// NewSnapshotRepository constructs a snapshot repository.
func NewSnapshotRepository(db dbtx) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

const insertSnapshotQuery = `
INSERT INTO leaderboard_snapshots (game_code, generated_at, entries, source_hash)
VALUES ($1, $2, $3, $4)`

// InsertSnapshot stores one capture.
func (r *SnapshotRepository) InsertSnapshot(ctx context.Context, snap leaderboard.Snapshot) error {
	_, err := r.db.Exec(ctx, insertSnapshotQuery,
		snap.GameCode, snap.GeneratedAt, snap.Entries, snap.SourceHash,
	)
	if err != nil {
		return fmt.Errorf("insert snapshot %s: %w", snap.GameCode, err)
	}
	return nil
}

const latestSnapshotQuery = `
SELECT game_code, generated_at, entries, source_hash
FROM leaderboard_snapshots
WHERE game_code = $1
ORDER BY generated_at DESC
LIMIT 1`

// LatestSnapshot returns the most recent capture for a game.
func (r *SnapshotRepository) LatestSnapshot(ctx context.Context, gameCode string) (leaderboard.Snapshot, error) {
	var (
		snap        leaderboard.Snapshot
		generatedAt time.Time
	)
	err := r.db.QueryRow(ctx, latestSnapshotQuery, gameCode).Scan(
		&snap.GameCode, &generatedAt, &snap.Entries, &snap.SourceHash,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return leaderboard.Snapshot{}, fmt.Errorf("snapshot %s: %w", gameCode, ErrNotFound)
		}
		return leaderboard.Snapshot{}, fmt.Errorf("fetch snapshot %s: %w", gameCode, err)
	}
	snap.GeneratedAt = generatedAt
	return snap, nil
}
