package leaderboard

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/quizrally/sessioncore/internal/game/session"
)

// Snapshot is one persisted leaderboard capture.
type Snapshot struct {
	GameCode    string
	GeneratedAt time.Time
	Entries     []byte // ranked entries as JSON
	SourceHash  string
}

// SnapshotSink persists captures (implemented by the Postgres repository).
type SnapshotSink interface {
	InsertSnapshot(ctx context.Context, snap Snapshot) error
}

// SnapshotWorker periodically persists Redis leaderboards into Postgres so
// a flushed or evicted Redis does not erase tournament history.
type SnapshotWorker struct {
	store    *session.Store
	sink     SnapshotSink
	logger   zerolog.Logger
	interval time.Duration
	topN     int
	now      func() time.Time
}

func NewSnapshotWorker(store *session.Store, sink SnapshotSink, interval time.Duration, topN int, logger zerolog.Logger) *SnapshotWorker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if topN <= 0 {
		topN = 100
	}
	return &SnapshotWorker{
		store:    store,
		sink:     sink,
		logger:   logger.With().Str("component", "leaderboard_snapshot_worker").Logger(),
		interval: interval,
		topN:     topN,
		now:      time.Now,
	}
}

// Run blocks until context cancellation.
func (w *SnapshotWorker) Run(ctx context.Context) error {
	if w.store == nil || w.sink == nil {
		return nil
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// run immediately
	w.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *SnapshotWorker) tick(ctx context.Context) {
	codes, err := w.store.ActiveGames(ctx)
	if err != nil {
		w.logger.Warn().Err(err).Msg("failed to list active games")
		return
	}
	for _, code := range codes {
		if err := w.snapshotGame(ctx, code); err != nil {
			w.logger.Warn().Err(err).Str("game_code", code).Msg("snapshot failed")
		}
	}
}

func (w *SnapshotWorker) snapshotGame(ctx context.Context, gameCode string) error {
	entries, err := w.store.Snapshot(ctx, gameCode, w.topN)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	data, err := json.Marshal(toWSEntries(entries))
	if err != nil {
		return err
	}
	sourceHash := sha256.Sum256(data)
	generatedAt := w.now().UTC()

	if err := w.sink.InsertSnapshot(ctx, Snapshot{
		GameCode:    gameCode,
		GeneratedAt: generatedAt,
		Entries:     data,
		SourceHash:  hex.EncodeToString(sourceHash[:]),
	}); err != nil {
		return err
	}

	w.logger.Info().
		Str("game_code", gameCode).
		Int("entries", len(entries)).
		Time("generated_at", generatedAt).
		Msg("leaderboard snapshot persisted")
	return nil
}
