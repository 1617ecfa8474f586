package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/quizrally/sessioncore/internal/game"
)

// ErrGameNotFound signals a game code with no registered metadata.
var ErrGameNotFound = errors.New("game not found")

// activeGamesKey indexes registered game codes for background jobs.
const activeGamesKey = "games:active"

// RegisterGame records a game's metadata so submissions can resolve the
// play mode and the per-question score base. Called when the out-of-scope
// gateway activates a game.
func (s *Store) RegisterGame(ctx context.Context, meta game.Metadata) error {
	if meta.GameCode == "" {
		return fmt.Errorf("register game: empty game code")
	}
	if meta.QuestionCount <= 0 {
		return fmt.Errorf("register game %s: question count must be positive", meta.GameCode)
	}
	key := game.MetaKey(meta.GameCode)
	if err := s.redis.HSet(ctx, key,
		"mode", string(meta.Mode),
		"question_count", meta.QuestionCount,
	).Err(); err != nil {
		return fmt.Errorf("register game %s: %w", meta.GameCode, err)
	}
	if s.ttl > 0 {
		if err := s.redis.Expire(ctx, key, s.ttl).Err(); err != nil {
			return fmt.Errorf("register game %s: %w", meta.GameCode, err)
		}
	}
	if err := s.redis.SAdd(ctx, activeGamesKey, meta.GameCode).Err(); err != nil {
		return fmt.Errorf("register game %s: %w", meta.GameCode, err)
	}
	return nil
}

// UnregisterGame drops a game from the active index. Its session keys are
// left to expire on their own TTLs.
func (s *Store) UnregisterGame(ctx context.Context, gameCode string) error {
	return s.redis.SRem(ctx, activeGamesKey, gameCode).Err()
}

// ActiveGames lists every registered game code.
func (s *Store) ActiveGames(ctx context.Context) ([]string, error) {
	codes, err := s.redis.SMembers(ctx, activeGamesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list active games: %w", err)
	}
	return codes, nil
}

// Metadata resolves a registered game.
func (s *Store) Metadata(ctx context.Context, gameCode string) (game.Metadata, error) {
	fields, err := s.redis.HGetAll(ctx, game.MetaKey(gameCode)).Result()
	if err != nil {
		return game.Metadata{}, fmt.Errorf("read game meta %s: %w", gameCode, err)
	}
	if len(fields) == 0 {
		return game.Metadata{}, fmt.Errorf("game %s: %w", gameCode, ErrGameNotFound)
	}
	return game.Metadata{
		GameCode:      gameCode,
		Mode:          game.Mode(fields["mode"]),
		QuestionCount: int(parseInt(fields["question_count"])),
	}, nil
}
