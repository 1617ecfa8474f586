package leaderboard

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/quizrally/sessioncore/internal/game"
	"github.com/quizrally/sessioncore/internal/game/session"
	ws "github.com/quizrally/sessioncore/pkg/http/ws"
)

const defaultChannel = "lb:updates"

// Publisher pushes ranked leaderboard snapshots onto a Redis Pub/Sub
// channel whenever a game's scores change. Every API replica runs a
// Broadcaster consuming the same channel, so an update lands on clients
// regardless of which replica accepted the submission.
type Publisher struct {
	redis   *redis.Client
	store   *session.Store
	channel string
	topN    int
	logger  zerolog.Logger
}

func NewPublisher(redisClient *redis.Client, store *session.Store, channel string, topN int, logger zerolog.Logger) *Publisher {
	if channel == "" {
		channel = defaultChannel
	}
	if topN <= 0 {
		topN = 50
	}
	return &Publisher{
		redis:   redisClient,
		store:   store,
		channel: channel,
		topN:    topN,
		logger:  logger.With().Str("component", "leaderboard_publisher").Logger(),
	}
}

// PublishScoreUpdate snapshots the game's leaderboard and publishes it.
func (p *Publisher) PublishScoreUpdate(ctx context.Context, gameCode string) error {
	entries, err := p.store.Snapshot(ctx, gameCode, p.topN)
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", gameCode, err)
	}

	payload := ws.LeaderboardUpdatePayload{
		GameCode: gameCode,
		Top:      toWSEntries(entries),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal leaderboard update: %w", err)
	}

	if err := p.redis.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("publish leaderboard update: %w", err)
	}
	p.logger.Debug().Str("game_code", gameCode).Int("entries", len(entries)).Msg("leaderboard update published")
	return nil
}

func toWSEntries(entries []game.LeaderboardEntry) []ws.LeaderboardEntry {
	result := make([]ws.LeaderboardEntry, len(entries))
	for i, e := range entries {
		result[i] = ws.LeaderboardEntry{
			Rank:     e.Rank,
			UserID:   e.UserID.String(),
			Username: e.Username,
			Avatar:   e.Avatar,
			Score:    e.Score,
		}
	}
	return result
}
