package session

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/quizrally/sessioncore/internal/game"
)

// Snapshot returns a point-in-time, read-only copy of the global ranked
// leaderboard for a game. Deferred attempts in play never appear here: they
// only have attempt records until finalization merges them.
//
// Ordering is deterministic: score descending, then earliest last score
// change (who got there first wins the tie), then user ID.
func (s *Store) Snapshot(ctx context.Context, gameCode string, limit int) ([]game.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	zKey := game.LeaderboardKey(gameCode)
	results, err := s.redis.ZRevRangeWithScores(ctx, zKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("fetch leaderboard %s: %w", zKey, err)
	}

	type rankedEntry struct {
		entry       game.LeaderboardEntry
		lastScoreMs int64
	}

	ranked := make([]rankedEntry, 0, len(results))
	for _, z := range results {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		userID, err := uuid.Parse(member)
		if err != nil {
			s.logger.Warn().Str("member", member).Msg("skipping malformed leaderboard member")
			continue
		}
		meta, err := s.redis.HGetAll(ctx, game.PlayerKey(gameCode, userID)).Result()
		if err != nil {
			return nil, fmt.Errorf("read player meta %s: %w", member, err)
		}
		ranked = append(ranked, rankedEntry{
			entry: game.LeaderboardEntry{
				UserID:   userID,
				Username: meta["username"],
				Avatar:   meta["avatar"],
				Score:    z.Score,
			},
			lastScoreMs: parseInt(meta["last_score_at"]),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].entry.Score != ranked[j].entry.Score {
			return ranked[i].entry.Score > ranked[j].entry.Score
		}
		if ranked[i].lastScoreMs != ranked[j].lastScoreMs {
			return ranked[i].lastScoreMs < ranked[j].lastScoreMs
		}
		return ranked[i].entry.UserID.String() < ranked[j].entry.UserID.String()
	})

	entries := make([]game.LeaderboardEntry, len(ranked))
	for i, r := range ranked {
		r.entry.Rank = i + 1
		entries[i] = r.entry
	}
	return entries, nil
}

// ParticipantView synthesizes a single-entry leaderboard from the caller's
// own attempt record. This is what a deferred player sees during play: their
// running score and nothing about anyone else's in-progress attempts.
func (s *Store) ParticipantView(ctx context.Context, scope game.Scope) ([]game.LeaderboardEntry, error) {
	rec, err := s.Attempt(ctx, scope)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return []game.LeaderboardEntry{}, nil
	}
	return []game.LeaderboardEntry{{
		Rank:     1,
		UserID:   rec.UserID,
		Username: rec.Username,
		Avatar:   rec.Avatar,
		Score:    rec.Score,
	}}, nil
}
