package question

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/quizrally/sessioncore/internal/game"
)

// ErrNotFound signals a question identifier with no stored definition.
var ErrNotFound = errors.New("question not found")

const defaultCacheTTL = 10 * time.Minute

// Loader fetches question definitions from the backing store.
type Loader interface {
	LoadDefinition(ctx context.Context, questionID string) (game.Question, error)
}

// Source serves question definitions from a Redis read-through cache in
// front of a Loader. Concurrent misses for the same question are collapsed
// into a single load.
type Source struct {
	client *redis.Client
	loader Loader
	ttl    time.Duration
	sf     singleflight.Group
	logger zerolog.Logger
}

func NewSource(client *redis.Client, loader Loader, ttl time.Duration, logger zerolog.Logger) *Source {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Source{
		client: client,
		loader: loader,
		ttl:    ttl,
		logger: logger.With().Str("component", "question_source").Logger(),
	}
}

func cacheKey(questionID string) string {
	return "question:def:" + questionID
}

// Definition returns the scoring definition for one question.
func (s *Source) Definition(ctx context.Context, questionID string) (game.Question, error) {
	if q, ok := s.cached(ctx, questionID); ok {
		return q, nil
	}

	result, err, _ := s.sf.Do(questionID, func() (interface{}, error) {
		// Re-check in case another goroutine filled the cache.
		if q, ok := s.cached(ctx, questionID); ok {
			return q, nil
		}

		q, err := s.loader.LoadDefinition(ctx, questionID)
		if err != nil {
			return game.Question{}, err
		}

		data, err := json.Marshal(q)
		if err != nil {
			return game.Question{}, fmt.Errorf("marshal question %s: %w", questionID, err)
		}
		if err := s.client.Set(ctx, cacheKey(questionID), data, s.ttl).Err(); err != nil {
			// Cache write failures degrade to loader reads.
			s.logger.Warn().Err(err).Str("question_id", questionID).Msg("failed to cache question")
		}
		return q, nil
	})
	if err != nil {
		return game.Question{}, err
	}
	return result.(game.Question), nil
}

func (s *Source) cached(ctx context.Context, questionID string) (game.Question, bool) {
	data, err := s.client.Get(ctx, cacheKey(questionID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Str("question_id", questionID).Msg("question cache read failed")
		}
		return game.Question{}, false
	}
	var q game.Question
	if err := json.Unmarshal(data, &q); err != nil {
		return game.Question{}, false
	}
	return q, true
}

// Invalidate drops a cached definition, forcing the next read through the
// loader. Used when an editor changes a question mid-session.
func (s *Source) Invalidate(ctx context.Context, questionID string) error {
	return s.client.Del(ctx, cacheKey(questionID)).Err()
}
