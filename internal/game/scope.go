package game

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrMissingAttempt rejects deferred scope construction without an attempt
// number. A deferred timer or session without an attempt identity is a
// programming error, not a recoverable state.
var ErrMissingAttempt = errors.New("deferred scope requires an attempt number")

// TimerPolicy decides how timer state is keyed for a scope. It is selected
// once at scope construction so call sites never re-check the mode.
type TimerPolicy int

const (
	// TimerShared keys the timer per (game, question): one clock for all
	// participants of a live game.
	TimerShared TimerPolicy = iota
	// TimerPerAttempt keys the timer per (game, question, user, attempt):
	// each deferred replay runs its own clock.
	TimerPerAttempt
	// TimerNone disables timers entirely (practice).
	TimerNone
)

// Scope is the composite identity disambiguating timers, answers and
// session records. Construct via LiveScope, DeferredScope or PracticeScope.
type Scope struct {
	GameCode   string
	QuestionID string
	Mode       Mode
	UserID     uuid.UUID
	Attempt    int
	policy     TimerPolicy
}

// LiveScope identifies a shared-clock timer/session for quiz and live
// tournament games.
func LiveScope(gameCode, questionID string, mode Mode) Scope {
	return Scope{
		GameCode:   gameCode,
		QuestionID: questionID,
		Mode:       mode,
		policy:     TimerShared,
	}
}

// DeferredScope identifies one participant-attempt of a deferred tournament.
// Fails when attempt < 1: deferred keys always include an attempt number.
func DeferredScope(gameCode string, userID uuid.UUID, attempt int, questionID string) (Scope, error) {
	if attempt < 1 {
		return Scope{}, fmt.Errorf("scope %s/%s: %w", gameCode, questionID, ErrMissingAttempt)
	}
	return Scope{
		GameCode:   gameCode,
		QuestionID: questionID,
		Mode:       ModeDeferredTournament,
		UserID:     userID,
		Attempt:    attempt,
		policy:     TimerPerAttempt,
	}, nil
}

// PracticeScope carries identity for feedback-only play; all timer and
// persistence operations on it are no-ops.
func PracticeScope(gameCode, questionID string, userID uuid.UUID) Scope {
	return Scope{
		GameCode:   gameCode,
		QuestionID: questionID,
		Mode:       ModePractice,
		UserID:     userID,
		policy:     TimerNone,
	}
}

// Policy returns the timer policy fixed at construction.
func (s Scope) Policy() TimerPolicy { return s.policy }

// TimerKey returns the Redis key the timer state lives under.
// Layout is a load-bearing contract for store inspection tooling:
//
//	game:{code}:timer:{questionID}
//	game:{code}:timer:{questionID}:user:{userID}:attempt:{n}
func (s Scope) TimerKey() string {
	base := fmt.Sprintf("game:%s:timer:%s", s.GameCode, s.QuestionID)
	if s.policy == TimerPerAttempt {
		return fmt.Sprintf("%s:user:%s:attempt:%d", base, s.UserID, s.Attempt)
	}
	return base
}

// AnswerKey returns the Redis hash holding submitted answers for this
// question, namespaced by attempt for deferred scopes so live and deferred
// submissions never collide. Hash fields are user IDs.
func (s Scope) AnswerKey() string {
	base := fmt.Sprintf("game:%s:answers:%s", s.GameCode, s.QuestionID)
	if s.policy == TimerPerAttempt {
		return fmt.Sprintf("%s:attempt:%d", base, s.Attempt)
	}
	return base
}

// SessionKey returns the Redis hash holding the deferred attempt record.
func (s Scope) SessionKey() string {
	return fmt.Sprintf("game:%s:session:%s:attempt:%d", s.GameCode, s.UserID, s.Attempt)
}

// MetaKey returns the hash holding a game's metadata (mode, question count).
func MetaKey(gameCode string) string {
	return fmt.Sprintf("game:%s:meta", gameCode)
}

// LeaderboardKey returns the global ranked ZSET for a game code.
func LeaderboardKey(gameCode string) string {
	return fmt.Sprintf("game:%s:leaderboard", gameCode)
}

// PlayerKey returns the per-participant metadata hash for a game code.
func PlayerKey(gameCode string, userID uuid.UUID) string {
	return fmt.Sprintf("game:%s:player:%s", gameCode, userID)
}
