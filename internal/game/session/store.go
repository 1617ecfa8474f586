package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/quizrally/sessioncore/internal/game"
)

// AnswerRecord is the raw persisted submission, kept for replay and audit.
type AnswerRecord struct {
	UserID        uuid.UUID   `json:"user_id"`
	Answer        game.Answer `json:"answer"`
	ElapsedMs     int64       `json:"elapsed_ms"`
	SubmittedAtMs int64       `json:"submitted_at_ms"`
	Correct       bool        `json:"correct"`
	Points        float64     `json:"points"`
}

// Outcome reports what one submission did to persisted state.
type Outcome struct {
	// Applied is false when a later submission already won the slot or the
	// attempt was sealed; the caller must treat that as "no score change",
	// not as a failure.
	Applied        bool
	PreviousPoints float64
	TotalScore     float64
}

// AttemptRecord is the per-(game, user, attempt) session record of a
// deferred tournament run.
type AttemptRecord struct {
	GameCode    string
	UserID      uuid.UUID
	Attempt     int
	Username    string
	Avatar      string
	Score       float64
	Answered    int
	IsComplete  bool
	CreatedAtMs int64
	LastScoreMs int64
}

// submitLiveScript is the single read-modify-write for a live submission:
// reject stale writes, overwrite the stored answer, move the global
// leaderboard by the score delta, and stamp tie-break metadata, all in one
// server-side step so concurrent submissions cannot double-count.
//
// Answer hashes carry two bookkeeping fields per user ({uid}:points and
// {uid}:at) next to the serialized record, so the script never parses JSON.
var submitLiveScript = redis.NewScript(`
local uid = ARGV[1]
local at = tonumber(redis.call("HGET", KEYS[1], uid .. ":at"))
if at and at > tonumber(ARGV[4]) then
  local total = redis.call("ZSCORE", KEYS[2], uid)
  if not total then total = "0" end
  local pts = redis.call("HGET", KEYS[1], uid .. ":points")
  if not pts then pts = "0" end
  return {0, pts, total}
end
local prev = tonumber(redis.call("HGET", KEYS[1], uid .. ":points")) or 0
redis.call("HSET", KEYS[1], uid, ARGV[2], uid .. ":points", ARGV[3], uid .. ":at", ARGV[4])
local delta = tonumber(ARGV[3]) - prev
local total = redis.call("ZINCRBY", KEYS[2], delta, uid)
redis.call("HSET", KEYS[3], "username", ARGV[5], "avatar", ARGV[6])
if delta ~= 0 then
  redis.call("HSET", KEYS[3], "last_score_at", ARGV[4])
end
if tonumber(ARGV[7]) > 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[7])
  redis.call("PEXPIRE", KEYS[2], ARGV[7])
  redis.call("PEXPIRE", KEYS[3], ARGV[7])
end
return {1, tostring(prev), total}
`)

// submitDeferredScript: same stale-write CAS against the attempt-scoped
// answer hash, but the score lands in the attempt record only; the global
// leaderboard is untouched during deferred play. Sealed attempts reject.
var submitDeferredScript = redis.NewScript(`
local uid = ARGV[1]
if redis.call("HGET", KEYS[2], "is_complete") == "1" then
  local score = redis.call("HGET", KEYS[2], "score")
  if not score then score = "0" end
  return {0, "0", score}
end
local at = tonumber(redis.call("HGET", KEYS[1], uid .. ":at"))
if at and at > tonumber(ARGV[4]) then
  local score = redis.call("HGET", KEYS[2], "score")
  if not score then score = "0" end
  local pts = redis.call("HGET", KEYS[1], uid .. ":points")
  if not pts then pts = "0" end
  return {0, pts, score}
end
local prev = tonumber(redis.call("HGET", KEYS[1], uid .. ":points")) or 0
redis.call("HSET", KEYS[1], uid, ARGV[2], uid .. ":points", ARGV[3], uid .. ":at", ARGV[4])
if redis.call("EXISTS", KEYS[2]) == 0 then
  redis.call("HSET", KEYS[2], "created_at", ARGV[4], "answered", 0, "score", 0)
end
local score = (tonumber(redis.call("HGET", KEYS[2], "score")) or 0) - prev + tonumber(ARGV[3])
local answered = tonumber(redis.call("HGET", KEYS[2], "answered")) or 0
if not at then
  answered = answered + 1
end
redis.call("HSET", KEYS[2],
  "score", score,
  "answered", answered,
  "username", ARGV[5],
  "avatar", ARGV[6],
  "last_score_at", ARGV[4])
if tonumber(ARGV[7]) > 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[7])
  redis.call("PEXPIRE", KEYS[2], ARGV[7])
end
return {1, tostring(prev), tostring(score)}
`)

// finalizeScript seals an attempt record exactly once and reveals it on the
// global leaderboard. A user's ZSET entry only ever moves up: when a prior
// finalized attempt scored higher, the seal still happens but the board
// keeps the better score.
var finalizeScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  return false
end
redis.call("HSET", KEYS[1], "is_complete", "1")
local score = tonumber(redis.call("HGET", KEYS[1], "score")) or 0
local prev = tonumber(redis.call("ZSCORE", KEYS[2], ARGV[1]))
if not prev or score > prev then
  redis.call("ZADD", KEYS[2], score, ARGV[1])
  redis.call("HSET", KEYS[3],
    "username", redis.call("HGET", KEYS[1], "username") or "",
    "avatar", redis.call("HGET", KEYS[1], "avatar") or "",
    "last_score_at", redis.call("HGET", KEYS[1], "last_score_at") or "0")
end
if tonumber(ARGV[2]) > 0 then
  redis.call("PEXPIRE", KEYS[2], ARGV[2])
  redis.call("PEXPIRE", KEYS[3], ARGV[2])
end
return redis.call("HGETALL", KEYS[1])
`)

// StoreOptions configures session store behavior.
type StoreOptions struct {
	// EntryTTL bounds how long finished-game state lingers in Redis. Zero
	// disables expiry.
	EntryTTL time.Duration
	// Now overrides the clock for tests.
	Now func() time.Time
}

// Store persists answers, scores and leaderboards in Redis. Live modes feed
// a global ranked ZSET per game; deferred mode isolates every attempt in
// its own record so concurrent or prior attempts never leak into each
// other. Practice persists nothing.
type Store struct {
	redis  *redis.Client
	logger zerolog.Logger
	ttl    time.Duration
	now    func() time.Time
}

// NewStore constructs a session store.
func NewStore(redisClient *redis.Client, logger zerolog.Logger, opts StoreOptions) *Store {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		redis:  redisClient,
		logger: logger.With().Str("component", "session_store").Logger(),
		ttl:    opts.EntryTTL,
		now:    now,
	}
}

// Submit records an answer and applies its score under the scope's mode.
// Resubmission overwrites the prior answer for the scope; the logically
// later submission wins deterministically regardless of I/O interleaving.
func (s *Store) Submit(ctx context.Context, scope game.Scope, participant game.Participant, rec AnswerRecord) (Outcome, error) {
	if scope.Mode == game.ModePractice {
		// Feedback only; nothing reaches any shared leaderboard.
		return Outcome{Applied: false, TotalScore: rec.Points}, nil
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return Outcome{}, fmt.Errorf("marshal answer record: %w", err)
	}

	var (
		script *redis.Script
		keys   []string
	)
	if scope.Mode.Deferred() {
		script = submitDeferredScript
		keys = []string{scope.AnswerKey(), scope.SessionKey()}
	} else {
		script = submitLiveScript
		keys = []string{
			scope.AnswerKey(),
			game.LeaderboardKey(scope.GameCode),
			game.PlayerKey(scope.GameCode, participant.UserID),
		}
	}

	res, err := script.Run(ctx, s.redis, keys,
		participant.UserID.String(),
		string(payload),
		strconv.FormatFloat(rec.Points, 'f', -1, 64),
		rec.SubmittedAtMs,
		participant.Username,
		participant.Avatar,
		s.ttl.Milliseconds(),
	).Result()
	if err != nil {
		return Outcome{}, fmt.Errorf("submit answer %s: %w", scope.AnswerKey(), err)
	}

	outcome, err := outcomeFromReply(res)
	if err != nil {
		return Outcome{}, fmt.Errorf("submit answer %s: %w", scope.AnswerKey(), err)
	}
	if !outcome.Applied {
		s.logger.Debug().
			Str("key", scope.AnswerKey()).
			Str("user_id", participant.UserID.String()).
			Msg("submission superseded or attempt sealed")
	}
	return outcome, nil
}

// RecordedAnswer returns the stored submission of one participant for a
// scope, or nil when none exists.
func (s *Store) RecordedAnswer(ctx context.Context, scope game.Scope, userID uuid.UUID) (*AnswerRecord, error) {
	raw, err := s.redis.HGet(ctx, scope.AnswerKey(), userID.String()).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read answer %s: %w", scope.AnswerKey(), err)
	}
	var rec AnswerRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decode answer %s: %w", scope.AnswerKey(), err)
	}
	return &rec, nil
}

// ResetQuestion drops the stored answers for a scope's question; paired
// with a timer reset when the operator re-activates a question.
func (s *Store) ResetQuestion(ctx context.Context, scope game.Scope) error {
	if scope.Mode == game.ModePractice {
		return nil
	}
	if err := s.redis.Del(ctx, scope.AnswerKey()).Err(); err != nil {
		return fmt.Errorf("reset answers %s: %w", scope.AnswerKey(), err)
	}
	return nil
}

// FinalizeAttempt seals a deferred attempt record and publishes its score
// to the game's global leaderboard (best finalized attempt wins). Sealing
// is idempotent; a missing record (no answers were ever submitted) returns
// nil.
func (s *Store) FinalizeAttempt(ctx context.Context, scope game.Scope) (*AttemptRecord, error) {
	if !scope.Mode.Deferred() {
		return nil, fmt.Errorf("finalize %s: scope is not deferred", scope.GameCode)
	}
	keys := []string{
		scope.SessionKey(),
		game.LeaderboardKey(scope.GameCode),
		game.PlayerKey(scope.GameCode, scope.UserID),
	}
	res, err := finalizeScript.Run(ctx, s.redis, keys,
		scope.UserID.String(),
		s.ttl.Milliseconds(),
	).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finalize attempt %s: %w", scope.SessionKey(), err)
	}
	fields, err := fieldsFromReply(res)
	if err != nil {
		return nil, fmt.Errorf("finalize attempt %s: %w", scope.SessionKey(), err)
	}
	rec := attemptFromFields(scope, fields)
	s.logger.Info().
		Str("game_code", scope.GameCode).
		Str("user_id", scope.UserID.String()).
		Int("attempt", scope.Attempt).
		Float64("score", rec.Score).
		Msg("attempt finalized")
	return rec, nil
}

// Attempt reads a deferred attempt record without mutating it.
func (s *Store) Attempt(ctx context.Context, scope game.Scope) (*AttemptRecord, error) {
	fields, err := s.redis.HGetAll(ctx, scope.SessionKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("read attempt %s: %w", scope.SessionKey(), err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return attemptFromFields(scope, fields), nil
}

func attemptFromFields(scope game.Scope, fields map[string]string) *AttemptRecord {
	return &AttemptRecord{
		GameCode:    scope.GameCode,
		UserID:      scope.UserID,
		Attempt:     scope.Attempt,
		Username:    fields["username"],
		Avatar:      fields["avatar"],
		Score:       parseFloat(fields["score"]),
		Answered:    int(parseInt(fields["answered"])),
		IsComplete:  fields["is_complete"] == "1",
		CreatedAtMs: parseInt(fields["created_at"]),
		LastScoreMs: parseInt(fields["last_score_at"]),
	}
}

func outcomeFromReply(reply interface{}) (Outcome, error) {
	parts, ok := reply.([]interface{})
	if !ok || len(parts) != 3 {
		return Outcome{}, fmt.Errorf("unexpected submit reply %T", reply)
	}
	applied, ok := parts[0].(int64)
	if !ok {
		return Outcome{}, fmt.Errorf("unexpected applied flag %T", parts[0])
	}
	prev, _ := parts[1].(string)
	total, _ := parts[2].(string)
	return Outcome{
		Applied:        applied == 1,
		PreviousPoints: parseFloat(prev),
		TotalScore:     parseFloat(total),
	}, nil
}

func fieldsFromReply(reply interface{}) (map[string]string, error) {
	flat, ok := reply.([]interface{})
	if !ok || len(flat)%2 != 0 {
		return nil, fmt.Errorf("unexpected hash reply %T", reply)
	}
	fields := make(map[string]string, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		k, _ := flat[i].(string)
		v, _ := flat[i+1].(string)
		fields[k] = v
	}
	return fields, nil
}

func parseFloat(val string) float64 {
	if val == "" {
		return 0
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0
	}
	return f
}

func parseInt(val string) int64 {
	if val == "" {
		return 0
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
