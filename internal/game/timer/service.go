package timer

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/quizrally/sessioncore/internal/game"
)

// Status of a timer state machine. Two states only; a reset deletes the
// state instead of introducing a terminal status, keeping elapsed-time reads
// a pure function of two timestamps and one accumulator.
type Status string

const (
	StatusPlay  Status = "play"
	StatusPause Status = "pause"
)

// State mirrors the Redis hash holding one timer scope.
type State struct {
	QuestionID  string
	Status      Status
	StartedAt   time.Time
	TotalPlayMs int64
	LastChange  time.Time
}

// Countdown is the broadcastable view of a timer against a question's
// allotted duration.
type Countdown struct {
	Status     string `json:"status"` // run | pause | stop
	QuestionID string `json:"question_id"`
	DurationMs int64  `json:"duration_ms"`
	TimeLeftMs int64  `json:"time_left_ms"`
	EndsAtMs   int64  `json:"ends_at_ms,omitempty"`
}

// startScript creates a timer in play, resumes a paused one, and leaves a
// running one untouched. Executed server-side so two concurrent starts
// cannot both reset the accumulator.
var startScript = redis.NewScript(`
local status = redis.call("HGET", KEYS[1], "status")
if not status then
  redis.call("HSET", KEYS[1],
    "question", ARGV[2],
    "status", "play",
    "started_at", ARGV[1],
    "total_play_ms", 0,
    "last_change", ARGV[1])
elseif status == "pause" then
  redis.call("HSET", KEYS[1], "status", "play", "last_change", ARGV[1])
end
if tonumber(ARGV[3]) > 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[3])
end
return redis.call("HGETALL", KEYS[1])
`)

// pauseScript folds the open play interval into the accumulator exactly
// once, no matter how many concurrent pauses race.
var pauseScript = redis.NewScript(`
local status = redis.call("HGET", KEYS[1], "status")
if not status then
  return false
end
if status == "play" then
  local total = tonumber(redis.call("HGET", KEYS[1], "total_play_ms")) or 0
  local last = tonumber(redis.call("HGET", KEYS[1], "last_change")) or 0
  local delta = tonumber(ARGV[1]) - last
  if delta < 0 then
    delta = 0
  end
  redis.call("HSET", KEYS[1],
    "status", "pause",
    "total_play_ms", total + delta,
    "last_change", ARGV[1])
end
return redis.call("HGETALL", KEYS[1])
`)

// ServiceOptions configures timer behavior.
type ServiceOptions struct {
	// StateTTL bounds how long abandoned timer state lingers. Zero disables
	// expiry.
	StateTTL time.Duration
	// Now overrides the clock for tests.
	Now func() time.Time
}

// Service is the canonical play/pause timer for all game modes. State lives
// in Redis only; the service holds no cross-call memory, so elapsed time
// stays correct across process restarts.
type Service struct {
	redis  *redis.Client
	logger zerolog.Logger
	ttl    time.Duration
	now    func() time.Time
}

// NewService constructs a timer service.
func NewService(redisClient *redis.Client, logger zerolog.Logger, opts ServiceOptions) *Service {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		redis:  redisClient,
		logger: logger.With().Str("component", "timer").Logger(),
		ttl:    opts.StateTTL,
		now:    now,
	}
}

// Start creates or resumes the timer for a scope. Starting an already
// running timer is an idempotent no-op returning current state. Practice
// scopes have no timer: returns (nil, nil).
func (s *Service) Start(ctx context.Context, scope game.Scope) (*State, error) {
	if scope.Policy() == game.TimerNone {
		return nil, nil
	}
	nowMs := s.now().UnixMilli()
	res, err := startScript.Run(ctx, s.redis,
		[]string{scope.TimerKey()},
		nowMs, scope.QuestionID, s.ttl.Milliseconds(),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("start timer %s: %w", scope.TimerKey(), err)
	}
	state, err := stateFromReply(res)
	if err != nil {
		return nil, fmt.Errorf("start timer %s: %w", scope.TimerKey(), err)
	}
	s.logger.Debug().
		Str("key", scope.TimerKey()).
		Str("status", string(state.Status)).
		Int64("total_play_ms", state.TotalPlayMs).
		Msg("timer started")
	return state, nil
}

// Pause freezes the timer for a scope, folding the open play interval into
// the accumulator. Pausing a missing timer returns (nil, nil): a pause can
// legitimately race a reset. Idempotent on an already paused timer.
func (s *Service) Pause(ctx context.Context, scope game.Scope) (*State, error) {
	if scope.Policy() == game.TimerNone {
		return nil, nil
	}
	res, err := pauseScript.Run(ctx, s.redis,
		[]string{scope.TimerKey()},
		s.now().UnixMilli(),
	).Result()
	if err == redis.Nil {
		s.logger.Debug().Str("key", scope.TimerKey()).Msg("no timer to pause")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pause timer %s: %w", scope.TimerKey(), err)
	}
	state, err := stateFromReply(res)
	if err != nil {
		return nil, fmt.Errorf("pause timer %s: %w", scope.TimerKey(), err)
	}
	s.logger.Debug().
		Str("key", scope.TimerKey()).
		Int64("total_play_ms", state.TotalPlayMs).
		Msg("timer paused")
	return state, nil
}

// ElapsedMs returns the accumulated in-play milliseconds for a scope.
// Missing timers and practice scopes report 0. Clock anomalies are clamped,
// never propagated.
func (s *Service) ElapsedMs(ctx context.Context, scope game.Scope) (int64, error) {
	if scope.Policy() == game.TimerNone {
		return 0, nil
	}
	state, err := s.get(ctx, scope)
	if err != nil {
		return 0, err
	}
	if state == nil {
		return 0, nil
	}
	return state.elapsedAt(s.now()), nil
}

// Reset deletes timer state entirely; used when a new question activates.
func (s *Service) Reset(ctx context.Context, scope game.Scope) error {
	if scope.Policy() == game.TimerNone {
		return nil
	}
	if err := s.redis.Del(ctx, scope.TimerKey()).Err(); err != nil {
		return fmt.Errorf("reset timer %s: %w", scope.TimerKey(), err)
	}
	s.logger.Debug().Str("key", scope.TimerKey()).Msg("timer reset")
	return nil
}

// Countdown builds the client-facing view of a timer against the question's
// allotted duration. A missing timer reports a stopped countdown with the
// full duration left; a running timer that has exhausted the duration is
// forced to stop.
func (s *Service) Countdown(ctx context.Context, scope game.Scope, durationMs int64) (*Countdown, error) {
	if scope.Policy() == game.TimerNone {
		return nil, nil
	}
	state, err := s.get(ctx, scope)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return &Countdown{
			Status:     "stop",
			QuestionID: scope.QuestionID,
			DurationMs: durationMs,
			TimeLeftMs: durationMs,
		}, nil
	}

	now := s.now()
	left := durationMs - state.elapsedAt(now)
	if left < 0 {
		left = 0
	}
	cd := &Countdown{
		QuestionID: state.QuestionID,
		DurationMs: durationMs,
		TimeLeftMs: left,
	}
	switch {
	case state.Status == StatusPause:
		cd.Status = "pause"
	case left <= 0 || durationMs <= 0:
		cd.Status = "stop"
	default:
		cd.Status = "run"
		cd.EndsAtMs = now.UnixMilli() + left
	}
	return cd, nil
}

func (s *Service) get(ctx context.Context, scope game.Scope) (*State, error) {
	fields, err := s.redis.HGetAll(ctx, scope.TimerKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("read timer %s: %w", scope.TimerKey(), err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return stateFromMap(fields), nil
}

// elapsedAt implements the core invariant: elapsed = total_play_ms, plus the
// open interval since last_change iff the timer is playing.
func (st *State) elapsedAt(now time.Time) int64 {
	elapsed := st.TotalPlayMs
	if st.Status == StatusPlay {
		open := now.UnixMilli() - st.LastChange.UnixMilli()
		if open > 0 {
			elapsed += open
		}
	}
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

func stateFromMap(fields map[string]string) *State {
	return &State{
		QuestionID:  fields["question"],
		Status:      Status(fields["status"]),
		StartedAt:   time.UnixMilli(parseMs(fields["started_at"])),
		TotalPlayMs: parseMs(fields["total_play_ms"]),
		LastChange:  time.UnixMilli(parseMs(fields["last_change"])),
	}
}

// stateFromReply parses the flat field/value array Lua's HGETALL returns.
func stateFromReply(reply interface{}) (*State, error) {
	flat, ok := reply.([]interface{})
	if !ok || len(flat)%2 != 0 {
		return nil, fmt.Errorf("unexpected timer reply %T", reply)
	}
	fields := make(map[string]string, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		k, kok := flat[i].(string)
		v, vok := flat[i+1].(string)
		if !kok || !vok {
			return nil, fmt.Errorf("unexpected timer field pair %T/%T", flat[i], flat[i+1])
		}
		fields[k] = v
	}
	return stateFromMap(fields), nil
}

func parseMs(val string) int64 {
	if val == "" {
		return 0
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
