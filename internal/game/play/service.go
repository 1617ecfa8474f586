package play

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quizrally/sessioncore/internal/game"
	"github.com/quizrally/sessioncore/internal/game/scoring"
	"github.com/quizrally/sessioncore/internal/game/session"
	"github.com/quizrally/sessioncore/internal/game/timer"
)

// QuestionSource supplies server-side question definitions; owned by the
// persistence layer, consumed here.
type QuestionSource interface {
	Definition(ctx context.Context, questionID string) (game.Question, error)
}

// ResultSink receives finalized deferred attempts for durable merging.
type ResultSink interface {
	MergeAttempt(ctx context.Context, rec session.AttemptRecord) error
}

// Publisher announces live leaderboard changes for broadcast fan-out.
type Publisher interface {
	PublishScoreUpdate(ctx context.Context, gameCode string) error
}

// ServiceOptions configures the orchestration service.
type ServiceOptions struct {
	// Results may be nil when no durable merge target is configured.
	Results ResultSink
	// Publisher may be nil; live score changes then go unannounced.
	Publisher Publisher
	// Now overrides the clock for tests.
	Now func() time.Time
}

// Service is the single orchestration surface over the timer service,
// scoring engine and session store. It holds no cross-call state: every
// operation is a fresh round trip to the shared store, safe to invoke from
// any number of concurrent handlers.
type Service struct {
	questions QuestionSource
	timers    *timer.Service
	engine    *scoring.Engine
	store     *session.Store
	results   ResultSink
	publisher Publisher
	logger    zerolog.Logger
	now       func() time.Time
}

// NewService wires the gameplay core.
func NewService(
	questions QuestionSource,
	timers *timer.Service,
	engine *scoring.Engine,
	store *session.Store,
	opts ServiceOptions,
	logger zerolog.Logger,
) *Service {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		questions: questions,
		timers:    timers,
		engine:    engine,
		store:     store,
		results:   opts.Results,
		publisher: opts.Publisher,
		logger:    logger.With().Str("component", "play").Logger(),
		now:       now,
	}
}

// RegisterGame records game metadata so later submissions can resolve the
// play mode and per-question score base.
func (s *Service) RegisterGame(ctx context.Context, meta game.Metadata) error {
	return s.store.RegisterGame(ctx, meta)
}

// EndGame drops the game from the active index.
func (s *Service) EndGame(ctx context.Context, gameCode string) error {
	return s.store.UnregisterGame(ctx, gameCode)
}

// ResolveScope maps a raw request onto the timer and persistence scope its
// game mode demands: live modes share one scope per question, deferred
// replays isolate per user and attempt, practice gets an inert scope.
func (s *Service) ResolveScope(ctx context.Context, gameCode, questionID string, userID uuid.UUID, attempt int) (game.Scope, error) {
	meta, err := s.store.Metadata(ctx, gameCode)
	if err != nil {
		return game.Scope{}, err
	}
	switch {
	case meta.Mode == game.ModePractice:
		return game.PracticeScope(gameCode, questionID, userID), nil
	case meta.Mode.Deferred():
		return game.DeferredScope(gameCode, userID, attempt, questionID)
	default:
		return game.LiveScope(gameCode, questionID, meta.Mode), nil
	}
}

// SubmitAnswer scores and persists one submission: elapsed in-play time
// comes from the canonical timer, the contribution from the scoring engine,
// and persistence semantics from the scope's mode. A wrong answer is a
// valid zero-score result; only store failures return an error.
func (s *Service) SubmitAnswer(ctx context.Context, scope game.Scope, participant game.Participant, answer game.Answer) (game.ScoreResult, error) {
	meta, err := s.store.Metadata(ctx, scope.GameCode)
	if err != nil {
		return game.ScoreResult{}, err
	}

	question, err := s.questions.Definition(ctx, scope.QuestionID)
	if err != nil {
		return game.ScoreResult{}, fmt.Errorf("resolve question %s: %w", scope.QuestionID, err)
	}

	elapsed, err := s.timers.ElapsedMs(ctx, scope)
	if err != nil {
		return game.ScoreResult{}, err
	}

	scored := s.engine.Score(question, answer, elapsed, meta.QuestionCount)

	rec := session.AnswerRecord{
		UserID:        participant.UserID,
		Answer:        answer,
		ElapsedMs:     elapsed,
		SubmittedAtMs: s.now().UnixMilli(),
		Correct:       scored.Correct,
		Points:        scored.Points,
	}
	outcome, err := s.store.Submit(ctx, scope, participant, rec)
	if err != nil {
		return game.ScoreResult{}, err
	}

	result := game.ScoreResult{
		TotalScore:      outcome.TotalScore,
		Correct:         scored.Correct,
		PenaltyFraction: scored.PenaltyFraction,
	}
	if outcome.Applied {
		// A replacement answer that scores lower drops the total; the
		// reported contribution floors at zero rather than going negative
		// or restating the full new points.
		delta := scored.Points - outcome.PreviousPoints
		if delta < 0 {
			delta = 0
		}
		result.ScoreAdded = delta
		result.ScoreUpdated = delta > 0
	}
	if scope.Mode == game.ModePractice {
		// Feedback only: report the would-be contribution, persist nothing.
		result.ScoreAdded = scored.Points
	}

	if outcome.Applied && scope.Mode.Live() && scored.Points != outcome.PreviousPoints {
		s.publishUpdate(scope.GameCode)
	}

	s.logger.Debug().
		Str("game_code", scope.GameCode).
		Str("question_id", scope.QuestionID).
		Str("user_id", participant.UserID.String()).
		Bool("applied", outcome.Applied).
		Float64("points", scored.Points).
		Int64("elapsed_ms", elapsed).
		Msg("answer submitted")
	return result, nil
}

// GetLeaderboardSnapshot returns the broadcastable leaderboard for a game.
// During deferred play (attempt > 0) the caller sees only their own
// attempt's single-entry view; passing attempt 0 requests the unrestricted
// global view used by the operator/projection surface and by live modes.
func (s *Service) GetLeaderboardSnapshot(ctx context.Context, gameCode string, participant game.Participant, attempt int) ([]game.LeaderboardEntry, error) {
	meta, err := s.store.Metadata(ctx, gameCode)
	if err != nil {
		return nil, err
	}
	if meta.Mode.Deferred() && attempt > 0 {
		scope, err := game.DeferredScope(gameCode, participant.UserID, attempt, "")
		if err != nil {
			return nil, err
		}
		return s.store.ParticipantView(ctx, scope)
	}
	return s.store.Snapshot(ctx, gameCode, 0)
}

// StartQuestionTimer is the operator-triggered (or deferred-flow-triggered)
// start/resume, forwarded verbatim to the canonical timer.
func (s *Service) StartQuestionTimer(ctx context.Context, scope game.Scope) (*timer.State, error) {
	return s.timers.Start(ctx, scope)
}

// PauseQuestionTimer freezes the clock for a scope.
func (s *Service) PauseQuestionTimer(ctx context.Context, scope game.Scope) (*timer.State, error) {
	return s.timers.Pause(ctx, scope)
}

// ResetQuestionTimer deletes timer state and the question's stored answers;
// used when a new question becomes active.
func (s *Service) ResetQuestionTimer(ctx context.Context, scope game.Scope) error {
	if err := s.timers.Reset(ctx, scope); err != nil {
		return err
	}
	return s.store.ResetQuestion(ctx, scope)
}

// QuestionCountdown exposes the broadcastable timer view for a scope,
// resolving the question's allotted duration.
func (s *Service) QuestionCountdown(ctx context.Context, scope game.Scope) (*timer.Countdown, error) {
	question, err := s.questions.Definition(ctx, scope.QuestionID)
	if err != nil {
		return nil, fmt.Errorf("resolve question %s: %w", scope.QuestionID, err)
	}
	return s.timers.Countdown(ctx, scope, question.TimeLimitMs)
}

// FinalizeAttempt seals a deferred attempt, reveals it on the game's
// leaderboard, and merges it into the durable per-user result (best attempt
// wins in both). Only after this does the attempt become visible outside
// the player's own view.
func (s *Service) FinalizeAttempt(ctx context.Context, scope game.Scope) (*session.AttemptRecord, error) {
	rec, err := s.store.FinalizeAttempt(ctx, scope)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	if s.results != nil {
		if err := s.results.MergeAttempt(ctx, *rec); err != nil {
			return nil, fmt.Errorf("merge attempt %s/%d: %w", rec.UserID, rec.Attempt, err)
		}
	}
	// The reveal changes the public leaderboard, so watchers get an update.
	s.publishUpdate(scope.GameCode)
	return rec, nil
}

func (s *Service) publishUpdate(gameCode string) {
	if s.publisher == nil {
		return
	}
	// Broadcast must not block or fail the submission path.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.publisher.PublishScoreUpdate(ctx, gameCode); err != nil {
			s.logger.Warn().Err(err).Str("game_code", gameCode).Msg("failed to publish score update")
		}
	}()
}
