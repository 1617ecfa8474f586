package play

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quizrally/sessioncore/internal/db/repository"
	"github.com/quizrally/sessioncore/internal/leaderboard"
	httperrors "github.com/quizrally/sessioncore/pkg/http/errors"
)

// ResultsReader serves durable, finalized results (implemented by the
// Postgres results repository).
type ResultsReader interface {
	BestResult(ctx context.Context, gameCode string, userID uuid.UUID) (repository.GameResult, error)
	ListResults(ctx context.Context, gameCode string) ([]repository.GameResult, error)
}

// SnapshotReader serves persisted leaderboard captures.
type SnapshotReader interface {
	LatestSnapshot(ctx context.Context, gameCode string) (leaderboard.Snapshot, error)
}

// CacheInvalidator drops a cached question definition so the next read
// reloads it from the database.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, questionID string) error
}

// ResultsHTTPHandlers exposes the durable read surface: finalized results
// from Postgres (which outlive the Redis session TTL), stored leaderboard
// captures, and question cache administration.
type ResultsHTTPHandlers struct {
	results   ResultsReader
	snapshots SnapshotReader
	questions CacheInvalidator
	logger    zerolog.Logger
}

// NewResultsHTTPHandlers constructs the durable-read handlers.
func NewResultsHTTPHandlers(results ResultsReader, snapshots SnapshotReader, questions CacheInvalidator, logger zerolog.Logger) *ResultsHTTPHandlers {
	return &ResultsHTTPHandlers{
		results:   results,
		snapshots: snapshots,
		questions: questions,
		logger:    logger.With().Str("component", "results_http").Logger(),
	}
}

type gameResultView struct {
	GameCode    string    `json:"game_code"`
	UserID      uuid.UUID `json:"user_id"`
	Attempt     int       `json:"attempt"`
	Username    string    `json:"username"`
	Avatar      string    `json:"avatar,omitempty"`
	Score       float64   `json:"score"`
	Answered    int       `json:"answered"`
	CompletedAt time.Time `json:"completed_at"`
}

func toResultView(res repository.GameResult) gameResultView {
	return gameResultView{
		GameCode:    res.GameCode,
		UserID:      res.UserID,
		Attempt:     res.Attempt,
		Username:    res.Username,
		Avatar:      res.Avatar,
		Score:       res.Score,
		Answered:    res.Answered,
		CompletedAt: res.CompletedAt,
	}
}

// HandleListResults returns every finalized result for a game, best first.
// Route: GET /v1/games/{code}/results
func (h *ResultsHTTPHandlers) HandleListResults(w http.ResponseWriter, r *http.Request) {
	gameCode := r.PathValue("code")

	results, err := h.results.ListResults(r.Context(), gameCode)
	if err != nil {
		h.logger.Error().Err(err).Str("game_code", gameCode).Msg("list results failed")
		httperrors.RespondError(w, http.StatusInternalServerError, httperrors.ErrCodeResultsFetchFailed, err.Error())
		return
	}
	views := make([]gameResultView, len(results))
	for i, res := range results {
		views[i] = toResultView(res)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"game_code": gameCode,
		"results":   views,
	})
}

// HandleBestResult returns one user's best finalized result for a game.
// Route: GET /v1/games/{code}/results/{user_id}
func (h *ResultsHTTPHandlers) HandleBestResult(w http.ResponseWriter, r *http.Request) {
	gameCode := r.PathValue("code")
	userID, err := uuid.Parse(r.PathValue("user_id"))
	if err != nil {
		httperrors.RespondValidationError(w, httperrors.ErrCodeValidationFailed, "invalid user id", "user_id")
		return
	}

	res, err := h.results.BestResult(r.Context(), gameCode, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			httperrors.RespondNotFound(w, httperrors.ErrCodeNotFound, "no result for user")
			return
		}
		httperrors.RespondError(w, http.StatusInternalServerError, httperrors.ErrCodeResultsFetchFailed, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toResultView(res))
}

// HandleLatestSnapshot returns the most recent stored leaderboard capture,
// serving history after the live Redis state has expired.
// Route: GET /v1/games/{code}/snapshots/latest
func (h *ResultsHTTPHandlers) HandleLatestSnapshot(w http.ResponseWriter, r *http.Request) {
	gameCode := r.PathValue("code")

	snap, err := h.snapshots.LatestSnapshot(r.Context(), gameCode)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			httperrors.RespondNotFound(w, httperrors.ErrCodeNotFound, "no snapshot for game")
			return
		}
		httperrors.RespondError(w, http.StatusInternalServerError, httperrors.ErrCodeLeaderboardFetchFailed, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"game_code":    snap.GameCode,
		"generated_at": snap.GeneratedAt,
		"source_hash":  snap.SourceHash,
		"entries":      json.RawMessage(snap.Entries),
	})
}

// HandleInvalidateQuestion drops the cached definition after an edit.
// Route: DELETE /v1/questions/{qid}/cache
func (h *ResultsHTTPHandlers) HandleInvalidateQuestion(w http.ResponseWriter, r *http.Request) {
	questionID := r.PathValue("qid")

	if err := h.questions.Invalidate(r.Context(), questionID); err != nil {
		httperrors.RespondInternalError(w, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
