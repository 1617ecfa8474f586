package play

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quizrally/sessioncore/internal/game"
	"github.com/quizrally/sessioncore/internal/game/session"
	"github.com/quizrally/sessioncore/internal/question"
	httperrors "github.com/quizrally/sessioncore/pkg/http/errors"
)

// HTTPHandlers exposes REST endpoints for game registration, operator timer
// control, submissions, and leaderboard reads.
type HTTPHandlers struct {
	service *Service
	logger  zerolog.Logger
}

// NewHTTPHandlers constructs gameplay HTTP handlers.
func NewHTTPHandlers(service *Service, logger zerolog.Logger) *HTTPHandlers {
	return &HTTPHandlers{
		service: service,
		logger:  logger.With().Str("component", "play_http").Logger(),
	}
}

type registerGameRequest struct {
	GameCode      string `json:"game_code"`
	Mode          string `json:"mode"`
	QuestionCount int    `json:"question_count"`
}

// HandleRegisterGame activates a game for play.
// Route: POST /v1/games
func (h *HTTPHandlers) HandleRegisterGame(w http.ResponseWriter, r *http.Request) {
	var req registerGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "malformed request body")
		return
	}

	err := h.service.RegisterGame(r.Context(), game.Metadata{
		GameCode:      req.GameCode,
		Mode:          game.Mode(req.Mode),
		QuestionCount: req.QuestionCount,
	})
	if err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeRegistrationFailed, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"game_code": req.GameCode})
}

// HandleEndGame deactivates a game.
// Route: DELETE /v1/games/{code}
func (h *HTTPHandlers) HandleEndGame(w http.ResponseWriter, r *http.Request) {
	gameCode := r.PathValue("code")
	if err := h.service.EndGame(r.Context(), gameCode); err != nil {
		httperrors.RespondInternalError(w, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type submitAnswerRequest struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
	Attempt  int    `json:"attempt,omitempty"`
	Value    string `json:"value,omitempty"`
	Selected []int  `json:"selected,omitempty"`
}

// HandleSubmitAnswer scores one submission.
// Route: POST /v1/games/{code}/questions/{qid}/answers
func (h *HTTPHandlers) HandleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	gameCode := r.PathValue("code")
	questionID := r.PathValue("qid")

	var req submitAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "malformed request body")
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		httperrors.RespondValidationError(w, httperrors.ErrCodeValidationFailed, "invalid user id", "user_id")
		return
	}

	ctx := r.Context()
	scope, err := h.service.ResolveScope(ctx, gameCode, questionID, userID, req.Attempt)
	if err != nil {
		h.respondScopeError(w, err)
		return
	}

	participant := game.Participant{UserID: userID, Username: req.Username, Avatar: req.Avatar}
	result, err := h.service.SubmitAnswer(ctx, scope, participant, game.Answer{
		Value:    req.Value,
		Selected: req.Selected,
	})
	if err != nil {
		if errors.Is(err, question.ErrNotFound) {
			httperrors.RespondNotFound(w, httperrors.ErrCodeNotFound, "unknown question")
			return
		}
		h.logger.Error().Err(err).Str("game_code", gameCode).Msg("submit failed")
		httperrors.RespondError(w, http.StatusInternalServerError, httperrors.ErrCodeSubmitFailed, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type timerActionRequest struct {
	Action  string `json:"action"` // start | pause | reset
	UserID  string `json:"user_id,omitempty"`
	Attempt int    `json:"attempt,omitempty"`
}

// HandleTimerAction applies an operator timer command and returns the
// resulting countdown view.
// Route: POST /v1/games/{code}/questions/{qid}/timer
func (h *HTTPHandlers) HandleTimerAction(w http.ResponseWriter, r *http.Request) {
	gameCode := r.PathValue("code")
	questionID := r.PathValue("qid")

	var req timerActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "malformed request body")
		return
	}

	var userID uuid.UUID
	if req.UserID != "" {
		parsed, err := uuid.Parse(req.UserID)
		if err != nil {
			httperrors.RespondValidationError(w, httperrors.ErrCodeValidationFailed, "invalid user id", "user_id")
			return
		}
		userID = parsed
	}

	ctx := r.Context()
	scope, err := h.service.ResolveScope(ctx, gameCode, questionID, userID, req.Attempt)
	if err != nil {
		h.respondScopeError(w, err)
		return
	}

	switch req.Action {
	case "start":
		_, err = h.service.StartQuestionTimer(ctx, scope)
	case "pause":
		_, err = h.service.PauseQuestionTimer(ctx, scope)
	case "reset":
		err = h.service.ResetQuestionTimer(ctx, scope)
	default:
		httperrors.RespondValidationError(w, httperrors.ErrCodeValidationFailed, "unknown timer action", "action")
		return
	}
	if err != nil {
		httperrors.RespondError(w, http.StatusInternalServerError, httperrors.ErrCodeTimerFailed, err.Error())
		return
	}

	cd, err := h.service.QuestionCountdown(ctx, scope)
	if err != nil {
		httperrors.RespondError(w, http.StatusInternalServerError, httperrors.ErrCodeTimerFailed, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cd)
}

// HandleCountdown returns the broadcastable timer view.
// Route: GET /v1/games/{code}/questions/{qid}/countdown
func (h *HTTPHandlers) HandleCountdown(w http.ResponseWriter, r *http.Request) {
	gameCode := r.PathValue("code")
	questionID := r.PathValue("qid")

	userID, attempt, ok := identityFromQuery(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	scope, err := h.service.ResolveScope(ctx, gameCode, questionID, userID, attempt)
	if err != nil {
		h.respondScopeError(w, err)
		return
	}
	cd, err := h.service.QuestionCountdown(ctx, scope)
	if err != nil {
		if errors.Is(err, question.ErrNotFound) {
			httperrors.RespondNotFound(w, httperrors.ErrCodeNotFound, "unknown question")
			return
		}
		httperrors.RespondError(w, http.StatusInternalServerError, httperrors.ErrCodeTimerFailed, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cd)
}

// HandleLeaderboard returns the ranked snapshot for a game.
// Route: GET /v1/games/{code}/leaderboard?limit=50
func (h *HTTPHandlers) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	gameCode := r.PathValue("code")

	userID, attempt, ok := identityFromQuery(w, r)
	if !ok {
		return
	}

	entries, err := h.service.GetLeaderboardSnapshot(r.Context(), gameCode, game.Participant{UserID: userID}, attempt)
	if err != nil {
		if errors.Is(err, session.ErrGameNotFound) {
			httperrors.RespondNotFound(w, httperrors.ErrCodeGameNotFound, "unknown game")
			return
		}
		httperrors.RespondError(w, http.StatusInternalServerError, httperrors.ErrCodeLeaderboardFetchFailed, err.Error())
		return
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil && limit > 0 && limit < len(entries) {
			entries = entries[:limit]
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"game_code": gameCode,
		"top":       entries,
	})
}

type finalizeRequest struct {
	UserID  string `json:"user_id"`
	Attempt int    `json:"attempt"`
}

// HandleFinalizeAttempt seals a deferred attempt and merges it durably.
// Route: POST /v1/games/{code}/attempts/finalize
func (h *HTTPHandlers) HandleFinalizeAttempt(w http.ResponseWriter, r *http.Request) {
	gameCode := r.PathValue("code")

	var req finalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "malformed request body")
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		httperrors.RespondValidationError(w, httperrors.ErrCodeValidationFailed, "invalid user id", "user_id")
		return
	}

	scope, err := game.DeferredScope(gameCode, userID, req.Attempt, "")
	if err != nil {
		httperrors.RespondValidationError(w, httperrors.ErrCodeInvalidAttempt, err.Error(), "attempt")
		return
	}

	rec, err := h.service.FinalizeAttempt(r.Context(), scope)
	if err != nil {
		httperrors.RespondError(w, http.StatusInternalServerError, httperrors.ErrCodeFinalizeFailed, err.Error())
		return
	}
	if rec == nil {
		httperrors.RespondNotFound(w, httperrors.ErrCodeNotFound, "no attempt to finalize")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *HTTPHandlers) respondScopeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrGameNotFound):
		httperrors.RespondNotFound(w, httperrors.ErrCodeGameNotFound, "unknown game")
	case errors.Is(err, game.ErrMissingAttempt):
		httperrors.RespondValidationError(w, httperrors.ErrCodeInvalidAttempt, err.Error(), "attempt")
	default:
		httperrors.RespondInternalError(w, err.Error())
	}
}

func identityFromQuery(w http.ResponseWriter, r *http.Request) (uuid.UUID, int, bool) {
	var userID uuid.UUID
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			httperrors.RespondValidationError(w, httperrors.ErrCodeValidationFailed, "invalid user id", "user_id")
			return uuid.UUID{}, 0, false
		}
		userID = parsed
	}
	attempt := 0
	if raw := r.URL.Query().Get("attempt"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			httperrors.RespondValidationError(w, httperrors.ErrCodeValidationFailed, "invalid attempt", "attempt")
			return uuid.UUID{}, 0, false
		}
		attempt = parsed
	}
	return userID, attempt, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
