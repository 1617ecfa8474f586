package play

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/quizrally/sessioncore/internal/game"
	httperrors "github.com/quizrally/sessioncore/pkg/http/errors"
	ws "github.com/quizrally/sessioncore/pkg/http/ws"
)

// wsUpgrader handles WebSocket upgrades. Origin checks belong to the
// fronting gateway.
var wsUpgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Handler manages WebSocket connections and routes gameplay messages.
type Handler struct {
	service *Service
	hub     *ws.Hub
	logger  zerolog.Logger
}

// NewHandler creates a gameplay WebSocket handler.
func NewHandler(service *Service, hub *ws.Hub, logger zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		hub:     hub,
		logger:  logger.With().Str("component", "play_ws").Logger(),
	}
}

// HandleWebSocket upgrades the HTTP connection and hands it to the hub.
// Identity arrives as query parameters from the fronting gateway, which has
// already authenticated the caller.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	rawID := r.URL.Query().Get("user_id")
	userID, err := uuid.Parse(rawID)
	if err != nil {
		httperrors.RespondValidationError(w, httperrors.ErrCodeValidationFailed, "invalid user id", "user_id")
		return
	}
	participant := game.Participant{
		UserID:   userID,
		Username: r.URL.Query().Get("username"),
		Avatar:   r.URL.Query().Get("avatar"),
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	h.HandleConnection(conn, participant)
}

// HandleConnection processes a new WebSocket connection. Identity is
// established by the out-of-scope gateway before the upgrade reaches here.
func (h *Handler) HandleConnection(conn *websocket.Conn, participant game.Participant) {
	wsConn := ws.NewConnection(conn, h.logger)
	h.hub.RegisterConnection(participant.UserID, wsConn)

	go wsConn.WritePump()

	wsConn.ReadPump(func(msg ws.Message) error {
		return h.handleMessage(context.Background(), participant, msg)
	})

	h.hub.UnregisterConnection(participant.UserID)
}

func (h *Handler) handleMessage(ctx context.Context, participant game.Participant, msg ws.Message) error {
	switch msg.Type {
	case ws.TypeJoinGame:
		return h.handleJoinGame(ctx, participant, msg.Payload)
	case ws.TypeLeaveGame:
		return h.handleLeaveGame(participant, msg.Payload)
	case ws.TypeSubmitAnswer:
		return h.handleSubmitAnswer(ctx, participant, msg.Payload)
	case ws.TypeRequestLeaderboard:
		return h.handleRequestLeaderboard(ctx, participant, msg.Payload)
	case ws.TypePing:
		return h.hub.SendToUser(participant.UserID, ws.Message{Type: ws.TypePong})
	default:
		return h.sendError(participant.UserID, httperrors.ErrCodeUnknownMessageType, fmt.Sprintf("Unknown message type: %s", msg.Type))
	}
}

func (h *Handler) handleJoinGame(ctx context.Context, participant game.Participant, payload json.RawMessage) error {
	var req ws.JoinGamePayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return h.sendError(participant.UserID, httperrors.ErrCodeInvalidPayload, "Invalid join_game payload")
	}
	if req.Username != "" {
		participant.Username = req.Username
	}
	if req.Avatar != "" {
		participant.Avatar = req.Avatar
	}

	h.hub.JoinGame(req.GameCode, participant.UserID)

	return h.sendLeaderboard(ctx, participant, req.GameCode, req.Attempt)
}

func (h *Handler) handleLeaveGame(participant game.Participant, payload json.RawMessage) error {
	var req ws.LeaveGamePayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return h.sendError(participant.UserID, httperrors.ErrCodeInvalidPayload, "Invalid leave_game payload")
	}
	h.hub.LeaveGame(req.GameCode, participant.UserID)
	return nil
}

func (h *Handler) handleSubmitAnswer(ctx context.Context, participant game.Participant, payload json.RawMessage) error {
	var req ws.SubmitAnswerPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return h.sendError(participant.UserID, httperrors.ErrCodeInvalidPayload, "Invalid submit_answer payload")
	}

	scope, err := h.service.ResolveScope(ctx, req.GameCode, req.QuestionID, participant.UserID, req.Attempt)
	if err != nil {
		return h.sendError(participant.UserID, httperrors.ErrCodeGameNotFound, err.Error())
	}

	result, err := h.service.SubmitAnswer(ctx, scope, participant, game.Answer{
		Value:    req.Value,
		Selected: req.Selected,
	})
	if err != nil {
		return h.sendError(participant.UserID, httperrors.ErrCodeSubmitFailed, err.Error())
	}

	ack := ws.AnswerAckPayload{
		GameCode:        req.GameCode,
		QuestionID:      req.QuestionID,
		Correct:         result.Correct,
		ScoreAdded:      result.ScoreAdded,
		TotalScore:      result.TotalScore,
		ScoreUpdated:    result.ScoreUpdated,
		PenaltyFraction: result.PenaltyFraction,
	}
	return h.send(participant.UserID, ws.TypeAnswerAck, ack)
}

func (h *Handler) handleRequestLeaderboard(ctx context.Context, participant game.Participant, payload json.RawMessage) error {
	var req ws.RequestLeaderboardPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return h.sendError(participant.UserID, httperrors.ErrCodeInvalidPayload, "Invalid request_leaderboard payload")
	}
	return h.sendLeaderboard(ctx, participant, req.GameCode, req.Attempt)
}

func (h *Handler) sendLeaderboard(ctx context.Context, participant game.Participant, gameCode string, attempt int) error {
	entries, err := h.service.GetLeaderboardSnapshot(ctx, gameCode, participant, attempt)
	if err != nil {
		return h.sendError(participant.UserID, httperrors.ErrCodeLeaderboardFetchFailed, err.Error())
	}

	top := make([]ws.LeaderboardEntry, len(entries))
	for i, e := range entries {
		top[i] = ws.LeaderboardEntry{
			Rank:     e.Rank,
			UserID:   e.UserID.String(),
			Username: e.Username,
			Avatar:   e.Avatar,
			Score:    e.Score,
		}
	}
	return h.send(participant.UserID, ws.TypeLeaderboardUpdate, ws.LeaderboardUpdatePayload{
		GameCode: gameCode,
		Top:      top,
	})
}

func (h *Handler) send(userID uuid.UUID, msgType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return h.hub.SendToUser(userID, ws.Message{Type: msgType, Payload: raw})
}

func (h *Handler) sendError(userID uuid.UUID, code, message string) error {
	raw, err := json.Marshal(ws.ErrorPayload{Code: code, Message: message})
	if err != nil {
		return err
	}
	return h.hub.SendToUser(userID, ws.Message{Type: ws.TypeError, Payload: raw})
}
