package ws

import "encoding/json"

// MessageType constants for WebSocket protocol.
const (
	// Client -> Server
	TypeJoinGame           = "join_game"
	TypeLeaveGame          = "leave_game"
	TypeSubmitAnswer       = "submit_answer"
	TypeRequestLeaderboard = "request_leaderboard"

	// Server -> Client
	TypeAnswerAck         = "answer_ack"
	TypeLeaderboardUpdate = "leaderboard_update"
	TypeTimerUpdate       = "timer_update"
	TypeError             = "error"
	TypePing              = "ping"
	TypePong              = "pong"
)

// Message wraps all WebSocket payloads with type and optional request ID.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	RequestID string          `json:"request_id,omitempty"`
}

// Client Messages (incoming)

type JoinGamePayload struct {
	GameCode string `json:"game_code"`
	Username string `json:"username,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
	Attempt  int    `json:"attempt,omitempty"` // deferred replays only
}

type LeaveGamePayload struct {
	GameCode string `json:"game_code"`
}

type SubmitAnswerPayload struct {
	GameCode   string `json:"game_code"`
	QuestionID string `json:"question_id"`
	Attempt    int    `json:"attempt,omitempty"`
	Value      string `json:"value,omitempty"`
	Selected   []int  `json:"selected,omitempty"`
}

type RequestLeaderboardPayload struct {
	GameCode string `json:"game_code"`
	Attempt  int    `json:"attempt,omitempty"`
}

// Server Messages (outgoing)

type AnswerAckPayload struct {
	GameCode        string  `json:"game_code"`
	QuestionID      string  `json:"question_id"`
	Correct         bool    `json:"correct"`
	ScoreAdded      float64 `json:"score_added"`
	TotalScore      float64 `json:"total_score"`
	ScoreUpdated    bool    `json:"score_updated"`
	PenaltyFraction float64 `json:"penalty_fraction"`
}

type LeaderboardUpdatePayload struct {
	GameCode string             `json:"game_code"`
	Top      []LeaderboardEntry `json:"top"`
}

type LeaderboardEntry struct {
	Rank     int     `json:"rank"`
	UserID   string  `json:"user_id"`
	Username string  `json:"username"`
	Avatar   string  `json:"avatar,omitempty"`
	Score    float64 `json:"score"`
}

type TimerUpdatePayload struct {
	GameCode   string `json:"game_code"`
	QuestionID string `json:"question_id"`
	Status     string `json:"status"` // run | pause | stop
	DurationMs int64  `json:"duration_ms"`
	TimeLeftMs int64  `json:"time_left_ms"`
	EndsAtMs   int64  `json:"ends_at_ms,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
