package game

import (
	"github.com/google/uuid"
)

// Mode identifies how a game session is played.
type Mode string

const (
	ModeQuiz               Mode = "quiz"
	ModeLiveTournament     Mode = "live_tournament"
	ModeDeferredTournament Mode = "deferred_tournament"
	ModePractice           Mode = "practice"
)

// Live reports whether all participants share one synchronized clock.
func (m Mode) Live() bool {
	return m == ModeQuiz || m == ModeLiveTournament
}

// Deferred reports whether each participant replays on their own clock.
func (m Mode) Deferred() bool {
	return m == ModeDeferredTournament
}

// Question kinds.
const (
	KindNumeric      = "numeric"
	KindSingleChoice = "single_choice"
	KindMultiChoice  = "multi_choice"
)

// Question is the server-side definition supplied by the persistence layer.
// CorrectOptions marks each option as correct or not for choice kinds;
// CorrectAnswer and Tolerance apply to the numeric kind only.
type Question struct {
	ID             string  `json:"id"`
	Kind           string  `json:"kind"`
	CorrectAnswer  float64 `json:"correct_answer,omitempty"`
	Tolerance      float64 `json:"tolerance,omitempty"`
	CorrectOptions []bool  `json:"correct_options,omitempty"`
	TimeLimitMs    int64   `json:"time_limit_ms"`
}

// Answer is a participant's submission. Numeric questions use Value (raw
// text, parsed server-side); choice questions use Selected option indices.
type Answer struct {
	Value    string `json:"value,omitempty"`
	Selected []int  `json:"selected,omitempty"`
}

// Participant identity, supplied by the auth/session layer.
type Participant struct {
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	Avatar   string    `json:"avatar,omitempty"`
}

// Metadata describes a game instance as provided by the persistence layer.
type Metadata struct {
	GameCode      string `json:"game_code"`
	Mode          Mode   `json:"mode"`
	QuestionCount int    `json:"question_count"`
}

// LeaderboardEntry is one ranked row of a broadcastable leaderboard.
type LeaderboardEntry struct {
	Rank     int       `json:"rank"`
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	Avatar   string    `json:"avatar,omitempty"`
	Score    float64   `json:"score"`
}

// ScoreResult reports the outcome of one answer submission. ScoreAdded is
// the non-negative contribution persisted by this submission; a zero value
// with a nil error is a valid outcome (wrong answer, stale resubmission),
// distinct from a store failure which surfaces as an error.
type ScoreResult struct {
	ScoreAdded      float64 `json:"score_added"`
	TotalScore      float64 `json:"total_score"`
	ScoreUpdated    bool    `json:"score_updated"`
	Correct         bool    `json:"correct"`
	PenaltyFraction float64 `json:"penalty_fraction"`
}
