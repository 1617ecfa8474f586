package scoring

import (
	"math"
	"strconv"
	"strings"

	"github.com/quizrally/sessioncore/internal/game"
)

// Config holds the tunable scoring constants. The shape of the scoring
// function is fixed; these only move the policy knobs.
type Config struct {
	// TotalBudget is the per-game point budget split evenly across
	// questions, so a perfect game always sums to the budget.
	TotalBudget float64
	// MaxTimePenalty is the fraction lost by an answer arriving at the full
	// allotted duration. Time alone never zeroes a score.
	MaxTimePenalty float64
	// Damping shapes the logarithmic penalty curve; higher values punish
	// early seconds harder.
	Damping float64
}

// DefaultConfig returns production defaults: 1000 point budget, 30% maximum
// time penalty, damping of 4.
func DefaultConfig() Config {
	return Config{
		TotalBudget:    1000,
		MaxTimePenalty: 0.30,
		Damping:        4.0,
	}
}

// Result is the pure outcome of scoring one submission.
type Result struct {
	// Points contributed by this submission, already penalty-adjusted and
	// floored at zero.
	Points float64
	// Ratio is the correctness ratio in [0, 1] before time penalty.
	Ratio float64
	// Correct reports a strictly positive ratio.
	Correct bool
	// PenaltyFraction is the applied time penalty in [0, MaxTimePenalty].
	PenaltyFraction float64
}

// Engine computes score contributions. It is stateless and persists
// nothing; callers obtain elapsed time from the timer service.
type Engine struct {
	config Config
}

// NewEngine creates a scoring engine with the provided config, falling back
// to defaults for unset knobs.
func NewEngine(config Config) *Engine {
	if config.TotalBudget <= 0 {
		config.TotalBudget = DefaultConfig().TotalBudget
	}
	if config.MaxTimePenalty <= 0 {
		config.MaxTimePenalty = DefaultConfig().MaxTimePenalty
	}
	if config.Damping <= 0 {
		config.Damping = DefaultConfig().Damping
	}
	return &Engine{config: config}
}

// Score converts a submitted answer plus elapsed in-play time into a score
// contribution. questionCount is the total number of questions in the game;
// the per-question base is TotalBudget / questionCount.
//
// Malformed answers score zero rather than failing: a deterministic score
// must come out of every submission.
func (e *Engine) Score(question game.Question, answer game.Answer, elapsedMs int64, questionCount int) Result {
	if questionCount <= 0 {
		questionCount = 1
	}

	ratio := CorrectnessRatio(question, answer)
	penalty := e.timePenalty(elapsedMs, question.TimeLimitMs)

	base := e.config.TotalBudget / float64(questionCount)
	points := ratio * base * (1 - penalty)
	if points < 0 {
		points = 0
	}

	return Result{
		Points:          round2(points),
		Ratio:           ratio,
		Correct:         ratio > 0,
		PenaltyFraction: penalty,
	}
}

// BaseScore returns the per-question share of the game budget.
func (e *Engine) BaseScore(questionCount int) float64 {
	if questionCount <= 0 {
		questionCount = 1
	}
	return e.config.TotalBudget / float64(questionCount)
}

// CorrectnessRatio maps an answer onto [0, 1] for its question kind.
//
// Numeric: 1 iff |submitted - correct| <= tolerance (inclusive boundary),
// else 0. Non-numeric submissions are incorrect, not errors.
//
// Choice kinds: max(0, C/Tc - W/Tw) where C correct options chosen of Tc,
// W wrong options chosen of Tw. Picking a wrong option subtracts in
// proportion to the wrong-option budget, so one right plus one wrong among
// few options can zero out. Empty selections score 0.
func CorrectnessRatio(question game.Question, answer game.Answer) float64 {
	switch question.Kind {
	case game.KindNumeric:
		return numericRatio(question, answer)
	case game.KindSingleChoice, game.KindMultiChoice:
		return choiceRatio(question, answer)
	default:
		return 0
	}
}

func numericRatio(question game.Question, answer game.Answer) float64 {
	raw := strings.TrimSpace(answer.Value)
	if raw == "" {
		return 0
	}
	submitted, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	if math.Abs(submitted-question.CorrectAnswer) <= question.Tolerance {
		return 1
	}
	return 0
}

func choiceRatio(question game.Question, answer game.Answer) float64 {
	if len(answer.Selected) == 0 {
		return 0
	}

	totalCorrect, totalWrong := 0, 0
	for _, correct := range question.CorrectOptions {
		if correct {
			totalCorrect++
		} else {
			totalWrong++
		}
	}
	if totalCorrect == 0 {
		return 0
	}

	seen := make(map[int]bool, len(answer.Selected))
	chosenCorrect, chosenWrong := 0, 0
	for _, idx := range answer.Selected {
		if idx < 0 || idx >= len(question.CorrectOptions) || seen[idx] {
			continue
		}
		seen[idx] = true
		if question.CorrectOptions[idx] {
			chosenCorrect++
		} else {
			chosenWrong++
		}
	}

	ratio := float64(chosenCorrect) / float64(totalCorrect)
	if totalWrong > 0 {
		ratio -= float64(chosenWrong) / float64(totalWrong)
	}
	if ratio < 0 {
		return 0
	}
	return ratio
}

// timePenalty is monotonically increasing and sub-linear in elapsed time:
// MaxTimePenalty * ln(1 + a*t/T) / ln(1 + a). Instantaneous answers lose
// ~0%; an answer at the full duration loses exactly MaxTimePenalty.
// Negative elapsed time clamps to no penalty; overtime saturates at the
// allotted duration. A zero time limit means maximal time pressure: the
// bounded penalty applies in full instead of dividing by zero.
func (e *Engine) timePenalty(elapsedMs, timeLimitMs int64) float64 {
	if timeLimitMs <= 0 {
		return e.config.MaxTimePenalty
	}
	if elapsedMs <= 0 {
		return 0
	}
	if elapsedMs > timeLimitMs {
		elapsedMs = timeLimitMs
	}

	frac := float64(elapsedMs) / float64(timeLimitMs)
	shaped := math.Log(1+e.config.Damping*frac) / math.Log(1+e.config.Damping)
	return e.config.MaxTimePenalty * shaped
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
