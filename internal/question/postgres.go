package question

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quizrally/sessioncore/internal/game"
)

// PostgresLoader reads question definitions from the questions table.
type PostgresLoader struct {
	pool *pgxpool.Pool
}

func NewPostgresLoader(pool *pgxpool.Pool) *PostgresLoader {
	return &PostgresLoader{pool: pool}
}

const definitionQuery = `
SELECT uid, kind, correct_answer, tolerance, correct_options, time_limit_ms
FROM questions
WHERE uid = $1`

func (l *PostgresLoader) LoadDefinition(ctx context.Context, questionID string) (game.Question, error) {
	var (
		q         game.Question
		answer    pgtype.Float8
		tolerance pgtype.Float8
	)
	err := l.pool.QueryRow(ctx, definitionQuery, questionID).Scan(
		&q.ID, &q.Kind, &answer, &tolerance, &q.CorrectOptions, &q.TimeLimitMs,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return game.Question{}, fmt.Errorf("question %s: %w", questionID, ErrNotFound)
		}
		return game.Question{}, fmt.Errorf("load question %s: %w", questionID, err)
	}
	if answer.Valid {
		q.CorrectAnswer = answer.Float64
	}
	if tolerance.Valid {
		q.Tolerance = tolerance.Float64
	}
	return q, nil
}
