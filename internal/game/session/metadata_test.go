package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizrally/sessioncore/internal/game"
)

func TestRegisterGameRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RegisterGame(ctx, game.Metadata{
		GameCode: "ROOM1", Mode: game.ModeLiveTournament, QuestionCount: 12,
	}))

	meta, err := store.Metadata(ctx, "ROOM1")
	require.NoError(t, err)
	assert.Equal(t, game.ModeLiveTournament, meta.Mode)
	assert.Equal(t, 12, meta.QuestionCount)
}

func TestRegisterGameValidation(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	assert.Error(t, store.RegisterGame(ctx, game.Metadata{Mode: game.ModeQuiz, QuestionCount: 5}))
	assert.Error(t, store.RegisterGame(ctx, game.Metadata{GameCode: "ROOM1", Mode: game.ModeQuiz}))
}

func TestMetadataUnknownGame(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Metadata(context.Background(), "NOPE")
	assert.ErrorIs(t, err, ErrGameNotFound)
}

func TestActiveGamesIndex(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RegisterGame(ctx, game.Metadata{GameCode: "A1", Mode: game.ModeQuiz, QuestionCount: 1}))
	require.NoError(t, store.RegisterGame(ctx, game.Metadata{GameCode: "B2", Mode: game.ModeQuiz, QuestionCount: 1}))

	codes, err := store.ActiveGames(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A1", "B2"}, codes)

	require.NoError(t, store.UnregisterGame(ctx, "A1"))
	codes, err = store.ActiveGames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"B2"}, codes)
}
