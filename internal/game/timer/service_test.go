package timer

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizrally/sessioncore/internal/game"
)

// fakeClock advances only when told to, making play intervals exact.
type fakeClock struct {
	current time.Time
}

func (c *fakeClock) now() time.Time { return c.current }

func (c *fakeClock) advance(d time.Duration) { c.current = c.current.Add(d) }

func newTestService(t *testing.T) (*Service, *fakeClock) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clock := &fakeClock{current: time.UnixMilli(1_700_000_000_000)}
	svc := NewService(client, zerolog.Nop(), ServiceOptions{Now: clock.now})
	return svc, clock
}

func TestStartCreatesPlayingTimer(t *testing.T) {
	svc, clock := newTestService(t)
	scope := game.LiveScope("ROOM1", "q-1", game.ModeQuiz)

	state, err := svc.Start(context.Background(), scope)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, StatusPlay, state.Status)
	assert.Equal(t, int64(0), state.TotalPlayMs)
	assert.Equal(t, clock.now().UnixMilli(), state.LastChange.UnixMilli())
}

func TestStartIsIdempotentWhilePlaying(t *testing.T) {
	svc, clock := newTestService(t)
	scope := game.LiveScope("ROOM1", "q-1", game.ModeQuiz)
	ctx := context.Background()

	_, err := svc.Start(ctx, scope)
	require.NoError(t, err)

	clock.advance(4 * time.Second)
	state, err := svc.Start(ctx, scope)
	require.NoError(t, err)

	// The accumulator must not reset and the open interval stays open.
	assert.Equal(t, int64(0), state.TotalPlayMs)
	elapsed, err := svc.ElapsedMs(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, int64(4000), elapsed)
}

func TestPauseResumeAccumulatesPlayIntervals(t *testing.T) {
	svc, clock := newTestService(t)
	scope := game.LiveScope("ROOM1", "q-1", game.ModeQuiz)
	ctx := context.Background()

	_, err := svc.Start(ctx, scope)
	require.NoError(t, err)

	clock.advance(3 * time.Second)
	state, err := svc.Pause(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, StatusPause, state.Status)
	assert.Equal(t, int64(3000), state.TotalPlayMs)

	// Time spent paused does not count.
	clock.advance(10 * time.Second)
	elapsed, err := svc.ElapsedMs(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), elapsed)

	_, err = svc.Start(ctx, scope)
	require.NoError(t, err)
	clock.advance(2 * time.Second)

	elapsed, err = svc.ElapsedMs(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), elapsed)

	// Second pause folds the interval exactly once.
	state, err = svc.Pause(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), state.TotalPlayMs)

	state, err = svc.Pause(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), state.TotalPlayMs)
}

func TestPauseWithoutTimerIsNotFatal(t *testing.T) {
	svc, _ := newTestService(t)
	scope := game.LiveScope("ROOM1", "q-9", game.ModeQuiz)

	state, err := svc.Pause(context.Background(), scope)
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestElapsedMissingTimerIsZero(t *testing.T) {
	svc, _ := newTestService(t)
	scope := game.LiveScope("ROOM1", "q-9", game.ModeQuiz)

	elapsed, err := svc.ElapsedMs(context.Background(), scope)
	require.NoError(t, err)
	assert.Equal(t, int64(0), elapsed)
}

func TestPracticeScopeIsNoop(t *testing.T) {
	svc, _ := newTestService(t)
	scope := game.PracticeScope("ROOM1", "q-1", uuid.New())
	ctx := context.Background()

	state, err := svc.Start(ctx, scope)
	require.NoError(t, err)
	assert.Nil(t, state)

	elapsed, err := svc.ElapsedMs(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, int64(0), elapsed)

	require.NoError(t, svc.Reset(ctx, scope))
}

func TestResetDeletesState(t *testing.T) {
	svc, clock := newTestService(t)
	scope := game.LiveScope("ROOM1", "q-1", game.ModeQuiz)
	ctx := context.Background()

	_, err := svc.Start(ctx, scope)
	require.NoError(t, err)
	clock.advance(2 * time.Second)

	require.NoError(t, svc.Reset(ctx, scope))

	elapsed, err := svc.ElapsedMs(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, int64(0), elapsed)
}

func TestDeferredScopesAreIsolated(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()

	alice := uuid.New()
	bob := uuid.New()
	scopeA, err := game.DeferredScope("ROOM1", alice, 1, "q-1")
	require.NoError(t, err)
	scopeB, err := game.DeferredScope("ROOM1", bob, 1, "q-1")
	require.NoError(t, err)

	_, err = svc.Start(ctx, scopeA)
	require.NoError(t, err)
	clock.advance(5 * time.Second)

	_, err = svc.Start(ctx, scopeB)
	require.NoError(t, err)
	clock.advance(1 * time.Second)

	elapsedA, err := svc.ElapsedMs(ctx, scopeA)
	require.NoError(t, err)
	elapsedB, err := svc.ElapsedMs(ctx, scopeB)
	require.NoError(t, err)

	assert.Equal(t, int64(6000), elapsedA)
	assert.Equal(t, int64(1000), elapsedB)
}

func TestCountdownViews(t *testing.T) {
	svc, clock := newTestService(t)
	scope := game.LiveScope("ROOM1", "q-1", game.ModeQuiz)
	ctx := context.Background()

	// No timer yet: stopped with full duration.
	cd, err := svc.Countdown(ctx, scope, 30_000)
	require.NoError(t, err)
	assert.Equal(t, "stop", cd.Status)
	assert.Equal(t, int64(30_000), cd.TimeLeftMs)

	_, err = svc.Start(ctx, scope)
	require.NoError(t, err)
	clock.advance(12 * time.Second)

	cd, err = svc.Countdown(ctx, scope, 30_000)
	require.NoError(t, err)
	assert.Equal(t, "run", cd.Status)
	assert.Equal(t, int64(18_000), cd.TimeLeftMs)
	assert.Equal(t, clock.now().UnixMilli()+18_000, cd.EndsAtMs)

	_, err = svc.Pause(ctx, scope)
	require.NoError(t, err)
	cd, err = svc.Countdown(ctx, scope, 30_000)
	require.NoError(t, err)
	assert.Equal(t, "pause", cd.Status)
	assert.Equal(t, int64(18_000), cd.TimeLeftMs)

	// Exhausted duration forces stop.
	_, err = svc.Start(ctx, scope)
	require.NoError(t, err)
	clock.advance(time.Minute)
	cd, err = svc.Countdown(ctx, scope, 30_000)
	require.NoError(t, err)
	assert.Equal(t, "stop", cd.Status)
	assert.Equal(t, int64(0), cd.TimeLeftMs)
}
