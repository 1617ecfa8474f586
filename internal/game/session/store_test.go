package session

import (
	"context"
	"sync"
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

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewStore(client, zerolog.Nop(), StoreOptions{}), mr
}

func player(name string) game.Participant {
	return game.Participant{UserID: uuid.New(), Username: name}
}

func record(userID uuid.UUID, points float64, atMs int64) AnswerRecord {
	return AnswerRecord{
		UserID:        userID,
		Answer:        game.Answer{Selected: []int{0}},
		ElapsedMs:     1000,
		SubmittedAtMs: atMs,
		Correct:       points > 0,
		Points:        points,
	}
}

func TestLiveSubmitFeedsGlobalLeaderboard(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	scope := game.LiveScope("ROOM1", "q-1", game.ModeQuiz)
	alice := player("alice")

	out, err := store.Submit(ctx, scope, alice, record(alice.UserID, 450, 100))
	require.NoError(t, err)
	assert.True(t, out.Applied)
	assert.Equal(t, float64(0), out.PreviousPoints)
	assert.Equal(t, float64(450), out.TotalScore)

	entries, err := store.Snapshot(ctx, "ROOM1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, alice.UserID, entries[0].UserID)
	assert.Equal(t, "alice", entries[0].Username)
	assert.Equal(t, float64(450), entries[0].Score)
	assert.Equal(t, 1, entries[0].Rank)
}

func TestResubmissionReplacesNotSums(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	scope := game.LiveScope("ROOM1", "q-1", game.ModeQuiz)
	alice := player("alice")

	_, err := store.Submit(ctx, scope, alice, record(alice.UserID, 450, 100))
	require.NoError(t, err)

	// Changing the answer later replaces the prior contribution.
	out, err := store.Submit(ctx, scope, alice, record(alice.UserID, 300, 200))
	require.NoError(t, err)
	assert.True(t, out.Applied)
	assert.Equal(t, float64(450), out.PreviousPoints)
	assert.Equal(t, float64(300), out.TotalScore)
}

func TestStaleSubmissionLoses(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	scope := game.LiveScope("ROOM1", "q-1", game.ModeQuiz)
	alice := player("alice")

	_, err := store.Submit(ctx, scope, alice, record(alice.UserID, 300, 200))
	require.NoError(t, err)

	// A submission with an earlier logical timestamp must not win the race.
	out, err := store.Submit(ctx, scope, alice, record(alice.UserID, 450, 100))
	require.NoError(t, err)
	assert.False(t, out.Applied)
	assert.Equal(t, float64(300), out.TotalScore)
}

func TestConcurrentSubmissionsPersistExactlyOneScore(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	scope := game.LiveScope("ROOM1", "q-1", game.ModeQuiz)
	alice := player("alice")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.Submit(ctx, scope, alice, record(alice.UserID, float64(100+i), int64(1000+i)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	// The logically last submission (highest timestamp) wins; totals are
	// never a double-counted sum of racing writes.
	entries, err := store.Snapshot(ctx, "ROOM1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, float64(119), entries[0].Score)
}

func TestSnapshotTieBreakEarliestScorerWins(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	scope := game.LiveScope("ROOM1", "q-1", game.ModeQuiz)

	fast := player("fast")
	slow := player("slow")
	top := player("top")

	_, err := store.Submit(ctx, scope, fast, record(fast.UserID, 500, 100))
	require.NoError(t, err)
	_, err = store.Submit(ctx, scope, slow, record(slow.UserID, 500, 900))
	require.NoError(t, err)
	_, err = store.Submit(ctx, scope, top, record(top.UserID, 800, 500))
	require.NoError(t, err)

	entries, err := store.Snapshot(ctx, "ROOM1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "top", entries[0].Username)
	assert.Equal(t, "fast", entries[1].Username)
	assert.Equal(t, "slow", entries[2].Username)
	assert.Equal(t, []int{1, 2, 3}, []int{entries[0].Rank, entries[1].Rank, entries[2].Rank})
}

func TestDeferredSubmitIsolatedFromGlobalLeaderboard(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	alice := player("alice")
	scope, err := game.DeferredScope("ROOM1", alice.UserID, 1, "q-1")
	require.NoError(t, err)

	out, err := store.Submit(ctx, scope, alice, record(alice.UserID, 500, 100))
	require.NoError(t, err)
	assert.True(t, out.Applied)
	assert.Equal(t, float64(500), out.TotalScore)

	// A third-party observer sees no entry for the deferred player.
	entries, err := store.Snapshot(ctx, "ROOM1", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// The player's own view is a single-entry leaderboard.
	view, err := store.ParticipantView(ctx, scope)
	require.NoError(t, err)
	require.Len(t, view, 1)
	assert.Equal(t, float64(500), view[0].Score)
	assert.Equal(t, 1, view[0].Rank)
}

func TestDeferredAttemptsDoNotInherit(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	alice := player("alice")

	first, err := game.DeferredScope("ROOM1", alice.UserID, 1, "q-1")
	require.NoError(t, err)
	second, err := game.DeferredScope("ROOM1", alice.UserID, 2, "q-1")
	require.NoError(t, err)

	_, err = store.Submit(ctx, first, alice, record(alice.UserID, 500, 100))
	require.NoError(t, err)

	// Attempt 2 starts from zero, not from attempt 1's score.
	out, err := store.Submit(ctx, second, alice, record(alice.UserID, 200, 200))
	require.NoError(t, err)
	assert.Equal(t, float64(200), out.TotalScore)

	rec1, err := store.Attempt(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, float64(500), rec1.Score)
}

func TestDeferredAttemptTracksAnsweredCount(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	alice := player("alice")

	q1, err := game.DeferredScope("ROOM1", alice.UserID, 1, "q-1")
	require.NoError(t, err)
	q2, err := game.DeferredScope("ROOM1", alice.UserID, 1, "q-2")
	require.NoError(t, err)

	_, err = store.Submit(ctx, q1, alice, record(alice.UserID, 100, 100))
	require.NoError(t, err)
	// Resubmitting the same question does not bump the answered count.
	_, err = store.Submit(ctx, q1, alice, record(alice.UserID, 150, 200))
	require.NoError(t, err)
	_, err = store.Submit(ctx, q2, alice, record(alice.UserID, 100, 300))
	require.NoError(t, err)

	rec, err := store.Attempt(ctx, q1)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Answered)
	assert.Equal(t, float64(250), rec.Score)
}

func TestFinalizeSealsAttempt(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	alice := player("alice")
	scope, err := game.DeferredScope("ROOM1", alice.UserID, 1, "q-1")
	require.NoError(t, err)

	_, err = store.Submit(ctx, scope, alice, record(alice.UserID, 500, 100))
	require.NoError(t, err)

	rec, err := store.FinalizeAttempt(ctx, scope)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.IsComplete)
	assert.Equal(t, float64(500), rec.Score)

	// Sealed attempts reject further submissions.
	out, err := store.Submit(ctx, scope, alice, record(alice.UserID, 900, 999))
	require.NoError(t, err)
	assert.False(t, out.Applied)
	assert.Equal(t, float64(500), out.TotalScore)

	// Finalize is idempotent.
	again, err := store.FinalizeAttempt(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, rec.Score, again.Score)
}

func TestFinalizeRevealsBestScoreOnLeaderboard(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	alice := player("alice")

	first, err := game.DeferredScope("ROOM1", alice.UserID, 1, "q-1")
	require.NoError(t, err)
	_, err = store.Submit(ctx, first, alice, record(alice.UserID, 500, 100))
	require.NoError(t, err)

	// Invisible until finalized, then ranked like any live player.
	entries, err := store.Snapshot(ctx, "ROOM1", 10)
	require.NoError(t, err)
	require.Empty(t, entries)

	_, err = store.FinalizeAttempt(ctx, first)
	require.NoError(t, err)

	entries, err = store.Snapshot(ctx, "ROOM1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, alice.UserID, entries[0].UserID)
	assert.Equal(t, "alice", entries[0].Username)
	assert.Equal(t, float64(500), entries[0].Score)

	// A weaker second attempt never pulls the board entry down.
	second, err := game.DeferredScope("ROOM1", alice.UserID, 2, "q-1")
	require.NoError(t, err)
	_, err = store.Submit(ctx, second, alice, record(alice.UserID, 200, 200))
	require.NoError(t, err)
	_, err = store.FinalizeAttempt(ctx, second)
	require.NoError(t, err)

	entries, err = store.Snapshot(ctx, "ROOM1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, float64(500), entries[0].Score)
}

func TestFinalizeMissingAttemptReturnsNil(t *testing.T) {
	store, _ := newTestStore(t)
	scope, err := game.DeferredScope("ROOM1", uuid.New(), 1, "q-1")
	require.NoError(t, err)

	rec, err := store.FinalizeAttempt(context.Background(), scope)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestPracticePersistsNothing(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	alice := player("alice")
	scope := game.PracticeScope("ROOM1", "q-1", alice.UserID)

	out, err := store.Submit(ctx, scope, alice, record(alice.UserID, 500, 100))
	require.NoError(t, err)
	assert.False(t, out.Applied)
	assert.Equal(t, float64(500), out.TotalScore)

	assert.Empty(t, mr.Keys())
}

func TestRecordedAnswerRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	scope := game.LiveScope("ROOM1", "q-1", game.ModeQuiz)
	alice := player("alice")

	rec := AnswerRecord{
		UserID:        alice.UserID,
		Answer:        game.Answer{Value: "42"},
		ElapsedMs:     2500,
		SubmittedAtMs: 100,
		Correct:       true,
		Points:        333.33,
	}
	_, err := store.Submit(ctx, scope, alice, rec)
	require.NoError(t, err)

	got, err := store.RecordedAnswer(ctx, scope, alice.UserID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec, *got)

	missing, err := store.RecordedAnswer(ctx, scope, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestResetQuestionClearsAnswers(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	scope := game.LiveScope("ROOM1", "q-1", game.ModeQuiz)
	alice := player("alice")

	_, err := store.Submit(ctx, scope, alice, record(alice.UserID, 500, 100))
	require.NoError(t, err)
	require.NoError(t, store.ResetQuestion(ctx, scope))

	got, err := store.RecordedAnswer(ctx, scope, alice.UserID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestEntryTTLBoundsState(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewStore(client, zerolog.Nop(), StoreOptions{EntryTTL: time.Hour})
	scope := game.LiveScope("ROOM1", "q-1", game.ModeQuiz)
	alice := player("alice")

	_, err = store.Submit(context.Background(), scope, alice, record(alice.UserID, 100, 100))
	require.NoError(t, err)

	ttl := mr.TTL(scope.AnswerKey())
	assert.Equal(t, time.Hour, ttl)
}
