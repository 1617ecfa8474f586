package leaderboard

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizrally/sessioncore/internal/game"
	"github.com/quizrally/sessioncore/internal/game/session"
	ws "github.com/quizrally/sessioncore/pkg/http/ws"
)

func newRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func seedScore(t *testing.T, client *redis.Client, gameCode, username string, score float64) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	userID := uuid.New()
	require.NoError(t, client.ZAdd(ctx, game.LeaderboardKey(gameCode), redis.Z{
		Score:  score,
		Member: userID.String(),
	}).Err())
	require.NoError(t, client.HSet(ctx, game.PlayerKey(gameCode, userID),
		"username", username,
		"last_score_at", 1,
	).Err())
	return userID
}

func TestPublisherPublishesRankedSnapshot(t *testing.T) {
	client, _ := newRedis(t)
	ctx := context.Background()
	store := session.NewStore(client, zerolog.Nop(), session.StoreOptions{})
	seedScore(t, client, "ROOM1", "top", 300)
	seedScore(t, client, "ROOM1", "bottom", 100)

	sub := client.Subscribe(ctx, "lb:updates")
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	pub := NewPublisher(client, store, "", 50, zerolog.Nop())
	require.NoError(t, pub.PublishScoreUpdate(ctx, "ROOM1"))

	select {
	case msg := <-sub.Channel():
		var payload ws.LeaderboardUpdatePayload
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &payload))
		assert.Equal(t, "ROOM1", payload.GameCode)
		require.Len(t, payload.Top, 2)
		assert.Equal(t, "top", payload.Top[0].Username)
		assert.Equal(t, 1, payload.Top[0].Rank)
		assert.Equal(t, float64(300), payload.Top[0].Score)
		assert.Equal(t, "bottom", payload.Top[1].Username)
	case <-time.After(2 * time.Second):
		t.Fatal("no leaderboard update received")
	}
}

func TestPublisherEmptyBoard(t *testing.T) {
	client, _ := newRedis(t)
	store := session.NewStore(client, zerolog.Nop(), session.StoreOptions{})

	pub := NewPublisher(client, store, "", 50, zerolog.Nop())
	assert.NoError(t, pub.PublishScoreUpdate(context.Background(), "EMPTY"))
}

type collectingSink struct {
	snaps []Snapshot
}

func (c *collectingSink) InsertSnapshot(_ context.Context, snap Snapshot) error {
	c.snaps = append(c.snaps, snap)
	return nil
}

func TestSnapshotWorkerPersistsActiveGames(t *testing.T) {
	client, _ := newRedis(t)
	ctx := context.Background()
	store := session.NewStore(client, zerolog.Nop(), session.StoreOptions{})

	require.NoError(t, store.RegisterGame(ctx, game.Metadata{GameCode: "ROOM1", Mode: game.ModeQuiz, QuestionCount: 3}))
	require.NoError(t, store.RegisterGame(ctx, game.Metadata{GameCode: "IDLE", Mode: game.ModeQuiz, QuestionCount: 3}))
	seedScore(t, client, "ROOM1", "alice", 420)

	sink := &collectingSink{}
	w := NewSnapshotWorker(store, sink, time.Minute, 100, zerolog.Nop())
	w.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	w.tick(ctx)

	// Games with no scores yet produce no snapshot rows.
	require.Len(t, sink.snaps, 1)
	snap := sink.snaps[0]
	assert.Equal(t, "ROOM1", snap.GameCode)
	assert.NotEmpty(t, snap.SourceHash)
	assert.Equal(t, time.UnixMilli(1_700_000_000_000).UTC(), snap.GeneratedAt)

	var entries []ws.LeaderboardEntry
	require.NoError(t, json.Unmarshal(snap.Entries, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "alice", entries[0].Username)
}

func TestBroadcasterIgnoresMalformedPayloads(t *testing.T) {
	client, _ := newRedis(t)
	hub := ws.NewHub(zerolog.Nop())
	b := NewBroadcaster(client, hub, "", zerolog.Nop())

	b.forward("{not json")
	b.forward(`{"top":[]}`) // missing game code
}

func TestBroadcasterStopsOnCancel(t *testing.T) {
	client, _ := newRedis(t)
	hub := ws.NewHub(zerolog.Nop())
	b := NewBroadcaster(client, hub, "", zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("broadcaster did not stop")
	}
}
