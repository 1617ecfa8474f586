package play

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizrally/sessioncore/internal/db/repository"
	"github.com/quizrally/sessioncore/internal/leaderboard"
)

type stubResultsReader struct {
	results []repository.GameResult
}

func (s *stubResultsReader) BestResult(_ context.Context, gameCode string, userID uuid.UUID) (repository.GameResult, error) {
	for _, res := range s.results {
		if res.GameCode == gameCode && res.UserID == userID {
			return res, nil
		}
	}
	return repository.GameResult{}, repository.ErrNotFound
}

func (s *stubResultsReader) ListResults(_ context.Context, gameCode string) ([]repository.GameResult, error) {
	out := []repository.GameResult{}
	for _, res := range s.results {
		if res.GameCode == gameCode {
			out = append(out, res)
		}
	}
	return out, nil
}

type stubSnapshotReader struct {
	snap *leaderboard.Snapshot
}

func (s *stubSnapshotReader) LatestSnapshot(_ context.Context, gameCode string) (leaderboard.Snapshot, error) {
	if s.snap == nil || s.snap.GameCode != gameCode {
		return leaderboard.Snapshot{}, repository.ErrNotFound
	}
	return *s.snap, nil
}

type stubInvalidator struct {
	invalidated []string
}

func (s *stubInvalidator) Invalidate(_ context.Context, questionID string) error {
	s.invalidated = append(s.invalidated, questionID)
	return nil
}

func newResultsRouter(results *stubResultsReader, snaps *stubSnapshotReader, inv *stubInvalidator) http.Handler {
	h := NewResultsHTTPHandlers(results, snaps, inv, zerolog.Nop())
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/games/{code}/results", h.HandleListResults)
	mux.HandleFunc("GET /v1/games/{code}/results/{user_id}", h.HandleBestResult)
	mux.HandleFunc("GET /v1/games/{code}/snapshots/latest", h.HandleLatestSnapshot)
	mux.HandleFunc("DELETE /v1/questions/{qid}/cache", h.HandleInvalidateQuestion)
	return mux
}

func TestHTTPListAndBestResults(t *testing.T) {
	alice := uuid.New()
	bob := uuid.New()
	reader := &stubResultsReader{results: []repository.GameResult{
		{GameCode: "TOUR1", UserID: alice, Attempt: 2, Username: "alice", Score: 910, Answered: 2, CompletedAt: time.Now().UTC()},
		{GameCode: "TOUR1", UserID: bob, Attempt: 1, Username: "bob", Score: 640, Answered: 2, CompletedAt: time.Now().UTC()},
	}}
	mux := newResultsRouter(reader, &stubSnapshotReader{}, &stubInvalidator{})

	rec := doJSON(t, mux, http.MethodGet, "/v1/games/TOUR1/results", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Results []gameResultView `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Results, 2)
	assert.Equal(t, "alice", list.Results[0].Username)

	rec = doJSON(t, mux, http.MethodGet, "/v1/games/TOUR1/results/"+bob.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var best gameResultView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &best))
	assert.Equal(t, float64(640), best.Score)
	assert.Equal(t, 1, best.Attempt)

	rec = doJSON(t, mux, http.MethodGet, "/v1/games/TOUR1/results/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, mux, http.MethodGet, "/v1/games/TOUR1/results/garbage", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHTTPLatestSnapshot(t *testing.T) {
	entries := `[{"rank":1,"user_id":"` + uuid.NewString() + `","username":"alice","score":910}]`
	snaps := &stubSnapshotReader{snap: &leaderboard.Snapshot{
		GameCode:    "TOUR1",
		GeneratedAt: time.Now().UTC(),
		Entries:     []byte(entries),
		SourceHash:  "abc123",
	}}
	mux := newResultsRouter(&stubResultsReader{}, snaps, &stubInvalidator{})

	rec := doJSON(t, mux, http.MethodGet, "/v1/games/TOUR1/snapshots/latest", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		GameCode   string            `json:"game_code"`
		SourceHash string            `json:"source_hash"`
		Entries    []json.RawMessage `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "TOUR1", body.GameCode)
	assert.Equal(t, "abc123", body.SourceHash)
	assert.Len(t, body.Entries, 1)

	rec = doJSON(t, mux, http.MethodGet, "/v1/games/NOPE/snapshots/latest", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHTTPInvalidateQuestionCache(t *testing.T) {
	inv := &stubInvalidator{}
	mux := newResultsRouter(&stubResultsReader{}, &stubSnapshotReader{}, inv)

	rec := doJSON(t, mux, http.MethodDelete, "/v1/questions/q-42/cache", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"q-42"}, inv.invalidated)
}
