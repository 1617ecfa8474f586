package server

import (
	"context"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/quizrally/sessioncore/internal/config"
	"github.com/quizrally/sessioncore/internal/game/play"
)

// NewHTTPServer wires base routes (health, metrics) plus the gameplay API.
func NewHTTPServer(cfg *config.App, logger zerolog.Logger, pool *pgxpool.Pool, redis *redis.Client, handlers *play.HTTPHandlers, results *play.ResultsHTTPHandlers, wsHandler http.HandlerFunc) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/v1/ping", func(w http.ResponseWriter, r *http.Request) {
		if err := pingDependencies(r.Context(), pool, redis); err != nil {
			logger.Error().Err(err).Msg("dependency ping failed")
			http.Error(w, "upstream error", http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"pong":true}`))
	})

	if handlers != nil {
		mux.HandleFunc("POST /v1/games", handlers.HandleRegisterGame)
		mux.HandleFunc("DELETE /v1/games/{code}", handlers.HandleEndGame)
		mux.HandleFunc("POST /v1/games/{code}/questions/{qid}/answers", handlers.HandleSubmitAnswer)
		mux.HandleFunc("POST /v1/games/{code}/questions/{qid}/timer", handlers.HandleTimerAction)
		mux.HandleFunc("GET /v1/games/{code}/questions/{qid}/countdown", handlers.HandleCountdown)
		mux.HandleFunc("GET /v1/games/{code}/leaderboard", handlers.HandleLeaderboard)
		mux.HandleFunc("POST /v1/games/{code}/attempts/finalize", handlers.HandleFinalizeAttempt)
	}

	if results != nil {
		mux.HandleFunc("GET /v1/games/{code}/results", results.HandleListResults)
		mux.HandleFunc("GET /v1/games/{code}/results/{user_id}", results.HandleBestResult)
		mux.HandleFunc("GET /v1/games/{code}/snapshots/latest", results.HandleLatestSnapshot)
		mux.HandleFunc("DELETE /v1/questions/{qid}/cache", results.HandleInvalidateQuestion)
	}

	if wsHandler != nil {
		mux.HandleFunc("/ws/games", wsHandler)
	} else {
		mux.HandleFunc("/ws/games", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "WebSocket handler not yet integrated", http.StatusNotImplemented)
		})
	}

	return &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}
}

func pingDependencies(ctx context.Context, pool *pgxpool.Pool, redis *redis.Client) error {
	if err := pool.Ping(ctx); err != nil {
		return err
	}
	if err := redis.Ping(ctx).Err(); err != nil {
		return err
	}
	return nil
}
