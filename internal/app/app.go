package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/quizrally/sessioncore/internal/config"
	"github.com/quizrally/sessioncore/internal/db/repository"
	"github.com/quizrally/sessioncore/internal/game/play"
	"github.com/quizrally/sessioncore/internal/game/scoring"
	"github.com/quizrally/sessioncore/internal/game/session"
	"github.com/quizrally/sessioncore/internal/game/timer"
	"github.com/quizrally/sessioncore/internal/leaderboard"
	"github.com/quizrally/sessioncore/internal/logging"
	"github.com/quizrally/sessioncore/internal/question"
	"github.com/quizrally/sessioncore/internal/server"
	ws "github.com/quizrally/sessioncore/pkg/http/ws"
)

// Application aggregates shared infrastructure (DB, cache, HTTP server).
type Application struct {
	cfg    *config.App
	logger zerolog.Logger

	pool  *pgxpool.Pool
	redis *redis.Client
	http  *http.Server

	lbBroadcaster  *leaderboard.Broadcaster
	snapshotWorker *leaderboard.SnapshotWorker
	bgCancels      []context.CancelFunc
}

// New bootstraps config, logger, Postgres, Redis and the HTTP server.
func New(ctx context.Context, cfg *config.App) (*Application, error) {
	logger := logging.New(cfg.Name, cfg.Env)
	logger.Info().Msg("starting application bootstrap")

	pool, err := pgxpool.New(ctx, cfg.Postgres.DSN()+" pool_max_conns=10")
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	resultsRepo := repository.NewResultsRepository(pool)
	snapshotRepo := repository.NewSnapshotRepository(pool)

	questionSource := question.NewSource(
		redisClient,
		question.NewPostgresLoader(pool),
		cfg.Game.QuestionCacheTTL,
		logger,
	)

	sessionStore := session.NewStore(redisClient, logger, session.StoreOptions{
		EntryTTL: cfg.Game.SessionTTL,
	})
	timerSvc := timer.NewService(redisClient, logger, timer.ServiceOptions{
		StateTTL: cfg.Game.SessionTTL,
	})
	engine := scoring.NewEngine(scoring.Config{
		TotalBudget:    cfg.Game.TotalBudget,
		MaxTimePenalty: cfg.Game.MaxTimePenalty,
		Damping:        cfg.Game.PenaltyDamping,
	})

	publisher := leaderboard.NewPublisher(
		redisClient,
		sessionStore,
		cfg.Leaderboard.PubSubChannel,
		cfg.Leaderboard.TopN,
		logger,
	)

	playSvc := play.NewService(
		questionSource,
		timerSvc,
		engine,
		sessionStore,
		play.ServiceOptions{
			Results:   resultsRepo,
			Publisher: publisher,
		},
		logger,
	)

	wsHub := ws.NewHub(logger)
	playHandlers := play.NewHTTPHandlers(playSvc, logger)
	resultsHandlers := play.NewResultsHTTPHandlers(resultsRepo, snapshotRepo, questionSource, logger)
	wsHandler := play.NewHandler(playSvc, wsHub, logger)

	lbBroadcaster := leaderboard.NewBroadcaster(redisClient, wsHub, cfg.Leaderboard.PubSubChannel, logger)
	var snapshotWorker *leaderboard.SnapshotWorker
	if interval := cfg.Leaderboard.SnapshotInterval; interval > 0 {
		snapshotWorker = leaderboard.NewSnapshotWorker(
			sessionStore,
			snapshotRepo,
			interval,
			cfg.Leaderboard.SnapshotTopN,
			logger,
		)
	}

	apiServer := server.NewHTTPServer(cfg, logger, pool, redisClient, playHandlers, resultsHandlers, wsHandler.HandleWebSocket)

	return &Application{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		redis:          redisClient,
		http:           apiServer,
		lbBroadcaster:  lbBroadcaster,
		snapshotWorker: snapshotWorker,
		bgCancels:      make([]context.CancelFunc, 0, 2),
	}, nil
}

// Run starts the HTTP server and waits for termination signals.
func (a *Application) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	a.startBackgroundWorkers(ctx)

	go func() {
		a.logger.Info().Str("addr", a.cfg.HTTPAddr).Msg("http server listening")
		if err := a.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		a.logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server error: %w", err)
	case <-ctx.Done():
		a.logger.Warn().Msg("context canceled")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.GracefulShutdownTimeout)
	defer cancel()

	if err := a.http.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("http shutdown error")
	}

	for _, cancel := range a.bgCancels {
		cancel()
	}

	a.pool.Close()
	if err := a.redis.Close(); err != nil {
		a.logger.Error().Err(err).Msg("redis shutdown error")
	}

	a.logger.Info().Msg("shutdown complete")
	return nil
}

func (a *Application) startBackgroundWorkers(ctx context.Context) {
	if a.lbBroadcaster != nil {
		bgCtx, cancel := context.WithCancel(ctx)
		a.bgCancels = append(a.bgCancels, cancel)
		go func() {
			if err := a.lbBroadcaster.Run(bgCtx); err != nil && err != context.Canceled {
				a.logger.Warn().Err(err).Msg("leaderboard broadcaster stopped")
			}
		}()
	}

	if a.snapshotWorker != nil {
		bgCtx, cancel := context.WithCancel(ctx)
		a.bgCancels = append(a.bgCancels, cancel)
		go func() {
			if err := a.snapshotWorker.Run(bgCtx); err != nil && err != context.Canceled {
				a.logger.Warn().Err(err).Msg("leaderboard snapshot worker stopped")
			}
		}()
	}
}
