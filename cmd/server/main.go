package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/database"
	"github.com/stemsi/exstem-quiz/internal/handler"
	"github.com/stemsi/exstem-quiz/internal/logger"
	"github.com/stemsi/exstem-quiz/internal/middleware"
	"github.com/stemsi/exstem-quiz/internal/repository"
	"github.com/stemsi/exstem-quiz/internal/router"
	"github.com/stemsi/exstem-quiz/internal/service"
	"github.com/stemsi/exstem-quiz/internal/validator"
	"github.com/stemsi/exstem-quiz/internal/worker"
	"golang.org/x/sync/errgroup"
)

// Attempt writes allowed per student per second.
const writeRatePerSecond = 20

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting ExStem Quiz")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	examRepo := repository.NewExamRepository(pool, rdb, cfg.ExamCacheTTL, log)
	questionRepo := repository.NewQuestionRepository(pool)
	enrollmentRepo := repository.NewEnrollmentRepository(pool)
	attemptRepo := repository.NewAttemptRepository(pool)
	snapshots := repository.NewSnapshotStore(rdb, cfg.SnapshotTTL)
	leaderboard := repository.NewLeaderboard(rdb, attemptRepo, log)
	queue := repository.NewQueue(rdb)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg)
	attemptService := service.NewAttemptService(service.AttemptDeps{
		Exams:         examRepo,
		Questions:     questionRepo,
		Enrollment:    enrollmentRepo,
		Attempts:      attemptRepo,
		Leaderboard:   leaderboard,
		Queue:         queue,
		Snapshots:     snapshots,
		Guard:         repository.NewSubmitLock(rdb, cfg.SubmitLockTTL),
		PerPage:       cfg.QuestionsPerPage,
		RemoteTimeout: cfg.RemoteTimeout,
		IdleTimeout:   cfg.IdleAttemptTTL,
		Log:           log,
	})

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Attempt: handler.NewAttemptHandler(attemptService, log),
		Stream:  handler.NewStreamHandler(attemptService, cfg.TickInterval, log, cfg.AllowedOrigins),
	}
	limiter := middleware.NewRateLimiter(writeRatePerSecond, time.Second)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, limiter, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Background Workers ───────────────────────────────────────────
	// Workers get their own context so they keep draining while the HTTP
	// server finishes in-flight submits.
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var workers errgroup.Group
	workers.Go(func() error {
		worker.NewStartWorker(attemptRepo, rdb, log).Start(workerCtx)
		return nil
	})
	workers.Go(func() error {
		worker.NewResultWorker(attemptRepo, snapshots, leaderboard, rdb, log).Start(workerCtx)
		return nil
	})
	workers.Go(func() error {
		worker.NewAnswerWorker(attemptRepo, rdb, log).Start(workerCtx)
		return nil
	})
	workers.Go(func() error {
		attemptService.RunSweeper(workerCtx, time.Minute)
		return nil
	})
	workers.Go(func() error {
		limiter.Run(workerCtx)
		return nil
	})

	// ─── Serve ─────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("HTTP server stopped with error")
	}

	// Stop workers after HTTP so queued writes from the last requests drain.
	workerCancel()
	_ = workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
