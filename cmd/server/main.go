// Command server starts the interview-prep HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fairyhunter13/interview-prep/internal/adapter/ai/tokencount"
	httpserver "github.com/fairyhunter13/interview-prep/internal/adapter/httpserver"
	"github.com/fairyhunter13/interview-prep/internal/adapter/observability"
	"github.com/fairyhunter13/interview-prep/internal/adapter/repo/cached"
	"github.com/fairyhunter13/interview-prep/internal/app"
	"github.com/fairyhunter13/interview-prep/internal/config"
	"github.com/fairyhunter13/interview-prep/internal/domain"
	"github.com/fairyhunter13/interview-prep/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	base, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if base.Close != nil {
			_ = base.Close(context.Background())
		}
	}()
	st := base
	if cfg.RedisURL == "" {
		// the cache only invalidates in-process; replicas sharing a Redis lease skip it
		if st, err = cached.Wrap(base, cfg.QuestionCacheSize); err != nil {
			return err
		}
	}

	lk, err := buildLocks(ctx, cfg)
	if err != nil {
		return err
	}
	defer lk.close()

	var events domain.EventPublisher = domain.NopPublisher{}
	if cfg.EventsEnabled() {
		pub, err := newPublisher(ctx, cfg)
		if err != nil {
			return err
		}
		defer pub.Close()
		events = pub
	}

	rec := observability.Recorder{}
	fb, breakers, err := buildFallback(ctx, cfg, tokencount.NewCounter(), rec)
	if err != nil {
		return err
	}
	slog.Info("providers configured", slog.Any("order", fb.Order()), slog.Int("breakers", len(breakers.AllStats())))

	repairSvc := usecase.NewRepairService(st, events, rec)
	repairSvc.Locker = lk.base
	srv := &httpserver.Server{
		Cfg:        cfg,
		Interviews: usecase.NewInterviewService(st, lk.waiting, events),
		Generation: usecase.NewGenerationService(st, lk.waiting, fb, events, rec),
		Scoring:    usecase.NewScoringService(st, lk.waiting, usecase.HeuristicScorer{Now: time.Now}, events, rec),
		Repair:     repairSvc,
		Health:     usecase.NewHealthService(app.BuildProbes(st, lk.pinger())...),
		Sessions:   httpserver.NewSessionManager(cfg.SessionSecret, cfg.IsProd()),
	}
	if !srv.Sessions.Enabled() {
		slog.Warn("SESSION_SECRET not set, authenticated routes will reject every request")
	}

	job := app.NewRepairJob(repairSvc, lk.base, cfg.RepairSchedule, 0)
	if err := job.Start(); err != nil {
		return err
	}

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           app.BuildRouter(cfg, srv),
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port), slog.String("store", cfg.StoreBackend))
		errCh <- srvHTTP.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("op=server.listen: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	job.Stop(shutdownCtx)
	return srvHTTP.Shutdown(shutdownCtx)
}
