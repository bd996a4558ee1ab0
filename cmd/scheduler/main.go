package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"voice-journal/internal/app"
	"voice-journal/internal/infra/config"
	applog "voice-journal/internal/infra/log"
	"voice-journal/internal/infra/metrics"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)

	backend, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось собрать зависимости")
	}
	defer backend.Close()

	sched := &weeklyScheduler{
		log:       logger.With().Str("component", "scheduler").Logger(),
		profiles:  backend.Repo,
		generator: backend.Narration,
		cache:     backend.Cache,
		weekday:   time.Weekday(cfg.Weekly.Weekday),
		hour:      cfg.Weekly.Hour,
	}

	logger.Info().Int("weekday", cfg.Weekly.Weekday).Int("hour", cfg.Weekly.Hour).Msg("scheduler: старт")
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("scheduler: остановлен")
			return
		case now := <-ticker.C:
			sched.Tick(ctx, now)
		}
	}
}
