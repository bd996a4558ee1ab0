package main

import (
	"context"
	"os/signal"
	"syscall"

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
		logger.Fatal().Err(err).Msg("summarizer: не удалось собрать зависимости")
	}
	defer backend.Close()

	if backend.Queue == nil {
		logger.Fatal().Str("backend", cfg.Queues.Backend).Msg("summarizer: очередь не настроена (QUEUE_BACKEND, REDIS_ADDR, RABBITMQ_URL)")
	}

	worker := &jobWorker{
		log:     logger.With().Str("component", "summarizer").Logger(),
		queue:   backend.Queue,
		service: backend.Journal,
	}

	logger.Info().Msg("summarizer: запуск обработки очереди")
	worker.Run(ctx)
	logger.Info().Msg("summarizer: остановлен")
}
