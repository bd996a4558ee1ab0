package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/prometheus/client_golang/prometheus"

	"voice-journal/internal/adapters/api"
	"voice-journal/internal/app"
	"voice-journal/internal/infra/config"
	applog "voice-journal/internal/infra/log"
	"voice-journal/internal/infra/metrics"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	backend, err := app.Build(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("functions: не удалось собрать зависимости")
	}
	defer backend.Close()

	srv, err := backend.Server(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("functions: не удалось создать роутер")
	}

	logger.Info().Msg("functions: старт")
	lambda.Start(api.LambdaHandler(srv.Router))
}
