package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	JournalCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "journal_created_total",
		Help: "Сохранённые записи дневника",
	})
	JournalSummarizedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "journal_summarized_total",
		Help: "Результаты суммаризации записей",
	}, []string{"outcome"})
	SummarizeSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "journal_summarize_seconds",
		Help:    "Время построения резюме записи",
		Buckets: prometheus.DefBuckets,
	})
	CreditsRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "journal_credits_rejected_total",
		Help: "Отказы в создании записи из-за нулевого баланса",
	})
	PollAttempts = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "journal_poll_attempts",
		Help:    "Количество опросов до готовности резюме",
		Buckets: []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
	})
	WeeklyGeneratedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "weekly_generated_total",
		Help: "Генерации недельных обзоров по статусам",
	}, []string{"status"})
	TTSAudioBytes = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tts_audio_bytes",
		Help:    "Размер синтезированного аудио",
		Buckets: prometheus.ExponentialBuckets(16*1024, 2, 8),
	}, []string{"kind"})
	BotSendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_send_errors_total",
		Help: "Ошибки отправки сообщений ботом",
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 30, 45, 60, 90, 120},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})

	LLMGenerationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "llm_generation_duration_seconds",
		Help:    "Длительность генерации ответа LLM",
		Buckets: prometheus.DefBuckets,
	}, []string{"model"})

	LLMTokensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_tokens_total",
		Help: "Количество токенов, использованных LLM",
	}, []string{"model", "type"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		JournalCreatedTotal,
		JournalSummarizedTotal,
		SummarizeSeconds,
		CreditsRejectedTotal,
		PollAttempts,
		WeeklyGeneratedTotal,
		TTSAudioBytes,
		BotSendErrors,
		NetworkRequestDuration,
		NetworkRequestTotal,
		LLMGenerationDuration,
		LLMTokensTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveLLMGeneration записывает длительность и токены генерации LLM.
func ObserveLLMGeneration(model string, duration time.Duration, promptTokens, completionTokens, totalTokens int) {
	if model == "" {
		model = "unknown"
	}
	LLMGenerationDuration.WithLabelValues(model).Observe(duration.Seconds())
	if promptTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}
	if totalTokens <= 0 {
		totalTokens = promptTokens + completionTokens
	}
	if totalTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "total").Add(float64(totalTokens))
	}
}

// ObserveSummarize фиксирует исход суммаризации.
func ObserveSummarize(start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	SummarizeSeconds.Observe(time.Since(start).Seconds())
	JournalSummarizedTotal.WithLabelValues(outcome).Inc()
}
