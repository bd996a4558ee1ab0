package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"voice-journal/internal/adapters/api"
	"voice-journal/internal/adapters/narrator"
	"voice-journal/internal/adapters/repo"
	"voice-journal/internal/adapters/summarizer"
	"voice-journal/internal/domain"
	"voice-journal/internal/infra/cache"
	"voice-journal/internal/infra/config"
	"voice-journal/internal/infra/db"
	"voice-journal/internal/infra/googletts"
	httpinfra "voice-journal/internal/infra/http"
	"voice-journal/internal/infra/openai"
	"voice-journal/internal/infra/queue"
	"voice-journal/internal/usecase/journal"
	"voice-journal/internal/usecase/narration"
	"voice-journal/internal/usecase/profile"
)

// Backend собранные серверные зависимости.
type Backend struct {
	Repo      *repo.Postgres
	Redis     *redis.Client
	Cache     domain.Cache
	Queue     domain.SummarizeQueue
	Journal   *journal.Service
	Narration *narration.Service
	Profiles  *profile.Service
	Auth      *httpinfra.Authenticator

	closers []func()
}

// Build подключается к Postgres и Redis и собирает сервисы по конфигу.
func Build(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger) (*Backend, error) {
	b := &Backend{}
	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		return nil, fmt.Errorf("подключение к БД: %w", err)
	}
	b.closers = append(b.closers, pool.Close)
	if err := db.EnsureSchema(ctx, pool); err != nil {
		b.Close()
		return nil, err
	}
	if err := b.wire(cfg, pool, logger); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

func (b *Backend) wire(cfg config.AppConfig, pool *pgxpool.Pool, logger zerolog.Logger) error {
	b.Repo = repo.NewPostgres(pool, cfg.Limits.FreeCredits)

	if cfg.RedisAddr != "" {
		b.Redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		client := b.Redis
		b.closers = append(b.closers, func() { _ = client.Close() })
		b.Cache = cache.NewRedis(b.Redis)
	} else {
		b.Cache = cache.NewMemory()
	}

	switch strings.ToLower(cfg.Queues.Backend) {
	case "rabbitmq":
		if cfg.RabbitURL == "" {
			return fmt.Errorf("не указан адрес RabbitMQ (RABBITMQ_URL)")
		}
		q, err := queue.NewRabbitSummarizeQueue(cfg.RabbitURL, cfg.Queues.Summarize)
		if err != nil {
			return fmt.Errorf("очередь RabbitMQ: %w", err)
		}
		b.closers = append(b.closers, func() { _ = q.Close() })
		b.Queue = q
	case "redis":
		if b.Redis != nil {
			b.Queue = queue.NewRedisSummarizeQueue(b.Redis, cfg.Queues.Summarize)
		}
	}
	if b.Queue == nil {
		logger.Warn().Str("backend", cfg.Queues.Backend).Msg("очередь суммаризации не настроена, резюме строятся синхронно")
	}

	var (
		summarizerImpl domain.Summarizer = summarizer.NewSimple()
		narratorImpl   domain.Narrator   = narrator.NewSimple(3)
	)
	if cfg.OpenAI.APIKey != "" {
		client := openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Timeout)
		summarizerImpl = summarizer.NewOpenAI(client, cfg.OpenAI.Model, cfg.OpenAI.Timeout)
		narratorImpl = narrator.NewLLM(client, cfg.OpenAI.Model, 2*cfg.OpenAI.Timeout)
	} else {
		logger.Warn().Msg("OPENAI_API_KEY не задан, используются простые суммаризатор и нарратор")
	}
	tts := googletts.NewClient(cfg.GoogleTTS.APIKey, cfg.GoogleTTS.BaseURL, cfg.GoogleTTS.Timeout)

	loc, err := time.LoadLocation(cfg.TZ)
	if err != nil {
		loc = time.UTC
	}
	b.Profiles = profile.NewService(b.Repo, loc)
	b.Journal = journal.NewService(b.Repo, b.Repo, summarizerImpl, b.Queue, b.Cache, b.Repo, logger, journal.Config{
		Mode:               journal.Mode(strings.ToLower(cfg.Summarize.Mode)),
		MaxTranscriptRunes: cfg.Limits.MaxTranscriptRunes,
	})
	b.Narration = narration.NewService(b.Repo, b.Repo, b.Repo, b.Repo, narratorImpl, tts, b.Profiles, b.Repo, logger)

	if cfg.Auth.JWTSecret != "" {
		auth, err := httpinfra.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
		if err != nil {
			return err
		}
		b.Auth = auth
	}
	return nil
}

// Server возвращает HTTP сервер с API дневника. Нужен JWT_SECRET.
func (b *Backend) Server(cfg config.AppConfig, logger zerolog.Logger) (*httpinfra.Server, error) {
	if b.Auth == nil {
		return nil, fmt.Errorf("не указан секрет токенов (JWT_SECRET)")
	}
	if cfg.Webhook.Secret == "" {
		logger.Warn().Msg("WEBHOOK_SECRET не задан, /hooks/summarize принимает запросы без проверки")
	}
	srv := httpinfra.NewServer(logger)
	api.NewHandler(b.Journal, b.Narration, b.Profiles, b.Auth, cfg.Webhook.Secret, logger).Mount(srv.Router)
	return srv, nil
}

// Close освобождает подключения в обратном порядке.
func (b *Backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}

var (
	_ domain.JournalRepo        = (*repo.Postgres)(nil)
	_ domain.CreditRepo         = (*repo.Postgres)(nil)
	_ domain.WeeklyRepo         = (*repo.Postgres)(nil)
	_ domain.NarrationRepo      = (*repo.Postgres)(nil)
	_ domain.ProfileRepo        = (*repo.Postgres)(nil)
	_ domain.AudioStorage       = (*repo.Postgres)(nil)
	_ domain.BusinessMetricRepo = (*repo.Postgres)(nil)
)
