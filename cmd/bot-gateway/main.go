package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	chi "github.com/go-chi/chi/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"voice-journal/internal/adapters/backend"
	"voice-journal/internal/adapters/bot"
	"voice-journal/internal/infra/config"
	httpinfra "voice-journal/internal/infra/http"
	"voice-journal/internal/infra/localcache"
	applog "voice-journal/internal/infra/log"
	"voice-journal/internal/infra/metrics"
	"voice-journal/internal/usecase/orchestrator"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telegram.Token == "" {
		logger.Fatal().Msg("bot: не указан токен Telegram (TG_BOT_TOKEN)")
	}
	auth, err := httpinfra.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot: не удалось создать выпуск токенов")
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
	}

	loc, err := time.LoadLocation(cfg.TZ)
	if err != nil {
		loc = time.UTC
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot: не удалось создать бота")
	}

	sessions := func(tgUserID int64) (*bot.Session, error) {
		userID := bot.UserIDFor(tgUserID)
		token, err := auth.Issue(userID)
		if err != nil {
			return nil, fmt.Errorf("выпуск токена: %w", err)
		}
		client := backend.New(cfg.Telegram.BackendURL, backend.StaticToken(token), 30*time.Second)
		var store localcache.Store = &localcache.MemoryStore{}
		if rdb != nil {
			store = localcache.NewRedisStore(rdb, "journal_cache:"+userID)
		}
		journalCache := localcache.New(store, localcache.WithLogger(logger))
		journal := orchestrator.NewService(client, journalCache, orchestrator.WithLogger(logger.With().Str("user_id", userID).Logger()))
		return &bot.Session{Journal: journal, Audio: client}, nil
	}

	h := bot.NewHandler(botAPI, logger, sessions, loc)

	if cfg.Telegram.WebhookURL == "" {
		runPolling(ctx, botAPI, h, logger)
		return
	}

	r := chi.NewRouter()
	r.Post("/bot/webhook", func(w http.ResponseWriter, r *http.Request) {
		var update tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.HandleUpdate(r.Context(), update)
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: r}
	go func() {
		logger.Info().Msg("бот-гейтвей запущен")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("HTTP сервер остановлен")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("остановка бота")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func runPolling(ctx context.Context, botAPI *tgbotapi.BotAPI, h *bot.Handler, logger zerolog.Logger) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := botAPI.GetUpdatesChan(u)
	logger.Info().Msg("бот запущен в режиме long polling")
	for {
		select {
		case <-ctx.Done():
			botAPI.StopReceivingUpdates()
			logger.Info().Msg("остановка бота")
			return
		case upd := <-updates:
			h.HandleUpdate(ctx, upd)
		}
	}
}
