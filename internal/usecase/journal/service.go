package journal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"voice-journal/internal/domain"
	"voice-journal/internal/infra/metrics"
)

// Mode режим суммаризации при создании записи.
type Mode string

const (
	ModeSync  Mode = "sync"
	ModeAsync Mode = "async"
)

const summarizeLockTTL = 5 * time.Minute

// Config параметры сервиса.
type Config struct {
	Mode               Mode
	MaxTranscriptRunes int
}

// Service реализует создание записей и их суммаризацию.
type Service struct {
	entries    domain.JournalRepo
	credits    domain.CreditRepo
	summarizer domain.Summarizer
	queue      domain.SummarizeQueue
	cache      domain.Cache
	metrics    domain.BusinessMetricRepo
	log        zerolog.Logger
	cfg        Config
	now        func() time.Time
}

// NewService создаёт сервис. queue, cache и metrics могут быть nil.
func NewService(entries domain.JournalRepo, credits domain.CreditRepo, summarizer domain.Summarizer, queue domain.SummarizeQueue, cache domain.Cache, businessMetrics domain.BusinessMetricRepo, log zerolog.Logger, cfg Config) *Service {
	if cfg.Mode == "" {
		cfg.Mode = ModeAsync
	}
	if cfg.MaxTranscriptRunes <= 0 {
		cfg.MaxTranscriptRunes = 20000
	}
	return &Service{
		entries:    entries,
		credits:    credits,
		summarizer: summarizer,
		queue:      queue,
		cache:      cache,
		metrics:    businessMetrics,
		log:        log.With().Str("component", "journal").Logger(),
		cfg:        cfg,
		now:        time.Now,
	}
}

// Create сохраняет транскрипт за дату и списывает кредит. В синхронном режиме
// сразу возвращает резюме, в асинхронном ставит задачу в очередь.
func (s *Service) Create(ctx context.Context, userID, text, date string) (domain.CreateResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.CreateResult{}, fmt.Errorf("%w: пустой текст", domain.ErrInvalidInput)
	}
	if utf8.RuneCountInString(text) > s.cfg.MaxTranscriptRunes {
		return domain.CreateResult{}, fmt.Errorf("%w: текст длиннее %d символов", domain.ErrInvalidInput, s.cfg.MaxTranscriptRunes)
	}
	if _, err := domain.ParseDate(date); err != nil {
		return domain.CreateResult{}, err
	}

	balance, err := s.credits.GetCredits(ctx, userID)
	if err != nil {
		return domain.CreateResult{}, fmt.Errorf("проверка кредитов: %w", err)
	}
	if balance <= 0 {
		s.rejectNoCredits(ctx, userID)
		return domain.CreateResult{}, domain.ErrInsufficientCredits
	}

	entry, err := s.entries.CreateEntry(ctx, userID, date, text)
	if errors.Is(err, domain.ErrInsufficientCredits) {
		s.rejectNoCredits(ctx, userID)
		return domain.CreateResult{}, err
	}
	if err != nil {
		return domain.CreateResult{}, fmt.Errorf("сохранение записи: %w", err)
	}
	metrics.JournalCreatedTotal.Inc()
	s.log.Info().Str("event", "JOURNAL_INSERT").Str("entry_id", entry.ID).Str("user_id", userID).Str("date", date).Int("text_len", len(text)).Msg("запись сохранена")
	s.record(ctx, domain.BusinessMetricEventJournalCreated, userID, map[string]any{"entry_id": entry.ID, "date": date, "mode": string(s.cfg.Mode)})

	if s.cfg.Mode == ModeAsync && s.queue != nil {
		job := domain.SummarizeJob{
			ID:          uuid.NewString(),
			EntryID:     entry.ID,
			UserID:      userID,
			RequestedAt: s.now().UTC(),
			Cause:       domain.SummarizeCauseCreate,
		}
		err := s.queue.Enqueue(ctx, job)
		if err == nil {
			return domain.CreateResult{EntryID: entry.ID}, nil
		}
		s.log.Warn().Err(err).Str("entry_id", entry.ID).Msg("очередь недоступна, суммаризируем сразу")
	}

	summary, err := s.summarize(ctx, entry)
	if err != nil {
		// запись сохранена, клиент дождётся резюме опросом
		s.log.Error().Err(err).Str("entry_id", entry.ID).Msg("суммаризация не удалась")
		return domain.CreateResult{EntryID: entry.ID}, nil
	}
	return domain.CreateResult{EntryID: entry.ID, Summary: &summary}, nil
}

// Get возвращает запись пользователя по id.
func (s *Service) Get(ctx context.Context, userID, entryID string) (domain.JournalEntry, error) {
	entry, err := s.entries.GetEntry(ctx, entryID)
	if err != nil {
		return domain.JournalEntry{}, err
	}
	if entry.UserID != userID {
		return domain.JournalEntry{}, domain.ErrNotFound
	}
	return entry, nil
}

// GetByDate возвращает запись пользователя за дату.
func (s *Service) GetByDate(ctx context.Context, userID, date string) (domain.JournalEntry, error) {
	if _, err := domain.ParseDate(date); err != nil {
		return domain.JournalEntry{}, err
	}
	return s.entries.GetEntryByDate(ctx, userID, date)
}

// Credits возвращает баланс кредитов.
func (s *Service) Credits(ctx context.Context, userID string) (int, error) {
	return s.credits.GetCredits(ctx, userID)
}

// ProcessJob строит резюме по задаче. Повторная доставка уже обработанной записи ничего не делает.
func (s *Service) ProcessJob(ctx context.Context, job domain.SummarizeJob) error {
	run := func() error {
		entry, err := s.entries.GetEntry(ctx, job.EntryID)
		if errors.Is(err, domain.ErrNotFound) {
			s.log.Warn().Str("entry_id", job.EntryID).Msg("запись для задачи не найдена")
			return nil
		}
		if err != nil {
			return fmt.Errorf("чтение записи: %w", err)
		}
		if entry.Ready() {
			return nil
		}
		_, err = s.summarize(ctx, entry)
		return err
	}
	if s.cache == nil {
		return run()
	}
	return s.cache.Once(ctx, "summarize:"+job.EntryID, summarizeLockTTL, run)
}

// WebhookRecord строка journal_entries из вебхука базы.
type WebhookRecord struct {
	ID            string `json:"id"`
	UserID        string `json:"user_id"`
	RawTranscript string `json:"raw_transcript"`
	IsSummarized  bool   `json:"is_summarized"`
}

// WebhookPayload тело вебхука базы.
type WebhookPayload struct {
	Type   string        `json:"type"`
	Table  string        `json:"table"`
	Record WebhookRecord `json:"record"`
}

// WebhookResult ответ на вебхук.
type WebhookResult struct {
	Status  string          `json:"status"`
	EntryID string          `json:"entry_id,omitempty"`
	Summary *domain.Summary `json:"summary,omitempty"`
	Message string          `json:"message,omitempty"`
}

// HandleWebhook суммаризирует запись из вебхука INSERT journal_entries.
func (s *Service) HandleWebhook(ctx context.Context, payload WebhookPayload) (WebhookResult, error) {
	if payload.Type != "INSERT" || payload.Table != "journal_entries" {
		return WebhookResult{Status: "ignored", Message: "Unsupported webhook type"}, nil
	}
	rec := payload.Record
	if strings.TrimSpace(rec.RawTranscript) == "" || rec.IsSummarized {
		return WebhookResult{Status: "skipped", Message: "Entry already summarized"}, nil
	}
	entry, err := s.entries.GetEntry(ctx, rec.ID)
	if err != nil {
		return WebhookResult{}, fmt.Errorf("чтение записи: %w", err)
	}
	if entry.Ready() {
		return WebhookResult{Status: "skipped", EntryID: entry.ID, Message: "Entry already summarized"}, nil
	}
	summary, err := s.summarize(ctx, entry)
	if err != nil {
		return WebhookResult{}, err
	}
	return WebhookResult{Status: "success", EntryID: entry.ID, Summary: &summary}, nil
}

func (s *Service) summarize(ctx context.Context, entry domain.JournalEntry) (domain.Summary, error) {
	start := time.Now()
	summary, err := s.summarizer.Summarize(ctx, entry.RawTranscript)
	metrics.ObserveSummarize(start, err)
	if err != nil {
		return domain.Summary{}, fmt.Errorf("суммаризация: %w", err)
	}
	summary = summary.Normalize()
	if err := s.entries.MarkSummarized(ctx, entry.ID, summary); err != nil {
		return domain.Summary{}, fmt.Errorf("сохранение резюме: %w", err)
	}
	s.record(ctx, domain.BusinessMetricEventJournalSummarized, entry.UserID, map[string]any{
		"entry_id":    entry.ID,
		"duration_ms": time.Since(start).Milliseconds(),
		"activities":  len(summary.WhatWasDone),
	})
	return summary, nil
}

func (s *Service) rejectNoCredits(ctx context.Context, userID string) {
	metrics.CreditsRejectedTotal.Inc()
	s.record(ctx, domain.BusinessMetricEventCreditsExhausted, userID, nil)
}

func (s *Service) record(ctx context.Context, event, userID string, meta map[string]any) {
	if s.metrics == nil {
		return
	}
	metric := domain.BusinessMetric{Event: event, UserID: userID, Metadata: meta, OccurredAt: s.now().UTC()}
	if err := s.metrics.RecordBusinessMetric(ctx, metric); err != nil {
		s.log.Warn().Err(err).Str("event", event).Msg("не удалось сохранить бизнес-метрику")
	}
}
