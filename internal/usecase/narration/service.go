package narration

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"voice-journal/internal/domain"
	"voice-journal/internal/infra/metrics"
)

const (
	WeeklyBucket = "journal-weekly-tts"
	DailyBucket  = "journal-tts"

	audioContentType = "audio/mpeg"
	weekDays         = 7
	listLimit        = 52

	msgNoWeekEntries = "No journal entries found for the past week"
	msgNoDayEntry    = "No journal entries found for this date"
	msgEmptyDayEntry = "Journal entries are empty"
)

// WeeklyVoice голос недельной рефлексии.
var WeeklyVoice = domain.Voice{Name: "en-US-Neural2-F", LanguageCode: "en-US", Gender: "FEMALE", SpeakingRate: 0.92, Pitch: 0.5}

// DailyVoice голос дневного пересказа.
var DailyVoice = domain.Voice{Name: "en-US-Wavenet-C", LanguageCode: "en-US", Gender: "NEUTRAL", SpeakingRate: 0.95}

// Calendar знает, какой сегодня день у пользователя.
type Calendar interface {
	Today(ctx context.Context, userID string) (time.Time, error)
}

// Service строит недельные обзоры и дневные озвучки.
type Service struct {
	entries    domain.JournalRepo
	weekly     domain.WeeklyRepo
	narrations domain.NarrationRepo
	storage    domain.AudioStorage
	narrator   domain.Narrator
	tts        domain.SpeechSynthesizer
	calendar   Calendar
	metrics    domain.BusinessMetricRepo
	log        zerolog.Logger
	now        func() time.Time
}

// NewService создаёт сервис. calendar и businessMetrics могут быть nil.
func NewService(entries domain.JournalRepo, weekly domain.WeeklyRepo, narrations domain.NarrationRepo, storage domain.AudioStorage, narrator domain.Narrator, tts domain.SpeechSynthesizer, calendar Calendar, businessMetrics domain.BusinessMetricRepo, log zerolog.Logger) *Service {
	return &Service{
		entries:    entries,
		weekly:     weekly,
		narrations: narrations,
		storage:    storage,
		narrator:   narrator,
		tts:        tts,
		calendar:   calendar,
		metrics:    businessMetrics,
		log:        log.With().Str("component", "narration").Logger(),
		now:        time.Now,
	}
}

// GenerateWeekly строит обзор за семь дней, заканчивающихся endDate.
// Пустой endDate означает сегодня в часовом поясе пользователя.
func (s *Service) GenerateWeekly(ctx context.Context, userID, endDate string) (domain.WeeklyResult, error) {
	end, err := s.resolveEnd(ctx, userID, endDate)
	if err != nil {
		return domain.WeeklyResult{}, err
	}
	weekStart := end.AddDate(0, 0, -(weekDays - 1)).Format(domain.DateLayout)
	weekEnd := end.Format(domain.DateLayout)
	logger := s.log.With().Str("user_id", userID).Str("week_start", weekStart).Str("week_end", weekEnd).Logger()

	entries, err := s.entries.ListSummarized(ctx, userID, weekStart, weekEnd)
	if err != nil {
		return domain.WeeklyResult{}, fmt.Errorf("записи за неделю: %w", err)
	}
	days := datedSummaries(entries)
	if len(days) == 0 {
		metrics.WeeklyGeneratedTotal.WithLabelValues(string(domain.StatusEmpty)).Inc()
		logger.Info().Msg("за неделю нет записей")
		return domain.WeeklyResult{Status: domain.StatusEmpty, Message: msgNoWeekEntries}, nil
	}

	stats := ComputeStats(days)
	reflection, err := s.narrator.ReflectWeek(ctx, days, stats)
	if err != nil {
		metrics.WeeklyGeneratedTotal.WithLabelValues(string(domain.StatusError)).Inc()
		return domain.WeeklyResult{}, fmt.Errorf("недельная рефлексия: %w", err)
	}
	stats.TopActivities = reflection.TopActivities
	if stats.TopActivities == nil {
		stats.TopActivities = []string{}
	}
	stats.KeyAchievement = reflection.KeyAchievement

	path := fmt.Sprintf("%s/%s/weekly-summary.mp3", userID, weekStart)
	audioPath, err := s.voice(ctx, logger, "weekly", reflection.Text, WeeklyVoice, WeeklyBucket, path)
	if err != nil {
		metrics.WeeklyGeneratedTotal.WithLabelValues(string(domain.StatusError)).Inc()
		return domain.WeeklyResult{}, err
	}

	summary := domain.WeeklySummary{
		UserID:        userID,
		WeekStartDate: weekStart,
		WeekEndDate:   weekEnd,
		SummaryText:   reflection.Text,
		AudioPath:     audioPath,
		Stats:         stats,
	}
	if err := s.weekly.UpsertWeeklySummary(ctx, summary); err != nil {
		metrics.WeeklyGeneratedTotal.WithLabelValues(string(domain.StatusError)).Inc()
		return domain.WeeklyResult{}, fmt.Errorf("сохранение недельного обзора: %w", err)
	}
	metrics.WeeklyGeneratedTotal.WithLabelValues(string(domain.StatusSuccess)).Inc()
	s.record(ctx, domain.BusinessMetricEventWeeklyGenerated, userID, map[string]any{
		"week_start": weekStart,
		"days":       len(days),
	})
	logger.Info().Int("days", len(days)).Str("audio_path", audioPath).Msg("недельный обзор готов")

	return domain.WeeklyResult{
		Status:        domain.StatusSuccess,
		SummaryText:   reflection.Text,
		AudioPath:     audioPath,
		WeekStartDate: weekStart,
		WeekEndDate:   weekEnd,
		Stats:         &stats,
		DaysIncluded:  len(days),
	}, nil
}

// NarrateDay озвучивает пересказ записи за дату.
func (s *Service) NarrateDay(ctx context.Context, userID, date string) (domain.NarrationResult, error) {
	if _, err := domain.ParseDate(date); err != nil {
		return domain.NarrationResult{}, err
	}
	logger := s.log.With().Str("user_id", userID).Str("date", date).Logger()

	entry, err := s.entries.GetEntryByDate(ctx, userID, date)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NarrationResult{Status: domain.StatusEmpty, Message: msgNoDayEntry}, nil
	}
	if err != nil {
		return domain.NarrationResult{}, fmt.Errorf("запись за день: %w", err)
	}
	if strings.TrimSpace(entry.RawTranscript) == "" {
		return domain.NarrationResult{Status: domain.StatusEmpty, Message: msgEmptyDayEntry}, nil
	}

	text, err := s.narrator.NarrateDay(ctx, date, entry.RawTranscript)
	if err != nil {
		return domain.NarrationResult{}, fmt.Errorf("пересказ дня: %w", err)
	}
	path := fmt.Sprintf("%s/%s/summary.mp3", userID, date)
	audioPath, err := s.voice(ctx, logger, "daily", text, DailyVoice, DailyBucket, path)
	if err != nil {
		return domain.NarrationResult{}, err
	}
	narration := domain.DailyNarration{UserID: userID, Date: date, SummaryText: text, AudioPath: audioPath}
	if err := s.narrations.UpsertDailyNarration(ctx, narration); err != nil {
		return domain.NarrationResult{}, fmt.Errorf("сохранение озвучки: %w", err)
	}
	s.record(ctx, domain.BusinessMetricEventDayNarrated, userID, map[string]any{"date": date})
	return domain.NarrationResult{Status: domain.StatusSuccess, SummaryText: text, AudioPath: audioPath, Date: date}, nil
}

// GetWeekly возвращает сохранённый обзор недели.
func (s *Service) GetWeekly(ctx context.Context, userID, weekStart string) (domain.WeeklySummary, error) {
	if _, err := domain.ParseDate(weekStart); err != nil {
		return domain.WeeklySummary{}, err
	}
	return s.weekly.GetWeeklySummary(ctx, userID, weekStart)
}

// ListWeekly возвращает последние обзоры пользователя, новые первыми.
func (s *Service) ListWeekly(ctx context.Context, userID string) ([]domain.WeeklySummary, error) {
	return s.weekly.ListWeeklySummaries(ctx, userID, listLimit)
}

// Audio отдаёт аудио пользователя. Чужие файлы выглядят как отсутствующие.
func (s *Service) Audio(ctx context.Context, userID, bucket, path string) ([]byte, string, error) {
	if bucket != WeeklyBucket && bucket != DailyBucket {
		return nil, "", domain.ErrNotFound
	}
	owner, _, _ := strings.Cut(path, "/")
	if owner != userID || strings.Contains(path, "..") {
		return nil, "", domain.ErrNotFound
	}
	return s.storage.GetObject(ctx, bucket, path)
}

// ComputeStats считает детерминированную часть статистики недели.
func ComputeStats(days []domain.DatedSummary) domain.WeeklyStats {
	stats := domain.WeeklyStats{DaysJournaled: len(days), DominantMood: domain.ToneNeutral, TopActivities: []string{}}

	total, scored := 0, 0
	moodCounts := make(map[domain.EmotionalTone]int)
	var moodOrder []domain.EmotionalTone
	for _, day := range days {
		if v, ok := day.Summary.EnergyLevel.Score(); ok {
			total += v
			scored++
		}
		tone := domain.ParseEmotionalTone(string(day.Summary.EmotionalTone))
		if moodCounts[tone] == 0 {
			moodOrder = append(moodOrder, tone)
		}
		moodCounts[tone]++
	}
	if scored > 0 {
		level := energyByScore(int(math.Round(float64(total) / float64(scored))))
		stats.AvgEnergyLevel = &level
	}
	best := 0
	for _, tone := range moodOrder {
		if moodCounts[tone] > best {
			best = moodCounts[tone]
			stats.DominantMood = tone
		}
	}
	return stats
}

func energyByScore(score int) domain.EnergyLevel {
	switch {
	case score <= 1:
		return domain.EnergyLow
	case score == 2:
		return domain.EnergyMedium
	default:
		return domain.EnergyHigh
	}
}

func datedSummaries(entries []domain.JournalEntry) []domain.DatedSummary {
	days := make([]domain.DatedSummary, 0, len(entries))
	for _, e := range entries {
		if !e.Ready() {
			continue
		}
		days = append(days, domain.DatedSummary{Date: e.Date, Summary: *e.Summary})
	}
	return days
}

func (s *Service) resolveEnd(ctx context.Context, userID, endDate string) (time.Time, error) {
	if strings.TrimSpace(endDate) != "" {
		return domain.ParseDate(endDate)
	}
	if s.calendar != nil {
		today, err := s.calendar.Today(ctx, userID)
		if err != nil {
			return time.Time{}, fmt.Errorf("определение сегодняшней даты: %w", err)
		}
		return today, nil
	}
	now := s.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
}

// voice синтезирует текст и кладёт MP3 в хранилище, возвращая путь вида bucket/path.
func (s *Service) voice(ctx context.Context, logger zerolog.Logger, kind, text string, voice domain.Voice, bucket, path string) (string, error) {
	start := time.Now()
	logger.Info().Str("event", "TTS_START").Str("kind", kind).Int("text_len", len(text)).Msg("синтез речи")
	audio, err := s.tts.Synthesize(ctx, text, voice)
	if err != nil {
		logger.Error().Str("event", "TTS_ERROR").Err(err).Msg("синтез речи не удался")
		return "", fmt.Errorf("синтез речи: %w", err)
	}
	metrics.TTSAudioBytes.WithLabelValues(kind).Observe(float64(len(audio)))
	if err := s.storage.PutObject(ctx, bucket, path, audioContentType, audio); err != nil {
		return "", fmt.Errorf("загрузка аудио: %w", err)
	}
	logger.Info().Str("event", "TTS_DONE").Int("bytes", len(audio)).Dur("duration", time.Since(start)).Msg("аудио сохранено")
	return bucket + "/" + path, nil
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
