package domain

import (
	"context"
	"time"
)

// BusinessMetric описывает бизнесовое событие, которое сохраняется для последующего анализа.
type BusinessMetric struct {
	Event      string
	UserID     string
	Metadata   map[string]any
	OccurredAt time.Time
}

const (
	// BusinessMetricEventJournalCreated фиксирует сохранение записи.
	BusinessMetricEventJournalCreated = "journal_created"
	// BusinessMetricEventJournalSummarized фиксирует готовое резюме.
	BusinessMetricEventJournalSummarized = "journal_summarized"
	// BusinessMetricEventCreditsExhausted фиксирует отказ из-за нулевого баланса.
	BusinessMetricEventCreditsExhausted = "credits_exhausted"
	// BusinessMetricEventWeeklyGenerated фиксирует построение недельного обзора.
	BusinessMetricEventWeeklyGenerated = "weekly_generated"
	// BusinessMetricEventDayNarrated фиксирует дневную озвучку.
	BusinessMetricEventDayNarrated = "day_narrated"
)

// BusinessMetricRepo сохраняет бизнесовые события.
type BusinessMetricRepo interface {
	RecordBusinessMetric(ctx context.Context, metric BusinessMetric) error
}
