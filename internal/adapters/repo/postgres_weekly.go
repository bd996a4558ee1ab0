package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"voice-journal/internal/domain"
	"voice-journal/internal/infra/metrics"
)

const weeklyColumns = `user_id::text, to_char(week_start_date, 'YYYY-MM-DD'), to_char(week_end_date, 'YYYY-MM-DD'), summary_text, tts_audio_path, stats, created_at`

func scanWeekly(row pgx.Row) (domain.WeeklySummary, error) {
	var (
		summary domain.WeeklySummary
		stats   []byte
	)
	if err := row.Scan(&summary.UserID, &summary.WeekStartDate, &summary.WeekEndDate, &summary.SummaryText, &summary.AudioPath, &stats, &summary.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.WeeklySummary{}, domain.ErrNotFound
		}
		return domain.WeeklySummary{}, err
	}
	if len(stats) > 0 {
		if err := json.Unmarshal(stats, &summary.Stats); err != nil {
			return domain.WeeklySummary{}, fmt.Errorf("разбор статистики недели: %w", err)
		}
	}
	return summary, nil
}

// UpsertWeeklySummary сохраняет обзор недели, заменяя прежний для той же даты начала.
func (p *Postgres) UpsertWeeklySummary(ctx context.Context, summary domain.WeeklySummary) error {
	stats, err := json.Marshal(summary.Stats)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	_, err = p.pool.Exec(ctx, `
INSERT INTO journal_weekly_summaries (user_id, week_start_date, week_end_date, summary_text, tts_audio_path, stats)
VALUES ($1::uuid, $2::date, $3::date, $4, $5, $6::jsonb)
ON CONFLICT (user_id, week_start_date) DO UPDATE
SET week_end_date = EXCLUDED.week_end_date,
    summary_text = EXCLUDED.summary_text,
    tts_audio_path = EXCLUDED.tts_audio_path,
    stats = EXCLUDED.stats,
    created_at = now()
`, summary.UserID, summary.WeekStartDate, summary.WeekEndDate, summary.SummaryText, summary.AudioPath, string(stats))
	metrics.ObserveNetworkRequest("postgres", "weekly_upsert", "journal_weekly_summaries", start, err)
	return err
}

// GetWeeklySummary возвращает обзор недели по дате начала.
func (p *Postgres) GetWeeklySummary(ctx context.Context, userID, weekStart string) (domain.WeeklySummary, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	summary, err := scanWeekly(p.pool.QueryRow(ctx, `
SELECT `+weeklyColumns+`
FROM journal_weekly_summaries
WHERE user_id = $1::uuid AND week_start_date = $2::date
`, userID, weekStart))
	metrics.ObserveNetworkRequest("postgres", "weekly_get", "journal_weekly_summaries", start, ignoreNotFound(err))
	return summary, err
}

// ListWeeklySummaries возвращает последние обзоры, новые первыми.
func (p *Postgres) ListWeeklySummaries(ctx context.Context, userID string, limit int) ([]domain.WeeklySummary, error) {
	if limit <= 0 {
		limit = 12
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+weeklyColumns+`
FROM journal_weekly_summaries
WHERE user_id = $1::uuid
ORDER BY week_start_date DESC
LIMIT $2
`, userID, limit)
	metrics.ObserveNetworkRequest("postgres", "weekly_list", "journal_weekly_summaries", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.WeeklySummary
	for rows.Next() {
		summary, err := scanWeekly(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, summary)
	}
	return out, rows.Err()
}

// UpsertDailyNarration сохраняет озвучку дня.
func (p *Postgres) UpsertDailyNarration(ctx context.Context, narration domain.DailyNarration) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO journal_daily_summaries (user_id, date, summary_text, tts_audio_path)
VALUES ($1::uuid, $2::date, $3, $4)
ON CONFLICT (user_id, date) DO UPDATE
SET summary_text = EXCLUDED.summary_text,
    tts_audio_path = EXCLUDED.tts_audio_path,
    created_at = now()
`, narration.UserID, narration.Date, narration.SummaryText, narration.AudioPath)
	metrics.ObserveNetworkRequest("postgres", "daily_narration_upsert", "journal_daily_summaries", start, err)
	return err
}
