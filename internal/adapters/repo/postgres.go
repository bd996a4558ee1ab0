package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"voice-journal/internal/domain"
	"voice-journal/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool        *pgxpool.Pool
	freeCredits int
}

var (
	_ domain.JournalRepo        = (*Postgres)(nil)
	_ domain.CreditRepo         = (*Postgres)(nil)
	_ domain.WeeklyRepo         = (*Postgres)(nil)
	_ domain.NarrationRepo      = (*Postgres)(nil)
	_ domain.ProfileRepo        = (*Postgres)(nil)
	_ domain.AudioStorage       = (*Postgres)(nil)
	_ domain.BusinessMetricRepo = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД. freeCredits задаёт стартовый баланс нового пользователя.
func NewPostgres(pool *pgxpool.Pool, freeCredits int) *Postgres {
	if freeCredits < 0 {
		freeCredits = 0
	}
	return &Postgres{pool: pool, freeCredits: freeCredits}
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// RecordBusinessMetric сохраняет бизнесовую метрику в БД.
func (p *Postgres) RecordBusinessMetric(ctx context.Context, metric domain.BusinessMetric) error {
	if metric.Event == "" {
		return nil
	}
	if metric.OccurredAt.IsZero() {
		metric.OccurredAt = time.Now().UTC()
	}

	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var userID *string
	if _, err := uuid.Parse(metric.UserID); err == nil {
		userID = &metric.UserID
	}
	var payload *string
	if metric.Metadata != nil {
		if data, err := json.Marshal(metric.Metadata); err == nil {
			s := string(data)
			payload = &s
		}
	}

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO business_metrics (event, user_id, metadata, occurred_at)
VALUES ($1, $2::uuid, $3::jsonb, $4)
`, metric.Event, userID, payload, metric.OccurredAt)
	metrics.ObserveNetworkRequest("postgres", "business_metrics_insert", "business_metrics", start, err)
	return err
}

const entryColumns = `id::text, user_id::text, to_char(journal_date, 'YYYY-MM-DD'), raw_transcript, summary, is_summarized, created_at, updated_at`

func scanEntry(row pgx.Row) (domain.JournalEntry, error) {
	var (
		entry   domain.JournalEntry
		summary []byte
	)
	if err := row.Scan(&entry.ID, &entry.UserID, &entry.Date, &entry.RawTranscript, &summary, &entry.IsSummarized, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.JournalEntry{}, domain.ErrNotFound
		}
		return domain.JournalEntry{}, err
	}
	if len(summary) > 0 {
		var s domain.Summary
		if err := json.Unmarshal(summary, &s); err != nil {
			return domain.JournalEntry{}, fmt.Errorf("разбор summary записи %s: %w", entry.ID, err)
		}
		entry.Summary = &s
	}
	return entry, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (p *Postgres) ensureCredits(ctx context.Context, q execer, userID string) error {
	_, err := q.Exec(ctx, `
INSERT INTO usage_credits (user_id, daily_journal_credits)
VALUES ($1::uuid, $2)
ON CONFLICT (user_id) DO NOTHING
`, userID, p.freeCredits)
	return err
}

// CreateEntry списывает кредит и сохраняет запись в одной транзакции.
func (p *Postgres) CreateEntry(ctx context.Context, userID, date, transcript string) (domain.JournalEntry, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return domain.JournalEntry{}, fmt.Errorf("%w: некорректный id пользователя", domain.ErrInvalidInput)
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	entry, err := p.createEntryTx(ctx, userID, date, transcript)
	metrics.ObserveNetworkRequest("postgres", "journal_create", "journal_entries", start, err)
	return entry, err
}

func (p *Postgres) createEntryTx(ctx context.Context, userID, date, transcript string) (domain.JournalEntry, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return domain.JournalEntry{}, fmt.Errorf("начало транзакции: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := p.ensureCredits(ctx, tx, userID); err != nil {
		return domain.JournalEntry{}, fmt.Errorf("создание баланса: %w", err)
	}

	var remaining int
	err = tx.QueryRow(ctx, `
UPDATE usage_credits
SET daily_journal_credits = daily_journal_credits - 1, updated_at = now()
WHERE user_id = $1::uuid AND daily_journal_credits > 0
RETURNING daily_journal_credits
`, userID).Scan(&remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.JournalEntry{}, domain.ErrInsufficientCredits
	}
	if err != nil {
		return domain.JournalEntry{}, fmt.Errorf("списание кредита: %w", err)
	}

	row := tx.QueryRow(ctx, `
INSERT INTO journal_entries (id, user_id, journal_date, raw_transcript)
VALUES ($1::uuid, $2::uuid, $3::date, $4)
ON CONFLICT (user_id, journal_date) DO UPDATE
SET raw_transcript = EXCLUDED.raw_transcript,
    summary = NULL,
    is_summarized = FALSE,
    updated_at = now()
RETURNING `+entryColumns, uuid.NewString(), userID, date, transcript)
	entry, err := scanEntry(row)
	if err != nil {
		return domain.JournalEntry{}, fmt.Errorf("сохранение записи: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.JournalEntry{}, fmt.Errorf("фиксация транзакции: %w", err)
	}
	return entry, nil
}

// GetEntry возвращает запись по id.
func (p *Postgres) GetEntry(ctx context.Context, entryID string) (domain.JournalEntry, error) {
	if _, err := uuid.Parse(entryID); err != nil {
		return domain.JournalEntry{}, domain.ErrNotFound
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	entry, err := scanEntry(p.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id = $1::uuid`, entryID))
	metrics.ObserveNetworkRequest("postgres", "journal_get", "journal_entries", start, ignoreNotFound(err))
	return entry, err
}

// GetEntryByDate возвращает запись пользователя за дату.
func (p *Postgres) GetEntryByDate(ctx context.Context, userID, date string) (domain.JournalEntry, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	entry, err := scanEntry(p.pool.QueryRow(ctx, `
SELECT `+entryColumns+`
FROM journal_entries
WHERE user_id = $1::uuid AND journal_date = $2::date
`, userID, date))
	metrics.ObserveNetworkRequest("postgres", "journal_get_by_date", "journal_entries", start, ignoreNotFound(err))
	return entry, err
}

// MarkSummarized сохраняет резюме и выставляет is_summarized.
func (p *Postgres) MarkSummarized(ctx context.Context, entryID string, summary domain.Summary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE journal_entries
SET summary = $2::jsonb, is_summarized = TRUE, updated_at = now()
WHERE id = $1::uuid
`, entryID, string(payload))
	metrics.ObserveNetworkRequest("postgres", "journal_mark_summarized", "journal_entries", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListSummarized возвращает суммаризированные записи за период [from, to] по возрастанию даты.
func (p *Postgres) ListSummarized(ctx context.Context, userID, from, to string) ([]domain.JournalEntry, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+entryColumns+`
FROM journal_entries
WHERE user_id = $1::uuid
  AND journal_date BETWEEN $2::date AND $3::date
  AND is_summarized
  AND summary IS NOT NULL
ORDER BY journal_date
`, userID, from, to)
	metrics.ObserveNetworkRequest("postgres", "journal_list_summarized", "journal_entries", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []domain.JournalEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// GetCredits возвращает баланс, создавая строку при первом обращении.
func (p *Postgres) GetCredits(ctx context.Context, userID string) (int, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return 0, fmt.Errorf("%w: некорректный id пользователя", domain.ErrInvalidInput)
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	var credits int
	err := p.ensureCredits(ctx, p.pool, userID)
	if err == nil {
		err = p.pool.QueryRow(ctx, `SELECT daily_journal_credits FROM usage_credits WHERE user_id = $1::uuid`, userID).Scan(&credits)
	}
	metrics.ObserveNetworkRequest("postgres", "credits_get", "usage_credits", start, err)
	if err != nil {
		return 0, fmt.Errorf("получение кредитов: %w", err)
	}
	return credits, nil
}

func ignoreNotFound(err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	return err
}
