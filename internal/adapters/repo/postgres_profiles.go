package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"voice-journal/internal/domain"
	"voice-journal/internal/infra/metrics"
)

const profileColumns = `id::text, timezone, notification_enabled, created_at`

func scanProfile(row pgx.Row) (domain.Profile, error) {
	var profile domain.Profile
	if err := row.Scan(&profile.UserID, &profile.Timezone, &profile.NotificationEnabled, &profile.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Profile{}, domain.ErrNotFound
		}
		return domain.Profile{}, err
	}
	return profile, nil
}

// EnsureProfile создаёт профиль при первом обращении и возвращает его.
func (p *Postgres) EnsureProfile(ctx context.Context, userID string) (domain.Profile, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return domain.Profile{}, fmt.Errorf("%w: некорректный id пользователя", domain.ErrInvalidInput)
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	_, err := p.pool.Exec(ctx, `INSERT INTO profiles (id) VALUES ($1::uuid) ON CONFLICT (id) DO NOTHING`, userID)
	var profile domain.Profile
	if err == nil {
		profile, err = scanProfile(p.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1::uuid`, userID))
	}
	metrics.ObserveNetworkRequest("postgres", "profile_ensure", "profiles", start, err)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("профиль: %w", err)
	}
	return profile, nil
}

// UpdateProfile сохраняет часовой пояс и флаг уведомлений.
func (p *Postgres) UpdateProfile(ctx context.Context, profile domain.Profile) (domain.Profile, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	updated, err := scanProfile(p.pool.QueryRow(ctx, `
INSERT INTO profiles (id, timezone, notification_enabled)
VALUES ($1::uuid, $2, $3)
ON CONFLICT (id) DO UPDATE
SET timezone = EXCLUDED.timezone,
    notification_enabled = EXCLUDED.notification_enabled
RETURNING `+profileColumns, profile.UserID, profile.Timezone, profile.NotificationEnabled))
	metrics.ObserveNetworkRequest("postgres", "profile_update", "profiles", start, err)
	return updated, err
}

// ListWeeklyRecipients возвращает профили с включёнными уведомлениями и записями в окне.
func (p *Postgres) ListWeeklyRecipients(ctx context.Context, from, to string) ([]domain.Profile, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+profileColumns+`
FROM profiles p
WHERE p.notification_enabled
  AND EXISTS (
    SELECT 1 FROM journal_entries e
    WHERE e.user_id = p.id
      AND e.journal_date BETWEEN $1::date AND $2::date
      AND e.is_summarized
  )
ORDER BY p.created_at
`, from, to)
	metrics.ObserveNetworkRequest("postgres", "profiles_weekly_recipients", "profiles", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Profile
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, profile)
	}
	return out, rows.Err()
}
