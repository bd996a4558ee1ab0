package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"voice-journal/internal/domain"
	"voice-journal/internal/infra/metrics"
)

// PutObject заменяет аудиообъект целиком.
func (p *Postgres) PutObject(ctx context.Context, bucket, path, contentType string, data []byte) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO storage_objects (bucket, path, content_type, data)
VALUES ($1, $2, $3, $4)
ON CONFLICT (bucket, path) DO UPDATE
SET content_type = EXCLUDED.content_type,
    data = EXCLUDED.data,
    updated_at = now()
`, bucket, path, contentType, data)
	metrics.ObserveNetworkRequest("postgres", "storage_put", bucket, start, err)
	return err
}

// GetObject возвращает содержимое и content-type объекта.
func (p *Postgres) GetObject(ctx context.Context, bucket, path string) ([]byte, string, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	var (
		data        []byte
		contentType string
	)
	err := p.pool.QueryRow(ctx, `SELECT data, content_type FROM storage_objects WHERE bucket = $1 AND path = $2`, bucket, path).Scan(&data, &contentType)
	if errors.Is(err, pgx.ErrNoRows) {
		err = domain.ErrNotFound
	}
	metrics.ObserveNetworkRequest("postgres", "storage_get", bucket, start, ignoreNotFound(err))
	if err != nil {
		return nil, "", err
	}
	return data, contentType, nil
}
