package localcache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"voice-journal/internal/domain"
)

// DefaultTTL срок свежести записи.
const DefaultTTL = 24 * time.Hour

// Record запись кэша: резюме и момент получения в миллисекундах epoch.
type Record struct {
	Summary   domain.Summary `json:"summary"`
	FetchedAt int64          `json:"fetchedAt"`
}

// JournalCache кэш резюме по датам. Истёкшие записи остаются в хранилище, но не отдаются.
type JournalCache struct {
	mu    sync.Mutex
	store Store
	ttl   time.Duration
	now   func() time.Time
	log   zerolog.Logger
}

// Option настраивает кэш.
type Option func(*JournalCache)

// WithTTL задаёт срок свежести.
func WithTTL(ttl time.Duration) Option {
	return func(c *JournalCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock подменяет часы.
func WithClock(now func() time.Time) Option {
	return func(c *JournalCache) { c.now = now }
}

// WithLogger задаёт логгер.
func WithLogger(log zerolog.Logger) Option {
	return func(c *JournalCache) { c.log = log }
}

// New создаёт кэш поверх хранилища.
func New(store Store, opts ...Option) *JournalCache {
	c := &JournalCache{store: store, ttl: DefaultTTL, now: time.Now, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// load читает карту целиком; любые ошибки чтения дают пустую карту.
func (c *JournalCache) load(ctx context.Context) map[string]Record {
	records := make(map[string]Record)
	data, err := c.store.Load(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("localcache: чтение не удалось, считаем кэш пустым")
		return records
	}
	if len(data) == 0 {
		return records
	}
	if err := json.Unmarshal(data, &records); err != nil {
		c.log.Warn().Err(err).Msg("localcache: повреждённые данные, считаем кэш пустым")
		return make(map[string]Record)
	}
	return records
}

func (c *JournalCache) fresh(rec Record) bool {
	age := c.now().Sub(time.UnixMilli(rec.FetchedAt))
	return age <= c.ttl
}

// Get возвращает свежее резюме за дату.
func (c *JournalCache) Get(ctx context.Context, date string) (domain.Summary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.load(ctx)[date]
	if !ok || !c.fresh(rec) {
		return domain.Summary{}, false
	}
	return rec.Summary, true
}

// Set безусловно записывает резюме с текущим временем.
func (c *JournalCache) Set(ctx context.Context, date string, summary domain.Summary) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	records := c.load(ctx)
	records[date] = Record{Summary: summary, FetchedAt: c.now().UnixMilli()}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("localcache: marshal: %w", err)
	}
	if err := c.store.Save(ctx, data); err != nil {
		return fmt.Errorf("localcache: save: %w", err)
	}
	return nil
}

// Clear удаляет все записи.
func (c *JournalCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.Remove(ctx); err != nil {
		return fmt.Errorf("localcache: clear: %w", err)
	}
	return nil
}

// All возвращает все записи, включая истёкшие.
func (c *JournalCache) All(ctx context.Context) map[string]Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load(ctx)
}

// Fresh сообщает, отдаётся ли запись сейчас.
func (c *JournalCache) Fresh(rec Record) bool {
	return c.fresh(rec)
}
