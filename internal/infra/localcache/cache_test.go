package localcache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"voice-journal/internal/domain"
)

type brokenStore struct{}

func (brokenStore) Load(context.Context) ([]byte, error) { return nil, errors.New("disk gone") }
func (brokenStore) Save(context.Context, []byte) error   { return errors.New("disk gone") }
func (brokenStore) Remove(context.Context) error         { return nil }

func sampleSummary(text string) domain.Summary {
	return domain.Summary{DaySummary: text, EnergyLevel: domain.EnergyHigh, EmotionalTone: domain.TonePositive}
}

func TestGetRespectsTTL(t *testing.T) {
	now := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	c := New(&MemoryStore{}, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	if err := c.Set(ctx, "2024-03-10", sampleSummary("walk")); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	now = now.Add(23 * time.Hour)
	got, ok := c.Get(ctx, "2024-03-10")
	if !ok || got.DaySummary != "walk" {
		t.Fatalf("ожидали свежую запись через 23 часа")
	}

	now = now.Add(2 * time.Hour)
	if _, ok := c.Get(ctx, "2024-03-10"); ok {
		t.Fatalf("через 25 часов запись должна считаться отсутствующей")
	}
	if _, present := c.All(ctx)["2024-03-10"]; !present {
		t.Fatalf("истёкшая запись физически остаётся в хранилище")
	}
}

func TestSetOverwrites(t *testing.T) {
	c := New(&MemoryStore{})
	ctx := context.Background()
	_ = c.Set(ctx, "2024-03-10", sampleSummary("first"))
	_ = c.Set(ctx, "2024-03-10", sampleSummary("second"))
	_ = c.Set(ctx, "2024-03-11", sampleSummary("other"))
	got, ok := c.Get(ctx, "2024-03-10")
	if !ok || got.DaySummary != "second" {
		t.Fatalf("ожидали перезапись, получили %+v", got)
	}
	if len(c.All(ctx)) != 2 {
		t.Fatalf("ожидали две даты в кэше")
	}
}

func TestClear(t *testing.T) {
	c := New(&MemoryStore{})
	ctx := context.Background()
	_ = c.Set(ctx, "2024-03-10", sampleSummary("walk"))
	if err := c.Clear(ctx); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if _, ok := c.Get(ctx, "2024-03-10"); ok {
		t.Fatalf("после очистки кэш пуст")
	}
}

func TestReadErrorsDegradeToMiss(t *testing.T) {
	c := New(brokenStore{})
	ctx := context.Background()
	if _, ok := c.Get(ctx, "2024-03-10"); ok {
		t.Fatalf("ошибка чтения должна давать промах")
	}
	if err := c.Set(ctx, "2024-03-10", sampleSummary("walk")); err == nil {
		t.Fatalf("ошибка записи должна возвращаться вызывающему")
	}
}

func TestCorruptBlobIsEmpty(t *testing.T) {
	store := &MemoryStore{}
	_ = store.Save(context.Background(), []byte("{not json"))
	c := New(store)
	if len(c.All(context.Background())) != 0 {
		t.Fatalf("повреждённый блоб должен читаться как пустой кэш")
	}
}

func TestFileStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "journal_cache.json")
	ctx := context.Background()

	first := New(NewFileStore(path))
	if err := first.Set(ctx, "2024-03-10", sampleSummary("walk")); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	second := New(NewFileStore(path))
	got, ok := second.Get(ctx, "2024-03-10")
	if !ok || got.DaySummary != "walk" {
		t.Fatalf("ожидали запись из файла")
	}

	if err := second.Clear(ctx); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("файл кэша должен быть удалён")
	}
}
