package domain

import (
	"context"
	"time"
)

// JournalRepo хранит записи дневника.
type JournalRepo interface {
	// CreateEntry списывает кредит и сохраняет запись в одной транзакции.
	// Повторная запись за ту же дату перезаписывает транскрипт и сбрасывает резюме.
	CreateEntry(ctx context.Context, userID, date, transcript string) (JournalEntry, error)
	GetEntry(ctx context.Context, entryID string) (JournalEntry, error)
	GetEntryByDate(ctx context.Context, userID, date string) (JournalEntry, error)
	MarkSummarized(ctx context.Context, entryID string, summary Summary) error
	ListSummarized(ctx context.Context, userID, from, to string) ([]JournalEntry, error)
}

// CreditRepo хранит баланс кредитов.
type CreditRepo interface {
	// GetCredits возвращает баланс, создавая строку со стартовым балансом при первом обращении.
	GetCredits(ctx context.Context, userID string) (int, error)
}

// WeeklyRepo хранит недельные обзоры.
type WeeklyRepo interface {
	UpsertWeeklySummary(ctx context.Context, summary WeeklySummary) error
	GetWeeklySummary(ctx context.Context, userID, weekStart string) (WeeklySummary, error)
	ListWeeklySummaries(ctx context.Context, userID string, limit int) ([]WeeklySummary, error)
}

// NarrationRepo хранит дневные озвучки.
type NarrationRepo interface {
	UpsertDailyNarration(ctx context.Context, narration DailyNarration) error
}

// ProfileRepo управляет профилями.
type ProfileRepo interface {
	EnsureProfile(ctx context.Context, userID string) (Profile, error)
	UpdateProfile(ctx context.Context, profile Profile) (Profile, error)
	// ListWeeklyRecipients возвращает пользователей с уведомлениями и записями в окне дат.
	ListWeeklyRecipients(ctx context.Context, from, to string) ([]Profile, error)
}

// AudioStorage хранит аудиофайлы озвучки.
type AudioStorage interface {
	// PutObject заменяет объект по пути целиком.
	PutObject(ctx context.Context, bucket, path, contentType string, data []byte) error
	GetObject(ctx context.Context, bucket, path string) ([]byte, string, error)
}

// Summarizer строит структурированное резюме по транскрипту.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (Summary, error)
}

// Narrator пишет тексты для озвучки.
type Narrator interface {
	ReflectWeek(ctx context.Context, days []DatedSummary, stats WeeklyStats) (WeeklyReflection, error)
	NarrateDay(ctx context.Context, date, transcript string) (string, error)
}

// Voice параметры синтеза речи.
type Voice struct {
	Name         string
	LanguageCode string
	Gender       string
	SpeakingRate float64
	Pitch        float64
}

// SpeechSynthesizer превращает текст в MP3.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string, voice Voice) ([]byte, error)
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Once(ctx context.Context, key string, ttl time.Duration, fn func() error) error
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
}
