package narration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"voice-journal/internal/adapters/narrator"
	"voice-journal/internal/domain"
)

type stubStore struct {
	entries   []domain.JournalEntry
	listFrom  string
	listTo    string
	weekly    []domain.WeeklySummary
	daily     []domain.DailyNarration
	objects   map[string][]byte
	puts      int
	putBucket string
	putPath   string
}

func newStubStore(entries ...domain.JournalEntry) *stubStore {
	return &stubStore{entries: entries, objects: map[string][]byte{}}
}

func (s *stubStore) CreateEntry(context.Context, string, string, string) (domain.JournalEntry, error) {
	return domain.JournalEntry{}, errors.New("not used")
}

func (s *stubStore) GetEntry(context.Context, string) (domain.JournalEntry, error) {
	return domain.JournalEntry{}, domain.ErrNotFound
}

func (s *stubStore) GetEntryByDate(_ context.Context, userID, date string) (domain.JournalEntry, error) {
	for _, e := range s.entries {
		if e.UserID == userID && e.Date == date {
			return e, nil
		}
	}
	return domain.JournalEntry{}, domain.ErrNotFound
}

func (s *stubStore) MarkSummarized(context.Context, string, domain.Summary) error { return nil }

func (s *stubStore) ListSummarized(_ context.Context, _ string, from, to string) ([]domain.JournalEntry, error) {
	s.listFrom, s.listTo = from, to
	var out []domain.JournalEntry
	for _, e := range s.entries {
		if e.Ready() && e.Date >= from && e.Date <= to {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *stubStore) UpsertWeeklySummary(_ context.Context, w domain.WeeklySummary) error {
	s.weekly = append(s.weekly, w)
	return nil
}

func (s *stubStore) GetWeeklySummary(context.Context, string, string) (domain.WeeklySummary, error) {
	return domain.WeeklySummary{}, domain.ErrNotFound
}

func (s *stubStore) ListWeeklySummaries(context.Context, string, int) ([]domain.WeeklySummary, error) {
	return s.weekly, nil
}

func (s *stubStore) UpsertDailyNarration(_ context.Context, n domain.DailyNarration) error {
	s.daily = append(s.daily, n)
	return nil
}

func (s *stubStore) PutObject(_ context.Context, bucket, path, _ string, data []byte) error {
	s.puts++
	s.putBucket, s.putPath = bucket, path
	s.objects[bucket+"/"+path] = data
	return nil
}

func (s *stubStore) GetObject(_ context.Context, bucket, path string) ([]byte, string, error) {
	data, ok := s.objects[bucket+"/"+path]
	if !ok {
		return nil, "", domain.ErrNotFound
	}
	return data, "audio/mpeg", nil
}

type fakeTTS struct {
	calls int
	voice domain.Voice
}

func (f *fakeTTS) Synthesize(_ context.Context, text string, voice domain.Voice) ([]byte, error) {
	f.calls++
	f.voice = voice
	return []byte("mp3:" + text), nil
}

type fixedCalendar struct{ day time.Time }

func (c fixedCalendar) Today(context.Context, string) (time.Time, error) { return c.day, nil }

func entry(date string, energy domain.EnergyLevel, tone domain.EmotionalTone, done ...string) domain.JournalEntry {
	return domain.JournalEntry{
		ID:           "e-" + date,
		UserID:       "u1",
		Date:         date,
		IsSummarized: true,
		Summary: &domain.Summary{
			DaySummary:    "Day " + date,
			WhatWasDone:   done,
			EnergyLevel:   energy,
			EmotionalTone: tone,
		},
	}
}

func TestGenerateWeeklyEmpty(t *testing.T) {
	store := newStubStore()
	tts := &fakeTTS{}
	svc := NewService(store, store, store, store, narrator.NewSimple(3), tts, nil, nil, zerolog.Nop())

	res, err := svc.GenerateWeekly(context.Background(), "u1", "2024-03-10")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if res.Status != domain.StatusEmpty || res.Message != "No journal entries found for the past week" {
		t.Fatalf("ожидали empty, получили %+v", res)
	}
	if tts.calls != 0 || store.puts != 0 || len(store.weekly) != 0 {
		t.Fatalf("пустая неделя не вызывает TTS и хранилище")
	}
	if store.listFrom != "2024-03-04" || store.listTo != "2024-03-10" {
		t.Fatalf("неожиданное окно: %s..%s", store.listFrom, store.listTo)
	}
}

func TestGenerateWeeklyStoresAudio(t *testing.T) {
	store := newStubStore(
		entry("2024-03-04", domain.EnergyLow, domain.ToneHeavy, "Emails"),
		entry("2024-03-05", domain.EnergyHigh, domain.TonePositive, "Ran", "emails"),
		entry("2024-03-06", domain.EnergyHigh, domain.TonePositive, "Ran"),
		entry("2024-03-01", domain.EnergyLow, domain.ToneHeavy, "Outside"),
	)
	tts := &fakeTTS{}
	svc := NewService(store, store, store, store, narrator.NewSimple(3), tts, fixedCalendar{day: time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)}, nil, zerolog.Nop())

	res, err := svc.GenerateWeekly(context.Background(), "u1", "")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if res.Status != domain.StatusSuccess || res.DaysIncluded != 3 {
		t.Fatalf("ожидали success по трём дням: %+v", res)
	}
	if res.WeekStartDate != "2024-03-04" || res.WeekEndDate != "2024-03-10" {
		t.Fatalf("неожиданная неделя: %+v", res)
	}
	if res.AudioPath != "journal-weekly-tts/u1/2024-03-04/weekly-summary.mp3" {
		t.Fatalf("неожиданный путь: %s", res.AudioPath)
	}
	if store.putBucket != WeeklyBucket || store.putPath != "u1/2024-03-04/weekly-summary.mp3" {
		t.Fatalf("неожиданный объект: %s %s", store.putBucket, store.putPath)
	}
	if tts.voice != WeeklyVoice {
		t.Fatalf("ожидали недельный голос, получили %+v", tts.voice)
	}
	if len(store.weekly) != 1 || store.weekly[0].SummaryText != res.SummaryText {
		t.Fatalf("обзор должен сохраниться: %+v", store.weekly)
	}
	stats := res.Stats
	if stats.AvgEnergyLevel == nil || *stats.AvgEnergyLevel != domain.EnergyMedium {
		t.Fatalf("(1+3+3)/3 округляется до medium: %+v", stats.AvgEnergyLevel)
	}
	if stats.DominantMood != domain.TonePositive {
		t.Fatalf("ожидали positive, получили %s", stats.DominantMood)
	}
	if len(stats.TopActivities) == 0 || stats.TopActivities[0] != "Emails" || stats.KeyAchievement == "" {
		t.Fatalf("неожиданные активности: %+v", stats)
	}
}

func TestComputeStats(t *testing.T) {
	days := []domain.DatedSummary{
		{Date: "2024-03-04", Summary: domain.Summary{EnergyLevel: domain.EnergyUnclear, EmotionalTone: domain.ToneMixed}},
		{Date: "2024-03-05", Summary: domain.Summary{EnergyLevel: domain.EnergyUnclear, EmotionalTone: domain.ToneHeavy}},
	}
	stats := ComputeStats(days)
	if stats.AvgEnergyLevel != nil {
		t.Fatalf("только unclear не даёт среднего")
	}
	if stats.DominantMood != domain.ToneMixed {
		t.Fatalf("при равенстве побеждает более ранний тон, получили %s", stats.DominantMood)
	}
	if stats.DaysJournaled != 2 {
		t.Fatalf("ожидали 2 дня, получили %d", stats.DaysJournaled)
	}
}

func TestNarrateDay(t *testing.T) {
	store := newStubStore(domain.JournalEntry{ID: "e1", UserID: "u1", Date: "2024-03-05", RawTranscript: "Walked the dog."})
	tts := &fakeTTS{}
	svc := NewService(store, store, store, store, narrator.NewSimple(3), tts, nil, nil, zerolog.Nop())

	res, err := svc.NarrateDay(context.Background(), "u1", "2024-03-05")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if res.Status != domain.StatusSuccess || res.AudioPath != "journal-tts/u1/2024-03-05/summary.mp3" {
		t.Fatalf("неожиданный ответ: %+v", res)
	}
	if tts.voice != DailyVoice || len(store.daily) != 1 {
		t.Fatalf("ожидали дневной голос и сохранённую озвучку")
	}

	res, err = svc.NarrateDay(context.Background(), "u1", "2024-03-06")
	if err != nil || res.Status != domain.StatusEmpty {
		t.Fatalf("без записи ожидали empty: %+v %v", res, err)
	}
}

func TestAudioOwnerCheck(t *testing.T) {
	store := newStubStore()
	store.objects["journal-tts/u1/2024-03-05/summary.mp3"] = []byte("mp3")
	svc := NewService(store, store, store, store, narrator.NewSimple(3), &fakeTTS{}, nil, nil, zerolog.Nop())

	data, ct, err := svc.Audio(context.Background(), "u1", DailyBucket, "u1/2024-03-05/summary.mp3")
	if err != nil || string(data) != "mp3" || ct != "audio/mpeg" {
		t.Fatalf("ожидали аудио владельца: %v", err)
	}
	if _, _, err := svc.Audio(context.Background(), "u2", DailyBucket, "u1/2024-03-05/summary.mp3"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("чужое аудио должно давать ErrNotFound, получили %v", err)
	}
	if _, _, err := svc.Audio(context.Background(), "u1", "other", "u1/x.mp3"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("неизвестный бакет должен давать ErrNotFound, получили %v", err)
	}
}
