package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"voice-journal/internal/domain"
	"voice-journal/internal/usecase/orchestrator"
)

type journalStub struct {
	text, date string
	createErr  error
	summary    *domain.Summary
	weekly     domain.WeeklyResult
	waited     bool
	exhausted  bool
	created    int
}

func (j *journalStub) CreateJournal(_ context.Context, text, date string) (orchestrator.Result, error) {
	j.created++
	j.text, j.date = text, date
	if j.createErr != nil {
		return orchestrator.Result{Outcome: orchestrator.OutcomeFailed}, j.createErr
	}
	return orchestrator.Result{
		Outcome: orchestrator.OutcomeResolved,
		EntryID: "e1",
		Summary: domain.Summary{DaySummary: "A calm day.", EnergyLevel: domain.EnergyMedium, EmotionalTone: domain.ToneNeutral},
	}, nil
}

func (j *journalStub) FetchJournal(_ context.Context, date string) (*domain.Summary, error) {
	j.date = date
	return j.summary, nil
}

func (j *journalStub) RefreshCredits(context.Context) (int, error) {
	if j.exhausted {
		return 0, nil
	}
	return 2, nil
}

func (j *journalStub) GenerateWeekly(_ context.Context, endDate string) domain.WeeklyResult {
	j.date = endDate
	return j.weekly
}

func (j *journalStub) Wait() { j.waited = true }

type audioStub struct {
	path string
}

func (a *audioStub) NarrateDay(_ context.Context, date string) domain.NarrationResult {
	return domain.NarrationResult{Status: domain.StatusEmpty, Message: "No journal entries found for this date", Date: date}
}

func (a *audioStub) DownloadAudio(_ context.Context, audioPath string) ([]byte, error) {
	a.path = audioPath
	return []byte("ID3"), nil
}

type cacheStub struct{ cleared bool }

func (c *cacheStub) Clear(context.Context) error {
	c.cleared = true
	return nil
}

func runCLI(t *testing.T, ctx *commandContext, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand(ctx)
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func stubContext(j *journalStub) (*commandContext, *audioStub, *cacheStub) {
	audio := &audioStub{}
	cache := &cacheStub{}
	return &commandContext{log: zerolog.Nop(), journal: j, audio: audio, cache: cache}, audio, cache
}

func TestRecordSavesFormattedTranscript(t *testing.T) {
	j := &journalStub{}
	ctx, _, _ := stubContext(j)

	out, err := runCLI(t, ctx, "so today um i\nwent for a walk\n", "record", "--date", "2024-03-05")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if j.text != "So today i went for a walk." || j.date != "2024-03-05" {
		t.Fatalf("неожиданная запись: %q %q", j.text, j.date)
	}
	if !strings.Contains(out, "A calm day.") {
		t.Fatalf("резюме не выведено: %s", out)
	}
	if !j.waited {
		t.Fatalf("ожидали дожидание фоновых обновлений")
	}
}

func TestRecordRejectsEmptyInput(t *testing.T) {
	j := &journalStub{}
	ctx, _, _ := stubContext(j)

	_, err := runCLI(t, ctx, "\n   \n", "record")
	if !errors.Is(err, errNothingRecorded) {
		t.Fatalf("ожидали errNothingRecorded, получили %v", err)
	}
	if j.text != "" {
		t.Fatalf("пустой ввод не отправляется")
	}
}

func TestRecordWithoutCredits(t *testing.T) {
	j := &journalStub{createErr: orchestrator.ErrNoCredits}
	ctx, _, _ := stubContext(j)

	_, err := runCLI(t, ctx, "walked the dog\n", "record", "--date", "2024-03-05")
	if err == nil || err.Error() != orchestrator.NoCreditsMessage {
		t.Fatalf("ожидали сообщение о кредитах, получили %v", err)
	}
}

func TestRecordWithZeroBalanceIsNotSent(t *testing.T) {
	j := &journalStub{exhausted: true}
	ctx, _, _ := stubContext(j)

	out, err := runCLI(t, ctx, "walked the dog\n", "record", "--date", "2024-03-05")
	if err == nil || err.Error() != orchestrator.NoCreditsMessage {
		t.Fatalf("ожидали сообщение о кредитах, получили %v", err)
	}
	if j.created != 0 {
		t.Fatalf("при нулевом балансе запрос не отправляется, отправлено %d", j.created)
	}
	if strings.Contains(out, "Saving your journal") {
		t.Fatalf("сохранение не начинается: %s", out)
	}
}

func TestShowAndCredits(t *testing.T) {
	j := &journalStub{}
	ctx, _, _ := stubContext(j)

	out, err := runCLI(t, ctx, "", "show", "2024-03-05")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !strings.Contains(out, "No summary for 2024-03-05 yet.") {
		t.Fatalf("неожиданный вывод: %s", out)
	}

	if _, err := runCLI(t, ctx, "", "show", "05.03.2024"); err == nil {
		t.Fatalf("ожидали ошибку формата даты")
	}

	out, err = runCLI(t, ctx, "", "credits")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !strings.Contains(out, "Journal credits left: 2") {
		t.Fatalf("неожиданный вывод: %s", out)
	}
}

func TestWeeklySavesAndSpeaks(t *testing.T) {
	j := &journalStub{weekly: domain.WeeklyResult{
		Status:        domain.StatusSuccess,
		SummaryText:   "A steady week.",
		AudioPath:     "journal-weekly-tts/u1/2024-03-04.mp3",
		WeekStartDate: "2024-03-04",
		WeekEndDate:   "2024-03-10",
	}}
	ctx, audio, _ := stubContext(j)
	path := filepath.Join(t.TempDir(), "week.mp3")

	out, err := runCLI(t, ctx, "", "weekly", "--end", "2024-03-10", "--out", path, "--speak")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if j.date != "2024-03-10" || audio.path != "journal-weekly-tts/u1/2024-03-04.mp3" {
		t.Fatalf("неожиданные запросы: %q %q", j.date, audio.path)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "ID3" {
		t.Fatalf("аудио не сохранено: %q %v", data, err)
	}
	if !strings.Contains(out, "[speak pitch=1.00 rate=1.00] A steady week.") {
		t.Fatalf("текст не озвучен: %s", out)
	}
}

func TestWeeklyEmptyAndNarrateEmpty(t *testing.T) {
	j := &journalStub{weekly: domain.WeeklyResult{Status: domain.StatusEmpty, Message: "No journal entries found for the past week"}}
	ctx, _, _ := stubContext(j)

	out, err := runCLI(t, ctx, "", "weekly")
	if err != nil || !strings.Contains(out, "No journal entries found for the past week") {
		t.Fatalf("неожиданный результат: %s %v", out, err)
	}
	out, err = runCLI(t, ctx, "", "narrate", "2024-03-05")
	if err != nil || !strings.Contains(out, "No journal entries found for this date") {
		t.Fatalf("неожиданный результат: %s %v", out, err)
	}
}

func TestCacheClear(t *testing.T) {
	ctx, _, cache := stubContext(&journalStub{})
	if _, err := runCLI(t, ctx, "", "cache", "clear"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !cache.cleared {
		t.Fatalf("кэш не очищен")
	}
}
