package bot

import (
	"context"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"voice-journal/internal/domain"
	"voice-journal/internal/usecase/orchestrator"
)

type senderStub struct {
	sent []tgbotapi.Chattable
}

func (s *senderStub) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	s.sent = append(s.sent, c)
	return tgbotapi.Message{}, nil
}

func (s *senderStub) texts() []string {
	var out []string
	for _, c := range s.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m.Text)
		}
	}
	return out
}

type journalStub struct {
	createText string
	createDate string
	createRes  orchestrator.Result
	createErr  error
	today      *domain.Summary
	weekly     domain.WeeklyResult
	exhausted  bool
	created    int
}

func (j *journalStub) CreateJournal(_ context.Context, text, date string) (orchestrator.Result, error) {
	j.created++
	j.createText, j.createDate = text, date
	return j.createRes, j.createErr
}

func (j *journalStub) FetchJournal(context.Context, string) (*domain.Summary, error) {
	return j.today, nil
}

func (j *journalStub) RefreshCredits(context.Context) (int, error) {
	if j.exhausted {
		return 0, nil
	}
	return 2, nil
}

func (j *journalStub) GenerateWeekly(context.Context, string) domain.WeeklyResult { return j.weekly }

type audioStub struct{ path string }

func (a *audioStub) DownloadAudio(_ context.Context, path string) ([]byte, error) {
	a.path = path
	return []byte("mp3"), nil
}

func newTestHandler(j *journalStub, a *audioStub) (*Handler, *senderStub, *int) {
	sender := &senderStub{}
	built := 0
	h := NewHandler(sender, zerolog.Nop(), func(int64) (*Session, error) {
		built++
		return &Session{Journal: j, Audio: a}, nil
	}, time.UTC)
	h.now = func() time.Time { return time.Date(2024, 3, 5, 21, 0, 0, 0, time.UTC) }
	return h, sender, &built
}

func message(text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Text: text,
		Chat: &tgbotapi.Chat{ID: 100},
		From: &tgbotapi.User{ID: 42},
	}}
}

func TestEntryIsFormattedAndSaved(t *testing.T) {
	j := &journalStub{createRes: orchestrator.Result{
		Outcome: orchestrator.OutcomeResolved,
		Summary: domain.Summary{DaySummary: "A calm walk.", WhatWasDone: []string{"Walk"}, EnergyLevel: domain.EnergyMedium, EmotionalTone: domain.TonePositive},
	}}
	h, sender, built := newTestHandler(j, nil)

	h.HandleUpdate(context.Background(), message("um so today I, like, went for a walk"))
	h.HandleUpdate(context.Background(), message("/credits"))

	if j.createText != "So today I, went for a walk." || j.createDate != "2024-03-05" {
		t.Fatalf("неожиданный вызов: %q %q", j.createText, j.createDate)
	}
	texts := sender.texts()
	if len(texts) != 3 || !strings.Contains(texts[1], "A calm walk.") || !strings.Contains(texts[1], "• Walk") {
		t.Fatalf("неожиданные ответы: %q", texts)
	}
	if texts[2] != "Journal credits left: 2" {
		t.Fatalf("неожиданный ответ кредитов: %q", texts[2])
	}
	if *built != 1 {
		t.Fatalf("сессия создаётся один раз на пользователя, создано %d", *built)
	}
}

func TestEntryWithoutCredits(t *testing.T) {
	j := &journalStub{createErr: orchestrator.ErrNoCredits}
	h, sender, _ := newTestHandler(j, nil)
	h.HandleUpdate(context.Background(), message("went running"))
	texts := sender.texts()
	if texts[len(texts)-1] != orchestrator.NoCreditsMessage {
		t.Fatalf("ожидали сообщение об отсутствии кредитов, получили %q", texts)
	}
}

func TestEntryWithZeroBalanceIsNotSent(t *testing.T) {
	j := &journalStub{exhausted: true}
	h, sender, _ := newTestHandler(j, nil)
	h.HandleUpdate(context.Background(), message("went running"))
	if j.created != 0 {
		t.Fatalf("при нулевом балансе запрос не отправляется, отправлено %d", j.created)
	}
	texts := sender.texts()
	if len(texts) != 1 || texts[0] != orchestrator.NoCreditsMessage {
		t.Fatalf("ожидали только сообщение об отсутствии кредитов, получили %q", texts)
	}
}

func TestTodayWithoutEntry(t *testing.T) {
	h, sender, _ := newTestHandler(&journalStub{}, nil)
	h.HandleUpdate(context.Background(), message("/today"))
	texts := sender.texts()
	if len(texts) != 1 || !strings.Contains(texts[0], "No summary for today yet") {
		t.Fatalf("неожиданный ответ: %q", texts)
	}
}

func TestWeeklySendsAudio(t *testing.T) {
	level := domain.EnergyHigh
	j := &journalStub{weekly: domain.WeeklyResult{
		Status:        domain.StatusSuccess,
		SummaryText:   "A strong week.",
		AudioPath:     "journal-weekly-tts/u1/2024-03-04/weekly-summary.mp3",
		WeekStartDate: "2024-03-04",
		WeekEndDate:   "2024-03-10",
		Stats:         &domain.WeeklyStats{DaysJournaled: 3, AvgEnergyLevel: &level, DominantMood: domain.TonePositive},
	}}
	a := &audioStub{}
	h, sender, _ := newTestHandler(j, a)

	h.HandleUpdate(context.Background(), message("/weekly"))

	if a.path != j.weekly.AudioPath {
		t.Fatalf("ожидали загрузку аудио %s, получили %s", j.weekly.AudioPath, a.path)
	}
	last := sender.sent[len(sender.sent)-1]
	if _, ok := last.(tgbotapi.AudioConfig); !ok {
		t.Fatalf("последним должно уйти аудио, получили %T", last)
	}
	texts := sender.texts()
	if !strings.Contains(texts[len(texts)-1], "Average energy: high") {
		t.Fatalf("неожиданный текст обзора: %q", texts)
	}
}

func TestWeeklyEmptyAndBadDate(t *testing.T) {
	j := &journalStub{weekly: domain.WeeklyResult{Status: domain.StatusEmpty, Message: "No journal entries found for the past week"}}
	h, sender, _ := newTestHandler(j, &audioStub{})
	h.HandleUpdate(context.Background(), message("/weekly"))
	h.HandleUpdate(context.Background(), message("/weekly 10.03.2024"))
	texts := sender.texts()
	if texts[1] != "No journal entries found for the past week" || texts[2] != "Use /weekly or /weekly YYYY-MM-DD" {
		t.Fatalf("неожиданные ответы: %q", texts)
	}
}

func TestUserIDForIsStable(t *testing.T) {
	if UserIDFor(42) != UserIDFor(42) {
		t.Fatalf("id должен быть детерминированным")
	}
	if UserIDFor(42) == UserIDFor(43) {
		t.Fatalf("разные аккаунты дают разные id")
	}
}
