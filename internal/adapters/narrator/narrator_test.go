package narrator

import (
	"context"
	"strings"
	"testing"
	"time"

	"voice-journal/internal/domain"
	openai "voice-journal/internal/infra/openai"
)

type fakeChat struct {
	content string
	req     openai.ChatCompletionRequest
}

func (f *fakeChat) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.req = req
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{Message: openai.ChatMessage{Content: f.content}}}}, nil
}

func week() []domain.DatedSummary {
	return []domain.DatedSummary{
		{Date: "2024-03-04", Summary: domain.Summary{DaySummary: "Work day.", WhatWasDone: []string{"Ran", "Emails"}, EnergyLevel: domain.EnergyHigh, EmotionalTone: domain.TonePositive}},
		{Date: "2024-03-05", Summary: domain.Summary{DaySummary: "Slow day.", WhatWasDone: []string{"emails", "Reading"}, EnergyLevel: domain.EnergyLow, EmotionalTone: domain.ToneHeavy, Reflection: "Rest matters."}},
	}
}

func TestLLMReflectWeekNestedStats(t *testing.T) {
	chat := &fakeChat{content: `{"reflection_text":"You had a full week.","stats":{"top_activities":["emails"," "],"key_achievement":"Ran twice"}}`}
	n := NewLLM(chat, "", time.Second)
	got, err := n.ReflectWeek(context.Background(), week(), domain.WeeklyStats{DaysJournaled: 2})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if got.Text != "You had a full week." || got.KeyAchievement != "Ran twice" {
		t.Fatalf("неожиданный результат: %+v", got)
	}
	if len(got.TopActivities) != 1 {
		t.Fatalf("пустые занятия выбрасываются: %v", got.TopActivities)
	}
	if chat.req.Temperature != 0.8 || chat.req.MaxTokens != 800 {
		t.Fatalf("неожиданные параметры запроса: %+v", chat.req)
	}
	if !strings.Contains(chat.req.Messages[1].Content, "Monday (2024-03-04)") {
		t.Fatalf("в промпте должен быть день недели и дата")
	}
}

func TestLLMReflectWeekRejectsEmptyText(t *testing.T) {
	n := NewLLM(&fakeChat{content: `{"reflection_text":""}`}, "m", time.Second)
	if _, err := n.ReflectWeek(context.Background(), week(), domain.WeeklyStats{}); err == nil {
		t.Fatalf("ожидали ошибку для пустого текста")
	}
}

func TestSimpleReflectWeek(t *testing.T) {
	medium := domain.EnergyMedium
	got, err := NewSimple(2).ReflectWeek(context.Background(), week(), domain.WeeklyStats{DaysJournaled: 2, AvgEnergyLevel: &medium, DominantMood: domain.TonePositive})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(got.TopActivities) != 2 || got.TopActivities[0] != "Emails" || got.TopActivities[1] != "Ran" {
		t.Fatalf("ожидали [Emails Ran], получили %v", got.TopActivities)
	}
	if !strings.Contains(got.Text, "2 days") || !strings.Contains(got.Text, "Rest matters.") {
		t.Fatalf("неожиданный текст: %q", got.Text)
	}
}
