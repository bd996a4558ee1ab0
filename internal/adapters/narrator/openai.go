package narrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"voice-journal/internal/domain"
	openai "voice-journal/internal/infra/openai"
)

type chatCompletionClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// LLMNarrator пишет тексты для озвучки через OpenAI Chat Completions.
type LLMNarrator struct {
	client  chatCompletionClient
	model   string
	timeout time.Duration
}

var _ domain.Narrator = (*LLMNarrator)(nil)

// NewLLM создаёт нарратора.
func NewLLM(client chatCompletionClient, model string, timeout time.Duration) *LLMNarrator {
	if model == "" {
		model = "gpt-4o-mini"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &LLMNarrator{client: client, model: model, timeout: timeout}
}

const weeklySystemPrompt = `You are a warm, insightful personal assistant creating a spoken weekly reflection.
Speak to the user as "you", like a thoughtful friend reviewing the week together.
Notice patterns, celebrate wins, acknowledge challenges with empathy.
No markdown or bullet points: the text is read aloud by text-to-speech, 200-350 words.`

const weeklyUserPrompt = `Journal entries from the past week:

%s

Computed stats: %d days journaled, average energy %s, dominant mood %s.

Reply with JSON only:
{"reflection_text": "the spoken reflection", "top_activities": ["most mentioned activities, at most 5"], "key_achievement": "one notable accomplishment"}`

type weeklyPayload struct {
	ReflectionText string   `json:"reflection_text"`
	TopActivities  []string `json:"top_activities"`
	KeyAchievement string   `json:"key_achievement"`
	Stats          *struct {
		TopActivities  []string `json:"top_activities"`
		KeyAchievement string   `json:"key_achievement"`
	} `json:"stats,omitempty"`
}

// ReflectWeek пишет недельную рефлексию и качественную часть статистики.
func (n *LLMNarrator) ReflectWeek(ctx context.Context, days []domain.DatedSummary, stats domain.WeeklyStats) (domain.WeeklyReflection, error) {
	if len(days) == 0 {
		return domain.WeeklyReflection{}, fmt.Errorf("%w: нет дней для обзора", domain.ErrInvalidInput)
	}
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	avg := "unclear"
	if stats.AvgEnergyLevel != nil {
		avg = string(*stats.AvgEnergyLevel)
	}
	req := openai.ChatCompletionRequest{
		Model:       n.model,
		Temperature: 0.8,
		MaxTokens:   800,
		Messages: []openai.ChatMessage{
			{Role: openai.RoleSystem, Content: weeklySystemPrompt},
			{Role: openai.RoleUser, Content: fmt.Sprintf(weeklyUserPrompt, formatWeek(days), stats.DaysJournaled, avg, stats.DominantMood)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ResponseFormatTypeJSONObject},
	}
	resp, err := n.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return domain.WeeklyReflection{}, fmt.Errorf("openai completion: %w", err)
	}
	content, err := resp.Content()
	if err != nil {
		return domain.WeeklyReflection{}, fmt.Errorf("openai completion: %w", err)
	}
	var payload weeklyPayload
	if err := openai.DecodeJSON(content, &payload); err != nil {
		return domain.WeeklyReflection{}, fmt.Errorf("распаковка ответа LLM: %w", err)
	}
	text := strings.TrimSpace(payload.ReflectionText)
	if text == "" {
		return domain.WeeklyReflection{}, errors.New("распаковка ответа LLM: пустой reflection_text")
	}
	top, achievement := payload.TopActivities, payload.KeyAchievement
	if payload.Stats != nil {
		if len(top) == 0 {
			top = payload.Stats.TopActivities
		}
		if achievement == "" {
			achievement = payload.Stats.KeyAchievement
		}
	}
	return domain.WeeklyReflection{
		Text:           text,
		TopActivities:  filterValues(top, 5),
		KeyAchievement: strings.TrimSpace(achievement),
	}, nil
}

const dailySystemPrompt = `You are a gentle narrator reading a person's day back to them.
Speak as "you", in flowing sentences without markdown, 80-150 words, calm and warm.`

// NarrateDay пересказывает транскрипт дня для озвучки.
func (n *LLMNarrator) NarrateDay(ctx context.Context, date, transcript string) (string, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return "", fmt.Errorf("%w: пустой транскрипт", domain.ErrInvalidInput)
	}
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	req := openai.ChatCompletionRequest{
		Model:       n.model,
		Temperature: 0.7,
		MaxTokens:   500,
		Messages: []openai.ChatMessage{
			{Role: openai.RoleSystem, Content: dailySystemPrompt},
			{Role: openai.RoleUser, Content: fmt.Sprintf("Journal for %s:\n\n%s", date, transcript)},
		},
	}
	resp, err := n.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	return resp.Content()
}

func formatWeek(days []domain.DatedSummary) string {
	var b strings.Builder
	for i, day := range days {
		if i > 0 {
			b.WriteString("\n\n")
		}
		weekday := ""
		if d, err := time.Parse(domain.DateLayout, day.Date); err == nil {
			weekday = d.Weekday().String() + " "
		}
		fmt.Fprintf(&b, "%s(%s)\nSummary: %s\nActivities: %s\nEnergy: %s\nMood: %s\nReflection: %s",
			weekday, day.Date,
			day.Summary.DaySummary,
			strings.Join(day.Summary.WhatWasDone, ", "),
			day.Summary.EnergyLevel,
			day.Summary.EmotionalTone,
			day.Summary.Reflection,
		)
	}
	return b.String()
}

func filterValues(values []string, limit int) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
