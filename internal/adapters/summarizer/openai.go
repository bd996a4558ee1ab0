package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"voice-journal/internal/domain"
	openai "voice-journal/internal/infra/openai"
)

type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAI реализует summarizer через OpenAI Chat Completions.
type OpenAI struct {
	client  chatClient
	model   string
	timeout time.Duration
}

var _ domain.Summarizer = (*OpenAI)(nil)

// NewOpenAI создаёт провайдер суммаризации.
func NewOpenAI(client chatClient, model string, timeout time.Duration) *OpenAI {
	if model == "" {
		model = "gpt-4o-mini"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenAI{client: client, model: model, timeout: timeout}
}

const systemPrompt = `You are a reflective journal summarizer.
You do not give advice, judge, motivate or analyze psychology.
Turn a daily spoken reflection into a calm, factual journal page.`

const userPromptTemplate = `Transform the following daily reflection into a structured journal entry.
Keep the tone neutral and calm, do not invent details, focus on what was done at a high level.
Reply with JSON only:
{"day_summary": "2-3 sentences", "what_was_done": ["3-6 short items"], "energy_level": "low|medium|high|unclear", "emotional_tone": "neutral|heavy|positive|mixed", "reflection": "1-2 calm sentences"}

INPUT:
"""
%s
"""`

// Summarize строит структурированное резюме дня.
func (s *OpenAI) Summarize(ctx context.Context, transcript string) (domain.Summary, error) {
	text := strings.TrimSpace(transcript)
	if text == "" {
		return domain.Summary{}, fmt.Errorf("%w: пустой транскрипт", domain.ErrInvalidInput)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:       s.model,
		Temperature: 0.2,
		MaxTokens:   300,
		Messages: []openai.ChatMessage{
			{Role: openai.RoleSystem, Content: systemPrompt},
			{Role: openai.RoleUser, Content: fmt.Sprintf(userPromptTemplate, clipRunes(text, 12000))},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ResponseFormatTypeJSONObject},
	}

	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return domain.Summary{}, fmt.Errorf("openai completion: %w", err)
	}
	content, err := resp.Content()
	if err != nil {
		return domain.Summary{}, fmt.Errorf("openai completion: %w", err)
	}
	var parsed domain.Summary
	if err := openai.DecodeJSON(content, &parsed); err != nil {
		return domain.Summary{}, fmt.Errorf("распаковка ответа LLM: %w", err)
	}
	summary := parsed.Normalize()
	if summary.DaySummary == "" {
		return domain.Summary{}, errors.New("распаковка ответа LLM: пустой day_summary")
	}
	return summary, nil
}

func clipRunes(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
