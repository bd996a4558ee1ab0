package summarizer

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"voice-journal/internal/domain"
)

// SimpleSummarizer реализует доменный интерфейс Summarizer эвристикой, без LLM.
type SimpleSummarizer struct{}

var _ domain.Summarizer = (*SimpleSummarizer)(nil)

// NewSimple создаёт Summarizer.
func NewSimple() *SimpleSummarizer {
	return &SimpleSummarizer{}
}

var (
	highWords  = []string{"energized", "productive", "great", "excited", "ran", "workout", "gym"}
	lowWords   = []string{"tired", "exhausted", "sleepy", "drained", "sick"}
	heavyWords = []string{"sad", "stressed", "anxious", "angry", "worried", "lonely"}
	goodWords  = []string{"happy", "grateful", "fun", "proud", "calm", "enjoyed", "love"}
)

// Summarize берёт первые предложения как резюме, остальные как пункты,
// а энергию и тон угадывает по словарю.
func (s *SimpleSummarizer) Summarize(_ context.Context, transcript string) (domain.Summary, error) {
	text := strings.TrimSpace(transcript)
	if text == "" {
		return domain.Summary{}, fmt.Errorf("%w: пустой транскрипт", domain.ErrInvalidInput)
	}
	sentences := splitSentences(text)
	daySummary := strings.Join(sentences[:min(len(sentences), 2)], " ")

	var activities []string
	for _, sentence := range sentences {
		activities = append(activities, truncate(strings.TrimRight(sentence, ".!?"), 80))
		if len(activities) == domain.MaxActivities {
			break
		}
	}

	lower := strings.ToLower(text)
	energy := domain.EnergyUnclear
	switch {
	case containsAny(lower, highWords):
		energy = domain.EnergyHigh
	case containsAny(lower, lowWords):
		energy = domain.EnergyLow
	}
	heavy, good := containsAny(lower, heavyWords), containsAny(lower, goodWords)
	tone := domain.ToneNeutral
	switch {
	case heavy && good:
		tone = domain.ToneMixed
	case heavy:
		tone = domain.ToneHeavy
	case good:
		tone = domain.TonePositive
	}

	return domain.Summary{
		DaySummary:    truncate(daySummary, 280),
		WhatWasDone:   activities,
		EnergyLevel:   energy,
		EmotionalTone: tone,
		Reflection:    "A day worth remembering, in its own way.",
	}.Normalize(), nil
}

func splitSentences(text string) []string {
	var out []string
	var current strings.Builder
	for _, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if s := strings.TrimSpace(current.String()); s != "" {
				out = append(out, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		out = append(out, s)
	}
	return out
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + "…"
}
