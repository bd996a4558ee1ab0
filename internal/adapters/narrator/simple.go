package narrator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"voice-journal/internal/domain"
)

// SimpleNarrator собирает тексты по шаблону, без LLM.
type SimpleNarrator struct {
	topN int
}

var _ domain.Narrator = (*SimpleNarrator)(nil)

// NewSimple создаёт шаблонного нарратора.
func NewSimple(topN int) *SimpleNarrator {
	if topN <= 0 {
		topN = 3
	}
	return &SimpleNarrator{topN: topN}
}

// ReflectWeek строит обзор из резюме дней и частоты занятий.
func (n *SimpleNarrator) ReflectWeek(_ context.Context, days []domain.DatedSummary, stats domain.WeeklyStats) (domain.WeeklyReflection, error) {
	if len(days) == 0 {
		return domain.WeeklyReflection{}, fmt.Errorf("%w: нет дней для обзора", domain.ErrInvalidInput)
	}
	top := topActivities(days, n.topN)

	var b strings.Builder
	plural := "s"
	if stats.DaysJournaled == 1 {
		plural = ""
	}
	fmt.Fprintf(&b, "You journaled on %d day%s this week.", stats.DaysJournaled, plural)
	if stats.AvgEnergyLevel != nil {
		fmt.Fprintf(&b, " Your energy was mostly %s", *stats.AvgEnergyLevel)
		if stats.DominantMood != "" {
			fmt.Fprintf(&b, " and the mood felt %s", stats.DominantMood)
		}
		b.WriteString(".")
	}
	if len(top) > 0 {
		fmt.Fprintf(&b, " You spent time on %s.", strings.Join(top, ", "))
	}
	last := days[len(days)-1].Summary
	if last.Reflection != "" {
		fmt.Fprintf(&b, " You closed the week with this thought: %s", last.Reflection)
	}

	achievement := ""
	if len(top) > 0 {
		achievement = top[0]
	}
	return domain.WeeklyReflection{Text: b.String(), TopActivities: top, KeyAchievement: achievement}, nil
}

// NarrateDay возвращает транскрипт с короткой вводной.
func (n *SimpleNarrator) NarrateDay(_ context.Context, date, transcript string) (string, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return "", fmt.Errorf("%w: пустой транскрипт", domain.ErrInvalidInput)
	}
	return fmt.Sprintf("Here is your journal for %s. %s", date, transcript), nil
}

// topActivities считает повторы пунктов без учёта регистра; при равенстве раньше встреченный выше.
func topActivities(days []domain.DatedSummary, limit int) []string {
	type counted struct {
		label string
		count int
		first int
	}
	index := make(map[string]*counted)
	var order []*counted
	for _, day := range days {
		for _, item := range day.Summary.WhatWasDone {
			key := strings.ToLower(strings.TrimSpace(item))
			if key == "" {
				continue
			}
			if c, ok := index[key]; ok {
				c.count++
				continue
			}
			c := &counted{label: strings.TrimSpace(item), count: 1, first: len(order)}
			index[key] = c
			order = append(order, c)
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		if order[i].count != order[j].count {
			return order[i].count > order[j].count
		}
		return order[i].first < order[j].first
	})
	out := make([]string, 0, limit)
	for _, c := range order {
		if len(out) == limit {
			break
		}
		out = append(out, c.label)
	}
	return out
}
