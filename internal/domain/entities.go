package domain

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout формат календарной даты записи (YYYY-MM-DD).
const DateLayout = "2006-01-02"

// EnergyLevel уровень энергии за день.
type EnergyLevel string

const (
	EnergyLow     EnergyLevel = "low"
	EnergyMedium  EnergyLevel = "medium"
	EnergyHigh    EnergyLevel = "high"
	EnergyUnclear EnergyLevel = "unclear"
)

// ParseEnergyLevel приводит произвольную строку к допустимому уровню, неизвестные значения дают unclear.
func ParseEnergyLevel(raw string) EnergyLevel {
	switch level := EnergyLevel(strings.ToLower(strings.TrimSpace(raw))); level {
	case EnergyLow, EnergyMedium, EnergyHigh:
		return level
	default:
		return EnergyUnclear
	}
}

// Score возвращает числовой вес уровня (low=1, medium=2, high=3) и false для unclear.
func (l EnergyLevel) Score() (int, bool) {
	switch l {
	case EnergyLow:
		return 1, true
	case EnergyMedium:
		return 2, true
	case EnergyHigh:
		return 3, true
	default:
		return 0, false
	}
}

// EmotionalTone эмоциональный тон записи.
type EmotionalTone string

const (
	ToneNeutral  EmotionalTone = "neutral"
	ToneHeavy    EmotionalTone = "heavy"
	TonePositive EmotionalTone = "positive"
	ToneMixed    EmotionalTone = "mixed"
)

// ParseEmotionalTone приводит строку к допустимому тону, неизвестные значения дают neutral.
func ParseEmotionalTone(raw string) EmotionalTone {
	switch tone := EmotionalTone(strings.ToLower(strings.TrimSpace(raw))); tone {
	case ToneHeavy, TonePositive, ToneMixed:
		return tone
	default:
		return ToneNeutral
	}
}

// MaxActivities ограничение на количество пунктов what_was_done.
const MaxActivities = 6

// Summary структурированное резюме дня.
type Summary struct {
	DaySummary    string        `json:"day_summary"`
	WhatWasDone   []string      `json:"what_was_done"`
	EnergyLevel   EnergyLevel   `json:"energy_level"`
	EmotionalTone EmotionalTone `json:"emotional_tone"`
	Reflection    string        `json:"reflection"`
}

// Normalize чистит пункты и приводит перечисления к допустимым значениям.
func (s Summary) Normalize() Summary {
	activities := make([]string, 0, len(s.WhatWasDone))
	for _, item := range s.WhatWasDone {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		activities = append(activities, item)
		if len(activities) == MaxActivities {
			break
		}
	}
	return Summary{
		DaySummary:    strings.TrimSpace(s.DaySummary),
		WhatWasDone:   activities,
		EnergyLevel:   ParseEnergyLevel(string(s.EnergyLevel)),
		EmotionalTone: ParseEmotionalTone(string(s.EmotionalTone)),
		Reflection:    strings.TrimSpace(s.Reflection),
	}
}

// JournalEntry запись дневника за календарный день.
type JournalEntry struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Date          string    `json:"journal_date"`
	RawTranscript string    `json:"raw_transcript"`
	Summary       *Summary  `json:"summary"`
	IsSummarized  bool      `json:"is_summarized"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Ready сообщает, что резюме готово к показу.
func (e JournalEntry) Ready() bool {
	return e.IsSummarized && e.Summary != nil
}

// EntryStatus состояние резюме записи при опросе.
type EntryStatus struct {
	Summary      *Summary `json:"summary"`
	IsSummarized bool     `json:"is_summarized"`
}

// Ready сообщает, что резюме готово.
func (s EntryStatus) Ready() bool {
	return s.IsSummarized && s.Summary != nil && s.Summary.DaySummary != ""
}

// CreateResult ответ на создание записи: id и, если бэкенд посчитал сразу, готовое резюме.
type CreateResult struct {
	EntryID string   `json:"entry_id"`
	Summary *Summary `json:"summary,omitempty"`
}

// DatedSummary резюме вместе с датой записи.
type DatedSummary struct {
	Date    string  `json:"date"`
	Summary Summary `json:"summary"`
}

// WeeklyStats статистика недели.
type WeeklyStats struct {
	DaysJournaled  int           `json:"days_journaled"`
	AvgEnergyLevel *EnergyLevel  `json:"avg_energy_level"`
	DominantMood   EmotionalTone `json:"dominant_mood"`
	TopActivities  []string      `json:"top_activities"`
	KeyAchievement string        `json:"key_achievement"`
}

// WeeklySummary сохранённый недельный обзор.
type WeeklySummary struct {
	UserID        string      `json:"user_id"`
	WeekStartDate string      `json:"week_start_date"`
	WeekEndDate   string      `json:"week_end_date"`
	SummaryText   string      `json:"summary_text"`
	AudioPath     string      `json:"tts_audio_path"`
	Stats         WeeklyStats `json:"stats"`
	CreatedAt     time.Time   `json:"created_at"`
}

// GenerationStatus статус ответа функций генерации.
type GenerationStatus string

const (
	StatusSuccess GenerationStatus = "success"
	StatusEmpty   GenerationStatus = "empty"
	StatusError   GenerationStatus = "error"
)

// WeeklyResult ответ генерации недельного обзора.
type WeeklyResult struct {
	Status        GenerationStatus `json:"status"`
	SummaryText   string           `json:"summary_text,omitempty"`
	AudioPath     string           `json:"audio_path,omitempty"`
	WeekStartDate string           `json:"week_start_date,omitempty"`
	WeekEndDate   string           `json:"week_end_date,omitempty"`
	Stats         *WeeklyStats     `json:"stats,omitempty"`
	DaysIncluded  int              `json:"days_included,omitempty"`
	Message       string           `json:"message,omitempty"`
	Error         string           `json:"error,omitempty"`
}

// WeeklyReflection текст и качественная часть статистики от нарратора.
type WeeklyReflection struct {
	Text           string
	TopActivities  []string
	KeyAchievement string
}

// DailyNarration озвученный пересказ дня.
type DailyNarration struct {
	UserID      string    `json:"user_id"`
	Date        string    `json:"date"`
	SummaryText string    `json:"summary_text"`
	AudioPath   string    `json:"tts_audio_path"`
	CreatedAt   time.Time `json:"created_at"`
}

// NarrationResult ответ генерации дневной озвучки.
type NarrationResult struct {
	Status      GenerationStatus `json:"status"`
	SummaryText string           `json:"summary_text,omitempty"`
	AudioPath   string           `json:"audio_path,omitempty"`
	Date        string           `json:"date,omitempty"`
	Message     string           `json:"message,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// Profile настройки пользователя.
type Profile struct {
	UserID              string    `json:"id"`
	Timezone            string    `json:"timezone"`
	NotificationEnabled bool      `json:"notification_enabled"`
	CreatedAt           time.Time `json:"created_at"`
}

// Location возвращает часовой пояс профиля или fallback.
func (p Profile) Location(fallback *time.Location) *time.Location {
	if p.Timezone != "" {
		if loc, err := time.LoadLocation(p.Timezone); err == nil {
			return loc
		}
	}
	if fallback == nil {
		return time.UTC
	}
	return fallback
}

// ParseDate проверяет и разбирает дату YYYY-MM-DD.
func ParseDate(raw string) (time.Time, error) {
	date, err := time.Parse(DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: дата %q не в формате YYYY-MM-DD", ErrInvalidInput, raw)
	}
	return date, nil
}
