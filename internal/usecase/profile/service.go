package profile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"voice-journal/internal/domain"
)

// ErrInvalidTimezone возвращается, если указан некорректный часовой пояс.
var ErrInvalidTimezone = fmt.Errorf("%w: invalid timezone", domain.ErrInvalidInput)

// Update изменения профиля; nil поля не трогаются.
type Update struct {
	Timezone            *string `json:"timezone,omitempty"`
	NotificationEnabled *bool   `json:"notification_enabled,omitempty"`
}

// Service отвечает за настройки пользователя.
type Service struct {
	profiles domain.ProfileRepo
	fallback *time.Location
	now      func() time.Time
}

// NewService создаёт сервис. fallback используется, если у профиля нет часового пояса.
func NewService(profiles domain.ProfileRepo, fallback *time.Location) *Service {
	if fallback == nil {
		fallback = time.UTC
	}
	return &Service{profiles: profiles, fallback: fallback, now: time.Now}
}

// Get возвращает профиль, создавая его при первом обращении.
func (s *Service) Get(ctx context.Context, userID string) (domain.Profile, error) {
	p, err := s.profiles.EnsureProfile(ctx, userID)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("получение профиля: %w", err)
	}
	return p, nil
}

// Update сохраняет часовой пояс и флаг уведомлений.
func (s *Service) Update(ctx context.Context, userID string, upd Update) (domain.Profile, error) {
	current, err := s.Get(ctx, userID)
	if err != nil {
		return domain.Profile{}, err
	}
	if upd.Timezone != nil {
		normalized, err := normalizeTimezone(*upd.Timezone)
		if err != nil {
			return domain.Profile{}, err
		}
		current.Timezone = normalized
	}
	if upd.NotificationEnabled != nil {
		current.NotificationEnabled = *upd.NotificationEnabled
	}
	saved, err := s.profiles.UpdateProfile(ctx, current)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("обновление профиля: %w", err)
	}
	return saved, nil
}

// Today возвращает сегодняшнюю дату в часовом поясе пользователя.
func (s *Service) Today(ctx context.Context, userID string) (time.Time, error) {
	p, err := s.Get(ctx, userID)
	if err != nil {
		return time.Time{}, err
	}
	now := s.now().In(p.Location(s.fallback))
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
}

func normalizeTimezone(raw string) (string, error) {
	candidate := strings.TrimSpace(raw)
	if candidate == "" {
		return "", ErrInvalidTimezone
	}
	candidate = strings.ReplaceAll(candidate, " ", "_")
	if _, err := time.LoadLocation(candidate); err == nil {
		return candidate, nil
	}

	lower := strings.ToLower(candidate)
	parts := strings.Split(lower, "/")
	for i, part := range parts {
		segments := strings.Split(part, "_")
		for j, segment := range segments {
			pieces := strings.Split(segment, "-")
			for k, piece := range pieces {
				if piece == "" {
					continue
				}
				pieces[k] = strings.ToUpper(piece[:1]) + piece[1:]
			}
			segments[j] = strings.Join(pieces, "-")
		}
		parts[i] = strings.Join(segments, "_")
	}
	normalized := strings.Join(parts, "/")
	if _, err := time.LoadLocation(normalized); err == nil {
		return normalized, nil
	}
	return "", ErrInvalidTimezone
}
