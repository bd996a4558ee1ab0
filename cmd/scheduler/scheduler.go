package main

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"voice-journal/internal/domain"
)

const weeklyLockTTL = 8 * 24 * time.Hour

type weeklyGenerator interface {
	GenerateWeekly(ctx context.Context, userID, endDate string) (domain.WeeklyResult, error)
}

type weeklyScheduler struct {
	log       zerolog.Logger
	profiles  domain.ProfileRepo
	generator weeklyGenerator
	cache     domain.Cache
	weekday   time.Weekday
	hour      int
}

// due сообщает, что наступил час рассылки.
func (s *weeklyScheduler) due(now time.Time) bool {
	now = now.UTC()
	return now.Weekday() == s.weekday && now.Hour() == s.hour
}

// Tick строит недельные обзоры, если пришло время. Каждому пользователю обзор строится раз в неделю.
func (s *weeklyScheduler) Tick(ctx context.Context, now time.Time) {
	if !s.due(now) {
		return
	}
	now = now.UTC()
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	endDate := end.Format(domain.DateLayout)
	weekStart := end.AddDate(0, 0, -6).Format(domain.DateLayout)

	recipients, err := s.profiles.ListWeeklyRecipients(ctx, weekStart, endDate)
	if err != nil {
		s.log.Error().Err(err).Msg("scheduler: ошибка выборки пользователей")
		return
	}
	for _, p := range recipients {
		userLog := s.log.With().Str("user_id", p.UserID).Str("week_start", weekStart).Logger()
		err := s.cache.Once(ctx, "weekly:"+p.UserID+":"+weekStart, weeklyLockTTL, func() error {
			res, err := s.generator.GenerateWeekly(ctx, p.UserID, endDate)
			if err != nil {
				return err
			}
			userLog.Info().Str("status", string(res.Status)).Int("days", res.DaysIncluded).Msg("scheduler: недельный обзор построен")
			return nil
		})
		if err != nil {
			userLog.Error().Err(err).Msg("scheduler: не удалось построить недельный обзор")
		}
	}
}
