package main

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"voice-journal/internal/domain"
	"voice-journal/internal/infra/cache"
)

type recipientsStub struct {
	from, to string
}

func (r *recipientsStub) EnsureProfile(context.Context, string) (domain.Profile, error) {
	return domain.Profile{}, nil
}

func (r *recipientsStub) UpdateProfile(_ context.Context, p domain.Profile) (domain.Profile, error) {
	return p, nil
}

func (r *recipientsStub) ListWeeklyRecipients(_ context.Context, from, to string) ([]domain.Profile, error) {
	r.from, r.to = from, to
	return []domain.Profile{{UserID: "u1"}, {UserID: "u2"}}, nil
}

type generatorStub struct {
	calls []string
}

func (g *generatorStub) GenerateWeekly(_ context.Context, userID, endDate string) (domain.WeeklyResult, error) {
	g.calls = append(g.calls, userID+"|"+endDate)
	return domain.WeeklyResult{Status: domain.StatusSuccess}, nil
}

func TestTickOncePerWeek(t *testing.T) {
	profiles := &recipientsStub{}
	gen := &generatorStub{}
	s := &weeklyScheduler{
		log:       zerolog.Nop(),
		profiles:  profiles,
		generator: gen,
		cache:     cache.NewMemory(),
		weekday:   time.Sunday,
		hour:      18,
	}

	sunday := time.Date(2024, 3, 10, 18, 5, 0, 0, time.UTC)
	s.Tick(context.Background(), sunday)
	s.Tick(context.Background(), sunday.Add(time.Minute))

	if len(gen.calls) != 2 || gen.calls[0] != "u1|2024-03-10" {
		t.Fatalf("ожидали по одному обзору на пользователя: %v", gen.calls)
	}
	if profiles.from != "2024-03-04" || profiles.to != "2024-03-10" {
		t.Fatalf("неожиданное окно: %s..%s", profiles.from, profiles.to)
	}

	s.Tick(context.Background(), sunday.Add(-time.Hour))
	if len(gen.calls) != 2 {
		t.Fatalf("вне часа рассылки ничего не строится")
	}
}
