package profile

import (
	"context"
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"voice-journal/internal/domain"
)

type profileRepoStub struct {
	profiles map[string]domain.Profile
}

func (r *profileRepoStub) EnsureProfile(_ context.Context, userID string) (domain.Profile, error) {
	if p, ok := r.profiles[userID]; ok {
		return p, nil
	}
	p := domain.Profile{UserID: userID, NotificationEnabled: true}
	r.profiles[userID] = p
	return p, nil
}

func (r *profileRepoStub) UpdateProfile(_ context.Context, p domain.Profile) (domain.Profile, error) {
	r.profiles[p.UserID] = p
	return p, nil
}

func (r *profileRepoStub) ListWeeklyRecipients(context.Context, string, string) ([]domain.Profile, error) {
	return nil, nil
}

func TestNormalizeTimezone(t *testing.T) {
	got, err := normalizeTimezone("europe/moscow")
	if err != nil || got != "Europe/Moscow" {
		t.Fatalf("ожидали Europe/Moscow, получили %q (%v)", got, err)
	}
	got, err = normalizeTimezone("america/new york")
	if err != nil || got != "America/New_York" {
		t.Fatalf("ожидали America/New_York, получили %q (%v)", got, err)
	}
	if _, err := normalizeTimezone("Mars/Olympus"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("ожидали ErrInvalidInput, получили %v", err)
	}
}

func TestUpdateKeepsUnsetFields(t *testing.T) {
	repo := &profileRepoStub{profiles: map[string]domain.Profile{}}
	svc := NewService(repo, time.UTC)
	tz := "asia/tokyo"
	p, err := svc.Update(context.Background(), "u1", Update{Timezone: &tz})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if p.Timezone != "Asia/Tokyo" || !p.NotificationEnabled {
		t.Fatalf("неожиданный профиль: %+v", p)
	}
}

func TestTodayUsesProfileTimezone(t *testing.T) {
	repo := &profileRepoStub{profiles: map[string]domain.Profile{"u1": {UserID: "u1", Timezone: "Asia/Tokyo"}}}
	svc := NewService(repo, time.UTC)
	svc.now = func() time.Time { return time.Date(2024, 3, 5, 20, 0, 0, 0, time.UTC) }
	today, err := svc.Today(context.Background(), "u1")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if today.Format(domain.DateLayout) != "2024-03-06" {
		t.Fatalf("в Токио уже 6 марта, получили %s", today.Format(domain.DateLayout))
	}
}
