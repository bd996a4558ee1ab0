package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"

	"voice-journal/internal/domain"
	"voice-journal/internal/infra/localcache"
)

type backendStub struct {
	mu          sync.Mutex
	created     int
	createErr   error
	createRes   domain.CreateResult
	polls       int
	readyAt     int
	pollErrAt   map[int]error
	credits     int
	creditCalls int
	byDate      map[string]domain.JournalEntry
	onPoll      func(n int)
}

func (b *backendStub) CreateJournalEntry(context.Context, string, string) (domain.CreateResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.created++
	return b.createRes, b.createErr
}

func (b *backendStub) GetJournalEntry(context.Context, string) (domain.EntryStatus, error) {
	b.mu.Lock()
	b.polls++
	n, hook := b.polls, b.onPoll
	b.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	if err := b.pollErrAt[n]; err != nil {
		return domain.EntryStatus{}, err
	}
	if b.readyAt > 0 && n >= b.readyAt {
		return domain.EntryStatus{IsSummarized: true, Summary: &domain.Summary{DaySummary: "ready", EnergyLevel: domain.EnergyHigh}}, nil
	}
	return domain.EntryStatus{}, nil
}

func (b *backendStub) GetJournalByDate(_ context.Context, date string) (domain.JournalEntry, error) {
	entry, ok := b.byDate[date]
	if !ok {
		return domain.JournalEntry{}, domain.ErrNotFound
	}
	return entry, nil
}

func (b *backendStub) GetCredits(context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.creditCalls++
	return b.credits, nil
}

func (b *backendStub) GenerateWeeklySummary(context.Context, string) domain.WeeklyResult {
	return domain.WeeklyResult{Status: domain.StatusEmpty}
}

// fakeTimer срабатывает сразу и запоминает запрошенные паузы.
type fakeTimer struct {
	mu    sync.Mutex
	waits []time.Duration
	c     chan time.Time
}

func newFakeTimer() *fakeTimer { return &fakeTimer{c: make(chan time.Time, 1)} }

func (f *fakeTimer) Start(d time.Duration) {
	f.mu.Lock()
	f.waits = append(f.waits, d)
	f.mu.Unlock()
	f.c <- time.Now()
}
func (f *fakeTimer) Stop()                  {}
func (f *fakeTimer) C() <-chan time.Time    { return f.c }
func (f *fakeTimer) count() int             { f.mu.Lock(); defer f.mu.Unlock(); return len(f.waits) }
func (f *fakeTimer) at(i int) time.Duration { f.mu.Lock(); defer f.mu.Unlock(); return f.waits[i] }

func newService(b *backendStub, timer *fakeTimer) (*Service, *localcache.JournalCache) {
	cache := localcache.New(&localcache.MemoryStore{})
	svc := NewService(b, cache, WithTimer(func() backoff.Timer { return timer }))
	return svc, cache
}

func TestCreateResolvesOnAttemptK(t *testing.T) {
	b := &backendStub{createRes: domain.CreateResult{EntryID: "e1"}, readyAt: 4, credits: 2}
	timer := newFakeTimer()
	svc, cache := newService(b, timer)

	res, err := svc.CreateJournal(context.Background(), "text", "2024-03-05")
	svc.Wait()
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if res.Outcome != OutcomeResolved || res.Attempts != 4 || res.Summary.DaySummary != "ready" {
		t.Fatalf("неожиданный результат: %+v", res)
	}
	if b.polls != 4 || timer.count() != 3 {
		t.Fatalf("после успеха опросов больше нет: polls=%d waits=%d", b.polls, timer.count())
	}
	if got, ok := cache.Get(context.Background(), "2024-03-05"); !ok || got.DaySummary != "ready" {
		t.Fatalf("резюме должно попасть в кэш")
	}
	st := svc.State()
	if st.Current == nil || st.Current.DaySummary != "ready" || st.Creating {
		t.Fatalf("неожиданное состояние: %+v", st)
	}
	if st.Credits == nil || *st.Credits != 2 || b.creditCalls != 1 {
		t.Fatalf("кредиты обновляются после попытки: %+v", st.Credits)
	}
}

func TestCreateTimesOutAfterTenAttempts(t *testing.T) {
	b := &backendStub{createRes: domain.CreateResult{EntryID: "e1"}, pollErrAt: map[int]error{3: errors.New("flaky")}}
	timer := newFakeTimer()
	svc, cache := newService(b, timer)

	res, err := svc.CreateJournal(context.Background(), "text", "2024-03-05")
	svc.Wait()
	if err != nil {
		t.Fatalf("таймаут не ошибка: %v", err)
	}
	if res.Outcome != OutcomeTimedOut || res.Summary.DaySummary != PlaceholderSummary().DaySummary {
		t.Fatalf("ожидали заглушку, получили %+v", res)
	}
	if b.polls != 10 {
		t.Fatalf("ожидали ровно 10 опросов, получили %d", b.polls)
	}
	if timer.count() != 9 {
		t.Fatalf("ожидали 9 пауз между опросами, получили %d", timer.count())
	}
	for i := 0; i < timer.count(); i++ {
		if timer.at(i) != time.Second {
			t.Fatalf("пауза %d: ожидали 1s, получили %s", i, timer.at(i))
		}
	}
	if _, ok := cache.Get(context.Background(), "2024-03-05"); ok {
		t.Fatalf("заглушка не пишется в кэш")
	}
	if b.creditCalls != 1 {
		t.Fatalf("кредиты обновляются и при таймауте")
	}
}

func TestCreateUsesInlineSummary(t *testing.T) {
	b := &backendStub{createRes: domain.CreateResult{EntryID: "e1", Summary: &domain.Summary{DaySummary: "now", EnergyLevel: "wild"}}}
	svc, _ := newService(b, newFakeTimer())
	res, err := svc.CreateJournal(context.Background(), "text", "2024-03-05")
	svc.Wait()
	if err != nil || res.Outcome != OutcomeResolved || b.polls != 0 {
		t.Fatalf("синхронное резюме без опроса: %+v %v polls=%d", res, err, b.polls)
	}
	if res.Summary.EnergyLevel != domain.EnergyUnclear {
		t.Fatalf("резюме нормализуется: %s", res.Summary.EnergyLevel)
	}
}

func TestCreateWithoutCreditsIsNotSent(t *testing.T) {
	b := &backendStub{credits: 0}
	svc, _ := newService(b, newFakeTimer())
	if _, err := svc.RefreshCredits(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	_, err := svc.CreateJournal(context.Background(), "text", "2024-03-05")
	if !errors.Is(err, ErrNoCredits) {
		t.Fatalf("ожидали ErrNoCredits, получили %v", err)
	}
	if b.created != 0 {
		t.Fatalf("запрос не должен отправляться")
	}
	if svc.State().Error != NoCreditsMessage {
		t.Fatalf("пользователь видит сообщение о кредитах: %q", svc.State().Error)
	}
}

func TestCreateFailureRefreshesCredits(t *testing.T) {
	b := &backendStub{createErr: domain.ErrInsufficientCredits}
	svc, _ := newService(b, newFakeTimer())
	res, err := svc.CreateJournal(context.Background(), "text", "2024-03-05")
	svc.Wait()
	if !errors.Is(err, domain.ErrInsufficientCredits) || res.Outcome != OutcomeFailed {
		t.Fatalf("ожидали отказ, получили %+v %v", res, err)
	}
	if b.polls != 0 || b.creditCalls != 1 {
		t.Fatalf("без повторов, но с обновлением кредитов: polls=%d credits=%d", b.polls, b.creditCalls)
	}
}

func TestDetachStopsPolling(t *testing.T) {
	b := &backendStub{createRes: domain.CreateResult{EntryID: "e1"}}
	svc, _ := newService(b, newFakeTimer())
	b.onPoll = func(n int) {
		if n == 2 {
			svc.Detach()
		}
	}
	_, err := svc.CreateJournal(context.Background(), "text", "2024-03-05")
	svc.Wait()
	if err == nil {
		t.Fatalf("ожидали ошибку отмены")
	}
	if b.polls > 3 {
		t.Fatalf("после Detach опрос прекращается, опросов %d", b.polls)
	}
	if st := svc.State(); st.Current != nil || st.Creating {
		t.Fatalf("устаревшая операция не меняет состояние: %+v", st)
	}
}

func TestFetchJournalReadThrough(t *testing.T) {
	b := &backendStub{byDate: map[string]domain.JournalEntry{
		"2024-03-05": {ID: "e1", IsSummarized: true, Summary: &domain.Summary{DaySummary: "from api"}},
	}}
	svc, cache := newService(b, newFakeTimer())

	got, err := svc.FetchJournal(context.Background(), "2024-03-05")
	if err != nil || got == nil || got.DaySummary != "from api" {
		t.Fatalf("ожидали резюме из API: %+v %v", got, err)
	}
	if _, ok := cache.Get(context.Background(), "2024-03-05"); !ok {
		t.Fatalf("результат пишется в кэш")
	}

	delete(b.byDate, "2024-03-05")
	if got, _ := svc.FetchJournal(context.Background(), "2024-03-05"); got == nil {
		t.Fatalf("повторное чтение из кэша")
	}

	got, err = svc.FetchJournal(context.Background(), "2024-03-06")
	if err != nil || got != nil {
		t.Fatalf("нет записи это не ошибка: %+v %v", got, err)
	}
}
