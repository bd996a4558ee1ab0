package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"voice-journal/internal/domain"
	"voice-journal/internal/infra/metrics"
)

// Backend операции API, нужные оркестратору.
type Backend interface {
	CreateJournalEntry(ctx context.Context, text, date string) (domain.CreateResult, error)
	GetJournalEntry(ctx context.Context, entryID string) (domain.EntryStatus, error)
	GetJournalByDate(ctx context.Context, date string) (domain.JournalEntry, error)
	GetCredits(ctx context.Context) (int, error)
	GenerateWeeklySummary(ctx context.Context, endDate string) domain.WeeklyResult
}

// Cache локальный кэш резюме по датам.
type Cache interface {
	Get(ctx context.Context, date string) (domain.Summary, bool)
	Set(ctx context.Context, date string, summary domain.Summary) error
}

// Outcome терминальное состояние создания записи.
type Outcome string

const (
	OutcomeResolved Outcome = "resolved"
	OutcomeTimedOut Outcome = "timed_out"
	OutcomeFailed   Outcome = "failed"
)

// Result итог CreateJournal.
type Result struct {
	Outcome  Outcome
	EntryID  string
	Summary  domain.Summary
	Attempts int
}

// ErrNoCredits кредиты закончились, запрос не отправлялся.
var ErrNoCredits = errors.New("no journal credits left")

// ErrDetached операция пережила Detach и её результат отброшен.
var ErrDetached = errors.New("orchestrator detached")

// NoCreditsMessage текст для пользователя без кредитов.
const NoCreditsMessage = "You have used your daily journal credit."

// PlaceholderSummary показывается, пока резюме ещё считается.
func PlaceholderSummary() domain.Summary {
	return domain.Summary{
		DaySummary:    "Generating your AI summary...",
		WhatWasDone:   []string{},
		EnergyLevel:   domain.EnergyUnclear,
		EmotionalTone: domain.ToneNeutral,
		Reflection:    "Your summary will appear shortly.",
	}
}

// State состояние экрана дневника.
type State struct {
	Current  *domain.Summary
	Loading  bool
	Creating bool
	Error    string
	// Credits nil, пока баланс не загружен.
	Credits *int
}

var errNotReady = errors.New("summary is not ready")

// Service создаёт записи и дожидается резюме.
type Service struct {
	backend  Backend
	cache    Cache
	log      zerolog.Logger
	interval time.Duration
	attempts int
	newTimer func() backoff.Timer

	mu      sync.Mutex
	state   State
	gen     uint64
	cancels map[uint64]context.CancelFunc
	nextOp  uint64

	wg sync.WaitGroup
}

// Option настраивает Service.
type Option func(*Service)

// WithPolling задаёт интервал и число попыток опроса.
func WithPolling(interval time.Duration, attempts int) Option {
	return func(s *Service) {
		if interval > 0 {
			s.interval = interval
		}
		if attempts > 0 {
			s.attempts = attempts
		}
	}
}

// WithTimer подменяет таймер ожидания между опросами.
func WithTimer(newTimer func() backoff.Timer) Option {
	return func(s *Service) { s.newTimer = newTimer }
}

// WithLogger задаёт логгер.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) { s.log = log }
}

// NewService создаёт оркестратор.
func NewService(backend Backend, cache Cache, opts ...Option) *Service {
	s := &Service{
		backend:  backend,
		cache:    cache,
		log:      zerolog.Nop(),
		interval: time.Second,
		attempts: 10,
		cancels:  make(map[uint64]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With().Str("component", "journal_orchestrator").Logger()
	return s
}

// State возвращает снимок состояния.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	if st.Current != nil {
		cur := *st.Current
		st.Current = &cur
	}
	if st.Credits != nil {
		c := *st.Credits
		st.Credits = &c
	}
	return st
}

// Detach отменяет текущие операции; их результаты больше не меняют состояние.
func (s *Service) Detach() {
	s.mu.Lock()
	s.gen++
	s.state.Loading = false
	s.state.Creating = false
	cancels := s.cancels
	s.cancels = make(map[uint64]context.CancelFunc)
	s.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

// Wait дожидается фоновых обновлений кредитов.
func (s *Service) Wait() {
	s.wg.Wait()
}

// CreateJournal отправляет транскрипт и ждёт резюме: сразу из ответа или опросом.
// По исчерпании попыток возвращает заглушку с OutcomeTimedOut без ошибки.
func (s *Service) CreateJournal(ctx context.Context, text, date string) (Result, error) {
	ctx, gen, release := s.begin(ctx)
	defer release()

	if credits := s.State().Credits; credits != nil && *credits <= 0 {
		s.apply(gen, func(st *State) { st.Error = NoCreditsMessage })
		return Result{Outcome: OutcomeFailed}, ErrNoCredits
	}

	s.apply(gen, func(st *State) {
		st.Creating = true
		st.Error = ""
	})
	defer s.apply(gen, func(st *State) { st.Creating = false })

	s.log.Info().Str("event", "EDGE_START").Str("date", date).Int("text_len", len(text)).Msg("создание записи")
	start := time.Now()
	created, err := s.backend.CreateJournalEntry(ctx, text, date)
	s.log.Info().Str("event", "EDGE_END").Dur("duration", time.Since(start)).Bool("success", err == nil).Msg("создание записи завершено")
	s.refreshCreditsAsync(ctx, gen)

	if err != nil {
		msg := err.Error()
		if errors.Is(err, domain.ErrInsufficientCredits) {
			msg = NoCreditsMessage
		}
		s.apply(gen, func(st *State) { st.Error = msg })
		return Result{Outcome: OutcomeFailed}, fmt.Errorf("создание записи: %w", err)
	}

	if created.Summary != nil {
		summary := created.Summary.Normalize()
		s.resolve(ctx, gen, date, summary)
		return Result{Outcome: OutcomeResolved, EntryID: created.EntryID, Summary: summary}, nil
	}

	summary, attempts, err := s.poll(ctx, gen, created.EntryID)
	metrics.PollAttempts.Observe(float64(attempts))
	switch {
	case err == nil:
		s.resolve(ctx, gen, date, summary)
		return Result{Outcome: OutcomeResolved, EntryID: created.EntryID, Summary: summary, Attempts: attempts}, nil
	case errors.Is(err, errNotReady):
		s.log.Warn().Str("entry_id", created.EntryID).Int("attempts", attempts).Msg("резюме не готово, показываем заглушку")
		placeholder := PlaceholderSummary()
		s.apply(gen, func(st *State) { st.Current = &placeholder })
		return Result{Outcome: OutcomeTimedOut, EntryID: created.EntryID, Summary: placeholder, Attempts: attempts}, nil
	default:
		return Result{Outcome: OutcomeFailed, EntryID: created.EntryID, Attempts: attempts}, err
	}
}

// poll опрашивает запись с постоянным интервалом. Ошибки чтения считаются временными.
func (s *Service) poll(ctx context.Context, gen uint64, entryID string) (domain.Summary, int, error) {
	var (
		attempts int
		summary  domain.Summary
	)
	op := func() error {
		if !s.isCurrent(gen) {
			return backoff.Permanent(ErrDetached)
		}
		attempts++
		status, err := s.backend.GetJournalEntry(ctx, entryID)
		if err != nil {
			return err
		}
		if !status.Ready() {
			return errNotReady
		}
		summary = status.Summary.Normalize()
		return nil
	}
	notify := func(err error, wait time.Duration) {
		s.log.Debug().Err(err).Int("attempt", attempts).Int("max", s.attempts).Dur("wait", wait).Msg("ждём резюме")
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.interval), uint64(s.attempts-1)),
		ctx,
	)
	var timer backoff.Timer
	if s.newTimer != nil {
		timer = s.newTimer()
	}
	err := backoff.RetryNotifyWithTimer(op, policy, notify, timer)
	switch {
	case err == nil:
		return summary, attempts, nil
	case errors.Is(err, ErrDetached), ctx.Err() != nil:
		if !s.isCurrent(gen) {
			return domain.Summary{}, attempts, ErrDetached
		}
		return domain.Summary{}, attempts, fmt.Errorf("опрос резюме: %w", ctx.Err())
	default:
		// последняя ошибка опроса, в том числе транспортная, означает таймаут
		return domain.Summary{}, attempts, fmt.Errorf("%w: %v", errNotReady, err)
	}
}

// FetchJournal показывает резюме за дату: кэш, затем API с записью в кэш.
// Отсутствие записи ошибкой не считается.
func (s *Service) FetchJournal(ctx context.Context, date string) (*domain.Summary, error) {
	ctx, gen, release := s.begin(ctx)
	defer release()

	s.apply(gen, func(st *State) {
		st.Loading = true
		st.Current = nil
		st.Error = ""
	})
	defer s.apply(gen, func(st *State) { st.Loading = false })

	if cached, ok := s.cache.Get(ctx, date); ok {
		s.apply(gen, func(st *State) { st.Current = &cached })
		return &cached, nil
	}

	entry, err := s.backend.GetJournalByDate(ctx, date)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		s.apply(gen, func(st *State) { st.Error = err.Error() })
		return nil, fmt.Errorf("чтение записи: %w", err)
	}
	if !entry.Ready() {
		return nil, nil
	}
	summary := entry.Summary.Normalize()
	s.resolve(ctx, gen, date, summary)
	return &summary, nil
}

// RefreshCredits перечитывает баланс кредитов.
func (s *Service) RefreshCredits(ctx context.Context) (int, error) {
	ctx, gen, release := s.begin(ctx)
	defer release()
	return s.refreshCredits(ctx, gen)
}

// GenerateWeekly запрашивает недельный обзор; состояние экрана не меняется.
func (s *Service) GenerateWeekly(ctx context.Context, endDate string) domain.WeeklyResult {
	return s.backend.GenerateWeeklySummary(ctx, endDate)
}

func (s *Service) refreshCredits(ctx context.Context, gen uint64) (int, error) {
	credits, err := s.backend.GetCredits(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("не удалось обновить кредиты")
		return 0, fmt.Errorf("обновление кредитов: %w", err)
	}
	s.apply(gen, func(st *State) { st.Credits = &credits })
	return credits, nil
}

func (s *Service) refreshCreditsAsync(ctx context.Context, gen uint64) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		_, _ = s.refreshCredits(ctx, gen)
	}()
}

// resolve пишет резюме в кэш и в состояние. Ошибка кэша только логируется.
func (s *Service) resolve(ctx context.Context, gen uint64, date string, summary domain.Summary) {
	if !s.isCurrent(gen) {
		return
	}
	if err := s.cache.Set(ctx, date, summary); err != nil {
		s.log.Warn().Err(err).Str("date", date).Msg("не удалось записать кэш")
	}
	s.apply(gen, func(st *State) { st.Current = &summary })
}

func (s *Service) begin(ctx context.Context) (context.Context, uint64, func()) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.nextOp++
	id := s.nextOp
	gen := s.gen
	s.cancels[id] = cancel
	s.mu.Unlock()
	return ctx, gen, func() {
		s.mu.Lock()
		delete(s.cancels, id)
		s.mu.Unlock()
		cancel()
	}
}

func (s *Service) isCurrent(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen
}

func (s *Service) apply(gen uint64, fn func(*State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}
	fn(&s.state)
}
