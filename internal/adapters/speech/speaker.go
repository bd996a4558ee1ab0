package speech

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
)

// SpeakOptions параметры озвучки.
type SpeakOptions struct {
	Pitch float64
	Rate  float64
}

// DefaultSpeakOptions нормальные высота и скорость.
var DefaultSpeakOptions = SpeakOptions{Pitch: 1.0, Rate: 1.0}

// UtteranceListener принимает колбэки нативного синтезатора.
type UtteranceListener interface {
	OnStart(id string)
	OnDone(id string)
	OnError(id string, err error)
}

// NativeSynthesizer нативный движок синтеза.
type NativeSynthesizer interface {
	Speak(ctx context.Context, id, text string, opts SpeakOptions) error
	Stop() error
	Shutdown()
}

// SynthPlatform создаёт нативный синтезатор.
type SynthPlatform interface {
	NewSynthesizer(listener UtteranceListener) (NativeSynthesizer, error)
}

// UtteranceEvent событие фразы. Interrupted выставляется, если фраза прервана.
type UtteranceEvent struct {
	ID          string
	Interrupted bool
}

// UtteranceError ошибка озвучки фразы.
type UtteranceError struct {
	ID  string
	Err error
}

// Speaker проигрывает не больше одной фразы; новый Speak заменяет текущую.
type Speaker struct {
	platform SynthPlatform
	log      zerolog.Logger

	op      sync.Mutex
	mu      sync.Mutex
	native  NativeSynthesizer
	current string
	counter uint64

	starts Hub[UtteranceEvent]
	dones  Hub[UtteranceEvent]
	errs   Hub[UtteranceError]
}

// NewSpeaker создаёт мост синтеза.
func NewSpeaker(platform SynthPlatform, log zerolog.Logger) *Speaker {
	return &Speaker{platform: platform, log: log.With().Str("component", "speech_speaker").Logger()}
}

// OnStart подписывает на начало фраз.
func (s *Speaker) OnStart(fn func(UtteranceEvent)) *Subscription { return s.starts.Subscribe(fn) }

// OnDone подписывает на завершение фраз.
func (s *Speaker) OnDone(fn func(UtteranceEvent)) *Subscription { return s.dones.Subscribe(fn) }

// OnError подписывает на ошибки озвучки.
func (s *Speaker) OnError(fn func(UtteranceError)) *Subscription { return s.errs.Subscribe(fn) }

// IsSpeaking сообщает, играет ли фраза.
func (s *Speaker) IsSpeaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != ""
}

// Speak озвучивает текст и возвращает id фразы. Текущая фраза останавливается,
// её done с Interrupted приходит раньше start новой.
func (s *Speaker) Speak(ctx context.Context, text string, opts SpeakOptions) (string, error) {
	s.op.Lock()
	defer s.op.Unlock()

	s.mu.Lock()
	if s.native == nil {
		native, err := s.platform.NewSynthesizer(&speakerListener{s: s})
		if err != nil {
			s.mu.Unlock()
			return "", fmt.Errorf("создание синтезатора: %w", err)
		}
		s.native = native
	}
	native := s.native
	prev := s.current
	s.counter++
	id := "utt-" + strconv.FormatUint(s.counter, 10)
	s.current = id
	s.mu.Unlock()

	if prev != "" {
		if err := native.Stop(); err != nil {
			s.log.Warn().Str("event", "TTS_STOP_ERROR").Err(err).Str("utterance", prev).Msg("не удалось остановить фразу")
		}
		s.dones.Emit(UtteranceEvent{ID: prev, Interrupted: true})
	}

	s.log.Info().Str("event", "TTS_START").Str("utterance", id).Int("text_len", len(text)).Msg("озвучка")
	if err := native.Speak(ctx, id, text, opts); err != nil {
		s.mu.Lock()
		if s.current == id {
			s.current = ""
		}
		s.mu.Unlock()
		s.log.Error().Str("event", "TTS_SPEAK_ERROR").Err(err).Str("utterance", id).Msg("ошибка озвучки")
		s.errs.Emit(UtteranceError{ID: id, Err: err})
		return "", fmt.Errorf("озвучка: %w", err)
	}
	return id, nil
}

// Stop прерывает текущую фразу. Без активной фразы ничего не делает.
func (s *Speaker) Stop() error {
	s.op.Lock()
	defer s.op.Unlock()

	s.mu.Lock()
	id := s.current
	native := s.native
	s.current = ""
	s.mu.Unlock()
	if id == "" {
		return nil
	}
	err := native.Stop()
	if err != nil {
		s.log.Warn().Str("event", "TTS_STOP_ERROR").Err(err).Str("utterance", id).Msg("не удалось остановить фразу")
	}
	s.dones.Emit(UtteranceEvent{ID: id, Interrupted: true})
	return err
}

// Close останавливает движок и снимает подписчиков.
func (s *Speaker) Close() {
	_ = s.Stop()
	s.mu.Lock()
	if s.native != nil {
		s.native.Shutdown()
		s.native = nil
	}
	s.mu.Unlock()
	s.starts.Close()
	s.dones.Close()
	s.errs.Close()
}

// claim проверяет, что событие относится к текущей фразе; finish освобождает её.
func (s *Speaker) claim(id string, finish bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == "" || id != s.current {
		return false
	}
	if finish {
		s.current = ""
	}
	return true
}

type speakerListener struct {
	s *Speaker
}

func (l *speakerListener) OnStart(id string) {
	if l.s.claim(id, false) {
		l.s.starts.Emit(UtteranceEvent{ID: id})
	}
}

func (l *speakerListener) OnDone(id string) {
	if l.s.claim(id, true) {
		l.s.log.Info().Str("event", "TTS_DONE").Str("utterance", id).Msg("фраза завершена")
		l.s.dones.Emit(UtteranceEvent{ID: id})
	}
}

func (l *speakerListener) OnError(id string, err error) {
	if l.s.claim(id, true) {
		l.s.log.Error().Str("event", "TTS_ERROR").Err(err).Str("utterance", id).Msg("ошибка синтеза")
		l.s.errs.Emit(UtteranceError{ID: id, Err: err})
	}
}
