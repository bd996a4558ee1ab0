package speech

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// NativeListener принимает колбэки нативного распознавателя.
type NativeListener interface {
	OnResult(text string, isFinal bool)
	OnError(code, message string)
}

// NativeRecognizer одна нативная сессия распознавания.
type NativeRecognizer interface {
	Start(ctx context.Context, listener NativeListener) error
	// Stop завершает распознавание и до возврата доставляет финальный результат.
	Stop() error
	Destroy()
}

// RecognizerPlatform создаёт нативные распознаватели.
type RecognizerPlatform interface {
	CheckPermission(ctx context.Context) (bool, error)
	NewRecognizer() (NativeRecognizer, error)
}

// ErrPermissionDenied старт без разрешения на микрофон.
var ErrPermissionDenied = &Error{Kind: KindPermissionDenied, Code: CodePermissionDenied, Message: "microphone permission not granted"}

// Recognizer владеет не более чем одной живой нативной сессией.
type Recognizer struct {
	platform RecognizerPlatform
	log      zerolog.Logger

	mu        sync.Mutex
	native    NativeRecognizer
	run       uint64
	listening bool
	buffer    TranscriptBuffer

	transcripts Hub[TranscriptEvent]
	errs        Hub[*Error]
}

// NewRecognizer создаёт мост распознавания.
func NewRecognizer(platform RecognizerPlatform, log zerolog.Logger) *Recognizer {
	return &Recognizer{platform: platform, log: log.With().Str("component", "speech_recognizer").Logger()}
}

// OnTranscript подписывает на частичные и финальные результаты.
func (r *Recognizer) OnTranscript(fn func(TranscriptEvent)) *Subscription {
	return r.transcripts.Subscribe(fn)
}

// OnError подписывает на ошибки. no-speech-match сюда не попадает.
func (r *Recognizer) OnError(fn func(*Error)) *Subscription {
	return r.errs.Subscribe(fn)
}

// CheckPermission проверяет доступ к микрофону.
func (r *Recognizer) CheckPermission(ctx context.Context) (bool, error) {
	ok, err := r.platform.CheckPermission(ctx)
	r.log.Info().Str("event", "VOICE_PERMISSION_CHECK").Bool("has_permission", ok).Err(err).Msg("проверка разрешения")
	return ok, err
}

// IsListening сообщает, идёт ли распознавание.
func (r *Recognizer) IsListening() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listening
}

// StartListening запускает распознавание. Повторный вызов во время записи ничего не делает.
func (r *Recognizer) StartListening(ctx context.Context) error {
	r.mu.Lock()
	if r.listening {
		r.mu.Unlock()
		return nil
	}
	if r.native == nil {
		native, err := r.platform.NewRecognizer()
		if err != nil {
			r.mu.Unlock()
			return fmt.Errorf("создание распознавателя: %w", err)
		}
		r.native = native
	}
	r.run++
	run := r.run
	native := r.native
	r.listening = true
	r.buffer.Reset()
	r.mu.Unlock()

	r.log.Info().Str("event", "VOICE_START").Uint64("run", run).Msg("старт распознавания")
	if err := native.Start(ctx, &runListener{r: r, run: run}); err != nil {
		r.mu.Lock()
		if r.run == run {
			r.listening = false
		}
		var speechErr *Error
		if errors.As(err, &speechErr) && speechErr.Kind.NeedsSettings() && r.native == native {
			r.teardownLocked()
		}
		r.mu.Unlock()
		r.log.Error().Str("event", "VOICE_START_ERROR").Err(err).Msg("не удалось начать распознавание")
		return fmt.Errorf("старт распознавания: %w", err)
	}
	return nil
}

// StopListening останавливает распознавание и возвращает итоговый транскрипт.
func (r *Recognizer) StopListening(_ context.Context) (string, error) {
	r.mu.Lock()
	native := r.native
	wasListening := r.listening
	r.mu.Unlock()

	var stopErr error
	if native != nil && wasListening {
		stopErr = native.Stop()
	}

	r.mu.Lock()
	r.listening = false
	r.run++
	r.mu.Unlock()

	final := r.buffer.Value()
	r.log.Info().Str("event", "VOICE_STOP").Int("transcript_len", len(final)).Err(stopErr).Msg("стоп распознавания")
	if stopErr != nil {
		return final, fmt.Errorf("остановка распознавания: %w", stopErr)
	}
	return final, nil
}

// Close уничтожает нативную сессию и снимает подписчиков.
func (r *Recognizer) Close() {
	r.mu.Lock()
	r.teardownLocked()
	r.listening = false
	r.mu.Unlock()
	r.transcripts.Close()
	r.errs.Close()
}

func (r *Recognizer) teardownLocked() {
	if r.native != nil {
		r.native.Destroy()
		r.native = nil
	}
	r.run++
}

func (r *Recognizer) handleResult(run uint64, ev TranscriptEvent) {
	r.mu.Lock()
	if run != r.run {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	r.buffer.Apply(ev)
	r.log.Debug().Str("event", "VOICE_PARTIAL").Int("text_len", len(ev.Transcript)).Bool("final", ev.IsFinal).Msg("результат распознавания")
	r.transcripts.Emit(ev)
}

func (r *Recognizer) handleError(run uint64, code, message string) {
	kind, teardown := Classify(code, message)
	if kind.Silent() {
		r.log.Debug().Str("event", "VOICE_ERROR").Str("code", code).Msg("речь не распознана, игнорируем")
		return
	}

	r.mu.Lock()
	if run != r.run {
		r.mu.Unlock()
		return
	}
	r.listening = false
	if teardown {
		r.teardownLocked()
	}
	r.mu.Unlock()

	r.log.Error().Str("event", "VOICE_ERROR").Str("code", code).Str("kind", string(kind)).Bool("teardown", teardown).Msg(message)
	r.errs.Emit(&Error{Kind: kind, Code: code, Message: message})
}

// runListener привязывает колбэки к запуску, события прошлых запусков отбрасываются.
type runListener struct {
	r   *Recognizer
	run uint64
}

func (l *runListener) OnResult(text string, isFinal bool) {
	l.r.handleResult(l.run, TranscriptEvent{Transcript: text, IsFinal: isFinal})
}

func (l *runListener) OnError(code, message string) {
	l.r.handleError(l.run, code, message)
}
