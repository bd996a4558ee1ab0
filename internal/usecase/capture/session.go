package capture

import (
	"context"
	"errors"
	"strings"
	"sync"

	"voice-journal/internal/adapters/speech"
)

// UserError ошибка записи в виде, пригодном для показа пользователю.
type UserError struct {
	Kind    speech.ErrorKind
	Message string
	// OfferSettings предложить открыть настройки ОС.
	OfferSettings bool
}

func (e *UserError) Error() string { return e.Message }

const (
	msgClient       = "Speech recognition failed. Please:\n1. Close other apps using the microphone\n2. Update Google app from Play Store\n3. Restart your device"
	msgAudio        = "Microphone is in use. Please close other apps using the microphone."
	msgPermission   = "Microphone permission denied. Please enable it in Settings."
	msgNotGranted   = "Microphone permission not granted. Please enable it in Settings."
	msgNetwork      = "Internet connection required for speech recognition."
	msgRestricted   = "Speech recognition is restricted on this device."
	msgUnavailable  = "Speech recognition unavailable. Please check:\n• Microphone not in use\n• Google app is updated\n• Internet connected"
	msgBusy         = "Speech recognizer is busy. Please wait a moment and try again."
	msgGenericError = "An error occurred with speech recognition."
)

// Describe переводит ошибку моста в сообщение для пользователя.
func Describe(err *speech.Error) *UserError {
	if err == nil {
		return nil
	}
	ue := &UserError{Kind: err.Kind, OfferSettings: err.Kind.NeedsSettings() || err.Code == speech.CodeClient}
	switch {
	case err.Code == speech.CodeClient:
		ue.Message = msgClient
	case err.Code == speech.CodeAudio:
		ue.Message = msgAudio
	case err.Code == speech.CodeInsufficientPermissions:
		ue.Message = msgPermission
	case err.Code == speech.CodeNetwork:
		ue.Message = msgNetwork
	case err.Kind == speech.KindPermissionDenied:
		ue.Message = msgPermission
	case err.Kind == speech.KindPermissionRestricted:
		ue.Message = msgRestricted
	case err.Kind == speech.KindNetworkRequired:
		ue.Message = msgNetwork
	case err.Kind == speech.KindServiceUnavailable:
		ue.Message = msgUnavailable
	case err.Kind == speech.KindServiceBusy:
		ue.Message = msgBusy
	case strings.TrimSpace(err.Message) != "":
		ue.Message = err.Message
	default:
		ue.Message = msgGenericError
	}
	return ue
}

// State состояние записи для UI.
type State struct {
	Listening  bool
	Transcript string
	Error      *UserError
}

// Session связывает распознаватель с состоянием экрана записи.
type Session struct {
	rec  *speech.Recognizer
	subs []*speech.Subscription

	mu     sync.Mutex
	state  State
	buffer speech.TranscriptBuffer
}

// NewSession подписывается на события распознавателя. Close снимает подписки.
func NewSession(rec *speech.Recognizer) *Session {
	s := &Session{rec: rec}
	s.subs = append(s.subs,
		rec.OnTranscript(s.onTranscript),
		rec.OnError(s.onError),
	)
	return s
}

// State возвращает снимок состояния.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start проверяет разрешение и запускает запись. Во время записи ничего не делает.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	listening := s.state.Listening
	s.mu.Unlock()
	if listening {
		return nil
	}

	ok, err := s.rec.CheckPermission(ctx)
	if err == nil && !ok {
		ue := &UserError{Kind: speech.KindPermissionDenied, Message: msgNotGranted, OfferSettings: true}
		s.mu.Lock()
		s.state.Error = ue
		s.mu.Unlock()
		return ue
	}

	s.mu.Lock()
	s.buffer.Reset()
	s.state = State{Listening: true}
	s.mu.Unlock()

	if err := s.rec.StartListening(ctx); err != nil {
		var speechErr *speech.Error
		ue := &UserError{Kind: speech.KindUnknown, Message: msgGenericError}
		if errors.As(err, &speechErr) {
			ue = Describe(speechErr)
		}
		s.mu.Lock()
		s.state.Listening = false
		s.state.Error = ue
		s.mu.Unlock()
		return ue
	}
	return nil
}

// Stop завершает запись и возвращает итоговый транскрипт.
func (s *Session) Stop(ctx context.Context) (string, error) {
	final, err := s.rec.StopListening(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Listening = false
	if final != "" {
		s.state.Transcript = final
	}
	return s.state.Transcript, err
}

// Close снимает подписки.
func (s *Session) Close() {
	for _, sub := range s.subs {
		sub.Unsubscribe()
	}
}

func (s *Session) onTranscript(ev speech.TranscriptEvent) {
	if !s.buffer.Apply(ev) {
		return
	}
	s.mu.Lock()
	s.state.Transcript = s.buffer.Value()
	s.state.Error = nil
	s.mu.Unlock()
}

func (s *Session) onError(err *speech.Error) {
	if err.Kind.Silent() {
		return
	}
	s.mu.Lock()
	s.state.Listening = false
	s.state.Error = Describe(err)
	s.mu.Unlock()
}
