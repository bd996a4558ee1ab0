package speech

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// ConsolePlatform распознаёт строки из io.Reader и "озвучивает" в io.Writer.
// Каждая строка даёт частичный результат, EOF или Stop дают финальный.
type ConsolePlatform struct {
	In  io.Reader
	Out io.Writer
	// Denied имитирует отказ в разрешении на микрофон.
	Denied bool
}

var (
	_ RecognizerPlatform = (*ConsolePlatform)(nil)
	_ SynthPlatform      = (*ConsolePlatform)(nil)
)

// CheckPermission для консоли разрешение есть всегда, если не выставлен Denied.
func (p *ConsolePlatform) CheckPermission(context.Context) (bool, error) {
	return !p.Denied, nil
}

// NewRecognizer создаёт консольный распознаватель.
func (p *ConsolePlatform) NewRecognizer() (NativeRecognizer, error) {
	if p.In == nil {
		return nil, errors.New("console recognizer: input is nil")
	}
	return &consoleRecognizer{in: p.In, lines: make(chan string)}, nil
}

// NewSynthesizer создаёт консольный синтезатор.
func (p *ConsolePlatform) NewSynthesizer(listener UtteranceListener) (NativeSynthesizer, error) {
	if p.Out == nil {
		return nil, errors.New("console synthesizer: output is nil")
	}
	return &consoleSynthesizer{out: p.Out, listener: listener}, nil
}

type consoleRecognizer struct {
	in       io.Reader
	lines    chan string
	readOnce sync.Once

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func (r *consoleRecognizer) Start(ctx context.Context, listener NativeListener) error {
	r.readOnce.Do(func() {
		go func() {
			scanner := bufio.NewScanner(r.in)
			for scanner.Scan() {
				r.lines <- scanner.Text()
			}
			close(r.lines)
		}()
	})

	r.mu.Lock()
	if r.stop != nil {
		r.mu.Unlock()
		return &Error{Kind: KindServiceBusy, Code: CodeRecognizerBusy, Message: "recognizer is already running"}
	}
	stop, done := make(chan struct{}), make(chan struct{})
	r.stop, r.done = stop, done
	r.mu.Unlock()

	go r.pump(ctx, listener, stop, done)
	return nil
}

func (r *consoleRecognizer) pump(ctx context.Context, listener NativeListener, stop, done chan struct{}) {
	defer close(done)
	var parts []string
	final := func() { listener.OnResult(strings.Join(parts, " "), true) }
	for {
		select {
		case <-stop:
			final()
			return
		case <-ctx.Done():
			final()
			return
		case line, ok := <-r.lines:
			if !ok {
				if len(parts) == 0 {
					listener.OnError(CodeNoMatch, "No speech detected. Please speak clearly.")
					return
				}
				final()
				return
			}
			if line = strings.TrimSpace(line); line == "" {
				continue
			}
			parts = append(parts, line)
			listener.OnResult(strings.Join(parts, " "), false)
		}
	}
}

func (r *consoleRecognizer) Stop() error {
	r.mu.Lock()
	stop, done := r.stop, r.done
	r.stop, r.done = nil, nil
	r.mu.Unlock()
	if stop == nil {
		return nil
	}
	close(stop)
	<-done
	return nil
}

func (r *consoleRecognizer) Destroy() {
	_ = r.Stop()
}

type consoleSynthesizer struct {
	out      io.Writer
	listener UtteranceListener
	mu       sync.Mutex
}

func (s *consoleSynthesizer) Speak(_ context.Context, id, text string, opts SpeakOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener.OnStart(id)
	if _, err := fmt.Fprintf(s.out, "[speak pitch=%.2f rate=%.2f] %s\n", opts.Pitch, opts.Rate, text); err != nil {
		s.listener.OnError(id, err)
		return nil
	}
	s.listener.OnDone(id)
	return nil
}

func (s *consoleSynthesizer) Stop() error { return nil }

func (s *consoleSynthesizer) Shutdown() {}
