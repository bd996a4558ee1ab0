package speech

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

type fakeNative struct {
	mu        sync.Mutex
	listener  NativeListener
	starts    int
	stops     int
	destroyed bool
	onStop    func(NativeListener)
}

func (f *fakeNative) Start(_ context.Context, l NativeListener) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listener = l
	f.starts++
	return nil
}

func (f *fakeNative) Stop() error {
	f.mu.Lock()
	f.stops++
	l, hook := f.listener, f.onStop
	f.mu.Unlock()
	if hook != nil {
		hook(l)
	}
	return nil
}

func (f *fakeNative) Destroy() {
	f.mu.Lock()
	f.destroyed = true
	f.mu.Unlock()
}

type fakePlatform struct {
	created []*fakeNative
	allowed bool
}

func (p *fakePlatform) CheckPermission(context.Context) (bool, error) { return p.allowed, nil }

func (p *fakePlatform) NewRecognizer() (NativeRecognizer, error) {
	n := &fakeNative{}
	p.created = append(p.created, n)
	return n, nil
}

func TestStartListeningIsIdempotent(t *testing.T) {
	p := &fakePlatform{allowed: true}
	r := NewRecognizer(p, zerolog.Nop())
	for i := 0; i < 3; i++ {
		if err := r.StartListening(context.Background()); err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
	}
	if len(p.created) != 1 || p.created[0].starts != 1 {
		t.Fatalf("ожидали одну нативную сессию и один старт, получили %d/%d", len(p.created), p.created[0].starts)
	}
	if !r.IsListening() {
		t.Fatalf("ожидали listening=true")
	}
}

func TestNoSpeechMatchIsSilent(t *testing.T) {
	p := &fakePlatform{allowed: true}
	r := NewRecognizer(p, zerolog.Nop())
	var got []*Error
	r.OnError(func(e *Error) { got = append(got, e) })
	_ = r.StartListening(context.Background())

	l := p.created[0].listener
	l.OnError(CodeNoMatch, "No speech detected")
	l.OnError(CodeSpeechTimeout, "No speech detected")
	if len(got) != 0 {
		t.Fatalf("no-speech-match не должен доходить до подписчиков: %v", got)
	}
	if !r.IsListening() {
		t.Fatalf("no-speech-match не должен менять listening")
	}

	l.OnError(CodeNetwork, "offline")
	if len(got) != 1 || got[0].Kind != KindNetworkRequired {
		t.Fatalf("ожидали network-required, получили %v", got)
	}
	if r.IsListening() {
		t.Fatalf("ошибка должна снять listening")
	}
}

func TestPermissionErrorTearsDownSession(t *testing.T) {
	p := &fakePlatform{allowed: true}
	r := NewRecognizer(p, zerolog.Nop())
	var transcripts []TranscriptEvent
	r.OnTranscript(func(ev TranscriptEvent) { transcripts = append(transcripts, ev) })
	_ = r.StartListening(context.Background())

	poisoned := p.created[0]
	poisoned.listener.OnError(CodeInsufficientPermissions, "denied")
	if !poisoned.destroyed {
		t.Fatalf("сессия должна быть уничтожена")
	}
	poisoned.listener.OnResult("late", false)
	if len(transcripts) != 0 {
		t.Fatalf("события уничтоженной сессии отбрасываются")
	}

	_ = r.StartListening(context.Background())
	if len(p.created) != 2 {
		t.Fatalf("следующий старт создаёт новую сессию, создано %d", len(p.created))
	}
}

func TestStopListeningReturnsFrozenFinal(t *testing.T) {
	p := &fakePlatform{allowed: true}
	r := NewRecognizer(p, zerolog.Nop())
	_ = r.StartListening(context.Background())
	n := p.created[0]
	n.onStop = func(l NativeListener) { l.OnResult("refined after final", false) }

	n.listener.OnResult("so today", false)
	n.listener.OnResult("so today I walked", true)
	n.listener.OnResult("so today I walked far", false)

	got, err := r.StopListening(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if got != "so today I walked" {
		t.Fatalf("первый финальный результат фиксирует транскрипт, получили %q", got)
	}
	if r.IsListening() {
		t.Fatalf("после stop listening=false")
	}
}

type fakeSynth struct {
	mu       sync.Mutex
	listener UtteranceListener
	spoken   []string
	stops    int
}

func (f *fakeSynth) Speak(_ context.Context, id, text string, _ SpeakOptions) error {
	f.mu.Lock()
	f.spoken = append(f.spoken, id)
	f.mu.Unlock()
	f.listener.OnStart(id)
	return nil
}

func (f *fakeSynth) Stop() error {
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
	return nil
}

func (f *fakeSynth) Shutdown() {}

type fakeSynthPlatform struct{ synth *fakeSynth }

func (p *fakeSynthPlatform) NewSynthesizer(l UtteranceListener) (NativeSynthesizer, error) {
	p.synth = &fakeSynth{listener: l}
	return p.synth, nil
}

func TestSpeakReplacesCurrentUtterance(t *testing.T) {
	p := &fakeSynthPlatform{}
	s := NewSpeaker(p, zerolog.Nop())
	var events []string
	s.OnStart(func(ev UtteranceEvent) { events = append(events, "start:"+ev.ID) })
	s.OnDone(func(ev UtteranceEvent) { events = append(events, "done:"+ev.ID) })

	first, _ := s.Speak(context.Background(), "one", DefaultSpeakOptions)
	second, _ := s.Speak(context.Background(), "two", DefaultSpeakOptions)

	// поздний done прерванной фразы от движка не дублируется
	p.synth.listener.OnDone(first)
	p.synth.listener.OnDone(second)

	want := []string{"start:" + first, "done:" + first, "start:" + second, "done:" + second}
	if strings.Join(events, ",") != strings.Join(want, ",") {
		t.Fatalf("ожидали %v, получили %v", want, events)
	}
	if s.IsSpeaking() {
		t.Fatalf("после done фраза не играет")
	}
}

func TestStopWhenIdleIsNoop(t *testing.T) {
	p := &fakeSynthPlatform{}
	s := NewSpeaker(p, zerolog.Nop())
	if err := s.Stop(); err != nil {
		t.Fatalf("stop без фразы не ошибка: %v", err)
	}
	var dones int
	s.OnDone(func(UtteranceEvent) { dones++ })
	_, _ = s.Speak(context.Background(), "one", DefaultSpeakOptions)
	_ = s.Stop()
	_ = s.Stop()
	if dones != 1 || p.synth.stops != 1 {
		t.Fatalf("ожидали один done и один нативный stop, получили %d/%d", dones, p.synth.stops)
	}
}

func TestClassify(t *testing.T) {
	cases := map[string]ErrorKind{
		CodeAudio:                   KindServiceUnavailable,
		CodeClient:                  KindServiceUnavailable,
		CodeInsufficientPermissions: KindPermissionDenied,
		CodeRecognizerBusy:          KindServiceBusy,
		CodeNetworkTimeout:          KindNetworkRequired,
		CodeNoSpeechIOS:             KindNoSpeechMatch,
		"weird":                     KindUnknown,
	}
	for code, want := range cases {
		if got, _ := Classify(code, ""); got != want {
			t.Fatalf("%s: ожидали %s, получили %s", code, want, got)
		}
	}
	if got, teardown := Classify("", "Speech recognition restricted"); got != KindPermissionRestricted || !teardown {
		t.Fatalf("ожидали restricted по сообщению, получили %s", got)
	}
}

func TestHubUnsubscribe(t *testing.T) {
	var h Hub[int]
	var got []int
	sub := h.Subscribe(func(v int) { got = append(got, v) })
	h.Emit(1)
	sub.Unsubscribe()
	sub.Unsubscribe()
	h.Emit(2)
	if len(got) != 1 || h.Len() != 0 {
		t.Fatalf("после отписки события не доставляются: %v", got)
	}
}

func TestConsoleRecognizer(t *testing.T) {
	p := &ConsolePlatform{In: strings.NewReader("so today\n\nI walked\n")}
	r := NewRecognizer(p, zerolog.Nop())
	finals := make(chan string, 1)
	r.OnTranscript(func(ev TranscriptEvent) {
		if ev.IsFinal {
			finals <- ev.Transcript
		}
	})
	if err := r.StartListening(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if got := <-finals; got != "so today I walked" {
		t.Fatalf("неожиданный финальный транскрипт %q", got)
	}
	got, _ := r.StopListening(context.Background())
	if got != "so today I walked" {
		t.Fatalf("stop возвращает финальный транскрипт, получили %q", got)
	}
}

func TestConsoleSynthesizer(t *testing.T) {
	var out bytes.Buffer
	s := NewSpeaker(&ConsolePlatform{Out: &out}, zerolog.Nop())
	if _, err := s.Speak(context.Background(), "hello", SpeakOptions{Pitch: 1, Rate: 0.9}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !strings.Contains(out.String(), "hello") || s.IsSpeaking() {
		t.Fatalf("неожиданный вывод %q", out.String())
	}
}
