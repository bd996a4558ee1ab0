package speech

import "sync"

// TranscriptEvent частичный или финальный результат распознавания.
type TranscriptEvent struct {
	Transcript string
	IsFinal    bool
}

// TranscriptBuffer хранит последний транскрипт сессии. Первый финальный
// результат фиксирует значение до Reset.
type TranscriptBuffer struct {
	mu     sync.Mutex
	text   string
	frozen bool
}

// Apply принимает событие и сообщает, изменило ли оно буфер.
func (b *TranscriptBuffer) Apply(ev TranscriptEvent) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frozen {
		return false
	}
	b.text = ev.Transcript
	if ev.IsFinal {
		b.frozen = true
	}
	return true
}

// Value возвращает текущий транскрипт.
func (b *TranscriptBuffer) Value() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text
}

// Final сообщает, пришёл ли финальный результат.
func (b *TranscriptBuffer) Final() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frozen
}

// Reset очищает буфер для новой сессии.
func (b *TranscriptBuffer) Reset() {
	b.mu.Lock()
	b.text = ""
	b.frozen = false
	b.mu.Unlock()
}
