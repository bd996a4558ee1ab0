package textsplit

import (
	"strings"
	"unicode"
)

const (
	// TelegramLimit лимит длины сообщения Telegram в рунах.
	TelegramLimit = 4096
	// SpeechLimit размер куска текста для синтеза: 1200 рун укладываются в 5000 байт запроса TTS.
	SpeechLimit = 1200
)

// SplitMessage режет текст под лимит сообщения Telegram.
func SplitMessage(text string) []string {
	return Split(text, TelegramLimit)
}

// Split breaks the text into chunks of at most limit runes.
// It prefers newline boundaries, then sentence ends, then whitespace.
func Split(text string, limit int) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	runes := []rune(trimmed)
	if limit <= 0 || len(runes) <= limit {
		return []string{trimmed}
	}

	var parts []string
	for start := 0; start < len(runes); {
		end := start + limit
		if end >= len(runes) {
			if chunk := strings.TrimSpace(string(runes[start:])); chunk != "" {
				parts = append(parts, chunk)
			}
			break
		}

		split := boundary(runes, start, end)
		if chunk := strings.TrimSpace(string(runes[start:split])); chunk != "" {
			parts = append(parts, chunk)
		}

		start = split
		for start < len(runes) && unicode.IsSpace(runes[start]) {
			start++
		}
	}

	if len(parts) == 0 {
		return []string{trimmed}
	}
	return parts
}

type boundaryFunc func(runes []rune, i int) bool

var boundaries = []boundaryFunc{
	func(runes []rune, i int) bool { return runes[i-1] == '\n' },
	func(runes []rune, i int) bool {
		return strings.ContainsRune(".!?", runes[i-1]) && unicode.IsSpace(runes[i])
	},
	func(runes []rune, i int) bool { return unicode.IsSpace(runes[i-1]) },
}

// boundary ищет самую правую подходящую границу в (start, end], иначе режет жёстко по end.
func boundary(runes []rune, start, end int) int {
	for _, fits := range boundaries {
		for i := end; i > start; i-- {
			if fits(runes, i) {
				return i
			}
		}
	}
	return end
}
