package capture

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	spaceRe         = regexp.MustCompile(`\s+`)
	fillerRe        = regexp.MustCompile(`(?i)\b(um|uh|like|you know|sort of)\b`)
	spaceBeforeRe   = regexp.MustCompile(`\s+([.,!?])`)
	spaceAfterRe    = regexp.MustCompile(`([.,!?])(\w)`)
	leadingPunctRe  = regexp.MustCompile(`^[\s.,!?]+`)
	repeatedCommaRe = regexp.MustCompile(`,{2,}`)
)

// FormatTranscript чистит сырой транскрипт перед отправкой: убирает слова-паразиты,
// правит пробелы у знаков препинания и сдвоенные запятые, делает заглавной первую букву и ставит точку.
func FormatTranscript(text string) string {
	out := collapse(text)
	if out == "" {
		return ""
	}
	out = fillerRe.ReplaceAllString(out, "")
	out = collapse(out)
	out = spaceBeforeRe.ReplaceAllString(out, "$1")
	out = repeatedCommaRe.ReplaceAllString(out, ",")
	out = spaceAfterRe.ReplaceAllString(out, "$1 $2")
	out = strings.TrimSpace(leadingPunctRe.ReplaceAllString(out, ""))
	if out == "" {
		return ""
	}
	out = capitalize(out)
	if !strings.ContainsRune(".!?", lastRune(out)) {
		out += "."
	}
	return out
}

func collapse(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}

func lastRune(s string) rune {
	r, _ := utf8.DecodeLastRuneInString(s)
	return r
}
