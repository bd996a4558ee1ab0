package speech

import (
	"fmt"
	"strings"
)

// ErrorKind класс ошибки речевого моста.
type ErrorKind string

const (
	KindPermissionDenied     ErrorKind = "permission-denied"
	KindPermissionRestricted ErrorKind = "permission-restricted"
	KindNoSpeechMatch        ErrorKind = "no-speech-match"
	KindServiceUnavailable   ErrorKind = "service-unavailable"
	KindNetworkRequired      ErrorKind = "network-required"
	KindServiceBusy          ErrorKind = "service-busy"
	KindUnknown              ErrorKind = "unknown"
)

// Silent ошибки не показываются пользователю и не меняют состояние сессии.
func (k ErrorKind) Silent() bool {
	return k == KindNoSpeechMatch
}

// NeedsSettings ошибки исправляются только в настройках ОС.
func (k ErrorKind) NeedsSettings() bool {
	return k == KindPermissionDenied || k == KindPermissionRestricted
}

// Error ошибка моста с исходным кодом платформы.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("speech %s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("speech %s (%s): %s", e.Kind, e.Code, e.Message)
}

// Коды нативных распознавателей Android и iOS.
const (
	CodeAudio                   = "ERROR_AUDIO"
	CodeClient                  = "ERROR_CLIENT"
	CodeInsufficientPermissions = "ERROR_INSUFFICIENT_PERMISSIONS"
	CodeNetwork                 = "ERROR_NETWORK"
	CodeNetworkTimeout          = "ERROR_NETWORK_TIMEOUT"
	CodeNoMatch                 = "ERROR_NO_MATCH"
	CodeRecognizerBusy          = "ERROR_RECOGNIZER_BUSY"
	CodeServer                  = "ERROR_SERVER"
	CodeSpeechTimeout           = "ERROR_SPEECH_TIMEOUT"
	CodePermissionDenied        = "PERMISSION_DENIED"
	CodeRestricted              = "RESTRICTED"
	CodeNotAvailable            = "NOT_AVAILABLE"
	// CodeNoSpeechIOS kAFAssistantErrorDomain 1110/216 на iOS.
	CodeNoSpeechIOS = "216"
)

// Classify переводит нативный код в класс ошибки. teardown сообщает, что
// нативную сессию нужно уничтожить и при следующем старте создать заново.
func Classify(code, message string) (kind ErrorKind, teardown bool) {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case CodeInsufficientPermissions, CodePermissionDenied:
		return KindPermissionDenied, true
	case CodeRestricted:
		return KindPermissionRestricted, true
	case CodeNoMatch, CodeSpeechTimeout, CodeNoSpeechIOS:
		return KindNoSpeechMatch, false
	case CodeClient:
		return KindServiceUnavailable, true
	case CodeAudio, CodeServer, CodeNotAvailable:
		return KindServiceUnavailable, false
	case CodeNetwork, CodeNetworkTimeout:
		return KindNetworkRequired, false
	case CodeRecognizerBusy:
		return KindServiceBusy, false
	}
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "denied") || strings.Contains(lower, "permission"):
		return KindPermissionDenied, true
	case strings.Contains(lower, "restricted"):
		return KindPermissionRestricted, true
	case strings.Contains(lower, "unavailable"):
		return KindServiceUnavailable, false
	default:
		return KindUnknown, false
	}
}
