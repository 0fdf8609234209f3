package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

type ErrorType int

const (
	ErrInput ErrorType = iota
	ErrConfig
	ErrAudio
	ErrTranscription
	ErrDiarization
	ErrAnalysis
	ErrNotFound
	ErrUnknown
)

// Error carries a classified failure through the pipeline. The type
// decides how the orchestrator reacts; the context keys make the message
// actionable without grepping logs.
type Error struct {
	Type    ErrorType
	Message string
	Context map[string]any
	Cause   error
}

func NewError(errorType ErrorType, message string) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
	}
}

func WrapError(err error, errorType ErrorType, message string) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
		Cause:   err,
	}
}

func (e *Error) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s] %s", e.Type.String(), e.Message))

	if len(e.Context) > 0 {
		var ctxParts []string
		for k, v := range e.Context {
			ctxParts = append(ctxParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("context: %s", strings.Join(ctxParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) WithContext(key string, value any) *Error {
	e.Context[key] = value
	return e
}

func (t ErrorType) String() string {
	switch t {
	case ErrInput:
		return "Input"
	case ErrConfig:
		return "Config"
	case ErrAudio:
		return "Audio"
	case ErrTranscription:
		return "Transcription"
	case ErrDiarization:
		return "Diarization"
	case ErrAnalysis:
		return "Analysis"
	case ErrNotFound:
		return "NotFound"
	default:
		return "Unknown"
	}
}

func IsErrorType(err error, errorType ErrorType) bool {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Type == errorType
	}
	return false
}

// SafeExecute converts panics in fn into classified errors so a crashing
// stage fails its job instead of the process.
func SafeExecute(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewError(ErrUnknown, fmt.Sprintf("runtime error: %v", r))
		}
	}()

	return fn()
}
