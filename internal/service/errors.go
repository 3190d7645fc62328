package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/MimeLyc/tiered-sub-translator/pkg/log"
)

type ErrorType int

const (
	ErrNotFound ErrorType = iota
	ErrFileRead
	ErrFileWrite
	ErrParse
	ErrValidation
	ErrConflict
	ErrConfig
	ErrTranslation
	ErrUnknown
)

// Error is the error type returned by Service.
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

func NewErrorWithCause(errorType ErrorType, message string, cause error) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
		Cause:   cause,
	}
}

func (e *Error) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s] %s", e.Type.String(), e.Message))

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ctxParts := make([]string, 0, len(keys))
		for _, k := range keys {
			ctxParts = append(ctxParts, fmt.Sprintf("%s=%v", k, e.Context[k]))
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
	case ErrNotFound:
		return "NotFound"
	case ErrFileRead:
		return "FileRead"
	case ErrFileWrite:
		return "FileWrite"
	case ErrParse:
		return "Parse"
	case ErrValidation:
		return "Validation"
	case ErrConflict:
		return "Conflict"
	case ErrConfig:
		return "Config"
	case ErrTranslation:
		return "Translation"
	default:
		return "Unknown"
	}
}

// Advice returns a hint for the user about how to resolve err.
func Advice(err error) string {
	var svcErr *Error
	if !errors.As(err, &svcErr) {
		return "Please review detailed error information and check relevant configuration and files"
	}
	switch svcErr.Type {
	case ErrNotFound:
		return "Please check that the job or subtitle id is correct; finished jobs are pruned after a while"
	case ErrFileRead:
		return "Please check that the file exists, is readable and uses the .srt extension"
	case ErrFileWrite:
		return "Please ensure the output directory exists and has write permissions"
	case ErrParse:
		return "Please verify the file is SRT: numbered blocks with a timecode line and text, separated by blank lines"
	case ErrValidation:
		return "Please verify the settings: allocations between 0 and 100, batch size between 1 and 50, a target language"
	case ErrConflict:
		return "The job already finished; submit the file again to translate it once more"
	case ErrConfig:
		return "Please check that configuration files or environment variables are set correctly"
	case ErrTranslation:
		return "An issue occurred during translation, possibly API limits or an overlong batch; try a smaller batch size"
	default:
		return "Please review detailed error information and check relevant configuration and files"
	}
}

// Handle logs err together with its advice and reports whether it was a
// service error.
func Handle(err error) bool {
	var svcErr *Error
	if !errors.As(err, &svcErr) {
		log.Error("Unknown Error: %v", err)
		return false
	}
	log.Error("Error Detail: %v\n advice: %s", err, Advice(err))
	return true
}

func IsErrorType(err error, errorType ErrorType) bool {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Type == errorType
	}
	return false
}

func WrapError(err error, errorType ErrorType, message string) *Error {
	return NewErrorWithCause(errorType, message, err)
}

// SafeExecute runs fn and turns a panic into an ErrUnknown error.
func SafeExecute(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewError(ErrUnknown, fmt.Sprintf("runtime error: %v", r))
		}
	}()

	return fn()
}
