package gateway

import (
	"fmt"
)

// Kind classifies a failed GenerateContent call.
type Kind int

const (
	// KindExhausted means every usable key/model combination failed.
	KindExhausted Kind = iota
	// KindFatal means the provider rejected the request in a way retrying
	// cannot fix.
	KindFatal
	// KindCanceled means the caller's context ended first.
	KindCanceled
	// KindInvalidRequest means the input never reached a provider.
	KindInvalidRequest
)

func (k Kind) String() string {
	switch k {
	case KindExhausted:
		return "exhausted"
	case KindFatal:
		return "fatal"
	case KindCanceled:
		return "canceled"
	case KindInvalidRequest:
		return "invalid_request"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is.
var (
	ErrExhausted      = &Error{Kind: KindExhausted}
	ErrFatal          = &Error{Kind: KindFatal}
	ErrCanceled       = &Error{Kind: KindCanceled}
	ErrInvalidRequest = &Error{Kind: KindInvalidRequest}
)

// Error is the only error type GenerateContent returns. Its message names
// neither keys nor provider text; the underlying cause is available through
// Unwrap for logging.
type Error struct {
	Kind     Kind
	Attempts int
	Cause    error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindExhausted:
		return fmt.Sprintf("gateway: all keys and models exhausted after %d attempts", e.Attempts)
	case KindFatal:
		return fmt.Sprintf("gateway: request failed permanently after %d attempts", e.Attempts)
	case KindCanceled:
		return "gateway: request canceled"
	case KindInvalidRequest:
		if e.Cause != nil {
			return fmt.Sprintf("gateway: invalid request: %v", e.Cause)
		}
		return "gateway: invalid request"
	default:
		return "gateway: unknown error"
	}
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same Kind, so the package sentinels work with
// errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}
