// Package errors defines the closed error taxonomy used across the engine. Each code is a
// distinguishable error kind via errors.As, not a parallel ad-hoc string.
package errors

import "fmt"

// Code is one of the closed set of error codes the engine can surface.
type Code string

const (
	BadRequest           Code = "BadRequest"
	Unauthorized         Code = "Unauthorized"
	ConversationBusy     Code = "ConversationBusy"
	RetrievalUnavailable Code = "RetrievalUnavailable"
	EmbeddingError       Code = "EmbeddingError"
	LLMUnavailable       Code = "LLMUnavailable"
	RateLimited          Code = "RateLimited"
	InternalError        Code = "InternalError"
)

// Error is a coded, wrappable error. The Orchestrator maps it directly to
// an {"type":"error","code":...,"message":...} frame.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates a coded error with no cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Is reports whether err (or anything it wraps) carries the given code.
func Is(err error, code Code) bool {
	var e *Error
	for err != nil {
		if ae, ok := err.(*Error); ok {
			e = ae
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return e != nil && e.Code == code
}
