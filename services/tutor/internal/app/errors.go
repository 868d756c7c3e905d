package app

import "errors"

var (
	ErrMessageRequired    = errors.New("message required")
	ErrInvalidContextType = errors.New("context_type must be doubt or summary")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionForbidden   = errors.New("session forbidden")
	ErrSubjectRequired    = errors.New("subject required")
	ErrInvalidLevel       = errors.New("level must be one of: beginner intermediate expert")
	ErrUserRequired       = errors.New("user id required")

	// ErrCompletionFailed wraps any failure of the language model call,
	// including the request timeout.
	ErrCompletionFailed = errors.New("completion failed")
)
