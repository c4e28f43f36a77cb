package lms

import (
	"fmt"
)

// AuthError indicates token acquisition or validation failed. It is fatal to
// the current call; the client clears the cached token and retries at most
// once before surfacing it.
type AuthError struct {
	Status int
	Msg    string
}

func (e *AuthError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("authentication failed (status %d): %s", e.Status, e.Msg)
	}
	return fmt.Sprintf("authentication failed: %s", e.Msg)
}

// APIError indicates the remote API rejected the request with a non-transient
// client error (4xx other than 401/429). It is never retried.
type APIError struct {
	Status   int
	Endpoint string
	Body     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d on %s: %s", e.Status, e.Endpoint, e.Body)
}

// RetryExhaustedError indicates the request kept failing transiently until the
// attempt budget ran out.
type RetryExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Last
}
