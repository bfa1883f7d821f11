package confluence

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	ErrNotFound     = errors.New("confluence: not found")
	ErrUnauthorized = errors.New("confluence: authentication failed")
	ErrBotChallenge = errors.New("confluence: served a bot challenge instead of content")
)

// StatusError is a non-2xx answer from Confluence.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	// Start of the response body, for the logs.
	Body string
	// From Retry-After, if the server sent one we could parse.
	RetryAfter time.Duration
	// The body looked like an interstitial captcha/"checking your browser" page.
	Challenge bool
}

func (e *StatusError) Error() string {
	if e.Challenge {
		return fmt.Sprintf("confluence: %s %s: bot challenge (HTTP %d)", e.Method, e.URL, e.StatusCode)
	}
	if e.Body == "" {
		return fmt.Sprintf("confluence: %s %s: HTTP %d", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("confluence: %s %s: HTTP %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrBotChallenge:
		return e.Challenge
	case ErrUnauthorized:
		return !e.Challenge && (e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden)
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

func (e *StatusError) rateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

func (e *StatusError) transient() bool {
	return e.StatusCode == http.StatusRequestTimeout || e.StatusCode >= 500
}

func (e *StatusError) sessionProblem() bool {
	return e.Challenge || e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// RequestFailed is returned once a request has used up its retries, or a session refresh didn't
// help.  Last is the final underlying error.
type RequestFailed struct {
	URL      string
	Attempts int
	Last     error
}

func (e *RequestFailed) Error() string {
	return fmt.Sprintf("confluence: giving up on %s after %d attempt(s): %v", e.URL, e.Attempts, e.Last)
}

func (e *RequestFailed) Unwrap() error {
	return e.Last
}
