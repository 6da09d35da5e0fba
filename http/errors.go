package http

import (
	"errors"
	"fmt"
	nethttp "net/http"
)

var (
	// ErrEmptyBody is returned when a successful response carries no content.
	ErrEmptyBody = errors.New("http: empty response body")

	// ErrTooLarge is returned when a response body exceeds the fetch limit.
	ErrTooLarge = errors.New("http: response body too large")

	// ErrBadURL is returned when a URL cannot be requested at all, such as a
	// relative path or a non-http scheme. No request is sent.
	ErrBadURL = errors.New("http: url cannot be fetched")
)

// StatusError reports a non-2xx response.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("http: unexpected status %s", e.Status)
	}
	return fmt.Sprintf("http: unexpected status %d", e.Code)
}

// Client reports whether the status is a client error that will not change
// on retry. Request timeouts (408) and rate limits (429) are not.
func (e *StatusError) Client() bool {
	if e.Code == nethttp.StatusRequestTimeout || e.Code == nethttp.StatusTooManyRequests {
		return false
	}
	return e.Code >= 400 && e.Code < 500
}
