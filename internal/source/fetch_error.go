package source

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType classifies page fetch failures.
type ErrorType string

const (
	ErrTypeRateLimited ErrorType = "rate_limited"
	ErrTypeForbidden   ErrorType = "forbidden"
	ErrTypeNotFound    ErrorType = "not_found"
	ErrTypeUpstream    ErrorType = "upstream_failure"
	ErrTypeNetwork     ErrorType = "network"
	ErrTypeParse       ErrorType = "parse_error"
	ErrTypeUnexpected  ErrorType = "unexpected"
)

// FetchError is a classified failure to retrieve or parse a source page.
// It aborts the current cycle.
type FetchError struct {
	Type       ErrorType
	StatusCode int
	URL        string
	Cause      error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("source fetch %s: HTTP %d for %s", e.Type, e.StatusCode, e.URL)
	}

	return fmt.Sprintf("source fetch %s: %s for %s", e.Type, e.Cause, e.URL)
}

func (e *FetchError) Unwrap() error { return e.Cause }

// IsFetchError reports whether err is or wraps a FetchError.
func IsFetchError(err error) bool {
	var fetchErr *FetchError
	return errors.As(err, &fetchErr)
}

const (
	statusServerErrorLow  = 500
	statusServerErrorHigh = 599
)

// ClassifyHTTPStatus creates a FetchError from a non-success HTTP status code.
func ClassifyHTTPStatus(statusCode int, url string) *FetchError {
	cause := fmt.Errorf("HTTP %d", statusCode)

	switch {
	case statusCode == http.StatusTooManyRequests:
		return &FetchError{Type: ErrTypeRateLimited, StatusCode: statusCode, URL: url, Cause: cause}
	case statusCode == http.StatusForbidden:
		return &FetchError{Type: ErrTypeForbidden, StatusCode: statusCode, URL: url, Cause: cause}
	case statusCode == http.StatusNotFound, statusCode == http.StatusGone:
		return &FetchError{Type: ErrTypeNotFound, StatusCode: statusCode, URL: url, Cause: cause}
	case statusCode >= statusServerErrorLow && statusCode <= statusServerErrorHigh:
		return &FetchError{Type: ErrTypeUpstream, StatusCode: statusCode, URL: url, Cause: cause}
	default:
		return &FetchError{Type: ErrTypeUnexpected, StatusCode: statusCode, URL: url, Cause: cause}
	}
}

// ClassifyNetworkError creates a FetchError for network-level failures (DNS, timeout, etc.).
func ClassifyNetworkError(cause error, url string) *FetchError {
	return &FetchError{Type: ErrTypeNetwork, URL: url, Cause: cause}
}

// ClassifyParseError creates a FetchError for HTML parsing failures.
func ClassifyParseError(cause error, url string) *FetchError {
	return &FetchError{Type: ErrTypeParse, URL: url, Cause: cause}
}
