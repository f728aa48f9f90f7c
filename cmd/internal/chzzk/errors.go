package chzzk

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrMalformedResponse is returned when a 2xx response cannot be used.
var ErrMalformedResponse = errors.New("chzzk: malformed response")

// ErrChannelNotFound is returned when a channel lookup yields no entries.
var ErrChannelNotFound = errors.New("chzzk: channel not found")

// APIError is a non-2xx HTTP status or a non-2xx envelope code.
type APIError struct {
	Op      string
	Status  int
	Code    int
	Message string
	// Body is a truncated copy of the response body for logging.
	Body string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("chzzk: %s failed (%d): %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("chzzk: %s failed (%d): %s", e.Op, e.Status, e.Body)
}

// IsUnauthorized reports whether err is a rejected or expired credential.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == http.StatusUnauthorized || apiErr.Code == http.StatusUnauthorized
}
