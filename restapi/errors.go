package restapi

import (
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
)

// NetworkError is returned when the server could not be reached at all.
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ResponseError is returned for any non-2xx response.
type ResponseError struct {
	Method  string
	URL     string
	Status  int
	Message string
	Body    string
	TraceID string
}

func (e *ResponseError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("%s %s failed with status %d: %s", e.Method, e.URL, e.Status, msg)
}

// IsNetworkError reports whether err was caused by the server being unreachable.
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// StatusCode returns the HTTP status carried by err, if any.
func StatusCode(err error) (int, bool) {
	var re *ResponseError
	if errors.As(err, &re) {
		return re.Status, true
	}
	return 0, false
}
