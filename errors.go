package httpscope

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotStarted is returned when a measurement is stopped for a request that has no pending
// start. It signals that before/complete events were mis-paired by the event source.
var ErrNotStarted = errors.New("measurement not started")

// StatusError reports an exchange where the server answered with an error status.
type StatusError struct {
	Request  *http.Request
	Response *http.Response
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s returned %d", e.Request.Method, e.Request.URL, e.Response.StatusCode)
}

// StatusCode returns the status code of the response.
func (e *StatusError) StatusCode() int {
	return e.Response.StatusCode
}
