package httpscope

import (
	"errors"
	"net/http"
	"time"
)

// Category tags every measurement produced by this package.
const Category = "http"

// Measurement describes one completed or failed request.
type Measurement struct {
	Key        RequestKey
	Label      string
	Start      time.Time
	End        time.Time
	Parameters Parameters
	Category   string

	// Request and Response are the exchange itself. Response is nil on transport failure.
	Request  *http.Request
	Response *http.Response
	// Err is the error that ended the exchange, nil on success.
	Err error
	// Timing holds the connection phase breakdown, nil when the request was not traced.
	Timing *RequestTimes
}

// Duration returns End - Start.
func (m Measurement) Duration() time.Duration {
	return m.End.Sub(m.Start)
}

// Timeline stores measurements for display. Implementations must be fast and must not fail;
// the tracker calls them inline.
type Timeline interface {
	AddMeasure(Measurement)
}

// TimelineFunc adapts a function to the Timeline interface.
type TimelineFunc func(Measurement)

// AddMeasure calls f(m).
func (f TimelineFunc) AddMeasure(m Measurement) { f(m) }

// MultiTimeline fans a measurement out to several timelines in order.
type MultiTimeline []Timeline

// AddMeasure forwards m to every timeline.
func (mt MultiTimeline) AddMeasure(m Measurement) {
	for _, t := range mt {
		t.AddMeasure(m)
	}
}

// ExceptionSink records errors for inspection.
type ExceptionSink interface {
	AddException(error)
}

// ExceptionSinkFunc adapts a function to the ExceptionSink interface.
type ExceptionSinkFunc func(error)

// AddException calls f(err).
func (f ExceptionSinkFunc) AddException(err error) { f(err) }

// MultiExceptionSink fans an error out to several sinks in order.
type MultiExceptionSink []ExceptionSink

// AddException forwards err to every sink.
func (ms MultiExceptionSink) AddException(err error) {
	for _, s := range ms {
		s.AddException(err)
	}
}

// IsTransportFailure reports whether m describes an exchange that produced no response.
func (m Measurement) IsTransportFailure() bool {
	return m.Response == nil && m.Err != nil
}

// StatusCode returns the response status code, or 0 without a response.
func (m Measurement) StatusCode() int {
	if m.Response == nil {
		var se *StatusError
		if errors.As(m.Err, &se) {
			return se.StatusCode()
		}
		return 0
	}
	return m.Response.StatusCode
}
