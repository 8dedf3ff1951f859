package httpscope

import "math/rand/v2"

// MetricsSink is a pluggable observer for measurements and tracker events.
// Implementations must be non-blocking or very fast; the tracker invokes the sink
// best-effort and does not wait for completion.
type MetricsSink interface {
	ObserveMeasurement(Measurement)
	ObserveEvent(name string, fields map[string]any)
}

// Event names reported to a MetricsSink.
const (
	EventRequestStarted   = "request_started"
	EventRequestCompleted = "request_completed"
	EventRequestFailed    = "request_failed"
	EventTransportFailure = "transport_failure"
	EventUnpairedStop     = "unpaired_stop"
)

// EventFieldPending is the event field holding the tracker's pending measurement count after
// the event, an int.
const EventFieldPending = "pending"

// sampledSink forwards measurements to the wrapped sink with probability rate. Events are
// never sampled.
type sampledSink struct {
	sink MetricsSink
	rate float64
}

func (s sampledSink) ObserveMeasurement(m Measurement) {
	if s.rate >= 1 || (s.rate > 0 && rand.Float64() < s.rate) {
		s.sink.ObserveMeasurement(m)
	}
}

func (s sampledSink) ObserveEvent(name string, fields map[string]any) {
	s.sink.ObserveEvent(name, fields)
}

// nopSink discards everything.
type nopSink struct{}

func (nopSink) ObserveMeasurement(Measurement)    {}
func (nopSink) ObserveEvent(string, map[string]any) {}
