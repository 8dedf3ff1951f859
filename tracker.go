package httpscope

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

// TrackerOption is a functional option for the Tracker struct.
type TrackerOption func(*Tracker)

// Tracker pairs the before/complete/error events of in-flight requests and emits one
// Measurement per request lifecycle. It implements Subscriber and is safe for concurrent use.
type Tracker struct {
	timeline   Timeline
	exceptions ExceptionSink
	metrics    MetricsSink
	logger     zerolog.Logger

	store  *MeasurementStore
	fields FieldSet
	labels LabelFormat
	now    func() time.Time

	started   atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	unpaired  atomic.Int64
}

// TrackerStats is a snapshot of the tracker's counters.
type TrackerStats struct {
	Started   int64
	Completed int64
	Failed    int64
	Unpaired  int64
	Pending   int
}

// NewTracker creates a Tracker emitting measurements to timeline.
func NewTracker(timeline Timeline, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		timeline: timeline,
		metrics:  nopSink{},
		logger:   zerolog.Nop(),
		store:    NewMeasurementStore(),
		fields:   DefaultFields(),
		labels:   LabelVerbose,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.timeline == nil {
		t.timeline = TimelineFunc(func(Measurement) {})
	}
	return t
}

// WithFields configures the parameters extracted for every measurement.
func WithFields(fields FieldSet) TrackerOption {
	return func(t *Tracker) { t.fields = fields }
}

// WithLabelFormat configures how measurement labels are rendered.
func WithLabelFormat(f LabelFormat) TrackerOption {
	return func(t *Tracker) { t.labels = f }
}

// WithExceptionSink configures the sink receiving transport failures.
func WithExceptionSink(sink ExceptionSink) TrackerOption {
	return func(t *Tracker) { t.exceptions = sink }
}

// WithLogger configures the logger used for error responses and tracking anomalies.
func WithLogger(logger zerolog.Logger) TrackerOption {
	return func(t *Tracker) { t.logger = logger }
}

// WithMetricsSink configures an observer for measurements and tracker events.
func WithMetricsSink(sink MetricsSink) TrackerOption {
	return func(t *Tracker) {
		if sink != nil {
			t.metrics = sink
		}
	}
}

// WithMetricsSampleRate samples the measurements forwarded to the metrics sink. Rates at or
// above 1 forward everything, rates at or below 0 forward nothing. Must be applied after
// WithMetricsSink.
func WithMetricsSampleRate(rate float64) TrackerOption {
	return func(t *Tracker) {
		if _, nop := t.metrics.(nopSink); nop {
			return
		}
		t.metrics = sampledSink{sink: t.metrics, rate: rate}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

// OnBefore starts the measurement for req. A pending measurement for the same request is
// overwritten.
func (t *Tracker) OnBefore(req *http.Request) {
	key := Identify(req)
	t.store.Start(key, t.now())
	t.started.Inc()

	t.logger.Debug().Str("key", string(key)).Str("method", req.Method).
		Str("url", requestURL(req)).Msg("measurement started")
	t.event(EventRequestStarted, map[string]any{"method": req.Method})
}

// OnComplete stops the measurement for req and emits it with the response. It returns an
// error wrapping ErrNotStarted when req has no pending measurement.
func (t *Tracker) OnComplete(req *http.Request, resp *http.Response) error {
	m, err := t.stop(req, resp, nil)
	if err != nil {
		return err
	}
	t.completed.Inc()
	t.emit(m)
	t.event(EventRequestCompleted, map[string]any{"status": m.StatusCode()})
	return nil
}

// OnError stops the measurement for a failed request. With a response the exchange is
// measured and logged as an error; without one the error is a transport failure, forwarded
// to the exception sink and measured with NULL status fields. It returns an error wrapping
// ErrNotStarted when req has no pending measurement.
func (t *Tracker) OnError(req *http.Request, resp *http.Response, err error) error {
	if resp == nil && err != nil {
		if t.exceptions != nil {
			t.exceptions.AddException(err)
		}
		t.event(EventTransportFailure, map[string]any{"error": err.Error()})
	}

	m, stopErr := t.stop(req, resp, err)
	if stopErr != nil {
		return stopErr
	}
	t.failed.Inc()

	if resp != nil {
		t.logger.Error().
			Str("request", requestLine(req)).
			Str("response", statusLine(resp)).
			Msgf("%s %s returned %d", req.Method, requestURL(req), resp.StatusCode)
	}

	t.emit(m)
	t.event(EventRequestFailed, map[string]any{"status": m.StatusCode()})
	return nil
}

// Pending returns the number of started measurements that were not stopped yet.
func (t *Tracker) Pending() int {
	return t.store.Len()
}

// Stats returns a snapshot of the tracker's counters.
func (t *Tracker) Stats() TrackerStats {
	return TrackerStats{
		Started:   t.started.Load(),
		Completed: t.completed.Load(),
		Failed:    t.failed.Load(),
		Unpaired:  t.unpaired.Load(),
		Pending:   t.store.Len(),
	}
}

// event reports name to the metrics sink along with the number of pending measurements.
func (t *Tracker) event(name string, fields map[string]any) {
	fields[EventFieldPending] = t.store.Len()
	t.metrics.ObserveEvent(name, fields)
}

// stop removes the pending entry for req and builds its measurement.
func (t *Tracker) stop(req *http.Request, resp *http.Response, err error) (Measurement, error) {
	end := t.now()
	key := Identify(req)

	start, stopErr := t.store.Stop(key)
	if stopErr != nil {
		t.unpaired.Inc()
		t.logger.Error().Err(stopErr).Str("method", req.Method).Str("url", requestURL(req)).
			Msg("stop without matching start")
		t.event(EventUnpairedStop, map[string]any{"key": string(key)})
		return Measurement{}, stopErr
	}
	if end.Before(start) {
		end = start
	}

	return Measurement{
		Key:        key,
		Label:      t.labels.Label(req, resp),
		Start:      start,
		End:        end,
		Parameters: ExtractParameters(req, resp, err, t.fields),
		Category:   Category,
		Request:    req,
		Response:   resp,
		Err:        err,
		Timing:     requestTimesFromContext(req.Context()),
	}, nil
}

func (t *Tracker) emit(m Measurement) {
	t.logger.Debug().Str("key", string(m.Key)).Dur("duration", m.Duration()).
		Msg("measurement stopped")
	t.timeline.AddMeasure(m)
	t.metrics.ObserveMeasurement(m)
}
