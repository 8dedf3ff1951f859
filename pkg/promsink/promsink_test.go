package promsink

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jkbrsn/httpscope"
)

func TestMetricsImplementsSink(_ *testing.T) {
	var _ httpscope.MetricsSink = &Metrics{}
}

func TestMetricsThroughTracker(t *testing.T) {
	m := New()
	tracker := httpscope.NewTracker(nil, httpscope.WithMetricsSink(m))

	ok, err := http.NewRequest(http.MethodGet, "http://example.com/ok", nil)
	require.NoError(t, err)
	tracker.OnBefore(ok)
	require.NoError(t, tracker.OnComplete(ok, &http.Response{StatusCode: http.StatusOK, Request: ok}))

	down, err := http.NewRequest(http.MethodGet, "http://example.com/down", nil)
	require.NoError(t, err)
	tracker.OnBefore(down)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InFlight))
	require.NoError(t, tracker.OnError(down, nil, errors.New("refused")))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "example.com", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "example.com", "none")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransportFailures))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsTotal.WithLabelValues(httpscope.EventRequestStarted)))
	assert.Zero(t, testutil.ToFloat64(m.InFlight))
	assert.Equal(t, 2, testutil.CollectAndCount(m.RequestDuration))
}

func TestMetricsInFlightFollowsPending(t *testing.T) {
	m := New()
	tracker := httpscope.NewTracker(nil, httpscope.WithMetricsSink(m))
	req, err := http.NewRequest(http.MethodGet, "http://example.com/retry", nil)
	require.NoError(t, err)

	tracker.OnBefore(req)
	tracker.OnBefore(req)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InFlight), "a restart does not add a request")

	orphan, err := http.NewRequest(http.MethodGet, "http://example.com/orphan", nil)
	require.NoError(t, err)
	assert.Error(t, tracker.OnComplete(orphan, &http.Response{StatusCode: http.StatusOK, Request: orphan}))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InFlight))

	require.NoError(t, tracker.OnComplete(req, &http.Response{StatusCode: http.StatusOK, Request: req}))
	assert.Zero(t, testutil.ToFloat64(m.InFlight))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsTotal.WithLabelValues(httpscope.EventRequestStarted)))
}

func TestMetricsMeasurementWithoutURL(t *testing.T) {
	m := New()
	ms := httpscope.Measurement{Request: &http.Request{Method: http.MethodGet}}

	assert.NotPanics(t, func() { m.ObserveMeasurement(ms) })
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "", "none")))
}

func TestMetricsHandler(t *testing.T) {
	m := New()
	m.ObserveEvent(httpscope.EventUnpairedStop, nil)

	server := httptest.NewServer(m.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `httpscope_events_total{event="unpaired_stop"} 1`)
}
