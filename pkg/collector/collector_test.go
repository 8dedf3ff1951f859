package collector

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jkbrsn/httpscope"
)

func measureAt(label string, start time.Time, d time.Duration) httpscope.Measurement {
	return httpscope.Measurement{
		Label:      label,
		Start:      start,
		End:        start.Add(d),
		Parameters: httpscope.Parameters{"method": "GET"},
		Category:   httpscope.Category,
	}
}

func TestCollectorImplementsSinks(_ *testing.T) {
	var _ httpscope.Timeline = &Collector{}
	var _ httpscope.ExceptionSink = &Collector{}
}

func TestCollectorRetention(t *testing.T) {
	c := New(WithMaxMeasures(2), WithMaxExceptions(1))
	start := time.Unix(0, 0)
	for i := range 3 {
		c.AddMeasure(measureAt(fmt.Sprintf("m%d", i), start, time.Second))
	}
	c.AddException(errors.New("first"))
	c.AddException(errors.New("second"))
	c.AddException(nil)

	measures := c.Measures()
	require.Len(t, measures, 2)
	assert.Equal(t, "m1", measures[0].Label)
	assert.Equal(t, "m2", measures[1].Label)

	exceptions := c.Exceptions()
	require.Len(t, exceptions, 1)
	assert.EqualError(t, exceptions[0], "second")
	assert.Equal(t, 2, c.Dropped())

	c.Reset()
	assert.Empty(t, c.Measures())
	assert.Empty(t, c.Exceptions())
	assert.Zero(t, c.Dropped())
}

func TestCollectorUnbounded(t *testing.T) {
	c := New(WithMaxMeasures(0))
	for range defaultMaxEntries + 5 {
		c.AddMeasure(httpscope.Measurement{})
	}
	assert.Len(t, c.Measures(), defaultMaxEntries+5)
}

func TestCollectorSnapshot(t *testing.T) {
	start := time.Unix(100, 0)
	c := New(WithStartTime(start))

	m := measureAt("GET http://example.com returned 200 OK", start.Add(time.Second), 250*time.Millisecond)
	m.Err = errors.New("GET http://example.com returned 503")
	c.AddMeasure(m)
	c.AddException(errors.New("connection reset"))

	snap := c.Snapshot()
	require.Len(t, snap.Measures, 1)
	rec := snap.Measures[0]
	assert.Equal(t, 1.0, rec.RelativeStart)
	assert.Equal(t, 1.25, rec.RelativeEnd)
	assert.Equal(t, 0.25, rec.Duration)
	assert.Equal(t, "250.00ms", rec.DurationStr)
	assert.Equal(t, "http", rec.Collector)
	assert.Equal(t, map[string]string{"method": "GET"}, rec.Params)
	assert.Equal(t, "GET http://example.com returned 503", rec.Error)

	assert.Equal(t, start.Add(1250*time.Millisecond), snap.End)
	assert.Equal(t, 1, snap.Count)
	assert.Equal(t, []ExceptionRecord{{Type: "*errors.errorString", Message: "connection reset"}},
		snap.Exceptions)
}

func TestCollectorMarshalJSON(t *testing.T) {
	c := New()
	c.AddMeasure(measureAt("GET /", time.Now(), time.Millisecond))

	data, err := c.MarshalJSON()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, sonic.Unmarshal(data, &decoded))
	assert.EqualValues(t, 1, decoded["count"])
	measures, ok := decoded["measures"].([]any)
	require.True(t, ok)
	assert.Len(t, measures, 1)
}

func TestCollectorWithTracker(t *testing.T) {
	c := New()
	tracker := httpscope.NewTracker(c, httpscope.WithExceptionSink(c))
	req, err := http.NewRequest(http.MethodGet, "http://example.com", nil)
	require.NoError(t, err)

	tracker.OnBefore(req)
	require.NoError(t, tracker.OnError(req, nil, errors.New("no route to host")))

	assert.Len(t, c.Measures(), 1)
	assert.Len(t, c.Exceptions(), 1)
}

func TestCollectorConcurrentUse(t *testing.T) {
	c := New(WithMaxMeasures(50))
	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.AddMeasure(httpscope.Measurement{})
			_ = c.Snapshot()
		}()
	}
	wg.Wait()
	assert.Len(t, c.Measures(), 50)
	assert.Equal(t, 50, c.Dropped())
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{500 * time.Microsecond, "500μs"},
		{1500 * time.Microsecond, "1.50ms"},
		{2500 * time.Millisecond, "2.50s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(tt.in))
	}
}
