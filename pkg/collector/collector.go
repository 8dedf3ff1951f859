// Package collector keeps the measurements and exceptions of a debugging session in memory
// and renders them as a JSON snapshot.
package collector

import (
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/jkbrsn/httpscope"
)

const defaultMaxEntries = 1000

// Option is a functional option for the Collector struct.
type Option func(*Collector)

// WithMaxMeasures bounds the number of retained measurements. The oldest are dropped first.
// Values below 1 disable the bound.
func WithMaxMeasures(n int) Option {
	return func(c *Collector) { c.maxMeasures = n }
}

// WithMaxExceptions bounds the number of retained exceptions. Values below 1 disable the
// bound.
func WithMaxExceptions(n int) Option {
	return func(c *Collector) { c.maxExceptions = n }
}

// WithStartTime sets the reference time relative offsets are computed against.
func WithStartTime(t time.Time) Option {
	return func(c *Collector) { c.start = t }
}

// Collector is an in-memory Timeline and ExceptionSink. It is safe for concurrent use.
type Collector struct {
	mu         sync.RWMutex
	start      time.Time
	measures   []httpscope.Measurement
	exceptions []error
	dropped    int

	maxMeasures   int
	maxExceptions int
}

// New creates a Collector retaining up to 1000 measurements and exceptions by default.
func New(opts ...Option) *Collector {
	c := &Collector{
		start:         time.Now(),
		maxMeasures:   defaultMaxEntries,
		maxExceptions: defaultMaxEntries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddMeasure records m.
func (c *Collector) AddMeasure(m httpscope.Measurement) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.measures = append(c.measures, m)
	if c.maxMeasures > 0 && len(c.measures) > c.maxMeasures {
		n := len(c.measures) - c.maxMeasures
		c.measures = append(c.measures[:0:0], c.measures[n:]...)
		c.dropped += n
	}
}

// AddException records err. Nil errors are ignored.
func (c *Collector) AddException(err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.exceptions = append(c.exceptions, err)
	if c.maxExceptions > 0 && len(c.exceptions) > c.maxExceptions {
		n := len(c.exceptions) - c.maxExceptions
		c.exceptions = append(c.exceptions[:0:0], c.exceptions[n:]...)
		c.dropped += n
	}
}

// Measures returns a copy of the retained measurements in arrival order.
func (c *Collector) Measures() []httpscope.Measurement {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]httpscope.Measurement(nil), c.measures...)
}

// Exceptions returns a copy of the retained exceptions in arrival order.
func (c *Collector) Exceptions() []error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]error(nil), c.exceptions...)
}

// Dropped returns how many entries were evicted by the retention bounds.
func (c *Collector) Dropped() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dropped
}

// Reset discards everything and restarts the relative clock.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.measures = nil
	c.exceptions = nil
	c.dropped = 0
	c.start = time.Now()
}

// MeasureRecord is the JSON form of a measurement.
type MeasureRecord struct {
	Label         string            `json:"label"`
	Start         time.Time         `json:"start"`
	End           time.Time         `json:"end"`
	RelativeStart float64           `json:"relative_start"`
	RelativeEnd   float64           `json:"relative_end"`
	Duration      float64           `json:"duration"`
	DurationStr   string            `json:"duration_str"`
	Params        map[string]string `json:"params"`
	Collector     string            `json:"collector"`
	Error         string            `json:"error,omitempty"`
}

// ExceptionRecord is the JSON form of an exception.
type ExceptionRecord struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Snapshot is a point-in-time view of the collector.
type Snapshot struct {
	Start       time.Time         `json:"start"`
	End         time.Time         `json:"end"`
	Duration    float64           `json:"duration"`
	DurationStr string            `json:"duration_str"`
	Measures    []MeasureRecord   `json:"measures"`
	Exceptions  []ExceptionRecord `json:"exceptions"`
	Count       int               `json:"count"`
	Dropped     int               `json:"dropped,omitempty"`
}

// Snapshot renders the collected data. Durations are in seconds; relative offsets are measured
// from the collector's start time.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	end := c.start
	measures := make([]MeasureRecord, 0, len(c.measures))
	for _, m := range c.measures {
		if m.End.After(end) {
			end = m.End
		}
		rec := MeasureRecord{
			Label:         m.Label,
			Start:         m.Start,
			End:           m.End,
			RelativeStart: m.Start.Sub(c.start).Seconds(),
			RelativeEnd:   m.End.Sub(c.start).Seconds(),
			Duration:      m.Duration().Seconds(),
			DurationStr:   FormatDuration(m.Duration()),
			Params:        m.Parameters,
			Collector:     m.Category,
		}
		if m.Err != nil {
			rec.Error = m.Err.Error()
		}
		measures = append(measures, rec)
	}

	exceptions := make([]ExceptionRecord, 0, len(c.exceptions))
	for _, err := range c.exceptions {
		exceptions = append(exceptions, ExceptionRecord{
			Type:    fmt.Sprintf("%T", err),
			Message: err.Error(),
		})
	}

	return Snapshot{
		Start:       c.start,
		End:         end,
		Duration:    end.Sub(c.start).Seconds(),
		DurationStr: FormatDuration(end.Sub(c.start)),
		Measures:    measures,
		Exceptions:  exceptions,
		Count:       len(measures),
		Dropped:     c.dropped,
	}
}

// MarshalJSON encodes the current snapshot.
func (c *Collector) MarshalJSON() ([]byte, error) {
	return sonic.Marshal(c.Snapshot())
}

// FormatDuration renders d the way a debug toolbar shows it: microseconds below a
// millisecond, milliseconds below a second, seconds with two decimals above.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dμs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%.2fms", float64(d)/float64(time.Millisecond))
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}
