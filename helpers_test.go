package httpscope

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

//
// Mocks
//

type recordingTimeline struct {
	mu       sync.Mutex
	measures []Measurement
}

func (r *recordingTimeline) AddMeasure(m Measurement) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.measures = append(r.measures, m)
}

func (r *recordingTimeline) Measures() []Measurement {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Measurement(nil), r.measures...)
}

type recordingExceptions struct {
	mu   sync.Mutex
	errs []error
}

func (r *recordingExceptions) AddException(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recordingExceptions) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

type stubMetricsSink struct {
	mu       sync.Mutex
	measures []Measurement
	events   []string
}

func (s *stubMetricsSink) ObserveMeasurement(m Measurement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.measures = append(s.measures, m)
}

func (s *stubMetricsSink) ObserveEvent(name string, _ map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, name)
}

func (s *stubMetricsSink) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

// stepClock returns a clock advancing by step on every call.
func stepClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	cur := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := cur
		cur = cur.Add(step)
		return now
	}
}

//
// Helper functions
//

// teapotResponse builds the response of a server answering 418.
func teapotResponse(req *http.Request) *http.Response {
	return &http.Response{
		Status:     "418 I'm a teapot",
		StatusCode: http.StatusTeapot,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     make(http.Header),
		Request:    req,
	}
}

// statusServer answers /status/{code} with that status code and everything else with 200.
func statusServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if code, ok := strings.CutPrefix(r.URL.Path, "/status/"); ok {
			if n, err := strconv.Atoi(code); err == nil {
				w.WriteHeader(n)
				return
			}
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok"))
	}))
}
