// Package harlog records measurements as HAR 1.2 entries.
package harlog

import (
	"bytes"
	"cmp"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pb33f/harhar"

	"github.com/jkbrsn/httpscope"
)

// Version is the HAR format version written by the Recorder.
const Version = "1.2"

// Creator identifies the application that wrote an archive.
type Creator struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Archive is the top level HAR document.
type Archive struct {
	Log Log `json:"log"`
}

// Log is the HAR log object.
type Log struct {
	Version string         `json:"version"`
	Creator Creator        `json:"creator"`
	Entries []harhar.Entry `json:"entries"`
}

// Option is a functional option for the Recorder struct.
type Option func(*Recorder)

// WithCreator sets the creator written into archives.
func WithCreator(name, version string) Option {
	return func(r *Recorder) { r.creator = Creator{Name: name, Version: version} }
}

// WithMaxEntries bounds the number of retained entries, dropping the oldest first.
func WithMaxEntries(n int) Option {
	return func(r *Recorder) { r.maxEntries = n }
}

// Recorder is a Timeline converting every measurement into a HAR entry.
type Recorder struct {
	mu         sync.Mutex
	entries    []harhar.Entry
	creator    Creator
	maxEntries int
}

// NewRecorder creates an unbounded Recorder.
func NewRecorder(opts ...Option) *Recorder {
	r := &Recorder{creator: Creator{Name: "httpscope", Version: "dev"}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddMeasure converts m and appends it to the log.
func (r *Recorder) AddMeasure(m httpscope.Measurement) {
	entry := EntryFromMeasurement(m)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	if r.maxEntries > 0 && len(r.entries) > r.maxEntries {
		r.entries = slices.Delete(r.entries, 0, len(r.entries)-r.maxEntries)
	}
}

// Entries returns a copy of the recorded entries.
func (r *Recorder) Entries() []harhar.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.entries)
}

// Archive returns the current log as a HAR document.
func (r *Recorder) Archive() Archive {
	entries := r.Entries()
	if entries == nil {
		entries = []harhar.Entry{}
	}
	return Archive{Log: Log{Version: Version, Creator: r.creator, Entries: entries}}
}

// WriteTo writes the archive as JSON to w.
func (r *Recorder) WriteTo(w io.Writer) (int64, error) {
	data, err := sonic.Marshal(r.Archive())
	if err != nil {
		return 0, fmt.Errorf("encoding HAR archive: %w", err)
	}
	n, err := io.Copy(w, bytes.NewReader(data))
	return n, err
}

// WriteFile writes the archive to path, replacing any existing file.
func (r *Recorder) WriteFile(path string) error {
	f, err := os.Create(path) // #nosec G304 -- path is chosen by the operator
	if err != nil {
		return fmt.Errorf("creating HAR file: %w", err)
	}
	if _, err := r.WriteTo(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// EntryFromMeasurement converts a measurement into a HAR entry. Exchanges without a response
// are recorded with status 0, the convention browsers use for failed requests.
func EntryFromMeasurement(m httpscope.Measurement) harhar.Entry {
	total := millis(m.Duration())
	entry := harhar.Entry{
		Start:   m.Start.Format(time.RFC3339Nano),
		Time:    total,
		Timings: timings(m.Timing, total),
	}
	if m.Request != nil {
		entry.Request = request(m.Request)
	}
	if m.Response != nil {
		entry.Response = response(m.Response)
	}
	return entry
}

func request(req *http.Request) harhar.Request {
	r := harhar.Request{
		Method:      req.Method,
		HTTPVersion: httpVersion(req.Proto),
		Headers:     headers(req.Header),
		QueryParams: []harhar.NameValuePair{},
		Cookies:     cookies(req.Cookies()),
		HeadersSize: -1,
		BodySize:    bodySize(req.ContentLength),
	}
	if req.URL != nil {
		r.URL = req.URL.String()
		for name, values := range req.URL.Query() {
			for _, v := range values {
				r.QueryParams = append(r.QueryParams, harhar.NameValuePair{Name: name, Value: v})
			}
		}
	}
	slices.SortFunc(r.QueryParams, compareNV)
	if ct := req.Header.Get("Content-Type"); ct != "" {
		r.Body = harhar.BodyType{MIMEType: ct}
	}
	return r
}

func response(resp *http.Response) harhar.Response {
	size := 0
	if resp.ContentLength > 0 {
		size = int(resp.ContentLength)
	}
	return harhar.Response{
		StatusCode:  resp.StatusCode,
		StatusText:  statusText(resp),
		HTTPVersion: httpVersion(resp.Proto),
		Headers:     headers(resp.Header),
		Cookies:     cookies(resp.Cookies()),
		Body: harhar.BodyResponseType{
			Size:     size,
			MIMEType: resp.Header.Get("Content-Type"),
		},
		HeadersSize: -1,
		BodySize:    bodySize(resp.ContentLength),
	}
}

// timings maps the traced phases onto HAR timings. Phases that did not happen are -1; the
// remainder of the total that no phase accounts for is attributed to receive.
func timings(rt *httpscope.RequestTimes, total float64) harhar.Timings {
	t := harhar.Timings{DNS: -1, Connect: -1, SSL: -1, Wait: total}
	if rt == nil {
		return t
	}

	accounted := 0.0
	if rt.DNSLookup != nil {
		t.DNS = millis(*rt.DNSLookup)
		accounted += t.DNS
	}
	if rt.TCPConnect != nil {
		t.Connect = millis(*rt.TCPConnect)
		accounted += t.Connect
	}
	if rt.TLSHandshake != nil {
		t.SSL = millis(*rt.TLSHandshake)
		accounted += t.SSL
		// HAR counts ssl as part of connect
		if t.Connect >= 0 {
			t.Connect += t.SSL
		}
	}
	t.Wait = 0
	if rt.ServerProcessing != nil {
		t.Wait = millis(*rt.ServerProcessing)
		accounted += t.Wait
	}
	t.Receive = max(total-accounted, 0)
	return t
}

func headers(h http.Header) []harhar.NameValuePair {
	out := make([]harhar.NameValuePair, 0, len(h))
	for name, values := range h {
		for _, v := range values {
			out = append(out, harhar.NameValuePair{Name: name, Value: v})
		}
	}
	slices.SortFunc(out, compareNV)
	return out
}

func cookies(cs []*http.Cookie) []harhar.Cookie {
	out := make([]harhar.Cookie, 0, len(cs))
	for _, c := range cs {
		out = append(out, harhar.Cookie{Name: c.Name, Value: c.Value})
	}
	return out
}

func compareNV(a, b harhar.NameValuePair) int {
	return cmp.Or(strings.Compare(a.Name, b.Name), strings.Compare(a.Value, b.Value))
}

func statusText(resp *http.Response) string {
	if text, ok := strings.CutPrefix(resp.Status, strconv.Itoa(resp.StatusCode)+" "); ok && text != "" {
		return text
	}
	return http.StatusText(resp.StatusCode)
}

func httpVersion(proto string) string {
	if proto == "" {
		return "HTTP/1.1"
	}
	return proto
}

func bodySize(n int64) int {
	if n < 0 {
		return -1
	}
	return int(n)
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
