package httpscope

import (
	"context"
	"crypto/tls"
	"net/http/httptrace"
	"time"

	"go.uber.org/atomic"
)

// requestTimestamps stores the timestamps of a request's phases.
type requestTimestamps struct {
	start     time.Time
	dnsStart  time.Time
	dnsDone   time.Time
	connStart time.Time
	connDone  time.Time
	tlsStart  time.Time
	tlsDone   time.Time
	wroteDone time.Time
	firstByte time.Time
}

// RequestTimes is the connection phase breakdown of a traced request.
type RequestTimes struct {
	// Time when the connection was requested
	SentAt time.Time
	// Time when the first byte of the response was received
	ReceivedAt time.Time

	// Latency is the time from requesting a connection to receiving the first response byte.
	Latency time.Duration

	// Optional durations, nil when the phase did not happen (e.g. a reused connection)
	DNSLookup        *time.Duration
	TCPConnect       *time.Duration
	TLSHandshake     *time.Duration
	ServerProcessing *time.Duration
}

// ptr returns a pointer to the given value.
func ptr[T any](v T) *T { return &v }

// timeDataFromTimestamps derives the phase durations from raw timestamps.
func timeDataFromTimestamps(t requestTimestamps) RequestTimes {
	req := RequestTimes{}

	req.SentAt = t.start
	req.ReceivedAt = t.firstByte

	if !t.start.IsZero() && !t.firstByte.IsZero() {
		req.Latency = t.firstByte.Sub(t.start)
	}
	if !t.dnsStart.IsZero() && !t.dnsDone.IsZero() {
		req.DNSLookup = ptr(t.dnsDone.Sub(t.dnsStart))
	}
	if !t.connStart.IsZero() && !t.connDone.IsZero() {
		req.TCPConnect = ptr(t.connDone.Sub(t.connStart))
	}
	if !t.tlsStart.IsZero() && !t.tlsDone.IsZero() {
		req.TLSHandshake = ptr(t.tlsDone.Sub(t.tlsStart))
	}
	if !t.wroteDone.IsZero() && !t.firstByte.IsZero() {
		req.ServerProcessing = ptr(t.firstByte.Sub(t.wroteDone))
	}

	return req
}

// traceTimes collects timestamps written from httptrace callbacks, which may run on
// transport goroutines.
type traceTimes struct {
	start     atomic.Time
	dnsStart  atomic.Time
	dnsDone   atomic.Time
	connStart atomic.Time
	connDone  atomic.Time
	tlsStart  atomic.Time
	tlsDone   atomic.Time
	wroteDone atomic.Time
	firstByte atomic.Time
}

// Snapshot copies the recorded timestamps.
func (t *traceTimes) Snapshot() requestTimestamps {
	return requestTimestamps{
		start:     t.start.Load(),
		dnsStart:  t.dnsStart.Load(),
		dnsDone:   t.dnsDone.Load(),
		connStart: t.connStart.Load(),
		connDone:  t.connDone.Load(),
		tlsStart:  t.tlsStart.Load(),
		tlsDone:   t.tlsDone.Load(),
		wroteDone: t.wroteDone.Load(),
		firstByte: t.firstByte.Load(),
	}
}

type traceTimesCtx struct{}

// withTraceTimes attaches a client trace recording into a new traceTimes.
func withTraceTimes(ctx context.Context) context.Context {
	times := &traceTimes{}
	ctx = context.WithValue(ctx, traceTimesCtx{}, times)
	return httptrace.WithClientTrace(ctx, traceRequest(times))
}

// requestTimesFromContext returns the phase breakdown recorded for the request context, or
// nil when the request was not traced.
func requestTimesFromContext(ctx context.Context) *RequestTimes {
	times, ok := ctx.Value(traceTimesCtx{}).(*traceTimes)
	if !ok {
		return nil
	}
	rt := timeDataFromTimestamps(times.Snapshot())
	return &rt
}

// traceRequest traces the HTTP request and stores the timestamps in the provided times.
func traceRequest(times *traceTimes) *httptrace.ClientTrace {
	return &httptrace.ClientTrace{
		// The earliest guaranteed callback is usually GetConn, so we set the start time there
		GetConn:           func(string) { times.start.Store(time.Now()) },
		DNSStart:          func(httptrace.DNSStartInfo) { times.dnsStart.Store(time.Now()) },
		DNSDone:           func(httptrace.DNSDoneInfo) { times.dnsDone.Store(time.Now()) },
		ConnectStart:      func(_, _ string) { times.connStart.Store(time.Now()) },
		ConnectDone:       func(_, _ string, _ error) { times.connDone.Store(time.Now()) },
		TLSHandshakeStart: func() { times.tlsStart.Store(time.Now()) },
		TLSHandshakeDone: func(_ tls.ConnectionState, _ error) {
			times.tlsDone.Store(time.Now())
		},
		WroteRequest: func(httptrace.WroteRequestInfo) {
			times.wroteDone.Store(time.Now())
		},
		GotFirstResponseByte: func() { times.firstByte.Store(time.Now()) },
	}
}
