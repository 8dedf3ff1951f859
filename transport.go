package httpscope

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
)

// RoundTripperFunc adapts a function to the http.RoundTripper interface.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

// RoundTrip calls f(req).
func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

// Middleware wraps a RoundTripper with additional behaviour.
type Middleware func(next http.RoundTripper) http.RoundTripper

// Stack wraps base with the middlewares. The first middleware is the outermost one.
func Stack(base http.RoundTripper, mws ...Middleware) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	rt := base
	for i := len(mws) - 1; i >= 0; i-- {
		rt = mws[i](rt)
	}
	return rt
}

// ExceptionMiddleware forwards every error returned by the wrapped RoundTripper to sink and
// returns it unchanged.
func ExceptionMiddleware(sink ExceptionSink) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			resp, err := next.RoundTrip(req)
			if err != nil {
				sink.AddException(err)
			}
			return resp, err
		})
	}
}

// TrackingMiddleware returns a middleware emitting lifecycle events to emitter.
func TrackingMiddleware(emitter *Emitter, opts ...TransportOption) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return NewTransport(next, emitter, opts...)
	}
}

// TransportOption is a functional option for the Transport struct.
type TransportOption func(*Transport)

// Transport is an http.RoundTripper that tags every request with a fresh request token and
// emits its lifecycle events to an Emitter.
type Transport struct {
	base    http.RoundTripper
	emitter *Emitter
	logger  zerolog.Logger

	// phaseTiming attaches an httptrace recorder to every request.
	phaseTiming bool
	// statusErrors reports responses with status >= 400 as error events.
	statusErrors bool
}

// NewTransport creates a Transport sending requests through base, which defaults to
// http.DefaultTransport.
func NewTransport(base http.RoundTripper, emitter *Emitter, opts ...TransportOption) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	if emitter == nil {
		emitter = &Emitter{}
	}
	t := &Transport{
		base:         base,
		emitter:      emitter,
		logger:       zerolog.Nop(),
		phaseTiming:  true,
		statusErrors: true,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// WithPhaseTiming toggles recording of DNS, connect, TLS and server processing times.
func WithPhaseTiming(enabled bool) TransportOption {
	return func(t *Transport) { t.phaseTiming = enabled }
}

// WithStatusErrors toggles reporting of responses with status >= 400 as error events.
func WithStatusErrors(enabled bool) TransportOption {
	return func(t *Transport) { t.statusErrors = enabled }
}

// WithTransportLogger configures the logger used when event tracking fails.
func WithTransportLogger(logger zerolog.Logger) TransportOption {
	return func(t *Transport) { t.logger = logger }
}

// Emitter returns the emitter events are dispatched to.
func (t *Transport) Emitter() *Emitter {
	return t.emitter
}

// RoundTrip sends the request through the base transport and emits its lifecycle events.
// Every call mints a fresh request token, so the same request sent concurrently, or clones of
// one tagged request, are tracked apart. The closing event goes to the subscribers that saw
// the before event. A tracking error, i.e. a subscriber reporting a stop without a start, is
// returned to the caller.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.phaseTiming {
		req = req.WithContext(withTraceTimes(req.Context()))
	}
	req = newTag(req)

	dispatch := t.emitter.EmitBefore(req)
	resp, err := t.base.RoundTrip(req)

	var trackErr error
	switch {
	case err != nil:
		trackErr = dispatch.Error(req, resp, err)
	case t.statusErrors && resp.StatusCode >= http.StatusBadRequest:
		trackErr = dispatch.Error(req, resp, &StatusError{Request: req, Response: resp})
	default:
		trackErr = dispatch.Complete(req, resp)
	}
	if trackErr == nil {
		return resp, err
	}

	t.logger.Error().Err(trackErr).Str("method", req.Method).Str("url", requestURL(req)).
		Msg("request tracking failed")
	if err != nil {
		return resp, errors.Join(err, trackErr)
	}
	if resp.Body != nil {
		_ = resp.Body.Close()
	}
	return nil, fmt.Errorf("request tracking: %w", trackErr)
}
