package httpscope

import (
	"fmt"
	"net/http"
)

// ClientOption is a functional option for NewClient.
type ClientOption func(*clientConfig)

type clientConfig struct {
	timeouts    Timeouts
	middlewares []Middleware
	transport   []TransportOption
	base        http.RoundTripper
}

// WithTimeouts configures the timeouts of the client and its transport.
func WithTimeouts(t Timeouts) ClientOption {
	return func(c *clientConfig) { c.timeouts = t }
}

// WithMiddleware adds middlewares between the tracking transport and the network transport.
func WithMiddleware(mws ...Middleware) ClientOption {
	return func(c *clientConfig) { c.middlewares = append(c.middlewares, mws...) }
}

// WithTransportOptions configures the tracking transport.
func WithTransportOptions(opts ...TransportOption) ClientOption {
	return func(c *clientConfig) { c.transport = append(c.transport, opts...) }
}

// WithBaseTransport replaces the network transport. Timeouts other than Total are ignored
// when a base transport is given.
func WithBaseTransport(rt http.RoundTripper) ClientOption {
	return func(c *clientConfig) { c.base = rt }
}

// NewClient builds an http.Client whose requests are reported to the subscribers.
func NewClient(subs []Subscriber, opts ...ClientOption) (*http.Client, error) {
	cfg := &clientConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.timeouts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid timeouts: %w", err)
	}

	base := cfg.base
	if base == nil {
		base = cfg.timeouts.transport()
	}
	emitter := NewEmitter(subs...)
	rt := NewTransport(Stack(base, cfg.middlewares...), emitter, cfg.transport...)

	return &http.Client{Transport: rt, Timeout: cfg.timeouts.Total}, nil
}

// InstrumentClient returns a copy of c whose transport reports requests to sub. The copy
// keeps the redirect policy, cookie jar and timeout of c.
func InstrumentClient(c *http.Client, sub Subscriber, opts ...TransportOption) *http.Client {
	if c == nil {
		c = http.DefaultClient
	}
	return &http.Client{
		Transport:     NewTransport(c.Transport, NewEmitter(sub), opts...),
		CheckRedirect: c.CheckRedirect,
		Jar:           c.Jar,
		Timeout:       c.Timeout,
	}
}
