package httpscope

import (
	"errors"
	"net"
	"net/http"
	"time"
)

const (
	// defaultDialTimeout is the default timeout for network dial operations
	defaultDialTimeout = 5 * time.Second
)

// Timeouts configures the timeouts of a client built by NewClient.
// Zero values indicate no timeout (except where Go stdlib provides defaults).
type Timeouts struct {
	// Total is the overall timeout for the entire request, including connection establishment,
	// redirects, and reading the response body. Maps to http.Client.Timeout.
	// Zero means no timeout.
	Total time.Duration

	// ResponseHeader is the timeout waiting for the server's response headers after the request
	// has been written. Maps to http.Transport.ResponseHeaderTimeout.
	// Zero means no timeout.
	ResponseHeader time.Duration

	// IdleConn is the maximum duration an idle connection will remain in the connection pool.
	// Maps to http.Transport.IdleConnTimeout.
	IdleConn time.Duration

	// TLSHandshake is the maximum duration waiting for a TLS handshake to complete.
	// Maps to http.Transport.TLSHandshakeTimeout.
	// Zero uses the Go stdlib default.
	TLSHandshake time.Duration

	// Dial is the maximum duration waiting for a network dial to complete.
	// Zero uses the default (5 seconds). Negative values are invalid.
	Dial time.Duration
}

// Validate checks that the Timeouts configuration is valid.
func (t Timeouts) Validate() error {
	if t.Dial < 0 {
		return errors.New("Timeouts.Dial cannot be negative")
	}
	if t.Total < 0 || t.ResponseHeader < 0 || t.IdleConn < 0 || t.TLSHandshake < 0 {
		return errors.New("timeouts cannot be negative")
	}
	return nil
}

// transport returns a clone of http.DefaultTransport with the timeouts applied.
func (t Timeouts) transport() *http.Transport {
	tr := http.DefaultTransport.(*http.Transport).Clone()

	dial := t.Dial
	if dial == 0 {
		dial = defaultDialTimeout
	}
	dialer := &net.Dialer{Timeout: dial, KeepAlive: 30 * time.Second}
	tr.DialContext = dialer.DialContext

	if t.ResponseHeader > 0 {
		tr.ResponseHeaderTimeout = t.ResponseHeader
	}
	if t.IdleConn > 0 {
		tr.IdleConnTimeout = t.IdleConn
	}
	if t.TLSHandshake > 0 {
		tr.TLSHandshakeTimeout = t.TLSHandshake
	}
	return tr
}
