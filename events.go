package httpscope

import (
	"errors"
	"net/http"
	"sync"
)

// Subscriber receives the lifecycle events of outgoing requests. Events for one request
// arrive in the order before, then complete or error. Events for distinct requests may
// arrive concurrently.
type Subscriber interface {
	// OnBefore is called before the request is sent.
	OnBefore(req *http.Request)
	// OnComplete is called when a response was received.
	OnComplete(req *http.Request, resp *http.Response) error
	// OnError is called when the exchange failed. resp is nil for transport failures.
	OnError(req *http.Request, resp *http.Response, err error) error
}

// Emitter dispatches lifecycle events to attached subscribers. The zero value is ready to use.
type Emitter struct {
	mu          sync.RWMutex
	subscribers []*subscription
}

type subscription struct {
	sub Subscriber
}

// NewEmitter returns an emitter with the given subscribers attached.
func NewEmitter(subs ...Subscriber) *Emitter {
	e := &Emitter{}
	for _, s := range subs {
		e.Attach(s)
	}
	return e
}

// Attach registers sub and returns a function detaching it again.
func (e *Emitter) Attach(sub Subscriber) (detach func()) {
	s := &subscription{sub: sub}
	e.mu.Lock()
	e.subscribers = append(e.subscribers, s)
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, cur := range e.subscribers {
			if cur == s {
				e.subscribers = append(e.subscribers[:i:i], e.subscribers[i+1:]...)
				break
			}
		}
	}
}

// Len returns the number of attached subscribers.
func (e *Emitter) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subscribers)
}

func (e *Emitter) snapshot() []*subscription {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]*subscription(nil), e.subscribers...)
}

// Dispatch is the set of subscribers a before event reached. The complete or error event of
// the same request goes to exactly this set, so subscribers attached or detached while the
// request is in flight see either both events or neither.
type Dispatch struct {
	subs []*subscription
}

// EmitBefore dispatches a before event and returns the Dispatch the request's closing event
// must go through.
func (e *Emitter) EmitBefore(req *http.Request) *Dispatch {
	d := &Dispatch{subs: e.snapshot()}
	for _, s := range d.subs {
		s.sub.OnBefore(req)
	}
	return d
}

// Len returns the number of subscribers in the dispatch set.
func (d *Dispatch) Len() int {
	return len(d.subs)
}

// Complete dispatches a complete event. Every subscriber is called; their errors are joined.
func (d *Dispatch) Complete(req *http.Request, resp *http.Response) error {
	var errs []error
	for _, s := range d.subs {
		if err := s.sub.OnComplete(req, resp); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Error dispatches an error event. Every subscriber is called; their errors are joined.
func (d *Dispatch) Error(req *http.Request, resp *http.Response, err error) error {
	var errs []error
	for _, s := range d.subs {
		if subErr := s.sub.OnError(req, resp, err); subErr != nil {
			errs = append(errs, subErr)
		}
	}
	return errors.Join(errs...)
}
