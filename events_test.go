package httpscope

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSubscriber struct {
	before, complete, failed int
	err                      error
}

func (c *countingSubscriber) OnBefore(*http.Request) { c.before++ }

func (c *countingSubscriber) OnComplete(*http.Request, *http.Response) error {
	c.complete++
	return c.err
}

func (c *countingSubscriber) OnError(*http.Request, *http.Response, error) error {
	c.failed++
	return c.err
}

func TestEmitterDispatchesToAllSubscribers(t *testing.T) {
	first := &countingSubscriber{}
	second := &countingSubscriber{}
	e := NewEmitter(first, second)
	req, err := http.NewRequest(http.MethodGet, "http://example.com", nil)
	require.NoError(t, err)

	d := e.EmitBefore(req)
	require.Equal(t, 2, d.Len())
	require.NoError(t, d.Complete(req, teapotResponse(req)))
	require.NoError(t, d.Error(req, nil, errors.New("x")))

	for _, s := range []*countingSubscriber{first, second} {
		assert.Equal(t, 1, s.before)
		assert.Equal(t, 1, s.complete)
		assert.Equal(t, 1, s.failed)
	}
}

func TestEmitterJoinsSubscriberErrors(t *testing.T) {
	failing := &countingSubscriber{err: ErrNotStarted}
	healthy := &countingSubscriber{}
	e := NewEmitter(failing, healthy)
	req, err := http.NewRequest(http.MethodGet, "http://example.com", nil)
	require.NoError(t, err)

	err = e.EmitBefore(req).Complete(req, teapotResponse(req))
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.Equal(t, 1, healthy.complete, "later subscribers still receive the event")
}

func TestEmitterDetach(t *testing.T) {
	var e Emitter
	sub := &countingSubscriber{}
	detach := e.Attach(sub)
	other := e.Attach(&countingSubscriber{})
	require.Equal(t, 2, e.Len())

	detach()
	assert.Equal(t, 1, e.Len())
	detach()
	assert.Equal(t, 1, e.Len())

	req, err := http.NewRequest(http.MethodGet, "http://example.com", nil)
	require.NoError(t, err)
	e.EmitBefore(req)
	assert.Zero(t, sub.before)

	other()
	assert.Zero(t, e.Len())
}

func TestEmitterDrivesTracker(t *testing.T) {
	timeline := &recordingTimeline{}
	tracker := NewTracker(timeline)
	e := NewEmitter(tracker)
	req, err := http.NewRequest(http.MethodGet, "http://httpbin.org/status/418", nil)
	require.NoError(t, err)

	d := e.EmitBefore(req)
	require.NoError(t, d.Complete(req, teapotResponse(req)))
	require.Len(t, timeline.Measures(), 1)

	assert.ErrorIs(t, d.Complete(req, teapotResponse(req)), ErrNotStarted)
}

func TestDispatchKeepsSubscribersOfBefore(t *testing.T) {
	var e Emitter
	early := &countingSubscriber{}
	detach := e.Attach(early)
	req, err := http.NewRequest(http.MethodGet, "http://example.com", nil)
	require.NoError(t, err)

	d := e.EmitBefore(req)
	late := &countingSubscriber{err: ErrNotStarted}
	e.Attach(late)
	detach()

	require.NoError(t, d.Complete(req, teapotResponse(req)))
	assert.Equal(t, 1, early.complete, "detached after before, still gets the closing event")
	assert.Zero(t, late.complete, "attached after before, never gets the closing event")
}
