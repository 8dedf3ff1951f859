package httpscope

import (
	"fmt"
	"sync"
	"time"
)

// MeasurementStore holds the start time of every pending measurement, keyed by request.
// It is safe for concurrent use.
type MeasurementStore struct {
	mu      sync.Mutex
	pending map[RequestKey]time.Time
}

// NewMeasurementStore returns an empty store.
func NewMeasurementStore() *MeasurementStore {
	return &MeasurementStore{pending: make(map[RequestKey]time.Time)}
}

// Start records the start time for key, overwriting any pending entry.
func (s *MeasurementStore) Start(key RequestKey, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[key] = ts
}

// Stop removes the entry for key and returns its start time. It fails with ErrNotStarted when
// key has no pending entry.
func (s *MeasurementStore) Stop(key RequestKey) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start, ok := s.pending[key]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: request %s", ErrNotStarted, key)
	}
	delete(s.pending, key)
	return start, nil
}

// Pending reports whether key has a pending entry.
func (s *MeasurementStore) Pending(key RequestKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[key]
	return ok
}

// Len returns the number of pending entries.
func (s *MeasurementStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
