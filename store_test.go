package httpscope

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeasurementStoreStopWithoutStart(t *testing.T) {
	s := NewMeasurementStore()
	_, err := s.Stop("missing")
	require.ErrorIs(t, err, ErrNotStarted)
	assert.Contains(t, err.Error(), "missing")
}

func TestMeasurementStoreStartStop(t *testing.T) {
	s := NewMeasurementStore()
	start := time.Unix(100, 0)

	s.Start("a", start)
	assert.True(t, s.Pending("a"))
	assert.Equal(t, 1, s.Len())

	got, err := s.Stop("a")
	require.NoError(t, err)
	assert.Equal(t, start, got)
	assert.Zero(t, s.Len())

	_, err = s.Stop("a")
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestMeasurementStoreRestartOverwrites(t *testing.T) {
	s := NewMeasurementStore()
	s.Start("a", time.Unix(1, 0))
	s.Start("a", time.Unix(2, 0))
	assert.Equal(t, 1, s.Len())

	got, err := s.Stop("a")
	require.NoError(t, err)
	assert.Equal(t, time.Unix(2, 0), got)
}

func TestMeasurementStoreKeysAreIndependent(t *testing.T) {
	s := NewMeasurementStore()
	s.Start("a", time.Unix(1, 0))
	s.Start("b", time.Unix(2, 0))

	_, err := s.Stop("a")
	require.NoError(t, err)

	got, err := s.Stop("b")
	require.NoError(t, err)
	assert.Equal(t, time.Unix(2, 0), got)
}

func TestMeasurementStoreConcurrentUse(t *testing.T) {
	s := NewMeasurementStore()
	const n = 200

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := RequestKey(fmt.Sprintf("k%d", i))
			ts := time.Unix(int64(i), 0)
			s.Start(key, ts)
			got, err := s.Stop(key)
			assert.NoError(t, err)
			assert.Equal(t, ts, got)
		}()
	}
	wg.Wait()
	assert.Zero(t, s.Len())
}
