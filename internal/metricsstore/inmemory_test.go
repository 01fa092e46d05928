package metricsstore_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lepak.sg/loadbench/internal/metricsstore"
)

func TestInMemory_OpenAssignsRunID(t *testing.T) {
	s := metricsstore.NewInMemory()
	runID, err := s.Open(1, map[string]any{"track": "geonames"})
	require.NoError(t, err)
	assert.NotEmpty(t, runID)
	assert.Equal(t, runID, s.RunID())
}

func TestInMemory_RecordAndClose(t *testing.T) {
	s := metricsstore.NewInMemory()
	_, err := s.Open(1, nil)
	require.NoError(t, err)

	s.Record(metricsstore.Point{Name: "latency", OperationName: "index", Value: 12.5})
	s.Record(metricsstore.Point{Name: "throughput", OperationName: "index", Value: 100})

	points, err := s.Close()
	require.NoError(t, err)
	assert.Len(t, points, 2)

	points2, err := s.Close()
	require.NoError(t, err)
	assert.Empty(t, points2)
}

func TestInMemory_QuantileReflectsRecordedLatencies(t *testing.T) {
	s := metricsstore.NewInMemory()
	_, err := s.Open(1, nil)
	require.NoError(t, err)

	for i := 1; i <= 100; i++ {
		s.Record(metricsstore.Point{Name: "latency", OperationName: "index", Value: float64(i)})
	}

	p50, ok := s.Quantile("index", "latency", 0.5)
	require.True(t, ok)
	assert.InDelta(t, 50, p50, 2)

	_, ok = s.Quantile("index", "service_time", 0.5)
	assert.False(t, ok)
}

func TestInMemory_RelativeResetUpdatesOrigin(t *testing.T) {
	s := metricsstore.NewInMemory()
	_, err := s.Open(1, nil)
	require.NoError(t, err)

	reset := time.Now().Add(time.Minute)
	s.RelativeReset(reset)
	assert.WithinDuration(t, reset, s.RelativeOrigin(), time.Millisecond)
}
