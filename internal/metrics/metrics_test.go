package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAreSafeForConcurrentUse(t *testing.T) {
	m := NewMetrics()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.IncrementCounter("matches_created")
		}()
	}
	wg.Wait()

	require.Equal(t, int64(50), m.GetCounters()["matches_created"])
}

func TestRecordTimerTracksMinMax(t *testing.T) {
	m := NewMetrics()
	m.RecordTimer("create_match", 30)
	m.RecordTimer("create_match", 10)
	m.RecordTimer("create_match", 20)

	timer := m.GetTimers()["create_match"]
	assert.Equal(t, int64(3), timer.Count)
	assert.Equal(t, int64(10), timer.MinTimeMs)
	assert.Equal(t, int64(30), timer.MaxTimeMs)
	assert.InDelta(t, 20.0, timer.AverageTimeMs, 0.001)
}

func TestRecordOperationSplitsOutcomes(t *testing.T) {
	m := NewMetrics()
	m.RecordOperation("update_delivery_status", time.Now(), nil)
	m.RecordOperation("update_delivery_status", time.Now(), errors.New("boom"))

	rate := m.GetErrorRates()["update_delivery_status"]
	assert.Equal(t, int64(2), rate.Total)
	assert.Equal(t, int64(1), rate.Errors)
	assert.InDelta(t, 50.0, rate.ErrorRate, 0.001)
}

func TestNilCollectorIgnoresDomainHelpers(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordOperation("x", time.Now(), nil)
		m.RecordTransition("delivery", "assigned", "picked_up")
		m.RecordDBQuery("select", time.Millisecond, nil)
	})
}

func TestHealthChecks(t *testing.T) {
	m := NewMetrics()
	m.SetHealth("database", true)
	m.SetHealth("redis", false)

	checks := m.GetHealthChecks()
	assert.True(t, checks["database"])
	assert.False(t, checks["redis"])
}
