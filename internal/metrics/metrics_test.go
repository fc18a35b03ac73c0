package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewCollector(reg), reg
}

func TestNewCollectorRegistersAllFamilies(t *testing.T) {
	c, reg := newTestCollector(t)

	c.RunStarted()
	c.RunFinished("ranking_complete")
	c.RecordConflicts(map[string]int{"CRITICAL": 1})
	c.RecordRanked(1)
	c.RecordGenerationFailure()
	c.RecordFeedback("success")
	c.RecordLoopback()
	c.ObserveStage("detect", time.Millisecond)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 9)
}

func TestRunLifecycle(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RunStarted()
	c.RunStarted()
	assert.Equal(t, 2.0, testutil.ToFloat64(c.activeRuns))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.runsStarted))

	c.RunFinished("ranking_complete")
	c.RunFinished("generation_failed")
	assert.Equal(t, 0.0, testutil.ToFloat64(c.activeRuns))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runsFinished.WithLabelValues("generation_failed")))
}

func TestRecordConflictsSkipsZeroCounts(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordConflicts(map[string]int{"CRITICAL": 3, "HIGH": 0, "LOW": 2})

	assert.Equal(t, 3.0, testutil.ToFloat64(c.conflicts.WithLabelValues("CRITICAL")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.conflicts.WithLabelValues("LOW")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.conflicts))
}

func TestCounters(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordRanked(4)
	c.RecordRanked(2)
	c.RecordGenerationFailure()
	c.RecordFeedback("partial")
	c.RecordFeedback("partial")
	c.RecordLoopback()

	assert.Equal(t, 6.0, testutil.ToFloat64(c.solutionsRanked))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.generationFailures))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.feedback.WithLabelValues("partial")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.loopbacks))
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector

	assert.NotPanics(t, func() {
		c.RunStarted()
		c.RunFinished("failed")
		c.RecordConflicts(map[string]int{"LOW": 1})
		c.RecordRanked(1)
		c.RecordGenerationFailure()
		c.RecordFeedback("failed")
		c.RecordLoopback()
		c.ObserveStage("rank", time.Second)
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	c, reg := newTestCollector(t)
	c.RecordLoopback()

	srv := httptest.NewServer(NewServer("", reg).Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "conflict_engine_loopbacks_total 1")
}
