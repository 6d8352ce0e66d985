package metrics

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), nil)

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.stepsTotal)
	assert.NotNil(t, collector.visionDecisionsTotal)
	assert.NotNil(t, collector.visitedNodes)
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordHTTPRequest("GET", "/status", 200, 10*time.Millisecond)
	collector.RecordHTTPRequest("GET", "/status", 204, 5*time.Millisecond)
	collector.RecordHTTPRequest("GET", "/status", 503, 5*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/status", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/status", "5xx")))
}

func TestCollector_RecordStep(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordStep("exploring", "ok", 200*time.Millisecond)
	collector.RecordStep("exploring", "ok", 300*time.Millisecond)
	collector.RecordStep("teleport_to_frontier", "failed", time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.stepsTotal.WithLabelValues("exploring", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.stepsTotal.WithLabelValues("teleport_to_frontier", "failed")))
	assert.Equal(t, 2, testutil.CollectAndCount(collector.stepDuration))
}

func TestCollector_RecordLoopGuard(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordLoopGuard("alternating")
	collector.RecordLoopGuard("alternating")
	collector.RecordLoopGuard("stale_cells")

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.loopGuardsTotal.WithLabelValues("alternating")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.loopGuardsTotal.WithLabelValues("stale_cells")))
}

func TestCollector_RecordVisionDecision(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordVisionDecision("", 1)
	collector.RecordVisionDecision("rate_limited", 3)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.visionDecisionsTotal.WithLabelValues("none")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.visionDecisionsTotal.WithLabelValues("rate_limited")))
	assert.Equal(t, 1, testutil.CollectAndCount(collector.visionAttempts))
}

func TestCollector_SetCoverage(t *testing.T) {
	ns := nextTestNamespace()
	collector := NewCollector(ns, zap.NewNop())

	collector.SetCoverage(10, 4, 3, 150)
	collector.SetCoverage(12, 5, 4, 180.5)

	assert.Equal(t, 12.0, testutil.ToFloat64(collector.visitedNodes))
	assert.Equal(t, 5.0, testutil.ToFloat64(collector.frontierSize))
	assert.Equal(t, 4.0, testutil.ToFloat64(collector.coveredCells))

	expected := fmt.Sprintf(`
# HELP %[1]s_coverage_distance_meters Accumulated travel distance in meters
# TYPE %[1]s_coverage_distance_meters gauge
%[1]s_coverage_distance_meters 180.5
`, ns)
	require.NoError(t, testutil.CollectAndCompare(collector.distanceMeters, strings.NewReader(expected)))
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			collector.RecordStep("single_option", "ok", time.Millisecond)
			collector.RecordVisionDecision("", 1)
			collector.SetCoverage(i, 0, 0, 0)
		}()
	}
	wg.Wait()

	assert.Equal(t, 10.0, testutil.ToFloat64(collector.stepsTotal.WithLabelValues("single_option", "ok")))
	assert.Equal(t, 10.0, testutil.ToFloat64(collector.visionDecisionsTotal.WithLabelValues("none")))
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"}, {301, "3xx"}, {404, "4xx"}, {500, "5xx"}, {100, "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusCode(tt.code), "code %d", tt.code)
	}
}
