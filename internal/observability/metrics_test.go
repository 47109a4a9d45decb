package observability_test

import (
	"testing"
	"time"

	"tubedl/internal/observability"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetrics(t *testing.T) {
	var m *observability.Metrics

	// none of these may panic
	m.RecordSessionStarted()
	m.RecordSessionCompleted()
	m.RecordSessionFailed("internal_error")
	m.RecordSessionBytes(10)
	m.SessionTimer()()
	m.SetRecords(1)
	m.RecordSwept(1)
	m.PublisherStarted("sse")()
	m.RecordEvent("sse", "completed")
	m.RecordFileWritten()
	m.RecordCleanup(1)
	m.RecordProviderRequest("mock", "ok")
	m.RecordProviderError("mock", "internal_error")
	m.RecordProxyRequest("p")
	m.RecordProxyFailure("p")
	m.SetProxiesAvailable(1)
	m.RecordHTTPRequest("GET", "/", 200, time.Second, 1)
}

func TestSessionMetrics(t *testing.T) {
	m := observability.NewWithRegistry(prometheus.NewRegistry())

	m.RecordSessionStarted()
	m.RecordSessionStarted()
	m.RecordSessionCompleted()
	m.RecordSessionFailed("stream_not_found")
	m.RecordSessionBytes(1000)
	m.RecordSessionBytes(-5)

	if got := testutil.ToFloat64(m.SessionsStarted); got != 2 {
		t.Errorf("SessionsStarted = %v, want 2", got)
	}

	if got := testutil.ToFloat64(m.SessionsInProgress); got != 0 {
		t.Errorf("SessionsInProgress = %v, want 0", got)
	}

	if got := testutil.ToFloat64(m.SessionsFailed.WithLabelValues("stream_not_found")); got != 1 {
		t.Errorf("SessionsFailed = %v, want 1", got)
	}

	if got := testutil.ToFloat64(m.SessionBytes); got != 1000 {
		t.Errorf("SessionBytes = %v, want 1000", got)
	}
}

func TestPublisherStarted(t *testing.T) {
	m := observability.NewWithRegistry(prometheus.NewRegistry())

	done := m.PublisherStarted("ws")
	if got := testutil.ToFloat64(m.PublishersActive.WithLabelValues("ws")); got != 1 {
		t.Errorf("PublishersActive = %v, want 1", got)
	}

	done()

	if got := testutil.ToFloat64(m.PublishersActive.WithLabelValues("ws")); got != 0 {
		t.Errorf("PublishersActive = %v, want 0", got)
	}
}
