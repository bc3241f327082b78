package metrics

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	m := New()
	m.Fetched("township", 3)
	m.Fetched("township", 2)
	m.Stored("township", "GOVERNMENT")
	m.Stored("township", "GOVERNMENT")
	m.Failed("parks", FailureLayout)
	started := time.Unix(1757000000, 0)
	m.RunFinished(started, started.Add(2*time.Second))

	require.Equal(t, float64(5), testutil.ToFloat64(m.fetched.WithLabelValues("township")))
	require.Equal(t, float64(2), testutil.ToFloat64(m.stored.WithLabelValues("township", "GOVERNMENT")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.failures.WithLabelValues("parks", FailureLayout)))
	require.Equal(t, float64(1757000002), testutil.ToFloat64(m.lastRun))

	err := testutil.GatherAndCompare(m.registry, strings.NewReader(`
# HELP bainbridge_now_failures_total Ingestion failures by source and kind
# TYPE bainbridge_now_failures_total counter
bainbridge_now_failures_total{kind="layout",source="parks"} 1
`), "bainbridge_now_failures_total")
	require.NoError(t, err)

	t.Run("textfile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bainbridge_now.prom")
		require.NoError(t, m.WriteTextfile(path))
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Contains(t, string(data), `bainbridge_now_events_stored_total{event_type="GOVERNMENT",source="township"} 2`)
	})

	t.Run("handler", func(t *testing.T) {
		rec := httptest.NewRecorder()
		m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), "bainbridge_now_events_fetched_total")
	})
}
