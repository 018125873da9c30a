package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_ObserveParse(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveParse("native", "success", 2*time.Second, 3, 0, 12)
	m.ObserveParse("ocr", "quota", time.Second, 1, 2, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.parses.WithLabelValues("native", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.parses.WithLabelValues("ocr", "quota")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.pages.WithLabelValues("native")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.pages.WithLabelValues("ocr")))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.transactions))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveParse("native", "success", time.Second, 1, 0, 1)
		m.ObserveExport("csv", "single")
		m.ObserveQuotaDenial("monthly")
		m.ObserveBatchFile("success")
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.ObserveExport("excel", "bulk")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `statement_desk_exports_total{format="excel",scope="bulk"} 1`)
}
