package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestHTTPMetricsMiddleware_RecordsRequest(t *testing.T) {
	before := testutil.CollectAndCount(HTTPRequestsTotal)

	h := HTTPMetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/orders", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Greater(t, testutil.CollectAndCount(HTTPRequestsTotal), before)
}

func TestQueueCounters(t *testing.T) {
	EnqueueJob("orders", 1)
	got := testutil.ToFloat64(JobsEnqueuedTotal.WithLabelValues("orders", "1"))
	assert.GreaterOrEqual(t, got, 1.0)

	ReservationOutcome("ok")
	assert.GreaterOrEqual(t, testutil.ToFloat64(StockReservationsTotal.WithLabelValues("ok")), 1.0)
}
