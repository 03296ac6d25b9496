package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerExposesCounters(t *testing.T) {
	Redirects.WithLabelValues("found").Inc()
	Clicks.WithLabelValues("Search Engine").Inc()

	rec := httptest.NewRecorder()
	Handler(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `redirect_requests_total{outcome="found"}`)
	assert.Contains(t, string(body), `clicks_recorded_total{category="Search Engine"}`)
}

func TestCounterValues(t *testing.T) {
	before := testutil.ToFloat64(ClickWriteFailures.WithLabelValues("insert"))
	ClickWriteFailures.WithLabelValues("insert").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(ClickWriteFailures.WithLabelValues("insert")))
}
