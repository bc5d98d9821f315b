package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareCountsByStatus(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/route-ok", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/route-teapot", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "418"))
	for _, path := range []string{"/route-ok", "/route-teapot"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}
	assert.Equal(t, before+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "418")))
}

func TestObserveUpstream(t *testing.T) {
	Init()
	before := testutil.ToFloat64(upstreamRequestsTotal.WithLabelValues("503"))
	retries := testutil.ToFloat64(upstreamRetriesTotal)
	ObserveUpstream(503, 20*time.Millisecond)
	ObserveRetry()
	require.Equal(t, before+1, testutil.ToFloat64(upstreamRequestsTotal.WithLabelValues("503")))
	require.Equal(t, retries+1, testutil.ToFloat64(upstreamRetriesTotal))
}
