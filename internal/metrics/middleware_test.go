package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareRecordsRoutePattern(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/mw/tasks/{task_id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Post("/mw/tasks", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	notFoundBefore := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "404"))
	acceptedBefore := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodPost, "202"))

	for _, id := range []string{"a", "b"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/mw/tasks/"+id, nil))
	}
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/mw/tasks", nil))

	require.InDelta(t, notFoundBefore+2, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "404")), 0)
	require.InDelta(t, acceptedBefore+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodPost, "202")), 0)

	// Both task ids collapse into one route series.
	_, err := httpRequestDurationSeconds.GetMetricWithLabelValues(http.MethodGet, "/mw/tasks/{task_id}")
	require.NoError(t, err)
}

func TestMiddlewareDefaultsToOK(t *testing.T) {
	Init()
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodHead, "200"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodHead, "/plain", nil))

	require.InDelta(t, before+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodHead, "200")), 0)
}
