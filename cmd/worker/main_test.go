package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	jobmetrics "github.com/noven-pro/receiving/internal/jobs"
	_ "github.com/noven-pro/receiving/internal/testing/guard"
)

func TestMainSkipsStartupInTestMode(t *testing.T) {
	main()
}

func TestMetricsMuxServesJobMetrics(t *testing.T) {
	metrics := jobmetrics.NewMetrics(nil)
	require.NoError(t, metrics.Track("receiving:quality_handoff").End(nil))

	rec := httptest.NewRecorder()
	metricsMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `receiving_jobs_total{job="receiving:quality_handoff",status="success"}`)

	rec = httptest.NewRecorder()
	metricsMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
