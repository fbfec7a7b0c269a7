package obs

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPMetricsUseRoutePattern(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewHTTPMetrics("slaydrip", []float64{1, 10}, registry)

	r := chi.NewRouter()
	r.Use(metrics.Middleware)
	r.Get("/api/v1/invoices/{invoiceNo}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/invoices/INV-00001", nil))
	require.Equal(t, http.StatusNoContent, rr.Code)

	total := testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodGet, "/api/v1/invoices/{invoiceNo}", "204"))
	assert.Equal(t, float64(1), total)
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.InFlight))
	assert.Positive(t, testutil.CollectAndCount(metrics.ReqDur))
}

func TestMetricsReRegistrationReusesCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := NewDomainMetrics("slaydrip", registry)
	second := NewDomainMetrics("slaydrip", registry)

	second.Exchange("EVEN", nil)
	first.Exchange("REFUND", errors.New("boom"))
	assert.Equal(t, float64(1), testutil.ToFloat64(first.ExchangesTotal.WithLabelValues("EVEN")))
	assert.Equal(t, float64(1), testutil.ToFloat64(second.ExchangesTotal.WithLabelValues("error")))

	NewHTTPMetrics("slaydrip", nil, registry)
	NewHTTPMetrics("slaydrip", nil, registry)
}

func TestNilDomainMetricsIsNoop(t *testing.T) {
	var m *DomainMetrics
	m.Checkout(nil)
	m.Return(errors.New("x"))
	m.Exchange("EVEN", nil)
}

func TestRequestLoggerWritesStructuredLine(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "json", "info")

	r := chi.NewRouter()
	r.Use(RequestLogger{Logger: logger}.Middleware)
	r.Post("/api/v1/checkout", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{}`))
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "http_request", line["message"])
	assert.Equal(t, "/api/v1/checkout", line["route"])
	assert.Equal(t, float64(http.StatusCreated), line["status"])
	assert.Equal(t, float64(2), line["bytes"])
}
