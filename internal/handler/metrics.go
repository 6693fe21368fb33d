package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dispatchsim/internal/metrics"
)

// MetricsHandler serves the dashboard's metrics surface: a JSON snapshot, a
// websocket feed of the same snapshot, a CockroachDB-overview stub, and the
// Prometheus scrape endpoint.
type MetricsHandler struct {
	aggregator *metrics.Aggregator
	throughput *metrics.Throughput
	hub        *metrics.Hub
}

// NewMetricsHandler creates a new MetricsHandler. Gauges are registered
// separately against the default Prometheus registerer (see NewGauges);
// PrometheusHandler scrapes that same default registry.
func NewMetricsHandler(aggregator *metrics.Aggregator, throughput *metrics.Throughput, hub *metrics.Hub) *MetricsHandler {
	return &MetricsHandler{aggregator: aggregator, throughput: throughput, hub: hub}
}

// GetSnapshot handles GET /api/metrics
func (h *MetricsHandler) GetSnapshot(c *gin.Context) {
	snap, err := h.aggregator.Snapshot(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	ridesPerMinute, err := h.throughput.Sample(c.Request.Context())
	if err == nil {
		snap.RidesPerMinute = ridesPerMinute
	}

	if delay, ok := metrics.ConsistencyDelayMS(c.Request.Context()); ok {
		snap.ConsistencyDelay = &delay
	}

	respondJSON(c, http.StatusOK, snap)
}

// crdbOverviewResponse is the body of GET /api/crdb/overview. spec.md lists
// this endpoint as optional; with no cluster-introspection query
// configured it always reports unavailable rather than erroring the
// dashboard.
type crdbOverviewResponse struct {
	Unavailable bool   `json:"unavailable"`
	Reason      string `json:"reason,omitempty"`
}

// GetCRDBOverview handles GET /api/crdb/overview
func (h *MetricsHandler) GetCRDBOverview(c *gin.Context) {
	respondJSON(c, http.StatusOK, crdbOverviewResponse{
		Unavailable: true,
		Reason:      "no cluster introspection query configured",
	})
}

// ServeWS handles GET /api/metrics/ws, upgrading to a websocket connection
// that receives a Snapshot every tick of the hub's broadcast ticker.
func (h *MetricsHandler) ServeWS(c *gin.Context) {
	h.hub.ServeWS(c.Writer, c.Request)
}

// PrometheusHandler returns the http.Handler serving /metrics in the
// Prometheus exposition format.
func (h *MetricsHandler) PrometheusHandler() http.Handler {
	return promhttp.Handler()
}
