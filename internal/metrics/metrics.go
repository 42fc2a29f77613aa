package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ikkim/catalog-admin/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"code", "method", "path"},
	)
	httpRequestsDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Current Number of HTTP requests being processed.",
		},
	)

	// StaleResponses counts resolver responses dropped because a newer
	// request or a close superseded them.
	StaleResponses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detail_session_stale_responses_total",
			Help: "Detail session responses discarded as stale.",
		},
		[]string{"operation"},
	)
	DetailSessionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "detail_sessions_open",
			Help: "Detail editing sessions currently held in memory.",
		},
	)
	ImportTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "import_batch_transitions_total",
			Help: "Import batch state changes by target state.",
		},
		[]string{"state"},
	)
	ProductSubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "product_submissions_total",
			Help: "Draft submissions to the catalog API by result.",
		},
		[]string{"result"},
	)
	StagedUploads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "staged_uploads_total",
			Help: "Staged upload acquisitions and releases.",
		},
		[]string{"op"},
	)
	VocabularyFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vocabulary_fetches_total",
			Help: "Vocabulary fetches from the catalog API by result.",
		},
		[]string{"result"},
	)
	HousekeepingSwept = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "housekeeping_swept_total",
			Help: "Items removed by the housekeeping scheduler by job.",
		},
		[]string{"job"},
	)
)

func init() {
	if err := prometheus.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		logger.Debug("ProcessCollector registration skipped (likely already registered)", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if err := prometheus.Register(collectors.NewGoCollector()); err != nil {
		logger.Debug("GoCollector registration skipped (likely already registered)", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// Middleware records request count and latency labelled by the route template.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpRequestsInFlight.Inc()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(strconv.Itoa(c.Writer.Status()), c.Request.Method, path).Inc()
		httpRequestsDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
		httpRequestsInFlight.Dec()
	}
}

// Handler serves the Prometheus /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
