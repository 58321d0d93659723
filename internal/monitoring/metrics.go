package monitoring

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// StoreLatency records store operation latency by operation name.
	StoreLatency *prometheus.HistogramVec

	// RetentionDeletedTotal counts rows removed by the retention sweeper.
	RetentionDeletedTotal *prometheus.CounterVec

	// EncryptionEventsTotal counts envelope encryption events.
	EncryptionEventsTotal *prometheus.CounterVec

	// DBPoolOpenConnections tracks the number of currently open database connections.
	DBPoolOpenConnections prometheus.Gauge

	// DBPoolMaxConnections tracks the configured maximum database connections.
	DBPoolMaxConnections prometheus.Gauge
)

// Encryption event label values.
const (
	EventDEKCreated    = "dek_created"
	EventDEKCacheHit   = "dek_cache_hit"
	EventKEKMissing    = "kek_missing"
	EventDecryptFailed = "decrypt_failed"
)

var validLabelKey = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ParseMetricsLabels parses a comma-separated list of key=value pairs into
// Prometheus labels. Values support ${VAR} / $VAR environment variable expansion.
// Label values may not contain commas. Returns nil for an empty string.
func ParseMetricsLabels(s string) (prometheus.Labels, error) {
	s = os.Expand(s, os.Getenv)
	if s == "" {
		return nil, nil
	}
	labels := prometheus.Labels{}
	for _, pair := range strings.Split(s, ",") {
		idx := strings.IndexByte(pair, '=')
		if idx < 0 {
			return nil, fmt.Errorf("invalid label %q: expected key=value", pair)
		}
		k, v := pair[:idx], pair[idx+1:]
		if !validLabelKey.MatchString(k) {
			return nil, fmt.Errorf("invalid label key %q: must match [a-zA-Z_][a-zA-Z0-9_]*", k)
		}
		labels[k] = v
	}
	return labels, nil
}

var initMetricsOnce sync.Once

// InitMetrics registers all Prometheus metrics with the given constant labels.
// Safe to call multiple times; only the first call registers. Until it is
// called every recording helper in this package is a no-op.
func InitMetrics(constLabels prometheus.Labels) {
	initMetricsOnce.Do(func() {
		initMetricsInner(constLabels)
	})
}

func initMetricsInner(constLabels prometheus.Labels) {
	reg := prometheus.WrapRegistererWith(constLabels, prometheus.DefaultRegisterer)
	f := promauto.With(reg)

	httpRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_store_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "status"},
	)

	httpRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_store_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	StoreLatency = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_store_store_latency_seconds",
			Help:    "Store operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	RetentionDeletedTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_store_retention_deleted_total",
			Help: "Rows hard-deleted by the retention sweeper",
		},
		[]string{"kind"},
	)

	EncryptionEventsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_store_encryption_events_total",
			Help: "Envelope encryption events",
		},
		[]string{"event"},
	)

	DBPoolOpenConnections = f.NewGauge(prometheus.GaugeOpts{
		Name: "chat_store_db_pool_open_connections",
		Help: "Number of open database connections",
	})

	DBPoolMaxConnections = f.NewGauge(prometheus.GaugeOpts{
		Name: "chat_store_db_pool_max_connections",
		Help: "Maximum number of database connections",
	})
}

// ObserveStore records the latency of a store operation started at start.
func ObserveStore(op string, start time.Time) {
	if StoreLatency == nil {
		return
	}
	StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// RecordRetentionDeleted adds n deleted rows of the given kind.
func RecordRetentionDeleted(kind string, n int64) {
	if RetentionDeletedTotal == nil || n <= 0 {
		return
	}
	RetentionDeletedTotal.WithLabelValues(kind).Add(float64(n))
}

// RecordEncryptionEvent counts one encryption event.
func RecordEncryptionEvent(event string) {
	if EncryptionEventsTotal == nil {
		return
	}
	EncryptionEventsTotal.WithLabelValues(event).Inc()
}

// SetDBPoolStats publishes connection pool gauges.
func SetDBPoolStats(open, max int) {
	if DBPoolOpenConnections == nil {
		return
	}
	DBPoolOpenConnections.Set(float64(open))
	DBPoolMaxConnections.Set(float64(max))
}

// MetricsMiddleware records HTTP request metrics for Prometheus.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if httpRequestsTotal == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		httpRequestsTotal.WithLabelValues(c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method).Observe(duration.Seconds())
	}
}
