package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ai_pro_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"route", "method", "code"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ai_pro_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})

	// Assistant metrics
	assistantRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ai_pro_assistant_request_duration_seconds",
		Help:    "Duration of assistant reply requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "status"})

	assistantRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ai_pro_assistant_requests_total",
		Help: "Total number of assistant reply requests",
	}, []string{"provider", "status"})

	// Cache metrics
	cacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ai_pro_page_cache_hits_total",
		Help: "Total number of page cache hits",
	}, []string{"page"})

	cacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ai_pro_page_cache_misses_total",
		Help: "Total number of page cache misses",
	}, []string{"page"})

	// Rate limit metrics
	rateLimitExceeded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ai_pro_rate_limit_exceeded_total",
		Help: "Total number of rate limit exceeded events",
	})

	// Content store metrics
	storeOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ai_pro_store_operations_total",
		Help: "Total number of content store operations",
	}, []string{"operation", "status"})

	storeOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ai_pro_store_operation_duration_seconds",
		Help:    "Duration of content store operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// Conversation metrics
	messagesAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ai_pro_conversation_messages_appended_total",
		Help: "Total number of messages appended to conversations",
	}, []string{"role"})
)

// Store operation outcomes.
const (
	StatusOK       = "ok"
	StatusNotFound = "not_found"
	StatusError    = "error"
)

// Metrics provides methods to record metrics. A nil *Metrics records nothing.
type Metrics struct{}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordRequest records a served HTTP request
func (m *Metrics) RecordRequest(route, method string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	httpRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	httpRequestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordAssistantRequest records an assistant reply request
func (m *Metrics) RecordAssistantRequest(provider, status string, duration time.Duration) {
	if m == nil {
		return
	}
	assistantRequestDuration.WithLabelValues(provider, status).Observe(duration.Seconds())
	assistantRequestsTotal.WithLabelValues(provider, status).Inc()
}

// RecordCacheHit records a page cache hit
func (m *Metrics) RecordCacheHit(page string) {
	if m == nil {
		return
	}
	cacheHits.WithLabelValues(page).Inc()
}

// RecordCacheMiss records a page cache miss
func (m *Metrics) RecordCacheMiss(page string) {
	if m == nil {
		return
	}
	cacheMisses.WithLabelValues(page).Inc()
}

// RecordRateLimitExceeded records a rejected request
func (m *Metrics) RecordRateLimitExceeded() {
	if m == nil {
		return
	}
	rateLimitExceeded.Inc()
}

// RecordStoreOperation records a content store call
func (m *Metrics) RecordStoreOperation(operation, status string, duration time.Duration) {
	if m == nil {
		return
	}
	storeOperations.WithLabelValues(operation, status).Inc()
	storeOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordMessageAppended records a message written to a conversation
func (m *Metrics) RecordMessageAppended(role string) {
	if m == nil {
		return
	}
	messagesAppended.WithLabelValues(role).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// HTTPMetrics records count and latency per matched route template.
func HTTPMetrics(m *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			route := "unmatched"
			if current := mux.CurrentRoute(r); current != nil {
				if tpl, err := current.GetPathTemplate(); err == nil {
					route = tpl
				}
			}
			m.RecordRequest(route, r.Method, rec.status, time.Since(start))
		})
	}
}

// NewMetricsServer builds the metrics HTTP server
func NewMetricsServer(port int, path string) *http.Server {
	router := mux.NewRouter()
	router.Handle(path, promhttp.Handler())

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// StartMetricsServer starts the metrics HTTP server
func StartMetricsServer(port int, path string) error {
	return NewMetricsServer(port, path).ListenAndServe()
}
