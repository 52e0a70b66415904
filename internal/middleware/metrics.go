package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "beehive"

// httpMetrics 聚合 HTTP 层指标，path 标签取 chi 路由模式而非实际路径，避免高基数。
type httpMetrics struct {
	requests     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	requestSize  *prometheus.HistogramVec
	responseSize *prometheus.HistogramVec
	inFlight     prometheus.Gauge
}

func newHTTPMetrics(reg prometheus.Registerer) *httpMetrics {
	factory := promauto.With(reg)
	return &httpMetrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			// 带 AI 分析的请求可能持续数十秒
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15, 30, 60},
		}, []string{"method", "path"}),
		// 上传请求体通常在 MB 级
		requestSize: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_size_bytes",
			Help:      "Declared HTTP request body size in bytes",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 9),
		}, []string{"method", "path"}),
		responseSize: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response body size in bytes",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
		}, []string{"method", "path"}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "http_active_requests",
			Help:      "Number of in-flight HTTP requests",
		}),
	}
}

var defaultHTTPMetrics = newHTTPMetrics(prometheus.DefaultRegisterer)

// Metrics 返回记录到默认 Prometheus 注册表的中间件。
func Metrics() func(http.Handler) http.Handler {
	return defaultHTTPMetrics.middleware
}

func (m *httpMetrics) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.inFlight.Inc()
		defer m.inFlight.Dec()

		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)

		path := routeLabel(r)
		m.requests.WithLabelValues(r.Method, path, strconv.Itoa(rw.statusCode)).Inc()
		m.duration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		m.responseSize.WithLabelValues(r.Method, path).Observe(float64(rw.bytes))
		if r.ContentLength > 0 {
			m.requestSize.WithLabelValues(r.Method, path).Observe(float64(r.ContentLength))
		}
	})
}

// routeLabel 必须在路由匹配之后调用，未匹配的请求统一记为 unmatched。
func routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

// responseWriter 记录状态码与写出的字节数，供指标与访问日志使用。
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	bytes       int
	wroteHeader bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += n
	return n, err
}

// Unwrap 让 http.ResponseController 能找到底层的 Flusher。
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
