package monitoring

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	ExamsGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_generated_total",
			Help: "Exam sessions served by generate-or-resume",
		},
		[]string{"resumed"},
	)

	ExamSubmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_submissions_total",
			Help: "Finalized exam sessions by verdict",
		},
		[]string{"verdict"},
	)

	FraudVerdicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proctoring_fraud_verdicts_total",
			Help: "Suspicious frame verdicts by reason",
		},
		[]string{"reason"},
	)

	VisionFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "proctoring_vision_failures_total",
			Help: "Frame classifications that failed open",
		},
	)

	VisionLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "proctoring_vision_duration_seconds",
			Help:    "Duration of frame classification calls",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20},
		},
	)

	MonitorTerminations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proctoring_terminations_total",
			Help: "Integrity monitor terminations by winning trigger",
		},
		[]string{"trigger"},
	)

	ProctorConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "proctoring_connections",
			Help: "Live proctoring websocket connections",
		},
	)

	SkippedSamples = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "proctoring_skipped_samples_total",
			Help: "Sampling ticks skipped because an analysis was still in flight",
		},
	)
)

var initOnce sync.Once

// Init 可重复调用，只注册一次
func Init() {
	initOnce.Do(register)
}

func register() {
	prometheus.MustRegister(RequestCounter)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(ExamsGenerated)
	prometheus.MustRegister(ExamSubmissions)
	prometheus.MustRegister(FraudVerdicts)
	prometheus.MustRegister(VisionFailures)
	prometheus.MustRegister(VisionLatency)
	prometheus.MustRegister(MonitorTerminations)
	prometheus.MustRegister(SkippedSamples)
	prometheus.MustRegister(ProctorConnections)
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
