// Package metrics exposes Prometheus collectors for the pipeline.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "edgarqa"

const (
	StatusOK    = "ok"
	StatusError = "error"
	StatusEmpty = "empty"
)

// Metrics holds every collector. The zero value is not usable; use New.
type Metrics struct {
	ChunksTotal        *prometheus.CounterVec
	SectionFailures    *prometheus.CounterVec
	UpsertBatches      *prometheus.CounterVec
	RetrievalsTotal    *prometheus.CounterVec
	RetrievalDuration  prometheus.Histogram
	AnswersTotal       *prometheus.CounterVec
	HTTPRequestsTotal  *prometheus.CounterVec
	HTTPRequestSeconds *prometheus.HistogramVec
}

// New registers the collectors on reg. A nil reg uses a private registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		ChunksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chunker",
			Name:      "chunks_total",
			Help:      "Chunks produced, by segmentation method",
		}, []string{"method"}),
		SectionFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chunker",
			Name:      "section_failures_total",
			Help:      "Sections skipped after a processing failure",
		}, []string{"method"}),
		UpsertBatches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "upsert_batches_total",
			Help:      "Vector upsert batches, by outcome",
		}, []string{"status"}),
		RetrievalsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "requests_total",
			Help:      "Retrievals, by outcome",
		}, []string{"status"}),
		RetrievalDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "duration_seconds",
			Help:      "Retrieval duration in seconds",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		AnswersTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "answer",
			Name:      "generations_total",
			Help:      "Answer generations, by outcome",
		}, []string{"status"}),
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"method", "path"}),
	}
}

func (m *Metrics) SectionProcessed(method string, chunks int) {
	m.ChunksTotal.WithLabelValues(method).Add(float64(chunks))
}

func (m *Metrics) SectionFailed(method string) {
	m.SectionFailures.WithLabelValues(method).Inc()
}

func (m *Metrics) UpsertBatch(ok bool) {
	m.UpsertBatches.WithLabelValues(status(ok)).Inc()
}

func (m *Metrics) Retrieval(outcome string, elapsed time.Duration) {
	m.RetrievalsTotal.WithLabelValues(outcome).Inc()
	m.RetrievalDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) Answer(outcome string) {
	m.AnswersTotal.WithLabelValues(outcome).Inc()
}

// Middleware records request counts and latency per route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = "unknown"
		}
		c.Next()
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestSeconds.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

func status(ok bool) string {
	if ok {
		return StatusOK
	}
	return StatusError
}
