package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "kernelbox"

// Collector records orchestration and HTTP metrics.
type Collector struct {
	kernelsCreated  *prometheus.CounterVec
	kernelReadiness *prometheus.HistogramVec
	cellRuns        *prometheus.CounterVec
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New creates a Collector registered with registerer.
func New(registerer prometheus.Registerer) *Collector {
	factory := promauto.With(registerer)

	return &Collector{
		kernelsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "kernels_created_total",
				Help:      "Kernel creation attempts by image and result",
			},
			[]string{"image", "result"},
		),
		kernelReadiness: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "kernel_readiness_seconds",
				Help:      "Time from container creation to a terminal kernel status",
				Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10), // 250ms to ~2m
			},
			[]string{"status"},
		),
		cellRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cell_runs_total",
				Help:      "Cell executions by cell type and result",
			},
			[]string{"cell_type", "result"},
		),
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
			},
			[]string{"method", "route"},
		),
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// KernelCreated counts a kernel creation attempt.
func (c *Collector) KernelCreated(image string, err error) {
	c.kernelsCreated.WithLabelValues(image, result(err)).Inc()
}

// KernelStatus observes how long a kernel took to reach status.
func (c *Collector) KernelStatus(status string, waited time.Duration) {
	c.kernelReadiness.WithLabelValues(status).Observe(waited.Seconds())
}

// CellRun counts a cell execution.
func (c *Collector) CellRun(cellType string, err error) {
	if cellType == "" {
		cellType = "interactive"
	}
	c.cellRuns.WithLabelValues(cellType, result(err)).Inc()
}

// RecordRequest records one HTTP request.
func (c *Collector) RecordRequest(method, route string, status int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	c.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
