package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/isdmx/kernelbox/endpoint"
	"github.com/isdmx/kernelbox/events"
	"github.com/isdmx/kernelbox/kernel"
)

// ParsePath resolves endpoint arguments for kernels.
const ParsePath = "/api/v1/cells/internal-endpoints/parse"

// ParseRequest is the body of the parse route.
type ParseRequest struct {
	Config     endpoint.Config `json:"config"`
	RequestURI string          `json:"requestUri" binding:"required"`
}

// KernelLister exposes the orchestrator's kernel states.
type KernelLister interface {
	Kernels() []kernel.KernelState
	Kernel(id string) (kernel.KernelState, bool)
}

// RequestRecorder receives one observation per HTTP request.
type RequestRecorder interface {
	RecordRequest(method, route string, status int, duration time.Duration)
}

// Handlers serves the orchestrator HTTP surface.
type Handlers struct {
	logger   *zap.Logger
	sink     events.Sink
	kernels  KernelLister
	gatherer prometheus.Gatherer
	recorder RequestRecorder
}

// Option defines a functional option for Handlers
type Option func(*Handlers)

// WithGatherer exposes gatherer on /metrics
func WithGatherer(gatherer prometheus.Gatherer) Option {
	return func(h *Handlers) {
		h.gatherer = gatherer
	}
}

// WithRequestRecorder records every request with recorder
func WithRequestRecorder(recorder RequestRecorder) Option {
	return func(h *Handlers) {
		h.recorder = recorder
	}
}

// New creates Handlers publishing relayed cell output to sink.
func New(logger *zap.Logger, sink events.Sink, kernels KernelLister, opts ...Option) *Handlers {
	h := &Handlers{
		logger:   logger.Named("httpapi"),
		sink:     sink,
		kernels:  kernels,
		gatherer: prometheus.DefaultGatherer,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Router returns the gin engine with every route registered.
func (h *Handlers) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(h.observe())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))

	v1 := router.Group("/api/v1")
	v1.POST("/cells/internal-endpoints/parse", h.parse)
	v1.POST("/cells/", h.relay)
	v1.GET("/kernels", h.listKernels)
	v1.GET("/kernels/:id", h.getKernel)

	return router
}

func (h *Handlers) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)

		if h.recorder != nil {
			h.recorder.RecordRequest(c.Request.Method, c.FullPath(), c.Writer.Status(), latency)
		}
		h.logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()))
	}
}

func (h *Handlers) parse(c *gin.Context) {
	var req ParseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	args, err := endpoint.ParseRequest(req.Config, req.RequestURI)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, args)
}

func (h *Handlers) relay(c *gin.Context) {
	var out events.CellOutput
	if err := c.ShouldBindJSON(&out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	text := strings.Join(out.Lines, "")
	result := events.CodeResult{ID: out.CellID, Output: "", StreamType: out.StreamType}
	if out.StreamType == "stderr" {
		result.Error = text
	} else {
		result.Output = text
	}

	if err := h.sink.Publish(c.Request.Context(), events.NewCodeResult(out.Channel, result)); err != nil {
		h.logger.Error("failed to publish cell output", zap.String("cell", out.CellID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handlers) listKernels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"kernels": h.kernels.Kernels()})
}

func (h *Handlers) getKernel(c *gin.Context) {
	state, ok := h.kernels.Kernel(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "kernel " + c.Param("id") + " not found"})
		return
	}
	c.JSON(http.StatusOK, state)
}
