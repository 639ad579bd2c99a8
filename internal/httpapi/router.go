// Package httpapi is a JSON-over-HTTP gateway to the infill engine. Geometry
// travels as WKT so the endpoints are easy to drive with curl.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/signalsfoundry/layered-infill/internal/logging"
	"github.com/signalsfoundry/layered-infill/internal/rpc"
)

// HTTPRecorder receives one observation per handled request.
type HTTPRecorder interface {
	ObserveHTTP(route string, code int)
}

// Options configures NewRouter. Only Generator and Patterns are required.
type Options struct {
	Generator rpc.Generator
	Patterns  rpc.PatternLister
	Logger    logging.Logger
	Metrics   HTTPRecorder
	// MetricsHandler is mounted on GET /metrics when set.
	MetricsHandler http.Handler
}

// NewRouter builds the gateway engine.
func NewRouter(opts Options) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = logging.Noop()
	}
	h := &handlers{gen: opts.Generator, patterns: opts.Patterns}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(opts.Logger))
	if opts.Metrics != nil {
		r.Use(observe(opts.Metrics))
	}

	r.GET("/healthz", h.health)
	if opts.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(opts.MetricsHandler))
	}

	v1 := r.Group("/v1")
	v1.GET("/patterns", h.listPatterns)
	v1.GET("/patterns/:name", h.getPattern)
	v1.POST("/generate", h.generate)
	return r
}

// requestLogger attaches a request-scoped logger, honouring X-Request-ID.
func requestLogger(base logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if id := c.GetHeader("X-Request-ID"); id != "" {
			ctx = logging.ContextWithRequestID(ctx, id)
		}
		ctx, log := logging.WithRequestLogger(ctx, base.With(
			logging.String("method", c.Request.Method),
			logging.String("path", c.Request.URL.Path),
		))
		ctx = logging.ContextWithLogger(ctx, log)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-ID", logging.RequestIDFromContext(ctx))

		start := time.Now()
		c.Next()
		log.Debug(ctx, "http request",
			logging.Int("status", c.Writer.Status()),
			logging.Duration("duration", time.Since(start)),
		)
	}
}

func observe(m HTTPRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveHTTP(route, c.Writer.Status())
	}
}
