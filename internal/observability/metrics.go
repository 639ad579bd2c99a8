package observability

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/signalsfoundry/layered-infill/core"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// InfillCollector bundles Prometheus metrics for the infill engine and its
// transports, and provides helpers to wire them into gRPC servers and HTTP
// handlers.
type InfillCollector struct {
	gatherer prometheus.Gatherer

	RPCRequests  *prometheus.CounterVec
	RPCDurations *prometheus.HistogramVec

	HTTPRequests *prometheus.CounterVec

	Generations         *prometheus.CounterVec
	GenerationDurations *prometheus.HistogramVec

	RegistryPatterns prometheus.Gauge
	RegistryTiles    prometheus.Gauge

	TileCacheRequests *prometheus.CounterVec
}

// NewInfillCollector registers the engine's Prometheus metrics against the
// provided registerer, defaulting to the global Prometheus registry when nil.
func NewInfillCollector(reg prometheus.Registerer) (*InfillCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	requests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "infill_rpc_requests_total",
		Help: "Total number of handled infill RPCs, labeled by service, method, and gRPC status code.",
	}, []string{"service", "method", "code"}), "infill_rpc_requests_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "infill_rpc_request_duration_seconds",
		Help:    "Infill RPC latency in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"service", "method"}), "infill_rpc_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	httpRequests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "infill_http_requests_total",
		Help: "Total number of HTTP gateway requests, labeled by route and status code.",
	}, []string{"route", "code"}), "infill_http_requests_total")
	if err != nil {
		return nil, err
	}

	generations, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "infill_generations_total",
		Help: "Generation requests by pattern and outcome kind.",
	}, []string{"pattern", "kind"}), "infill_generations_total")
	if err != nil {
		return nil, err
	}

	genDurations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "infill_generation_duration_seconds",
		Help:    "Time spent validating and composing one layer.",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"pattern"}), "infill_generation_duration_seconds")
	if err != nil {
		return nil, err
	}

	patterns, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "infill_registry_patterns",
		Help: "Number of patterns in the loaded tile registry.",
	}), "infill_registry_patterns")
	if err != nil {
		return nil, err
	}
	tileCount, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "infill_registry_tiles",
		Help: "Number of tiles in the loaded tile registry.",
	}), "infill_registry_tiles")
	if err != nil {
		return nil, err
	}

	cacheRequests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "infill_tile_cache_requests_total",
		Help: "Scaled-tile cache lookups, labeled by result (hit or miss).",
	}, []string{"result"}), "infill_tile_cache_requests_total")
	if err != nil {
		return nil, err
	}

	return &InfillCollector{
		gatherer:            gatherer,
		RPCRequests:         requests,
		RPCDurations:        durations,
		HTTPRequests:        httpRequests,
		Generations:         generations,
		GenerationDurations: genDurations,
		RegistryPatterns:    patterns,
		RegistryTiles:       tileCount,
		TileCacheRequests:   cacheRequests,
	}, nil
}

// UnaryServerInterceptor records request counts and durations for unary RPCs.
func (c *InfillCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		if c == nil {
			return resp, err
		}

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		service, method := SplitMethod(fullMethod)
		code := status.Code(err).String()

		if c.RPCRequests != nil {
			c.RPCRequests.WithLabelValues(service, method, code).Inc()
		}
		if c.RPCDurations != nil {
			c.RPCDurations.WithLabelValues(service, method).Observe(time.Since(start).Seconds())
		}

		return resp, err
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *InfillCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *InfillCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveGeneration satisfies core.GenerationRecorder. Requests for unknown
// patterns are folded into a single "unknown" label to bound cardinality.
func (c *InfillCollector) ObserveGeneration(pattern string, kind core.Kind, d time.Duration) {
	if c == nil {
		return
	}
	if kind == core.KindPatternNotFound || pattern == "" {
		pattern = "unknown"
	}
	outcome := string(kind)
	if kind == core.KindNone {
		outcome = "OK"
	}
	if c.Generations != nil {
		c.Generations.WithLabelValues(pattern, outcome).Inc()
	}
	if c.GenerationDurations != nil {
		c.GenerationDurations.WithLabelValues(pattern).Observe(d.Seconds())
	}
}

// ObserveTileCache satisfies core.CacheRecorder.
func (c *InfillCollector) ObserveTileCache(hit bool) {
	if c == nil || c.TileCacheRequests == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.TileCacheRequests.WithLabelValues(result).Inc()
}

// ObserveHTTP records one gateway request.
func (c *InfillCollector) ObserveHTTP(route string, code int) {
	if c == nil || c.HTTPRequests == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	c.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// SetRegistryCounts updates the registry gauges after a load.
func (c *InfillCollector) SetRegistryCounts(patterns, tiles int) {
	if c == nil {
		return
	}
	if c.RegistryPatterns != nil {
		c.RegistryPatterns.Set(float64(patterns))
	}
	if c.RegistryTiles != nil {
		c.RegistryTiles.Set(float64(tiles))
	}
}

// SplitMethod parses a fully-qualified gRPC method name into service and method
// components. It tolerates empty strings and partial paths, returning
// "unknown"/"unknown" when parsing fails.
func SplitMethod(fullMethod string) (string, string) {
	if fullMethod == "" {
		return "unknown", "unknown"
	}
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 2 {
		return "unknown", "unknown"
	}
	service := parts[len(parts)-2]
	method := parts[len(parts)-1]
	if dot := strings.LastIndex(service, "."); dot >= 0 && dot+1 < len(service) {
		service = service[dot+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
