package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/signalsfoundry/layered-infill/core"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestUnaryInterceptorRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewInfillCollector(reg)
	if err != nil {
		t.Fatalf("NewInfillCollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/layeredinfill.v1.InfillService/Generate"}

	_, err = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		time.Sleep(5 * time.Millisecond)
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("interceptor handler returned error: %v", err)
	}

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("InfillService", "Generate", "OK")); got != 1 {
		t.Fatalf("infill_rpc_requests_total = %v, want 1", got)
	}

	if count := histogramSampleCount(t, reg, "infill_rpc_request_duration_seconds", map[string]string{
		"service": "InfillService",
		"method":  "Generate",
	}); count != 1 {
		t.Fatalf("infill_rpc_request_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestUnaryInterceptorRecordsErrorCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewInfillCollector(reg)
	if err != nil {
		t.Fatalf("NewInfillCollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/layeredinfill.v1.InfillService/Generate"}

	_, _ = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.NotFound, "no tile")
	})

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("InfillService", "Generate", "NotFound")); got != 1 {
		t.Fatalf("infill_rpc_requests_total error label = %v, want 1", got)
	}
}

func TestObserveGeneration(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewInfillCollector(reg)
	if err != nil {
		t.Fatalf("NewInfillCollector: %v", err)
	}

	collector.ObserveGeneration("grid", core.KindNone, 2*time.Millisecond)
	collector.ObserveGeneration("grid", core.KindNoTileForHeight, time.Millisecond)
	collector.ObserveGeneration("no-such-pattern", core.KindPatternNotFound, time.Millisecond)

	tests := []struct {
		pattern, kind string
		want          float64
	}{
		{pattern: "grid", kind: "OK", want: 1},
		{pattern: "grid", kind: "NoTileForHeight", want: 1},
		{pattern: "unknown", kind: "PatternNotFound", want: 1},
	}
	for _, tc := range tests {
		if got := testutil.ToFloat64(collector.Generations.WithLabelValues(tc.pattern, tc.kind)); got != tc.want {
			t.Fatalf("infill_generations_total{%s,%s} = %v, want %v", tc.pattern, tc.kind, got, tc.want)
		}
	}
	if count := histogramSampleCount(t, reg, "infill_generation_duration_seconds", map[string]string{"pattern": "grid"}); count != 2 {
		t.Fatalf("infill_generation_duration_seconds{grid} sample_count = %d, want 2", count)
	}
}

func TestTileCacheAndHTTPCounters(t *testing.T) {
	collector, err := NewInfillCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewInfillCollector: %v", err)
	}
	collector.ObserveTileCache(true)
	collector.ObserveTileCache(false)
	collector.ObserveTileCache(false)
	collector.ObserveHTTP("/v1/generate", http.StatusOK)
	collector.ObserveHTTP("", http.StatusNotFound)

	if got := testutil.ToFloat64(collector.TileCacheRequests.WithLabelValues("miss")); got != 2 {
		t.Fatalf("cache misses = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.HTTPRequests.WithLabelValues("unmatched", "404")); got != 1 {
		t.Fatalf("unmatched 404s = %v, want 1", got)
	}

	var nilCollector *InfillCollector
	nilCollector.ObserveTileCache(true)
	nilCollector.ObserveGeneration("grid", core.KindNone, 0)
	nilCollector.SetRegistryCounts(1, 1)
}

func TestMetricsHandlerExposesRegistryGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewInfillCollector(reg)
	if err != nil {
		t.Fatalf("NewInfillCollector: %v", err)
	}
	collector.SetRegistryCounts(3, 17)
	collector.RPCRequests.WithLabelValues("svc", "method", "OK").Inc()
	collector.RPCDurations.WithLabelValues("svc", "method").Observe(0.01)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"infill_rpc_requests_total",
		"infill_rpc_request_duration_seconds",
		"infill_registry_patterns 3",
		"infill_registry_tiles 17",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}
}

func TestNewInfillCollectorReusesRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewInfillCollector(reg)
	if err != nil {
		t.Fatalf("first NewInfillCollector: %v", err)
	}
	second, err := NewInfillCollector(reg)
	if err != nil {
		t.Fatalf("second NewInfillCollector: %v", err)
	}
	second.RPCRequests.WithLabelValues("a", "b", "OK").Inc()
	if got := testutil.ToFloat64(first.RPCRequests.WithLabelValues("a", "b", "OK")); got != 1 {
		t.Fatalf("collectors do not share registered vectors: %v", got)
	}
}

func TestSplitMethod(t *testing.T) {
	tests := []struct {
		in, service, method string
	}{
		{in: "/layeredinfill.v1.InfillService/Generate", service: "InfillService", method: "Generate"},
		{in: "", service: "unknown", method: "unknown"},
		{in: "Generate", service: "unknown", method: "unknown"},
	}
	for _, tc := range tests {
		s, m := SplitMethod(tc.in)
		if s != tc.service || m != tc.method {
			t.Fatalf("SplitMethod(%q) = %q, %q; want %q, %q", tc.in, s, m, tc.service, tc.method)
		}
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
