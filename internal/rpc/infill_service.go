package rpc

import (
	"context"

	"github.com/signalsfoundry/layered-infill/core"
	"github.com/signalsfoundry/layered-infill/internal/logging"
	"github.com/signalsfoundry/layered-infill/tiles"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Generator produces the fill of one layer.
type Generator interface {
	Generate(ctx context.Context, req core.GenerationRequest) (core.GenerationResult, error)
}

// PatternLister enumerates loaded patterns. *tiles.Registry satisfies it.
type PatternLister interface {
	Names() []string
	Pattern(name string) (*tiles.Pattern, error)
}

// InfillService implements InfillServer on top of the generation service and
// the tile registry.
type InfillService struct {
	gen      Generator
	patterns PatternLister
	log      logging.Logger
}

// NewInfillService wires an InfillService. log may be nil.
func NewInfillService(gen Generator, patterns PatternLister, log logging.Logger) *InfillService {
	if log == nil {
		log = logging.Noop()
	}
	return &InfillService{gen: gen, patterns: patterns, log: log}
}

func (s *InfillService) Generate(ctx context.Context, in *GenerateRequest) (*GenerateResponse, error) {
	if s.gen == nil {
		return nil, status.Error(codes.Unavailable, "infill engine not initialised")
	}
	log := logging.FromContext(ctx, s.log)
	if err := ValidateGenerateRequest(in); err != nil {
		return nil, ToStatusError(err)
	}

	req, err := RequestToCore(in)
	if err != nil {
		log.Warn(ctx, "rejecting boundary", logging.String("pattern", in.Pattern), logging.Err(err))
		return nil, ToStatusError(err)
	}

	ctx, span := StartChildSpan(ctx, "rpc.Generate", in.Pattern,
		attribute.Int64("infill.z", in.Z),
		attribute.Int("infill.boundary_polygons", len(req.Boundary)),
	)
	defer span.End()

	res, err := s.gen.Generate(ctx, req)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return ResponseFromResult(res), nil
}

func (s *InfillService) ListPatterns(ctx context.Context, _ *ListPatternsRequest) (*ListPatternsResponse, error) {
	if s.patterns == nil {
		return nil, status.Error(codes.Unavailable, "tile registry not loaded")
	}
	names := s.patterns.Names()
	out := &ListPatternsResponse{Patterns: make([]PatternInfo, 0, len(names))}
	for _, name := range names {
		p, err := s.patterns.Pattern(name)
		if err != nil {
			return nil, ToStatusError(err)
		}
		out.Patterns = append(out.Patterns, PatternInfo{Name: name, Heights: p.Heights()})
	}
	return out, nil
}
