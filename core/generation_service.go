package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/paulmach/orb"
	"github.com/signalsfoundry/layered-infill/geom"
	"github.com/signalsfoundry/layered-infill/internal/logging"
	"github.com/signalsfoundry/layered-infill/tiles"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const tracerName = "github.com/signalsfoundry/layered-infill/core"

// Stage is the lifecycle position of a generation job.
type Stage int

const (
	StageIdle Stage = iota
	StageValidating
	StageComposing
	StageDone
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "Idle"
	case StageValidating:
		return "Validating"
	case StageComposing:
		return "Composing"
	case StageDone:
		return "Done"
	case StageFailed:
		return "Failed"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// errIllegalTransition is a programming error inside the service; it is
// reported as Internal.
var errIllegalTransition = errors.New("illegal stage transition")

var stageTransitions = map[Stage][]Stage{
	StageIdle:       {StageValidating},
	StageValidating: {StageComposing, StageDone, StageFailed},
	StageComposing:  {StageDone, StageFailed},
}

// job tracks one request through the stage machine.
type job struct {
	stage Stage
}

func (j *job) advance(to Stage) error {
	for _, next := range stageTransitions[j.stage] {
		if next == to {
			j.stage = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", errIllegalTransition, j.stage, to)
}

// GenerationRequest asks for the fill of one layer.
type GenerationRequest struct {
	Boundary orb.MultiPolygon
	Pattern  string
	Z        int64
	// Scale multiplies the tile size; zero means 1.
	Scale float64
	// Origin anchors the tile lattice. The zero value anchors it at (0,0).
	Origin orb.Point
}

// GenerationResult is the outcome of a generation request.
type GenerationResult struct {
	Fill geom.Fill
	// TileZ is the height of the tile that was used; zero when no tile was
	// selected.
	TileZ      int64
	Placements int
	Stage      Stage
	Kind       Kind
	Err        error
}

// GenerationRecorder receives per-request outcomes.
type GenerationRecorder interface {
	ObserveGeneration(pattern string, kind Kind, d time.Duration)
}

// TileSelector resolves a pattern name and height to a tile.
type TileSelector interface {
	Pattern(name string) (*tiles.Pattern, error)
	SelectTile(name string, z int64) (*tiles.Tile, error)
}

// GenerationService validates requests and drives the compositor. It holds
// only read-only state plus the concurrency-safe tile cache, so Generate may
// be called from many goroutines.
type GenerationService struct {
	tiles         TileSelector
	cache         *TileCache
	log           logging.Logger
	metrics       GenerationRecorder
	maxPlacements int64
}

// DefaultMaxPlacements caps the tile copies laid out for one request.
const DefaultMaxPlacements int64 = 10000

// GenerationServiceOption customises GenerationService construction.
type GenerationServiceOption func(*GenerationService)

// WithLogger attaches a structured logger.
func WithLogger(log logging.Logger) GenerationServiceOption {
	return func(s *GenerationService) {
		if log != nil {
			s.log = log
		}
	}
}

// WithGenerationRecorder attaches a metrics recorder.
func WithGenerationRecorder(m GenerationRecorder) GenerationServiceOption {
	return func(s *GenerationService) {
		s.metrics = m
	}
}

// WithTileCache attaches a scaled-tile cache. Without one, scaled tiles are
// recomputed on every request.
func WithTileCache(c *TileCache) GenerationServiceOption {
	return func(s *GenerationService) {
		s.cache = c
	}
}

// WithMaxPlacements overrides DefaultMaxPlacements. Non-positive values are
// ignored.
func WithMaxPlacements(n int64) GenerationServiceOption {
	return func(s *GenerationService) {
		if n > 0 {
			s.maxPlacements = n
		}
	}
}

// NewGenerationService returns a service over the given tile selector,
// typically a loaded *tiles.Registry.
func NewGenerationService(sel TileSelector, opts ...GenerationServiceOption) *GenerationService {
	s := &GenerationService{
		tiles:         sel,
		log:           logging.Noop(),
		maxPlacements: DefaultMaxPlacements,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Generate runs one request through Validating and Composing. On failure the
// returned result carries Stage Failed, the error Kind and the error itself,
// which is also returned.
func (s *GenerationService) Generate(ctx context.Context, req GenerationRequest) (GenerationResult, error) {
	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "core.Generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("infill.pattern", req.Pattern),
		attribute.Int64("infill.z", req.Z),
	)

	res, err := s.run(ctx, req)
	res.Kind = KindOf(err)
	res.Err = err
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(res.Kind))
		s.log.Warn(ctx, "generation failed",
			logging.String("pattern", req.Pattern),
			logging.Int64("z", req.Z),
			logging.String("kind", string(res.Kind)),
			logging.Err(err),
		)
	} else {
		span.SetAttributes(
			attribute.Int("infill.placements", res.Placements),
			attribute.Int64("infill.tile_z", res.TileZ),
		)
		s.log.Debug(ctx, "generation done",
			logging.String("pattern", req.Pattern),
			logging.Int64("z", req.Z),
			logging.Int64("tile_z", res.TileZ),
			logging.Int("placements", res.Placements),
			logging.Int("polygons", len(res.Fill.Polygons)),
			logging.Int("lines", len(res.Fill.Lines)),
		)
	}
	if s.metrics != nil {
		s.metrics.ObserveGeneration(req.Pattern, res.Kind, time.Since(start))
	}
	return res, err
}

func (s *GenerationService) run(ctx context.Context, req GenerationRequest) (GenerationResult, error) {
	j := &job{stage: StageIdle}
	res := GenerationResult{Fill: emptyFill()}
	fail := func(err error) (GenerationResult, error) {
		if terr := j.advance(StageFailed); terr != nil {
			err = errors.Join(err, terr)
		}
		res.Stage = j.stage
		return res, err
	}

	if err := j.advance(StageValidating); err != nil {
		return res, err
	}
	if err := validateBoundary(req.Boundary); err != nil {
		return fail(err)
	}
	if req.Pattern == "" {
		return fail(fmt.Errorf("%w: empty pattern name", ErrPatternNotFound))
	}
	if s.tiles == nil {
		return fail(fmt.Errorf("%w: no tiles loaded", ErrPatternNotFound))
	}
	if _, err := s.tiles.Pattern(req.Pattern); err != nil {
		return fail(err)
	}
	scale, err := validateParameters(req)
	if err != nil {
		return fail(err)
	}

	// A boundary without area has no interior to fill.
	if geom.Area(req.Boundary) == 0 {
		if err := j.advance(StageDone); err != nil {
			return fail(err)
		}
		res.Stage = j.stage
		return res, nil
	}

	if err := j.advance(StageComposing); err != nil {
		return fail(err)
	}
	tile, err := s.tiles.SelectTile(req.Pattern, req.Z)
	if err != nil {
		return fail(err)
	}
	res.TileZ = tile.Z
	if tile, err = s.cache.Scaled(tile, scale); err != nil {
		return fail(err)
	}

	box, _ := geom.Bound(req.Boundary)
	if n := PlacementCount(box, tile.Size, req.Origin); n > s.maxPlacements {
		return fail(fmt.Errorf("%w: boundary needs %d tile copies at scale %v, limit is %d",
			ErrInvalidParameter, n, scale, s.maxPlacements))
	}

	_, span := otel.Tracer(tracerName).Start(ctx, "core.Compose")
	comp := Compose(req.Boundary, tile, req.Origin)
	span.SetAttributes(attribute.Int("infill.placements", len(comp.Placements)))
	span.End()

	res.Fill = comp.Fill
	res.Placements = len(comp.Placements)
	if err := j.advance(StageDone); err != nil {
		return fail(err)
	}
	res.Stage = j.stage
	return res, nil
}

// validateBoundary rejects rings with fewer than 3 distinct vertices and
// self-intersecting rings. Rings whose vertices are all collinear pass; they
// enclose no area.
func validateBoundary(boundary orb.MultiPolygon) error {
	for i, poly := range boundary {
		for j, r := range poly {
			if countDistinct(r) < 3 {
				return fmt.Errorf("%w: polygon %d ring %d has fewer than 3 distinct vertices", ErrDegenerateBoundary, i, j)
			}
			if geom.Collinear(r) {
				continue
			}
			if err := geom.ValidateRing(r); err != nil {
				return fmt.Errorf("%w: polygon %d ring %d is self-intersecting", ErrDegenerateBoundary, i, j)
			}
		}
	}
	return nil
}

// validateParameters checks scale and origin and returns the effective scale.
func validateParameters(req GenerationRequest) (float64, error) {
	scale := req.Scale
	if scale == 0 {
		scale = 1
	}
	if math.IsNaN(scale) || math.IsInf(scale, 0) || scale < 0 {
		return 0, fmt.Errorf("%w: scale must be a positive finite number, got %v", ErrInvalidParameter, req.Scale)
	}
	if math.IsNaN(req.Origin[0]) || math.IsNaN(req.Origin[1]) ||
		math.IsInf(req.Origin[0], 0) || math.IsInf(req.Origin[1], 0) {
		return 0, fmt.Errorf("%w: origin must be finite", ErrInvalidParameter)
	}
	return scale, nil
}

func countDistinct(r orb.Ring) int {
	seen := make(map[orb.Point]struct{}, len(r))
	for _, p := range r {
		seen[p] = struct{}{}
	}
	return len(seen)
}

func emptyFill() geom.Fill {
	return geom.Fill{Polygons: orb.MultiPolygon{}, Lines: orb.MultiLineString{}}
}

func errScaleTooSmall(k float64, size int64) error {
	return fmt.Errorf("%w: scale %v shrinks the %d tile below one unit", ErrInvalidParameter, k, size)
}
