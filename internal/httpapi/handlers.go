package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb"
	"github.com/signalsfoundry/layered-infill/core"
	"github.com/signalsfoundry/layered-infill/geom"
	"github.com/signalsfoundry/layered-infill/internal/logging"
	"github.com/signalsfoundry/layered-infill/internal/rpc"
)

// GenerateRequest is the body of POST /v1/generate.
type GenerateRequest struct {
	Pattern  string     `json:"pattern"`
	Z        int64      `json:"z"`
	// Boundary is a POLYGON or MULTIPOLYGON record.
	Boundary string     `json:"boundary"`
	Scale    float64    `json:"scale,omitempty"`
	Origin   *rpc.Point `json:"origin,omitempty"`
}

// GenerateResponse carries the fill as WKT.
type GenerateResponse struct {
	Polygons   string `json:"polygons"`
	Lines      string `json:"lines"`
	TileZ      int64  `json:"tile_z"`
	Placements int    `json:"placements"`
	Stage      string `json:"stage"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

type handlers struct {
	gen      rpc.Generator
	patterns rpc.PatternLister
}

func (h *handlers) health(c *gin.Context) {
	if h.gen == nil || h.patterns == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "loading"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "patterns": len(h.patterns.Names())})
}

func (h *handlers) listPatterns(c *gin.Context) {
	if h.patterns == nil {
		writeError(c, http.StatusServiceUnavailable, core.KindInternal, errors.New("tile registry not loaded"))
		return
	}
	names := h.patterns.Names()
	out := make([]rpc.PatternInfo, 0, len(names))
	for _, name := range names {
		p, err := h.patterns.Pattern(name)
		if err != nil {
			writeKindError(c, err)
			return
		}
		out = append(out, rpc.PatternInfo{Name: name, Heights: p.Heights()})
	}
	c.JSON(http.StatusOK, rpc.ListPatternsResponse{Patterns: out})
}

func (h *handlers) getPattern(c *gin.Context) {
	if h.patterns == nil {
		writeError(c, http.StatusServiceUnavailable, core.KindInternal, errors.New("tile registry not loaded"))
		return
	}
	name := c.Param("name")
	p, err := h.patterns.Pattern(name)
	if err != nil {
		writeKindError(c, err)
		return
	}
	c.JSON(http.StatusOK, rpc.PatternInfo{Name: name, Heights: p.Heights()})
}

func (h *handlers) generate(c *gin.Context) {
	if h.gen == nil {
		writeError(c, http.StatusServiceUnavailable, core.KindInternal, errors.New("infill engine not initialised"))
		return
	}
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, core.KindInvalidParameter, fmt.Errorf("decode body: %w", err))
		return
	}

	boundary := orb.MultiPolygon{}
	if req.Boundary != "" {
		mp, err := geom.ParseMultiPolygon(req.Boundary)
		if err != nil {
			writeKindError(c, fmt.Errorf("boundary: %w", err))
			return
		}
		boundary = mp
	}
	var origin orb.Point
	if req.Origin != nil {
		origin = orb.Point{float64(req.Origin.X), float64(req.Origin.Y)}
	}

	ctx := c.Request.Context()
	res, err := h.gen.Generate(ctx, core.GenerationRequest{
		Boundary: boundary,
		Pattern:  req.Pattern,
		Z:        req.Z,
		Scale:    req.Scale,
		Origin:   origin,
	})
	if err != nil {
		logging.FromContext(ctx, nil).Debug(ctx, "generate rejected", logging.Err(err))
		writeKindError(c, err)
		return
	}
	c.JSON(http.StatusOK, GenerateResponse{
		Polygons:   geom.Marshal(res.Fill.Polygons),
		Lines:      geom.Marshal(res.Fill.Lines),
		TileZ:      res.TileZ,
		Placements: res.Placements,
		Stage:      res.Stage.String(),
	})
}

// StatusForKind maps a failure kind onto an HTTP status.
func StatusForKind(k core.Kind) int {
	switch k {
	case core.KindNone:
		return http.StatusOK
	case core.KindDegenerateBoundary, core.KindMalformedWKT, core.KindInvalidParameter:
		return http.StatusBadRequest
	case core.KindPatternNotFound, core.KindNoTileForHeight:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeKindError(c *gin.Context, err error) {
	k := core.KindOf(err)
	writeError(c, StatusForKind(k), k, err)
}

func writeError(c *gin.Context, code int, k core.Kind, err error) {
	c.AbortWithStatusJSON(code, ErrorResponse{Error: err.Error(), Kind: string(k)})
}
