package rpc

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/signalsfoundry/layered-infill/core"
	"github.com/signalsfoundry/layered-infill/geom"
)

// Point is an integer coordinate in layer-resolution units (microns).
type Point struct {
	X int64 `json:"x"`
	Y int64 `json:"y"`
}

// Path is an ordered list of points. Polygon paths are implicitly closed.
type Path struct {
	Path []Point `json:"path"`
}

// Polygon is an outline with optional holes.
type Polygon struct {
	Outline Path   `json:"outline"`
	Holes   []Path `json:"holes,omitempty"`
}

// Polygons wraps a polygon list the way the host encodes infill areas.
type Polygons struct {
	Polygons []Polygon `json:"polygons"`
}

// Settings carries the per-layer engine settings. Lengths are millimetres,
// as the host reports them.
type Settings struct {
	InfillScale  float64 `json:"infill_scale,omitempty"`
	CenterX      float64 `json:"center_x,omitempty"`
	CenterY      float64 `json:"center_y,omitempty"`
	MachineWidth float64 `json:"machine_width,omitempty"`
	MachineDepth float64 `json:"machine_depth,omitempty"`
}

// GenerateRequest asks for the fill of one layer.
type GenerateRequest struct {
	Pattern     string   `json:"pattern"`
	Z           int64    `json:"z"`
	InfillAreas Polygons `json:"infill_areas"`
	// BoundaryWKT is an alternative to InfillAreas holding a POLYGON or
	// MULTIPOLYGON record.
	BoundaryWKT string   `json:"boundary_wkt,omitempty"`
	Settings    Settings `json:"settings"`
	// Origin, when set, anchors the tile lattice directly and overrides the
	// anchor derived from Settings.
	Origin      *Point   `json:"origin,omitempty"`
}

// GenerateResponse is the fill of one layer.
type GenerateResponse struct {
	PolyLines  []Path    `json:"poly_lines"`
	Polygons   []Polygon `json:"polygons"`
	TileZ      int64     `json:"tile_z"`
	Placements int       `json:"placements"`
}

// ListPatternsRequest is empty.
type ListPatternsRequest struct{}

// PatternInfo describes one registered pattern.
type PatternInfo struct {
	Name    string  `json:"name"`
	Heights []int64 `json:"heights"`
}

// ListPatternsResponse lists registered patterns in name order.
type ListPatternsResponse struct {
	Patterns []PatternInfo `json:"patterns"`
}

// BoundaryFromWire converts infill areas into a boundary. Rings are closed;
// consecutive duplicate points are kept so degeneracy checks see them.
func BoundaryFromWire(areas Polygons) orb.MultiPolygon {
	out := make(orb.MultiPolygon, 0, len(areas.Polygons))
	for _, p := range areas.Polygons {
		poly := orb.Polygon{ringFromWire(p.Outline)}
		for _, h := range p.Holes {
			poly = append(poly, ringFromWire(h))
		}
		out = append(out, poly)
	}
	return out
}

func ringFromWire(p Path) orb.Ring {
	r := make(orb.Ring, 0, len(p.Path)+1)
	for _, pt := range p.Path {
		r = append(r, orb.Point{float64(pt.X), float64(pt.Y)})
	}
	if len(r) > 0 && r[0] != r[len(r)-1] {
		r = append(r, r[0])
	}
	return r
}

// OriginFromSettings returns the lattice anchor the host expects: the build
// plate centre shifted by the configured centre offset, in microns, with the
// y offset pointing towards the front of the plate.
func OriginFromSettings(s Settings) orb.Point {
	x := 1000 * (s.MachineWidth/2 + s.CenterX)
	y := 1000 * (s.MachineDepth/2 - s.CenterY)
	return orb.Point{math.Trunc(x), math.Trunc(y)}
}

// RequestToCore converts a wire request into an engine request. Only a
// malformed BoundaryWKT fails.
func RequestToCore(in *GenerateRequest) (core.GenerationRequest, error) {
	origin := OriginFromSettings(in.Settings)
	if in.Origin != nil {
		origin = orb.Point{float64(in.Origin.X), float64(in.Origin.Y)}
	}
	boundary := BoundaryFromWire(in.InfillAreas)
	if in.BoundaryWKT != "" {
		mp, err := geom.ParseMultiPolygon(in.BoundaryWKT)
		if err != nil {
			return core.GenerationRequest{}, fmt.Errorf("boundary_wkt: %w", err)
		}
		boundary = mp
	}
	return core.GenerationRequest{
		Boundary: boundary,
		Pattern:  in.Pattern,
		Z:        in.Z,
		Scale:    in.Settings.InfillScale,
		Origin:   origin,
	}, nil
}

// FillToWire converts a fill into response geometry. Polygon paths are sent
// open; the closing vertex is implied.
func FillToWire(f geom.Fill) ([]Polygon, []Path) {
	polys := make([]Polygon, 0, len(f.Polygons))
	for _, poly := range f.Polygons {
		if len(poly) == 0 {
			continue
		}
		wp := Polygon{Outline: pathFromRing(poly[0])}
		for _, h := range poly[1:] {
			wp.Holes = append(wp.Holes, pathFromRing(h))
		}
		polys = append(polys, wp)
	}
	lines := make([]Path, 0, len(f.Lines))
	for _, ls := range f.Lines {
		lines = append(lines, pathFromPoints(ls))
	}
	return polys, lines
}

// FillFromWire is the inverse of FillToWire, used by clients.
func FillFromWire(polys []Polygon, lines []Path) geom.Fill {
	f := geom.Fill{Polygons: BoundaryFromWire(Polygons{Polygons: polys}), Lines: orb.MultiLineString{}}
	for _, p := range lines {
		ls := make(orb.LineString, 0, len(p.Path))
		for _, pt := range p.Path {
			ls = append(ls, orb.Point{float64(pt.X), float64(pt.Y)})
		}
		f.Lines = append(f.Lines, ls)
	}
	return f
}

func pathFromRing(r orb.Ring) Path {
	pts := []orb.Point(r)
	if len(pts) > 1 && pts[0] == pts[len(pts)-1] {
		pts = pts[:len(pts)-1]
	}
	return pathFromPoints(pts)
}

func pathFromPoints(pts []orb.Point) Path {
	out := Path{Path: make([]Point, 0, len(pts))}
	for _, p := range pts {
		out.Path = append(out.Path, Point{X: int64(p[0]), Y: int64(p[1])})
	}
	return out
}

// ResponseFromResult converts an engine result into a wire response.
func ResponseFromResult(res core.GenerationResult) *GenerateResponse {
	polys, lines := FillToWire(res.Fill)
	return &GenerateResponse{
		PolyLines:  lines,
		Polygons:   polys,
		TileZ:      res.TileZ,
		Placements: res.Placements,
	}
}
