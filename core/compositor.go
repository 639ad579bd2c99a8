// Package core turns a layer boundary, a pattern name and a height into fill
// geometry by repeating the pattern's reference tile over the boundary and
// clipping the result.
package core

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/signalsfoundry/layered-infill/geom"
	"github.com/signalsfoundry/layered-infill/tiles"
)

// Composition is the output of one compositor run.
type Composition struct {
	Fill geom.Fill
	// Placements holds the lower-left corner of every tile copy, in
	// placement order.
	Placements []orb.Point
}

// lattice describes the cells covering a bounding box: the lower-left corner
// of the first cell and the column and row counts.
type lattice struct {
	x0, y0     int64
	cols, rows int64
}

func newLattice(box orb.Bound, size int64, origin orb.Point) lattice {
	ox, oy := int64(geom.RoundCoord(origin[0])), int64(geom.RoundCoord(origin[1]))
	l := lattice{
		x0: ox + floorDiv(int64(math.Floor(box.Min[0]))-ox, size)*size,
		y0: oy + floorDiv(int64(math.Floor(box.Min[1]))-oy, size)*size,
	}
	l.cols = cellSpan(l.x0, int64(math.Ceil(box.Max[0])), size)
	l.rows = cellSpan(l.y0, int64(math.Ceil(box.Max[1])), size)
	return l
}

// cellSpan counts the cells from start needed to reach end; at least one.
func cellSpan(start, end, size int64) int64 {
	n := (end - start + size - 1) / size
	if n < 1 {
		return 1
	}
	return n
}

// count returns cols*rows, saturating at math.MaxInt64.
func (l lattice) count() int64 {
	if l.cols > math.MaxInt64/l.rows {
		return math.MaxInt64
	}
	return l.cols * l.rows
}

// PlacementCount returns len(Placements(box, size, origin)) without
// allocating the placements.
func PlacementCount(box orb.Bound, size int64, origin orb.Point) int64 {
	if size <= 0 {
		return 0
	}
	return newLattice(box, size, origin).count()
}

// Placements returns the lower-left corners of the size×size lattice cells
// needed to cover box. The lattice is anchored at origin, rounded to the
// integer grid; the first cell is the one containing box.Min and cells are
// emitted row-major (y outer, x inner). At least one cell is returned for any
// box.
func Placements(box orb.Bound, size int64, origin orb.Point) []orb.Point {
	if size <= 0 {
		return nil
	}
	l := newLattice(box, size, origin)
	out := make([]orb.Point, 0, min(l.count(), 1<<16))
	for r := int64(0); r < l.rows; r++ {
		for c := int64(0); c < l.cols; c++ {
			out = append(out, orb.Point{float64(l.x0 + c*size), float64(l.y0 + r*size)})
		}
	}
	return out
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// Compose tiles t over the bounding box of boundary and clips the combined
// fill to boundary. Polygon fragments are unioned before clipping; line
// fragments are concatenated with exact duplicates removed. An empty
// boundary or an empty tile fill yields an empty composition.
func Compose(boundary orb.MultiPolygon, t *tiles.Tile, origin orb.Point) Composition {
	empty := Composition{Fill: geom.Fill{Polygons: orb.MultiPolygon{}, Lines: orb.MultiLineString{}}}
	box, ok := geom.Bound(boundary)
	if !ok || t == nil {
		return empty
	}
	placements := Placements(box, t.Size, origin)
	empty.Placements = placements
	if t.Fill.IsEmpty() {
		return empty
	}

	fragments := make([]orb.MultiPolygon, 0, len(placements))
	lines := orb.MultiLineString{}
	seen := make(map[string]struct{})
	for _, at := range placements {
		frag := t.Fill.Translate(at[0], at[1])
		if len(frag.Polygons) > 0 {
			fragments = append(fragments, frag.Polygons)
		}
		for _, ls := range frag.Lines {
			key := geom.Marshal(ls)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			lines = append(lines, ls)
		}
	}

	return Composition{
		Fill: geom.Fill{
			Polygons: geom.Intersection(geom.Union(fragments...), boundary),
			Lines:    geom.ClipLines(lines, boundary),
		},
		Placements: placements,
	}
}

// scaleTile returns a copy of t with its square and fill scaled by k about
// the origin. The scaled square side is rounded half-to-even.
func scaleTile(t *tiles.Tile, k float64) (*tiles.Tile, error) {
	size := int64(geom.RoundCoord(float64(t.Size) * k))
	if size < 1 {
		return nil, errScaleTooSmall(k, t.Size)
	}
	return &tiles.Tile{
		Pattern: t.Pattern,
		Z:       t.Z,
		Size:    size,
		Square:  tiles.CanonicalSquare(size),
		Fill:    t.Fill.Scale(k),
		Source:  t.Source,
	}, nil
}
