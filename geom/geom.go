// Package geom holds the integer-grid geometry used by the infill engine.
//
// Coordinates are layer-resolution units. They are carried as orb.Point
// values but every coordinate produced by this package is integral: boolean
// operations and transforms round half-to-even back onto the grid.
package geom

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
)

// Fill is the fill geometry of a tile or a generation result: area fill
// polygons plus open polylines.
type Fill struct {
	Polygons orb.MultiPolygon
	Lines    orb.MultiLineString
}

// IsEmpty reports whether the fill carries no geometry.
func (f Fill) IsEmpty() bool {
	return len(f.Polygons) == 0 && len(f.Lines) == 0
}

// Translate returns a copy of f moved by (dx, dy).
func (f Fill) Translate(dx, dy float64) Fill {
	out := Fill{
		Polygons: make(orb.MultiPolygon, 0, len(f.Polygons)),
		Lines:    make(orb.MultiLineString, 0, len(f.Lines)),
	}
	move := func(p orb.Point) orb.Point { return orb.Point{p[0] + dx, p[1] + dy} }
	for _, poly := range f.Polygons {
		out.Polygons = append(out.Polygons, mapPolygon(poly, move))
	}
	for _, ls := range f.Lines {
		out.Lines = append(out.Lines, mapPoints(orb.LineString(ls), move))
	}
	return out
}

// Scale returns a copy of f scaled by k about the origin and snapped back
// onto the integer grid.
func (f Fill) Scale(k float64) Fill {
	out := Fill{
		Polygons: make(orb.MultiPolygon, 0, len(f.Polygons)),
		Lines:    make(orb.MultiLineString, 0, len(f.Lines)),
	}
	scale := func(p orb.Point) orb.Point {
		return orb.Point{RoundCoord(p[0] * k), RoundCoord(p[1] * k)}
	}
	for _, poly := range f.Polygons {
		out.Polygons = append(out.Polygons, mapPolygon(poly, scale))
	}
	for _, ls := range f.Lines {
		out.Lines = append(out.Lines, mapPoints(orb.LineString(ls), scale))
	}
	return out
}

// VertexCount returns the number of vertices stored in f.
func (f Fill) VertexCount() int {
	n := 0
	for _, poly := range f.Polygons {
		for _, r := range poly {
			n += len(r)
		}
	}
	for _, ls := range f.Lines {
		n += len(ls)
	}
	return n
}

func mapPolygon(poly orb.Polygon, fn func(orb.Point) orb.Point) orb.Polygon {
	out := make(orb.Polygon, 0, len(poly))
	for _, r := range poly {
		out = append(out, orb.Ring(mapPoints(orb.LineString(r), fn)))
	}
	return out
}

func mapPoints(ls orb.LineString, fn func(orb.Point) orb.Point) orb.LineString {
	out := make(orb.LineString, len(ls))
	for i, p := range ls {
		out[i] = fn(p)
	}
	return out
}

// RoundCoord snaps a coordinate to the integer grid using round-half-to-even.
func RoundCoord(v float64) float64 {
	r := math.RoundToEven(v)
	if r == 0 {
		return 0 // drop negative zero
	}
	return r
}

// SignedArea returns the shoelace area of r; positive for counter-clockwise
// rings. The closing vertex may or may not be repeated.
func SignedArea(r orb.Ring) float64 {
	n := len(r)
	if n < 3 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		a := r[i]
		b := r[(i+1)%n]
		sum += a[0]*b[1] - b[0]*a[1]
	}
	return sum / 2
}

// Area returns the filled area of mp: outer rings minus holes.
func Area(mp orb.MultiPolygon) float64 {
	var total float64
	for _, poly := range mp {
		for i, r := range poly {
			a := math.Abs(SignedArea(r))
			if i == 0 {
				total += a
			} else {
				total -= a
			}
		}
	}
	return total
}

// Bound returns the axis-aligned bounding box of mp and false when mp has no
// vertices.
func Bound(mp orb.MultiPolygon) (orb.Bound, bool) {
	var (
		b     orb.Bound
		found bool
	)
	for _, poly := range mp {
		for _, r := range poly {
			for _, p := range r {
				if !found {
					b = orb.Bound{Min: p, Max: p}
					found = true
					continue
				}
				b = b.Extend(p)
			}
		}
	}
	return b, found
}

// distinctVertices counts ring vertices ignoring the repeated closing point
// and consecutive duplicates.
func distinctVertices(r orb.Ring) int {
	pts := openRing(r)
	if len(pts) == 0 {
		return 0
	}
	n := 0
	for i := range pts {
		if i == 0 || pts[i] != pts[i-1] {
			n++
		}
	}
	if n > 1 && pts[0] == pts[len(pts)-1] {
		n--
	}
	return n
}

// openRing returns r without its repeated closing vertex.
func openRing(r orb.Ring) []orb.Point {
	if len(r) > 1 && r[0] == r[len(r)-1] {
		return r[:len(r)-1]
	}
	return r
}

// closeRing returns pts as a closed ring.
func closeRing(pts []orb.Point) orb.Ring {
	out := make(orb.Ring, 0, len(pts)+1)
	out = append(out, pts...)
	if len(pts) > 0 && pts[0] != pts[len(pts)-1] {
		out = append(out, pts[0])
	}
	return out
}

// canonicalRing rotates an open ring so that it starts at its lowest, then
// leftmost vertex, orients it (counter-clockwise when ccw is true) and
// closes it.
func canonicalRing(pts []orb.Point, ccw bool) orb.Ring {
	pts = append([]orb.Point(nil), pts...)
	area := SignedArea(orb.Ring(pts))
	if (area > 0) != ccw {
		for i, j := 0, len(pts)-1; i < j; i, j = i+1, j-1 {
			pts[i], pts[j] = pts[j], pts[i]
		}
	}
	start := 0
	for i, p := range pts {
		if lessPoint(p, pts[start]) {
			start = i
		}
	}
	rotated := make([]orb.Point, 0, len(pts))
	rotated = append(rotated, pts[start:]...)
	rotated = append(rotated, pts[:start]...)
	return closeRing(rotated)
}

func lessPoint(a, b orb.Point) bool {
	if a[1] != b[1] {
		return a[1] < b[1]
	}
	return a[0] < b[0]
}

// sortPolygons orders polygons by the lowest, then leftmost corner of their
// bounding box, breaking ties by area and vertex count.
func sortPolygons(mp orb.MultiPolygon) {
	sort.SliceStable(mp, func(i, j int) bool {
		bi, _ := Bound(orb.MultiPolygon{mp[i]})
		bj, _ := Bound(orb.MultiPolygon{mp[j]})
		if bi.Min != bj.Min {
			return lessPoint(bi.Min, bj.Min)
		}
		ai, aj := Area(orb.MultiPolygon{mp[i]}), Area(orb.MultiPolygon{mp[j]})
		if ai != aj {
			return ai < aj
		}
		return len(mp[i][0]) < len(mp[j][0])
	})
}

type location int

const (
	outside location = iota
	inside
	onBoundary
)

// boundaryEps is the perpendicular distance under which a point counts as
// lying on an edge. Inputs are integral, so only split points and midpoints
// carry fractional parts.
const boundaryEps = 1e-6

// locate classifies p against mp using the even-odd rule.
func locate(p orb.Point, mp orb.MultiPolygon) location {
	crossings := 0
	for _, poly := range mp {
		for _, r := range poly {
			pts := openRing(r)
			n := len(pts)
			for i := 0; i < n; i++ {
				a, b := pts[i], pts[(i+1)%n]
				if onSegment(p, a, b) {
					return onBoundary
				}
				if (a[1] > p[1]) != (b[1] > p[1]) {
					x := a[0] + (p[1]-a[1])*(b[0]-a[0])/(b[1]-a[1])
					if p[0] < x {
						crossings++
					}
				}
			}
		}
	}
	if crossings%2 == 1 {
		return inside
	}
	return outside
}

func onSegment(p, a, b orb.Point) bool {
	dx, dy := b[0]-a[0], b[1]-a[1]
	length := math.Hypot(dx, dy)
	if length == 0 {
		return math.Hypot(p[0]-a[0], p[1]-a[1]) <= boundaryEps
	}
	cross := dx*(p[1]-a[1]) - dy*(p[0]-a[0])
	if math.Abs(cross)/length > boundaryEps {
		return false
	}
	proj := (dx*(p[0]-a[0]) + dy*(p[1]-a[1])) / length
	return proj >= -boundaryEps && proj <= length+boundaryEps
}
