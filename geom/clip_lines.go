package geom

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
)

// ClipLines returns the parts of lines that lie strictly inside region.
// Segments are split wherever they cross or touch a ring edge; a piece is
// kept when its midpoint is inside the region, so pieces running along an
// edge are dropped. Consecutive kept pieces are joined back into one
// linestring. Split points are snapped to the integer grid.
func ClipLines(lines orb.MultiLineString, region orb.MultiPolygon) orb.MultiLineString {
	out := orb.MultiLineString{}
	if len(region) == 0 {
		return out
	}
	edges := regionEdges(region)

	for _, ls := range lines {
		var current orb.LineString
		flush := func() {
			if len(current) >= 2 {
				out = append(out, current)
			}
			current = nil
		}
		for i := 0; i+1 < len(ls); i++ {
			a, b := ls[i], ls[i+1]
			if a == b {
				continue
			}
			params := splitParams(a, b, edges)
			for k := 0; k+1 < len(params); k++ {
				t0, t1 := params[k], params[k+1]
				mid := lerp(a, b, (t0+t1)/2)
				if locate(mid, region) != inside {
					flush()
					continue
				}
				p0 := snap(lerp(a, b, t0))
				p1 := snap(lerp(a, b, t1))
				if p0 == p1 {
					continue
				}
				if len(current) > 0 && current[len(current)-1] == p0 {
					current = append(current, p1)
					continue
				}
				flush()
				current = orb.LineString{p0, p1}
			}
		}
		flush()
	}
	return out
}

type edge struct{ a, b orb.Point }

func regionEdges(mp orb.MultiPolygon) []edge {
	var edges []edge
	for _, poly := range mp {
		for _, r := range poly {
			pts := openRing(r)
			for i := range pts {
				edges = append(edges, edge{pts[i], pts[(i+1)%len(pts)]})
			}
		}
	}
	return edges
}

// splitParams returns the sorted, de-duplicated segment parameters in [0,1]
// at which segment a-b meets any edge, including both endpoints.
func splitParams(a, b orb.Point, edges []edge) []float64 {
	params := []float64{0, 1}
	r := orb.Point{b[0] - a[0], b[1] - a[1]}
	rr := dot(r, r)
	for _, e := range edges {
		s := orb.Point{e.b[0] - e.a[0], e.b[1] - e.a[1]}
		qp := orb.Point{e.a[0] - a[0], e.a[1] - a[1]}
		denom := cross(r, s)
		if denom == 0 {
			if cross(qp, r) != 0 {
				continue // parallel, not collinear
			}
			// collinear: split where the edge endpoints project onto a-b
			for _, q := range []orb.Point{e.a, e.b} {
				t := dot(orb.Point{q[0] - a[0], q[1] - a[1]}, r) / rr
				if t > 0 && t < 1 {
					params = append(params, t)
				}
			}
			continue
		}
		t := cross(qp, s) / denom
		u := cross(qp, r) / denom
		if t > 0 && t < 1 && u >= 0 && u <= 1 {
			params = append(params, t)
		}
	}
	sort.Float64s(params)
	uniq := params[:1]
	for _, t := range params[1:] {
		if t-uniq[len(uniq)-1] > 1e-12 {
			uniq = append(uniq, t)
		}
	}
	return uniq
}

func lerp(a, b orb.Point, t float64) orb.Point {
	return orb.Point{a[0] + (b[0]-a[0])*t, a[1] + (b[1]-a[1])*t}
}

func snap(p orb.Point) orb.Point {
	return orb.Point{RoundCoord(p[0]), RoundCoord(p[1])}
}

func cross(a, b orb.Point) float64 { return a[0]*b[1] - a[1]*b[0] }

func dot(a, b orb.Point) float64 { return a[0]*b[0] + a[1]*b[1] }

// ValidateRing checks that r has at least 3 distinct vertices and that no
// two non-adjacent edges intersect. Repeated consecutive vertices are ignored.
func ValidateRing(r orb.Ring) error {
	if distinctVertices(r) < 3 {
		return errRing("fewer than 3 distinct vertices")
	}
	pts := dropRepeats(openRing(r))
	n := len(pts)
	for i := 0; i < n; i++ {
		a1, a2 := pts[i], pts[(i+1)%n]
		for j := i + 1; j < n; j++ {
			if j == i+1 || (i == 0 && j == n-1) {
				continue // adjacent edges share a vertex
			}
			b1, b2 := pts[j], pts[(j+1)%n]
			if segmentsIntersect(a1, a2, b1, b2) {
				return errRing("self-intersection")
			}
		}
	}
	return nil
}

// dropRepeats removes consecutive duplicate vertices from an open ring,
// including a trailing run equal to the first vertex.
func dropRepeats(pts []orb.Point) []orb.Point {
	out := make([]orb.Point, 0, len(pts))
	for _, p := range pts {
		if len(out) == 0 || p != out[len(out)-1] {
			out = append(out, p)
		}
	}
	for len(out) > 1 && out[len(out)-1] == out[0] {
		out = out[:len(out)-1]
	}
	return out
}

// Collinear reports whether every vertex of r lies on a single line.
func Collinear(r orb.Ring) bool {
	if len(r) == 0 {
		return true
	}
	a := r[0]
	for _, b := range r[1:] {
		if b == a {
			continue
		}
		for _, p := range r {
			if orientation(a, b, p) != 0 {
				return false
			}
		}
		return true
	}
	return true
}

func segmentsIntersect(p1, p2, q1, q2 orb.Point) bool {
	d1 := orientation(q1, q2, p1)
	d2 := orientation(q1, q2, p2)
	d3 := orientation(p1, p2, q1)
	d4 := orientation(p1, p2, q2)
	if d1*d2 < 0 && d3*d4 < 0 {
		return true
	}
	return (d1 == 0 && within(q1, q2, p1)) ||
		(d2 == 0 && within(q1, q2, p2)) ||
		(d3 == 0 && within(p1, p2, q1)) ||
		(d4 == 0 && within(p1, p2, q2))
}

func orientation(a, b, c orb.Point) float64 {
	v := cross(orb.Point{b[0] - a[0], b[1] - a[1]}, orb.Point{c[0] - a[0], c[1] - a[1]})
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// within reports whether collinear point p lies on segment a-b.
func within(a, b, p orb.Point) bool {
	return p[0] >= math.Min(a[0], b[0]) && p[0] <= math.Max(a[0], b[0]) &&
		p[1] >= math.Min(a[1], b[1]) && p[1] <= math.Max(a[1], b[1])
}
