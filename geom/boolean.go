package geom

import (
	"math"

	polyclip "github.com/ctessum/polyclip-go"
	"github.com/paulmach/orb"
)

// Intersection returns the area shared by a and b, snapped to the integer
// grid. Shapes that only touch along an edge or at a vertex produce an empty
// result rather than a zero-area sliver.
func Intersection(a, b orb.MultiPolygon) orb.MultiPolygon {
	if len(a) == 0 || len(b) == 0 {
		return orb.MultiPolygon{}
	}
	return fromClip(toClip(a).Construct(polyclip.INTERSECTION, toClip(b)))
}

// Union returns the merged area of all inputs, snapped to the integer grid.
// Inputs are folded left to right so the result is deterministic for a given
// argument order.
func Union(parts ...orb.MultiPolygon) orb.MultiPolygon {
	var acc polyclip.Polygon
	for _, p := range parts {
		if len(p) == 0 {
			continue
		}
		next := toClip(p)
		if len(acc) == 0 {
			acc = next
			continue
		}
		acc = acc.Construct(polyclip.UNION, next)
	}
	return fromClip(acc)
}

// Normalize snaps mp to the integer grid and rewrites it in canonical form:
// outer rings counter-clockwise, holes clockwise, every ring starting at its
// lowest-then-leftmost vertex, polygons ordered by their lowest corner.
func Normalize(mp orb.MultiPolygon) orb.MultiPolygon {
	return fromClip(toClip(mp))
}

func toClip(mp orb.MultiPolygon) polyclip.Polygon {
	out := make(polyclip.Polygon, 0, len(mp))
	for _, poly := range mp {
		for _, r := range poly {
			pts := openRing(r)
			c := make(polyclip.Contour, 0, len(pts))
			for _, p := range pts {
				c = append(c, polyclip.Point{X: p[0], Y: p[1]})
			}
			if len(c) >= 3 {
				out = append(out, c)
			}
		}
	}
	return out
}

type contour struct {
	pts   []orb.Point
	area  float64 // absolute
	depth int
}

// fromClip rounds the contours of a clipping result onto the grid, drops
// degenerate ones and rebuilds polygons from contour nesting.
func fromClip(p polyclip.Polygon) orb.MultiPolygon {
	contours := make([]*contour, 0, len(p))
	for _, c := range p {
		pts := make([]orb.Point, 0, len(c))
		for _, v := range c {
			q := orb.Point{RoundCoord(v.X), RoundCoord(v.Y)}
			if len(pts) > 0 && pts[len(pts)-1] == q {
				continue
			}
			pts = append(pts, q)
		}
		for len(pts) > 1 && pts[0] == pts[len(pts)-1] {
			pts = pts[:len(pts)-1]
		}
		pts = dropCollinear(pts)
		if len(pts) < 3 {
			continue
		}
		area := math.Abs(SignedArea(orb.Ring(pts)))
		if area == 0 {
			continue
		}
		contours = append(contours, &contour{pts: pts, area: area})
	}

	// containers[i] lists the contours that enclose contour i
	containers := make([][]int, len(contours))
	for i, ci := range contours {
		for j, cj := range contours {
			if i == j || cj.area <= ci.area {
				continue
			}
			if encloses(cj.pts, ci.pts) {
				containers[i] = append(containers[i], j)
			}
		}
		ci.depth = len(containers[i])
	}

	var (
		out     orb.MultiPolygon
		outerOf = make(map[int]int) // contour index -> index in out
	)
	for i, c := range contours {
		if c.depth%2 != 0 {
			continue
		}
		outerOf[i] = len(out)
		out = append(out, orb.Polygon{canonicalRing(c.pts, true)})
	}
	holes := make(map[int][]orb.Ring)
	for i, c := range contours {
		if c.depth%2 == 0 {
			continue
		}
		// the direct parent is the smallest enclosing contour
		parent := -1
		for _, j := range containers[i] {
			if contours[j].depth != c.depth-1 {
				continue
			}
			if parent < 0 || contours[j].area < contours[parent].area {
				parent = j
			}
		}
		if parent < 0 {
			continue
		}
		idx := outerOf[parent]
		holes[idx] = append(holes[idx], canonicalRing(c.pts, false))
	}
	for idx, hs := range holes {
		sortRings(hs)
		out[idx] = append(out[idx], hs...)
	}
	if out == nil {
		out = orb.MultiPolygon{}
	}
	sortPolygons(out)
	return out
}

// encloses reports whether inner lies inside outer, judged by the first
// vertex of inner that is not on outer's boundary.
func encloses(outer, inner []orb.Point) bool {
	ring := orb.MultiPolygon{{orb.Ring(outer)}}
	for _, p := range inner {
		switch locate(p, ring) {
		case inside:
			return true
		case outside:
			return false
		}
	}
	// every vertex sits on the boundary; fall back to edge midpoints
	for i := range inner {
		a, b := inner[i], inner[(i+1)%len(inner)]
		mid := orb.Point{(a[0] + b[0]) / 2, (a[1] + b[1]) / 2}
		switch locate(mid, ring) {
		case inside:
			return true
		case outside:
			return false
		}
	}
	return false
}

func sortRings(rs []orb.Ring) {
	mp := make(orb.MultiPolygon, len(rs))
	for i, r := range rs {
		mp[i] = orb.Polygon{r}
	}
	sortPolygons(mp)
	for i := range mp {
		rs[i] = mp[i][0]
	}
}

// dropCollinear removes vertices that lie on the straight line through their
// neighbours. Coordinates are integral here so the test is exact.
func dropCollinear(pts []orb.Point) []orb.Point {
	for changed := true; changed && len(pts) >= 3; {
		changed = false
		n := len(pts)
		for i := 0; i < n; i++ {
			a, b, c := pts[(i+n-1)%n], pts[i], pts[(i+1)%n]
			if cross(orb.Point{b[0] - a[0], b[1] - a[1]}, orb.Point{c[0] - b[0], c[1] - b[1]}) == 0 {
				pts = append(pts[:i:i], pts[i+1:]...)
				changed = true
				break
			}
		}
	}
	return pts
}
