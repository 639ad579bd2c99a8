package geom

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
)

// ErrMalformedWKT reports WKT that cannot be parsed or that violates the ring
// invariants (at least 3 distinct vertices per ring, finite integer
// coordinates).
var ErrMalformedWKT = errors.New("malformed WKT")

// ParseRecord parses a single WKT record. Supported kinds are POLYGON,
// MULTIPOLYGON, LINESTRING and MULTILINESTRING. Rings are closed when the
// closing vertex is omitted; coordinates must be integers.
func ParseRecord(s string) (orb.Geometry, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty record", ErrMalformedWKT)
	}
	g, err := unmarshal(s)
	if err != nil {
		return nil, err
	}

	switch v := g.(type) {
	case orb.Polygon:
		return normalizePolygon(v)
	case orb.MultiPolygon:
		out := make(orb.MultiPolygon, 0, len(v))
		for _, poly := range v {
			p, err := normalizePolygon(poly)
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		}
		return out, nil
	case orb.LineString:
		return normalizeLine(v)
	case orb.MultiLineString:
		out := make(orb.MultiLineString, 0, len(v))
		for _, ls := range v {
			l, err := normalizeLine(ls)
			if err != nil {
				return nil, err
			}
			out = append(out, l)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unsupported geometry %s", ErrMalformedWKT, g.GeoJSONType())
	}
}

// ParsePolygon parses a POLYGON record.
func ParsePolygon(s string) (orb.Polygon, error) {
	g, err := ParseRecord(s)
	if err != nil {
		return nil, err
	}
	poly, ok := g.(orb.Polygon)
	if !ok {
		return nil, fmt.Errorf("%w: expected POLYGON, got %s", ErrMalformedWKT, g.GeoJSONType())
	}
	if len(poly) == 0 {
		return nil, fmt.Errorf("%w: empty polygon", ErrMalformedWKT)
	}
	return poly, nil
}

// ParseMultiPolygon parses a POLYGON or MULTIPOLYGON record into a
// MultiPolygon. MULTIPOLYGON EMPTY yields an empty, non-nil result.
func ParseMultiPolygon(s string) (orb.MultiPolygon, error) {
	g, err := ParseRecord(s)
	if err != nil {
		return nil, err
	}
	switch v := g.(type) {
	case orb.MultiPolygon:
		return v, nil
	case orb.Polygon:
		if len(v) == 0 {
			return orb.MultiPolygon{}, nil
		}
		return orb.MultiPolygon{v}, nil
	default:
		return nil, fmt.Errorf("%w: expected POLYGON or MULTIPOLYGON, got %s", ErrMalformedWKT, g.GeoJSONType())
	}
}

func unmarshal(s string) (g orb.Geometry, err error) {
	defer func() {
		// the decoder indexes into the input and can panic on truncated text
		if r := recover(); r != nil {
			g, err = nil, fmt.Errorf("%w: %v", ErrMalformedWKT, r)
		}
	}()
	g, err = wkt.Unmarshal(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedWKT, err)
	}
	if g == nil {
		return nil, fmt.Errorf("%w: no geometry", ErrMalformedWKT)
	}
	return g, nil
}

func normalizePolygon(poly orb.Polygon) (orb.Polygon, error) {
	out := make(orb.Polygon, 0, len(poly))
	for i, r := range poly {
		pts, err := integralPoints(orb.LineString(r))
		if err != nil {
			return nil, err
		}
		ring := closeRing(pts)
		if distinctVertices(ring) < 3 {
			return nil, fmt.Errorf("%w: ring %d has fewer than 3 distinct vertices", ErrMalformedWKT, i)
		}
		out = append(out, ring)
	}
	return out, nil
}

func normalizeLine(ls orb.LineString) (orb.LineString, error) {
	pts, err := integralPoints(ls)
	if err != nil {
		return nil, err
	}
	if len(pts) < 2 {
		return nil, fmt.Errorf("%w: linestring has fewer than 2 vertices", ErrMalformedWKT)
	}
	return orb.LineString(pts), nil
}

// integralPoints copies ls, rejecting coordinates that are not finite
// integers.
func integralPoints(ls orb.LineString) ([]orb.Point, error) {
	out := make([]orb.Point, len(ls))
	for i, p := range ls {
		for _, v := range p {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: non-finite coordinate", ErrMalformedWKT)
			}
			if v != math.Trunc(v) {
				return nil, fmt.Errorf("%w: non-integral coordinate %v", ErrMalformedWKT, v)
			}
		}
		out[i] = orb.Point{RoundCoord(p[0]), RoundCoord(p[1])}
	}
	return out, nil
}

// Marshal serializes g as WKT with integer coordinates, a space after the
// type keyword and ", " between vertices. Vertex order is preserved and rings
// are written closed, so ParseRecord(Marshal(g)) returns g for any value
// produced by ParseRecord.
func Marshal(g orb.Geometry) string {
	var b strings.Builder
	switch v := g.(type) {
	case orb.Polygon:
		b.WriteString("POLYGON")
		writePolygon(&b, v)
	case orb.MultiPolygon:
		b.WriteString("MULTIPOLYGON")
		if len(v) == 0 {
			b.WriteString(" EMPTY")
			break
		}
		b.WriteString(" (")
		for i, poly := range v {
			if i > 0 {
				b.WriteString(", ")
			}
			writeRings(&b, poly)
		}
		b.WriteString(")")
	case orb.LineString:
		b.WriteString("LINESTRING")
		if len(v) == 0 {
			b.WriteString(" EMPTY")
			break
		}
		b.WriteString(" ")
		writePoints(&b, v)
	case orb.MultiLineString:
		b.WriteString("MULTILINESTRING")
		if len(v) == 0 {
			b.WriteString(" EMPTY")
			break
		}
		b.WriteString(" (")
		for i, ls := range v {
			if i > 0 {
				b.WriteString(", ")
			}
			writePoints(&b, ls)
		}
		b.WriteString(")")
	default:
		return wkt.MarshalString(g)
	}
	return b.String()
}

func writePolygon(b *strings.Builder, poly orb.Polygon) {
	if len(poly) == 0 {
		b.WriteString(" EMPTY")
		return
	}
	b.WriteString(" ")
	writeRings(b, poly)
}

func writeRings(b *strings.Builder, poly orb.Polygon) {
	b.WriteString("(")
	for i, r := range poly {
		if i > 0 {
			b.WriteString(", ")
		}
		writePoints(b, closeRing(r))
	}
	b.WriteString(")")
}

func writePoints(b *strings.Builder, pts []orb.Point) {
	b.WriteString("(")
	for i, p := range pts {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strconv.FormatInt(int64(RoundCoord(p[0])), 10))
		b.WriteString(" ")
		b.WriteString(strconv.FormatInt(int64(RoundCoord(p[1])), 10))
	}
	b.WriteString(")")
}

func errRing(msg string) error {
	return fmt.Errorf("%w: ring has %s", ErrMalformedWKT, msg)
}
