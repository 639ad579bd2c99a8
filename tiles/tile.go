// Package tiles owns the reference infill tiles: parsing and validating tile
// files, grouping them into height-indexed patterns and selecting the tile to
// use for a layer.
package tiles

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/paulmach/orb"
	"github.com/signalsfoundry/layered-infill/geom"
)

// DefaultTileSize is the side length of the canonical bounding square in
// layer-resolution units.
const DefaultTileSize int64 = 20000

var (
	// ErrInvalidTileBounds is returned when a tile's first record is not the
	// canonical bounding square.
	ErrInvalidTileBounds = errors.New("invalid tile bounds")
	// ErrPatternNotFound is returned when no tiles exist for a pattern name.
	ErrPatternNotFound = errors.New("pattern not found")
	// ErrNoTileForHeight is returned when z lies below a pattern's lowest tile.
	ErrNoTileForHeight = errors.New("no tile for height")
)

// Tile is one reference unit of fill geometry for a pattern at a height.
// Fill coordinates are relative to the square, whose lower-left corner is
// the origin. Tiles are immutable once loaded.
type Tile struct {
	Pattern string
	Z       int64
	Size    int64
	Square  orb.Polygon
	Fill    geom.Fill
	Source  string
}

// CanonicalSquare returns the bounding square for a tile of the given size.
func CanonicalSquare(size int64) orb.Polygon {
	s := float64(size)
	return orb.Polygon{{{0, 0}, {0, s}, {s, s}, {s, 0}, {0, 0}}}
}

// ParseTile reads a tile from r. The first record must be the canonical
// bounding square of the given size; every following record is fill
// geometry. Blank lines and lines starting with '#' are ignored.
func ParseTile(pattern string, z, size int64, r io.Reader) (*Tile, error) {
	if size <= 0 {
		size = DefaultTileSize
	}
	tile := &Tile{
		Pattern: pattern,
		Z:       z,
		Size:    size,
		Fill: geom.Fill{
			Polygons: orb.MultiPolygon{},
			Lines:    orb.MultiLineString{},
		},
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		g, err := geom.ParseRecord(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if tile.Square == nil {
			sq, err := checkSquare(g, size)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			tile.Square = sq
			continue
		}
		if err := tile.addFill(g); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", geom.ErrMalformedWKT, err)
	}
	if tile.Square == nil {
		return nil, fmt.Errorf("%w: tile has no records", geom.ErrMalformedWKT)
	}
	return tile, nil
}

func (t *Tile) addFill(g orb.Geometry) error {
	switch v := g.(type) {
	case orb.Polygon:
		if len(v) == 0 {
			return nil
		}
		if err := validatePolygon(v); err != nil {
			return err
		}
		t.Fill.Polygons = append(t.Fill.Polygons, v)
	case orb.MultiPolygon:
		for _, poly := range v {
			if err := validatePolygon(poly); err != nil {
				return err
			}
			t.Fill.Polygons = append(t.Fill.Polygons, poly)
		}
	case orb.LineString:
		t.Fill.Lines = append(t.Fill.Lines, v)
	case orb.MultiLineString:
		t.Fill.Lines = append(t.Fill.Lines, v...)
	}
	return nil
}

func validatePolygon(poly orb.Polygon) error {
	for _, r := range poly {
		if err := geom.ValidateRing(r); err != nil {
			return err
		}
	}
	return nil
}

// checkSquare verifies that g is a hole-free polygon with its origin at
// (0,0) and exactly size×size area. A simple ring whose area equals its
// bounding box area is that box, so this also rules out rotated squares.
func checkSquare(g orb.Geometry, size int64) (orb.Polygon, error) {
	poly, ok := g.(orb.Polygon)
	if !ok || len(poly) == 0 {
		return nil, fmt.Errorf("%w: first record must be a POLYGON, got %s", ErrInvalidTileBounds, g.GeoJSONType())
	}
	if len(poly) != 1 {
		return nil, fmt.Errorf("%w: bounding square has holes", ErrInvalidTileBounds)
	}
	b, _ := geom.Bound(orb.MultiPolygon{poly})
	s := float64(size)
	if b.Min != (orb.Point{0, 0}) {
		return nil, fmt.Errorf("%w: origin is (%v, %v), want (0, 0)", ErrInvalidTileBounds, b.Min[0], b.Min[1])
	}
	if b.Max != (orb.Point{s, s}) {
		return nil, fmt.Errorf("%w: extent is %vx%v, want %dx%d", ErrInvalidTileBounds, b.Max[0], b.Max[1], size, size)
	}
	if area := math.Abs(geom.SignedArea(poly[0])); area != s*s {
		return nil, fmt.Errorf("%w: area is %v, want %v", ErrInvalidTileBounds, area, s*s)
	}
	return poly, nil
}
