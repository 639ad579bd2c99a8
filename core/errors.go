package core

import (
	"errors"

	"github.com/signalsfoundry/layered-infill/geom"
	"github.com/signalsfoundry/layered-infill/tiles"
)

// Re-export the data-error sentinels so callers can depend on core.* alone.
var (
	// ErrMalformedWKT indicates geometry text that could not be parsed.
	ErrMalformedWKT = geom.ErrMalformedWKT
	// ErrInvalidTileBounds indicates a tile whose first record is not the
	// canonical square.
	ErrInvalidTileBounds = tiles.ErrInvalidTileBounds
	// ErrPatternNotFound indicates an unknown pattern name.
	ErrPatternNotFound = tiles.ErrPatternNotFound
	// ErrNoTileForHeight indicates a height below a pattern's lowest tile.
	ErrNoTileForHeight = tiles.ErrNoTileForHeight
	// ErrDegenerateBoundary indicates a boundary ring with fewer than three
	// distinct vertices.
	ErrDegenerateBoundary = errors.New("degenerate boundary")
	// ErrInvalidParameter indicates an out-of-range request parameter such as
	// a non-positive scale.
	ErrInvalidParameter = errors.New("invalid parameter")
)

// Kind names a failure class reported to callers.
type Kind string

const (
	KindNone               Kind = ""
	KindMalformedWKT       Kind = "MalformedWKT"
	KindInvalidTileBounds  Kind = "InvalidTileBounds"
	KindPatternNotFound    Kind = "PatternNotFound"
	KindNoTileForHeight    Kind = "NoTileForHeight"
	KindDegenerateBoundary Kind = "DegenerateBoundary"
	KindInvalidParameter   Kind = "InvalidParameter"
	KindInternal           Kind = "Internal"
)

// KindOf classifies err. Unrecognised errors are Internal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrMalformedWKT):
		return KindMalformedWKT
	case errors.Is(err, ErrInvalidTileBounds):
		return KindInvalidTileBounds
	case errors.Is(err, ErrPatternNotFound):
		return KindPatternNotFound
	case errors.Is(err, ErrNoTileForHeight):
		return KindNoTileForHeight
	case errors.Is(err, ErrDegenerateBoundary):
		return KindDegenerateBoundary
	case errors.Is(err, ErrInvalidParameter):
		return KindInvalidParameter
	default:
		return KindInternal
	}
}
