package tiles

import (
	"fmt"
	"sort"
	"strings"
)

// Pattern is the set of tiles of one infill pattern, ordered by height.
type Pattern struct {
	Name string

	heights []int64
	tiles   map[int64]*Tile
}

// NewPattern groups tiles into a pattern. Heights must be unique.
func NewPattern(name string, tiles []*Tile) (*Pattern, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: empty pattern name", ErrPatternNotFound)
	}
	if len(tiles) == 0 {
		return nil, fmt.Errorf("%w: %q has no tiles", ErrPatternNotFound, name)
	}
	p := &Pattern{
		Name:    name,
		heights: make([]int64, 0, len(tiles)),
		tiles:   make(map[int64]*Tile, len(tiles)),
	}
	for _, t := range tiles {
		if t == nil {
			continue
		}
		if _, exists := p.tiles[t.Z]; exists {
			return nil, fmt.Errorf("pattern %q: duplicate tile for z=%d", name, t.Z)
		}
		p.tiles[t.Z] = t
		p.heights = append(p.heights, t.Z)
	}
	sort.Slice(p.heights, func(i, j int) bool { return p.heights[i] < p.heights[j] })
	return p, nil
}

// Heights returns the tile heights in ascending order.
func (p *Pattern) Heights() []int64 {
	return append([]int64(nil), p.heights...)
}

// Len returns the number of tiles in the pattern.
func (p *Pattern) Len() int { return len(p.heights) }

// Select returns the tile for z: the exact height when present, otherwise the
// tile at the greatest height below z. The last tile is held for every layer
// above it; heights below the first tile fail with ErrNoTileForHeight.
func (p *Pattern) Select(z int64) (*Tile, error) {
	// first index whose height is > z
	i := sort.Search(len(p.heights), func(i int) bool { return p.heights[i] > z })
	if i == 0 {
		lowest := int64(0)
		if len(p.heights) > 0 {
			lowest = p.heights[0]
		}
		return nil, fmt.Errorf("%w: pattern %q z=%d is below lowest tile z=%d", ErrNoTileForHeight, p.Name, z, lowest)
	}
	return p.tiles[p.heights[i-1]], nil
}

// Registry maps pattern names to patterns. It is built once at startup and
// only read afterwards, so it is safe for concurrent use without locking.
type Registry struct {
	patterns map[string]*Pattern
	names    []string
	tiles    int
}

// NewRegistry builds a registry from patterns. Names must be unique.
func NewRegistry(patterns ...*Pattern) (*Registry, error) {
	r := &Registry{patterns: make(map[string]*Pattern, len(patterns))}
	for _, p := range patterns {
		if p == nil {
			continue
		}
		if _, exists := r.patterns[p.Name]; exists {
			return nil, fmt.Errorf("duplicate pattern %q", p.Name)
		}
		r.patterns[p.Name] = p
		r.names = append(r.names, p.Name)
		r.tiles += p.Len()
	}
	sort.Strings(r.names)
	return r, nil
}

// Pattern returns the named pattern.
func (r *Registry) Pattern(name string) (*Pattern, error) {
	p, ok := r.patterns[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPatternNotFound, name)
	}
	return p, nil
}

// SelectTile returns the tile of the named pattern for height z, following
// Pattern.Select.
func (r *Registry) SelectTile(name string, z int64) (*Tile, error) {
	p, err := r.Pattern(name)
	if err != nil {
		return nil, err
	}
	return p.Select(z)
}

// Names returns the registered pattern names in sorted order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// TileCount returns the total number of tiles across all patterns.
func (r *Registry) TileCount() int { return r.tiles }
