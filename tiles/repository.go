package tiles

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/signalsfoundry/layered-infill/geom"
	"github.com/signalsfoundry/layered-infill/internal/logging"
	"github.com/spf13/afero"
)

// Repository is a source of infill patterns.
type Repository interface {
	// Patterns lists the pattern names the repository can load.
	Patterns(ctx context.Context) ([]string, error)
	// Load reads every tile of the named pattern.
	Load(ctx context.Context, name string) (*Pattern, error)
}

// tileFileRE matches "<z>_<pattern>.wkt".
var tileFileRE = regexp.MustCompile(`^(-?[0-9]+)_(.+)\.wkt$`)

// TilePath returns the conventional location of a tile file:
// <root>/<pattern>/<z>_<pattern>.wkt.
func TilePath(root, pattern string, z int64) string {
	return filepath.Join(root, pattern, fmt.Sprintf("%d_%s.wkt", z, pattern))
}

// FlatTilePath returns the location of a single-tile pattern file:
// <root>/<pattern>.wkt.
func FlatTilePath(root, pattern string) string {
	return filepath.Join(root, pattern+".wkt")
}

// flatTileZ is the height assigned to a single-tile pattern. Hold-last
// selection makes it serve every layer at or above zero.
const flatTileZ = 0

// DirRepository loads patterns from a directory tree laid out as
// <root>/<pattern>/<z>_<pattern>.wkt. A pattern without a directory may
// instead be a single file <root>/<pattern>.wkt.
type DirRepository struct {
	fs       afero.Fs
	root     string
	tileSize int64
	log      logging.Logger
}

// DirOption customises a DirRepository.
type DirOption func(*DirRepository)

// WithTileSize overrides DefaultTileSize.
func WithTileSize(size int64) DirOption {
	return func(r *DirRepository) {
		if size > 0 {
			r.tileSize = size
		}
	}
}

// WithLogger attaches a logger for skipped files.
func WithLogger(log logging.Logger) DirOption {
	return func(r *DirRepository) {
		if log != nil {
			r.log = log
		}
	}
}

// NewDirRepository returns a repository rooted at root on fs.
func NewDirRepository(fs afero.Fs, root string, opts ...DirOption) *DirRepository {
	r := &DirRepository{
		fs:       fs,
		root:     root,
		tileSize: DefaultTileSize,
		log:      logging.Noop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Patterns lists the sub-directories of the root plus any <pattern>.wkt
// files directly under it. A directory shadows a file of the same name.
func (r *DirRepository) Patterns(ctx context.Context) ([]string, error) {
	infos, err := afero.ReadDir(r.fs, r.root)
	if err != nil {
		return nil, fmt.Errorf("list tiles root %s: %w", r.root, err)
	}
	seen := make(map[string]struct{}, len(infos))
	for _, info := range infos {
		name := info.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if !info.IsDir() {
			if !strings.HasSuffix(name, ".wkt") {
				continue
			}
			name = strings.TrimSuffix(name, ".wkt")
			if !validPatternName(name) {
				continue
			}
		}
		seen[name] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Load parses every "<z>_<name>.wkt" file in <root>/<name>. Files that do
// not follow the naming convention are skipped. When the directory does not
// exist, <root>/<name>.wkt is loaded as a pattern with a single tile at z=0.
func (r *DirRepository) Load(ctx context.Context, name string) (*Pattern, error) {
	if !validPatternName(name) {
		return nil, fmt.Errorf("%w: %q", ErrPatternNotFound, name)
	}
	dir := filepath.Join(r.root, name)
	infos, err := afero.ReadDir(r.fs, dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return r.loadFlat(ctx, name)
		}
		return nil, fmt.Errorf("read pattern dir %s: %w", dir, err)
	}

	var tiles []*Tile
	for _, info := range infos {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if info.IsDir() {
			continue
		}
		z, ok := parseTileName(info.Name(), name)
		if !ok {
			r.log.Debug(ctx, "skipping file outside tile naming convention",
				logging.String("pattern", name),
				logging.String("file", info.Name()),
			)
			continue
		}
		path := filepath.Join(dir, info.Name())
		tile, err := r.readTile(name, z, path)
		if err != nil {
			return nil, err
		}
		tiles = append(tiles, tile)
	}
	if len(tiles) == 0 {
		return nil, fmt.Errorf("%w: %q has no tiles", ErrPatternNotFound, name)
	}
	return NewPattern(name, tiles)
}

func (r *DirRepository) loadFlat(ctx context.Context, name string) (*Pattern, error) {
	path := FlatTilePath(r.root, name)
	info, err := r.fs.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %q", ErrPatternNotFound, name)
		}
		return nil, fmt.Errorf("stat tile %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %q", ErrPatternNotFound, name)
	}
	tile, err := r.readTile(name, flatTileZ, path)
	if err != nil {
		return nil, err
	}
	r.log.Debug(ctx, "loaded single-tile pattern", logging.String("pattern", name), logging.String("file", path))
	return NewPattern(name, []*Tile{tile})
}

func (r *DirRepository) readTile(pattern string, z int64, path string) (*Tile, error) {
	f, err := r.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open tile %s: %w", path, err)
	}
	defer f.Close()

	tile, err := ParseTile(pattern, z, r.tileSize, f)
	if err != nil {
		return nil, fmt.Errorf("tile %s: %w", path, err)
	}
	tile.Source = path
	return tile, nil
}

func parseTileName(file, pattern string) (int64, bool) {
	m := tileFileRE.FindStringSubmatch(file)
	if m == nil || m[2] != pattern {
		return 0, false
	}
	z, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return z, true
}

func validPatternName(name string) bool {
	if strings.TrimSpace(name) == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}

// MemoryRepository keeps tile sources in memory. Contents are parsed on
// Load, so corrupt entries fail the same way files do.
type MemoryRepository struct {
	mu       sync.RWMutex
	tileSize int64
	sources  map[string]map[int64]string
}

// NewMemoryRepository returns an empty repository for tiles of the given size.
func NewMemoryRepository(tileSize int64) *MemoryRepository {
	if tileSize <= 0 {
		tileSize = DefaultTileSize
	}
	return &MemoryRepository{
		tileSize: tileSize,
		sources:  make(map[string]map[int64]string),
	}
}

// Put stores the WKT content of a tile, replacing any previous content for
// the same pattern and height.
func (m *MemoryRepository) Put(pattern string, z int64, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sources[pattern] == nil {
		m.sources[pattern] = make(map[int64]string)
	}
	m.sources[pattern][z] = content
}

// Patterns lists stored pattern names.
func (m *MemoryRepository) Patterns(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.sources))
	for name := range m.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Load parses the stored tiles of a pattern.
func (m *MemoryRepository) Load(ctx context.Context, name string) (*Pattern, error) {
	m.mu.RLock()
	byZ := m.sources[name]
	heights := make([]int64, 0, len(byZ))
	for z := range byZ {
		heights = append(heights, z)
	}
	contents := make(map[int64]string, len(byZ))
	for z, c := range byZ {
		contents[z] = c
	}
	m.mu.RUnlock()

	if len(heights) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrPatternNotFound, name)
	}
	sort.Slice(heights, func(i, j int) bool { return heights[i] < heights[j] })

	tiles := make([]*Tile, 0, len(heights))
	for _, z := range heights {
		tile, err := ParseTile(name, z, m.tileSize, strings.NewReader(contents[z]))
		if err != nil {
			return nil, fmt.Errorf("tile %s@%d: %w", name, z, err)
		}
		tile.Source = fmt.Sprintf("memory:%s/%d", name, z)
		tiles = append(tiles, tile)
	}
	return NewPattern(name, tiles)
}

// ErrTileExists is returned by WriteTile when the target file already exists
// and overwriting was not requested.
var ErrTileExists = errors.New("tile file already exists")

// WriteTile writes a tile file at TilePath(root, pattern, z): the canonical
// square first, then one record per fill record. Existing files are only
// replaced when overwrite is set. The written content is validated by
// parsing it back before it is stored.
func WriteTile(fs afero.Fs, root, pattern string, z, size int64, records []string, overwrite bool) (string, error) {
	if !validPatternName(pattern) {
		return "", fmt.Errorf("invalid pattern name %q", pattern)
	}
	if size <= 0 {
		size = DefaultTileSize
	}
	path := TilePath(root, pattern, z)
	exists, err := afero.Exists(fs, path)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	if exists && !overwrite {
		return "", fmt.Errorf("%w: %s", ErrTileExists, path)
	}

	var buf bytes.Buffer
	buf.WriteString(geom.Marshal(CanonicalSquare(size)))
	buf.WriteByte('\n')
	for _, rec := range records {
		rec = strings.TrimSpace(rec)
		if rec == "" {
			continue
		}
		buf.WriteString(rec)
		buf.WriteByte('\n')
	}
	if _, err := ParseTile(pattern, z, size, bytes.NewReader(buf.Bytes())); err != nil {
		return "", err
	}

	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create pattern dir: %w", err)
	}
	if err := afero.WriteFile(fs, path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
