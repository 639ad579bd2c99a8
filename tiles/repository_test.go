package tiles

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/signalsfoundry/layered-infill/geom"
	"github.com/signalsfoundry/layered-infill/internal/logging"
	"github.com/spf13/afero"
)

const tilesRoot = "/plugins/CuraEngineLayeredInfill/tiles"

func writeFile(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := afero.WriteFile(fs, path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestDirRepositoryLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, TilePath(tilesRoot, "grid", 200), canonicalSquare+"\nLINESTRING (0 0, 20000 20000)\n")
	writeFile(t, fs, TilePath(tilesRoot, "grid", 600), canonicalSquare+"\nLINESTRING (0 20000, 20000 0)\n")
	writeFile(t, fs, filepath.Join(tilesRoot, "grid", "README.txt"), "not a tile")
	writeFile(t, fs, filepath.Join(tilesRoot, "grid", "200_other.wkt"), "not this pattern")
	writeFile(t, fs, TilePath(tilesRoot, "gyroid", 0), canonicalSquare+"\n")

	repo := NewDirRepository(fs, tilesRoot, WithLogger(logging.Noop()))

	names, err := repo.Patterns(context.Background())
	if err != nil {
		t.Fatalf("Patterns err = %v", err)
	}
	if want := []string{"grid", "gyroid"}; !reflect.DeepEqual(names, want) {
		t.Fatalf("Patterns = %v, want %v", names, want)
	}

	p, err := repo.Load(context.Background(), "grid")
	if err != nil {
		t.Fatalf("Load(grid) err = %v", err)
	}
	if want := []int64{200, 600}; !reflect.DeepEqual(p.Heights(), want) {
		t.Fatalf("Heights = %v, want %v", p.Heights(), want)
	}
	tile, err := p.Select(200)
	if err != nil {
		t.Fatalf("Select(200): %v", err)
	}
	if tile.Source != TilePath(tilesRoot, "grid", 200) {
		t.Fatalf("Source = %q", tile.Source)
	}
}

func TestDirRepositoryFlatTile(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, FlatTilePath(tilesRoot, "lines"), canonicalSquare+"\nLINESTRING (0 0, 20000 20000)\n")
	writeFile(t, fs, TilePath(tilesRoot, "grid", 200), canonicalSquare+"\n")
	writeFile(t, fs, FlatTilePath(tilesRoot, "grid"), "shadowed by the grid directory")
	writeFile(t, fs, filepath.Join(tilesRoot, "notes.txt"), "not a tile")

	repo := NewDirRepository(fs, tilesRoot)
	names, err := repo.Patterns(context.Background())
	if err != nil {
		t.Fatalf("Patterns err = %v", err)
	}
	if want := []string{"grid", "lines"}; !reflect.DeepEqual(names, want) {
		t.Fatalf("Patterns = %v, want %v", names, want)
	}

	reg, err := LoadRegistry(context.Background(), repo, LoadOptions{Concurrency: 2})
	if err != nil {
		t.Fatalf("LoadRegistry err = %v", err)
	}
	for _, z := range []int64{0, 200, 12345} {
		tile, err := reg.SelectTile("lines", z)
		if err != nil {
			t.Fatalf("SelectTile(lines, %d) err = %v", z, err)
		}
		if tile.Z != 0 || tile.Source != FlatTilePath(tilesRoot, "lines") || len(tile.Fill.Lines) != 1 {
			t.Fatalf("SelectTile(lines, %d) = %+v", z, tile)
		}
	}
	if p, err := reg.Pattern("grid"); err != nil || !reflect.DeepEqual(p.Heights(), []int64{200}) {
		t.Fatalf("grid pattern = %v, %v; want the directory tiles", p, err)
	}
}

func TestDirRepositoryErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, TilePath(tilesRoot, "corrupt", 200), canonicalSquare+"\nPOLYGON ((0 0,\n")
	writeFile(t, fs, TilePath(tilesRoot, "badbounds", 200), "POLYGON ((0 0, 0 10, 10 10, 10 0, 0 0))\n")
	writeFile(t, fs, filepath.Join(tilesRoot, "empty", "notes.md"), "nothing")
	writeFile(t, fs, FlatTilePath(tilesRoot, "flatcorrupt"), canonicalSquare+"\nLINESTRING (1 1)\n")

	repo := NewDirRepository(fs, tilesRoot)
	ctx := context.Background()

	tests := []struct {
		name    string
		pattern string
		want    error
	}{
		{name: "missing dir", pattern: "honeycomb", want: ErrPatternNotFound},
		{name: "no tile files", pattern: "empty", want: ErrPatternNotFound},
		{name: "path traversal", pattern: "../etc", want: ErrPatternNotFound},
		{name: "corrupt", pattern: "corrupt", want: geom.ErrMalformedWKT},
		{name: "bad bounds", pattern: "badbounds", want: ErrInvalidTileBounds},
		{name: "corrupt flat tile", pattern: "flatcorrupt", want: geom.ErrMalformedWKT},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := repo.Load(ctx, tc.pattern)
			if !errors.Is(err, tc.want) {
				t.Fatalf("Load(%q) err = %v, want %v", tc.pattern, err, tc.want)
			}
		})
	}
}

func TestDirRepositoryCustomTileSize(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, TilePath(tilesRoot, "small", 0), "POLYGON ((0 0, 0 500, 500 500, 500 0, 0 0))\n")

	if _, err := NewDirRepository(fs, tilesRoot).Load(context.Background(), "small"); !errors.Is(err, ErrInvalidTileBounds) {
		t.Fatalf("default size Load err = %v, want ErrInvalidTileBounds", err)
	}
	if _, err := NewDirRepository(fs, tilesRoot, WithTileSize(500)).Load(context.Background(), "small"); err != nil {
		t.Fatalf("WithTileSize(500) Load err = %v", err)
	}
}

func TestMemoryRepository(t *testing.T) {
	repo := NewMemoryRepository(0)
	repo.Put("grid", 400, canonicalSquare+"\nLINESTRING (0 0, 20000 20000)\n")
	repo.Put("grid", 200, canonicalSquare+"\n")

	p, err := repo.Load(context.Background(), "grid")
	if err != nil {
		t.Fatalf("Load err = %v", err)
	}
	if want := []int64{200, 400}; !reflect.DeepEqual(p.Heights(), want) {
		t.Fatalf("Heights = %v, want %v", p.Heights(), want)
	}
	if _, err := repo.Load(context.Background(), "missing"); !errors.Is(err, ErrPatternNotFound) {
		t.Fatalf("Load(missing) err = %v, want ErrPatternNotFound", err)
	}
}

func TestWriteTileRefusesOverwrite(t *testing.T) {
	fs := afero.NewMemMapFs()
	records := []string{"POLYGON ((0 10000, 10000 10000, 10000 0, 0 10000))", "LINESTRING (0 0, 10000 10000)"}

	path, err := WriteTile(fs, tilesRoot, "shapely_test", 200, DefaultTileSize, records, false)
	if err != nil {
		t.Fatalf("WriteTile err = %v", err)
	}
	if path != TilePath(tilesRoot, "shapely_test", 200) {
		t.Fatalf("path = %q", path)
	}

	if _, err := WriteTile(fs, tilesRoot, "shapely_test", 200, DefaultTileSize, records, false); !errors.Is(err, ErrTileExists) {
		t.Fatalf("second WriteTile err = %v, want ErrTileExists", err)
	}
	if _, err := WriteTile(fs, tilesRoot, "shapely_test", 200, DefaultTileSize, records[:1], true); err != nil {
		t.Fatalf("WriteTile(overwrite) err = %v", err)
	}

	p, err := NewDirRepository(fs, tilesRoot).Load(context.Background(), "shapely_test")
	if err != nil {
		t.Fatalf("Load after write err = %v", err)
	}
	tile, _ := p.Select(200)
	if len(tile.Fill.Polygons) != 1 || len(tile.Fill.Lines) != 0 {
		t.Fatalf("overwritten tile fill = %+v", tile.Fill)
	}
}

func TestWriteTileValidatesRecords(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := WriteTile(fs, tilesRoot, "broken", 0, DefaultTileSize, []string{"POLYGON ((0 0, 1 1, 0 0))"}, false)
	if !errors.Is(err, geom.ErrMalformedWKT) {
		t.Fatalf("WriteTile err = %v, want ErrMalformedWKT", err)
	}
	if exists, _ := afero.Exists(fs, TilePath(tilesRoot, "broken", 0)); exists {
		t.Fatalf("invalid tile was written")
	}
}
