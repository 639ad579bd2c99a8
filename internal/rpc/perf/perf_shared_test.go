//go:build perf || perf_large

package perf

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/signalsfoundry/layered-infill/core"
	"github.com/signalsfoundry/layered-infill/internal/logging"
	"github.com/signalsfoundry/layered-infill/internal/rpc"
	"github.com/signalsfoundry/layered-infill/tiles"
)

type perfConfig struct {
	TilesAcross     int
	LinesPerTile    int
	PolygonsPerTile int
	Layers          int
}

const tileHeightStep = 200

func newInfillService(b *testing.B, cfg perfConfig) *rpc.InfillService {
	b.Helper()
	repo := tiles.NewMemoryRepository(tiles.DefaultTileSize)
	for z := int64(0); z < 4*tileHeightStep; z += tileHeightStep {
		repo.Put("bench", z, tileContent(cfg, z))
	}
	reg, err := tiles.LoadRegistry(context.Background(), repo, tiles.LoadOptions{Concurrency: 4})
	if err != nil {
		b.Fatalf("LoadRegistry: %v", err)
	}
	cache, err := core.NewTileCache(core.DefaultCacheMaxCost, nil)
	if err != nil {
		b.Fatalf("NewTileCache: %v", err)
	}
	b.Cleanup(cache.Close)
	gen := core.NewGenerationService(reg, core.WithTileCache(cache), core.WithLogger(logging.Noop()))
	return rpc.NewInfillService(gen, reg, logging.Noop())
}

// tileContent builds a tile with evenly spaced diagonal-ish lines and small
// square islands; z shifts the lines so every height differs.
func tileContent(cfg perfConfig, z int64) string {
	size := tiles.DefaultTileSize
	var sb strings.Builder
	fmt.Fprintf(&sb, "POLYGON ((0 0, 0 %d, %d %d, %d 0, 0 0))\n", size, size, size, size)
	step := size / int64(cfg.LinesPerTile+1)
	shift := (z / tileHeightStep) * step / 4
	for i := int64(1); i <= int64(cfg.LinesPerTile); i++ {
		y := i * step
		fmt.Fprintf(&sb, "LINESTRING (0 %d, %d %d)\n", y, size, (y+shift)%size)
	}
	cell := size / int64(cfg.PolygonsPerTile+1)
	for i := int64(1); i <= int64(cfg.PolygonsPerTile); i++ {
		x := i * cell
		fmt.Fprintf(&sb, "POLYGON ((%d %d, %d %d, %d %d, %d %d, %d %d))\n",
			x, x, x+cell/2, x, x+cell/2, x+cell/2, x, x+cell/2, x, x)
	}
	return sb.String()
}

func boundary(cfg perfConfig) rpc.Polygons {
	side := int64(cfg.TilesAcross)*tiles.DefaultTileSize - 1500
	return rpc.Polygons{Polygons: []rpc.Polygon{{
		Outline: rpc.Path{Path: []rpc.Point{{X: 750, Y: 750}, {X: side, Y: 750}, {X: side, Y: side}, {X: 750, Y: side}}},
		Holes: []rpc.Path{{Path: []rpc.Point{
			{X: side / 3, Y: side / 3}, {X: side / 3, Y: 2 * side / 3}, {X: 2 * side / 3, Y: 2 * side / 3}, {X: 2 * side / 3, Y: side / 3},
		}}},
	}}}
}

func benchmarkGenerate(b *testing.B, cfg perfConfig, scale float64) {
	ctx := context.Background()
	svc := newInfillService(b, cfg)
	areas := boundary(cfg)
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		for layer := 0; layer < cfg.Layers; layer++ {
			req := &rpc.GenerateRequest{
				Pattern:     "bench",
				Z:           int64(layer * 20),
				InfillAreas: areas,
				Settings:    rpc.Settings{InfillScale: scale},
			}
			if _, err := svc.Generate(ctx, req); err != nil {
				b.Fatalf("Generate(z=%d): %v", req.Z, err)
			}
		}
	}
}

func benchmarkGenerateParallel(b *testing.B, cfg perfConfig) {
	ctx := context.Background()
	svc := newInfillService(b, cfg)
	areas := boundary(cfg)
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		layer := 0
		for pb.Next() {
			req := &rpc.GenerateRequest{Pattern: "bench", Z: int64(layer%cfg.Layers) * 20, InfillAreas: areas}
			if _, err := svc.Generate(ctx, req); err != nil {
				b.Errorf("Generate(z=%d): %v", req.Z, err)
				return
			}
			layer++
		}
	})
}
