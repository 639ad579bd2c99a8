package main

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/signalsfoundry/layered-infill/internal/config"
	"github.com/signalsfoundry/layered-infill/internal/logging"
	"github.com/signalsfoundry/layered-infill/internal/rpc"
	"github.com/signalsfoundry/layered-infill/tiles"
	"github.com/spf13/afero"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func writeTestTiles(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	fs := afero.NewOsFs()
	if _, err := tiles.WriteTile(fs, root, "grid", 0, tiles.DefaultTileSize, []string{"LINESTRING (0 0, 20000 20000)"}, false); err != nil {
		t.Fatalf("WriteTile: %v", err)
	}
	if _, err := tiles.WriteTile(fs, root, "grid", 400, tiles.DefaultTileSize, []string{"LINESTRING (0 20000, 20000 0)"}, false); err != nil {
		t.Fatalf("WriteTile: %v", err)
	}
	return root
}

func TestInfillServerStartupSmoke(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}

	cfg, err := config.Load([]string{"--tiles_path", writeTestTiles(t), "--log-level", "warn"})
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	log := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, cfg, log, lis)
	}()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	defer conn.Close()
	client := rpc.NewInfillClient(conn)

	list, err := client.ListPatterns(ctx, &rpc.ListPatternsRequest{}, grpc.WaitForReady(true))
	if err != nil {
		t.Fatalf("ListPatterns: %v", err)
	}
	if len(list.Patterns) != 1 || list.Patterns[0].Name != "grid" {
		t.Fatalf("patterns = %+v, want grid", list.Patterns)
	}

	resp, err := client.Generate(ctx, &rpc.GenerateRequest{
		Pattern: "grid",
		Z:       800,
		InfillAreas: rpc.Polygons{Polygons: []rpc.Polygon{{
			Outline: rpc.Path{Path: []rpc.Point{{X: 0, Y: 0}, {X: 20000, Y: 0}, {X: 20000, Y: 20000}, {X: 0, Y: 20000}}},
		}}},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.TileZ != 400 || len(resp.PolyLines) != 1 {
		t.Fatalf("response = %+v, want the z=400 tile held", resp)
	}

	cancel()

	if err := <-errCh; err != nil {
		t.Fatalf("server returned error: %v", err)
	}
}

func TestRunFailsWithoutTiles(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	defer lis.Close()

	cfg, err := config.Load([]string{"--tiles_path", t.TempDir() + "/missing"})
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	if err := run(context.Background(), cfg, logging.Noop(), lis); err == nil {
		t.Fatalf("run with missing tiles dir = nil error")
	}
}
