package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/signalsfoundry/layered-infill/core"
	"github.com/signalsfoundry/layered-infill/tiles"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load err = %v", err)
	}
	if got := cfg.GRPCAddr(); got != "127.0.0.1:33700" {
		t.Fatalf("GRPCAddr = %q, want 127.0.0.1:33700", got)
	}
	if cfg.TilesPath != "tiles" || cfg.TileSize != tiles.DefaultTileSize {
		t.Fatalf("tiles = %q/%d", cfg.TilesPath, cfg.TileSize)
	}
	if cfg.MaxPlacements != core.DefaultMaxPlacements {
		t.Fatalf("MaxPlacements = %d, want %d", cfg.MaxPlacements, core.DefaultMaxPlacements)
	}
	if cfg.HTTPAddr != "" || cfg.Debug || cfg.Tracing.Enabled {
		t.Fatalf("unexpected optional settings: %+v", cfg)
	}
}

func TestLoadHostPluginFlags(t *testing.T) {
	cfg, err := Load([]string{"--tiles_path", "/opt/cura/plugins/LayeredInfill", "--address", "localhost", "--port", "5555"})
	if err != nil {
		t.Fatalf("Load err = %v", err)
	}
	if cfg.TilesPath != "/opt/cura/plugins/LayeredInfill" {
		t.Fatalf("TilesPath = %q", cfg.TilesPath)
	}
	if got := cfg.GRPCAddr(); got != "localhost:5555" {
		t.Fatalf("GRPCAddr = %q", got)
	}
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("INFILL_TILE_SIZE", "1000")
	t.Setenv("INFILL_LOG_FORMAT", "json")
	t.Setenv("INFILL_TRACING_ENABLED", "true")
	t.Setenv("INFILL_TRACING_EXPORTER", "OTLP")
	t.Setenv("INFILL_TRACING_ENDPOINT", "collector:4317")
	t.Setenv("INFILL_MAX_PLACEMENTS", "64")

	cfg, err := Load([]string{"--log-format", "text"})
	if err != nil {
		t.Fatalf("Load err = %v", err)
	}
	if cfg.TileSize != 1000 {
		t.Fatalf("TileSize = %d, want 1000 from env", cfg.TileSize)
	}
	if cfg.Log.Format != "text" {
		t.Fatalf("Log.Format = %q, explicit flag should win over env", cfg.Log.Format)
	}
	if !cfg.Tracing.Enabled || cfg.Tracing.Exporter != "otlp" || cfg.Tracing.Endpoint != "collector:4317" {
		t.Fatalf("tracing = %+v", cfg.Tracing)
	}
	if cfg.MaxPlacements != 64 {
		t.Fatalf("MaxPlacements = %d, want 64 from env", cfg.MaxPlacements)
	}
}

func TestLoadDebugPort(t *testing.T) {
	t.Setenv(DebugPortEnv, "40123")
	cfg, err := Load([]string{"--port", "1"})
	if err != nil {
		t.Fatalf("Load err = %v", err)
	}
	if cfg.Port != 40123 || !cfg.Debug {
		t.Fatalf("port/debug = %d/%v, want 40123/true", cfg.Port, cfg.Debug)
	}

	t.Setenv(DebugPortEnv, "not-a-port")
	if _, err := Load(nil); err == nil {
		t.Fatalf("Load with invalid debug port = nil error")
	}
}

func TestLoadConfigAndEnvFiles(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "infill.yaml")
	if err := os.WriteFile(cfgPath, []byte("tiles_path: /srv/tiles\nhttp-addr: \":8080\"\ncache-max-cost: 1234\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("INFILL_CACHE_MAX_COST=999\n"), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("INFILL_CACHE_MAX_COST") })

	cfg, err := Load([]string{"--config", cfgPath, "--env-file", envPath})
	if err != nil {
		t.Fatalf("Load err = %v", err)
	}
	if cfg.TilesPath != "/srv/tiles" || cfg.HTTPAddr != ":8080" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.CacheMaxCost != 999 {
		t.Fatalf("CacheMaxCost = %d, env file should win over config file", cfg.CacheMaxCost)
	}
}

func TestValidate(t *testing.T) {
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load err = %v", err)
	}
	cfg.TilesPath = " "
	cfg.TileSize = 0
	cfg.Port = 70000
	cfg.MaxPlacements = 0
	err = cfg.Validate()
	if err == nil {
		t.Fatalf("Validate = nil, want errors")
	}
	for _, want := range []string{"tiles_path", "tile-size", "port", "max-placements"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("Validate error %q missing %q", err, want)
		}
	}
}
