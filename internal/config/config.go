// Package config assembles the server configuration. Explicitly set flags win
// over INFILL_* environment variables (optionally seeded from a .env file),
// which win over the config file, which wins over flag defaults.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/signalsfoundry/layered-infill/core"
	"github.com/signalsfoundry/layered-infill/internal/logging"
	"github.com/signalsfoundry/layered-infill/internal/observability"
	"github.com/signalsfoundry/layered-infill/tiles"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "INFILL"

// DebugPortEnv forces the gRPC port when set, for running the engine by hand
// next to a host that expects it on a fixed port.
const DebugPortEnv = "CURAENGINE_INFILL_GENERATE_PORT"

// Config is the complete server configuration.
type Config struct {
	Address string
	Port    int
	// HTTPAddr enables the HTTP gateway when non-empty.
	HTTPAddr string
	// MetricsAddr serves /metrics on its own listener when non-empty.
	MetricsAddr string

	TilesPath       string
	TileSize        int64
	CacheMaxCost    int64
	LoadConcurrency int
	// MaxPlacements caps the tile copies a single request may lay out.
	MaxPlacements int64
	// Debug is set when DebugPortEnv selected the port.
	Debug bool

	Log     logging.Config
	Tracing observability.TracingConfig
}

// GRPCAddr returns the host:port the gRPC server listens on.
func (c Config) GRPCAddr() string {
	return net.JoinHostPort(c.Address, strconv.Itoa(c.Port))
}

// Validate reports configuration that cannot start a server.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.TilesPath) == "" {
		errs = append(errs, errors.New("tiles_path is required"))
	}
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.TileSize <= 0 {
		errs = append(errs, fmt.Errorf("tile-size must be positive, got %d", c.TileSize))
	}
	if c.MaxPlacements <= 0 {
		errs = append(errs, fmt.Errorf("max-placements must be positive, got %d", c.MaxPlacements))
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("tracing-sample-ratio must be within [0,1], got %v", c.Tracing.SampleRatio))
	}
	return errors.Join(errs...)
}

// NewFlagSet declares every configuration flag with its default.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "", "optional config file (yaml, json or toml)")
	fs.String("env-file", "", "optional .env file loaded before reading the environment")

	fs.String("address", "127.0.0.1", "gRPC listen address")
	fs.Int("port", 33700, "gRPC listen port")
	fs.String("http-addr", "", "HTTP gateway listen address; empty disables the gateway")
	fs.String("metrics-addr", "", "standalone Prometheus /metrics listen address")

	fs.String("tiles_path", "tiles", "root directory holding <pattern>/<z>_<pattern>.wkt tiles")
	fs.Int64("tile-size", tiles.DefaultTileSize, "side length of the canonical tile square")
	fs.Int64("cache-max-cost", core.DefaultCacheMaxCost, "scaled tile cache budget in vertices")
	fs.Int("load-concurrency", runtime.NumCPU(), "patterns parsed in parallel at startup")
	fs.Int64("max-placements", core.DefaultMaxPlacements, "tile copies allowed per request")

	fs.String("log-level", "info", "log level: debug, info, warn, error")
	fs.String("log-format", "text", "log format: text or json")
	fs.String("log-file", "", "write logs to this size-rotated file instead of stdout")
	fs.Int("log-file-max-size-mb", 50, "rotate the log file after this many megabytes")
	fs.Int("log-file-max-backups", 3, "rotated log files to keep")

	fs.Bool("tracing-enabled", false, "export OpenTelemetry traces")
	fs.String("tracing-exporter", "stdout", "trace exporter: stdout or otlp")
	fs.String("tracing-endpoint", "", "OTLP gRPC endpoint")
	fs.String("tracing-service-name", "layered-infill", "service.name resource attribute")
	fs.Float64("tracing-sample-ratio", 1.0, "parent-based trace sampling ratio")
	return fs
}

// Load parses args and merges the other configuration sources.
func Load(args []string) (Config, error) {
	fs := NewFlagSet("infill-server")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return FromFlags(fs)
}

// FromFlags builds a Config from an already parsed flag set.
func FromFlags(fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return Config{}, fmt.Errorf("bind flags: %w", err)
	}

	if envFile, _ := fs.GetString("env-file"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := Config{
		Address:         v.GetString("address"),
		Port:            v.GetInt("port"),
		HTTPAddr:        v.GetString("http-addr"),
		MetricsAddr:     v.GetString("metrics-addr"),
		TilesPath:       v.GetString("tiles_path"),
		TileSize:        v.GetInt64("tile-size"),
		CacheMaxCost:    v.GetInt64("cache-max-cost"),
		LoadConcurrency: v.GetInt("load-concurrency"),
		MaxPlacements:   v.GetInt64("max-placements"),
		Log: logging.Config{
			Level:      v.GetString("log-level"),
			Format:     v.GetString("log-format"),
			File:       v.GetString("log-file"),
			MaxSizeMB:  v.GetInt("log-file-max-size-mb"),
			MaxBackups: v.GetInt("log-file-max-backups"),
			AddSource:  true,
		},
		Tracing: observability.TracingConfig{
			Enabled:     v.GetBool("tracing-enabled"),
			Exporter:    strings.ToLower(v.GetString("tracing-exporter")),
			Endpoint:    v.GetString("tracing-endpoint"),
			ServiceName: v.GetString("tracing-service-name"),
			SampleRatio: v.GetFloat64("tracing-sample-ratio"),
		},
	}

	if raw, ok := os.LookupEnv(DebugPortEnv); ok && raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("%s=%q: %w", DebugPortEnv, raw, err)
		}
		cfg.Port = port
		cfg.Debug = true
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
