package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/signalsfoundry/layered-infill/core"
	"github.com/signalsfoundry/layered-infill/internal/config"
	"github.com/signalsfoundry/layered-infill/internal/httpapi"
	"github.com/signalsfoundry/layered-infill/internal/logging"
	"github.com/signalsfoundry/layered-infill/internal/observability"
	"github.com/signalsfoundry/layered-infill/internal/rpc"
	"github.com/signalsfoundry/layered-infill/tiles"
	"github.com/spf13/afero"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "infill-server: %v\n", err)
		os.Exit(2)
	}

	log := logging.New(cfg.Log)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lis, err := net.Listen("tcp", cfg.GRPCAddr())
	if err != nil {
		log.Error(ctx, "failed to listen for gRPC", logging.String("addr", cfg.GRPCAddr()), logging.Err(err))
		os.Exit(1)
	}

	if err := run(ctx, cfg, log, lis); err != nil {
		log.Error(ctx, "infill server exited", logging.Err(err))
		os.Exit(1)
	}
}

// run loads the tiles, serves gRPC on lis plus the optional HTTP listeners,
// and blocks until ctx is cancelled or a server fails.
func run(ctx context.Context, cfg config.Config, log logging.Logger, lis net.Listener) error {
	if log == nil {
		log = logging.Noop()
	}

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	collector, err := observability.NewInfillCollector(prometheus.NewRegistry())
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	repo := tiles.NewDirRepository(afero.NewOsFs(), cfg.TilesPath,
		tiles.WithTileSize(cfg.TileSize),
		tiles.WithLogger(log),
	)
	reg, err := tiles.LoadRegistry(ctx, repo, tiles.LoadOptions{
		Concurrency: cfg.LoadConcurrency,
		Logger:      log,
	})
	if err != nil {
		return fmt.Errorf("load tiles from %s: %w", cfg.TilesPath, err)
	}
	collector.SetRegistryCounts(len(reg.Names()), reg.TileCount())

	cache, err := core.NewTileCache(cfg.CacheMaxCost, collector)
	if err != nil {
		return fmt.Errorf("init tile cache: %w", err)
	}
	defer cache.Close()

	gen := core.NewGenerationService(reg,
		core.WithLogger(log),
		core.WithGenerationRecorder(collector),
		core.WithTileCache(cache),
		core.WithMaxPlacements(cfg.MaxPlacements),
	)

	server := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			rpc.RequestIDUnaryServerInterceptor(log),
			rpc.TracingUnaryServerInterceptor(),
			collector.UnaryServerInterceptor(),
		),
	)
	rpc.RegisterInfillServer(server, rpc.NewInfillService(gen, reg, log))

	var httpServers []*http.Server
	if cfg.HTTPAddr != "" {
		if !cfg.Debug {
			gin.SetMode(gin.ReleaseMode)
		}
		router := httpapi.NewRouter(httpapi.Options{
			Generator:      gen,
			Patterns:       reg,
			Logger:         log,
			Metrics:        collector,
			MetricsHandler: collector.Handler(),
		})
		httpServers = append(httpServers, &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		})
	}
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		httpServers = append(httpServers, &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info(gctx, "starting infill gRPC server",
			logging.String("addr", lis.Addr().String()),
			logging.Bool("debug", cfg.Debug),
		)
		if err := server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc serve: %w", err)
		}
		return nil
	})
	for _, srv := range httpServers {
		srv := srv
		g.Go(func() error {
			log.Info(gctx, "starting HTTP listener", logging.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http serve %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info(context.Background(), "shutting down infill server")
		server.GracefulStop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		for _, srv := range httpServers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warn(shutdownCtx, "http shutdown", logging.String("addr", srv.Addr), logging.Err(err))
			}
		}
		return nil
	})
	return g.Wait()
}
