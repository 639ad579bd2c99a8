package tiles

import (
	"context"
	"fmt"
	"time"

	"github.com/signalsfoundry/layered-infill/internal/logging"
	"golang.org/x/sync/errgroup"
)

// LoadOptions controls LoadRegistry.
type LoadOptions struct {
	// Concurrency bounds the number of patterns parsed at once; values
	// below 1 mean one pattern at a time.
	Concurrency int
	Logger      logging.Logger
}

// LoadRegistry reads every pattern from repo and returns the resulting
// registry. Any corrupt tile fails the whole load: serving must not start
// with a partial catalogue.
func LoadRegistry(ctx context.Context, repo Repository, opts LoadOptions) (*Registry, error) {
	log := opts.Logger
	if log == nil {
		log = logging.Noop()
	}
	start := time.Now()

	names, err := repo.Patterns(ctx)
	if err != nil {
		return nil, err
	}

	patterns := make([]*Pattern, len(names))
	g, gctx := errgroup.WithContext(ctx)
	limit := opts.Concurrency
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			p, err := repo.Load(gctx, name)
			if err != nil {
				return fmt.Errorf("load pattern %q: %w", name, err)
			}
			patterns[i] = p
			log.Debug(gctx, "loaded pattern",
				logging.String("pattern", name),
				logging.Int("tiles", p.Len()),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	reg, err := NewRegistry(patterns...)
	if err != nil {
		return nil, err
	}
	log.Info(ctx, "tile registry loaded",
		logging.Int("patterns", len(reg.Names())),
		logging.Int("tiles", reg.TileCount()),
		logging.String("elapsed", time.Since(start).String()),
	)
	return reg, nil
}
