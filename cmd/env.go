package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/catalog-cli/internal/batch"
	"github.com/sells-group/catalog-cli/internal/event"
	"github.com/sells-group/catalog-cli/internal/media"
	"github.com/sells-group/catalog-cli/internal/monitoring"
	"github.com/sells-group/catalog-cli/internal/pipeline"
	"github.com/sells-group/catalog-cli/internal/resilience"
	"github.com/sells-group/catalog-cli/internal/specs"
	"github.com/sells-group/catalog-cli/internal/store"
	"github.com/sells-group/catalog-cli/internal/task"
	"github.com/sells-group/catalog-cli/internal/tier"
	"github.com/sells-group/catalog-cli/pkg/assets"
)

// shutdownTimeout bounds how long Close waits for background pipelines.
const shutdownTimeout = 30 * time.Second

// catalogEnv holds the store, registry and pipeline shared by the serve and
// batch commands.
type catalogEnv struct {
	Store    store.Store
	Bus      *event.Bus
	Registry *task.Registry
	Pipeline *pipeline.Pipeline
	Tiers    *tier.Engine
	Batch    *batch.Runner
	Stats    *monitoring.Collector
}

// Close waits for background pipelines, then releases the store.
func (e *catalogEnv) Close() {
	if e.Pipeline != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := e.Pipeline.Wait(ctx); err != nil {
			zap.L().Warn("background tasks still running at shutdown", zap.Error(err))
		}
		cancel()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv validates the config for mode, opens the store and wires the
// pipeline. Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*catalogEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	// Asset service client (optional: hosted image URLs work without it).
	var assetClient assets.Client
	if cfg.Assets.BaseURL != "" {
		breaker := resilience.BreakerFromConfig("assets", cfg.Circuit)
		assetClient = assets.NewClient(cfg.Assets.Key,
			assets.WithBaseURL(cfg.Assets.BaseURL),
			assets.WithRateLimit(cfg.Assets.RequestsPerSecond, cfg.Assets.Burst),
			assets.WithRetryPolicy(resilience.PolicyFromConfig(cfg.Retry)),
			assets.WithBreaker(breaker),
		)
		zap.L().Info("asset service enabled", zap.String("base_url", cfg.Assets.BaseURL))
	} else {
		zap.L().Debug("CATALOG_ASSETS_BASE_URL not set, raw image uploads disabled")
	}

	bus := event.NewBus(0)
	registry := task.NewRegistry(bus)
	engine := tier.NewEngine(st)

	p := pipeline.New(cfg.Pipeline, pipeline.Deps{
		Base: st,
		Images: media.NewProcessor(st, assetClient, media.Optimizer{
			MaxDimension: cfg.Assets.MaxDimension,
			Quality:      cfg.Assets.JPEGQuality,
		}),
		Specs:    specs.NewProcessor(st),
		Tiers:    engine,
		Reloader: pipeline.NewStoreReloader(st, bus),
		Archiver: st,
	}, registry, bus)

	return &catalogEnv{
		Store:    st,
		Bus:      bus,
		Registry: registry,
		Pipeline: p,
		Tiers:    engine,
		Batch:    batch.New(p, cfg.Batch),
		Stats:    monitoring.NewCollector(registry, time.Duration(cfg.Monitoring.StuckAfterSecs)*time.Second),
	}, nil
}
