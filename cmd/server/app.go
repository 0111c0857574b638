package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/AngelCh415/insights-sync/internal/adplatform"
	"github.com/AngelCh415/insights-sync/internal/cache"
	"github.com/AngelCh415/insights-sync/internal/config"
	"github.com/AngelCh415/insights-sync/internal/hierarchy"
	"github.com/AngelCh415/insights-sync/internal/ingest"
	"github.com/AngelCh415/insights-sync/internal/leads"
	"github.com/AngelCh415/insights-sync/internal/metrics"
	"github.com/AngelCh415/insights-sync/internal/models"
	"github.com/AngelCh415/insights-sync/internal/monitoring"
	"github.com/AngelCh415/insights-sync/internal/period"
	"github.com/AngelCh415/insights-sync/internal/prospects"
	"github.com/AngelCh415/insights-sync/internal/store"
)

type app struct {
	registry   *prometheus.Registry
	collector  *monitoring.Collector
	store      store.Store
	client     *adplatform.Client
	periods    *period.Resolver
	cache      *cache.InsightsCache
	reconciler *metrics.Reconciler
	prospects  *prospects.Service
	syncer     *ingest.Syncer
}

func openStore(ctx context.Context, c config.StoreConfig) (store.Store, error) {
	switch c.Driver {
	case "", "memory":
		return store.NewMemoryStore(), nil
	case "postgres":
		pg, err := store.NewPostgres(ctx, c.DatabaseURL, c.MaxConns)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		return pg, nil
	}
	return nil, eris.Errorf("unknown store driver %q", c.Driver)
}

func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app, error) {
	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := monitoring.NewCollector(reg)

	p := cfg.Platform
	client := adplatform.New(adplatform.NewHTTPClient(p.Timeout()), adplatform.Options{
		BaseURL:     p.BaseURL,
		APIVersion:  p.APIVersion,
		MaxPages:    p.MaxPages,
		PageSize:    p.PageSize,
		RatePerSec:  p.RatePerSec,
		Burst:       p.Burst,
		MaxInFlight: p.MaxInFlight,
		MaxAttempts: p.MaxAttempts,
	}, log.Named("platform"), collector)

	agg := hierarchy.NewAggregator(cfg.Hierarchy.FanOut, log.Named("hierarchy"))
	loader := cache.LoaderFunc(func(ctx context.Context, token, accountID string, w models.TimeWindow) ([]models.HierarchyNode, bool, error) {
		return agg.Build(ctx, client.WithToken(token), accountID, w)
	})

	ps := prospects.New(st, log.Named("prospects"),
		prospects.WithBatchSize(cfg.Persistence.BatchSize),
		prospects.WithMetrics(collector))
	engine := leads.NewEngine(log.Named("leads"), collector, cfg.Hierarchy.FanOut)

	return &app{
		registry:  reg,
		collector: collector,
		store:     st,
		client:    client,
		periods:   period.NewResolver(cfg.Reporting.Location(), time.Now),
		cache: cache.New(loader, st, log.Named("cache"),
			cache.WithTTL(cfg.Cache.TTL()),
			cache.WithMetrics(collector)),
		reconciler: metrics.NewReconciler(ps, log.Named("metrics")),
		prospects:  ps,
		syncer:     ingest.NewSyncer(engine, ps, log.Named("ingest")),
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}
