package cache

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/AngelCh415/insights-sync/internal/models"
	"github.com/AngelCh415/insights-sync/internal/monitoring"
	"github.com/AngelCh415/insights-sync/internal/store"
)

const DefaultTTL = 30 * time.Minute

type Loader interface {
	Load(ctx context.Context, token, accountID string, w models.TimeWindow) (campaigns []models.HierarchyNode, complete bool, err error)
}

type LoaderFunc func(ctx context.Context, token, accountID string, w models.TimeWindow) ([]models.HierarchyNode, bool, error)

func (f LoaderFunc) Load(ctx context.Context, token, accountID string, w models.TimeWindow) ([]models.HierarchyNode, bool, error) {
	return f(ctx, token, accountID, w)
}

type Request struct {
	AccountID string
	UserID    string
	Token     string
	Window    models.TimeWindow
	Refresh   bool
}

func (r Request) key() string {
	return r.AccountID + "|" + r.Window.Key()
}

type Result struct {
	Campaigns []models.HierarchyNode `json:"campaigns"`
	FromCache bool                   `json:"fromCache"`
	FetchedAt time.Time              `json:"timestamp"`
}

type durableDoc struct {
	Campaigns []models.HierarchyNode `json:"campaigns"`
	WindowKey string                 `json:"windowKey"`
	LastSync  time.Time              `json:"lastSync"`
	NextSync  time.Time              `json:"nextSync"`
}

type Option func(*InsightsCache)

func WithClock(now func() time.Time) Option {
	return func(c *InsightsCache) { c.now = now }
}

func WithTTL(ttl time.Duration) Option {
	return func(c *InsightsCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithMetrics(m *monitoring.Collector) Option {
	return func(c *InsightsCache) { c.metrics = m }
}

type InsightsCache struct {
	loader  Loader
	store   store.Store
	ttl     time.Duration
	now     func() time.Time
	log     *zap.Logger
	metrics *monitoring.Collector

	flight  singleflight.Group
	mu      sync.Mutex // serializa escritores
	entries atomic.Pointer[map[string]models.CacheEntry]
}

func New(loader Loader, st store.Store, log *zap.Logger, opts ...Option) *InsightsCache {
	if log == nil {
		log = zap.NewNop()
	}
	c := &InsightsCache{loader: loader, store: st, ttl: DefaultTTL, now: time.Now, log: log}
	for _, o := range opts {
		o(c)
	}
	empty := map[string]models.CacheEntry{}
	c.entries.Store(&empty)
	return c
}

func durablePath(userID string) string {
	return store.Path("users", userID, "insightsCache")
}

func (c *InsightsCache) Get(ctx context.Context, req Request) (Result, error) {
	if req.AccountID == "" {
		return Result{}, eris.New("cache: account id is required")
	}
	key := req.key()
	if !req.Refresh {
		if res, ok := c.lookup(ctx, req, key); ok {
			return res, nil
		}
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := c.flight.DoChan(req.UserID+"|"+key, func() (any, error) {
		if !req.Refresh {
			// otro caller pudo llenar la llave mientras esperábamos
			if e, ok := c.ephemeral(key); ok {
				return Result{Campaigns: e.Campaigns, FromCache: true, FetchedAt: e.FetchedAt}, nil
			}
		}
		campaigns, complete, err := c.loader.Load(loadCtx, req.Token, req.AccountID, req.Window)
		if err != nil {
			return nil, err
		}
		fetched := c.now()
		if complete {
			c.Set(loadCtx, req, campaigns, fetched)
		} else {
			c.log.Warn("serving incomplete hierarchy uncached", zap.String("key", key), zap.Int("campaigns", len(campaigns)))
		}
		return Result{Campaigns: campaigns, FetchedAt: fetched}, nil
	})

	select {
	case <-ctx.Done():
		return Result{}, eris.Wrapf(ctx.Err(), "cache: load %s", key)
	case r := <-ch:
		if r.Err != nil {
			return Result{}, eris.Wrapf(r.Err, "cache: load %s", key)
		}
		return r.Val.(Result), nil
	}
}

func (c *InsightsCache) lookup(ctx context.Context, req Request, key string) (Result, bool) {
	if e, ok := c.ephemeral(key); ok {
		c.metrics.CacheLookup("ephemeral", true)
		return Result{Campaigns: e.Campaigns, FromCache: true, FetchedAt: e.FetchedAt}, true
	}
	c.metrics.CacheLookup("ephemeral", false)

	e, ok := c.durable(ctx, req)
	c.metrics.CacheLookup("durable", ok)
	if !ok {
		return Result{}, false
	}
	c.put(key, e)
	return Result{Campaigns: e.Campaigns, FromCache: true, FetchedAt: e.FetchedAt}, true
}

func (c *InsightsCache) ephemeral(key string) (models.CacheEntry, bool) {
	e, ok := (*c.entries.Load())[key]
	if !ok || !e.Fresh(c.now()) {
		return models.CacheEntry{}, false
	}
	return e, true
}

func (c *InsightsCache) durable(ctx context.Context, req Request) (models.CacheEntry, bool) {
	if c.store == nil || req.UserID == "" {
		return models.CacheEntry{}, false
	}
	d, err := c.store.Get(ctx, durablePath(req.UserID), req.AccountID)
	if err != nil {
		if !eris.Is(err, store.ErrNotFound) {
			c.log.Warn("durable cache read failed", zap.String("account", req.AccountID), zap.Error(err))
		}
		return models.CacheEntry{}, false
	}
	var doc durableDoc
	if err := d.Decode(&doc); err != nil {
		c.log.Warn("durable cache entry unreadable", zap.String("account", req.AccountID), zap.Error(err))
		return models.CacheEntry{}, false
	}
	e := models.CacheEntry{
		Key:       req.key(),
		WindowKey: doc.WindowKey,
		Campaigns: doc.Campaigns,
		FetchedAt: doc.LastSync,
		TTL:       c.ttl,
	}
	if doc.WindowKey != req.Window.Key() || !e.Fresh(c.now()) {
		return models.CacheEntry{}, false
	}
	return e, true
}

func (c *InsightsCache) Set(ctx context.Context, req Request, campaigns []models.HierarchyNode, fetchedAt time.Time) {
	key := req.key()
	c.put(key, models.CacheEntry{
		Key:       key,
		WindowKey: req.Window.Key(),
		Campaigns: campaigns,
		FetchedAt: fetchedAt,
		TTL:       c.ttl,
	})
	if c.store == nil || req.UserID == "" {
		return
	}
	data, err := store.Encode(durableDoc{
		Campaigns: campaigns,
		WindowKey: req.Window.Key(),
		LastSync:  fetchedAt,
		NextSync:  fetchedAt.Add(c.ttl),
	})
	if err == nil {
		err = c.store.Set(ctx, durablePath(req.UserID), req.AccountID, data, true)
	}
	if err != nil {
		c.log.Warn("durable cache write failed", zap.String("account", req.AccountID), zap.Error(err))
	}
}

func (c *InsightsCache) put(key string, e models.CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur := *c.entries.Load()
	next := make(map[string]models.CacheEntry, len(cur)+1) // copy-on-write
	now := c.now()
	for k, v := range cur {
		if v.Fresh(now) {
			next[k] = v
		}
	}
	next[key] = e
	c.entries.Store(&next)
}

func (c *InsightsCache) Invalidate(ctx context.Context, userID, accountID string) error {
	c.mu.Lock()
	cur := *c.entries.Load()
	next := make(map[string]models.CacheEntry, len(cur))
	for k, v := range cur {
		if !strings.HasPrefix(k, accountID+"|") {
			next[k] = v
		}
	}
	c.entries.Store(&next)
	c.mu.Unlock()

	if c.store == nil || userID == "" {
		return nil
	}
	err := c.store.Delete(ctx, durablePath(userID), accountID)
	if err != nil && !eris.Is(err, store.ErrNotFound) {
		return eris.Wrapf(err, "cache: invalidate %s", accountID)
	}
	return nil
}

func (c *InsightsCache) Len() int {
	return len(*c.entries.Load())
}
