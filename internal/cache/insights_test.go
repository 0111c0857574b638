package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AngelCh415/insights-sync/internal/models"
	"github.com/AngelCh415/insights-sync/internal/store"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type countingLoader struct {
	calls   atomic.Int32
	delay   time.Duration
	err     error
	partial bool
	release chan struct{}
}

func (l *countingLoader) Load(ctx context.Context, token, accountID string, w models.TimeWindow) ([]models.HierarchyNode, bool, error) {
	l.calls.Add(1)
	if l.delay > 0 {
		time.Sleep(l.delay)
	}
	if l.release != nil {
		<-l.release
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if l.err != nil {
		return nil, false, l.err
	}
	return []models.HierarchyNode{{ID: "c1", Level: models.LevelCampaign, Metrics: models.MetricSnapshot{Spend: 25, Leads: 5}}}, !l.partial, nil
}

func req() Request {
	return Request{
		AccountID: "123",
		UserID:    "u1",
		Token:     "tok",
		Window:    models.NewTimeWindow(time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 8, 31, 0, 0, 0, 0, time.UTC)),
	}
}

func newCache(l Loader, st store.Store) (*InsightsCache, *clock) {
	clk := &clock{t: time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)}
	return New(l, st, nil, WithClock(clk.now)), clk
}

func TestGet_HitWithinTTL(t *testing.T) {
	l := &countingLoader{}
	c, clk := newCache(l, store.NewMemoryStore())
	ctx := context.Background()

	first, err := c.Get(ctx, req())
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	require.Len(t, first.Campaigns, 1)

	clk.advance(29 * time.Minute)
	second, err := c.Get(ctx, req())
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.FetchedAt, second.FetchedAt)
	assert.EqualValues(t, 1, l.calls.Load())
}

func TestGet_RefetchAfterTTL(t *testing.T) {
	l := &countingLoader{}
	c, clk := newCache(l, store.NewMemoryStore())
	ctx := context.Background()

	_, err := c.Get(ctx, req())
	require.NoError(t, err)
	clk.advance(31 * time.Minute)

	res, err := c.Get(ctx, req())
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.EqualValues(t, 2, l.calls.Load())
}

func TestGet_DurableTierFillsEphemeral(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	warm, _ := newCache(&countingLoader{}, st)
	_, err := warm.Get(ctx, req())
	require.NoError(t, err)

	doc, err := st.Get(ctx, "users/u1/insightsCache", "123")
	require.NoError(t, err)
	assert.Equal(t, req().Window.Key(), doc.Data["windowKey"])
	assert.Contains(t, doc.Data, "nextSync")

	// proceso nuevo: efímero vacío, mismo store durable
	l := &countingLoader{}
	cold, clk := newCache(l, st)
	clk.advance(10 * time.Minute)
	res, err := cold.Get(ctx, req())
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, 25.0, res.Campaigns[0].Metrics.Spend)
	assert.Zero(t, l.calls.Load())
	assert.Equal(t, 1, cold.Len())
}

func TestGet_DurableWindowMismatchIsMiss(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	warm, _ := newCache(&countingLoader{}, st)
	_, err := warm.Get(ctx, req())
	require.NoError(t, err)

	l := &countingLoader{}
	cold, _ := newCache(l, st)
	other := req()
	other.Window = models.NewTimeWindow(time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 7, 31, 0, 0, 0, 0, time.UTC))
	res, err := cold.Get(ctx, other)
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.EqualValues(t, 1, l.calls.Load())
}

func TestGet_SingleFlight(t *testing.T) {
	l := &countingLoader{delay: 50 * time.Millisecond}
	c, _ := newCache(l, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Get(context.Background(), req())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, l.calls.Load())
}

func TestGet_RefreshAndInvalidate(t *testing.T) {
	l := &countingLoader{}
	st := store.NewMemoryStore()
	c, _ := newCache(l, st)
	ctx := context.Background()

	_, err := c.Get(ctx, req())
	require.NoError(t, err)

	r := req()
	r.Refresh = true
	res, err := c.Get(ctx, r)
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.EqualValues(t, 2, l.calls.Load())

	require.NoError(t, c.Invalidate(ctx, "u1", "123"))
	assert.Zero(t, c.Len())
	_, err = st.Get(ctx, "users/u1/insightsCache", "123")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGet_LoaderErrorNotCached(t *testing.T) {
	l := &countingLoader{err: errors.New("platform down")}
	c, _ := newCache(l, nil)
	_, err := c.Get(context.Background(), req())
	require.Error(t, err)
	assert.Zero(t, c.Len())
}

type brokenStore struct{ store.Store }

func (brokenStore) Get(ctx context.Context, collection, id string) (*store.Document, error) {
	return nil, errors.New("store offline")
}

func (brokenStore) Set(ctx context.Context, collection, id string, data map[string]any, merge bool) error {
	return errors.New("store offline")
}

func TestGet_DurableFailureDegradesToMiss(t *testing.T) {
	l := &countingLoader{}
	c, _ := newCache(l, brokenStore{})
	res, err := c.Get(context.Background(), req())
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.EqualValues(t, 1, l.calls.Load())
}

func TestGet_IncompleteTreeNotStored(t *testing.T) {
	l := &countingLoader{partial: true}
	st := store.NewMemoryStore()
	c, _ := newCache(l, st)
	ctx := context.Background()

	res, err := c.Get(ctx, req())
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	require.Len(t, res.Campaigns, 1)
	assert.Zero(t, c.Len())
	_, err = st.Get(ctx, "users/u1/insightsCache", "123")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = c.Get(ctx, req())
	require.NoError(t, err)
	assert.EqualValues(t, 2, l.calls.Load())
}

func TestGet_WaiterSurvivesFirstCallerCancel(t *testing.T) {
	l := &countingLoader{release: make(chan struct{})}
	c, _ := newCache(l, nil)

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Get(first, req())
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return l.calls.Load() == 1 }, time.Second, time.Millisecond)

	second := make(chan Result, 1)
	go func() {
		res, err := c.Get(context.Background(), req())
		assert.NoError(t, err)
		second <- res
	}()

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)
	close(l.release)

	res := <-second
	require.Len(t, res.Campaigns, 1)
	assert.EqualValues(t, 1, l.calls.Load())
	assert.Equal(t, 1, c.Len())
}
