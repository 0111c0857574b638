package hierarchy

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/AngelCh415/insights-sync/internal/adplatform"
	"github.com/AngelCh415/insights-sync/internal/models"
)

type Source interface {
	Campaigns(ctx context.Context, accountID string) ([]adplatform.Campaign, error)
	AdSets(ctx context.Context, campaignID string) ([]adplatform.AdSet, error)
	Ads(ctx context.Context, adsetID string) ([]adplatform.Ad, error)
	Insights(ctx context.Context, entityID string, w models.TimeWindow) (models.MetricSnapshot, error)
}

type Aggregator struct {
	fanOut int
	log    *zap.Logger
}

func NewAggregator(fanOut int, log *zap.Logger) *Aggregator {
	if fanOut <= 0 {
		fanOut = 4
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Aggregator{fanOut: fanOut, log: log}
}

func (a *Aggregator) Build(ctx context.Context, src Source, accountID string, w models.TimeWindow) ([]models.HierarchyNode, bool, error) {
	complete := true
	campaigns, err := src.Campaigns(ctx, accountID)
	if err != nil {
		if ctx.Err() == nil {
			a.log.Warn("listing campaigns failed", zap.String("account", accountID), zap.Int("read", len(campaigns)), zap.Error(err))
		}
		complete = false
	}

	nodes := make([]models.HierarchyNode, len(campaigns))
	g := new(errgroup.Group)
	g.SetLimit(a.fanOut)
	for i, c := range campaigns {
		g.Go(func() error {
			nodes[i] = a.campaign(ctx, src, c, w)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, false, eris.Wrap(err, "hierarchy: build cancelled")
	}
	a.log.Debug("hierarchy built", zap.String("account", accountID), zap.Int("campaigns", len(nodes)), zap.String("window", w.Key()), zap.Bool("complete", complete))
	return nodes, complete, nil
}

func (a *Aggregator) campaign(ctx context.Context, src Source, c adplatform.Campaign, w models.TimeWindow) models.HierarchyNode {
	node := models.HierarchyNode{ID: c.ID, Name: c.Name, Status: c.Status, Objective: c.Objective, Level: models.LevelCampaign}

	adsets, err := src.AdSets(ctx, c.ID)
	if err != nil {
		a.log.Warn("listing ad sets failed", zap.String("campaign", c.ID), zap.Error(err))
	}
	node.Children = make([]models.HierarchyNode, len(adsets))
	a.each(len(adsets), func(i int) {
		node.Children[i] = a.adset(ctx, src, adsets[i], w)
	})
	return a.rollup(ctx, src, node, w)
}

func (a *Aggregator) adset(ctx context.Context, src Source, s adplatform.AdSet, w models.TimeWindow) models.HierarchyNode {
	node := models.HierarchyNode{ID: s.ID, Name: s.Name, Status: s.Status, Level: models.LevelAdSet}

	ads, err := src.Ads(ctx, s.ID)
	if err != nil {
		a.log.Warn("listing ads failed", zap.String("adset", s.ID), zap.Error(err))
	}
	node.Children = make([]models.HierarchyNode, len(ads))
	a.each(len(ads), func(i int) {
		ad := models.HierarchyNode{ID: ads[i].ID, Name: ads[i].Name, Status: ads[i].Status, Level: models.LevelAd}
		node.Children[i] = a.rollup(ctx, src, ad, w)
	})
	return a.rollup(ctx, src, node, w)
}

func (a *Aggregator) each(n int, fn func(i int)) {
	g := new(errgroup.Group)
	g.SetLimit(a.fanOut)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			fn(i)
			return nil
		})
	}
	_ = g.Wait()
}

func (a *Aggregator) rollup(ctx context.Context, src Source, node models.HierarchyNode, w models.TimeWindow) models.HierarchyNode {
	if len(node.Children) == 0 {
		node.Children = nil
		m, err := src.Insights(ctx, node.ID, w)
		if err != nil {
			a.log.Warn("insights failed", zap.String("level", string(node.Level)), zap.String("id", node.ID), zap.Error(err))
			m = models.MetricSnapshot{}
		}
		m.EntityID, m.Window = node.ID, w
		node.Metrics = m
		return node
	}
	node.Metrics = Sum(node.ID, w, node.Children) // nunca los totales del padre
	return node
}

func Sum(id string, w models.TimeWindow, children []models.HierarchyNode) models.MetricSnapshot {
	total := models.MetricSnapshot{EntityID: id, Window: w}
	for _, ch := range children {
		total.Add(ch.Metrics)
	}
	total.Recompute()
	return total
}
