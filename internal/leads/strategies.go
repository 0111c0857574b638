package leads

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/AngelCh415/insights-sync/internal/adplatform"
)

type Source interface {
	AccountAdsWithLeads(ctx context.Context, accountID string) ([]adplatform.Ad, error)
	FollowLeads(ctx context.Context, next string) ([]adplatform.RawLead, error)
	Campaigns(ctx context.Context, accountID string) ([]adplatform.Campaign, error)
	CampaignAds(ctx context.Context, campaignID string) ([]adplatform.Ad, error)
	AdLeads(ctx context.Context, adID string) ([]adplatform.RawLead, error)
	Pages(ctx context.Context) ([]adplatform.Page, error)
	PageForms(ctx context.Context, page adplatform.Page) ([]adplatform.Form, error)
	FormLeads(ctx context.Context, page adplatform.Page, formID string) ([]adplatform.RawLead, error)
}

type Strategy interface {
	Name() string
	Discover(ctx context.Context, src Source, accountID string) ([]adplatform.RawLead, error)
}

type collector struct {
	mu    sync.Mutex
	leads []adplatform.RawLead
	err   error
}

func (c *collector) add(leads []adplatform.RawLead, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.leads = append(c.leads, leads...)
	if err != nil && c.err == nil {
		c.err = err
	}
}

func withAd(leads []adplatform.RawLead, ad adplatform.Ad) []adplatform.RawLead {
	for i := range leads {
		if leads[i].AdID == "" {
			leads[i].AdID = ad.ID
		}
		if leads[i].AdsetID == "" {
			leads[i].AdsetID = ad.AdsetID
		}
		if leads[i].CampaignID == "" {
			leads[i].CampaignID = ad.CampaignID
		}
	}
	return leads
}

type DirectAdLeads struct {
	FanOut int
}

func (DirectAdLeads) Name() string { return "direct_ad_leads" }

func (s DirectAdLeads) Discover(ctx context.Context, src Source, accountID string) ([]adplatform.RawLead, error) {
	ads, err := src.AccountAdsWithLeads(ctx, accountID)
	var c collector
	c.add(nil, err)

	g := new(errgroup.Group)
	g.SetLimit(limit(s.FanOut))
	for _, ad := range ads {
		if ad.Leads == nil {
			continue
		}
		c.add(withAd(ad.Leads.Data, ad), nil)
		if ad.Leads.Paging.Next == "" {
			continue
		}
		g.Go(func() error {
			more, err := src.FollowLeads(ctx, ad.Leads.Paging.Next)
			c.add(withAd(more, ad), eris.Wrapf(err, "leads: follow ad %s", ad.ID))
			return nil
		})
	}
	_ = g.Wait()
	return c.leads, c.err
}

type CampaignAdLeads struct {
	FanOut int
}

func (CampaignAdLeads) Name() string { return "campaign_ad_leads" }

func (s CampaignAdLeads) Discover(ctx context.Context, src Source, accountID string) ([]adplatform.RawLead, error) {
	campaigns, err := src.Campaigns(ctx, accountID)
	if err != nil {
		return nil, err
	}
	var c collector
	g := new(errgroup.Group)
	g.SetLimit(limit(s.FanOut))
	for _, camp := range campaigns {
		g.Go(func() error {
			ads, err := src.CampaignAds(ctx, camp.ID)
			c.add(nil, err)
			for _, ad := range ads {
				if ctx.Err() != nil {
					c.add(nil, ctx.Err())
					return nil
				}
				if ad.CampaignID == "" {
					ad.CampaignID = camp.ID
				}
				leads, err := src.AdLeads(ctx, ad.ID)
				c.add(withAd(leads, ad), err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return c.leads, c.err
}

type PageFormLeads struct {
	FanOut int
}

func (PageFormLeads) Name() string { return "page_form_leads" }

func (s PageFormLeads) Discover(ctx context.Context, src Source, _ string) ([]adplatform.RawLead, error) {
	pages, err := src.Pages(ctx)
	if err != nil {
		return nil, err
	}
	var c collector
	g := new(errgroup.Group)
	g.SetLimit(limit(s.FanOut))
	for _, page := range pages {
		g.Go(func() error {
			forms, err := src.PageForms(ctx, page)
			c.add(nil, err)
			for _, f := range forms {
				if ctx.Err() != nil {
					c.add(nil, ctx.Err())
					return nil
				}
				c.add(src.FormLeads(ctx, page, f.ID))
			}
			return nil
		})
	}
	_ = g.Wait()
	return c.leads, c.err
}

func limit(n int) int {
	if n <= 0 {
		return 4
	}
	return n
}
