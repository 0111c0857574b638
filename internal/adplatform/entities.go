package adplatform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

type Campaign struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	Objective string `json:"objective"`
}

type AdSet struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	CampaignID string `json:"campaign_id"`
}

type Ad struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Status     string         `json:"status"`
	CampaignID string         `json:"campaign_id"`
	AdsetID    string         `json:"adset_id"`
	Leads      *Edge[RawLead] `json:"leads,omitempty"`
}

type Page struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AccessToken string `json:"access_token"`
}

type Form struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

type FieldDatum struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

type RawLead struct {
	ID          string       `json:"id"`
	CreatedTime PlatformTime `json:"created_time"`
	FieldData   []FieldDatum `json:"field_data"`
	FormID      string       `json:"form_id"`
	AdID        string       `json:"ad_id"`
	AdsetID     string       `json:"adset_id"`
	CampaignID  string       `json:"campaign_id"`
	PageID      string       `json:"page_id,omitempty"`
}

func (l RawLead) Fields() map[string]string {
	out := make(map[string]string, len(l.FieldData))
	for _, f := range l.FieldData {
		if len(f.Values) == 0 {
			continue
		}
		if _, ok := out[f.Name]; !ok {
			out[f.Name] = strings.TrimSpace(f.Values[0])
		}
	}
	return out
}

type PlatformTime struct{ time.Time }

const platformTimeLayout = "2006-01-02T15:04:05-0700"

func (t *PlatformTime) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return eris.Wrap(err, "adplatform: time")
	}
	if s == "" {
		return nil
	}
	for _, layout := range []string{platformTimeLayout, time.RFC3339} {
		if ts, err := time.Parse(layout, s); err == nil {
			t.Time = ts.UTC()
			return nil
		}
	}
	return eris.Errorf("adplatform: unrecognized time %q", s)
}

func (t PlatformTime) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(t.Format(platformTimeLayout))
}

const leadFields = "id,created_time,field_data,form_id,ad_id,adset_id,campaign_id"

func (c *Client) pageParams(fields string) url.Values {
	p := url.Values{}
	p.Set("fields", fields)
	p.Set("limit", fmt.Sprint(c.opts.PageSize))
	return p
}

func actID(accountID string) string {
	return "act_" + strings.TrimPrefix(accountID, "act_")
}

func (c *Client) Campaigns(ctx context.Context, accountID string) ([]Campaign, error) {
	out, err := listAll[Campaign](ctx, c, "campaigns", actID(accountID)+"/campaigns", c.pageParams("id,name,status,objective"))
	return out, eris.Wrapf(err, "adplatform: campaigns of %s", accountID)
}

func (c *Client) AdSets(ctx context.Context, campaignID string) ([]AdSet, error) {
	out, err := listAll[AdSet](ctx, c, "adsets", campaignID+"/adsets", c.pageParams("id,name,status,campaign_id"))
	return out, eris.Wrapf(err, "adplatform: adsets of %s", campaignID)
}

func (c *Client) Ads(ctx context.Context, adsetID string) ([]Ad, error) {
	out, err := listAll[Ad](ctx, c, "ads", adsetID+"/ads", c.pageParams("id,name,status,campaign_id,adset_id"))
	return out, eris.Wrapf(err, "adplatform: ads of %s", adsetID)
}

func (c *Client) AccountAdsWithLeads(ctx context.Context, accountID string) ([]Ad, error) {
	fields := fmt.Sprintf("id,name,status,campaign_id,adset_id,leads.limit(%d){%s}", c.opts.PageSize, leadFields)
	out, err := listAll[Ad](ctx, c, "account_ads", actID(accountID)+"/ads", c.pageParams(fields))
	return out, eris.Wrapf(err, "adplatform: ads with leads of %s", accountID)
}

func (c *Client) CampaignAds(ctx context.Context, campaignID string) ([]Ad, error) {
	out, err := listAll[Ad](ctx, c, "campaign_ads", campaignID+"/ads", c.pageParams("id,name,status,campaign_id,adset_id"))
	return out, eris.Wrapf(err, "adplatform: ads of campaign %s", campaignID)
}

func (c *Client) AdLeads(ctx context.Context, adID string) ([]RawLead, error) {
	out, err := listAll[RawLead](ctx, c, "ad_leads", adID+"/leads", c.pageParams(leadFields))
	return out, eris.Wrapf(err, "adplatform: leads of ad %s", adID)
}

func (c *Client) FollowLeads(ctx context.Context, next string) ([]RawLead, error) {
	out, err := follow[RawLead](ctx, c, "ad_leads", next, c.opts.MaxPages-1, nil)
	return out, eris.Wrap(err, "adplatform: follow nested leads")
}

func (c *Client) Pages(ctx context.Context) ([]Page, error) {
	out, err := listAll[Page](ctx, c, "pages", "me/accounts", c.pageParams("id,name,access_token"))
	return out, eris.Wrap(err, "adplatform: pages")
}

func (c *Client) PageForms(ctx context.Context, page Page) ([]Form, error) {
	pc := c
	if page.AccessToken != "" {
		pc = c.WithToken(page.AccessToken)
	}
	out, err := listAll[Form](ctx, pc, "leadgen_forms", page.ID+"/leadgen_forms", pc.pageParams("id,name,status"))
	return out, eris.Wrapf(err, "adplatform: forms of page %s", page.ID)
}

func (c *Client) FormLeads(ctx context.Context, page Page, formID string) ([]RawLead, error) {
	pc := c
	if page.AccessToken != "" {
		pc = c.WithToken(page.AccessToken)
	}
	out, err := listAll[RawLead](ctx, pc, "form_leads", formID+"/leads", pc.pageParams(leadFields))
	for i := range out {
		if out[i].PageID == "" {
			out[i].PageID = page.ID
		}
		if out[i].FormID == "" {
			out[i].FormID = formID
		}
	}
	return out, eris.Wrapf(err, "adplatform: leads of form %s", formID)
}
