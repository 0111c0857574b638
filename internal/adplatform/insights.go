package adplatform

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/AngelCh415/insights-sync/internal/models"
)

const insightFields = "spend,impressions,clicks,reach,cpm,cpc,ctr,actions,results,cost_per_result"

var LeadActionTypes = map[string]bool{
	"lead":                             true,
	"leadgen_grouped":                  true,
	"leadgen.other":                    true,
	"onsite_conversion.lead_grouped":   true,
	"offsite_conversion.fb_pixel_lead": true,
}

type Number float64

func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*n = 0
		return nil
	}
	s := strings.Trim(string(b), `"`)
	if s == "" {
		*n = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return eris.Wrapf(err, "adplatform: number %q", s)
	}
	*n = Number(f)
	return nil
}

type ActionValue struct {
	ActionType string `json:"action_type"`
	Value      Number `json:"value"`
}

type InsightRow struct {
	Spend         Number          `json:"spend"`
	Impressions   Number          `json:"impressions"`
	Clicks        Number          `json:"clicks"`
	Reach         Number          `json:"reach"`
	CPM           Number          `json:"cpm"`
	CPC           Number          `json:"cpc"`
	CTR           Number          `json:"ctr"`
	Actions       []ActionValue   `json:"actions"`
	Results       json.RawMessage `json:"results,omitempty"`
	CostPerResult json.RawMessage `json:"cost_per_result,omitempty"`
}

func (r InsightRow) LeadCount() int64 {
	if v, ok := aggregateValue(r.Results); ok {
		return int64(v + 0.5)
	}
	var sum float64
	for _, a := range r.Actions {
		if LeadActionTypes[a.ActionType] {
			sum += float64(a.Value)
		}
	}
	return int64(sum + 0.5)
}

func aggregateValue(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}
	var n Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return float64(n), true
	}
	var entries []struct {
		Value  *Number `json:"value"`
		Values []struct {
			Value Number `json:"value"`
		} `json:"values"`
	}
	if err := json.Unmarshal(raw, &entries); err != nil || len(entries) == 0 {
		return 0, false
	}
	var sum float64
	found := false
	for _, e := range entries {
		if e.Value != nil {
			sum += float64(*e.Value)
			found = true
		}
		for _, v := range e.Values {
			sum += float64(v.Value)
			found = true
		}
	}
	return sum, found
}

func (r InsightRow) Snapshot(entityID string, w models.TimeWindow) models.MetricSnapshot {
	m := models.MetricSnapshot{
		EntityID:    entityID,
		Window:      w,
		Spend:       float64(r.Spend),
		Impressions: int64(r.Impressions),
		Clicks:      int64(r.Clicks),
		Reach:       int64(r.Reach),
		Leads:       r.LeadCount(),
	}
	m.Recompute()
	if r.CPM > 0 {
		m.CPM = float64(r.CPM)
	}
	if r.CPC > 0 {
		m.CPC = float64(r.CPC)
	}
	if r.CTR > 0 {
		m.CTR = float64(r.CTR)
	}
	if v, ok := aggregateValue(r.CostPerResult); ok && v > 0 {
		m.CostPerResult = v
	}
	return m
}

func (c *Client) Insights(ctx context.Context, entityID string, w models.TimeWindow) (models.MetricSnapshot, error) {
	tr, _ := json.Marshal(map[string]string{"since": w.Since(), "until": w.Until()})
	params := url.Values{}
	params.Set("fields", insightFields)
	params.Set("time_range", string(tr))

	rows, err := listAll[InsightRow](ctx, c, "insights", entityID+"/insights", params)
	if err != nil {
		return models.MetricSnapshot{EntityID: entityID, Window: w}, eris.Wrapf(err, "adplatform: insights of %s", entityID)
	}
	if len(rows) == 1 {
		return rows[0].Snapshot(entityID, w), nil
	}
	total := models.MetricSnapshot{EntityID: entityID, Window: w}
	for _, row := range rows {
		total.Add(row.Snapshot(entityID, w))
	}
	total.Recompute()
	return total, nil
}

func (c *Client) AccountInsights(ctx context.Context, accountID string, w models.TimeWindow) (models.MetricSnapshot, error) {
	return c.Insights(ctx, actID(accountID), w)
}
