package metrics

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/AngelCh415/insights-sync/internal/models"
	"github.com/AngelCh415/insights-sync/internal/period"
)

type PlatformSource interface {
	AccountInsights(ctx context.Context, accountID string, w models.TimeWindow) (models.MetricSnapshot, error)
}

type RecordSource interface {
	ListProspects(ctx context.Context, sess models.Session) ([]models.Prospect, error)
	ListRevenues(ctx context.Context, sess models.Session) ([]models.RevenueRecord, error)
}

const maxDealDays = 365

type Summary struct {
	Spend             float64 `json:"spend"`
	Impressions       int64   `json:"impressions"`
	Clicks            int64   `json:"clicks"`
	CTR               float64 `json:"ctr"`
	CPC               float64 `json:"cpc"`
	CPM               float64 `json:"cpm"`
	PlatformLeads     int64   `json:"platformLeads"`
	InternalLeads     int64   `json:"internalLeads"`
	Leads             int64   `json:"leads"`
	Conversions       int64   `json:"conversions"`
	Revenue           float64 `json:"revenue"`
	ConversionRate    float64 `json:"conversionRate"`
	CostPerLead       float64 `json:"costPerLead"`
	CostPerConversion float64 `json:"costPerConversion"`
	ROAS              float64 `json:"roas"`
	AvgDaysToDeal     float64 `json:"avgDaysToDeal"`
	PlatformAvailable bool    `json:"platformAvailable"`
}

func (s Summary) kpis() map[string]float64 {
	return map[string]float64{
		"spend":             s.Spend,
		"impressions":       float64(s.Impressions),
		"clicks":            float64(s.Clicks),
		"ctr":               s.CTR,
		"cpc":               s.CPC,
		"cpm":               s.CPM,
		"platformLeads":     float64(s.PlatformLeads),
		"internalLeads":     float64(s.InternalLeads),
		"leads":             float64(s.Leads),
		"conversions":       float64(s.Conversions),
		"revenue":           s.Revenue,
		"conversionRate":    s.ConversionRate,
		"costPerLead":       s.CostPerLead,
		"costPerConversion": s.CostPerConversion,
		"roas":              s.ROAS,
		"avgDaysToDeal":     s.AvgDaysToDeal,
	}
}

type Period struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func periodOf(w models.TimeWindow) Period {
	return Period{Start: w.Since(), End: w.Until()}
}

type Report struct {
	Current          Summary            `json:"current"`
	Comparison       *Summary           `json:"comparison,omitempty"`
	PercentChanges   map[string]float64 `json:"percentChanges,omitempty"`
	Period           Period             `json:"period"`
	ComparisonPeriod *Period            `json:"comparisonPeriod,omitempty"`
}

type Reconciler struct {
	records RecordSource
	log     *zap.Logger
}

func NewReconciler(records RecordSource, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{records: records, log: log}
}

func (r *Reconciler) Report(ctx context.Context, platform PlatformSource, sess models.Session, w models.TimeWindow, compare bool) (Report, error) {
	prospects, err := r.records.ListProspects(ctx, sess)
	if err != nil {
		r.log.Warn("prospects unavailable", zap.String("account", sess.AccountID), zap.Error(err))
		prospects = nil
	}
	revenues, err := r.records.ListRevenues(ctx, sess)
	if err != nil {
		r.log.Warn("revenues unavailable", zap.String("account", sess.AccountID), zap.Error(err))
		revenues = nil
	}

	windows := []models.TimeWindow{w}
	if compare {
		windows = append(windows, period.Comparison(w))
	}
	summaries := make([]Summary, len(windows))
	g := new(errgroup.Group)
	for i, win := range windows {
		g.Go(func() error {
			snap, err := platform.AccountInsights(ctx, sess.AccountID, win)
			if err != nil {
				r.log.Warn("account insights unavailable", zap.String("account", sess.AccountID), zap.String("window", win.Key()), zap.Error(err))
			}
			summaries[i] = Summarize(snap, err == nil, prospects, revenues, win)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return Report{}, eris.Wrap(err, "metrics: report")
	}

	rep := Report{Current: summaries[0], Period: periodOf(w)}
	if compare {
		prev := summaries[1]
		pp := periodOf(windows[1])
		rep.Comparison = &prev
		rep.ComparisonPeriod = &pp
		rep.PercentChanges = PercentChanges(rep.Current, prev)
	}
	return rep, nil
}

func Summarize(snap models.MetricSnapshot, platformOK bool, prospects []models.Prospect, revenues []models.RevenueRecord, w models.TimeWindow) Summary {
	s := Summary{PlatformAvailable: platformOK}
	if platformOK {
		s.Spend = round2(snap.Spend)
		s.Impressions = snap.Impressions
		s.Clicks = snap.Clicks
		s.PlatformLeads = snap.Leads
	}

	var converted int64
	for _, p := range prospects {
		if !w.Contains(p.LeadDate()) {
			continue
		}
		s.InternalLeads++
		if p.Status == models.StatusConverted {
			converted++
		}
	}

	var revenueCount int64
	var dealDays float64
	var dealSamples int
	for _, rec := range revenues {
		if !w.Contains(rec.CohortDate()) {
			continue
		}
		revenueCount++
		s.Revenue += rec.Amount
		if d, ok := daysToDeal(rec); ok {
			dealDays += d
			dealSamples++
		}
	}
	s.Revenue = round2(s.Revenue)

	s.Leads = max(s.PlatformLeads, s.InternalLeads)
	s.Conversions = revenueCount
	if s.Conversions == 0 {
		s.Conversions = converted
	}

	s.CTR = round2(safeDivF(float64(s.Clicks)*100, float64(s.Impressions)))
	s.CPC = round2(safeDivF(s.Spend, float64(s.Clicks)))
	s.CPM = round2(safeDivF(s.Spend*1000, float64(s.Impressions)))
	s.ConversionRate = round2(safeDivF(float64(s.Conversions)*100, float64(s.Leads)))
	s.CostPerLead = round2(safeDivF(s.Spend, float64(s.Leads)))
	s.CostPerConversion = round2(safeDivF(s.Spend, float64(s.Conversions)))
	s.ROAS = round2(safeDivF(s.Revenue, s.Spend))
	s.AvgDaysToDeal = round2(safeDivF(dealDays, float64(dealSamples)))
	return s
}

func daysToDeal(rec models.RevenueRecord) (float64, bool) {
	if rec.LeadDate == nil || rec.ClosingDate == nil || rec.LeadDate.IsZero() || rec.ClosingDate.IsZero() {
		return 0, false
	}
	d := rec.ClosingDate.Sub(*rec.LeadDate).Hours() / 24
	if d < 0 || d >= maxDealDays {
		return 0, false
	}
	return d, true
}

func PercentChange(cur, prev float64) float64 {
	if prev == 0 {
		return 0
	}
	return round2((cur - prev) / prev * 100)
}

func PercentChanges(cur, prev Summary) map[string]float64 {
	c, p := cur.kpis(), prev.kpis()
	out := make(map[string]float64, len(c))
	for k, v := range c {
		out[k] = PercentChange(v, p[k])
	}
	return out
}

func safeDivF(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

func round2(f float64) float64 {
	if f < 0 {
		return -round2(-f)
	}
	return float64(int64(f*100+0.5)) / 100
}
