package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AngelCh415/insights-sync/internal/models"
)

func d(m time.Month, day int) time.Time {
	return time.Date(2024, m, day, 0, 0, 0, 0, time.UTC)
}

func ptr(t time.Time) *time.Time { return &t }

type fakePlatform struct {
	byWindow map[string]models.MetricSnapshot
	fail     map[string]bool
}

func (f fakePlatform) AccountInsights(ctx context.Context, accountID string, w models.TimeWindow) (models.MetricSnapshot, error) {
	if f.fail[w.Key()] {
		return models.MetricSnapshot{}, errors.New("throttled")
	}
	return f.byWindow[w.Key()], nil
}

type fakeRecords struct {
	prospects []models.Prospect
	revenues  []models.RevenueRecord
	err       error
}

func (f fakeRecords) ListProspects(ctx context.Context, sess models.Session) ([]models.Prospect, error) {
	return f.prospects, f.err
}

func (f fakeRecords) ListRevenues(ctx context.Context, sess models.Session) ([]models.RevenueRecord, error) {
	return f.revenues, f.err
}

func TestPercentChange(t *testing.T) {
	assert.Equal(t, 20.0, PercentChange(120, 100))
	assert.Equal(t, 0.0, PercentChange(120, 0))
	assert.Equal(t, -50.0, PercentChange(50, 100))
	assert.Equal(t, 0.0, PercentChange(0, 0))
}

func TestSummarize(t *testing.T) {
	w := models.NewTimeWindow(d(8, 1), d(8, 31))
	snap := models.MetricSnapshot{Spend: 200, Impressions: 10000, Clicks: 100, Leads: 4}
	prospects := []models.Prospect{
		{ID: "a", CreatedTime: ptr(d(8, 2)), Status: models.StatusConverted},
		{ID: "b", CreatedTime: ptr(d(8, 3))},
		{ID: "c", CreatedAt: d(8, 10)},
		{ID: "d", CreatedAt: d(8, 12)},
		{ID: "e", CreatedAt: d(8, 15)},
		{ID: "out", CreatedTime: ptr(d(7, 30)), CreatedAt: d(8, 5)},
	}
	revenues := []models.RevenueRecord{
		{Amount: 300, LeadDate: ptr(d(8, 2)), ClosingDate: ptr(d(8, 12))},
		{Amount: 100, CreatedAt: d(8, 20), ClosingDate: ptr(d(8, 21))},
		{Amount: 999, LeadDate: ptr(d(7, 1)), ClosingDate: ptr(d(8, 5))},
		{Amount: 50, LeadDate: ptr(d(8, 9)), ClosingDate: ptr(d(8, 1))},
	}

	s := Summarize(snap, true, prospects, revenues, w)
	assert.EqualValues(t, 5, s.InternalLeads)
	assert.EqualValues(t, 5, s.Leads)
	assert.EqualValues(t, 3, s.Conversions)
	assert.Equal(t, 450.0, s.Revenue)
	assert.Equal(t, 60.0, s.ConversionRate)
	assert.Equal(t, 40.0, s.CostPerLead)
	assert.Equal(t, 2.25, s.ROAS)
	assert.Equal(t, 1.0, s.CTR)
	// solo la primera entrada tiene ambas fechas en rango
	assert.Equal(t, 10.0, s.AvgDaysToDeal)
}

func TestSummarize_ConvertedProspectsWhenNoRevenue(t *testing.T) {
	w := models.NewTimeWindow(d(8, 1), d(8, 31))
	prospects := []models.Prospect{
		{CreatedAt: d(8, 2), Status: models.StatusConverted},
		{CreatedAt: d(8, 3)},
	}
	s := Summarize(models.MetricSnapshot{}, false, prospects, nil, w)
	assert.EqualValues(t, 1, s.Conversions)
	assert.Zero(t, s.CostPerConversion)
	assert.Zero(t, s.ROAS)
	assert.False(t, s.PlatformAvailable)
}

func TestReport_ComparesPrecedingWindow(t *testing.T) {
	w := models.NewTimeWindow(d(8, 1), d(8, 31))
	prev := models.NewTimeWindow(d(7, 1), d(7, 31))
	platform := fakePlatform{byWindow: map[string]models.MetricSnapshot{
		w.Key():    {Spend: 120, Impressions: 1000, Clicks: 10},
		prev.Key(): {Spend: 100, Impressions: 1000, Clicks: 10},
	}}
	rec := NewReconciler(fakeRecords{}, nil)

	rep, err := rec.Report(context.Background(), platform, models.Session{AccountID: "1"}, w, true)
	require.NoError(t, err)
	require.NotNil(t, rep.Comparison)
	assert.Equal(t, Period{Start: "2024-08-01", End: "2024-08-31"}, rep.Period)
	assert.Equal(t, Period{Start: "2024-07-01", End: "2024-07-31"}, *rep.ComparisonPeriod)
	assert.Equal(t, 20.0, rep.PercentChanges["spend"])
	assert.Equal(t, 0.0, rep.PercentChanges["clicks"])
	assert.Equal(t, 0.0, rep.PercentChanges["leads"])
}

func TestReport_PlatformFailureKeepsInternalFigures(t *testing.T) {
	w := models.NewTimeWindow(d(8, 1), d(8, 31))
	platform := fakePlatform{fail: map[string]bool{w.Key(): true}}
	records := fakeRecords{prospects: []models.Prospect{{CreatedAt: d(8, 4)}}}

	rep, err := NewReconciler(records, nil).Report(context.Background(), platform, models.Session{AccountID: "1"}, w, false)
	require.NoError(t, err)
	assert.Nil(t, rep.Comparison)
	assert.Zero(t, rep.Current.Spend)
	assert.EqualValues(t, 1, rep.Current.InternalLeads)
	assert.EqualValues(t, 1, rep.Current.Leads)
}

func TestReport_RecordFailureKeepsPlatformFigures(t *testing.T) {
	w := models.NewTimeWindow(d(8, 1), d(8, 31))
	platform := fakePlatform{byWindow: map[string]models.MetricSnapshot{w.Key(): {Spend: 40, Leads: 4}}}
	records := fakeRecords{
		prospects: []models.Prospect{{CreatedAt: d(8, 4)}},
		err:       errors.New("store offline"),
	}

	rep, err := NewReconciler(records, nil).Report(context.Background(), platform, models.Session{AccountID: "1"}, w, true)
	require.NoError(t, err)
	assert.True(t, rep.Current.PlatformAvailable)
	assert.Equal(t, 40.0, rep.Current.Spend)
	assert.Zero(t, rep.Current.InternalLeads)
	assert.Zero(t, rep.Current.Revenue)
	assert.EqualValues(t, 4, rep.Current.Leads)
	assert.Equal(t, 10.0, rep.Current.CostPerLead)
	require.NotNil(t, rep.Comparison)
}
