package period

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/AngelCh415/insights-sync/internal/models"
)

var ErrInvalidPeriod = eris.New("invalid period")

const DefaultPreset = "last_30d"

var aliases = map[string]string{
	"last_7_days":    "last_7d",
	"last_14_days":   "last_14d",
	"last_28_days":   "last_28d",
	"last_30_days":   "last_30d",
	"last_90_days":   "last_90d",
	"current_month":  "this_month",
	"previous_month": "last_month",
	"current_year":   "this_year",
	"previous_year":  "last_year",
}

var trailing = map[string]int{
	"last_7d":  7,
	"last_14d": 14,
	"last_28d": 28,
	"last_30d": 30,
	"last_90d": 90,
}

type Resolver struct {
	loc *time.Location
	now func() time.Time
}

func NewResolver(loc *time.Location, now func() time.Time) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Resolver{loc: loc, now: now}
}

func (r *Resolver) Location() *time.Location { return r.loc }

func (r *Resolver) today() time.Time {
	return models.Day(r.now().In(r.loc))
}

func Normalize(preset string) string {
	p := strings.ToLower(strings.TrimSpace(preset))
	p = strings.NewReplacer(" ", "_", "-", "_").Replace(p)
	if a, ok := aliases[p]; ok {
		return a
	}
	return p
}

func (r *Resolver) Resolve(preset string) (models.TimeWindow, error) {
	p := Normalize(preset)
	if p == "" {
		p = DefaultPreset
	}
	today := r.today()

	if n, ok := trailing[p]; ok {
		end := today.AddDate(0, 0, -1)
		return models.NewTimeWindow(end.AddDate(0, 0, -(n - 1)), end), nil
	}

	y, m, _ := today.Date()
	switch p {
	case "today":
		return models.NewTimeWindow(today, today), nil
	case "yesterday":
		d := today.AddDate(0, 0, -1)
		return models.NewTimeWindow(d, d), nil
	case "this_month":
		return models.NewTimeWindow(time.Date(y, m, 1, 0, 0, 0, 0, r.loc), today), nil
	case "last_month":
		first := time.Date(y, m, 1, 0, 0, 0, 0, r.loc)
		return models.NewTimeWindow(first.AddDate(0, -1, 0), first.AddDate(0, 0, -1)), nil
	case "this_quarter":
		return models.NewTimeWindow(quarterStart(today), today), nil
	case "last_quarter":
		qs := quarterStart(today)
		return models.NewTimeWindow(qs.AddDate(0, -3, 0), qs.AddDate(0, 0, -1)), nil
	case "this_year":
		return models.NewTimeWindow(time.Date(y, 1, 1, 0, 0, 0, 0, r.loc), today), nil
	case "last_year":
		return models.NewTimeWindow(time.Date(y-1, 1, 1, 0, 0, 0, 0, r.loc), time.Date(y-1, 12, 31, 0, 0, 0, 0, r.loc)), nil
	}
	return models.TimeWindow{}, eris.Wrapf(ErrInvalidPeriod, "unknown preset %q", preset)
}

func (r *Resolver) ResolveRange(start, end string) (models.TimeWindow, error) {
	s, err := time.ParseInLocation(models.DateLayout, strings.TrimSpace(start), r.loc)
	if err != nil {
		return models.TimeWindow{}, eris.Wrapf(ErrInvalidPeriod, "start date %q", start)
	}
	e, err := time.ParseInLocation(models.DateLayout, strings.TrimSpace(end), r.loc)
	if err != nil {
		return models.TimeWindow{}, eris.Wrapf(ErrInvalidPeriod, "end date %q", end)
	}
	if e.Before(s) {
		return models.TimeWindow{}, eris.Wrapf(ErrInvalidPeriod, "end %s before start %s", end, start)
	}
	return models.NewTimeWindow(s, e), nil
}

func Comparison(w models.TimeWindow) models.TimeWindow {
	prevEnd := w.Start.AddDate(0, 0, -1)
	prevStart := prevEnd.AddDate(0, 0, -(w.Days() - 1))
	return models.NewTimeWindow(prevStart, prevEnd)
}

func quarterStart(t time.Time) time.Time {
	m := time.Month((int(t.Month())-1)/3*3 + 1)
	return time.Date(t.Year(), m, 1, 0, 0, 0, 0, t.Location())
}
