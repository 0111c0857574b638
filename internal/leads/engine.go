package leads

import (
	"context"
	"maps"
	"slices"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/AngelCh415/insights-sync/internal/adplatform"
	"github.com/AngelCh415/insights-sync/internal/models"
	"github.com/AngelCh415/insights-sync/internal/monitoring"
)

type Batch struct {
	Strategy string
	Leads    []adplatform.RawLead
}

type Run struct {
	Leads  []models.Lead
	Found  map[string]int   // por estrategia, con duplicados
	Failed map[string]error // estrategias que cortaron antes
}

type Engine struct {
	strategies []Strategy
	log        *zap.Logger
	metrics    *monitoring.Collector
}

func NewEngine(log *zap.Logger, metrics *monitoring.Collector, fanOut int, strategies ...Strategy) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if len(strategies) == 0 {
		strategies = []Strategy{
			DirectAdLeads{FanOut: fanOut},
			CampaignAdLeads{FanOut: fanOut},
			PageFormLeads{FanOut: fanOut},
		}
	}
	return &Engine{strategies: strategies, log: log, metrics: metrics}
}

func (e *Engine) Discover(ctx context.Context, src Source, accountID string) Run {
	batches := make([]Batch, len(e.strategies))
	errs := make([]error, len(e.strategies))

	g := new(errgroup.Group)
	for i, s := range e.strategies {
		g.Go(func() error {
			leads, err := s.Discover(ctx, src, accountID)
			batches[i] = Batch{Strategy: s.Name(), Leads: leads}
			errs[i] = err
			return nil
		})
	}
	_ = g.Wait()

	run := Run{Found: map[string]int{}, Failed: map[string]error{}}
	for i, b := range batches {
		run.Found[b.Strategy] = len(b.Leads)
		e.metrics.LeadsDiscovered(b.Strategy, len(b.Leads), errs[i] != nil)
		if errs[i] != nil {
			run.Failed[b.Strategy] = errs[i]
			e.log.Warn("lead strategy stopped early",
				zap.String("strategy", b.Strategy),
				zap.String("account", accountID),
				zap.Int("found", len(b.Leads)),
				zap.Error(errs[i]))
		}
	}
	run.Leads = Merge(batches...)
	e.log.Info("lead discovery finished", zap.String("account", accountID), zap.Int("unique", len(run.Leads)), zap.Any("found", run.Found))
	return run
}

type candidate struct {
	raw      adplatform.RawLead
	fields   map[string]string
	strategy string
	digest   string
}

func (c candidate) score() int {
	n := len(c.fields)
	for _, v := range []string{c.raw.FormID, c.raw.AdID, c.raw.AdsetID, c.raw.CampaignID, c.raw.PageID} {
		if v != "" {
			n++
		}
	}
	if !c.raw.CreatedTime.IsZero() {
		n++
	}
	return n
}

func Merge(batches ...Batch) []models.Lead {
	byID := map[string][]candidate{}
	for _, b := range batches {
		for _, l := range b.Leads {
			if l.ID == "" {
				continue
			}
			f := l.Fields()
			byID[l.ID] = append(byID[l.ID], candidate{raw: l, fields: f, strategy: b.Strategy, digest: digest(l, f)})
		}
	}

	out := make([]models.Lead, 0, len(byID))
	for id, cands := range byID {
		sort.Slice(cands, func(i, j int) bool {
			a, b := cands[i], cands[j]
			if sa, sb := a.score(), b.score(); sa != sb {
				return sa > sb
			}
			if a.strategy != b.strategy {
				return a.strategy < b.strategy
			}
			return a.digest < b.digest
		})
		out = append(out, combine(id, cands))
	}
	// orden determinista
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedTime.Equal(out[j].CreatedTime) {
			return out[i].CreatedTime.After(out[j].CreatedTime)
		}
		return out[i].PlatformLeadID < out[j].PlatformLeadID
	})
	return out
}

func combine(id string, ranked []candidate) models.Lead {
	l := models.Lead{PlatformLeadID: id, RawFields: map[string]string{}}
	first := func(get func(candidate) string) string {
		for _, c := range ranked {
			if v := get(c); v != "" {
				return v
			}
		}
		return ""
	}
	l.Origin = models.LeadOrigin{
		FormID:     first(func(c candidate) string { return c.raw.FormID }),
		CampaignID: first(func(c candidate) string { return c.raw.CampaignID }),
		AdID:       first(func(c candidate) string { return c.raw.AdID }),
		AdsetID:    first(func(c candidate) string { return c.raw.AdsetID }),
		PageID:     first(func(c candidate) string { return c.raw.PageID }),
	}
	for _, c := range ranked {
		if l.CreatedTime.IsZero() && !c.raw.CreatedTime.IsZero() {
			l.CreatedTime = c.raw.CreatedTime.UTC()
		}
		for k, v := range c.fields {
			if _, ok := l.RawFields[k]; !ok && v != "" {
				l.RawFields[k] = v
			}
		}
		if !slices.Contains(l.Sources, c.strategy) {
			l.Sources = append(l.Sources, c.strategy)
		}
	}
	slices.Sort(l.Sources)
	l.Fields = Normalize(id, l.RawFields)
	return l
}

func digest(l adplatform.RawLead, fields map[string]string) string {
	var b strings.Builder
	for _, v := range []string{l.CreatedTime.UTC().String(), l.FormID, l.AdID, l.AdsetID, l.CampaignID, l.PageID} {
		b.WriteString(v)
		b.WriteByte('|')
	}
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(fields[k])
		b.WriteByte(';')
	}
	return b.String()
}
