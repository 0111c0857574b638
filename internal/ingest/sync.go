package ingest

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/AngelCh415/insights-sync/internal/leads"
	"github.com/AngelCh415/insights-sync/internal/models"
	"github.com/AngelCh415/insights-sync/internal/prospects"
)

type Discoverer interface {
	Discover(ctx context.Context, src leads.Source, accountID string) leads.Run
}

type Saver interface {
	SaveLeads(ctx context.Context, sess models.Session, leads []models.Lead) (prospects.SaveResult, error)
}

type Result struct {
	Leads          []models.Lead     `json:"leads"`
	TotalCount     int               `json:"totalCount"`
	Saved          int               `json:"savedToFirebase"`
	Skipped        int               `json:"skipped"`
	Failed         int               `json:"failed"`
	StrategyErrors map[string]string `json:"strategyErrors,omitempty"`
}

type Syncer struct {
	discover Discoverer
	save     Saver
	log      *zap.Logger
}

func NewSyncer(d Discoverer, s Saver, log *zap.Logger) *Syncer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Syncer{discover: d, save: s, log: log}
}

func (s *Syncer) Run(ctx context.Context, src leads.Source, sess models.Session) (Result, error) {
	start := time.Now()
	run := s.discover.Discover(ctx, src, sess.AccountID)

	res := Result{Leads: run.Leads, TotalCount: len(run.Leads)}
	if res.Leads == nil {
		res.Leads = []models.Lead{}
	}
	if len(run.Failed) > 0 {
		res.StrategyErrors = make(map[string]string, len(run.Failed))
		for name, err := range run.Failed {
			res.StrategyErrors[name] = err.Error()
		}
	}

	saved, err := s.save.SaveLeads(ctx, sess, run.Leads)
	res.Saved, res.Skipped, res.Failed = saved.Saved, saved.Skipped, saved.Failed
	if err != nil {
		return res, eris.Wrapf(err, "ingest: sync account %s", sess.AccountID)
	}

	s.log.Info("lead sync complete",
		zap.String("account", sess.AccountID),
		zap.Int("total", res.TotalCount),
		zap.Int("saved", res.Saved),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed),
		zap.Duration("took", time.Since(start)))
	return res, nil
}
