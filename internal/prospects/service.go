package prospects

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/AngelCh415/insights-sync/internal/models"
	"github.com/AngelCh415/insights-sync/internal/monitoring"
	"github.com/AngelCh415/insights-sync/internal/store"
)

var (
	ErrNotFound      = eris.New("prospect not found")
	ErrInvalidStatus = eris.New("invalid prospect status")
)

const DefaultBucket = "default"

type Service struct {
	store     store.Store
	batchSize int
	now       func() time.Time
	log       *zap.Logger
	metrics   *monitoring.Collector
}

type Option func(*Service)

func WithBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 && n <= store.MaxBatchSize {
			s.batchSize = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithMetrics(m *monitoring.Collector) Option {
	return func(s *Service) { s.metrics = m }
}

func New(st store.Store, log *zap.Logger, opts ...Option) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{store: st, batchSize: store.MaxBatchSize, now: time.Now, log: log}
	for _, o := range opts {
		o(s)
	}
	return s
}

func bucketsFor(sess models.Session) Buckets {
	acct := sess.AccountID
	if acct == "" {
		acct = DefaultBucket
	}
	return Buckets{OrgID: sess.OrgID, AccountID: acct}
}

func (s *Service) accountBuckets(ctx context.Context, sess models.Session) ([]string, error) {
	own := bucketsFor(sess).Prospects()
	colls, err := s.store.Collections(ctx, store.Path("orgs", sess.OrgID, "adAccounts")+"/")
	if err != nil {
		return nil, eris.Wrap(err, "prospects: list buckets")
	}
	out := []string{own}
	for _, c := range colls {
		if c != own && strings.HasSuffix(c, "/prospects") {
			out = append(out, c)
		}
	}
	return out, nil
}

type SaveResult struct {
	Saved   int `json:"saved"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

type pending struct {
	id   string
	data map[string]any
}

func (s *Service) SaveLeads(ctx context.Context, sess models.Session, leads []models.Lead) (SaveResult, error) {
	var res SaveResult
	b := bucketsFor(sess)
	coll := b.Prospects()
	now := s.now().UTC()

	batch := s.store.NewBatch()
	var queued []pending
	seen := make(map[string]struct{}, len(leads)) // idempotencia dentro de la corrida
	flush := func() {
		if len(queued) == 0 {
			return
		}
		if err := batch.Commit(ctx); err != nil {
			s.log.Warn("prospect batch commit failed, writing one by one", zap.Int("size", len(queued)), zap.Error(err))
			for _, p := range queued {
				if err := s.store.Set(ctx, coll, p.id, p.data, true); err != nil {
					res.Failed++
					s.log.Warn("prospect write failed", zap.String("id", p.id), zap.Error(err))
					continue
				}
				res.Saved++
			}
		} else {
			res.Saved += len(queued)
		}
		batch = s.store.NewBatch()
		queued = queued[:0]
	}

	for _, l := range leads {
		if err := ctx.Err(); err != nil {
			flush()
			s.metrics.ProspectWrites(res.Saved, res.Skipped, res.Failed)
			return res, eris.Wrap(err, "prospects: save leads")
		}
		if _, dup := seen[DocID(l.PlatformLeadID)]; dup {
			res.Skipped++
			continue
		}
		_, found, err := ResolveIdentity(ctx, s.store, []string{coll}, l.PlatformLeadID)
		if err != nil {
			res.Failed++
			s.log.Warn("identity lookup failed", zap.String("lead", l.PlatformLeadID), zap.Error(err))
			continue
		}
		seen[DocID(l.PlatformLeadID)] = struct{}{}
		if found {
			res.Skipped++
			continue
		}
		p := fromLead(l, b, now)
		data, err := store.Encode(p)
		if err != nil {
			res.Failed++
			continue
		}
		if err := batch.Set(coll, p.ID, data, true); err != nil {
			res.Failed++
			continue
		}
		queued = append(queued, pending{id: p.ID, data: data})
		if batch.Len() >= s.batchSize { // tope del lote
			flush()
		}
	}
	flush()

	s.metrics.ProspectWrites(res.Saved, res.Skipped, res.Failed)
	s.log.Info("leads persisted",
		zap.String("org", b.OrgID),
		zap.String("account", b.AccountID),
		zap.Int("saved", res.Saved),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed))
	return res, nil
}

func fromLead(l models.Lead, b Buckets, now time.Time) models.Prospect {
	p := models.Prospect{
		ID:                 DocID(l.PlatformLeadID),
		PlatformLeadID:     l.PlatformLeadID,
		Name:               l.Fields.Name,
		Email:              l.Fields.Email,
		Phone:              l.Fields.Phone,
		Company:            l.Fields.Company,
		RawFields:          l.RawFields,
		FormID:             l.Origin.FormID,
		CampaignID:         l.Origin.CampaignID,
		AdID:               l.Origin.AdID,
		AdsetID:            l.Origin.AdsetID,
		PageID:             l.Origin.PageID,
		Status:             models.StatusNew,
		SyncedFromPlatform: true,
		OrgID:              b.OrgID,
		AccountID:          b.AccountID,
		CreatedAt:          now,
		UpdatedAt:          now,
		SyncedAt:           &now,
	}
	if !l.CreatedTime.IsZero() {
		ct := l.CreatedTime
		p.CreatedTime = &ct
	}
	return p
}

func (s *Service) Get(ctx context.Context, sess models.Session, id string) (models.Prospect, error) {
	colls, err := s.accountBuckets(ctx, sess)
	if err != nil {
		return models.Prospect{}, err
	}
	m, ok, err := ResolveIdentity(ctx, s.store, colls, id)
	if err != nil {
		return models.Prospect{}, err
	}
	if !ok {
		return models.Prospect{}, eris.Wrapf(ErrNotFound, "prospects: get %s", id)
	}
	return m.Prospect, nil
}

type Update struct {
	Name        *string                `json:"name,omitempty"`
	Email       *string                `json:"email,omitempty"`
	Phone       *string                `json:"phone,omitempty"`
	Company     *string                `json:"company,omitempty"`
	Status      *models.ProspectStatus `json:"status,omitempty"`
	Revenue     *float64               `json:"revenue,omitempty"`
	ClosingDate *time.Time             `json:"closingDate,omitempty"`
	Notes       *string                `json:"notes,omitempty"`
	CampaignID  *string                `json:"campaignId,omitempty"`
}

func (u Update) apply(p *models.Prospect) {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&p.Name, u.Name)
	set(&p.Email, u.Email)
	set(&p.Phone, u.Phone)
	set(&p.Company, u.Company)
	set(&p.Notes, u.Notes)
	set(&p.CampaignID, u.CampaignID)
	if u.Status != nil {
		p.Status = *u.Status
	}
	if u.Revenue != nil {
		p.Revenue = *u.Revenue
	}
	if u.ClosingDate != nil {
		p.ClosingDate = u.ClosingDate
	}
}

const (
	ResultCreated = "created"
	ResultUpdated = "updated"
)

func (s *Service) Update(ctx context.Context, sess models.Session, id string, u Update) (string, models.Prospect, error) {
	if id == "" {
		return "", models.Prospect{}, eris.Wrap(ErrNotFound, "prospects: empty id")
	}
	if u.Status != nil && !u.Status.Valid() {
		return "", models.Prospect{}, eris.Wrapf(ErrInvalidStatus, "prospects: status %q", *u.Status)
	}
	colls, err := s.accountBuckets(ctx, sess)
	if err != nil {
		return "", models.Prospect{}, err
	}
	m, found, err := ResolveIdentity(ctx, s.store, colls, id)
	if err != nil {
		return "", models.Prospect{}, err
	}

	now := s.now().UTC()
	result := ResultUpdated
	var p models.Prospect
	if found {
		p = m.Prospect
	} else {
		b := bucketsFor(sess)
		result = ResultCreated
		m = Match{Collection: b.Prospects(), DocID: id}
		p = models.Prospect{ID: id, Status: models.StatusNew, OrgID: b.OrgID, AccountID: b.AccountID, CreatedAt: now}
	}
	wasConverted := p.Status == models.StatusConverted
	u.apply(&p)
	p.UpdatedAt = now

	data, err := store.Encode(p)
	if err != nil {
		return "", models.Prospect{}, err
	}
	if err := s.store.Set(ctx, m.Collection, m.DocID, data, true); err != nil {
		return "", models.Prospect{}, eris.Wrapf(err, "prospects: write %s", id)
	}

	if !wasConverted && p.Status == models.StatusConverted && p.Revenue > 0 {
		if err := s.recordRevenue(ctx, m.Buckets(), p, now); err != nil {
			// el prospecto ya quedó guardado
			s.log.Error("revenue record failed", zap.String("prospect", p.ID), zap.Error(err))
		}
	}
	return result, p, nil
}

func (s *Service) recordRevenue(ctx context.Context, b Buckets, p models.Prospect, now time.Time) error {
	lead := p.LeadDate()
	closing := now
	if p.ClosingDate != nil {
		closing = *p.ClosingDate
	}
	rec := models.RevenueRecord{
		ID:          uuid.NewString(),
		ProspectID:  p.ID,
		Amount:      p.Revenue,
		LeadDate:    &lead,
		ClosingDate: &closing,
		CampaignID:  p.CampaignID,
		CreatedAt:   now,
	}
	data, err := store.Encode(rec)
	if err != nil {
		return err
	}
	return eris.Wrap(s.store.Set(ctx, b.Revenues(), rec.ID, data, false), "prospects: write revenue")
}

func (s *Service) Delete(ctx context.Context, sess models.Session, id string) error {
	colls, err := s.accountBuckets(ctx, sess)
	if err != nil {
		return err
	}
	m, ok, err := ResolveIdentity(ctx, s.store, colls, id)
	if err != nil {
		return err
	}
	if !ok {
		return eris.Wrapf(ErrNotFound, "prospects: delete %s", id)
	}
	return eris.Wrapf(s.store.Delete(ctx, m.Collection, m.DocID), "prospects: delete %s", id)
}

func (s *Service) ListProspects(ctx context.Context, sess models.Session) ([]models.Prospect, error) {
	docs, err := s.store.List(ctx, bucketsFor(sess).Prospects())
	if err != nil {
		return nil, eris.Wrap(err, "prospects: list")
	}
	out := make([]models.Prospect, 0, len(docs))
	for _, d := range docs {
		m, _, err := matchOf(d)
		if err != nil {
			s.log.Warn("skipping unreadable prospect", zap.String("id", d.ID), zap.Error(err))
			continue
		}
		out = append(out, m.Prospect)
	}
	return out, nil
}

func (s *Service) ListRevenues(ctx context.Context, sess models.Session) ([]models.RevenueRecord, error) {
	docs, err := s.store.List(ctx, bucketsFor(sess).Revenues())
	if err != nil {
		return nil, eris.Wrap(err, "prospects: list revenues")
	}
	out := make([]models.RevenueRecord, 0, len(docs))
	for _, d := range docs {
		var r models.RevenueRecord
		if err := d.Decode(&r); err != nil {
			s.log.Warn("skipping unreadable revenue", zap.String("id", d.ID), zap.Error(err))
			continue
		}
		if r.ID == "" {
			r.ID = d.ID
		}
		out = append(out, r)
	}
	return out, nil
}
