package models

import "time"

const DateLayout = "2006-01-02"

type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func NewTimeWindow(start, end time.Time) TimeWindow {
	return TimeWindow{Start: Day(start), End: Day(end)}
}

func (w TimeWindow) Days() int {
	return int(w.End.Sub(w.Start).Hours()/24+0.5) + 1
}

func (w TimeWindow) Contains(t time.Time) bool {
	d := Day(t.In(w.Start.Location()))
	return !d.Before(w.Start) && !d.After(w.End)
}

func (w TimeWindow) Key() string {
	return w.Start.Format(DateLayout) + "_" + w.End.Format(DateLayout)
}

func (w TimeWindow) Since() string { return w.Start.Format(DateLayout) }
func (w TimeWindow) Until() string { return w.End.Format(DateLayout) }

type MetricSnapshot struct {
	EntityID      string     `json:"entityId,omitempty"`
	Window        TimeWindow `json:"-"`
	Spend         float64    `json:"spend"`
	Impressions   int64      `json:"impressions"`
	Clicks        int64      `json:"clicks"`
	Reach         int64      `json:"reach"`
	CPM           float64    `json:"cpm"`
	CPC           float64    `json:"cpc"`
	CTR           float64    `json:"ctr"`
	Leads         int64      `json:"leads"`
	CostPerResult float64    `json:"costPerResult"`
}

func (m *MetricSnapshot) Add(o MetricSnapshot) {
	m.Spend += o.Spend
	m.Impressions += o.Impressions
	m.Clicks += o.Clicks
	m.Reach += o.Reach
	m.Leads += o.Leads
}

func (m *MetricSnapshot) Recompute() {
	m.CPM = round2(safeDiv(m.Spend*1000, float64(m.Impressions)))
	m.CPC = round2(safeDiv(m.Spend, float64(m.Clicks)))
	m.CTR = round2(safeDiv(float64(m.Clicks)*100, float64(m.Impressions)))
	m.CostPerResult = round2(safeDiv(m.Spend, float64(m.Leads)))
}

type Level string

const (
	LevelCampaign Level = "campaign"
	LevelAdSet    Level = "adset"
	LevelAd       Level = "ad"
)

type HierarchyNode struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Status    string          `json:"status"`
	Objective string          `json:"objective,omitempty"`
	Level     Level           `json:"level"`
	Metrics   MetricSnapshot  `json:"metrics"`
	Children  []HierarchyNode `json:"children,omitempty"`
}

type CacheEntry struct {
	Key       string          `json:"key"`
	WindowKey string          `json:"windowKey"`
	Campaigns []HierarchyNode `json:"campaigns"`
	FetchedAt time.Time       `json:"fetchedAt"`
	TTL       time.Duration   `json:"ttl"`
}

func (e CacheEntry) Fresh(now time.Time) bool {
	return now.Sub(e.FetchedAt) < e.TTL
}

type LeadFields struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Company string `json:"company"`
}

type LeadOrigin struct {
	FormID     string `json:"formId,omitempty"`
	CampaignID string `json:"campaignId,omitempty"`
	AdID       string `json:"adId,omitempty"`
	AdsetID    string `json:"adsetId,omitempty"`
	PageID     string `json:"pageId,omitempty"`
}

type Lead struct {
	PlatformLeadID string            `json:"platformLeadId"`
	Fields         LeadFields        `json:"normalizedFields"`
	RawFields      map[string]string `json:"rawFields"`
	Origin         LeadOrigin        `json:"origin"`
	CreatedTime    time.Time         `json:"createdTime"`
	Sources        []string          `json:"sources,omitempty"`
}

type ProspectStatus string

const (
	StatusNew       ProspectStatus = "new"
	StatusContacted ProspectStatus = "contacted"
	StatusQualified ProspectStatus = "qualified"
	StatusConverted ProspectStatus = "converted"
	StatusLost      ProspectStatus = "lost"
)

func (s ProspectStatus) Valid() bool {
	switch s {
	case StatusNew, StatusContacted, StatusQualified, StatusConverted, StatusLost:
		return true
	}
	return false
}

type Prospect struct {
	ID                 string            `json:"id"`
	PlatformLeadID     string            `json:"platformLeadId,omitempty"`
	Name               string            `json:"name"`
	Email              string            `json:"email"`
	Phone              string            `json:"phone"`
	Company            string            `json:"company"`
	RawFields          map[string]string `json:"rawFields,omitempty"`
	FormID             string            `json:"formId,omitempty"`
	CampaignID         string            `json:"campaignId,omitempty"`
	AdID               string            `json:"adId,omitempty"`
	AdsetID            string            `json:"adsetId,omitempty"`
	PageID             string            `json:"pageId,omitempty"`
	CreatedTime        *time.Time        `json:"createdTime,omitempty"`
	Status             ProspectStatus    `json:"status"`
	SyncedFromPlatform bool              `json:"syncedFromPlatform"`
	OrgID              string            `json:"orgId"`
	AccountID          string            `json:"accountId"`
	Revenue            float64           `json:"revenue,omitempty"`
	ClosingDate        *time.Time        `json:"closingDate,omitempty"`
	Notes              string            `json:"notes,omitempty"`
	CreatedAt          time.Time         `json:"createdAt"`
	UpdatedAt          time.Time         `json:"updatedAt"`
	SyncedAt           *time.Time        `json:"syncedAt,omitempty"`
}

func (p Prospect) LeadDate() time.Time {
	if p.CreatedTime != nil && !p.CreatedTime.IsZero() {
		return *p.CreatedTime
	}
	return p.CreatedAt
}

type RevenueRecord struct {
	ID          string     `json:"id"`
	ProspectID  string     `json:"prospectId,omitempty"`
	Amount      float64    `json:"amount"`
	LeadDate    *time.Time `json:"leadDate,omitempty"`
	ClosingDate *time.Time `json:"closingDate,omitempty"`
	CampaignID  string     `json:"campaignId,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

func (r RevenueRecord) CohortDate() time.Time {
	switch {
	case r.LeadDate != nil && !r.LeadDate.IsZero():
		return *r.LeadDate
	case !r.CreatedAt.IsZero():
		return r.CreatedAt
	case r.ClosingDate != nil:
		return *r.ClosingDate
	}
	return time.Time{}
}

type Session struct {
	AccountID   string
	UserID      string
	OrgID       string
	AccessToken string
}

func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func safeDiv(a, b float64) float64 {
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
