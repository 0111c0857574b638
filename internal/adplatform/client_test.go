package adplatform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AngelCh415/insights-sync/internal/models"
	"github.com/AngelCh415/insights-sync/internal/utils"
)

func newTestClient(srv *httptest.Server, opts Options) *Client {
	opts.BaseURL = srv.URL
	if opts.RetryBase == 0 {
		opts.RetryBase = time.Millisecond
	}
	if opts.RatePerSec == 0 {
		opts.RatePerSec = 1000
		opts.Burst = 1000
	}
	return New(NewHTTPClient(2*time.Second), opts, nil, nil).WithToken("tok")
}

func TestClient_PaginationFollowsNext(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tok", r.URL.Query().Get("access_token"))
		switch r.URL.Query().Get("after") {
		case "":
			fmt.Fprintf(w, `{"data":[{"id":"c1"},{"id":"c2"}],"paging":{"next":"%s/act_1/campaigns?after=p2"}}`, srv.URL)
		case "p2":
			fmt.Fprint(w, `{"data":[{"id":"c3"}],"paging":{}}`)
		}
	}))
	defer srv.Close()

	got, err := newTestClient(srv, Options{}).Campaigns(context.Background(), "1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "c3", got[2].ID)
}

func TestClient_PageCap(t *testing.T) {
	var srv *httptest.Server
	var calls atomic.Int32
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		fmt.Fprintf(w, `{"data":[{"id":"c%d"}],"paging":{"next":"%s/x?after=%d"}}`, n, srv.URL, n)
	}))
	defer srv.Close()

	got, err := newTestClient(srv, Options{MaxPages: 3}).Campaigns(context.Background(), "1")
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.EqualValues(t, 3, calls.Load())
}

func TestClient_RepeatedCursorStops(t *testing.T) {
	var srv *httptest.Server
	var calls atomic.Int32
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprintf(w, `{"data":[{"id":"c"}],"paging":{"next":"%s/loop?after=same"}}`, srv.URL)
	}))
	defer srv.Close()

	got, err := newTestClient(srv, Options{MaxPages: 10}).Campaigns(context.Background(), "1")
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.EqualValues(t, 2, calls.Load())
}

func TestClient_PlatformErrorDecoded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"Invalid OAuth access token.","type":"OAuthException","code":190,"fbtrace_id":"abc"}}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv, Options{}).Campaigns(context.Background(), "1")
	require.Error(t, err)
	var perr *PlatformError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 190, perr.Code)
	assert.Equal(t, http.StatusBadRequest, perr.Status)
	assert.False(t, utils.IsTransient(err))
}

func TestClient_RetriesThrottlingAnd5xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusTooManyRequests)
		case 2:
			http.Error(w, "internal error", http.StatusInternalServerError)
		default:
			fmt.Fprint(w, `{"data":[{"id":"c1"}]}`)
		}
	}))
	defer srv.Close()

	got, err := newTestClient(srv, Options{MaxAttempts: 3}).Campaigns(context.Background(), "1")
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.EqualValues(t, 3, calls.Load())
}

func TestClient_404NotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := newTestClient(srv, Options{MaxAttempts: 3}).Campaigns(context.Background(), "1")
	require.Error(t, err)
	assert.EqualValues(t, 1, calls.Load())
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := New(NewHTTPClient(100*time.Millisecond), Options{BaseURL: srv.URL, MaxAttempts: 1}, nil, nil)
	_, err := c.Campaigns(context.Background(), "1")
	require.Error(t, err)
	assert.True(t, utils.IsTransient(err))
}

func TestClient_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[]}`)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestClient(srv, Options{}).Campaigns(ctx, "1")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInsights_ResultsWinOverActions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/c1/insights"))
		assert.Contains(t, r.URL.Query().Get("time_range"), `"since":"2024-08-01"`)
		fmt.Fprint(w, `{"data":[{
			"spend":"50.00","impressions":"1000","clicks":"20","reach":"800",
			"actions":[{"action_type":"lead","value":"3"},{"action_type":"link_click","value":"20"}],
			"results":[{"indicator":"actions:lead","values":[{"value":"10"}]}]
		}]}`)
	}))
	defer srv.Close()

	w := models.TimeWindow{Start: day(2024, 8, 1), End: day(2024, 8, 31)}
	m, err := newTestClient(srv, Options{}).Insights(context.Background(), "c1", w)
	require.NoError(t, err)
	assert.EqualValues(t, 10, m.Leads)
	assert.Equal(t, 50.0, m.Spend)
	assert.Equal(t, 50.0, m.CPM)
	assert.Equal(t, 2.5, m.CPC)
	assert.Equal(t, 2.0, m.CTR)
	assert.Equal(t, 5.0, m.CostPerResult)
}

func TestInsights_ActionsFallbackAndEmpty(t *testing.T) {
	row := InsightRow{Actions: []ActionValue{
		{ActionType: "leadgen_grouped", Value: 2},
		{ActionType: "onsite_conversion.lead_grouped", Value: 1},
		{ActionType: "video_view", Value: 40},
	}}
	assert.EqualValues(t, 3, row.LeadCount())
	assert.EqualValues(t, 0, InsightRow{}.LeadCount())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[]}`)
	}))
	defer srv.Close()
	m, err := newTestClient(srv, Options{}).Insights(context.Background(), "ad9", models.TimeWindow{})
	require.NoError(t, err)
	assert.Equal(t, "ad9", m.EntityID)
	assert.Zero(t, m.Spend)
	assert.Zero(t, m.CPM)
}

func TestFollowLeads_NestedContinuation(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/act_1/ads"):
			fmt.Fprintf(w, `{"data":[{"id":"ad1","campaign_id":"c1","leads":{
				"data":[{"id":"L1","created_time":"2024-08-03T10:00:00+0000","field_data":[{"name":"email","values":["a@x.io"]}]}],
				"paging":{"next":"%s/ad1/leads?after=L1"}}}]}`, srv.URL)
		case strings.HasSuffix(r.URL.Path, "/ad1/leads"):
			fmt.Fprint(w, `{"data":[{"id":"L2","created_time":"2024-08-04T10:00:00+0000"}]}`)
		}
	}))
	defer srv.Close()

	c := newTestClient(srv, Options{})
	ads, err := c.AccountAdsWithLeads(context.Background(), "act_1")
	require.NoError(t, err)
	require.Len(t, ads, 1)
	require.NotNil(t, ads[0].Leads)
	assert.Equal(t, "a@x.io", ads[0].Leads.Data[0].Fields()["email"])
	assert.Equal(t, 3, ads[0].Leads.Data[0].CreatedTime.Day())

	more, err := c.FollowLeads(context.Background(), ads[0].Leads.Paging.Next)
	require.NoError(t, err)
	require.Len(t, more, 1)
	assert.Equal(t, "L2", more[0].ID)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
