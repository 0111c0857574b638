package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/AngelCh415/insights-sync/internal/cache"
	"github.com/AngelCh415/insights-sync/internal/ingest"
	"github.com/AngelCh415/insights-sync/internal/leads"
	"github.com/AngelCh415/insights-sync/internal/metrics"
	"github.com/AngelCh415/insights-sync/internal/models"
	"github.com/AngelCh415/insights-sync/internal/period"
	"github.com/AngelCh415/insights-sync/internal/prospects"
	"github.com/AngelCh415/insights-sync/internal/session"
	"github.com/AngelCh415/insights-sync/internal/utils"
)

type Platform interface {
	leads.Source
	metrics.PlatformSource
}

type HierarchyCache interface {
	Get(ctx context.Context, req cache.Request) (cache.Result, error)
}

type Reporter interface {
	Report(ctx context.Context, platform metrics.PlatformSource, sess models.Session, w models.TimeWindow, compare bool) (metrics.Report, error)
}

type LeadSyncer interface {
	Run(ctx context.Context, src leads.Source, sess models.Session) (ingest.Result, error)
}

type ProspectService interface {
	Get(ctx context.Context, sess models.Session, id string) (models.Prospect, error)
	Update(ctx context.Context, sess models.Session, id string, u prospects.Update) (string, models.Prospect, error)
	Delete(ctx context.Context, sess models.Session, id string) error
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Log            *zap.Logger
	Observer       utils.Observer
	Sessions       session.Provider
	Platform       func(token string) Platform
	Periods        *period.Resolver
	Hierarchy      HierarchyCache
	Reports        Reporter
	Sync           LeadSyncer
	Prospects      ProspectService
	Ready          Pinger
	MetricsHandler http.Handler
	AllowedOrigins []string
}

type api struct {
	Deps
}

func NewRouter(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Sessions == nil {
		d.Sessions = session.HeaderProvider{}
	}
	a := &api{Deps: d}

	mux := chi.NewRouter()
	mux.Use(utils.RequestID)
	mux.Use(utils.Logger(d.Log, d.Observer))
	// lista vacía = cualquier origen; credenciales solo a orígenes listados
	credentials := len(d.AllowedOrigins) > 0 && !slices.Contains(d.AllowedOrigins, "*")
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Account-ID", "X-User-ID", "X-Org-ID", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: credentials,
		MaxAge:           300,
	}))

	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
	mux.Get("/readyz", a.ready)
	if d.MetricsHandler != nil {
		mux.Method(http.MethodGet, "/metrics", d.MetricsHandler)
	}

	mux.Group(func(r chi.Router) {
		r.Use(session.Middleware(d.Sessions))
		r.Get("/insights", a.insights)
		r.Get("/hierarchy", a.hierarchy)
		r.Get("/lead-sync", a.leadSync)
		r.Route("/prospect/{id}", func(r chi.Router) {
			r.Get("/", a.getProspect)
			r.Put("/", a.putProspect)
			r.Delete("/", a.deleteProspect)
		})
	})
	return mux
}

func (a *api) ready(w http.ResponseWriter, r *http.Request) {
	if a.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.Ready.Ping(ctx); err != nil {
			a.Log.Warn("not ready", zap.Error(err))
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(200)
	w.Write([]byte("ready"))
}

func (a *api) window(r *http.Request, presetParam string) (models.TimeWindow, error) {
	q := r.URL.Query()
	start, end := q.Get("start_date"), q.Get("end_date")
	if start != "" || end != "" {
		return a.Periods.ResolveRange(start, end)
	}
	return a.Periods.Resolve(q.Get(presetParam))
}

func boolParam(r *http.Request, name string, def bool) bool {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func (a *api) insights(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())
	win, err := a.window(r, "period")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	rep, err := a.Reports.Report(r.Context(), a.Platform(sess.AccessToken), sess, win, boolParam(r, "compare", true))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (a *api) hierarchy(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())
	win, err := a.window(r, "time_range")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	res, err := a.Hierarchy.Get(r.Context(), cache.Request{
		AccountID: sess.AccountID,
		UserID:    sess.UserID,
		Token:     sess.AccessToken,
		Window:    win,
		Refresh:   boolParam(r, "refresh", false),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if res.Campaigns == nil {
		res.Campaigns = []models.HierarchyNode{}
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *api) leadSync(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())
	res, err := a.Sync.Run(r.Context(), a.Platform(sess.AccessToken), sess)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *api) getProspect(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())
	p, err := a.Prospects.Get(r.Context(), sess, chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *api) putProspect(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())
	var u prospects.Update
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&u); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	result, p, err := a.Prospects.Update(r.Context(), sess, chi.URLParam(r, "id"), u)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if result == prospects.ResultCreated {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{"result": result, "prospect": p})
}

func (a *api) deleteProspect(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())
	if err := a.Prospects.Delete(r.Context(), sess, chi.URLParam(r, "id")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", " ")
	enc.Encode(v)
}
