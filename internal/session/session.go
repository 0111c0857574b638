package session

import (
	"context"
	"net/http"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/AngelCh415/insights-sync/internal/models"
)

var ErrAuthenticationMissing = eris.New("authentication missing: no session or account selected")

type Provider interface {
	Session(r *http.Request) (models.Session, error)
}

type HeaderProvider struct{}

func (HeaderProvider) Session(r *http.Request) (models.Session, error) {
	token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	s := models.Session{
		AccessToken: token,
		AccountID:   strings.TrimPrefix(strings.TrimSpace(r.Header.Get("X-Account-ID")), "act_"),
		UserID:      strings.TrimSpace(r.Header.Get("X-User-ID")),
		OrgID:       strings.TrimSpace(r.Header.Get("X-Org-ID")),
	}
	return Validate(s)
}

func Validate(s models.Session) (models.Session, error) {
	if s.AccessToken == "" || s.AccountID == "" {
		return models.Session{}, ErrAuthenticationMissing
	}
	if s.OrgID == "" {
		s.OrgID = s.UserID
	}
	if s.OrgID == "" {
		s.OrgID = s.AccountID
	}
	if s.UserID == "" {
		s.UserID = s.OrgID
	}
	return s, nil
}

type ctxKey struct{}

func WithSession(ctx context.Context, s models.Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

func FromContext(ctx context.Context) (models.Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(models.Session)
	return s, ok
}

func Middleware(p Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, err := p.Session(r)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"authentication required"}`))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
		})
	}
}
