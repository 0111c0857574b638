package httpx

import (
	"errors"
	"net/http"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/AngelCh415/insights-sync/internal/adplatform"
	"github.com/AngelCh415/insights-sync/internal/period"
	"github.com/AngelCh415/insights-sync/internal/prospects"
	"github.com/AngelCh415/insights-sync/internal/session"
	"github.com/AngelCh415/insights-sync/internal/utils"
)

func statusOf(err error) int {
	var perr *adplatform.PlatformError
	switch {
	case eris.Is(err, session.ErrAuthenticationMissing):
		return http.StatusUnauthorized
	case eris.Is(err, period.ErrInvalidPeriod), eris.Is(err, prospects.ErrInvalidStatus):
		return http.StatusBadRequest
	case eris.Is(err, prospects.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &perr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status >= 500 {
		a.Log.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("rid", utils.RID(r.Context())),
			zap.Any("error", eris.ToJSON(err, true)))
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	writeJSON(w, status, map[string]string{"error": msg})
}
