package session

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderProvider(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/insights", nil)
	r.Header.Set("Authorization", "Bearer tok")
	r.Header.Set("X-Account-ID", "act_123")
	r.Header.Set("X-User-ID", "u1")

	s, err := HeaderProvider{}.Session(r)
	require.NoError(t, err)
	assert.Equal(t, "123", s.AccountID)
	assert.Equal(t, "tok", s.AccessToken)
	assert.Equal(t, "u1", s.OrgID)
}

func TestHeaderProvider_Missing(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/insights", nil)
	r.Header.Set("Authorization", "Bearer tok")

	_, err := HeaderProvider{}.Session(r)
	assert.True(t, errors.Is(err, ErrAuthenticationMissing))
}

func TestMiddleware_ShortCircuits(t *testing.T) {
	called := false
	h := Middleware(HeaderProvider{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/hierarchy", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)

	req := httptest.NewRequest(http.MethodGet, "/hierarchy", nil)
	req.Header.Set("Authorization", "Bearer tok")
	req.Header.Set("X-Account-ID", "9")
	var got string
	h = Middleware(HeaderProvider{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, _ := FromContext(r.Context())
		got = s.AccountID
	}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "9", got)
}
