package handler_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/comment-autoreply/internal/auth"
	"github.com/sakif/comment-autoreply/internal/handler"
	"github.com/sakif/comment-autoreply/internal/service"
)

type stubProvider struct {
	identity *auth.Identity
	err      error
	gotCode  string
}

func (s *stubProvider) AuthURL(state string) string {
	return "https://github.example/login/oauth/authorize?state=" + state
}

func (s *stubProvider) Exchange(_ context.Context, code string) (*auth.Identity, error) {
	s.gotCode = code
	return s.identity, s.err
}

type stubLogins struct {
	result *service.AuthResult
	err    error
}

func (s *stubLogins) CompleteLogin(_ context.Context, _ *auth.Identity) (*service.AuthResult, error) {
	return s.result, s.err
}

func (s *stubLogins) SessionTTL() int { return 3600 }

func newAuthHandler(p *stubProvider, l *stubLogins) *handler.AuthHandler {
	return handler.NewAuthHandler(p, l, false, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func findCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func callbackRequest(state, cookieState, query string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/auth/github/callback?state="+state+query, nil)
	if cookieState != "" {
		req.AddCookie(&http.Cookie{Name: "oauth_state", Value: cookieState})
	}
	return req
}

func TestHandleGitHubLogin_SetsStateAndRedirects(t *testing.T) {
	h := newAuthHandler(&stubProvider{}, &stubLogins{})

	rr := httptest.NewRecorder()
	h.HandleGitHubLogin(rr, httptest.NewRequest(http.MethodGet, "/auth/github/login", nil))

	assert.Equal(t, http.StatusTemporaryRedirect, rr.Code)
	state := findCookie(rr, "oauth_state")
	require.NotNil(t, state)
	assert.True(t, state.HttpOnly)
	assert.Contains(t, rr.Header().Get("Location"), "state="+state.Value)
}

func TestHandleGitHubCallback(t *testing.T) {
	tests := []struct {
		name       string
		needsSetup bool
		suggested  string
		wantTarget string
	}{
		{"first login goes to setup", true, "", "/setup"},
		{"setup is prefilled with the display name", true, "Octo Cat", "/setup?name=Octo+Cat"},
		{"returning user goes to dashboard", false, "Octo Cat", "/dashboard"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &stubProvider{identity: &auth.Identity{UserID: "github:42", Login: "octo"}}
			logins := &stubLogins{result: &service.AuthResult{
				UserID: "github:42", Token: "jwt-value", NeedsSetup: tt.needsSetup, SuggestedName: tt.suggested,
			}}
			h := newAuthHandler(provider, logins)

			rr := httptest.NewRecorder()
			h.HandleGitHubCallback(rr, callbackRequest("abc", "abc", "&code=the-code"))

			assert.Equal(t, http.StatusSeeOther, rr.Code)
			assert.Equal(t, tt.wantTarget, rr.Header().Get("Location"))
			assert.Equal(t, "the-code", provider.gotCode)

			session := findCookie(rr, auth.SessionCookie)
			require.NotNil(t, session)
			assert.Equal(t, "jwt-value", session.Value)
			assert.Equal(t, 3600, session.MaxAge)
			assert.True(t, session.HttpOnly)
		})
	}
}

func TestHandleGitHubCallback_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		req        *http.Request
		provider   *stubProvider
		wantStatus int
	}{
		{"no state cookie", callbackRequest("abc", "", "&code=c"), &stubProvider{}, http.StatusBadRequest},
		{"state mismatch", callbackRequest("abc", "xyz", "&code=c"), &stubProvider{}, http.StatusBadRequest},
		{"missing code", callbackRequest("abc", "abc", ""), &stubProvider{}, http.StatusBadRequest},
		{"user denied", callbackRequest("abc", "abc", "&error=access_denied"), &stubProvider{}, http.StatusSeeOther},
		{"exchange failed", callbackRequest("abc", "abc", "&code=c"), &stubProvider{err: errors.New("bad code")}, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newAuthHandler(tt.provider, &stubLogins{})

			rr := httptest.NewRecorder()
			h.HandleGitHubCallback(rr, tt.req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Nil(t, findCookie(rr, auth.SessionCookie))
		})
	}
}

func TestHandleLogout_ClearsCookie(t *testing.T) {
	h := newAuthHandler(&stubProvider{}, &stubLogins{})

	rr := httptest.NewRecorder()
	h.HandleLogout(rr, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	session := findCookie(rr, auth.SessionCookie)
	require.NotNil(t, session)
	assert.Equal(t, -1, session.MaxAge)
}
