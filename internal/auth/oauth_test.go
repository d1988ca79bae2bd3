package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T, h http.HandlerFunc) *GitHubProvider {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	p := NewGitHubProvider("client", "secret", "http://localhost/auth/github/callback")
	p.userURL = srv.URL
	return p
}

func TestIdentify_ResolvesStableUserID(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":583231,"login":"octocat","name":""}`))
	})

	id, err := p.identify(context.Background(), http.DefaultClient)
	require.NoError(t, err)
	assert.Equal(t, "github:583231", id.UserID)
	assert.Equal(t, "octocat", id.Login)
}

func TestIdentify_PrefersDisplayName(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":1,"login":"octocat","name":"Mona Lisa"}`))
	})

	id, err := p.identify(context.Background(), http.DefaultClient)
	require.NoError(t, err)
	assert.Equal(t, "Mona Lisa", id.Login)
}

func TestIdentify_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"non-200", http.StatusUnauthorized, `{"message":"Bad credentials"}`},
		{"zero id", http.StatusOK, `{"id":0,"login":"ghost"}`},
		{"bad json", http.StatusOK, `{"id":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := p.identify(context.Background(), http.DefaultClient)
			assert.Error(t, err)
		})
	}
}

func TestAuthURL_CarriesState(t *testing.T) {
	p := NewGitHubProvider("client-id", "secret", "http://localhost/cb")
	u := p.AuthURL("state-123")
	assert.True(t, strings.Contains(u, "state=state-123"), u)
	assert.True(t, strings.Contains(u, "client_id=client-id"), u)
}
