package google_test

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxpanel/internal/google"
	"github.com/teemow/inboxpanel/internal/google/googletest"
)

func newClient(srv *googletest.Server) *google.OAuthClient {
	return google.NewOAuthClient(google.Config{
		ClientID:     googletest.ClientID,
		ClientSecret: googletest.ClientSecret,
		Endpoint:     srv.Endpoint(),
		APIEndpoint:  srv.APIEndpoint(),
	})
}

func TestAuthorizationURL(t *testing.T) {
	srv := googletest.New(t)
	c := newClient(srv)

	raw, err := c.AuthorizationURL("https://app.example.com/api/gmail/callback")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()

	assert.Equal(t, srv.URL+"/o/oauth2/auth", u.Scheme+"://"+u.Host+u.Path)
	assert.Equal(t, googletest.ClientID, q.Get("client_id"))
	assert.Equal(t, "https://app.example.com/api/gmail/callback", q.Get("redirect_uri"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.Equal(t,
		"https://www.googleapis.com/auth/gmail.readonly https://www.googleapis.com/auth/userinfo.email",
		q.Get("scope"))
	assert.False(t, q.Has("state"))
}

func TestAuthorizationURL_DefaultsToGoogle(t *testing.T) {
	c := google.NewOAuthClient(google.Config{ClientID: "id", ClientSecret: "secret"})

	raw, err := c.AuthorizationURL("http://localhost:8080/api/gmail/callback")
	require.NoError(t, err)
	assert.Contains(t, raw, "https://accounts.google.com/o/oauth2/auth?")
}

func TestUnconfigured(t *testing.T) {
	tests := []struct {
		name string
		cfg  google.Config
	}{
		{"no client id", google.Config{ClientSecret: "secret"}},
		{"no client secret", google.Config{ClientID: "id"}},
		{"nothing", google.Config{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := google.NewOAuthClient(tt.cfg)
			assert.False(t, c.Configured())

			_, err := c.AuthorizationURL("http://localhost/cb")
			assert.ErrorIs(t, err, google.ErrConfiguration)

			_, err = c.ExchangeCode(context.Background(), "code", "http://localhost/cb")
			assert.ErrorIs(t, err, google.ErrConfiguration)

			_, err = c.Refresh(context.Background(), "refresh")
			assert.ErrorIs(t, err, google.ErrConfiguration)
		})
	}
}

func TestExchangeCode(t *testing.T) {
	srv := googletest.New(t)
	srv.AddCode("good-code", googletest.Grant{AccessToken: "access-1", RefreshToken: "refresh-1", ExpiresIn: 3600})
	c := newClient(srv)

	ts, err := c.ExchangeCode(context.Background(), "good-code", "http://localhost/cb")
	require.NoError(t, err)
	assert.Equal(t, "access-1", ts.AccessToken)
	assert.Equal(t, "refresh-1", ts.RefreshToken)
	assert.Equal(t, time.Hour, ts.ExpiresIn)
	assert.WithinDuration(t, time.Now().Add(time.Hour), ts.Expiry, time.Minute)
}

func TestExchangeCode_Rejected(t *testing.T) {
	srv := googletest.New(t)
	c := newClient(srv)

	_, err := c.ExchangeCode(context.Background(), "bad-code", "http://localhost/cb")
	require.Error(t, err)
	assert.ErrorIs(t, err, google.ErrExchange)
	assert.NotErrorIs(t, err, google.ErrRefresh)

	var gerr *google.Error
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, google.KindExchange, gerr.Kind)
	assert.Equal(t, http.StatusBadRequest, gerr.Status)
	assert.Contains(t, gerr.Body, "invalid_grant")
	assert.Equal(t, 1, srv.TokenRequests(), "exchange must not retry")
}

func TestRefresh(t *testing.T) {
	srv := googletest.New(t)
	srv.AddRefreshToken("refresh-1", googletest.Grant{AccessToken: "access-2", ExpiresIn: 1800})
	c := newClient(srv)

	ts, err := c.Refresh(context.Background(), "refresh-1")
	require.NoError(t, err)
	assert.Equal(t, "access-2", ts.AccessToken)
	assert.Empty(t, ts.RefreshToken, "unrotated refresh token is not echoed")
	assert.Equal(t, 30*time.Minute, ts.ExpiresIn)
}

func TestRefresh_Rotated(t *testing.T) {
	srv := googletest.New(t)
	srv.AddRefreshToken("refresh-1", googletest.Grant{AccessToken: "access-2", RefreshToken: "refresh-2", ExpiresIn: 1800})
	c := newClient(srv)

	ts, err := c.Refresh(context.Background(), "refresh-1")
	require.NoError(t, err)
	assert.Equal(t, "refresh-2", ts.RefreshToken)
}

func TestRefresh_Revoked(t *testing.T) {
	srv := googletest.New(t)
	c := newClient(srv)

	_, err := c.Refresh(context.Background(), "revoked")
	assert.ErrorIs(t, err, google.ErrRefresh)

	var gerr *google.Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, http.StatusBadRequest, gerr.Status)
}

func TestFetchAccountEmail(t *testing.T) {
	srv := googletest.New(t)
	srv.AddAccount("access-1", "jane@example.com")
	c := newClient(srv)

	email, err := c.FetchAccountEmail(context.Background(), "access-1")
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", email)

	_, err = c.FetchAccountEmail(context.Background(), "unknown")
	assert.ErrorIs(t, err, google.ErrIdentityLookup)

	var gerr *google.Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, http.StatusUnauthorized, gerr.Status)
	assert.Contains(t, gerr.Body, "Invalid Credentials")
}

func TestError_Message(t *testing.T) {
	tests := []struct {
		name string
		err  *google.Error
		want string
	}{
		{"kind only", &google.Error{Kind: google.KindConfiguration}, "google oauth client is not configured"},
		{"status and body", &google.Error{Kind: google.KindMailboxFetch, Status: 403, Body: "forbidden"}, "mailbox fetch failed: status 403: forbidden"},
		{"transport error", &google.Error{Kind: google.KindRefresh, Err: errors.New("dial tcp: refused")}, "access token refresh failed: dial tcp: refused"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}
