package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxpanel/internal/connection"
	"github.com/teemow/inboxpanel/internal/gmail"
	"github.com/teemow/inboxpanel/internal/google"
	"github.com/teemow/inboxpanel/internal/google/googletest"
	"github.com/teemow/inboxpanel/internal/mailsync"
	"github.com/teemow/inboxpanel/internal/model"
	"github.com/teemow/inboxpanel/internal/notify"
	"github.com/teemow/inboxpanel/internal/server"
	"github.com/teemow/inboxpanel/internal/store/sqlite"
	"github.com/teemow/inboxpanel/internal/store/storetest"
)

const (
	alice = "5f1e7f0a-6a1b-4d6e-8c34-3f0d2b7a9c01"
	bob   = "c2a9d4b8-1e3f-4a5b-9c6d-7e8f9a0b1c22"

	callbackURL  = "http://panel.test/api/gmail/callback"
	dashboardURL = "http://panel.test/dashboard"
	loginURL     = "http://panel.test/auth/login"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type env struct {
	google   *googletest.Server
	store    *sqlite.Store
	sessions *server.SessionManager
	server   *server.Server
}

func newEnv(t *testing.T, configure ...func(*server.Options)) *env {
	t.Helper()

	srv := googletest.New(t)
	st := storetest.NewSQLite(t)
	oauth := google.NewOAuthClient(google.Config{
		ClientID:     googletest.ClientID,
		ClientSecret: googletest.ClientSecret,
		Endpoint:     srv.Endpoint(),
		APIEndpoint:  srv.APIEndpoint(),
	})
	mailbox := gmail.NewClient(gmail.Config{APIEndpoint: srv.APIEndpoint()})
	sessions := server.NewSessionManager("test-secret", "session")

	opts := server.Options{
		Linker:       connection.NewService(st, oauth, connection.Config{}),
		Syncer:       mailsync.NewSyncer(st, oauth, mailbox, mailsync.Config{MaxResults: 10}),
		Messages:     st,
		Events:       notify.NewWatcher(st, notify.Config{Interval: 10 * time.Millisecond}),
		Sessions:     sessions,
		Health:       server.NewHealthChecker(st),
		CallbackURL:  callbackURL,
		DashboardURL: dashboardURL,
		LoginURL:     loginURL,
	}
	for _, f := range configure {
		f(&opts)
	}

	return &env{
		google:   srv,
		store:    st,
		sessions: sessions,
		server:   server.New(opts),
	}
}

func (e *env) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := e.sessions.Issue(userID, time.Hour)
	require.NoError(t, err)
	return token
}

// do sends a request as userID, or anonymously when userID is empty.
func (e *env) do(t *testing.T, method, target, userID string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(method, target, nil)
	if userID != "" {
		r.AddCookie(&http.Cookie{Name: "session", Value: e.token(t, userID)})
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, r)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type messagesResponse struct {
	Messages []model.Message `json:"messages"`
}

func TestLinkSyncDisconnect(t *testing.T) {
	e := newEnv(t)
	now := time.Now()

	rec := e.do(t, http.MethodGet, "/api/gmail/status", alice)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"connected":false}`, rec.Body.String())

	rec = e.do(t, http.MethodGet, "/api/gmail/connect", alice)
	require.Equal(t, http.StatusOK, rec.Code)
	authURL, err := url.Parse(decode[map[string]string](t, rec)["authUrl"])
	require.NoError(t, err)
	q := authURL.Query()
	assert.Equal(t, googletest.ClientID, q.Get("client_id"))
	assert.Equal(t, callbackURL, q.Get("redirect_uri"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.Contains(t, q.Get("scope"), "gmail.readonly")

	e.google.AddCode("code-1", googletest.Grant{AccessToken: "access-1", RefreshToken: "refresh-1", ExpiresIn: 3600})
	e.google.AddAccount("access-1", "jane@example.com")
	e.google.AddMessages("access-1",
		googletest.Message("m3", "Carol <carol@example.com>", "Third", now.Add(-time.Minute).UnixMilli(), "INBOX", "UNREAD"),
		googletest.Message("m2", "bob@example.com", "Second", now.Add(-2*time.Minute).UnixMilli(), "INBOX"),
		googletest.Message("m1", "Alice <alice@example.com>", "First", now.Add(-3*time.Minute).UnixMilli(), "INBOX"),
	)
	e.google.FailMessage("m2")

	rec = e.do(t, http.MethodGet, "/api/gmail/callback?code=code-1", alice)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, dashboardURL+"?connected=true", rec.Header().Get("Location"))

	rec = e.do(t, http.MethodGet, "/api/gmail/status", alice)
	status := decode[model.Status](t, rec)
	assert.True(t, status.Connected)
	assert.Equal(t, "jane@example.com", status.Email)
	assert.NotNil(t, status.LastSync)

	rec = e.do(t, http.MethodPost, "/api/gmail/sync", alice)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"count":2}`, rec.Body.String())

	rec = e.do(t, http.MethodGet, "/api/gmail/messages", alice)
	require.Equal(t, http.StatusOK, rec.Code)
	msgs := decode[messagesResponse](t, rec).Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, "m3", msgs[0].ID)
	assert.Equal(t, "m1", msgs[1].ID)
	assert.Equal(t, alice, msgs[0].UserID)
	assert.False(t, msgs[0].IsRead)
	assert.True(t, msgs[1].IsRead)

	// Another user sees nothing of alice's link.
	assert.JSONEq(t, `{"connected":false}`, e.do(t, http.MethodGet, "/api/gmail/status", bob).Body.String())
	assert.JSONEq(t, `{"messages":[]}`, e.do(t, http.MethodGet, "/api/gmail/messages", bob).Body.String())

	rec = e.do(t, http.MethodPost, "/api/gmail/disconnect", alice)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	assert.JSONEq(t, `{"connected":false}`, e.do(t, http.MethodGet, "/api/gmail/status", alice).Body.String())
	assert.JSONEq(t, `{"messages":[]}`, e.do(t, http.MethodGet, "/api/gmail/messages", alice).Body.String())
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodPost, "/api/gmail/sync", alice).Code)
}

func TestRoutesRequireSession(t *testing.T) {
	e := newEnv(t)

	routes := []struct{ method, path string }{
		{http.MethodGet, "/api/gmail/connect"},
		{http.MethodPost, "/api/gmail/disconnect"},
		{http.MethodGet, "/api/gmail/status"},
		{http.MethodPost, "/api/gmail/sync"},
		{http.MethodGet, "/api/gmail/messages"},
		{http.MethodGet, "/api/gmail/events"},
	}
	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			rec := e.do(t, rt.method, rt.path, "")
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.JSONEq(t, `{"error":"Unauthorized"}`, rec.Body.String())

			r := httptest.NewRequest(rt.method, rt.path, nil)
			r.Header.Set("Authorization", "Bearer forged")
			rec = httptest.NewRecorder()
			e.server.Handler().ServeHTTP(rec, r)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestConnect_Unconfigured(t *testing.T) {
	e := newEnv(t, func(o *server.Options) {
		o.Linker = connection.NewService(storetest.NewSQLite(t), google.NewOAuthClient(google.Config{}), connection.Config{})
	})

	rec := e.do(t, http.MethodGet, "/api/gmail/connect", alice)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decode[map[string]string](t, rec)["error"], "GOOGLE_CLIENT_ID")
}

type fakeLinker struct {
	server.Linker
	callbackErr   error
	disconnectErr error
	callbacks     int
}

func (f *fakeLinker) Callback(context.Context, string, string, string) error {
	f.callbacks++
	return f.callbackErr
}

func (f *fakeLinker) Disconnect(context.Context, string) error {
	return f.disconnectErr
}

func TestCallback_Redirects(t *testing.T) {
	tests := []struct {
		name          string
		query         string
		userID        string
		callbackErr   error
		wantLocation  string
		wantCallbacks int
	}{
		{
			name:         "provider error wins over everything",
			query:        "error=access_denied&code=code-1",
			wantLocation: dashboardURL + "?error=access_denied",
		},
		{
			name:         "missing code",
			userID:       alice,
			wantLocation: dashboardURL + "?error=no_code",
		},
		{
			name:         "no session",
			query:        "code=code-1",
			wantLocation: loginURL,
		},
		{
			name:          "exchange failure",
			query:         "code=code-1",
			userID:        alice,
			callbackErr:   fmt.Errorf("failed to exchange authorization code: %w", google.ErrExchange),
			wantLocation:  dashboardURL + "?error=callback_failed",
			wantCallbacks: 1,
		},
		{
			name:          "save failure",
			query:         "code=code-1",
			userID:        alice,
			callbackErr:   fmt.Errorf("%w: %w", connection.ErrSaveCredential, errors.New("disk full")),
			wantLocation:  dashboardURL + "?error=token_save_failed",
			wantCallbacks: 1,
		},
		{
			name:          "success",
			query:         "code=code-1",
			userID:        alice,
			wantLocation:  dashboardURL + "?connected=true",
			wantCallbacks: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			linker := &fakeLinker{callbackErr: tt.callbackErr}
			e := newEnv(t, func(o *server.Options) { o.Linker = linker })

			rec := e.do(t, http.MethodGet, "/api/gmail/callback?"+tt.query, tt.userID)
			assert.Equal(t, http.StatusFound, rec.Code)
			assert.Equal(t, tt.wantLocation, rec.Header().Get("Location"))
			assert.Equal(t, tt.wantCallbacks, linker.callbacks)
		})
	}
}

func TestDisconnect_Failure(t *testing.T) {
	e := newEnv(t, func(o *server.Options) {
		o.Linker = &fakeLinker{disconnectErr: errors.New("database is locked")}
	})

	rec := e.do(t, http.MethodPost, "/api/gmail/disconnect", alice)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Failed to disconnect"}`, rec.Body.String())
}

func TestSync_Failures(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/gmail/sync", alice)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Gmail not connected"}`, rec.Body.String())

	require.NoError(t, e.store.UpsertCredential(context.Background(), &model.Credential{
		UserID:       alice,
		AccessToken:  "revoked",
		RefreshToken: "refresh",
		TokenExpiry:  time.Now().Add(time.Hour),
		Email:        "jane@example.com",
		UpdatedAt:    time.Now(),
	}))
	e.google.FailList(http.StatusUnauthorized)

	rec = e.do(t, http.MethodPost, "/api/gmail/sync", alice)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Failed to sync messages"}`, rec.Body.String())
}

func TestSync_RateLimited(t *testing.T) {
	e := newEnv(t, func(o *server.Options) { o.SyncLimiter = server.NewRateLimiter(time.Hour, 1) })

	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodPost, "/api/gmail/sync", alice).Code)

	rec := e.do(t, http.MethodPost, "/api/gmail/sync", alice)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Other users have their own budget.
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodPost, "/api/gmail/sync", bob).Code)
}

type brokenLister struct{}

func (brokenLister) ListMessages(context.Context, string, int) ([]model.Message, error) {
	return nil, errors.New("no such table: messages")
}

func TestMessages_Failure(t *testing.T) {
	e := newEnv(t, func(o *server.Options) { o.Messages = brokenLister{} })

	rec := e.do(t, http.MethodGet, "/api/gmail/messages", alice)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Failed to fetch messages"}`, rec.Body.String())
}

func TestMessages_Limit(t *testing.T) {
	e := newEnv(t)

	msgs := make([]model.Message, 0, 60)
	for i := range 60 {
		msgs = append(msgs, storetest.Msg(fmt.Sprintf("m%02d", i), alice, int64(i)))
	}
	require.NoError(t, e.store.UpsertMessages(context.Background(), msgs))

	got := decode[messagesResponse](t, e.do(t, http.MethodGet, "/api/gmail/messages", alice)).Messages
	require.Len(t, got, 50)
	assert.Equal(t, "m59", got[0].ID)
	assert.Equal(t, "m10", got[49].ID)
}

func TestHealthRoutes(t *testing.T) {
	e := newEnv(t)

	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/healthz", "").Code)
	rec := e.do(t, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[server.HealthResponse](t, rec).Checks["database"])
}
