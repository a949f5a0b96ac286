package mailsync_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxpanel/internal/gmail"
	"github.com/teemow/inboxpanel/internal/google"
	"github.com/teemow/inboxpanel/internal/google/googletest"
	"github.com/teemow/inboxpanel/internal/mailsync"
	"github.com/teemow/inboxpanel/internal/model"
	"github.com/teemow/inboxpanel/internal/store"
	"github.com/teemow/inboxpanel/internal/store/sqlite"
	"github.com/teemow/inboxpanel/internal/store/storetest"
)

const userID = "7d3c1d2e-54a1-4c1f-9a53-2b8f9f2c0a11"

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	google *googletest.Server
	store  *sqlite.Store
	syncer *mailsync.Syncer
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	srv := googletest.New(t)
	st := storetest.NewSQLite(t)

	oauth := google.NewOAuthClient(google.Config{
		ClientID:     googletest.ClientID,
		ClientSecret: googletest.ClientSecret,
		Endpoint:     srv.Endpoint(),
	})
	mailbox := gmail.NewClient(gmail.Config{APIEndpoint: srv.APIEndpoint()})

	return &harness{
		google: srv,
		store:  st,
		syncer: mailsync.NewSyncer(st, oauth, mailbox, mailsync.Config{
			MaxResults: 10,
			Now:        func() time.Time { return now },
		}),
	}
}

func (h *harness) link(t *testing.T, userID, accessToken string, expiry time.Time) *model.Credential {
	t.Helper()
	cred := &model.Credential{
		UserID:       userID,
		AccessToken:  accessToken,
		RefreshToken: "refresh-" + userID,
		TokenExpiry:  expiry,
		Email:        "jane@example.com",
		UpdatedAt:    now.Add(-time.Hour),
	}
	require.NoError(t, h.store.UpsertCredential(context.Background(), cred))
	return cred
}

func (h *harness) seedInbox(accessToken string) {
	h.google.AddAccount(accessToken, "jane@example.com")
	h.google.AddMessages(accessToken,
		googletest.Message("m3", "Carol <carol@example.com>", "Third", now.Add(-time.Minute).UnixMilli(), "INBOX", "UNREAD"),
		googletest.Message("m2", "bob@example.com", "Second", now.Add(-2*time.Minute).UnixMilli(), "INBOX"),
		googletest.Message("m1", "Alice <alice@example.com>", "First", now.Add(-3*time.Minute).UnixMilli(), "INBOX"),
	)
}

func TestSync_NotConnected(t *testing.T) {
	h := newHarness(t)

	n, err := h.syncer.Sync(context.Background(), userID)
	assert.ErrorIs(t, err, mailsync.ErrNotConnected)
	assert.Zero(t, n)
}

func TestSync_ValidToken(t *testing.T) {
	h := newHarness(t)
	h.link(t, userID, "access-1", now.Add(time.Hour))
	h.seedInbox("access-1")

	n, err := h.syncer.Sync(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Zero(t, h.google.TokenRequests(), "an unexpired token must not be refreshed")

	msgs, err := h.store.ListMessages(context.Background(), userID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"m3", "m2", "m1"}, []string{msgs[0].ID, msgs[1].ID, msgs[2].ID})
	for _, m := range msgs {
		assert.Equal(t, userID, m.UserID)
	}
	assert.Equal(t, "10", h.google.LastListQuery().Get("maxResults"))
}

func TestSync_ExpiryEqualToNowIsNotExpired(t *testing.T) {
	h := newHarness(t)
	h.link(t, userID, "access-1", now)
	h.seedInbox("access-1")

	_, err := h.syncer.Sync(context.Background(), userID)
	require.NoError(t, err)
	assert.Zero(t, h.google.TokenRequests())
}

func TestSync_RefreshesExpiredToken(t *testing.T) {
	h := newHarness(t)
	old := h.link(t, userID, "stale", now.Add(-time.Minute))
	h.google.AddRefreshToken(old.RefreshToken, googletest.Grant{AccessToken: "fresh", ExpiresIn: 3600})
	h.seedInbox("fresh")

	n, err := h.syncer.Sync(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	cred, err := h.store.GetCredential(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, "fresh", cred.AccessToken)
	assert.Equal(t, old.RefreshToken, cred.RefreshToken)
	assert.Equal(t, old.Email, cred.Email)
	assert.True(t, cred.TokenExpiry.Equal(now.Add(time.Hour)), "expiry %v", cred.TokenExpiry)
	assert.True(t, cred.UpdatedAt.Equal(now), "updated_at %v", cred.UpdatedAt)
}

func TestSync_RefreshFailureLeavesStoreUntouched(t *testing.T) {
	h := newHarness(t)
	old := h.link(t, userID, "stale", now.Add(-time.Minute))
	h.seedInbox("stale")

	n, err := h.syncer.Sync(context.Background(), userID)
	require.Error(t, err)
	assert.ErrorIs(t, err, google.ErrRefresh)
	assert.Zero(t, n)

	cred, err := h.store.GetCredential(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, "stale", cred.AccessToken)
	assert.True(t, cred.TokenExpiry.Equal(old.TokenExpiry))
	assert.True(t, cred.UpdatedAt.Equal(old.UpdatedAt))

	_, err = h.store.LatestMessage(context.Background(), userID)
	assert.ErrorIs(t, err, store.ErrNotFound, "no fallback fetch with the stale token")
}

func TestSync_DropsFailedDetails(t *testing.T) {
	h := newHarness(t)
	h.link(t, userID, "access-1", now.Add(time.Hour))
	h.seedInbox("access-1")
	h.google.FailMessage("m2")

	n, err := h.syncer.Sync(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	msgs, err := h.store.ListMessages(context.Background(), userID, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestSync_ListFailure(t *testing.T) {
	h := newHarness(t)
	h.link(t, userID, "access-1", now.Add(time.Hour))
	h.seedInbox("access-1")
	h.google.FailList(http.StatusServiceUnavailable)

	_, err := h.syncer.Sync(context.Background(), userID)
	assert.ErrorIs(t, err, google.ErrMailboxFetch)

	_, err = h.store.LatestMessage(context.Background(), userID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSync_Idempotent(t *testing.T) {
	h := newHarness(t)
	h.link(t, userID, "access-1", now.Add(time.Hour))
	h.seedInbox("access-1")

	for i := 0; i < 2; i++ {
		n, err := h.syncer.Sync(context.Background(), userID)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	}

	msgs, err := h.store.ListMessages(context.Background(), userID, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 3)
}

func TestSync_EmptyInbox(t *testing.T) {
	h := newHarness(t)
	h.link(t, userID, "access-1", now.Add(time.Hour))
	h.google.AddAccount("access-1", "jane@example.com")

	n, err := h.syncer.Sync(context.Background(), userID)
	require.NoError(t, err)
	assert.Zero(t, n)
}
