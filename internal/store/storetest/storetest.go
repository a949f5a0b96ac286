// Package storetest holds a behavioural suite every store.Store backend must
// pass. Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxpanel/internal/model"
	"github.com/teemow/inboxpanel/internal/store"
)

// Factory returns a fresh, migrated, empty store. It should register its
// own cleanup with t.Cleanup.
type Factory func(t *testing.T) store.Store

// Run executes the suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("credential not found", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetCredential(context.Background(), "nobody")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("credential upsert replaces by user", func(t *testing.T) {
		testCredentialUpsert(t, newStore(t))
	})

	t.Run("credential delete", func(t *testing.T) {
		testCredentialDelete(t, newStore(t))
	})

	t.Run("message upsert is idempotent", func(t *testing.T) {
		testMessageUpsertIdempotent(t, newStore(t))
	})

	t.Run("message listing order and limit", func(t *testing.T) {
		testMessageListing(t, newStore(t))
	})

	t.Run("latest message", func(t *testing.T) {
		testLatestMessage(t, newStore(t))
	})

	t.Run("delete messages is per user", func(t *testing.T) {
		testDeleteMessages(t, newStore(t))
	})

	t.Run("ping", func(t *testing.T) {
		require.NoError(t, newStore(t).Ping(context.Background()))
	})
}

// At returns a millisecond-precision UTC time so values round-trip through
// every backend unchanged.
func At(sec int64) time.Time {
	return time.Unix(1700000000+sec, 0).UTC()
}

// Ptr returns a pointer to s.
func Ptr(s string) *string {
	return &s
}

// Msg builds a message owned by userID received sec seconds after the base time.
func Msg(id, userID string, sec int64) model.Message {
	return model.Message{
		ID:          id,
		ThreadID:    "t-" + id,
		Subject:     Ptr("subject " + id),
		FromEmail:   "sender@example.com",
		FromName:    Ptr("Sender"),
		Snippet:     Ptr("snippet " + id),
		BodyPreview: Ptr("snippet " + id),
		ReceivedAt:  At(sec),
		IsRead:      false,
		Labels:      []string{"INBOX", "UNREAD"},
		UserID:      userID,
	}
}

func testCredentialUpsert(t *testing.T, s store.Store) {
	ctx := context.Background()

	first := &model.Credential{
		UserID: "u1", AccessToken: "at1", RefreshToken: "rt1",
		TokenExpiry: At(3600), Email: "u1@example.com", UpdatedAt: At(0),
	}
	require.NoError(t, s.UpsertCredential(ctx, first))

	got, err := s.GetCredential(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, first, got)

	second := &model.Credential{
		UserID: "u1", AccessToken: "at2", RefreshToken: "rt2",
		TokenExpiry: At(7200), Email: "other@example.com", UpdatedAt: At(60),
	}
	require.NoError(t, s.UpsertCredential(ctx, second))

	got, err = s.GetCredential(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, second, got)

	ids, err := s.ListCredentialUserIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, ids)
}

func testCredentialDelete(t *testing.T, s store.Store) {
	ctx := context.Background()

	for _, id := range []string{"u1", "u2"} {
		require.NoError(t, s.UpsertCredential(ctx, &model.Credential{
			UserID: id, AccessToken: "at", RefreshToken: "rt",
			TokenExpiry: At(10), Email: id + "@example.com", UpdatedAt: At(0),
		}))
	}

	require.NoError(t, s.DeleteCredential(ctx, "u1"))
	require.NoError(t, s.DeleteCredential(ctx, "missing"))

	_, err := s.GetCredential(ctx, "u1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	ids, err := s.ListCredentialUserIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u2"}, ids)
}

func testMessageUpsertIdempotent(t *testing.T, s store.Store) {
	ctx := context.Background()

	batch := []model.Message{Msg("m1", "u1", 10), Msg("m2", "u1", 20)}
	require.NoError(t, s.UpsertMessages(ctx, batch))
	require.NoError(t, s.UpsertMessages(ctx, batch))

	msgs, err := s.ListMessages(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	// A resync carrying new state overwrites the row.
	updated := Msg("m1", "u1", 10)
	updated.IsRead = true
	updated.Labels = []string{"INBOX"}
	updated.Subject = nil
	updated.FromName = nil
	require.NoError(t, s.UpsertMessages(ctx, []model.Message{updated}))

	msgs, err = s.ListMessages(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, updated, msgs[1])

	require.NoError(t, s.UpsertMessages(ctx, nil))
}

func testMessageListing(t *testing.T, s store.Store) {
	ctx := context.Background()

	var batch []model.Message
	for i := 0; i < 5; i++ {
		batch = append(batch, Msg(string(rune('a'+i)), "u1", int64(i)))
	}
	batch = append(batch, Msg("z", "u2", 100))
	require.NoError(t, s.UpsertMessages(ctx, batch))

	msgs, err := s.ListMessages(ctx, "u1", 3)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "e", msgs[0].ID)
	assert.Equal(t, "d", msgs[1].ID)
	assert.Equal(t, "c", msgs[2].ID)

	all, err := s.ListMessages(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	none, err := s.ListMessages(ctx, "nobody", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testLatestMessage(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.LatestMessage(ctx, "u1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.UpsertMessages(ctx, []model.Message{
		Msg("old", "u1", 1), Msg("new", "u1", 50), Msg("other", "u2", 99),
	}))

	latest, err := s.LatestMessage(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "new", latest.ID)
	assert.Equal(t, At(50), latest.ReceivedAt)
}

func testDeleteMessages(t *testing.T, s store.Store) {
	ctx := context.Background()

	require.NoError(t, s.UpsertMessages(ctx, []model.Message{
		Msg("a", "u1", 1), Msg("b", "u2", 2),
	}))
	require.NoError(t, s.DeleteMessages(ctx, "u1"))

	u1, err := s.ListMessages(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Empty(t, u1)

	u2, err := s.ListMessages(ctx, "u2", 0)
	require.NoError(t, err)
	assert.Len(t, u2, 1)
}
