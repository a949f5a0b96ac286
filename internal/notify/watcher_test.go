package notify_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxpanel/internal/model"
	"github.com/teemow/inboxpanel/internal/notify"
	"github.com/teemow/inboxpanel/internal/store"
	"github.com/teemow/inboxpanel/internal/store/storetest"
)

const (
	userID   = "7d3c1d2e-54a1-4c1f-9a53-2b8f9f2c0a11"
	interval = 10 * time.Millisecond
	wait     = 2 * time.Second
)

func next(t *testing.T, events <-chan model.Event) model.Event {
	t.Helper()
	select {
	case e, ok := <-events:
		require.True(t, ok, "stream closed early")
		return e
	case <-time.After(wait):
		t.Fatal("timed out waiting for event")
		return model.Event{}
	}
}

func requireClosed(t *testing.T, events <-chan model.Event) {
	t.Helper()
	deadline := time.After(wait)
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("stream was not closed")
		}
	}
}

func TestWatch_ConnectedFirst(t *testing.T) {
	w := notify.NewWatcher(storetest.NewSQLite(t), notify.Config{Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	events := w.Watch(ctx, userID)

	e := next(t, events)
	assert.Equal(t, model.EventConnected, e.Type)
	assert.Nil(t, e.Message)
	assert.NotZero(t, e.Timestamp)

	cancel()
	requireClosed(t, events)
}

func TestWatch_AnnouncesNewerMessages(t *testing.T) {
	st := storetest.NewSQLite(t)
	ctx := context.Background()
	require.NoError(t, st.UpsertMessages(ctx, []model.Message{storetest.Msg("m1", userID, 10)}))

	w := notify.NewWatcher(st, notify.Config{Interval: interval})
	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	events := w.Watch(watchCtx, userID)

	require.Equal(t, model.EventConnected, next(t, events).Type)

	require.NoError(t, st.UpsertMessages(ctx, []model.Message{storetest.Msg("m2", userID, 20)}))
	e := next(t, events)
	assert.Equal(t, model.EventNewMessage, e.Type)
	require.NotNil(t, e.Message)
	assert.Equal(t, "m2", e.Message.ID)

	// m2 is not announced again; the next event is m3.
	require.NoError(t, st.UpsertMessages(ctx, []model.Message{storetest.Msg("m3", userID, 30)}))
	e = next(t, events)
	require.NotNil(t, e.Message)
	assert.Equal(t, "m3", e.Message.ID)

	cancel()
	requireClosed(t, events)
}

func TestWatch_EmptyStoreAnnouncesFirstMessage(t *testing.T) {
	st := storetest.NewSQLite(t)
	w := notify.NewWatcher(st, notify.Config{Interval: interval})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := w.Watch(ctx, userID)
	require.Equal(t, model.EventConnected, next(t, events).Type)

	require.NoError(t, st.UpsertMessages(context.Background(), []model.Message{storetest.Msg("m1", userID, 10)}))
	e := next(t, events)
	assert.Equal(t, model.EventNewMessage, e.Type)
	assert.Equal(t, "m1", e.Message.ID)
}

func TestWatch_IgnoresOtherUsers(t *testing.T) {
	st := storetest.NewSQLite(t)
	w := notify.NewWatcher(st, notify.Config{Interval: interval})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := w.Watch(ctx, userID)
	require.Equal(t, model.EventConnected, next(t, events).Type)

	require.NoError(t, st.UpsertMessages(context.Background(), []model.Message{storetest.Msg("x1", "someone-else", 10)}))

	select {
	case e := <-events:
		t.Fatalf("unexpected event %+v", e)
	case <-time.After(20 * interval):
	}
}

// flakyStore fails the first polls.
type flakyStore struct {
	mu       sync.Mutex
	failures int
	msg      *model.Message
}

func (f *flakyStore) LatestMessage(context.Context, string) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("connection reset")
	}
	if f.msg == nil {
		return nil, store.ErrNotFound
	}
	return f.msg, nil
}

func TestWatch_SkipsPollErrors(t *testing.T) {
	msg := storetest.Msg("m1", userID, 10)
	st := &flakyStore{failures: 3, msg: &msg}
	w := notify.NewWatcher(st, notify.Config{Interval: interval})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := w.Watch(ctx, userID)

	require.Equal(t, model.EventConnected, next(t, events).Type)
	e := next(t, events)
	assert.Equal(t, model.EventNewMessage, e.Type)
	assert.Equal(t, "m1", e.Message.ID)
}

func TestWatch_ClosesWhenConsumerLeaves(t *testing.T) {
	w := notify.NewWatcher(storetest.NewSQLite(t), notify.Config{Interval: interval})

	ctx, cancel := context.WithCancel(context.Background())
	events := w.Watch(ctx, userID)

	// Nobody reads; cancelling must still end the goroutine.
	time.Sleep(5 * interval)
	cancel()
	requireClosed(t, events)
}
