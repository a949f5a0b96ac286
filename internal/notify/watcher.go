// Package notify turns the message store into a per-user event stream.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/teemow/inboxpanel/internal/logging"
	"github.com/teemow/inboxpanel/internal/model"
	"github.com/teemow/inboxpanel/internal/store"
)

// DefaultInterval is how often a stream polls for a newer message.
const DefaultInterval = 10 * time.Second

// LatestFinder returns the user's newest stored message, or store.ErrNotFound.
type LatestFinder interface {
	LatestMessage(ctx context.Context, userID string) (*model.Message, error)
}

// Config tunes a Watcher. Zero values fall back to defaults.
type Config struct {
	Interval time.Duration
	Logger   *slog.Logger
	Now      func() time.Time
}

// Watcher polls the store on a fixed interval for each open stream.
type Watcher struct {
	store    LatestFinder
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewWatcher returns a Watcher reading from st.
func NewWatcher(st LatestFinder, cfg Config) *Watcher {
	w := &Watcher{
		store:    st,
		interval: cfg.Interval,
		logger:   cfg.Logger,
		now:      cfg.Now,
	}
	if w.interval <= 0 {
		w.interval = DefaultInterval
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	if w.now == nil {
		w.now = time.Now
	}
	return w
}

// Watch streams events for userID until ctx is done. The first event is
// always EventConnected. After that, each poll that finds a message newer
// than the last one seen yields EventNewMessage. The message present when
// the stream opens is the starting point and is not announced. The channel
// is closed when the stream ends.
func (w *Watcher) Watch(ctx context.Context, userID string) <-chan model.Event {
	events := make(chan model.Event, 1)
	logger := logging.WithUser(logging.WithOperation(w.logger, "events.watch"), userID)

	go func() {
		defer close(events)

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		last, err := w.latest(ctx, userID)
		if err != nil {
			logger.Warn("failed to load starting message", logging.Err(err))
		}

		if !w.send(ctx, events, model.NewEvent(model.EventConnected, nil, w.now())) {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			msg, err := w.latest(ctx, userID)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Warn("event poll failed", logging.Err(err))
				continue
			}
			if msg == nil || !msg.NewerThan(last) {
				continue
			}

			last = msg
			if !w.send(ctx, events, model.NewEvent(model.EventNewMessage, msg, w.now())) {
				return
			}
		}
	}()

	return events
}

// latest returns nil, nil when the user has no messages.
func (w *Watcher) latest(ctx context.Context, userID string) (*model.Message, error) {
	msg, err := w.store.LatestMessage(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return msg, err
}

func (w *Watcher) send(ctx context.Context, events chan<- model.Event, e model.Event) bool {
	select {
	case events <- e:
		return true
	case <-ctx.Done():
		return false
	}
}
