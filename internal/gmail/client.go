package gmail

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/teemow/inboxpanel/internal/google"
	"github.com/teemow/inboxpanel/internal/instrumentation"
	"github.com/teemow/inboxpanel/internal/logging"
	"github.com/teemow/inboxpanel/internal/model"
)

const (
	// DefaultMaxResults is how many inbox messages a sync looks at.
	DefaultMaxResults int64 = 20

	inboxLabel = "INBOX"
	me         = "me"
)

// Config configures a Client. Zero values talk to the real Gmail API.
type Config struct {
	// APIEndpoint overrides the Gmail base URL.
	APIEndpoint string
	HTTPClient  *http.Client
	Metrics     *instrumentation.Metrics
	Logger      *slog.Logger
}

// Client wraps the Gmail users.messages API for a caller-supplied token.
type Client struct {
	endpoint   string
	httpClient *http.Client
	metrics    *instrumentation.Metrics
	logger     *slog.Logger
}

// NewClient returns a Gmail client configured by cfg.
func NewClient(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		endpoint:   cfg.APIEndpoint,
		httpClient: cfg.HTTPClient,
		metrics:    cfg.Metrics,
		logger:     logging.WithService(logger, instrumentation.ServiceGmail),
	}
}

func (c *Client) service(ctx context.Context, accessToken string) (*gmail.Service, error) {
	opts := []option.ClientOption{option.WithHTTPClient(google.AuthorizedClient(ctx, c.httpClient, accessToken))}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}
	return gmail.NewService(ctx, opts...)
}

// ListRecentMessageIDs returns the ids of the newest inbox messages, newest
// first. maxResults <= 0 means DefaultMaxResults.
func (c *Client) ListRecentMessageIDs(ctx context.Context, accessToken string, maxResults int64) ([]string, error) {
	svc, err := c.service(ctx, accessToken)
	if err != nil {
		return nil, google.NewError(google.KindMailboxFetch, err)
	}
	return c.listIDs(ctx, svc, maxResults)
}

func (c *Client) listIDs(ctx context.Context, svc *gmail.Service, maxResults int64) ([]string, error) {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceGmail, instrumentation.OperationList)
	defer span.End()
	start := time.Now()

	res, err := svc.Users.Messages.List(me).
		LabelIds(inboxLabel).
		MaxResults(maxResults).
		Context(ctx).
		Do()
	c.record(ctx, instrumentation.OperationList, err, start)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return nil, google.NewError(google.KindMailboxFetch, err)
	}
	instrumentation.SetSpanSuccess(span)

	ids := make([]string, 0, len(res.Messages))
	for _, m := range res.Messages {
		ids = append(ids, m.Id)
	}
	return ids, nil
}

// FetchMessage loads one message. A failed fetch yields nil, false rather
// than an error.
func (c *Client) FetchMessage(ctx context.Context, accessToken, id string) (*model.Message, bool) {
	svc, err := c.service(ctx, accessToken)
	if err != nil {
		c.logger.Debug("failed to create gmail service", logging.Err(err))
		return nil, false
	}
	return c.fetch(ctx, svc, id)
}

func (c *Client) fetch(ctx context.Context, svc *gmail.Service, id string) (*model.Message, bool) {
	start := time.Now()
	raw, err := svc.Users.Messages.Get(me, id).
		Format("metadata").
		MetadataHeaders("From", "Subject").
		Context(ctx).
		Do()
	c.record(ctx, instrumentation.OperationGet, err, start)
	if err != nil {
		c.logger.Debug("dropping message that failed to load",
			slog.String("message_id", id),
			logging.Err(err))
		return nil, false
	}

	msg := Normalize(raw)
	return &msg, true
}

// FetchRecentMessages lists the inbox and loads every listed message
// concurrently. Messages that fail to load are left out; the rest keep the
// listing order. A cancelled context fails the whole call.
func (c *Client) FetchRecentMessages(ctx context.Context, accessToken string, maxResults int64) ([]model.Message, error) {
	svc, err := c.service(ctx, accessToken)
	if err != nil {
		return nil, google.NewError(google.KindMailboxFetch, err)
	}

	ids, err := c.listIDs(ctx, svc, maxResults)
	if err != nil {
		return nil, err
	}

	fetched := make([]*model.Message, len(ids))
	var g errgroup.Group
	for i, id := range ids {
		g.Go(func() error {
			if msg, ok := c.fetch(ctx, svc, id); ok {
				fetched[i] = msg
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	// Per-message failures are absorbed above; cancellation is not one of them.
	if err := ctx.Err(); err != nil {
		return nil, google.NewError(google.KindMailboxFetch, err)
	}

	messages := make([]model.Message, 0, len(ids))
	for _, m := range fetched {
		if m != nil {
			messages = append(messages, *m)
		}
	}
	return messages, nil
}

func (c *Client) record(ctx context.Context, operation string, err error, start time.Time) {
	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
	}
	c.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceGmail, operation, status, time.Since(start))
}
