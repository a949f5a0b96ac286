package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys.
const (
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrOperation = "operation"
	attrService   = "service"
	attrResult    = "result"
	attrTrigger   = "trigger"
	attrUser      = "user_id"
)

// Sync trigger label values.
const (
	TriggerRequest  = "request"
	TriggerSchedule = "schedule"
	TriggerCLI      = "cli"
)

// Metrics records the service's counters and histograms. The zero value and
// a nil *Metrics are both valid no-op recorders.
type Metrics struct {
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram
	activeEventStreams  metric.Int64UpDownCounter

	googleAPIOperationsTotal   metric.Int64Counter
	googleAPIOperationDuration metric.Float64Histogram

	oauthAuthTotal         metric.Int64Counter
	oauthTokenRefreshTotal metric.Int64Counter

	syncRunsTotal     metric.Int64Counter
	syncDuration      metric.Float64Histogram
	syncMessagesTotal metric.Int64Counter

	// detailedLabels adds the user id to sync metrics
	detailedLabels bool
}

// NewMetrics creates every instrument on meter.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{detailedLabels: detailedLabels}

	var err error

	if m.httpRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	if m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	); err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	if m.activeEventStreams, err = meter.Int64UpDownCounter(
		"active_event_streams",
		metric.WithDescription("Number of open notification streams"),
		metric.WithUnit("{stream}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create active_event_streams gauge: %w", err)
	}

	if m.googleAPIOperationsTotal, err = meter.Int64Counter(
		"google_api_operations_total",
		metric.WithDescription("Total number of Google API operations"),
		metric.WithUnit("{operation}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create google_api_operations_total counter: %w", err)
	}

	if m.googleAPIOperationDuration, err = meter.Float64Histogram(
		"google_api_operation_duration_seconds",
		metric.WithDescription("Google API operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	); err != nil {
		return nil, fmt.Errorf("failed to create google_api_operation_duration_seconds histogram: %w", err)
	}

	if m.oauthAuthTotal, err = meter.Int64Counter(
		"oauth_auth_total",
		metric.WithDescription("Total number of Gmail account link attempts"),
		metric.WithUnit("{attempt}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create oauth_auth_total counter: %w", err)
	}

	if m.oauthTokenRefreshTotal, err = meter.Int64Counter(
		"oauth_token_refresh_total",
		metric.WithDescription("Total number of OAuth token refresh attempts"),
		metric.WithUnit("{attempt}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create oauth_token_refresh_total counter: %w", err)
	}

	if m.syncRunsTotal, err = meter.Int64Counter(
		"mailbox_sync_total",
		metric.WithDescription("Total number of mailbox sync runs"),
		metric.WithUnit("{run}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create mailbox_sync_total counter: %w", err)
	}

	if m.syncDuration, err = meter.Float64Histogram(
		"mailbox_sync_duration_seconds",
		metric.WithDescription("Mailbox sync duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0),
	); err != nil {
		return nil, fmt.Errorf("failed to create mailbox_sync_duration_seconds histogram: %w", err)
	}

	if m.syncMessagesTotal, err = meter.Int64Counter(
		"mailbox_sync_messages_total",
		metric.WithDescription("Total number of messages written by mailbox sync"),
		metric.WithUnit("{message}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create mailbox_sync_messages_total counter: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with method, route, status code, and duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequestsTotal == nil {
		return
	}

	opt := metric.WithAttributes(
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	)
	m.httpRequestsTotal.Add(ctx, 1, opt)
	m.httpRequestDuration.Record(ctx, duration.Seconds(), opt)
}

// RecordGoogleAPIOperation records one call to a Google endpoint.
//
// Parameters:
//   - service: ServiceGmail, ServiceOAuth or ServiceUserinfo
//   - operation: one of the Operation* constants
//   - status: StatusSuccess or StatusError
func (m *Metrics) RecordGoogleAPIOperation(ctx context.Context, service, operation, status string, duration time.Duration) {
	if m == nil || m.googleAPIOperationsTotal == nil {
		return
	}

	opt := metric.WithAttributes(
		attribute.String(attrService, service),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	)
	m.googleAPIOperationsTotal.Add(ctx, 1, opt)
	m.googleAPIOperationDuration.Record(ctx, duration.Seconds(), opt)
}

// RecordOAuthAuth records the outcome of an account link callback.
func (m *Metrics) RecordOAuthAuth(ctx context.Context, result string) {
	if m == nil || m.oauthAuthTotal == nil {
		return
	}
	m.oauthAuthTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordOAuthTokenRefresh records a refresh grant attempt.
func (m *Metrics) RecordOAuthTokenRefresh(ctx context.Context, result string) {
	if m == nil || m.oauthTokenRefreshTotal == nil {
		return
	}
	m.oauthTokenRefreshTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordSync records one mailbox sync run and the number of messages written.
// userID is attached only when detailed labels are enabled.
func (m *Metrics) RecordSync(ctx context.Context, trigger, status, userID string, messages int, duration time.Duration) {
	if m == nil || m.syncRunsTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrTrigger, trigger),
		attribute.String(attrStatus, status),
	}
	if m.detailedLabels && userID != "" {
		attrs = append(attrs, attribute.String(attrUser, userID))
	}

	opt := metric.WithAttributes(attrs...)
	m.syncRunsTotal.Add(ctx, 1, opt)
	m.syncDuration.Record(ctx, duration.Seconds(), opt)
	if messages > 0 {
		m.syncMessagesTotal.Add(ctx, int64(messages), opt)
	}
}

// IncrementActiveEventStreams counts an opened notification stream.
func (m *Metrics) IncrementActiveEventStreams(ctx context.Context) {
	if m == nil || m.activeEventStreams == nil {
		return
	}
	m.activeEventStreams.Add(ctx, 1)
}

// DecrementActiveEventStreams counts a closed notification stream.
func (m *Metrics) DecrementActiveEventStreams(ctx context.Context) {
	if m == nil || m.activeEventStreams == nil {
		return
	}
	m.activeEventStreams.Add(ctx, -1)
}
