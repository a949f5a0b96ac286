package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope for every span this module starts.
const TracerName = "github.com/teemow/inboxpanel"

// Span attribute keys.
const (
	SpanAttrService      = "google.service"
	SpanAttrOperation    = "google.operation"
	SpanAttrUser         = "inboxpanel.user_id"
	SpanAttrTrigger      = "inboxpanel.sync.trigger"
	SpanAttrMessageCount = "inboxpanel.sync.messages"
	SpanAttrRefreshed    = "inboxpanel.sync.token_refreshed"
)

// SpanAttributeBuilder collects span attributes with consistent keys.
type SpanAttributeBuilder struct {
	attrs []attribute.KeyValue
}

// NewSpanAttributeBuilder creates an empty builder.
func NewSpanAttributeBuilder() *SpanAttributeBuilder {
	return &SpanAttributeBuilder{attrs: make([]attribute.KeyValue, 0, 6)}
}

// WithUser adds the application user id. Empty ids are skipped.
func (b *SpanAttributeBuilder) WithUser(userID string) *SpanAttributeBuilder {
	if userID != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrUser, userID))
	}
	return b
}

// WithTrigger adds what started a sync run.
func (b *SpanAttributeBuilder) WithTrigger(trigger string) *SpanAttributeBuilder {
	b.attrs = append(b.attrs, attribute.String(SpanAttrTrigger, trigger))
	return b
}

// WithMessageCount adds the number of messages a sync wrote.
func (b *SpanAttributeBuilder) WithMessageCount(n int) *SpanAttributeBuilder {
	b.attrs = append(b.attrs, attribute.Int(SpanAttrMessageCount, n))
	return b
}

// WithRefreshed records whether the access token was refreshed.
func (b *SpanAttributeBuilder) WithRefreshed(refreshed bool) *SpanAttributeBuilder {
	b.attrs = append(b.attrs, attribute.Bool(SpanAttrRefreshed, refreshed))
	return b
}

// Build returns the collected attributes.
func (b *SpanAttributeBuilder) Build() []attribute.KeyValue {
	return b.attrs
}

// StartSpan starts an internal span on the global tracer provider.
// The caller must End the span.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.GetTracerProvider().Tracer(TracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartSyncSpan starts the span wrapping one mailbox sync run.
func StartSyncSpan(ctx context.Context, userID, trigger string) (context.Context, trace.Span) {
	attrs := NewSpanAttributeBuilder().WithUser(userID).WithTrigger(trigger).Build()
	return StartSpan(ctx, "mailbox.sync", attrs...)
}

// StartGoogleAPISpan starts a client span for a Google API call.
func StartGoogleAPISpan(ctx context.Context, service, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := make([]attribute.KeyValue, 0, len(attrs)+2)
	all = append(all,
		attribute.String(SpanAttrService, service),
		attribute.String(SpanAttrOperation, operation),
	)
	all = append(all, attrs...)

	return otel.GetTracerProvider().Tracer(TracerName).Start(ctx, "google."+service+"."+operation,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// SetSpanError records err on the span and marks it failed. Nil errors are ignored.
func SetSpanError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess sets the span status to OK.
func SetSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// GetTraceID returns the trace id of the span in ctx, or "".
func GetTraceID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}

// GetSpanID returns the span id of the span in ctx, or "".
func GetSpanID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return ""
	}
	return sc.SpanID().String()
}
