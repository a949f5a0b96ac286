package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"github.com/teemow/inboxpanel/internal/logging"
)

// Connection lifecycle actions recorded in the audit trail.
const (
	ActionConnect    = "connect"
	ActionCallback   = "callback"
	ActionDisconnect = "disconnect"
	ActionSync       = "sync"
)

// ConnectionEvent is one audited change to a user's Gmail link.
//
// # Privacy Considerations
//
// Email is PII. It is only written in full when the logger is configured
// with IncludePII; otherwise a hash is logged.
type ConnectionEvent struct {
	Action string
	UserID string
	Email  string

	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string

	TraceID string
	SpanID  string
}

// NewConnectionEvent starts timing an audited action.
func NewConnectionEvent(action, userID string) *ConnectionEvent {
	return &ConnectionEvent{
		Action:    action,
		UserID:    userID,
		StartTime: time.Now(),
	}
}

// WithEmail sets the linked account address.
func (e *ConnectionEvent) WithEmail(email string) *ConnectionEvent {
	e.Email = email
	return e
}

// WithSpanContext copies trace ids from the span in ctx.
func (e *ConnectionEvent) WithSpanContext(ctx context.Context) *ConnectionEvent {
	e.TraceID = GetTraceID(ctx)
	e.SpanID = GetSpanID(ctx)
	return e
}

// Complete stops the timer and records the outcome. A nil err means success.
func (e *ConnectionEvent) Complete(err error) *ConnectionEvent {
	e.Duration = time.Since(e.StartTime)
	e.Success = err == nil
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// Status returns StatusSuccess or StatusError.
func (e *ConnectionEvent) Status() string {
	if e.Success {
		return StatusSuccess
	}
	return StatusError
}

func (e *ConnectionEvent) attrs(includePII bool) []any {
	attrs := []any{
		slog.String("action", e.Action),
		slog.String("user_id", e.UserID),
		slog.Duration("duration", e.Duration),
		slog.Bool("success", e.Success),
	}

	if e.Email != "" {
		if includePII {
			attrs = append(attrs, slog.String("email", e.Email))
		} else {
			attrs = append(attrs, logging.UserHash(e.Email), slog.String("user_domain", ExtractUserDomain(e.Email)))
		}
	}
	if e.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", e.TraceID))
	}
	if e.SpanID != "" {
		attrs = append(attrs, slog.String("span_id", e.SpanID))
	}
	if e.Error != "" {
		attrs = append(attrs, slog.String("error", e.Error))
	}
	return attrs
}

// AuditLogger writes connection lifecycle events as structured logs.
type AuditLogger struct {
	logger     *slog.Logger
	includePII bool
	enabled    bool
}

// NewAuditLogger creates an enabled audit logger that hashes emails.
// A nil logger falls back to slog.Default().
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return NewAuditLoggerWithConfig(logger, AuditLoggingConfig{Enabled: true})
}

// NewAuditLoggerWithConfig creates an audit logger from config.
func NewAuditLoggerWithConfig(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger.With(slog.String("component", "audit")),
		includePII: config.IncludePII,
		enabled:    config.Enabled,
	}
}

// Log writes e. A nil AuditLogger or a disabled one drops the event.
func (al *AuditLogger) Log(e *ConnectionEvent) {
	if al == nil || !al.enabled || e == nil {
		return
	}

	if e.Success {
		al.logger.Info("gmail_"+e.Action, e.attrs(al.includePII)...)
	} else {
		al.logger.Warn("gmail_"+e.Action+"_failed", e.attrs(al.includePII)...)
	}
}
