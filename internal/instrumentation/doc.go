// Package instrumentation wires OpenTelemetry metrics and tracing for the
// inboxpanel service.
//
// # Metrics
//
// HTTP:
//   - http_requests_total, http_request_duration_seconds by method, route and status
//   - active_event_streams: open notification streams
//
// Google API:
//   - google_api_operations_total, google_api_operation_duration_seconds by service, operation and status
//
// OAuth:
//   - oauth_auth_total: account link callbacks by result
//   - oauth_token_refresh_total: refresh grants by result
//
// Sync:
//   - mailbox_sync_total, mailbox_sync_duration_seconds by trigger and status
//   - mailbox_sync_messages_total: messages written
//
// # Tracing
//
// Spans are started for each sync run (mailbox.sync) and each Google call
// (google.<service>.<operation>).
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	provider.Metrics().RecordSync(ctx, instrumentation.TriggerRequest, instrumentation.StatusSuccess, userID, n, time.Since(start))
package instrumentation
