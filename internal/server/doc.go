// Package server is the HTTP surface of inboxpanel.
//
// Routes under /api/gmail link and unlink a Gmail account, report link
// status, trigger a sync, list stored messages and stream new-mail
// notifications as server-sent events. Every route except the OAuth
// callback requires a session token, read from the session cookie or an
// Authorization bearer header.
//
// The package also serves health probes on the main listener and, when
// Prometheus export is enabled, a separate metrics listener.
package server
