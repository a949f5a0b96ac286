// Package logging holds the slog setup and attribute helpers shared by the
// inboxpanel packages.
//
// Create the process logger once and pass it down:
//
//	logger := logging.NewLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
//	logger = logging.WithOperation(logger, "mailbox.sync")
//	logger.Info("sync finished", logging.UserID(id), logging.Count(n))
//
// Account emails are PII. Log them through UserHash, never raw, and never
// log tokens except through SanitizeToken.
package logging
