// Package cmd implements the inboxpanel command line.
//
// Commands:
//   - serve: run the HTTP server, the optional metrics listener and the
//     optional background sync schedule
//   - migrate: create or upgrade the database schema
//   - sync: sync one linked user or all of them once
//   - token: mint a session token for a user
//   - version: print the version
package cmd
