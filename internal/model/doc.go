// Package model holds the records shared by the store, the sync pipeline
// and the HTTP surface: linked Gmail credentials, synced inbox messages,
// connection status projections and notification events.
package model
