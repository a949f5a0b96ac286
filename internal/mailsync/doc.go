// Package mailsync pulls a user's recent inbox into the message store.
//
// A Syncer runs one batch on demand: it refreshes an expired access token,
// fetches the newest inbox messages and upserts them under the user's id.
// A Scheduler optionally repeats that for every linked user on a cron
// schedule.
package mailsync
