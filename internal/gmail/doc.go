// Package gmail reads the recent inbox of a linked Google account.
//
// Each call takes the caller's access token; the client never refreshes.
// Listing failures are returned as *google.Error with KindMailboxFetch, while
// a failed fetch of a single message only drops that message.
package gmail
