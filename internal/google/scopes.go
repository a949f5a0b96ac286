package google

import (
	gmail "google.golang.org/api/gmail/v1"
	oauth2api "google.golang.org/api/oauth2/v2"
)

// Scopes requested when linking an account: read-only mail plus the
// address of the account.
var Scopes = []string{
	gmail.GmailReadonlyScope,
	oauth2api.UserinfoEmailScope,
}
