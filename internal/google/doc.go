// Package google talks to Google's OAuth endpoints: building the consent URL,
// exchanging authorization codes, refreshing access tokens and looking up
// the address of the linked account.
//
// Failures are returned as *Error, which matches the package sentinels
// (ErrExchange, ErrRefresh, ...) with errors.Is.
package google
