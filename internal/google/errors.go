package google

import (
	"errors"
	"fmt"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

// Kind classifies a failure talking to Google.
type Kind string

const (
	KindConfiguration  Kind = "configuration"
	KindExchange       Kind = "exchange"
	KindRefresh        Kind = "refresh"
	KindIdentityLookup Kind = "identity_lookup"
	KindMailboxFetch   Kind = "mailbox_fetch"
)

// Sentinels for errors.Is. Every *Error matches the sentinel of its Kind.
var (
	ErrConfiguration  = errors.New("google oauth client is not configured")
	ErrExchange       = errors.New("authorization code exchange failed")
	ErrRefresh        = errors.New("access token refresh failed")
	ErrIdentityLookup = errors.New("account identity lookup failed")
	ErrMailboxFetch   = errors.New("mailbox fetch failed")
)

var sentinels = map[Kind]error{
	KindConfiguration:  ErrConfiguration,
	KindExchange:       ErrExchange,
	KindRefresh:        ErrRefresh,
	KindIdentityLookup: ErrIdentityLookup,
	KindMailboxFetch:   ErrMailboxFetch,
}

// Error is a failed call to a Google endpoint. Status and Body carry the
// provider response when there was one.
type Error struct {
	Kind   Kind
	Status int
	Body   string
	Err    error
}

func (e *Error) Error() string {
	msg := sentinels[e.Kind].Error()
	if e.Status != 0 {
		msg = fmt.Sprintf("%s: status %d", msg, e.Status)
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	if e.Err != nil && e.Status == 0 {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return sentinels[e.Kind] == target
}

// NewError classifies err under kind, lifting the HTTP status and body out
// of oauth2 and googleapi errors.
func NewError(kind Kind, err error) *Error {
	e := &Error{Kind: kind, Err: err}

	var retrieveErr *oauth2.RetrieveError
	var apiErr *googleapi.Error
	switch {
	case errors.As(err, &retrieveErr):
		if retrieveErr.Response != nil {
			e.Status = retrieveErr.Response.StatusCode
		}
		e.Body = string(retrieveErr.Body)
	case errors.As(err, &apiErr):
		e.Status = apiErr.Code
		e.Body = apiErr.Body
	}
	return e
}
