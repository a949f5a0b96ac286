package google

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"github.com/teemow/inboxpanel/internal/instrumentation"
)

// Config holds the OAuth client registration.
type Config struct {
	ClientID     string
	ClientSecret string

	// Endpoint defaults to Google's auth and token URLs.
	Endpoint oauth2.Endpoint

	// APIEndpoint overrides the base URL of the userinfo API. Empty means Google.
	APIEndpoint string

	// HTTPClient is used for every outbound call. Nil means http.DefaultClient.
	HTTPClient *http.Client

	Metrics *instrumentation.Metrics
}

// TokenSet is the result of a code exchange or refresh.
type TokenSet struct {
	AccessToken string
	// RefreshToken is empty on refresh unless Google rotated it.
	RefreshToken string
	ExpiresIn    time.Duration
	Expiry       time.Time
}

// OAuthClient runs the authorization code flow against Google.
type OAuthClient struct {
	cfg Config
}

// NewOAuthClient returns an OAuthClient for the app credentials in cfg.
func NewOAuthClient(cfg Config) *OAuthClient {
	if cfg.Endpoint.AuthURL == "" && cfg.Endpoint.TokenURL == "" {
		cfg.Endpoint = google.Endpoint
	}
	return &OAuthClient{cfg: cfg}
}

// Configured reports whether both client id and secret are set.
func (c *OAuthClient) Configured() bool {
	return c.cfg.ClientID != "" && c.cfg.ClientSecret != ""
}

func (c *OAuthClient) config(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		Endpoint:     c.cfg.Endpoint,
		RedirectURL:  redirectURI,
		Scopes:       Scopes,
	}
}

func (c *OAuthClient) withHTTPClient(ctx context.Context) context.Context {
	if c.cfg.HTTPClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, c.cfg.HTTPClient)
}

// AuthorizationURL returns the consent page URL. It asks for offline access
// and forces the consent prompt so Google issues a refresh token every time.
func (c *OAuthClient) AuthorizationURL(redirectURI string) (string, error) {
	if !c.Configured() {
		return "", &Error{Kind: KindConfiguration}
	}
	return c.config(redirectURI).AuthCodeURL("", oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// ExchangeCode trades an authorization code for tokens. There is no retry.
func (c *OAuthClient) ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenSet, error) {
	if !c.Configured() {
		return nil, &Error{Kind: KindConfiguration}
	}

	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceOAuth, instrumentation.OperationExchange)
	defer span.End()
	start := time.Now()

	tok, err := c.config(redirectURI).Exchange(c.withHTTPClient(ctx), code)
	c.record(ctx, instrumentation.ServiceOAuth, instrumentation.OperationExchange, err, start)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return nil, NewError(KindExchange, err)
	}
	instrumentation.SetSpanSuccess(span)
	return newTokenSet(tok), nil
}

// Refresh obtains a new access token from a refresh token.
func (c *OAuthClient) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	if !c.Configured() {
		return nil, &Error{Kind: KindConfiguration}
	}

	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceOAuth, instrumentation.OperationRefresh)
	defer span.End()
	start := time.Now()

	src := c.config("").TokenSource(c.withHTTPClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	c.record(ctx, instrumentation.ServiceOAuth, instrumentation.OperationRefresh, err, start)
	if err != nil {
		c.cfg.Metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultFailure)
		instrumentation.SetSpanError(span, err)
		return nil, NewError(KindRefresh, err)
	}
	c.cfg.Metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultSuccess)
	instrumentation.SetSpanSuccess(span)

	ts := newTokenSet(tok)
	if ts.RefreshToken == refreshToken {
		// The token source copies the old refresh token forward when
		// Google does not rotate it.
		ts.RefreshToken = ""
	}
	return ts, nil
}

// FetchAccountEmail returns the address of the account the token belongs to.
func (c *OAuthClient) FetchAccountEmail(ctx context.Context, accessToken string) (string, error) {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceUserinfo, instrumentation.OperationUserinfo)
	defer span.End()
	start := time.Now()

	opts := []option.ClientOption{option.WithHTTPClient(AuthorizedClient(ctx, c.cfg.HTTPClient, accessToken))}
	if c.cfg.APIEndpoint != "" {
		opts = append(opts, option.WithEndpoint(c.cfg.APIEndpoint))
	}
	svc, err := oauth2api.NewService(ctx, opts...)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return "", NewError(KindIdentityLookup, err)
	}

	info, err := svc.Userinfo.Get().Context(ctx).Do()
	c.record(ctx, instrumentation.ServiceUserinfo, instrumentation.OperationUserinfo, err, start)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return "", NewError(KindIdentityLookup, err)
	}
	instrumentation.SetSpanSuccess(span)
	return info.Email, nil
}

func (c *OAuthClient) record(ctx context.Context, service, operation string, err error, start time.Time) {
	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
	}
	c.cfg.Metrics.RecordGoogleAPIOperation(ctx, service, operation, status, time.Since(start))
}

// AuthorizedClient returns an HTTP client that sends accessToken as a bearer
// token. It does not refresh. A nil base means http.DefaultClient.
func AuthorizedClient(ctx context.Context, base *http.Client, accessToken string) *http.Client {
	if base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	}
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
}

func newTokenSet(tok *oauth2.Token) *TokenSet {
	ts := &TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
	switch {
	case tok.ExpiresIn > 0:
		ts.ExpiresIn = time.Duration(tok.ExpiresIn) * time.Second
	case !tok.Expiry.IsZero():
		ts.ExpiresIn = time.Until(tok.Expiry).Round(time.Second)
	}
	return ts
}
