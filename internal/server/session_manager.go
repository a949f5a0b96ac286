package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidSession is returned for a missing, malformed or expired session.
var ErrInvalidSession = errors.New("invalid session")

const sessionIssuer = "inboxpanel"

// SessionManager verifies the HS256 session tokens that identify the
// application user. Identity itself is managed elsewhere; the token subject
// is the user's UUID.
type SessionManager struct {
	secret []byte
	cookie string
	now    func() time.Time
}

// NewSessionManager signs sessions with secret. An empty cookie name means "session".
func NewSessionManager(secret, cookie string) *SessionManager {
	if cookie == "" {
		cookie = "session"
	}
	return &SessionManager{
		secret: []byte(secret),
		cookie: cookie,
		now:    time.Now,
	}
}

// Issue mints a session token for userID valid for ttl.
func (m *SessionManager) Issue(userID string, ttl time.Duration) (string, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return "", fmt.Errorf("user id must be a UUID: %w", err)
	}

	now := m.now()
	claims := jwt.RegisteredClaims{
		Subject:   id.String(),
		Issuer:    sessionIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Verify returns the user id carried by token.
func (m *SessionManager) Verify(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !parsed.Valid {
		return "", ErrInvalidSession
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return "", ErrInvalidSession
	}
	return id.String(), nil
}

// FromRequest reads the session from the session cookie, falling back to an
// Authorization bearer token.
func (m *SessionManager) FromRequest(r *http.Request) (string, error) {
	if c, err := r.Cookie(m.cookie); err == nil && c.Value != "" {
		return m.Verify(c.Value)
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && token != "" {
		return m.Verify(token)
	}
	return "", ErrInvalidSession
}
