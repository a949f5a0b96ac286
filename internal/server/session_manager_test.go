package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUserID = "0b8f6a64-2a3e-4a4e-9a55-5a1c7b2f9e10"

func TestSessionManager_IssueVerify(t *testing.T) {
	m := NewSessionManager("secret", "")

	token, err := m.Issue(testUserID, time.Hour)
	require.NoError(t, err)

	userID, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, testUserID, userID)

	// Empty cookie name falls back to "session".
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: "session", Value: token})
	userID, err = m.FromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, testUserID, userID)
}

func TestSessionManager_IssueRejectsNonUUID(t *testing.T) {
	m := NewSessionManager("secret", "session")
	_, err := m.Issue("alice", time.Hour)
	assert.Error(t, err)
}

func TestSessionManager_VerifyRejects(t *testing.T) {
	m := NewSessionManager("secret", "session")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	sign := func(claims jwt.Claims, method jwt.SigningMethod, key any) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}
	valid := func(sub string) jwt.RegisteredClaims {
		return jwt.RegisteredClaims{
			Subject:   sub,
			Issuer:    sessionIssuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		}
	}

	expired := valid(testUserID)
	expired.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Minute))
	noExpiry := valid(testUserID)
	noExpiry.ExpiresAt = nil
	otherIssuer := valid(testUserID)
	otherIssuer.Issuer = "someone-else"

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-jwt"},
		{"wrong secret", sign(valid(testUserID), jwt.SigningMethodHS256, []byte("other"))},
		{"expired", sign(expired, jwt.SigningMethodHS256, []byte("secret"))},
		{"no expiry", sign(noExpiry, jwt.SigningMethodHS256, []byte("secret"))},
		{"other issuer", sign(otherIssuer, jwt.SigningMethodHS256, []byte("secret"))},
		{"subject not a uuid", sign(valid("alice"), jwt.SigningMethodHS256, []byte("secret"))},
		{"unsigned", sign(valid(testUserID), jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Verify(tt.token)
			assert.ErrorIs(t, err, ErrInvalidSession)
		})
	}
}

func TestSessionManager_FromRequest(t *testing.T) {
	m := NewSessionManager("secret", "sid")
	token, err := m.Issue(testUserID, time.Hour)
	require.NoError(t, err)

	t.Run("cookie", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.AddCookie(&http.Cookie{Name: "sid", Value: token})
		userID, err := m.FromRequest(r)
		require.NoError(t, err)
		assert.Equal(t, testUserID, userID)
	})

	t.Run("bearer", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		userID, err := m.FromRequest(r)
		require.NoError(t, err)
		assert.Equal(t, testUserID, userID)
	})

	t.Run("missing", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		_, err := m.FromRequest(r)
		assert.ErrorIs(t, err, ErrInvalidSession)
	})

	t.Run("basic auth is not a session", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.SetBasicAuth("user", "pass")
		_, err := m.FromRequest(r)
		assert.ErrorIs(t, err, ErrInvalidSession)
	})
}
