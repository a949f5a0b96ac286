// Package googletest runs an in-process stand-in for the Google OAuth,
// userinfo and Gmail endpoints.
package googletest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"golang.org/x/oauth2"
	gmail "google.golang.org/api/gmail/v1"
)

// Client credentials the server accepts.
const (
	ClientID     = "test-client-id"
	ClientSecret = "test-client-secret"
)

// Grant is what the token endpoint hands out for a code or refresh token.
type Grant struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
}

// Server is a fake Google. Configure it with the Add/Fail methods before use.
type Server struct {
	*httptest.Server

	mu            sync.Mutex
	codes         map[string]Grant
	refreshTokens map[string]Grant
	accounts      map[string]string
	mailboxes     map[string][]*gmail.Message
	failIDs       map[string]bool
	listStatus    int
	tokenRequests int
	lastList      url.Values
}

// New starts a server that is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		codes:         make(map[string]Grant),
		refreshTokens: make(map[string]Grant),
		accounts:      make(map[string]string),
		mailboxes:     make(map[string][]*gmail.Message),
		failIDs:       make(map[string]bool),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", s.handleToken)
	mux.HandleFunc("GET /oauth2/v2/userinfo", s.handleUserinfo)
	mux.HandleFunc("GET /gmail/v1/users/{user}/messages", s.handleList)
	mux.HandleFunc("GET /gmail/v1/users/{user}/messages/{id}", s.handleGet)

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// Endpoint returns OAuth endpoints that send client credentials in the form.
func (s *Server) Endpoint() oauth2.Endpoint {
	return oauth2.Endpoint{
		AuthURL:   s.URL + "/o/oauth2/auth",
		TokenURL:  s.URL + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
}

// APIEndpoint is the base URL to pass to option.WithEndpoint.
func (s *Server) APIEndpoint() string {
	return s.URL + "/"
}

func (s *Server) AddCode(code string, g Grant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[code] = g
}

func (s *Server) AddRefreshToken(refreshToken string, g Grant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshTokens[refreshToken] = g
}

// AddAccount makes accessToken valid for the userinfo and Gmail endpoints.
func (s *Server) AddAccount(accessToken, email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[accessToken] = email
	if _, ok := s.mailboxes[accessToken]; !ok {
		s.mailboxes[accessToken] = nil
	}
}

// AddMessages appends inbox messages visible to accessToken, newest first.
func (s *Server) AddMessages(accessToken string, msgs ...*gmail.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mailboxes[accessToken] = append(s.mailboxes[accessToken], msgs...)
}

// FailMessage makes fetching id return 500.
func (s *Server) FailMessage(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failIDs[id] = true
}

// FailList makes every listing return status.
func (s *Server) FailList(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listStatus = status
}

// TokenRequests counts calls to the token endpoint.
func (s *Server) TokenRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokenRequests
}

// LastListQuery returns the query of the most recent listing.
func (s *Server) LastListQuery() url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastList
}

// Message builds a metadata-format message.
func Message(id, from, subject string, internalDate int64, labels ...string) *gmail.Message {
	var headers []*gmail.MessagePartHeader
	if from != "" {
		headers = append(headers, &gmail.MessagePartHeader{Name: "From", Value: from})
	}
	if subject != "" {
		headers = append(headers, &gmail.MessagePartHeader{Name: "Subject", Value: subject})
	}
	return &gmail.Message{
		Id:           id,
		ThreadId:     "thread-" + id,
		LabelIds:     labels,
		Snippet:      "snippet of " + id,
		InternalDate: internalDate,
		Payload:      &gmail.MessagePart{Headers: headers},
	}
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenRequests++

	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}
	if r.PostForm.Get("client_id") != ClientID || r.PostForm.Get("client_secret") != ClientSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
		return
	}

	var (
		g  Grant
		ok bool
	)
	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		g, ok = s.codes[r.PostForm.Get("code")]
	case "refresh_token":
		g, ok = s.refreshTokens[r.PostForm.Get("refresh_token")]
	}
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":             "invalid_grant",
			"error_description": "Bad Request",
		})
		return
	}

	resp := map[string]any{
		"access_token": g.AccessToken,
		"token_type":   "Bearer",
		"expires_in":   g.ExpiresIn,
	}
	if g.RefreshToken != "" {
		resp["refresh_token"] = g.RefreshToken
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUserinfo(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	email, ok := s.accounts[bearer(r)]
	s.mu.Unlock()

	if !ok {
		writeAPIError(w, http.StatusUnauthorized, "Invalid Credentials")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": "1", "email": email, "verified_email": true})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastList = r.URL.Query()

	if s.listStatus != 0 {
		writeAPIError(w, s.listStatus, "list failed")
		return
	}
	msgs, ok := s.mailboxes[bearer(r)]
	if !ok {
		writeAPIError(w, http.StatusUnauthorized, "Invalid Credentials")
		return
	}

	limit := len(msgs)
	if n, err := strconv.Atoi(r.URL.Query().Get("maxResults")); err == nil && n < limit {
		limit = n
	}
	refs := make([]*gmail.Message, 0, limit)
	for _, m := range msgs[:limit] {
		refs = append(refs, &gmail.Message{Id: m.Id, ThreadId: m.ThreadId})
	}
	writeJSON(w, http.StatusOK, &gmail.ListMessagesResponse{Messages: refs, ResultSizeEstimate: int64(len(refs))})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := r.PathValue("id")
	msgs, ok := s.mailboxes[bearer(r)]
	if !ok {
		writeAPIError(w, http.StatusUnauthorized, "Invalid Credentials")
		return
	}
	if s.failIDs[id] {
		writeAPIError(w, http.StatusInternalServerError, "backend error")
		return
	}
	for _, m := range msgs {
		if m.Id == id {
			writeJSON(w, http.StatusOK, m)
			return
		}
	}
	writeAPIError(w, http.StatusNotFound, "Requested entity was not found.")
}

func bearer(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"code": status, "message": message},
	})
}
