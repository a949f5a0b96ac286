package server

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/teemow/inboxpanel/internal/connection"
	"github.com/teemow/inboxpanel/internal/google"
	"github.com/teemow/inboxpanel/internal/logging"
	"github.com/teemow/inboxpanel/internal/mailsync"
	"github.com/teemow/inboxpanel/internal/model"
)

// Reasons carried in the dashboard redirect after a failed callback.
const (
	ReasonNoCode          = "no_code"
	ReasonTokenSaveFailed = "token_save_failed"
	ReasonCallbackFailed  = "callback_failed"
)

const msgNotConfigured = "Google OAuth credentials are not configured. Set GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET."

func errorJSON(c *gin.Context, code int, msg string) {
	c.JSON(code, gin.H{"error": msg})
}

func (s *Server) handleConnect(c *gin.Context) {
	authURL, err := s.opts.Linker.Connect(s.opts.CallbackURL)
	if err != nil {
		if errors.Is(err, google.ErrConfiguration) {
			errorJSON(c, http.StatusInternalServerError, msgNotConfigured)
			return
		}
		s.logger.Error("failed to build authorization url", logging.Err(err))
		errorJSON(c, http.StatusInternalServerError, "Failed to generate auth URL")
		return
	}
	c.JSON(http.StatusOK, gin.H{"authUrl": authURL})
}

// handleCallback finishes the consent flow. Every outcome is a redirect.
func (s *Server) handleCallback(c *gin.Context) {
	if reason := c.Query("error"); reason != "" {
		s.redirectDashboard(c, "error", reason)
		return
	}
	code := c.Query("code")
	if code == "" {
		s.redirectDashboard(c, "error", ReasonNoCode)
		return
	}

	userID, err := s.opts.Sessions.FromRequest(c.Request)
	if err != nil {
		c.Redirect(http.StatusFound, s.opts.LoginURL)
		return
	}
	c.Set(userIDKey, userID)

	if err := s.opts.Linker.Callback(c.Request.Context(), userID, code, s.opts.CallbackURL); err != nil {
		reason := ReasonCallbackFailed
		if errors.Is(err, connection.ErrSaveCredential) {
			reason = ReasonTokenSaveFailed
		}
		s.logger.Warn("oauth callback failed", logging.UserID(userID), slog.String("reason", reason), logging.Err(err))
		s.redirectDashboard(c, "error", reason)
		return
	}
	s.redirectDashboard(c, "connected", "true")
}

func (s *Server) redirectDashboard(c *gin.Context, key, value string) {
	q := url.Values{}
	q.Set(key, value)
	c.Redirect(http.StatusFound, s.opts.DashboardURL+"?"+q.Encode())
}

func (s *Server) handleDisconnect(c *gin.Context) {
	if err := s.opts.Linker.Disconnect(c.Request.Context(), currentUser(c)); err != nil {
		s.logger.Error("failed to disconnect", logging.UserID(currentUser(c)), logging.Err(err))
		errorJSON(c, http.StatusInternalServerError, "Failed to disconnect")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.opts.Linker.Status(c.Request.Context(), currentUser(c)))
}

func (s *Server) handleSync(c *gin.Context) {
	n, err := s.opts.Syncer.Sync(c.Request.Context(), currentUser(c))
	switch {
	case errors.Is(err, mailsync.ErrNotConnected):
		errorJSON(c, http.StatusNotFound, "Gmail not connected")
	case err != nil:
		errorJSON(c, http.StatusInternalServerError, "Failed to sync messages")
	default:
		c.JSON(http.StatusOK, gin.H{"success": true, "count": n})
	}
}

func (s *Server) handleMessages(c *gin.Context) {
	msgs, err := s.opts.Messages.ListMessages(c.Request.Context(), currentUser(c), s.opts.MessageLimit)
	if err != nil {
		s.logger.Error("failed to list messages", logging.UserID(currentUser(c)), logging.Err(err))
		errorJSON(c, http.StatusInternalServerError, "Failed to fetch messages")
		return
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}
