package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/teemow/inboxpanel/internal/logging"
)

// handleEvents streams notifications as server-sent events until the client
// goes away or the server shuts down.
func (s *Server) handleEvents(c *gin.Context) {
	ctx := c.Request.Context()
	userID := currentUser(c)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	s.metrics.IncrementActiveEventStreams(ctx)
	defer s.metrics.DecrementActiveEventStreams(ctx)

	for event := range s.opts.Events.Watch(ctx, userID) {
		payload, err := json.Marshal(event)
		if err != nil {
			s.logger.Error("failed to encode event", logging.UserID(userID), logging.Err(err))
			continue
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", payload); err != nil {
			return
		}
		c.Writer.Flush()
	}
}
