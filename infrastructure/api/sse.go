package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// sseWriter streams server-sent events on a gin response.
type sseWriter struct {
	c *gin.Context
}

func (w sseWriter) WriteEvent(event string, data any) error {
	if err := w.c.Request.Context().Err(); err != nil {
		return err
	}
	w.c.SSEvent(event, data)
	w.c.Writer.Flush()
	return nil
}

func (s *Server) handleEvents(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	s.log.Debug("Event subscriber connected", "remote", c.ClientIP())
	if err := s.broadcaster.Serve(c.Request.Context(), sseWriter{c: c}); err != nil {
		s.log.Warn("Event stream ended", "remote", c.ClientIP(), "error", err)
		return
	}
	s.log.Debug("Event subscriber left", "remote", c.ClientIP())
}
