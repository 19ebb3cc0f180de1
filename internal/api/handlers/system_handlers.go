package handlers

import (
	"fmt"
	"io"
	"net/http"

	"facewatch/internal/server/sse"
	"facewatch/internal/utils"

	"github.com/gin-gonic/gin"
)

// GetStatus returns system statistics and storage counts.
func (h *APIHandler) GetStatus(c *gin.Context) {
	stats, err := h.repo.GetStatistics()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to collect statistics: %v", err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"system":  utils.GetSystemStats(h.supervisor),
		"storage": stats,
	})
}

// Events streams sighting events to the client over SSE.
func (h *APIHandler) Events(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	client := make(sse.Client, 10)

	h.sseHub.Register(client)
	defer h.sseHub.Unregister(client)

	c.Stream(func(w io.Writer) bool {
		select {
		case msg, ok := <-client:
			if !ok {
				return false
			}
			c.SSEvent("message", string(msg))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
