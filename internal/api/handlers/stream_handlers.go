package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"facewatch/internal/stream"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// StartStream launches a processing task for an RTSP/video URL.
func (h *APIHandler) StartStream(c *gin.Context) {
	url := c.PostForm("url")
	if url == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}

	mode, err := stream.ParseMode(c.PostForm("mode"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("mode must be %q or %q", stream.ModeRegister, stream.ModeVerify)})
		return
	}

	if err := h.supervisor.Start(url, mode); err != nil {
		if errors.Is(err, stream.ErrAlreadyRunning) {
			c.JSON(http.StatusConflict, gin.H{"error": "stream already running"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to start stream: %v", err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Stream started",
		"url":     url,
		"mode":    mode,
	})
}

// StopStream requests a cooperative stop of a running task.
func (h *APIHandler) StopStream(c *gin.Context) {
	url := c.PostForm("url")
	if url == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}

	if err := h.supervisor.Stop(url); err != nil {
		if errors.Is(err, stream.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "stream not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to stop stream: %v", err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Stream stop requested",
		"url":     url,
	})
}

// ListStreams returns the active stream tasks.
func (h *APIHandler) ListStreams(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"streams": h.supervisor.Running()})
}

// StreamFeed serves the live frames of a task as a multipart MJPEG feed.
// The feed ends when the task stops or the client disconnects.
func (h *APIHandler) StreamFeed(c *gin.Context) {
	url := c.Query("url")
	if url == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}

	frames, err := h.supervisor.Frames(c.Request.Context(), url)
	if err != nil {
		if errors.Is(err, stream.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "stream not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to open feed: %v", err)})
		return
	}

	const boundary = "frame"
	c.Writer.Header().Set("Content-Type", fmt.Sprintf("multipart/x-mixed-replace; boundary=%s", boundary))
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	for frame := range frames {
		_, err := fmt.Fprintf(c.Writer, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", boundary, len(frame))
		if err == nil {
			_, err = c.Writer.Write(frame)
		}
		if err == nil {
			_, err = io.WriteString(c.Writer, "\r\n")
		}
		if err != nil {
			log.Debugf("MJPEG feed client for %s disconnected: %v", url, err)
			return
		}
		c.Writer.Flush()
	}
}
