package handlers

import (
	"net/http"

	"facewatch/internal/core/matching"
	"facewatch/internal/core/recognition"

	"github.com/gin-gonic/gin"
)

// GetRecognitionConfig returns the active model, its threshold, the
// requested attributes and the models available for switching.
func (h *APIHandler) GetRecognitionConfig(c *gin.Context) {
	settings := h.settings.Get()
	c.JSON(http.StatusOK, gin.H{
		"model":            settings.Model,
		"threshold":        settings.Threshold(),
		"attributes":       settings.Attributes,
		"available_models": matching.Models(),
	})
}

// UpdateRecognitionConfig replaces the runtime recognition settings. The
// change applies to subsequent extraction calls only; stored embeddings are
// not migrated, so switching models makes old vectors incomparable with new
// ones.
func (h *APIHandler) UpdateRecognitionConfig(c *gin.Context) {
	var req recognition.Settings
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.settings.Update(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	settings := h.settings.Get()
	c.JSON(http.StatusOK, gin.H{
		"message":    "Recognition settings updated",
		"model":      settings.Model,
		"threshold":  settings.Threshold(),
		"attributes": settings.Attributes,
	})
}
