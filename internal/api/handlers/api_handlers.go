package handlers

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"facewatch/config"
	"facewatch/internal/core/recognition"
	"facewatch/internal/core/verification"
	"facewatch/internal/db/repository"
	"facewatch/internal/server/sse"
	"facewatch/internal/stream"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// recentLogsCap bounds how many match-log entries a single request returns.
const recentLogsCap = 50

// APIHandler handles the JSON API of the service.
type APIHandler struct {
	cfg        *config.Config
	repo       repository.Repository
	service    *verification.Service
	settings   *recognition.SettingsStore
	supervisor *stream.Supervisor
	sseHub     *sse.Hub
}

// NewAPIHandler creates a new API handler.
func NewAPIHandler(cfg *config.Config, repo repository.Repository, service *verification.Service, settings *recognition.SettingsStore, supervisor *stream.Supervisor, sseHub *sse.Hub) *APIHandler {
	return &APIHandler{
		cfg:        cfg,
		repo:       repo,
		service:    service,
		settings:   settings,
		supervisor: supervisor,
		sseHub:     sseHub,
	}
}

// RegisterRoutes registers all API routes.
func (h *APIHandler) RegisterRoutes(router *gin.RouterGroup) {
	// Recognition endpoints
	router.POST("/register", h.Register)
	router.POST("/verify", h.Verify)

	// User endpoints
	router.GET("/users", h.ListUsers)
	router.GET("/users/:id/image", h.GetUserImage)
	router.PUT("/users/:id", h.UpdateUser)
	router.DELETE("/users/:id", h.DeleteUser)

	// Match log endpoints
	router.GET("/logs", h.GetMatchLogs)

	// Stream endpoints
	router.POST("/streams/start", h.StartStream)
	router.POST("/streams/stop", h.StopStream)
	router.GET("/streams", h.ListStreams)
	router.GET("/streams/feed", h.StreamFeed)

	// Configuration endpoints
	router.GET("/config/recognition", h.GetRecognitionConfig)
	router.PUT("/config/recognition", h.UpdateRecognitionConfig)

	// System endpoints
	router.GET("/status", h.GetStatus)
	router.GET("/events", h.Events)
}

// readImage extracts image bytes from a multipart upload ("file") or an
// inline base64 payload ("image"), the two accepted registration inputs.
func readImage(c *gin.Context) ([]byte, error) {
	if file, _, err := c.Request.FormFile("file"); err == nil {
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read uploaded file: %w", err)
		}
		return data, nil
	}

	encoded := c.PostForm("image")
	if encoded == "" {
		return nil, fmt.Errorf("no image provided")
	}
	// Tolerate data-URL prefixes from camera captures.
	if idx := strings.Index(encoded, ","); idx != -1 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[idx+1:]
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 image data: %w", err)
	}
	return data, nil
}

// Register creates a new user from a name and an image.
func (h *APIHandler) Register(c *gin.Context) {
	name := c.PostForm("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	image, err := readImage(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.service.Register(c.Request.Context(), name, image)
	if err != nil {
		if errors.Is(err, recognition.ErrNoFaceDetected) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no face detected in image"})
			return
		}
		log.Errorf("Registration failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("registration failed: %v", err)})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "User registered successfully",
		"user":    user,
	})
}

// Verify matches an image against all registered users.
func (h *APIHandler) Verify(c *gin.Context) {
	image, err := readImage(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Keep a short-lived copy of the upload for debugging; the cleanup
	// janitor removes it after the retention period.
	tmpPath := filepath.Join(h.cfg.Server.TmpDir, fmt.Sprintf("verify_%s.jpg", uuid.New().String()))
	if err := os.WriteFile(tmpPath, image, 0640); err != nil {
		log.Debugf("Failed to store verification upload copy: %v", err)
	}

	result, err := h.service.Verify(c.Request.Context(), image)
	if err != nil {
		log.Errorf("Verification failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("verification failed: %v", err)})
		return
	}

	c.JSON(http.StatusOK, result)
}

// ListUsers returns all registered users.
func (h *APIHandler) ListUsers(c *gin.Context) {
	users, err := h.repo.GetUsers()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to list users: %v", err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// GetUserImage serves the stored image of a user.
func (h *APIHandler) GetUserImage(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user ID"})
		return
	}

	user, err := h.repo.GetUserByID(uint(id))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to fetch user: %v", err)})
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	c.File(user.ImagePath)
}

// UpdateUser changes a user's name and/or image.
func (h *APIHandler) UpdateUser(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user ID"})
		return
	}

	name := c.PostForm("name")
	image, imgErr := readImage(c)
	if imgErr != nil {
		image = nil
	}
	if name == "" && len(image) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nothing to update: provide a name and/or an image"})
		return
	}

	user, err := h.service.UpdateUser(c.Request.Context(), uint(id), name, image)
	if err != nil {
		switch {
		case errors.Is(err, verification.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		case errors.Is(err, recognition.ErrNoFaceDetected):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no face detected in new image, user unchanged"})
		default:
			log.Errorf("User update failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("update failed: %v", err)})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "User updated successfully",
		"user":    user,
	})
}

// DeleteUser removes a user and their stored image.
func (h *APIHandler) DeleteUser(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user ID"})
		return
	}

	if err := h.service.DeleteUser(uint(id)); err != nil {
		if errors.Is(err, verification.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("delete failed: %v", err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully"})
}

// GetMatchLogs returns the most recent sightings, newest first.
func (h *APIHandler) GetMatchLogs(c *gin.Context) {
	limit := recentLogsCap
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= recentLogsCap {
			limit = parsed
		}
	}

	logs, err := h.repo.GetRecentMatchLogs(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to fetch logs: %v", err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"logs": logs})
}
