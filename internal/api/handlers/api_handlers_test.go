package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"facewatch/internal/core/models"
	"facewatch/internal/db/repository"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newLogsHandler(t *testing.T, seedEntries int) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.MatchLog{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	repo := repository.NewSQLiteRepository(db)
	for i := 0; i < seedEntries; i++ {
		if err := repo.AppendMatchLog(&models.MatchLog{Source: "rtsp://cam1"}); err != nil {
			t.Fatalf("failed to seed log %d: %v", i, err)
		}
	}

	h := &APIHandler{repo: repo}
	router := gin.New()
	router.GET("/logs", h.GetMatchLogs)
	return router
}

func TestGetMatchLogsLimit(t *testing.T) {
	router := newLogsHandler(t, 60)

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"default", "", 50},
		{"explicit cap", "?limit=50", 50},
		{"below cap", "?limit=10", 10},
		{"above cap falls back", "?limit=999", 50},
		{"zero falls back", "?limit=0", 50},
		{"garbage falls back", "?limit=abc", 50},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/logs%s", tc.query), nil)
			router.ServeHTTP(w, req)

			if w.Code != http.StatusOK {
				t.Fatalf("unexpected status %d: %s", w.Code, w.Body.String())
			}

			var body struct {
				Logs []models.MatchLog `json:"logs"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if len(body.Logs) != tc.want {
				t.Errorf("expected %d entries, got %d", tc.want, len(body.Logs))
			}
		})
	}
}
