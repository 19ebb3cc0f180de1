package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"facewatch/config"
	"facewatch/internal/api/handlers"
	"facewatch/internal/cleanup"
	"facewatch/internal/core/recognition"
	"facewatch/internal/core/verification"
	"facewatch/internal/db"
	"facewatch/internal/db/repository"
	"facewatch/internal/integrations/deepface"
	"facewatch/internal/integrations/mqtt"
	"facewatch/internal/logger"
	"facewatch/internal/server/sse"
	"facewatch/internal/stream"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.Init(cfg.Log); err != nil {
		log.Errorf("Failed to initialize logger completely: %v", err)
	}

	log.Info("Initializing database...")
	database, err := db.Initialize(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	repo := repository.NewSQLiteRepository(database)

	// Recognition settings start from the configured model and can be
	// changed at runtime through the API.
	settings, err := recognition.NewSettingsStore(recognition.Settings{
		Model:      cfg.Recognition.Model,
		Attributes: cfg.Recognition.Attributes,
	})
	if err != nil {
		log.Fatalf("Invalid recognition configuration: %v", err)
	}

	provider := deepface.NewClient(cfg.Recognition)
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if ok, err := provider.Ping(pingCtx); err != nil || !ok {
		log.Warnf("DeepFace service not reachable at %s, continuing anyway: %v", cfg.Recognition.ProviderURL, err)
	}
	cancelPing()

	service := verification.NewService(repo, provider, settings, cfg.Server.SnapshotDir)

	// Notifiers receive sighting events from stream workers.
	sseHub := sse.NewHub()
	go sseHub.Run()

	mqttClient := mqtt.NewClient(cfg.MQTT)
	if err := mqttClient.Start(); err != nil {
		log.Warnf("Failed to start MQTT client: %v. Continuing without MQTT.", err)
	}
	defer mqttClient.Stop()

	notifier := stream.MultiNotifier{sseHub, mqttClient}
	supervisor := stream.NewSupervisor(database, provider, settings, cfg.Stream, cfg.Server.SnapshotDir, notifier)

	cleanupService := cleanup.NewService(cfg.Server.TmpDir, cfg.Cleanup.RetentionHours, cfg.Cleanup.IntervalMinutes)
	if cleanupService != nil {
		cleanupService.StartBackgroundCleanup()
		defer cleanupService.StopBackgroundCleanup()
	}

	// HTTP router
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	allowAll := len(cfg.CORS.AllowedOrigins) == 0
	for _, origin := range cfg.CORS.AllowedOrigins {
		if origin == "*" {
			allowAll = true
		}
	}
	if allowAll {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.CORS.AllowedOrigins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	apiHandler := handlers.NewAPIHandler(cfg, repo, service, settings, supervisor, sseHub)
	apiHandler.RegisterRoutes(router.Group("/api"))

	// Serve stored snapshot images
	router.Static(cfg.Server.SnapshotURL, cfg.Server.SnapshotDir)
	log.Infof("Serving snapshots from %s under %s", cfg.Server.SnapshotDir, cfg.Server.SnapshotURL)

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		log.Infof("Starting server on %s", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Graceful shutdown: stop accepting requests, then join the stream
	// workers so open video sources are released.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutdown signal received...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server shutdown failed: %v", err)
	}

	log.Info("Stopping stream tasks...")
	supervisor.StopAll()

	log.Info("Server stopped.")
}
