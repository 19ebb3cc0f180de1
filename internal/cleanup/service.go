package cleanup

import (
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
)

// Service removes stale files from the temporary upload directory. Match
// logs are retained indefinitely; only scratch artifacts from request
// handling are subject to cleanup.
type Service struct {
	tmpDir        string
	retention     time.Duration
	checkInterval time.Duration
	stopChan      chan struct{}
}

// NewService creates a cleanup service. Returns nil when cleanup is
// disabled via a non-positive retention.
func NewService(tmpDir string, retentionHours, intervalMinutes int) *Service {
	if retentionHours <= 0 {
		log.Info("Automatic cleanup disabled (retention_hours <= 0).")
		return nil
	}
	if tmpDir == "" {
		log.Error("Cannot initialize cleanup service: tmp directory is empty")
		return nil
	}

	log.Infof("Initializing cleanup service: RetentionHours=%d, TmpDir='%s', IntervalMinutes=%d",
		retentionHours, tmpDir, intervalMinutes)

	return &Service{
		tmpDir:        tmpDir,
		retention:     time.Duration(retentionHours) * time.Hour,
		checkInterval: time.Duration(intervalMinutes) * time.Minute,
		stopChan:      make(chan struct{}),
	}
}

// StartBackgroundCleanup starts a goroutine that periodically runs the
// cleanup cycle.
func (s *Service) StartBackgroundCleanup() {
	if s == nil {
		return
	}
	log.Info("Starting background cleanup routine...")

	go func() {
		log.Info("Running initial cleanup check on startup...")
		s.RunCleanupCycle()

		ticker := time.NewTicker(s.checkInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				log.Debug("Running scheduled cleanup cycle...")
				s.RunCleanupCycle()
			case <-s.stopChan:
				log.Info("Stopping background cleanup routine.")
				return
			}
		}
	}()
}

// StopBackgroundCleanup signals the background routine to stop.
func (s *Service) StopBackgroundCleanup() {
	if s == nil || s.stopChan == nil {
		return
	}
	select {
	case <-s.stopChan:
	default:
		close(s.stopChan)
	}
}

// RunCleanupCycle deletes tmp files older than the retention period.
func (s *Service) RunCleanupCycle() {
	if s == nil {
		return
	}

	cutoff := time.Now().Add(-s.retention)

	entries, err := os.ReadDir(s.tmpDir)
	if err != nil {
		log.Errorf("Cleanup: failed to read tmp directory '%s': %v", s.tmpDir, err)
		return
	}

	deletedCount := 0
	failedCount := 0

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(s.tmpDir, entry.Name())
		if err := os.Remove(path); err != nil {
			log.Warnf("Cleanup: failed to delete tmp file '%s': %v", path, err)
			failedCount++
		} else {
			deletedCount++
		}
	}

	if deletedCount > 0 || failedCount > 0 {
		log.Infof("Cleanup cycle finished. Deleted: %d, Failed: %d", deletedCount, failedCount)
	}
}
