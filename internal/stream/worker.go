package stream

import (
	"context"
	"time"

	"facewatch/internal/core/models"
	"facewatch/internal/core/verification"
	"facewatch/internal/db/repository"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// run is the worker loop of one stream task. It owns the video source and
// a dedicated storage handle, separate from request-scoped connections.
func (s *Supervisor) run(task *Task) {
	defer s.wg.Done()
	defer s.remove(task.URL)
	defer task.closeLatest()

	workerLog := log.WithFields(log.Fields{
		"component": "stream",
		"source":    task.URL,
		"mode":      task.Mode,
	})

	repo := repository.NewSQLiteRepository(s.db.Session(&gorm.Session{NewDB: true}))
	svc := verification.NewService(repo, s.provider, s.settings, s.snapshotDir)

	var src Source
	defer func() {
		if src != nil {
			src.Close()
		}
	}()

	frameCount := 0

	for task.running.Load() {
		if src == nil {
			var err error
			src, err = s.OpenSource(task.URL)
			if err != nil {
				// Transient by policy: a flaky camera link must not kill
				// the task. Retry indefinitely at a fixed delay.
				workerLog.Warnf("Failed to open video source: %v", err)
				time.Sleep(s.reconnectDelay())
				continue
			}
			workerLog.Info("Video source opened")
		}

		frame, err := src.Read()
		if err != nil {
			workerLog.Warnf("Frame read failed, reopening source: %v", err)
			src.Close()
			src = nil
			time.Sleep(s.reconnectDelay())
			continue
		}

		// Every frame feeds the publisher; only every Nth is verified.
		task.setLatest(frame)
		frameCount++
		if s.cfg.SampleInterval > 0 && frameCount%s.cfg.SampleInterval != 0 {
			continue
		}

		jpeg, ok, err := task.EncodeLatest()
		if err != nil {
			workerLog.Warnf("Failed to encode sampled frame: %v", err)
			continue
		}
		if !ok {
			continue
		}

		s.processSample(task, svc, repo, jpeg, workerLog)
	}

	workerLog.Info("Stream task terminated")
}

// processSample runs the verification workflow on one sampled frame and
// applies the task's policy. All failures are contained here; the frame
// loop never dies on a bad sample.
func (s *Supervisor) processSample(task *Task, svc *verification.Service, repo repository.Repository, jpeg []byte, workerLog *log.Entry) {
	result, err := svc.Verify(context.Background(), jpeg)
	if err != nil {
		workerLog.Warnf("Verification failed on sampled frame: %v", err)
		return
	}

	switch result.Status {
	case verification.StatusSuccess:
		if task.Mode != ModeVerify {
			// Already known; register mode has nothing to do.
			return
		}
		entry := &models.MatchLog{
			UserID:   &result.User.ID,
			Distance: result.Distance,
			Source:   task.URL,
		}
		if err := repo.AppendMatchLog(entry); err != nil {
			workerLog.Errorf("Failed to append match log: %v", err)
			return
		}
		workerLog.Infof("Recognized %q at distance %.4f", result.User.Name, *result.Distance)
		s.notify(MatchEvent{
			Type:      EventMatch,
			Source:    task.URL,
			UserID:    &result.User.ID,
			UserName:  result.User.Name,
			Distance:  result.Distance,
			Timestamp: time.Now(),
		})

	case verification.StatusFailure:
		if task.Mode == ModeRegister {
			user, err := svc.AutoRegister(context.Background(), jpeg, result.Embedding)
			if err != nil {
				workerLog.Errorf("Auto-registration failed: %v", err)
				return
			}
			s.notify(MatchEvent{
				Type:      EventAutoRegister,
				Source:    task.URL,
				UserID:    &user.ID,
				UserName:  user.Name,
				Timestamp: time.Now(),
			})
			return
		}

		entry := &models.MatchLog{Source: task.URL}
		if s.cfg.SnapshotUnknown {
			path, err := svc.SaveSnapshot(jpeg)
			if err != nil {
				workerLog.Warnf("Failed to store unknown-face snapshot: %v", err)
			} else {
				entry.SnapshotPath = path
			}
		}
		if err := repo.AppendMatchLog(entry); err != nil {
			workerLog.Errorf("Failed to append unknown-face log: %v", err)
			return
		}
		s.notify(MatchEvent{
			Type:      EventUnknownFace,
			Source:    task.URL,
			Distance:  result.Distance,
			Timestamp: time.Now(),
		})

	default:
		// No usable face in the sampled frame; nothing to log or register.
	}
}

func (s *Supervisor) notify(event MatchEvent) {
	if s.notifier != nil {
		s.notifier.PublishMatch(event)
	}
}
