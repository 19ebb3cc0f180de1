package stream

import (
	"errors"
	"sync"
	"time"

	"facewatch/config"
	"facewatch/internal/core/recognition"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	// ErrAlreadyRunning is returned when a start request names a URL that
	// already has an active task.
	ErrAlreadyRunning = errors.New("stream already running")
	// ErrNotFound is returned when a stop or feed request names a URL with
	// no active task.
	ErrNotFound = errors.New("stream not found")
	// ErrInvalidMode is returned for mode strings outside the enum.
	ErrInvalidMode = errors.New("invalid stream mode")
)

// TaskInfo is the externally visible state of one active task.
type TaskInfo struct {
	URL  string `json:"url"`
	Mode Mode   `json:"mode"`
}

// Supervisor owns the registry of active stream tasks, at most one per
// source URL, and the workers processing them.
type Supervisor struct {
	db          *gorm.DB
	provider    recognition.Provider
	settings    *recognition.SettingsStore
	cfg         config.StreamConfig
	snapshotDir string
	notifier    Notifier

	// OpenSource opens video sources; replaceable for tests.
	OpenSource SourceOpener

	mu    sync.Mutex
	tasks map[string]*Task
	wg    sync.WaitGroup
}

// NewSupervisor creates a supervisor with no active tasks.
func NewSupervisor(db *gorm.DB, provider recognition.Provider, settings *recognition.SettingsStore, cfg config.StreamConfig, snapshotDir string, notifier Notifier) *Supervisor {
	return &Supervisor{
		db:          db,
		provider:    provider,
		settings:    settings,
		cfg:         cfg,
		snapshotDir: snapshotDir,
		notifier:    notifier,
		OpenSource:  OpenVideoSource,
		tasks:       make(map[string]*Task),
	}
}

// Start launches a worker for the URL. Starting a URL that already has an
// active task returns ErrAlreadyRunning without touching the existing task.
func (s *Supervisor) Start(url string, mode Mode) error {
	if mode != ModeRegister && mode != ModeVerify {
		return ErrInvalidMode
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[url]; exists {
		return ErrAlreadyRunning
	}

	task := newTask(url, mode)
	s.tasks[url] = task
	s.wg.Add(1)
	go s.run(task)

	log.WithFields(log.Fields{
		"component": "stream",
		"source":    url,
		"mode":      mode,
	}).Info("Stream task started")

	return nil
}

// Stop requests a cooperative stop of the URL's worker. It returns
// immediately; the worker exits after finishing its current frame and
// removes the task from the registry itself.
func (s *Supervisor) Stop(url string) error {
	s.mu.Lock()
	task, exists := s.tasks[url]
	s.mu.Unlock()

	if !exists {
		return ErrNotFound
	}

	task.running.Store(false)

	log.WithFields(log.Fields{
		"component": "stream",
		"source":    url,
	}).Info("Stream task stop requested")

	return nil
}

// Running lists the currently active tasks.
func (s *Supervisor) Running() []TaskInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]TaskInfo, 0, len(s.tasks))
	for _, t := range s.tasks {
		infos = append(infos, TaskInfo{URL: t.URL, Mode: t.Mode})
	}
	return infos
}

// StopAll stops every task and blocks until all workers have exited.
// Used during shutdown.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	for _, t := range s.tasks {
		t.running.Store(false)
	}
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Supervisor) get(url string) (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[url]
	return t, ok
}

func (s *Supervisor) remove(url string) {
	s.mu.Lock()
	delete(s.tasks, url)
	s.mu.Unlock()
}

func (s *Supervisor) reconnectDelay() time.Duration {
	return time.Duration(s.cfg.ReconnectDelayMs) * time.Millisecond
}

func (s *Supervisor) feedInterval() time.Duration {
	return time.Duration(s.cfg.FeedIntervalMs) * time.Millisecond
}
