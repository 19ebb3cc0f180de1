package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"facewatch/config"
	"facewatch/internal/core/models"
	"facewatch/internal/core/recognition"
	"facewatch/internal/db/repository"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeFrame struct {
	data []byte
}

func (f *fakeFrame) EncodeJPEG() ([]byte, error) { return f.data, nil }
func (f *fakeFrame) Close()                      {}

// fakeSource delivers frames pushed into its channel and fails reads once
// the channel is closed.
type fakeSource struct {
	frames chan []byte
}

func (f *fakeSource) Read() (Frame, error) {
	data, ok := <-f.frames
	if !ok {
		return nil, errors.New("source exhausted")
	}
	return &fakeFrame{data: data}, nil
}

func (f *fakeSource) Close() {}

// fakeProvider treats the frame payload as the face key.
type fakeProvider struct {
	embeddings map[string][]float64
}

func (f *fakeProvider) Represent(_ context.Context, image []byte, _ string) (*recognition.FaceData, error) {
	emb, ok := f.embeddings[string(image)]
	if !ok {
		return nil, recognition.ErrNoFaceDetected
	}
	return &recognition.FaceData{Embedding: emb}, nil
}

func (f *fakeProvider) Analyze(_ context.Context, _ []byte, attributes []string) (map[string]string, error) {
	return map[string]string{}, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []MatchEvent
}

func (r *recordingNotifier) PublishMatch(event MatchEvent) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

func (r *recordingNotifier) byType(eventType string) []MatchEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []MatchEvent
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type testEnv struct {
	supervisor *Supervisor
	repo       *repository.SQLiteRepository
	notifier   *recordingNotifier
	source     *fakeSource
}

func newTestEnv(t *testing.T, provider recognition.Provider) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.MatchLog{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	settings, err := recognition.NewSettingsStore(recognition.Settings{Model: "Facenet"})
	if err != nil {
		t.Fatalf("failed to create settings store: %v", err)
	}

	notifier := &recordingNotifier{}
	cfg := config.StreamConfig{
		SampleInterval:   1,
		ReconnectDelayMs: 1,
		FeedIntervalMs:   2,
	}

	sup := NewSupervisor(db, provider, settings, cfg, t.TempDir(), notifier)
	source := &fakeSource{frames: make(chan []byte, 16)}
	sup.OpenSource = func(url string) (Source, error) { return source, nil }

	env := &testEnv{
		supervisor: sup,
		repo:       repository.NewSQLiteRepository(db),
		notifier:   notifier,
		source:     source,
	}
	t.Cleanup(func() {
		// Unblock any worker waiting in Read so StopAll can join it.
		close(source.frames)
		sup.StopAll()
	})
	return env
}

// eventually polls until the condition holds or the deadline passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		input   string
		want    Mode
		wantErr bool
	}{
		{"register", ModeRegister, false},
		{"verify", ModeVerify, false},
		{"", "", true},
		{"REGISTER", "", true},
		{"delete-everything", "", true},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParseMode(tc.input)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidMode) {
					t.Errorf("expected ErrInvalidMode, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("ParseMode(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestStartAlreadyRunning(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{})

	if err := env.supervisor.Start("rtsp://cam1", ModeVerify); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	if err := env.supervisor.Start("rtsp://cam1", ModeRegister); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}
	if got := len(env.supervisor.Running()); got != 1 {
		t.Errorf("expected 1 active task, got %d", got)
	}
}

func TestStartInvalidMode(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{})

	if err := env.supervisor.Start("rtsp://cam1", Mode("panic")); !errors.Is(err, ErrInvalidMode) {
		t.Errorf("expected ErrInvalidMode, got %v", err)
	}
	if got := len(env.supervisor.Running()); got != 0 {
		t.Errorf("expected no tasks, got %d", got)
	}
}

func TestStopUnknown(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{})

	if err := env.supervisor.Stop("rtsp://nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStopRemovesTask(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{})

	if err := env.supervisor.Start("rtsp://cam1", ModeVerify); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	env.source.frames <- []byte("frame")

	if err := env.supervisor.Stop("rtsp://cam1"); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	// The worker may be blocked in a read; keep feeding frames so it
	// observes the cleared flag.
	eventually(t, "task removal", func() bool {
		select {
		case env.source.frames <- []byte("frame"):
		default:
		}
		return len(env.supervisor.Running()) == 0
	})
}

func TestVerifyModeLogsKnownAndUnknownFaces(t *testing.T) {
	provider := &fakeProvider{embeddings: map[string][]float64{
		"alice-frame":   {1, 0, 0},
		"unknown-frame": {0, 1, 0},
	}}
	env := newTestEnv(t, provider)

	emb, err := models.EmbeddingJSON([]float64{1, 0, 0})
	if err != nil {
		t.Fatalf("failed to encode embedding: %v", err)
	}
	alice := &models.User{Name: "Alice", ImagePath: "/tmp/alice.jpg", Embedding: emb}
	if err := env.repo.SaveUser(alice); err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}

	if err := env.supervisor.Start("rtsp://cam1", ModeVerify); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	env.source.frames <- []byte("alice-frame")
	env.source.frames <- []byte("no-face")
	env.source.frames <- []byte("unknown-frame")

	eventually(t, "two log entries", func() bool {
		logs, err := env.repo.GetRecentMatchLogs(50)
		return err == nil && len(logs) == 2
	})

	logs, err := env.repo.GetRecentMatchLogs(50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var matched, unknown int
	for _, entry := range logs {
		if entry.Source != "rtsp://cam1" {
			t.Errorf("unexpected source %q", entry.Source)
		}
		if entry.UserID != nil {
			matched++
			if *entry.UserID != alice.ID {
				t.Errorf("expected match against Alice, got user %d", *entry.UserID)
			}
			if entry.Distance == nil {
				t.Error("expected distance on matched entry")
			}
		} else {
			unknown++
		}
	}
	if matched != 1 || unknown != 1 {
		t.Errorf("expected 1 matched and 1 unknown entry, got %d/%d", matched, unknown)
	}

	if events := env.notifier.byType(EventMatch); len(events) != 1 {
		t.Errorf("expected 1 match event, got %d", len(events))
	}
	if events := env.notifier.byType(EventUnknownFace); len(events) != 1 {
		t.Errorf("expected 1 unknown-face event, got %d", len(events))
	}
}

func TestRegisterModeAutoRegistersUnknownFaces(t *testing.T) {
	provider := &fakeProvider{embeddings: map[string][]float64{
		"stranger-frame":  {0, 1, 0},
		"stranger2-frame": {1, 0, 0},
	}}
	env := newTestEnv(t, provider)

	if err := env.supervisor.Start("rtsp://door", ModeRegister); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	env.source.frames <- []byte("stranger-frame")

	eventually(t, "auto-registered user", func() bool {
		users, err := env.repo.GetUsers()
		return err == nil && len(users) == 1
	})

	users, err := env.repo.GetUsers()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if users[0].Name != "001" {
		t.Errorf("expected sequence name 001, got %q", users[0].Name)
	}

	// The same face seen again now matches and must not be re-registered.
	// A second unknown face follows it; frames are processed in order, so
	// once its registration shows up the repeat frame is already through.
	env.source.frames <- []byte("stranger-frame")
	env.source.frames <- []byte("stranger2-frame")

	eventually(t, "second auto-registration", func() bool {
		return len(env.notifier.byType(EventAutoRegister)) == 2
	})

	users, err = env.repo.GetUsers()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(users) != 2 {
		t.Errorf("expected known face to be skipped, got %d users", len(users))
	}
	if users[1].Name != "002" {
		t.Errorf("expected second sequence name 002, got %q", users[1].Name)
	}
}

func TestFramesFeed(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{})

	if _, err := env.supervisor.Frames(context.Background(), "rtsp://nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown URL, got %v", err)
	}

	if err := env.supervisor.Start("rtsp://cam1", ModeVerify); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	env.source.frames <- []byte("no-face")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	frames, err := env.supervisor.Frames(ctx, "rtsp://cam1")
	if err != nil {
		t.Fatalf("Frames failed: %v", err)
	}

	select {
	case data, ok := <-frames:
		if !ok {
			t.Fatal("feed closed before emitting a frame")
		}
		if string(data) != "no-face" {
			t.Errorf("unexpected frame payload %q", data)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for a feed frame")
	}

	// Stopping the task ends the feed.
	if err := env.supervisor.Stop("rtsp://cam1"); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	eventually(t, "feed termination", func() bool {
		select {
		case env.source.frames <- []byte("no-face"):
		default:
		}
		select {
		case _, ok := <-frames:
			return !ok
		default:
			return false
		}
	})
}
