package stream

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Mode decides what a stream worker does with unmatched faces.
type Mode string

const (
	// ModeRegister auto-registers unknown faces as new users.
	ModeRegister Mode = "register"
	// ModeVerify logs sightings of known and unknown faces.
	ModeVerify Mode = "verify"
)

// ParseMode validates a mode string against the fixed enum.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeRegister, ModeVerify:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// Task is one live stream being processed. The running flag is the sole
// stop signal: Stop clears it, the worker observes it between frames.
type Task struct {
	URL  string
	Mode Mode

	running atomic.Bool

	// latest is written only by the owning worker; any number of
	// publisher consumers read it concurrently.
	mu     sync.RWMutex
	latest Frame
}

func newTask(url string, mode Mode) *Task {
	t := &Task{URL: url, Mode: mode}
	t.running.Store(true)
	return t
}

// setLatest swaps in a new frame and releases the previous one. Only the
// worker calls this, so the old frame cannot be swapped twice.
func (t *Task) setLatest(f Frame) {
	t.mu.Lock()
	if t.latest != nil {
		t.latest.Close()
	}
	t.latest = f
	t.mu.Unlock()
}

// EncodeLatest compresses the most recent frame. ok is false while no
// frame has been decoded yet.
func (t *Task) EncodeLatest() (data []byte, ok bool, err error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.latest == nil {
		return nil, false, nil
	}
	data, err = t.latest.EncodeJPEG()
	return data, true, err
}

func (t *Task) closeLatest() {
	t.mu.Lock()
	if t.latest != nil {
		t.latest.Close()
		t.latest = nil
	}
	t.mu.Unlock()
}
