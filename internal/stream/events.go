package stream

import "time"

// Event types emitted by stream workers.
const (
	EventMatch        = "match"
	EventAutoRegister = "auto_register"
	EventUnknownFace  = "unknown_face"
)

// MatchEvent describes one sighting on a live stream.
type MatchEvent struct {
	Type      string    `json:"type"`
	Source    string    `json:"source"`
	UserID    *uint     `json:"user_id,omitempty"`
	UserName  string    `json:"user_name,omitempty"`
	Distance  *float64  `json:"distance,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier receives sighting events from stream workers. Implementations
// must not block; workers call Publish inline from the frame loop.
type Notifier interface {
	PublishMatch(event MatchEvent)
}

// MultiNotifier fans one event out to several notifiers.
type MultiNotifier []Notifier

func (m MultiNotifier) PublishMatch(event MatchEvent) {
	for _, n := range m {
		n.PublishMatch(event)
	}
}
