package mqtt

import (
	"testing"
	"time"

	"facewatch/config"
	"facewatch/internal/stream"
)

func TestDisabledClientIsInert(t *testing.T) {
	client := NewClient(config.MQTTConfig{Enabled: false})

	if err := client.Start(); err != nil {
		t.Fatalf("disabled client must not fail to start: %v", err)
	}
	if client.IsConnected() {
		t.Error("disabled client must not report a connection")
	}

	// Publishing on a disabled client is a no-op, not an error or panic.
	client.PublishMatch(stream.MatchEvent{
		Type:      stream.EventMatch,
		Source:    "rtsp://cam1",
		Timestamp: time.Now(),
	})

	client.Stop()
}

func TestPublishWithoutConnection(t *testing.T) {
	client := NewClient(config.MQTTConfig{Enabled: true})

	if err := client.Publish("facewatch/matches", "payload"); err == nil {
		t.Error("expected an error when publishing without a connection")
	}
}
