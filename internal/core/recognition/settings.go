package recognition

import (
	"fmt"
	"sync/atomic"

	"facewatch/internal/core/matching"

	log "github.com/sirupsen/logrus"
)

// validAttributes are the auxiliary attributes the provider can analyze.
var validAttributes = map[string]bool{
	"age":     true,
	"gender":  true,
	"race":    true,
	"emotion": true,
}

// Settings is an immutable snapshot of the runtime recognition settings.
// Changing the model does not migrate stored embeddings; vectors captured
// under different models are not comparable.
type Settings struct {
	Model      string   `json:"model"`
	Attributes []string `json:"attributes"`
}

// Threshold returns the cosine-distance threshold of the snapshot's model.
func (s Settings) Threshold() float64 {
	t, ok := matching.ThresholdFor(s.Model)
	if !ok {
		t, _ = matching.ThresholdFor(matching.DefaultModel)
	}
	return t
}

// SettingsStore holds the current settings snapshot. Reads never observe a
// partially applied update; Update swaps the whole snapshot atomically.
type SettingsStore struct {
	current atomic.Pointer[Settings]
}

// NewSettingsStore creates a store seeded with the given settings.
// Unknown models fall back to the default; invalid attributes are rejected.
func NewSettingsStore(initial Settings) (*SettingsStore, error) {
	s := &SettingsStore{}
	if initial.Model == "" {
		initial.Model = matching.DefaultModel
	}
	if err := s.Update(initial); err != nil {
		return nil, err
	}
	return s, nil
}

// Get returns the current settings snapshot.
func (s *SettingsStore) Get() Settings {
	return *s.current.Load()
}

// Update validates and installs a new settings snapshot. It takes effect on
// the next extraction call; in-flight calls keep the snapshot they started
// with.
func (s *SettingsStore) Update(settings Settings) error {
	if _, ok := matching.ThresholdFor(settings.Model); !ok {
		return fmt.Errorf("unknown embedding model %q", settings.Model)
	}
	for _, attr := range settings.Attributes {
		if !validAttributes[attr] {
			return fmt.Errorf("unknown attribute %q", attr)
		}
	}

	snapshot := Settings{
		Model:      settings.Model,
		Attributes: append([]string(nil), settings.Attributes...),
	}
	s.current.Store(&snapshot)

	log.WithFields(log.Fields{
		"component":  "recognition",
		"model":      snapshot.Model,
		"attributes": snapshot.Attributes,
	}).Info("Recognition settings updated")

	return nil
}
