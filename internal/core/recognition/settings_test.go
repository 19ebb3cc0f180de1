package recognition

import (
	"sync"
	"testing"

	"facewatch/internal/core/matching"
)

func TestNewSettingsStoreDefaults(t *testing.T) {
	store, err := NewSettingsStore(Settings{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := store.Get()
	if got.Model != matching.DefaultModel {
		t.Errorf("expected default model %q, got %q", matching.DefaultModel, got.Model)
	}
}

func TestSettingsStoreUpdate(t *testing.T) {
	store, err := NewSettingsStore(Settings{Model: "Facenet"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name     string
		settings Settings
		wantErr  bool
	}{
		{"valid model", Settings{Model: "ArcFace"}, false},
		{"valid attributes", Settings{Model: "Facenet", Attributes: []string{"age", "emotion"}}, false},
		{"unknown model", Settings{Model: "ResNet-9000"}, true},
		{"unknown attribute", Settings{Model: "Facenet", Attributes: []string{"shoe_size"}}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := store.Update(tc.settings)
			if tc.wantErr && err == nil {
				t.Errorf("expected error for %+v", tc.settings)
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error for %+v: %v", tc.settings, err)
			}
		})
	}
}

func TestSettingsStoreRejectedUpdateKeepsCurrent(t *testing.T) {
	store, err := NewSettingsStore(Settings{Model: "Facenet512"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := store.Update(Settings{Model: "bogus"}); err == nil {
		t.Fatal("expected update to fail")
	}
	if got := store.Get().Model; got != "Facenet512" {
		t.Errorf("rejected update changed model to %q", got)
	}
}

func TestSettingsThresholdFollowsModel(t *testing.T) {
	s := Settings{Model: "Dlib"}
	want, _ := matching.ThresholdFor("Dlib")
	if got := s.Threshold(); got != want {
		t.Errorf("Threshold() = %f, want %f", got, want)
	}
}

func TestSettingsStoreConcurrentAccess(t *testing.T) {
	store, err := NewSettingsStore(Settings{Model: "Facenet"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = store.Update(Settings{Model: "ArcFace", Attributes: []string{"age"}})
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				got := store.Get()
				if got.Model == "" {
					t.Error("observed empty settings snapshot")
					return
				}
			}
		}()
	}
	wg.Wait()
}
