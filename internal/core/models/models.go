package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User represents a registered person with a stored face embedding.
// A user row only exists if embedding extraction succeeded for its image;
// the embedding is never partially present.
type User struct {
	gorm.Model
	Name      string         `gorm:"index;not null" json:"name"` // display name, not guaranteed unique
	ImagePath string         `gorm:"not null" json:"image_path"` // on-disk path under the snapshot dir
	Embedding datatypes.JSON `gorm:"type:json;not null" json:"-"`
}

// EmbeddingVector decodes the stored JSON embedding into a float vector.
func (u *User) EmbeddingVector() ([]float64, error) {
	if len(u.Embedding) == 0 {
		return nil, fmt.Errorf("user %d has no embedding", u.ID)
	}
	var vec []float64
	if err := json.Unmarshal(u.Embedding, &vec); err != nil {
		return nil, fmt.Errorf("failed to decode embedding for user %d: %w", u.ID, err)
	}
	return vec, nil
}

// EmbeddingJSON encodes an embedding vector for storage.
func EmbeddingJSON(vec []float64) (datatypes.JSON, error) {
	data, err := json.Marshal(vec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode embedding: %w", err)
	}
	return datatypes.JSON(data), nil
}

// MatchLog records one sighting from a live stream. Entries are append-only
// and never mutated after creation; CreatedAt is the sighting timestamp.
type MatchLog struct {
	gorm.Model
	UserID       *uint    `gorm:"index" json:"user_id,omitempty"` // nil for unknown-face sightings
	User         *User    `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Distance     *float64 `json:"distance,omitempty"` // winning cosine distance
	Source       string   `gorm:"index" json:"source"`
	SnapshotPath string   `json:"snapshot_path,omitempty"`
}

// FaceRegion is the bounding box of a detected face within an image.
type FaceRegion struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Statistics summarizes the stored population and sighting history.
type Statistics struct {
	UserCount        int64     `json:"user_count"`
	LogCount         int64     `json:"log_count"`
	MatchedSightings int64     `json:"matched_sightings"`
	UnknownSightings int64     `json:"unknown_sightings"`
	LastSighting     time.Time `json:"last_sighting"`
}
