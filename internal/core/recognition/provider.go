package recognition

import (
	"context"
	"errors"

	"facewatch/internal/core/models"
)

// ErrNoFaceDetected is returned when the provider finds no face in an image.
// It is a recoverable, user-facing condition, not a provider malfunction.
var ErrNoFaceDetected = errors.New("no face detected in image")

// AttributeUnknown is reported for attributes the provider could not analyze.
const AttributeUnknown = "unknown"

// FaceData is the result of embedding extraction for a single face.
type FaceData struct {
	Embedding []float64
	Region    *models.FaceRegion
}

// Provider extracts face embeddings and optional facial attributes from
// images. Implementations are treated as black boxes; any failure other
// than ErrNoFaceDetected is a provider malfunction.
type Provider interface {
	// Represent returns the embedding of the most prominent face in the
	// image using the given model. Returns ErrNoFaceDetected when the image
	// contains no detectable face.
	Represent(ctx context.Context, image []byte, model string) (*FaceData, error)

	// Analyze returns values for the requested facial attributes
	// (age, gender, race, emotion). Best-effort: missing attributes are
	// reported as AttributeUnknown rather than failing the call.
	Analyze(ctx context.Context, image []byte, attributes []string) (map[string]string, error)
}
