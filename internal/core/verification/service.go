package verification

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"facewatch/internal/core/matching"
	"facewatch/internal/core/models"
	"facewatch/internal/core/recognition"
	"facewatch/internal/db/repository"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

var logFields = log.Fields{
	"component": "verification",
}

// ErrUserNotFound is returned when an operation references a missing user.
var ErrUserNotFound = errors.New("user not found")

// Verification result statuses.
const (
	StatusSuccess = "success" // a stored user matched below the threshold
	StatusFailure = "failure" // a face was found but matched nobody
	StatusError   = "error"   // no usable face in the image
)

// Result is the structured outcome of a verification run.
type Result struct {
	Status     string             `json:"status"`
	Message    string             `json:"message,omitempty"`
	Distance   *float64           `json:"distance,omitempty"`
	User       *models.User       `json:"user,omitempty"`
	Region     *models.FaceRegion `json:"region,omitempty"`
	Attributes map[string]string  `json:"attributes,omitempty"`

	// Embedding carries the extracted vector so the streaming path can
	// auto-register without a second provider round-trip.
	Embedding []float64 `json:"-"`
}

// Service implements the registration and verification workflows on top of
// the embedding provider and the repository.
type Service struct {
	repo        repository.Repository
	provider    recognition.Provider
	settings    *recognition.SettingsStore
	snapshotDir string
}

// NewService creates a verification service.
func NewService(repo repository.Repository, provider recognition.Provider, settings *recognition.SettingsStore, snapshotDir string) *Service {
	return &Service{
		repo:        repo,
		provider:    provider,
		settings:    settings,
		snapshotDir: snapshotDir,
	}
}

// Register extracts an embedding from the image and creates a user record.
// A user is never created without an embedding: when extraction fails, the
// persisted image is removed again and the error returned.
func (s *Service) Register(ctx context.Context, name string, image []byte) (*models.User, error) {
	imagePath, err := s.saveImage(image)
	if err != nil {
		return nil, err
	}

	settings := s.settings.Get()
	face, err := s.provider.Represent(ctx, image, settings.Model)
	if err != nil {
		s.removeImage(imagePath)
		if errors.Is(err, recognition.ErrNoFaceDetected) {
			return nil, err
		}
		log.WithFields(logFields).Errorf("Embedding extraction failed during registration: %v", err)
		return nil, fmt.Errorf("embedding extraction failed: %w", err)
	}

	embedding, err := models.EmbeddingJSON(face.Embedding)
	if err != nil {
		s.removeImage(imagePath)
		return nil, err
	}

	user := &models.User{
		Name:      name,
		ImagePath: imagePath,
		Embedding: embedding,
	}
	if err := s.repo.SaveUser(user); err != nil {
		s.removeImage(imagePath)
		return nil, err
	}

	log.WithFields(logFields).Infof("Registered user %q (ID %d)", name, user.ID)
	return user, nil
}

// Verify extracts an embedding from the image and matches it against all
// stored users. It never writes to storage. A missing face yields a
// structured error result, not a Go error; the error return is reserved for
// provider or storage malfunctions.
func (s *Service) Verify(ctx context.Context, image []byte) (*Result, error) {
	settings := s.settings.Get()

	face, err := s.provider.Represent(ctx, image, settings.Model)
	if err != nil {
		if errors.Is(err, recognition.ErrNoFaceDetected) {
			return &Result{Status: StatusError, Message: "no face detected in image"}, nil
		}
		log.WithFields(logFields).Errorf("Embedding extraction failed during verification: %v", err)
		return nil, fmt.Errorf("embedding extraction failed: %w", err)
	}

	result := &Result{
		Region:    face.Region,
		Embedding: face.Embedding,
	}

	if len(settings.Attributes) > 0 {
		attrs, err := s.provider.Analyze(ctx, image, settings.Attributes)
		if err != nil {
			// Attribute analysis is best-effort and never fails the request.
			log.WithFields(logFields).Warnf("Attribute analysis failed: %v", err)
			attrs = make(map[string]string, len(settings.Attributes))
			for _, a := range settings.Attributes {
				attrs[a] = recognition.AttributeUnknown
			}
		}
		result.Attributes = attrs
	}

	candidates, err := s.repo.GetCandidates()
	if err != nil {
		return nil, fmt.Errorf("failed to load candidates: %w", err)
	}

	match := matching.Match(face.Embedding, candidates, settings.Threshold())
	if match.Matched {
		user, err := s.repo.GetUserByID(match.UserID)
		if err != nil {
			return nil, err
		}
		result.Status = StatusSuccess
		result.Distance = &match.Distance
		result.User = user
		return result, nil
	}

	result.Status = StatusFailure
	if !math.IsInf(match.Distance, 1) {
		// Report the nearest miss so callers can see how close it was.
		// The infinite sentinel (empty or fully skipped candidate set)
		// stays out of the result; it has no JSON representation.
		result.Distance = &match.Distance
	}
	return result, nil
}

// AutoRegister creates a user for an unknown face seen on a live stream.
// The assigned name is a zero-padded three-digit sequence number, one more
// than the count of existing sequence-named users. Because it is a count
// and not a max, deleting earlier entries can make the next name collide;
// known limitation carried over deliberately.
func (s *Service) AutoRegister(ctx context.Context, image []byte, embedding []float64) (*models.User, error) {
	count, err := s.repo.CountSequenceNames()
	if err != nil {
		return nil, err
	}
	name := fmt.Sprintf("%03d", count+1)

	imagePath, err := s.saveImage(image)
	if err != nil {
		return nil, err
	}

	embeddingJSON, err := models.EmbeddingJSON(embedding)
	if err != nil {
		s.removeImage(imagePath)
		return nil, err
	}

	user := &models.User{
		Name:      name,
		ImagePath: imagePath,
		Embedding: embeddingJSON,
	}
	if err := s.repo.SaveUser(user); err != nil {
		s.removeImage(imagePath)
		return nil, err
	}

	log.WithFields(logFields).Infof("Auto-registered unknown face as %q (ID %d)", name, user.ID)
	return user, nil
}

// UpdateUser replaces a user's name and/or image. An image replacement is
// all-or-nothing: the new embedding is extracted before anything is
// persisted, and a failed extraction leaves the stored record untouched.
func (s *Service) UpdateUser(ctx context.Context, id uint, name string, image []byte) (*models.User, error) {
	user, err := s.repo.GetUserByID(id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	var newImagePath string
	oldImagePath := user.ImagePath

	if len(image) > 0 {
		settings := s.settings.Get()
		face, err := s.provider.Represent(ctx, image, settings.Model)
		if err != nil {
			if errors.Is(err, recognition.ErrNoFaceDetected) {
				return nil, err
			}
			log.WithFields(logFields).Errorf("Embedding extraction failed during update: %v", err)
			return nil, fmt.Errorf("embedding extraction failed: %w", err)
		}

		embedding, err := models.EmbeddingJSON(face.Embedding)
		if err != nil {
			return nil, err
		}

		newImagePath, err = s.saveImage(image)
		if err != nil {
			return nil, err
		}

		user.ImagePath = newImagePath
		user.Embedding = embedding
	}

	if name != "" {
		user.Name = name
	}

	if err := s.repo.UpdateUser(user); err != nil {
		if newImagePath != "" {
			s.removeImage(newImagePath)
		}
		return nil, err
	}

	if newImagePath != "" && oldImagePath != "" && oldImagePath != newImagePath {
		s.removeImage(oldImagePath)
	}

	return user, nil
}

// DeleteUser removes a user record and its on-disk image.
func (s *Service) DeleteUser(id uint) error {
	user, err := s.repo.GetUserByID(id)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}

	if err := s.repo.DeleteUser(id); err != nil {
		return err
	}
	if user.ImagePath != "" {
		s.removeImage(user.ImagePath)
	}

	log.WithFields(logFields).Infof("Deleted user %q (ID %d)", user.Name, user.ID)
	return nil
}

// SaveSnapshot persists a frame snapshot and returns its path. Used by the
// streaming path to attach evidence to unknown-face sightings.
func (s *Service) SaveSnapshot(image []byte) (string, error) {
	return s.saveImage(image)
}

// saveImage persists image bytes under a random file name in the snapshot
// directory.
func (s *Service) saveImage(image []byte) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("empty image data")
	}

	path := filepath.Join(s.snapshotDir, fmt.Sprintf("%s.jpg", uuid.New().String()))
	if err := os.WriteFile(path, image, 0640); err != nil {
		return "", fmt.Errorf("failed to store image: %w", err)
	}
	return path, nil
}

func (s *Service) removeImage(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.WithFields(logFields).Warnf("Failed to remove image %s: %v", path, err)
	}
}
